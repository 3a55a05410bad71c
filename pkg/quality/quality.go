// Package quality provides the client for the revision quality-scoring
// service. Unlike the Action API, the scoring service takes one revision and
// language per call, uses POST, and has no batching or continuation; result
// shape varies by model family and is normalized here.
package quality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mwtools/wikiquery/pkg/client"
)

// ModelFamily distinguishes the response shapes of the scoring service.
type ModelFamily int

const (
	// FamilyArticleQuality models return a per-class probability table.
	FamilyArticleQuality ModelFamily = iota

	// FamilyRevertRisk models return a flat true-probability.
	FamilyRevertRisk

	// FamilyPerWiki models nest scores in a per-wiki table keyed by revision.
	FamilyPerWiki
)

// familyOf resolves the model family once per job, not per record.
func familyOf(model string) (ModelFamily, error) {
	switch {
	case model == "articlequality":
		return FamilyArticleQuality, nil
	case strings.HasPrefix(model, "revertrisk"):
		return FamilyRevertRisk, nil
	case len(model) >= 6 && model[2:6] == "wiki":
		return FamilyPerWiki, nil
	default:
		return 0, fmt.Errorf("%w: model %q not recognized", client.ErrInvalidRequest, model)
	}
}

// Score is the normalized result of one model for one revision.
type Score struct {
	// Probability is the flat probability for revert-risk style models and
	// per-wiki non-quality submodels.
	Probability float64

	// Probabilities is the per-class probability table for quality models.
	Probabilities map[string]float64
}

// Config holds the scoring client configuration.
type Config struct {
	// BaseURL is the inference service root, e.g. "https://api.wikimedia.org".
	BaseURL string

	// UserAgent identifies the caller.
	UserAgent string

	// Concurrency caps simultaneous in-flight scoring calls.
	Concurrency int

	// HTTPTimeout is the per-request timeout.
	HTTPTimeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:     "https://api.wikimedia.org",
		UserAgent:   userAgent,
		Concurrency: 5,
		HTTPTimeout: 30 * time.Second,
	}
}

// Client calls the quality-scoring service.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a scoring client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		config:     cfg,
		logger:     log.With().Str("component", "mw-quality").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// ScoreRevisions scores every revision with every model and returns results
// keyed by revision id, then model name. A failing call fails the whole job;
// sibling calls in flight are allowed to finish.
func (c *Client) ScoreRevisions(ctx context.Context, revids []int64, lang string, models []string) (map[int64]map[string]Score, error) {
	if len(revids) == 0 || len(models) == 0 {
		return nil, fmt.Errorf("%w: revisions and models must be non-empty", client.ErrInvalidRequest)
	}

	out := make(map[int64]map[string]Score, len(revids))
	for _, id := range revids {
		out[id] = make(map[string]Score, len(models))
	}

	for _, model := range models {
		family, err := familyOf(model)
		if err != nil {
			return nil, err
		}

		scores, err := c.scoreModel(ctx, revids, lang, model, family)
		if err != nil {
			return nil, err
		}
		for id, score := range scores {
			if perModel, ok := out[id]; ok {
				perModel[model] = score
			}
		}
	}
	return out, nil
}

// scoreModel fans the per-revision calls for one model out over a bounded
// worker pool.
func (c *Client) scoreModel(ctx context.Context, revids []int64, lang, model string, family ModelFamily) (map[int64]Score, error) {
	type result struct {
		id    int64
		score Score
		ok    bool
		err   error
	}

	ids := make(chan int64, len(revids))
	for _, id := range revids {
		ids <- id
	}
	close(ids)

	results := make(chan result, len(revids))
	var wg sync.WaitGroup
	workers := c.config.Concurrency
	if workers > len(revids) {
		workers = len(revids)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				score, ok, err := c.scoreOne(ctx, id, lang, model, family)
				results <- result{id: id, score: score, ok: ok, err: err}
			}
		}()
	}
	wg.Wait()
	close(results)

	out := make(map[int64]Score, len(revids))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		if res.ok {
			out[res.id] = res.score
		}
	}
	if firstErr != nil {
		return nil, fmt.Errorf("score model %s: %w", model, firstErr)
	}
	return out, nil
}

// scoreOne performs one scoring call. The second return is false when the
// service returned no score for the revision.
func (c *Client) scoreOne(ctx context.Context, revid int64, lang, model string, family ModelFamily) (Score, bool, error) {
	payload, err := json.Marshal(map[string]any{
		"rev_id": revid,
		"lang":   lang,
	})
	if err != nil {
		return Score{}, false, err
	}

	url := c.config.BaseURL + "/service/lw/inference/v1/models/" + model + ":predict"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Score{}, false, err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Score{}, false, &client.TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Score{}, false, &client.TransportError{Err: err}
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn().
			Str("model", model).
			Int64("revid", revid).
			Int("status", resp.StatusCode).
			Msg("Scoring request error")
		return Score{}, false, &client.RemoteError{
			Code: strconv.Itoa(resp.StatusCode),
			Info: string(body),
		}
	}

	return parseScore(body, revid, model, family)
}

// parseScore normalizes one response per the model family's shape.
func parseScore(body []byte, revid int64, model string, family ModelFamily) (Score, bool, error) {
	switch family {
	case FamilyArticleQuality:
		var parsed struct {
			RevisionID int64 `json:"revision_id"`
			Score      struct {
				Probability map[string]float64 `json:"probability"`
			} `json:"score"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return Score{}, false, &client.TransportError{Err: fmt.Errorf("decode score: %w", err)}
		}
		if parsed.RevisionID == 0 {
			return Score{}, false, nil
		}
		return Score{Probabilities: parsed.Score.Probability}, true, nil

	case FamilyRevertRisk:
		var parsed struct {
			RevisionID int64 `json:"revision_id"`
			Output     struct {
				Probabilities map[string]float64 `json:"probabilities"`
			} `json:"output"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return Score{}, false, &client.TransportError{Err: fmt.Errorf("decode score: %w", err)}
		}
		if parsed.RevisionID == 0 {
			return Score{}, false, nil
		}
		return Score{Probability: parsed.Output.Probabilities["true"]}, true, nil

	case FamilyPerWiki:
		wiki := model[:6]
		submodel := model
		if i := strings.Index(model, "-"); i >= 0 {
			submodel = model[i+1:]
		}
		var parsed map[string]struct {
			Scores map[string]map[string]struct {
				Score struct {
					Probability json.RawMessage `json:"probability"`
				} `json:"score"`
			} `json:"scores"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return Score{}, false, &client.TransportError{Err: fmt.Errorf("decode score: %w", err)}
		}
		wikiScores, ok := parsed[wiki]
		if !ok {
			return Score{}, false, nil
		}
		entry, ok := wikiScores.Scores[strconv.FormatInt(revid, 10)]
		if !ok {
			return Score{}, false, nil
		}
		sub, ok := entry[submodel]
		if !ok {
			return Score{}, false, nil
		}
		// Quality submodels carry a class table; the rest a true-probability.
		if submodel == "articlequality" || submodel == "draftquality" {
			var table map[string]float64
			if err := json.Unmarshal(sub.Score.Probability, &table); err != nil {
				return Score{}, false, &client.TransportError{Err: fmt.Errorf("decode probability table: %w", err)}
			}
			return Score{Probabilities: table}, true, nil
		}
		var flat struct {
			True float64 `json:"true"`
		}
		if err := json.Unmarshal(sub.Score.Probability, &flat); err != nil {
			return Score{}, false, &client.TransportError{Err: fmt.Errorf("decode probability: %w", err)}
		}
		return Score{Probability: flat.True}, true, nil

	default:
		return Score{}, false, fmt.Errorf("%w: model %q not recognized", client.ErrInvalidRequest, model)
	}
}
