// Package client provides the core MediaWiki Action API HTTP client with
// rate limiting, retries, and error handling.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mwtools/wikiquery/pkg/ratelimit"
)

// Prometheus metrics for API client operations.
var (
	mwRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mw_requests_total",
		Help: "Total API requests by action and status",
	}, []string{"action", "status"})

	mwRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mw_request_duration_seconds",
		Help:    "API request duration in seconds by action",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"action"})

	mwErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mw_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// Client is the MediaWiki Action API client.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the api.php endpoint, e.g. "https://en.wikipedia.org/w/api.php".
	BaseURL string

	// User-Agent header (required by Wikimedia API etiquette).
	// Format: "AppName/Version (contact@example.com)"
	UserAgent string

	// MaxLag is the maxlag parameter sent with every request. The API
	// rejects requests with a retryable error while replication lag exceeds
	// this many seconds. 0 disables the parameter.
	MaxLag int

	// Tracker gates requests on shared rate-limit state. Optional.
	Tracker *ratelimit.Tracker

	// HTTPTimeout is the per-request timeout.
	HTTPTimeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:     baseURL,
		UserAgent:   userAgent,
		MaxLag:      5,
		HTTPTimeout: 30 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}

	logger := log.With().Str("component", "mw-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		rateLimiter: cfg.Tracker,
		config:      cfg,
		logger:      logger,
	}, nil
}

// Query performs one action=query request and decodes the response envelope.
// It retries transient failures with backoff, logs API warnings, and reports
// a structured API error as *RemoteError.
func (c *Client) Query(ctx context.Context, params map[string]string) (*ResultPage, error) {
	action := params["action"]
	if action == "" {
		action = "query"
	}

	startTime := time.Now()
	defer func() {
		mwRequestDuration.WithLabelValues(action).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Rate limit check failed")
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().
				Str("action", action).
				Msg("Request blocked by rate limiter")
			mwRequestsTotal.WithLabelValues(action, "rate_limited").Inc()
			return nil, fmt.Errorf("request blocked: rate limit critical")
		}
	}

	var page *ResultPage
	retryErr := retryWithBackoff(ctx, func() error {
		var attemptErr error
		page, attemptErr = c.doQuery(ctx, action, params)
		return attemptErr
	})
	if retryErr != nil {
		mwErrorsTotal.WithLabelValues(string(Classify(retryErr))).Inc()
		return nil, retryErr
	}

	return page, nil
}

// doQuery performs a single request attempt.
func (c *Client) doQuery(ctx context.Context, action string, params map[string]string) (*ResultPage, error) {
	values := url.Values{}
	values.Set("action", action)
	values.Set("format", "json")
	values.Set("formatversion", "2")
	if c.config.MaxLag > 0 {
		values.Set("maxlag", strconv.Itoa(c.config.MaxLag))
	}
	for k, v := range params {
		values.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.BaseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("action", action).Msg("HTTP request failed")
		mwRequestsTotal.WithLabelValues(action, "network_error").Inc()
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		mwRequestsTotal.WithLabelValues(action, "network_error").Inc()
		return nil, &TransportError{Err: err}
	}

	if resp.StatusCode >= 400 {
		mwRequestsTotal.WithLabelValues(action, strconv.Itoa(resp.StatusCode)).Inc()
		c.logger.Warn().
			Str("action", action).
			Int("status", resp.StatusCode).
			Msg("API request error")
		return nil, &TransportError{
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, resp.Status),
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		mwRequestsTotal.WithLabelValues(action, "malformed").Inc()
		return nil, &TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}

	if env.Error != nil {
		mwRequestsTotal.WithLabelValues(action, "api_error").Inc()
		if c.rateLimiter != nil {
			if err := c.rateLimiter.RecordAPIError(ctx, env.Error.Code, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record API error state")
			}
		}
		c.logger.Warn().
			Str("action", action).
			Str("code", env.Error.Code).
			Str("info", env.Error.Info).
			Msg("API reported an error")
		return nil, env.Error
	}

	if len(env.Warnings) > 0 {
		c.logger.Warn().
			Str("action", action).
			RawJSON("warnings", env.Warnings).
			Msg("API returned warnings")
	}

	cont, err := env.continueParams()
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	mwRequestsTotal.WithLabelValues(action, strconv.Itoa(resp.StatusCode)).Inc()

	page := &ResultPage{
		Query:    env.Query,
		Continue: cont,
		Empty:    env.Query == nil,
	}
	if page.Empty {
		c.logger.Warn().
			Str("action", action).
			Msg("Remote returned empty result batch")
	}
	return page, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// BaseURL returns the configured api.php endpoint.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}
