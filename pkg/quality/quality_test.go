package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mwtools/wikiquery/pkg/client"
)

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		model   string
		want    ModelFamily
		wantErr bool
	}{
		{model: "articlequality", want: FamilyArticleQuality},
		{model: "revertrisk-language-agnostic", want: FamilyRevertRisk},
		{model: "revertrisk-multilingual", want: FamilyRevertRisk},
		{model: "enwiki-articlequality", want: FamilyPerWiki},
		{model: "dewiki-damaging", want: FamilyPerWiki},
		{model: "nonsense", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, err := familyOf(tt.model)
			if tt.wantErr {
				if !errors.Is(err, client.ErrInvalidRequest) {
					t.Errorf("familyOf(%q) err = %v, want ErrInvalidRequest", tt.model, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("familyOf(%q) failed: %v", tt.model, err)
			}
			if got != tt.want {
				t.Errorf("familyOf(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{UserAgent: "t/1.0"}); err == nil {
		t.Error("Expected error for missing base URL")
	}
	if _, err := New(Config{BaseURL: "https://api.example.org"}); err == nil {
		t.Error("Expected error for missing user-agent")
	}
}

// newScoringServer serves model-specific responses and records the request
// bodies per model.
func newScoringServer(t *testing.T, respond func(model string, revid int64) (int, string)) (*httptest.Server, *sync.Map) {
	t.Helper()
	var bodies sync.Map
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			RevID int64  `json:"rev_id"`
			Lang  string `json:"lang"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		// Path shape: /service/lw/inference/v1/models/<model>:predict
		model := r.URL.Path[len("/service/lw/inference/v1/models/") : len(r.URL.Path)-len(":predict")]
		bodies.Store(fmt.Sprintf("%s/%d", model, payload.RevID), payload.Lang)

		status, body := respond(model, payload.RevID)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	return server, &bodies
}

func TestScoreRevisions_ArticleQuality(t *testing.T) {
	server, bodies := newScoringServer(t, func(model string, revid int64) (int, string) {
		return http.StatusOK, fmt.Sprintf(`{
			"revision_id": %d,
			"score": {"probability": {"FA": 0.1, "GA": 0.2, "Stub": 0.7}}
		}`, revid)
	})
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL, UserAgent: "t/1.0", Concurrency: 2})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	out, err := c.ScoreRevisions(context.Background(), []int64{11, 12}, "en", []string{"articlequality"})
	if err != nil {
		t.Fatalf("ScoreRevisions() failed: %v", err)
	}

	for _, id := range []int64{11, 12} {
		score, ok := out[id]["articlequality"]
		if !ok {
			t.Fatalf("no score for revision %d", id)
		}
		if score.Probabilities["Stub"] != 0.7 {
			t.Errorf("Probabilities[Stub] = %v, want 0.7", score.Probabilities["Stub"])
		}
	}

	// The language travels in the request body.
	if lang, ok := bodies.Load("articlequality/11"); !ok || lang != "en" {
		t.Errorf("request body lang = %v, want en", lang)
	}
}

func TestScoreRevisions_RevertRisk(t *testing.T) {
	server, _ := newScoringServer(t, func(model string, revid int64) (int, string) {
		return http.StatusOK, fmt.Sprintf(`{
			"revision_id": %d,
			"output": {"prediction": false, "probabilities": {"true": 0.12, "false": 0.88}}
		}`, revid)
	})
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL, UserAgent: "t/1.0"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	out, err := c.ScoreRevisions(context.Background(), []int64{42}, "de", []string{"revertrisk-language-agnostic"})
	if err != nil {
		t.Fatalf("ScoreRevisions() failed: %v", err)
	}
	score := out[42]["revertrisk-language-agnostic"]
	if score.Probability != 0.12 {
		t.Errorf("Probability = %v, want 0.12", score.Probability)
	}
}

func TestScoreRevisions_PerWiki(t *testing.T) {
	server, _ := newScoringServer(t, func(model string, revid int64) (int, string) {
		switch model {
		case "enwiki-articlequality":
			return http.StatusOK, fmt.Sprintf(`{
				"enwiki": {"scores": {"%d": {"articlequality": {
					"score": {"prediction": "GA", "probability": {"FA": 0.3, "GA": 0.6, "Stub": 0.1}}
				}}}}
			}`, revid)
		case "enwiki-damaging":
			return http.StatusOK, fmt.Sprintf(`{
				"enwiki": {"scores": {"%d": {"damaging": {
					"score": {"prediction": false, "probability": {"true": 0.05, "false": 0.95}}
				}}}}
			}`, revid)
		default:
			return http.StatusNotFound, `{"error": "unknown model"}`
		}
	})
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL, UserAgent: "t/1.0"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	out, err := c.ScoreRevisions(context.Background(), []int64{77}, "en",
		[]string{"enwiki-articlequality", "enwiki-damaging"})
	if err != nil {
		t.Fatalf("ScoreRevisions() failed: %v", err)
	}

	aq := out[77]["enwiki-articlequality"]
	if aq.Probabilities["GA"] != 0.6 {
		t.Errorf("articlequality Probabilities[GA] = %v, want 0.6", aq.Probabilities["GA"])
	}
	dmg := out[77]["enwiki-damaging"]
	if dmg.Probability != 0.05 {
		t.Errorf("damaging Probability = %v, want 0.05", dmg.Probability)
	}
}

func TestScoreRevisions_RemoteError(t *testing.T) {
	server, _ := newScoringServer(t, func(model string, revid int64) (int, string) {
		return http.StatusBadRequest, `{"error": "revision not found"}`
	})
	defer server.Close()

	c, err := New(Config{BaseURL: server.URL, UserAgent: "t/1.0"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	_, err = c.ScoreRevisions(context.Background(), []int64{1}, "en", []string{"articlequality"})
	if err == nil {
		t.Fatal("Expected error")
	}
	var remote *client.RemoteError
	if !errors.As(err, &remote) || remote.Code != "400" {
		t.Errorf("err = %v, want 400 remote error", err)
	}
}

func TestScoreRevisions_UnknownModelRejected(t *testing.T) {
	c, err := New(Config{BaseURL: "https://api.example.org", UserAgent: "t/1.0"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	_, err = c.ScoreRevisions(context.Background(), []int64{1}, "en", []string{"nonsense"})
	if !errors.Is(err, client.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestScoreRevisions_EmptyInputRejected(t *testing.T) {
	c, err := New(Config{BaseURL: "https://api.example.org", UserAgent: "t/1.0"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := c.ScoreRevisions(context.Background(), nil, "en", []string{"articlequality"}); err == nil {
		t.Error("Expected error for empty revision set")
	}
	if _, err := c.ScoreRevisions(context.Background(), []int64{1}, "en", nil); err == nil {
		t.Error("Expected error for empty model set")
	}
}
