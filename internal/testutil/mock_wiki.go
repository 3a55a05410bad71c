// Package testutil provides testing utilities for the wikiquery client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockWikiResponse defines the behavior for one mock Action API response.
type MockWikiResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockWiki is a configurable mock MediaWiki Action API server for testing.
// Responses are keyed by the request's entity list (titles, pageids or
// revids); each matching request consumes the next response in the keyed
// sequence, and the last response repeats once the sequence is exhausted.
type MockWiki struct {
	server    *httptest.Server
	mu        sync.RWMutex
	sequences map[string][]MockWikiResponse
	consumed  map[string]int
	handler   func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	Requests     []url.Values
}

// NewMockWiki creates a new mock Action API server.
func NewMockWiki() *MockWiki {
	mock := &MockWiki{
		sequences: make(map[string][]MockWikiResponse),
		consumed:  make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()

		mock.mu.Lock()
		mock.RequestCount++
		mock.Requests = append(mock.Requests, params)
		handler := mock.handler
		mock.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}

		key := entityKey(params)
		resp, ok := mock.nextResponse(key)
		if !ok {
			mock.defaultHandler(w)
			return
		}
		writeResponse(w, resp)
	}))

	return mock
}

// entityKey extracts the request's entity list as the sequence key. The
// values are sorted so keys stay stable when callers assemble batches from
// map iteration.
func entityKey(params url.Values) string {
	for _, param := range []string{"titles", "pageids", "revids"} {
		if v := params.Get(param); v != "" {
			parts := strings.Split(v, "|")
			sort.Strings(parts)
			return strings.Join(parts, "|")
		}
	}
	return ""
}

// nextResponse pops the next scripted response for a key.
func (m *MockWiki) nextResponse(key string) (MockWikiResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq, ok := m.sequences[key]
	if !ok || len(seq) == 0 {
		return MockWikiResponse{}, false
	}
	i := m.consumed[key]
	if i >= len(seq) {
		i = len(seq) - 1
	} else {
		m.consumed[key]++
	}
	return seq[i], true
}

func writeResponse(w http.ResponseWriter, resp MockWikiResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// URL returns the mock server URL.
func (m *MockWiki) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockWiki) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and sequence positions.
func (m *MockWiki) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Requests = nil
	m.consumed = make(map[string]int)
}

// SetHandler installs a full custom handler, bypassing keyed sequences.
func (m *MockWiki) SetHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// SetSequence scripts the responses for one entity list value. Multi-value
// keys must be given in sorted order.
func (m *MockWiki) SetSequence(key string, responses ...MockWikiResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[key] = responses
	m.consumed[key] = 0
}

// SetResponse scripts a single repeating response for one entity list value.
func (m *MockWiki) SetResponse(key string, resp MockWikiResponse) {
	m.SetSequence(key, resp)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockWiki) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// RequestsFor returns the captured requests whose entity list matches key.
func (m *MockWiki) RequestsFor(key string) []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []url.Values
	for _, params := range m.Requests {
		if entityKey(params) == key {
			out = append(out, params)
		}
	}
	return out
}

// defaultHandler answers an empty batch-complete query result.
func (m *MockWiki) defaultHandler(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"batchcomplete":true,"query":{"pages":[]}}`))
}

// NewQueryResponse creates a 200 response wrapping the given query object.
func NewQueryResponse(query string) MockWikiResponse {
	return MockWikiResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"batchcomplete":true,"query":%s}`, query),
	}
}

// NewContinueResponse creates a 200 response carrying a continuation token.
func NewContinueResponse(query, cont string) MockWikiResponse {
	return MockWikiResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"query":%s,"continue":%s}`, query, cont),
	}
}

// NewErrorResponse creates a 200 response carrying an API error envelope.
func NewErrorResponse(code, info string) MockWikiResponse {
	return MockWikiResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"error":{"code":%q,"info":%q}}`, code, info),
	}
}

// NewMaxLagResponse creates the maxlag error the API returns under replica
// lag, with the Retry-After header it sends alongside.
func NewMaxLagResponse(seconds int) MockWikiResponse {
	resp := NewErrorResponse("maxlag", "Waiting for a database server: lag exceeds limit")
	resp.Headers = map[string]string{"Retry-After": fmt.Sprintf("%d", seconds)}
	return resp
}

// NewEmptyResponse creates a 200 response with no query payload.
func NewEmptyResponse() MockWikiResponse {
	return MockWikiResponse{
		StatusCode: http.StatusOK,
		Body:       `{"batchcomplete":true}`,
	}
}
