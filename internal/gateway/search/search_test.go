package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/gateway"
)

func newTestGateway(p provider) *Gateway {
	return &Gateway{
		provider:   p,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		attempts:   3,
		backoff:    time.Millisecond,
		logger:     zap.NewNop(),
	}
}

func TestNewProviderSelection(t *testing.T) {
	for _, name := range []string{"tavily", "serper"} {
		g, err := New(Config{Provider: name, APIKey: "k"}, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, name, g.provider.name())
	}

	_, err := New(Config{Provider: "duckduckgo"}, zap.NewNop())
	assert.Error(t, err)
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "secret", req["api_key"])
		assert.Equal(t, "capital of France", req["query"])
		assert.Equal(t, "advanced", req["search_depth"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{
					"title":       "Paris - Wikipedia",
					"url":         "https://en.wikipedia.org/wiki/Paris",
					"content":     "Paris is the capital of France.",
					"raw_content": "Paris is the capital and largest city of France.",
				},
			},
		})
	}))
	defer srv.Close()

	g := newTestGateway(&tavilyProvider{apiKey: "secret", endpoint: srv.URL})
	results, err := g.Search(context.Background(), "capital of France", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "en.wikipedia.org", results[0].Domain)
	assert.NotEmpty(t, results[0].RawContent)
	assert.False(t, results[0].FetchedAt.IsZero())
}

func TestSerperSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"organic": []map[string]any{
				{"title": "A", "link": "https://a.com/1", "snippet": "first"},
				{"title": "B", "link": "https://b.com/2", "snippet": "second"},
				{"title": "C", "link": "https://c.com/3", "snippet": "third"},
			},
		})
	}))
	defer srv.Close()

	g := newTestGateway(&serperProvider{apiKey: "secret", endpoint: srv.URL})
	results, err := g.Search(context.Background(), "query", 2)
	require.NoError(t, err)
	// Serper ignores the result cap server-side; the adapter enforces it.
	require.Len(t, results, 2)
	assert.Equal(t, "a.com", results[0].Domain)
}

func TestSearchEmptyResultsIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	}))
	defer srv.Close()

	g := newTestGateway(&tavilyProvider{apiKey: "k", endpoint: srv.URL})
	results, err := g.Search(context.Background(), "unfindable", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "T", "url": "https://t.com", "content": "c"},
			},
		})
	}))
	defer srv.Close()

	g := newTestGateway(&tavilyProvider{apiKey: "k", endpoint: srv.URL})
	results, err := g.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchSurfacesExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := newTestGateway(&tavilyProvider{apiKey: "k", endpoint: srv.URL})
	_, err := g.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.True(t, gateway.IsGatewayError(err))
}
