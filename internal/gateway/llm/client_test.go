package llm

import (
	"context"
	"encoding/json"
	"fmt"
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

type echoShape struct {
	Value string `json:"value"`
}

func (e *echoShape) Validate() error {
	if e.Value == "" {
		return fmt.Errorf("missing value")
	}
	return nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:     srv.URL,
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
	}, zap.NewNop())
}

func modelResponse(t *testing.T, w http.ResponseWriter, text string) {
	t.Helper()
	err := json.NewEncoder(w).Encode(map[string]any{
		"response":    text,
		"tokens_used": 42,
	})
	require.NoError(t, err)
}

func TestInvoke(t *testing.T) {
	t.Run("decodes structured response", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/agent/invoke", r.URL.Path)
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "research_strategy", req["prompt_id"])
			modelResponse(t, w, `{"value":"ok"}`)
		})

		var out echoShape
		err := client.Invoke(context.Background(), "research_strategy", map[string]any{"q": "x"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "ok", out.Value)
	})

	t.Run("strips markdown fences", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			modelResponse(t, w, "```json\n{\"value\":\"fenced\"}\n```")
		})

		var out echoShape
		require.NoError(t, client.Invoke(context.Background(), "p", nil, &out))
		assert.Equal(t, "fenced", out.Value)
	})

	t.Run("malformed JSON is a schema error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			modelResponse(t, w, "this is not json at all")
		})

		var out echoShape
		err := client.Invoke(context.Background(), "p", nil, &out)
		require.Error(t, err)
		assert.True(t, gateway.IsSchemaError(err))
	})

	t.Run("validation failure is a schema error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			modelResponse(t, w, `{"other_field": 1}`)
		})

		var out echoShape
		err := client.Invoke(context.Background(), "p", nil, &out)
		require.Error(t, err)
		assert.True(t, gateway.IsSchemaError(err))
	})

	t.Run("server errors are retried then surfaced as transient", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		})

		var out echoShape
		err := client.Invoke(context.Background(), "p", nil, &out)
		require.Error(t, err)
		assert.True(t, gateway.IsGatewayError(err))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("recovers within the transport retry budget", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
				return
			}
			modelResponse(t, w, `{"value":"recovered"}`)
		})

		var out echoShape
		require.NoError(t, client.Invoke(context.Background(), "p", nil, &out))
		assert.Equal(t, "recovered", out.Value)
	})

	t.Run("schema error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			modelResponse(t, w, "garbage")
		})

		var out echoShape
		err := client.Invoke(context.Background(), "p", nil, &out)
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", `Here you go: {"a":1}`, `{"a":1}`},
		{"prose both sides", `Sure. {"a":1} Hope that helps!`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}
