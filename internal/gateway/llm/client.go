package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sounderhq/sounder/internal/gateway"
	"github.com/sounderhq/sounder/internal/metrics"
)

// Config holds the model service connection settings.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	RateLimitRPS float64
}

// Client is the HTTP adapter for the model gateway. It posts a rendered
// prompt to the model service, expects a JSON-bearing text response, and
// decodes it into the caller's typed shape.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	attempts   int
	backoff    time.Duration
	logger     *zap.Logger
}

// invokeRequest is the wire request to the model service.
type invokeRequest struct {
	PromptID  string         `json:"prompt_id"`
	Variables map[string]any `json:"variables"`
	Context   map[string]any `json:"context,omitempty"`
}

// invokeResponse is the wire response: the structured value is carried as
// JSON text in Response, possibly wrapped in markdown fences.
type invokeResponse struct {
	Response   string `json:"response"`
	TokensUsed int    `json:"tokens_used"`
	ModelUsed  string `json:"model_used,omitempty"`
	Provider   string `json:"provider,omitempty"`
}

// NewClient creates a model gateway client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		attempts:   cfg.MaxAttempts,
		backoff:    cfg.BackoffBase,
		logger:     logger,
	}
}

// Invoke implements gateway.ModelGateway.
func (c *Client) Invoke(ctx context.Context, promptID string, vars map[string]any, out any) error {
	tracer := otel.Tracer("sounder/gateway/llm")
	ctx, span := tracer.Start(ctx, "model.invoke")
	span.SetAttributes(attribute.String("prompt_id", promptID))
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	err := gateway.Retry(ctx, c.attempts, c.backoff, func(ctx context.Context) error {
		return c.invokeOnce(ctx, promptID, vars, out)
	})
	metrics.ModelGatewayLatency.WithLabelValues(promptID).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelGatewayErrors.WithLabelValues(promptID).Inc()
	}
	return err
}

func (c *Client) invokeOnce(ctx context.Context, promptID string, vars map[string]any, out any) error {
	body, err := json.Marshal(invokeRequest{
		PromptID:  promptID,
		Variables: vars,
		Context:   map[string]any{"response_format": map[string]any{"type": "json_object"}},
	})
	if err != nil {
		return fmt.Errorf("marshal invoke request: %w", err)
	}

	url := c.baseURL + "/agent/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &gateway.Error{Op: "invoke", Provider: "model-service", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &gateway.Error{Op: "invoke", Provider: "model-service", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &gateway.Error{
			Op:       "invoke",
			Provider: "model-service",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))),
		}
	}

	var wire invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return &gateway.Error{Op: "invoke", Provider: "model-service", Err: fmt.Errorf("decode envelope: %w", err)}
	}

	text := StripFences(wire.Response)
	if strings.TrimSpace(text) == "" {
		return &gateway.SchemaError{PromptID: promptID, Err: fmt.Errorf("empty response")}
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		c.logger.Warn("Model response is not valid JSON for requested shape",
			zap.String("prompt_id", promptID),
			zap.String("response", truncate(text, 512)),
		)
		return &gateway.SchemaError{PromptID: promptID, Err: err}
	}
	if v, ok := out.(gateway.Validator); ok {
		if err := v.Validate(); err != nil {
			return &gateway.SchemaError{PromptID: promptID, Err: err}
		}
	}
	metrics.ModelTokensUsed.Add(float64(wire.TokensUsed))
	return nil
}

// StripFences removes a surrounding markdown code fence from model output.
// Models frequently wrap JSON in ```json blocks despite instructions.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	// Some providers prepend prose; keep the outermost JSON object if one
	// exists.
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		if start := strings.Index(s, "{"); start != -1 {
			if end := strings.LastIndex(s, "}"); end > start {
				s = s[start : end+1]
			}
		}
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
