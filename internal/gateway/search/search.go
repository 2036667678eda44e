// Package search provides web search gateway adapters. The provider is
// selected at configuration time; the rest of the system depends only on
// the gateway.SearchGateway interface.
package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/gateway"
	"github.com/sounderhq/sounder/internal/metrics"
	"github.com/sounderhq/sounder/internal/models"
)

// Config holds search provider settings.
type Config struct {
	Provider    string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

// provider executes one raw search call. Implementations must treat an
// empty result list as a valid outcome, not an error.
type provider interface {
	name() string
	search(ctx context.Context, client *http.Client, query string, maxResults int) ([]models.SourceCandidate, error)
}

// Gateway wraps a provider with timeouts, bounded transport retries, and
// instrumentation.
type Gateway struct {
	provider   provider
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	logger     *zap.Logger
}

// New creates a search gateway for the configured provider.
func New(cfg Config, logger *zap.Logger) (*Gateway, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 250 * time.Millisecond
	}

	var p provider
	switch cfg.Provider {
	case "tavily":
		p = &tavilyProvider{apiKey: cfg.APIKey}
	case "serper":
		p = &serperProvider{apiKey: cfg.APIKey}
	default:
		return nil, fmt.Errorf("unsupported search provider %q", cfg.Provider)
	}

	return &Gateway{
		provider:   p,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		attempts:   cfg.MaxAttempts,
		backoff:    cfg.BackoffBase,
		logger:     logger,
	}, nil
}

// Search implements gateway.SearchGateway.
func (g *Gateway) Search(ctx context.Context, query string, maxResults int) ([]models.SourceCandidate, error) {
	tracer := otel.Tracer("sounder/gateway/search")
	ctx, span := tracer.Start(ctx, "search.query")
	span.SetAttributes(
		attribute.String("provider", g.provider.name()),
		attribute.Int("max_results", maxResults),
	)
	defer span.End()

	var results []models.SourceCandidate
	start := time.Now()
	err := gateway.Retry(ctx, g.attempts, g.backoff, func(ctx context.Context) error {
		var innerErr error
		results, innerErr = g.provider.search(ctx, g.httpClient, query, maxResults)
		return innerErr
	})
	metrics.SearchGatewayLatency.WithLabelValues(g.provider.name()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SearchGatewayErrors.WithLabelValues(g.provider.name()).Inc()
		return nil, err
	}

	g.logger.Debug("Search completed",
		zap.String("provider", g.provider.name()),
		zap.Int("results", len(results)),
	)
	return results, nil
}
