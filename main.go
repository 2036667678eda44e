package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sounderhq/sounder/internal/activities"
	"github.com/sounderhq/sounder/internal/config"
	"github.com/sounderhq/sounder/internal/gateway/llm"
	searchgw "github.com/sounderhq/sounder/internal/gateway/search"
	"github.com/sounderhq/sounder/internal/httpapi"
	"github.com/sounderhq/sounder/internal/session"
	"github.com/sounderhq/sounder/internal/streaming"
	"github.com/sounderhq/sounder/internal/tracing"
	"github.com/sounderhq/sounder/internal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := buildLogger(cfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Observability.Tracing, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	cfgManager := config.NewManager(*cfg, logger)
	go func() {
		if err := cfgManager.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Config watcher stopped", zap.Error(err))
		}
	}()

	// Gateways.
	modelClient := llm.NewClient(llm.Config{
		BaseURL:      cfg.Model.BaseURL,
		Timeout:      cfg.ModelTimeout(),
		MaxAttempts:  cfg.Model.MaxAttempts,
		BackoffBase:  time.Duration(cfg.Model.BackoffMS) * time.Millisecond,
		RateLimitRPS: cfg.Model.RateLimitRPS,
	}, logger.Named("model"))

	searchClient, err := searchgw.New(searchgw.Config{
		Provider:    cfg.Search.Provider,
		APIKey:      os.Getenv("SEARCH_API_KEY"),
		Timeout:     cfg.SearchTimeout(),
		MaxAttempts: cfg.Search.MaxAttempts,
		BackoffBase: time.Duration(cfg.Search.BackoffMS) * time.Millisecond,
	}, logger.Named("search"))
	if err != nil {
		return fmt.Errorf("init search gateway: %w", err)
	}

	// Session continuity. Both stores are optional: a dead Redis or
	// database degrades to stateless research, not a dead service.
	var sessions *session.Manager
	if cfg.Session.RedisAddr != "" {
		sessions, err = session.NewManager(cfg.Session.RedisAddr, cfg.SessionTTL(),
			cfg.Session.HistoryLimit, logger.Named("session"))
		if err != nil {
			logger.Warn("Session manager unavailable, running stateless", zap.Error(err))
			sessions = nil
		} else {
			defer sessions.Close()
		}
	}

	var store *session.Store
	if cfg.Session.DSN != "" {
		store, err = session.NewStore(cfg.Session.Backend, cfg.Session.DSN, logger.Named("turnstore"))
		if err != nil {
			logger.Warn("Turn store unavailable, turns will not be persisted", zap.Error(err))
			store = nil
		} else {
			defer store.Close()
		}
	}

	hub := streaming.NewHub(256)

	acts, err := activities.New(modelClient, searchClient, sessions, store, hub, cfgManager, logger.Named("activities"))
	if err != nil {
		return fmt.Errorf("init activities: %w", err)
	}

	// Temporal worker.
	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    newZapAdapter(logger.Named("temporal")),
	})
	if err != nil {
		return fmt.Errorf("dial temporal: %w", err)
	}
	defer temporalClient.Close()

	w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ResearchWorkflow)
	registerActivities(w, acts)

	if err := w.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer w.Stop()

	// Metrics endpoint.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Observability.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// API endpoint.
	api := httpapi.NewServer(temporalClient, hub, cfgManager, logger.Named("httpapi"))
	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("API listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", zap.Error(err))
			stop()
		}
	}()

	logger.Info("Service started",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("search_provider", cfg.Search.Provider),
	)

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func registerActivities(w worker.Worker, acts *activities.Activities) {
	for name, fn := range map[string]any{
		activities.GetResearchConfigActivity:   acts.GetResearchConfig,
		activities.FetchSessionContextActivity: acts.FetchSessionContext,
		activities.PlanStrategyActivity:        acts.PlanStrategy,
		activities.ResolveStepContextActivity:  acts.ResolveStepContext,
		activities.ExecuteSearchActivity:       acts.ExecuteSearch,
		activities.ScoreCandidatesActivity:     acts.ScoreCandidates,
		activities.SynthesizeAnswerActivity:    acts.SynthesizeAnswer,
		activities.PersistTurnActivity:         acts.PersistTurn,
		activities.EmitProgressActivity:        acts.EmitProgress,
	} {
		w.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
	}
}
