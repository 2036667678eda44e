package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Manager holds the live configuration and hot-reloads the research tuning
// knobs when the config file changes. Connection settings (gateways,
// stores, Temporal) are fixed at startup; only the research section is
// swapped at runtime.
type Manager struct {
	mu      sync.RWMutex
	current Config
	logger  *zap.Logger
}

// NewManager wraps a loaded configuration.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return &Manager{current: cfg, logger: logger}
}

// Research returns the current research tuning knobs.
func (m *Manager) Research() ResearchConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Research
}

// Config returns a copy of the full current configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Watch reloads the research section when the config file changes. It
// blocks until ctx is canceled and is intended to run in its own
// goroutine. A manager created from defaults (no file) returns
// immediately.
func (m *Manager) Watch(ctx context.Context) error {
	path := m.Config().Path
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	m.logger.Info("Watching config for changes", zap.String("path", path))

	// Editors replace files rather than writing in place, so debounce and
	// re-add after each event.
	var debounce *time.Timer
	reload := func() {
		cfg, err := Load()
		if err != nil {
			m.logger.Warn("Config reload failed, keeping previous values", zap.Error(err))
			return
		}
		m.mu.Lock()
		old := m.current.Research
		m.current.Research = cfg.Research
		m.mu.Unlock()
		if old != cfg.Research {
			m.logger.Info("Research config reloaded",
				zap.Int("max_steps", cfg.Research.MaxSteps),
				zap.Int("max_retries_per_step", cfg.Research.MaxRetriesPerStep),
				zap.Float64("relevance_threshold", cfg.Research.RelevanceThreshold),
			)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			_ = watcher.Add(path)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}
