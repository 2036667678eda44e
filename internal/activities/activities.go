// Package activities implements the pipeline's side-effecting units: every
// model call, search call, and persistence write happens here, behind the
// workflow's deterministic boundary.
package activities

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/config"
	"github.com/sounderhq/sounder/internal/gateway"
	"github.com/sounderhq/sounder/internal/session"
	"github.com/sounderhq/sounder/internal/streaming"
)

// Activities bundles the dependencies shared by all activity
// implementations.
type Activities struct {
	model    gateway.ModelGateway
	search   gateway.SearchGateway
	sessions *session.Manager
	store    *session.Store
	hub      *streaming.Hub
	cfg      *config.Manager
	prompts  promptSet
	logger   *zap.Logger
}

// New wires the activity set. sessions and store may be nil when session
// continuity is disabled; the session activities then degrade to no-ops.
func New(
	model gateway.ModelGateway,
	search gateway.SearchGateway,
	sessions *session.Manager,
	store *session.Store,
	hub *streaming.Hub,
	cfg *config.Manager,
	logger *zap.Logger,
) (*Activities, error) {
	prompts, err := loadPrompts()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	return &Activities{
		model:    model,
		search:   search,
		sessions: sessions,
		store:    store,
		hub:      hub,
		cfg:      cfg,
		prompts:  prompts,
		logger:   logger,
	}, nil
}

// GetResearchConfig snapshots the hot-reloadable tuning knobs for one run.
func (a *Activities) GetResearchConfig(ctx context.Context) (ResearchConfigSnapshot, error) {
	return a.cfg.Research(), nil
}
