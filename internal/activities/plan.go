package activities

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/models"
	"github.com/sounderhq/sounder/internal/session"
)

// planResponse is the planner's wire shape.
type planResponse struct {
	Mode          models.ExecutionMode `json:"mode"`
	Steps         []models.StepPlan    `json:"steps"`
	ReasonSummary string               `json:"reason_summary"`
}

func (r *planResponse) Validate() error {
	s := models.Strategy{Mode: r.Mode, Steps: r.Steps, ReasonSummary: r.ReasonSummary}
	return s.Validate()
}

// PlanStrategy asks the planner for an execution strategy and validates it.
// Any failure here is fatal to the research call: there is nothing to
// degrade to without a plan.
func (a *Activities) PlanStrategy(ctx context.Context, in PlanStrategyInput) (PlanStrategyResult, error) {
	vars := map[string]any{
		"instructions": a.prompts.instructions(PromptStrategy),
		"question":     in.Question,
		"max_steps":    in.MaxSteps,
	}
	if len(in.History) > 0 {
		vars["history"] = renderHistory(in.History)
	}

	var resp planResponse
	if err := a.model.Invoke(ctx, PromptStrategy, vars, &resp); err != nil {
		a.logger.Error("Strategy planning failed", zap.Error(err))
		return PlanStrategyResult{}, temporal.NewNonRetryableApplicationError(
			"strategy planning failed", PlanningErrorType, err)
	}

	strategy := models.Strategy{
		Mode:          resp.Mode,
		Steps:         resp.Steps,
		ReasonSummary: resp.ReasonSummary,
	}
	clampSteps(&strategy, in.MaxSteps)
	if err := strategy.Validate(); err != nil {
		return PlanStrategyResult{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("planner returned an invalid strategy: %v", err), PlanningErrorType, err)
	}

	a.logger.Info("Strategy planned",
		zap.String("mode", string(strategy.Mode)),
		zap.Int("steps", len(strategy.Steps)),
	)
	return PlanStrategyResult{Strategy: strategy}, nil
}

// clampSteps truncates an over-long plan to the step limit instead of
// failing the call, downgrading to single mode when one step remains.
func clampSteps(s *models.Strategy, maxSteps int) {
	if maxSteps <= 0 || len(s.Steps) <= maxSteps {
		return
	}
	s.Steps = s.Steps[:maxSteps]
	if len(s.Steps) == 1 {
		s.Mode = models.ModeSingle
	}
}

func renderHistory(history []session.Message) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(truncateForPrompt(m.Content, 500))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
