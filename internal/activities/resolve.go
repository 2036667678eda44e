package activities

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/models"
)

type resolveResponse struct {
	RefinedQuery string `json:"refined_query"`
	Rationale    string `json:"rationale"`
}

// ResolveStepContext produces the final query text for one step. Steps that
// do not depend on prior results pass their draft through untouched; for
// dependent steps the resolver substitutes facts from earlier evidence into
// the draft. Resolution failure is never fatal: the draft query is always a
// usable fallback.
func (a *Activities) ResolveStepContext(ctx context.Context, in ResolveStepContextInput) (models.ResolvedQuery, error) {
	draft := strings.TrimSpace(in.Step.DraftQuery)
	unrefined := models.ResolvedQuery{
		StepIndex:  in.Step.Index,
		Text:       draft,
		WasRefined: false,
	}

	if !in.Step.DependsOnPrevious {
		return unrefined, nil
	}
	prior := acceptedEvidence(in.PriorResults)
	if len(prior) == 0 {
		// Dependent step with nothing to depend on. Runs with its draft.
		a.logger.Debug("No prior evidence for dependent step",
			zap.Int("step", in.Step.Index))
		return unrefined, nil
	}

	digest, _ := digestEvidence(prior, in.MaxContextTokens)
	vars := map[string]any{
		"instructions": a.prompts.instructions(PromptResolver),
		"question":     in.Question,
		"draft_query":  draft,
		"findings":     digest,
	}

	var resp resolveResponse
	if err := a.model.Invoke(ctx, PromptResolver, vars, &resp); err != nil {
		a.logger.Warn("Context resolution failed, using draft query",
			zap.Int("step", in.Step.Index),
			zap.Error(err),
		)
		return unrefined, nil
	}

	refined := strings.TrimSpace(resp.RefinedQuery)
	if refined == "" || refined == draft {
		return unrefined, nil
	}
	return models.ResolvedQuery{
		StepIndex:  in.Step.Index,
		Text:       refined,
		WasRefined: true,
		Rationale:  resp.Rationale,
	}, nil
}
