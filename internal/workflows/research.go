// Package workflows holds the deterministic orchestration of research
// calls. All model, search, and persistence effects run through activities;
// the workflow owns ordering, the quality-retry loop, and degradation.
package workflows

import (
	"errors"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sounderhq/sounder/internal/activities"
	"github.com/sounderhq/sounder/internal/models"
	"github.com/sounderhq/sounder/internal/streaming"
)

// ResearchWorkflow runs one research call end to end:
// plan -> (resolve -> search -> refine)* -> synthesize.
//
// Each step gets a bounded quality-retry budget; a step that exhausts it
// degrades with its best attempt's evidence instead of failing the call.
// Only planning and synthesis failures are fatal.
func ResearchWorkflow(ctx workflow.Context, input ResearchInput) (ResearchOutput, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return ResearchOutput{}, errors.New("question must not be empty")
	}

	logger := workflow.GetLogger(ctx)
	researchID := workflow.GetInfo(ctx).WorkflowExecution.ID
	started := workflow.Now(ctx)

	// Transport retries live inside the gateway adapters; Temporal gets
	// one attempt per activity so a quality retry is never doubled by a
	// transport retry.
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var cfg activities.ResearchConfigSnapshot
	if err := workflow.ExecuteActivity(ctx, activities.GetResearchConfigActivity).Get(ctx, &cfg); err != nil {
		return ResearchOutput{}, err
	}

	var sess activities.FetchSessionContextResult
	if err := workflow.ExecuteActivity(ctx, activities.FetchSessionContextActivity,
		activities.FetchSessionContextInput{SessionID: input.SessionID}).Get(ctx, &sess); err != nil {
		logger.Warn("Session context unavailable, continuing without history", "error", err)
		sess = activities.FetchSessionContextResult{SessionID: input.SessionID}
	}

	emit(ctx, streaming.Event{ResearchID: researchID, Type: streaming.EventPlanning})

	var plan activities.PlanStrategyResult
	err := workflow.ExecuteActivity(ctx, activities.PlanStrategyActivity, activities.PlanStrategyInput{
		Question: question,
		History:  sess.History,
		MaxSteps: cfg.MaxSteps,
	}).Get(ctx, &plan)
	if err != nil {
		emitTerminal(ctx, streaming.Event{
			ResearchID: researchID,
			Type:       streaming.EventFailed,
			Message:    "planning failed",
		})
		return ResearchOutput{}, err
	}
	strategy := plan.Strategy
	logger.Info("Executing strategy", "mode", strategy.Mode, "steps", len(strategy.Steps))

	results := make([]models.StepResult, 0, len(strategy.Steps))
	for i := 0; i < len(strategy.Steps); {
		// Cancellation is honored between steps, never mid-attempt.
		if ctx.Err() != nil {
			emitTerminal(ctx, streaming.Event{
				ResearchID: researchID,
				Type:       streaming.EventFailed,
				Message:    "canceled",
			})
			return ResearchOutput{}, temporal.NewCanceledError("research canceled at step boundary")
		}

		// Consecutive independent steps run concurrently; a dependent step
		// waits for everything before it.
		j := i
		if !strategy.Steps[i].DependsOnPrevious {
			for j+1 < len(strategy.Steps) && !strategy.Steps[j+1].DependsOnPrevious {
				j++
			}
		}
		group := strategy.Steps[i : j+1]

		if len(group) == 1 {
			results = append(results, executeStep(ctx, researchID, question, group[0], results, cfg))
		} else {
			results = append(results, executeGroup(ctx, researchID, question, group, results, cfg)...)
		}
		i = j + 1
	}

	emit(ctx, streaming.Event{ResearchID: researchID, Type: streaming.EventSynthesizing})

	var synth activities.SynthesizeAnswerResult
	err = workflow.ExecuteActivity(ctx, activities.SynthesizeAnswerActivity, activities.SynthesizeAnswerInput{
		Question:         question,
		StepResults:      results,
		MaxContextTokens: cfg.MaxContextTokens,
	}).Get(ctx, &synth)
	if err != nil {
		emitTerminal(ctx, streaming.Event{
			ResearchID: researchID,
			Type:       streaming.EventFailed,
			Message:    "synthesis failed",
		})
		return ResearchOutput{}, err
	}

	output := ResearchOutput{
		ResearchID:  researchID,
		SessionID:   sess.SessionID,
		Strategy:    strategy,
		StepResults: results,
		Answer:      synth.Answer,
		DurationMS:  workflow.Now(ctx).Sub(started).Milliseconds(),
	}

	// The answer exists; failing the call over a persistence hiccup would
	// throw it away.
	persistCtx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	persistCtx = workflow.WithActivityOptions(persistCtx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	var persisted activities.PersistTurnResult
	if err := workflow.ExecuteActivity(persistCtx, activities.PersistTurnActivity, activities.PersistTurnInput{
		SessionID: sess.SessionID,
		Turn: models.ResearchTurn{
			Question:    question,
			Strategy:    strategy,
			StepResults: results,
			Answer:      synth.Answer,
			Timestamp:   started,
			DurationMS:  output.DurationMS,
		},
	}).Get(persistCtx, &persisted); err != nil {
		logger.Warn("Turn persistence failed", "error", err)
	}

	emitTerminal(ctx, streaming.Event{
		ResearchID: researchID,
		Type:       streaming.EventCompleted,
		Message:    string(synth.Answer.Confidence),
	})
	return output, nil
}

// executeGroup runs independent steps concurrently, at most
// StepWorkerLimit at a time, and returns their results in step order.
func executeGroup(
	ctx workflow.Context,
	researchID, question string,
	group []models.StepPlan,
	prior []models.StepResult,
	cfg activities.ResearchConfigSnapshot,
) []models.StepResult {
	results := make([]models.StepResult, len(group))
	limit := cfg.StepWorkerLimit
	if limit <= 0 {
		limit = 1
	}
	for start := 0; start < len(group); start += limit {
		end := start + limit
		if end > len(group) {
			end = len(group)
		}
		wg := workflow.NewWaitGroup(ctx)
		for k := start; k < end; k++ {
			k := k
			wg.Add(1)
			workflow.Go(ctx, func(gctx workflow.Context) {
				defer wg.Done()
				results[k] = executeStep(gctx, researchID, question, group[k], prior, cfg)
			})
		}
		wg.Wait(ctx)
	}
	return results
}

// executeStep resolves the step's query once, then runs the bounded
// search/refine loop. It always returns a result; quality exhaustion
// degrades to the best attempt's evidence.
func executeStep(
	ctx workflow.Context,
	researchID, question string,
	step models.StepPlan,
	prior []models.StepResult,
	cfg activities.ResearchConfigSnapshot,
) models.StepResult {
	logger := workflow.GetLogger(ctx)

	emit(ctx, streaming.Event{
		ResearchID: researchID,
		Type:       streaming.EventResolving,
		StepIndex:  step.Index,
	})

	unrefined := models.ResolvedQuery{
		StepIndex: step.Index,
		Text:      strings.TrimSpace(step.DraftQuery),
	}
	var resolved models.ResolvedQuery
	if err := workflow.ExecuteActivity(ctx, activities.ResolveStepContextActivity, activities.ResolveStepContextInput{
		Question:         question,
		Step:             step,
		PriorResults:     prior,
		MaxContextTokens: cfg.MaxContextTokens,
	}).Get(ctx, &resolved); err != nil {
		logger.Warn("Query resolution failed, using draft", "step", step.Index, "error", err)
		resolved = unrefined
	}
	// A refined query must be non-empty and actually differ from the draft.
	if resolved.WasRefined &&
		(strings.TrimSpace(resolved.Text) == "" || resolved.Text == unrefined.Text) {
		resolved = unrefined
	}

	maxAttempts := cfg.MaxRetriesPerStep + 1
	var best []models.RefinedEvidence
	bestScore := -1.0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		query := resolved.Text
		if attempt > 1 {
			query = Broaden(resolved.Text, attempt)
		}

		emit(ctx, streaming.Event{
			ResearchID: researchID,
			Type:       streaming.EventSearching,
			StepIndex:  step.Index,
			Attempt:    attempt,
			Message:    query,
		})

		var found activities.ExecuteSearchResult
		if err := workflow.ExecuteActivity(ctx, activities.ExecuteSearchActivity, activities.ExecuteSearchInput{
			Query:      query,
			MaxResults: cfg.MaxResultsPerSearch,
		}).Get(ctx, &found); err != nil {
			// A dead search provider costs this attempt, nothing more.
			logger.Warn("Search attempt failed", "step", step.Index, "attempt", attempt, "error", err)
		}

		var accepted []models.RefinedEvidence
		if len(found.Candidates) > 0 {
			emit(ctx, streaming.Event{
				ResearchID: researchID,
				Type:       streaming.EventRefining,
				StepIndex:  step.Index,
				Attempt:    attempt,
			})
			var scored activities.ScoreCandidatesResult
			if err := workflow.ExecuteActivity(ctx, activities.ScoreCandidatesActivity, activities.ScoreCandidatesInput{
				StepIndex:          step.Index,
				Query:              query,
				Candidates:         found.Candidates,
				RelevanceThreshold: cfg.RelevanceThreshold,
			}).Get(ctx, &scored); err != nil {
				logger.Warn("Refinement attempt failed", "step", step.Index, "attempt", attempt, "error", err)
			}
			for _, ev := range scored.Evidence {
				if ev.Accepted {
					accepted = append(accepted, ev)
				}
			}
		}

		if score := evidenceScore(accepted); score > bestScore {
			bestScore = score
			best = accepted
		}

		if sufficient(accepted, cfg.MinAcceptedSourcesPerStep) {
			emit(ctx, streaming.Event{
				ResearchID: researchID,
				Type:       streaming.EventStepDone,
				StepIndex:  step.Index,
				Attempt:    attempt,
			})
			return models.StepResult{
				StepIndex:     step.Index,
				ResolvedQuery: resolved,
				Evidence:      accepted,
				AttemptsUsed:  attempt,
				QualityMet:    true,
			}
		}

		if attempt < maxAttempts {
			emit(ctx, streaming.Event{
				ResearchID: researchID,
				Type:       streaming.EventRetrying,
				StepIndex:  step.Index,
				Attempt:    attempt + 1,
			})
		}
	}

	logger.Info("Step degraded after exhausting retries",
		"step", step.Index, "accepted", len(best))
	emit(ctx, streaming.Event{
		ResearchID: researchID,
		Type:       streaming.EventStepDone,
		StepIndex:  step.Index,
		Attempt:    maxAttempts,
		Message:    "quality not met",
	})
	return models.StepResult{
		StepIndex:     step.Index,
		ResolvedQuery: resolved,
		Evidence:      best,
		AttemptsUsed:  maxAttempts,
		QualityMet:    false,
	}
}

// sufficient applies the step quality bar: enough accepted sources, and
// when there are two or more they must not all come from one domain.
func sufficient(accepted []models.RefinedEvidence, minAccepted int) bool {
	if minAccepted < 1 {
		minAccepted = 1
	}
	if len(accepted) < minAccepted {
		return false
	}
	if len(accepted) < 2 {
		return true
	}
	domains := make(map[string]bool, len(accepted))
	for _, ev := range accepted {
		domains[ev.Source.Domain] = true
	}
	return len(domains) >= 2
}

func evidenceScore(accepted []models.RefinedEvidence) float64 {
	total := 0.0
	for _, ev := range accepted {
		total += ev.RelevanceScore
	}
	return total
}

// emit publishes a progress event fire-and-forget.
func emit(ctx workflow.Context, evt streaming.Event) {
	evt.Timestamp = workflow.Now(ctx)
	ectx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	_ = workflow.ExecuteActivity(ectx, activities.EmitProgressActivity, evt)
}

// emitTerminal publishes a terminal event on a disconnected context so it
// still goes out when the workflow is being canceled.
func emitTerminal(ctx workflow.Context, evt streaming.Event) {
	dctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	evt.Timestamp = workflow.Now(dctx)
	dctx = workflow.WithActivityOptions(dctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	_ = workflow.ExecuteActivity(dctx, activities.EmitProgressActivity, evt).Get(dctx, nil)
}
