package activities

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/metrics"
	"github.com/sounderhq/sounder/internal/models"
)

type synthesisResponse struct {
	Answer            string `json:"answer"`
	SourceIndices     []int  `json:"source_indices"`
	ConflictsDetected bool   `json:"conflicts_detected"`
}

func (r *synthesisResponse) Validate() error {
	if strings.TrimSpace(r.Answer) == "" {
		return fmt.Errorf("empty answer text")
	}
	return nil
}

// SynthesizeAnswer produces the final answer from all accumulated evidence.
// The model writes the text and flags conflicts; citation assembly and the
// confidence rule stay deterministic on this side. Model failure here is
// fatal to the call.
func (a *Activities) SynthesizeAnswer(ctx context.Context, in SynthesizeAnswerInput) (SynthesizeAnswerResult, error) {
	evidence := acceptedEvidence(in.StepResults)
	if len(evidence) == 0 {
		// Nothing to ground an answer in. Degrade honestly instead of
		// asking the model to speculate.
		answer := models.Answer{
			Text:       "No sufficiently relevant sources were found for this question, so a grounded answer cannot be given.",
			Citations:  []models.Citation{},
			Confidence: models.ConfidenceLow,
		}
		a.recordAnswer(answer, in.StepResults)
		return SynthesizeAnswerResult{Answer: answer}, nil
	}

	digest, included := digestEvidence(evidence, in.MaxContextTokens)
	vars := map[string]any{
		"instructions": a.prompts.instructions(PromptSynthesis),
		"question":     in.Question,
		"evidence":     digest,
	}

	var resp synthesisResponse
	if err := a.model.Invoke(ctx, PromptSynthesis, vars, &resp); err != nil {
		a.logger.Error("Answer synthesis failed", zap.Error(err))
		return SynthesizeAnswerResult{}, temporal.NewNonRetryableApplicationError(
			"answer synthesis failed", SynthesisErrorType, err)
	}

	cited := make([]models.RefinedEvidence, 0, len(resp.SourceIndices))
	for _, idx := range resp.SourceIndices {
		if idx >= 0 && idx < len(included) {
			cited = append(cited, included[idx])
		}
	}
	if len(cited) == 0 {
		// The model cited nothing usable; fall back to everything it saw.
		cited = included
	}

	citations := make([]models.Citation, 0, len(cited))
	for _, ev := range cited {
		citations = append(citations, models.Citation{
			Title:  ev.Source.Title,
			URL:    ev.Source.URL,
			Domain: ev.Source.Domain,
		})
	}

	answer := models.Answer{
		Text:              strings.TrimSpace(resp.Answer),
		Citations:         models.DedupeCitations(citations),
		Confidence:        models.DeriveConfidence(in.StepResults, resp.ConflictsDetected),
		ConflictsDetected: resp.ConflictsDetected,
	}
	a.recordAnswer(answer, in.StepResults)
	return SynthesizeAnswerResult{Answer: answer}, nil
}

func (a *Activities) recordAnswer(answer models.Answer, steps []models.StepResult) {
	metrics.AnswerConfidence.WithLabelValues(string(answer.Confidence)).Inc()
	if answer.ConflictsDetected {
		metrics.ConflictsDetected.Inc()
	}
	for _, s := range steps {
		metrics.StepAttempts.Observe(float64(s.AttemptsUsed))
		metrics.AcceptedSources.Observe(float64(len(s.Evidence)))
		if !s.QualityMet {
			metrics.StepsDegraded.Inc()
		}
	}
	a.logger.Info("Answer synthesized",
		zap.String("confidence", string(answer.Confidence)),
		zap.Int("citations", len(answer.Citations)),
		zap.Bool("conflicts", answer.ConflictsDetected),
	)
}
