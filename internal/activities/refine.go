package activities

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/models"
)

// Candidates with less combined snippet and content than this are dropped
// before scoring; there is nothing for the refiner to judge.
const minCandidateContentChars = 50

// Cap per-candidate content in the refiner prompt.
const maxCandidateContentChars = 2000

type refineJudgement struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
	ExtractedText  string  `json:"extracted_text"`
}

type refineResponse struct {
	Judgements []refineJudgement `json:"judgements"`
}

func (r *refineResponse) Validate() error {
	if r.Judgements == nil {
		return fmt.Errorf("missing judgements")
	}
	return nil
}

// ScoreCandidates judges each candidate against the resolved query and
// applies the acceptance threshold. The model scores; the threshold
// decision stays here so acceptance is reproducible from the stored
// scores. An error fails the whole attempt and costs the caller one
// quality retry.
func (a *Activities) ScoreCandidates(ctx context.Context, in ScoreCandidatesInput) (ScoreCandidatesResult, error) {
	scorable := make([]models.SourceCandidate, 0, len(in.Candidates))
	for _, c := range in.Candidates {
		if len(c.Snippet)+len(c.RawContent) < minCandidateContentChars {
			a.logger.Debug("Dropping thin candidate", zap.String("url", c.URL))
			continue
		}
		scorable = append(scorable, c)
	}
	if len(scorable) == 0 {
		return ScoreCandidatesResult{}, nil
	}

	vars := map[string]any{
		"instructions": a.prompts.instructions(PromptRefiner),
		"query":        in.Query,
		"candidates":   renderCandidates(scorable),
	}

	var resp refineResponse
	if err := a.model.Invoke(ctx, PromptRefiner, vars, &resp); err != nil {
		a.logger.Warn("Candidate scoring failed",
			zap.Int("step", in.StepIndex),
			zap.Error(err),
		)
		return ScoreCandidatesResult{}, err
	}

	byIndex := make(map[int]refineJudgement, len(resp.Judgements))
	for _, j := range resp.Judgements {
		if j.Index >= 0 && j.Index < len(scorable) {
			byIndex[j.Index] = j
		}
	}

	evidence := make([]models.RefinedEvidence, 0, len(scorable))
	accepted := 0
	for i, c := range scorable {
		j := byIndex[i] // unjudged candidates score zero
		score := clampScore(j.RelevanceScore)
		extracted := strings.TrimSpace(j.ExtractedText)
		if extracted == "" {
			extracted = c.Snippet
		}
		ev := models.RefinedEvidence{
			StepIndex:      in.StepIndex,
			Source:         c,
			RelevanceScore: score,
			ExtractedText:  extracted,
			Accepted:       score > in.RelevanceThreshold,
		}
		if ev.Accepted {
			accepted++
		}
		evidence = append(evidence, ev)
	}

	a.logger.Debug("Candidates scored",
		zap.Int("step", in.StepIndex),
		zap.Int("scored", len(evidence)),
		zap.Int("accepted", accepted),
	)
	return ScoreCandidatesResult{Evidence: evidence}, nil
}

func renderCandidates(candidates []models.SourceCandidate) string {
	var b strings.Builder
	for i, c := range candidates {
		content := c.RawContent
		if content == "" {
			content = c.Snippet
		}
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n",
			i, c.Title, c.URL, truncateForPrompt(content, maxCandidateContentChars))
	}
	return strings.TrimRight(b.String(), "\n")
}

func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
