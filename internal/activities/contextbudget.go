package activities

import (
	"fmt"
	"strings"

	"github.com/sounderhq/sounder/internal/models"
)

// Rough chars-per-token ratio for budget accounting. Exact tokenization is
// the model service's concern; the budget only has to keep prompts bounded.
const charsPerToken = 4

func estimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// digestEvidence renders evidence as numbered prompt blocks, highest
// relevance first, dropping the tail once the token budget is exceeded. It
// returns the rendered digest and the evidence items actually included, in
// rendered order.
func digestEvidence(evidence []models.RefinedEvidence, maxTokens int) (string, []models.RefinedEvidence) {
	if len(evidence) == 0 {
		return "", nil
	}
	ranked := models.SortEvidenceByRelevance(evidence)

	var b strings.Builder
	included := make([]models.RefinedEvidence, 0, len(ranked))
	used := 0
	for _, ev := range ranked {
		text := ev.ExtractedText
		if text == "" {
			text = ev.Source.Snippet
		}
		block := fmt.Sprintf("[%d] %s (%s)\n%s\n\n",
			len(included), ev.Source.Title, ev.Source.URL, text)
		cost := estimateTokens(block)
		if used+cost > maxTokens && len(included) > 0 {
			break
		}
		b.WriteString(block)
		included = append(included, ev)
		used += cost
	}
	return strings.TrimRight(b.String(), "\n"), included
}

// acceptedEvidence flattens the accepted evidence of finished steps in step
// order.
func acceptedEvidence(results []models.StepResult) []models.RefinedEvidence {
	var out []models.RefinedEvidence
	for _, r := range results {
		for _, ev := range r.Evidence {
			if ev.Accepted {
				out = append(out, ev)
			}
		}
	}
	return out
}

// truncateForPrompt caps candidate content at maxChars, cutting on a word
// boundary where possible.
func truncateForPrompt(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	cut := s[:maxChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return cut + "..."
}
