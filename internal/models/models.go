package models

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ExecutionMode selects between a single search step and a chain of
// dependent steps.
type ExecutionMode string

const (
	ModeSingle ExecutionMode = "single"
	ModeChain  ExecutionMode = "chain"
)

// Confidence labels the answer's overall reliability.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

var (
	// ErrEmptyStrategy is returned when the planner produced no steps.
	ErrEmptyStrategy = errors.New("strategy has no steps")
)

// StepPlan is one planned unit of query -> search -> evidence work.
type StepPlan struct {
	Index             int    `json:"index"`
	DraftQuery        string `json:"draft_query"`
	DependsOnPrevious bool   `json:"depends_on_previous"`
	Purpose           string `json:"purpose,omitempty"`
}

// Strategy is the planner's ordered execution plan for one research call.
type Strategy struct {
	Mode          ExecutionMode `json:"mode"`
	Steps         []StepPlan    `json:"steps"`
	ReasonSummary string        `json:"reason_summary,omitempty"`
}

// Validate enforces the structural invariants of a plan: single means
// exactly one step, chain means at least two, indexes are sequential and
// the first step never depends on a predecessor.
func (s *Strategy) Validate() error {
	if len(s.Steps) == 0 {
		return ErrEmptyStrategy
	}
	switch s.Mode {
	case ModeSingle:
		if len(s.Steps) != 1 {
			return fmt.Errorf("single mode requires exactly 1 step, got %d", len(s.Steps))
		}
	case ModeChain:
		if len(s.Steps) < 2 {
			return fmt.Errorf("chain mode requires at least 2 steps, got %d", len(s.Steps))
		}
	default:
		return fmt.Errorf("unknown execution mode %q", s.Mode)
	}
	for i, step := range s.Steps {
		if step.Index != i {
			return fmt.Errorf("step %d has index %d, want %d", i, step.Index, i)
		}
		if strings.TrimSpace(step.DraftQuery) == "" {
			return fmt.Errorf("step %d has an empty draft query", i)
		}
	}
	if s.Steps[0].DependsOnPrevious {
		return errors.New("first step cannot depend on a previous step")
	}
	return nil
}

// ResolvedQuery is the final query text for one step, produced exactly once
// and immutable thereafter.
type ResolvedQuery struct {
	StepIndex  int    `json:"step_index"`
	Text       string `json:"text"`
	WasRefined bool   `json:"was_refined"`
	Rationale  string `json:"rationale,omitempty"`
}

// SourceCandidate is one raw search hit. Produced by the search gateway and
// never mutated afterwards.
type SourceCandidate struct {
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Domain     string    `json:"domain"`
	Snippet    string    `json:"snippet,omitempty"`
	RawContent string    `json:"raw_content,omitempty"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// RefinedEvidence is the scored judgement of one candidate against the
// resolved query for one attempt.
type RefinedEvidence struct {
	StepIndex      int             `json:"step_index"`
	Source         SourceCandidate `json:"source"`
	RelevanceScore float64         `json:"relevance_score"`
	ExtractedText  string          `json:"extracted_text"`
	Accepted       bool            `json:"accepted"`
}

// StepResult is the terminal outcome of one step: the resolved query, the
// accepted evidence, and whether the quality bar was met within the retry
// budget.
type StepResult struct {
	StepIndex     int               `json:"step_index"`
	ResolvedQuery ResolvedQuery     `json:"resolved_query"`
	Evidence      []RefinedEvidence `json:"evidence"`
	AttemptsUsed  int               `json:"attempts_used"`
	QualityMet    bool              `json:"quality_met"`
}

// Citation points at a source actually referenced by the final answer.
type Citation struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// Answer is the synthesized, citation-grounded result of a research call.
type Answer struct {
	Text              string     `json:"text"`
	Citations         []Citation `json:"citations"`
	Confidence        Confidence `json:"confidence"`
	ConflictsDetected bool       `json:"conflicts_detected"`
}

// ResearchTurn is the complete output of one research call, handed to the
// session store as an opaque append.
type ResearchTurn struct {
	Question    string       `json:"question"`
	Strategy    Strategy     `json:"strategy"`
	StepResults []StepResult `json:"step_results"`
	Answer      Answer       `json:"answer"`
	Timestamp   time.Time    `json:"timestamp"`
	DurationMS  int64        `json:"duration_ms,omitempty"`
}

// DedupeCitations removes duplicate citations by URL while preserving
// first-seen order.
func DedupeCitations(in []Citation) []Citation {
	if len(in) <= 1 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := make([]Citation, 0, len(in))
	for _, c := range in {
		key := strings.ToLower(strings.TrimSpace(c.URL))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// DeriveConfidence applies the deterministic confidence rule: high when
// every step met quality and no conflict was detected, low when no step
// produced accepted evidence at all, medium otherwise.
func DeriveConfidence(steps []StepResult, conflicts bool) Confidence {
	accepted := 0
	allQualityMet := len(steps) > 0
	for _, s := range steps {
		accepted += len(s.Evidence)
		if !s.QualityMet {
			allQualityMet = false
		}
	}
	if accepted == 0 {
		return ConfidenceLow
	}
	if allQualityMet && !conflicts {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}

// SortEvidenceByRelevance orders evidence by relevance score descending,
// keeping original retrieval order for ties. Used when truncating prompt
// context to a token budget.
func SortEvidenceByRelevance(in []RefinedEvidence) []RefinedEvidence {
	out := make([]RefinedEvidence, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

// ExtractDomain returns the registrable host of a URL without the www
// prefix, falling back to the raw string when it does not parse.
func ExtractDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
