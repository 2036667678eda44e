package activities

import (
	"github.com/sounderhq/sounder/internal/config"
	"github.com/sounderhq/sounder/internal/models"
	"github.com/sounderhq/sounder/internal/session"
)

// Registered activity names. Workflows invoke activities by name so that
// tests can substitute implementations.
const (
	GetResearchConfigActivity   = "GetResearchConfig"
	FetchSessionContextActivity = "FetchSessionContext"
	PlanStrategyActivity        = "PlanStrategy"
	ResolveStepContextActivity  = "ResolveStepContext"
	ExecuteSearchActivity       = "ExecuteSearch"
	ScoreCandidatesActivity     = "ScoreCandidates"
	SynthesizeAnswerActivity    = "SynthesizeAnswer"
	PersistTurnActivity         = "PersistTurn"
	EmitProgressActivity        = "EmitProgress"
)

// Error types carried on non-retryable application errors. Structural
// contract violations from the model are fatal to the call; retrying the
// same malformed prompt only masks a prompt or schema defect.
const (
	PlanningErrorType  = "PlanningError"
	SynthesisErrorType = "SynthesisError"
)

// Prompt template identifiers understood by the model service.
const (
	PromptStrategy  = "research_strategy"
	PromptResolver  = "context_resolver"
	PromptRefiner   = "source_refiner"
	PromptSynthesis = "answer_synthesis"
)

// FetchSessionContextInput requests conversation context for a call.
// An empty SessionID creates a fresh session.
type FetchSessionContextInput struct {
	SessionID string `json:"session_id"`
}

// FetchSessionContextResult carries the session id actually in use and
// the recent conversation history.
type FetchSessionContextResult struct {
	SessionID string            `json:"session_id"`
	History   []session.Message `json:"history"`
}

// PlanStrategyInput asks the planner for an execution strategy.
type PlanStrategyInput struct {
	Question string            `json:"question"`
	History  []session.Message `json:"history,omitempty"`
	MaxSteps int               `json:"max_steps"`
}

// PlanStrategyResult wraps the validated strategy.
type PlanStrategyResult struct {
	Strategy models.Strategy `json:"strategy"`
}

// ResolveStepContextInput carries one step plan and the finished results
// of all prior steps.
type ResolveStepContextInput struct {
	Question         string              `json:"question"`
	Step             models.StepPlan     `json:"step"`
	PriorResults     []models.StepResult `json:"prior_results,omitempty"`
	MaxContextTokens int                 `json:"max_context_tokens"`
}

// ExecuteSearchInput is one search gateway call.
type ExecuteSearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// ExecuteSearchResult carries raw candidates. An empty list is a valid
// outcome, not an error.
type ExecuteSearchResult struct {
	Candidates []models.SourceCandidate `json:"candidates"`
}

// ScoreCandidatesInput asks the refiner to judge candidates against the
// resolved query.
type ScoreCandidatesInput struct {
	StepIndex          int                      `json:"step_index"`
	Query              string                   `json:"query"`
	Candidates         []models.SourceCandidate `json:"candidates"`
	RelevanceThreshold float64                  `json:"relevance_threshold"`
}

// ScoreCandidatesResult carries one judgement per scored candidate, with
// the acceptance flag already applied.
type ScoreCandidatesResult struct {
	Evidence []models.RefinedEvidence `json:"evidence"`
}

// SynthesizeAnswerInput carries the full accumulated evidence.
type SynthesizeAnswerInput struct {
	Question         string              `json:"question"`
	StepResults      []models.StepResult `json:"step_results"`
	MaxContextTokens int                 `json:"max_context_tokens"`
}

// SynthesizeAnswerResult wraps the final answer.
type SynthesizeAnswerResult struct {
	Answer models.Answer `json:"answer"`
}

// PersistTurnInput appends a finished turn to the session store and
// records the exchange in the session history.
type PersistTurnInput struct {
	SessionID string              `json:"session_id"`
	Turn      models.ResearchTurn `json:"turn"`
}

// PersistTurnResult reports the stored turn id.
type PersistTurnResult struct {
	TurnID string `json:"turn_id"`
}

// ResearchConfigSnapshot is the per-run snapshot of the hot-reloadable
// tuning knobs. Fetching it through an activity pins the values in
// workflow history, keeping replays deterministic.
type ResearchConfigSnapshot = config.ResearchConfig
