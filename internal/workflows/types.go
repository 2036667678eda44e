package workflows

import (
	"github.com/sounderhq/sounder/internal/models"
)

// ResearchInput starts one research call. SessionID is optional; an empty
// or stale id gets a fresh session.
type ResearchInput struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// ResearchOutput is the terminal result of a research call.
type ResearchOutput struct {
	ResearchID  string              `json:"research_id"`
	SessionID   string              `json:"session_id,omitempty"`
	Strategy    models.Strategy     `json:"strategy"`
	StepResults []models.StepResult `json:"step_results"`
	Answer      models.Answer       `json:"answer"`
	DurationMS  int64               `json:"duration_ms"`
}
