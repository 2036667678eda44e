package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/activities"
	"github.com/sounderhq/sounder/internal/metrics"
	"github.com/sounderhq/sounder/internal/workflows"
)

// How long a finished call's replay buffer stays available to late
// stream subscribers.
const replayRetention = 5 * time.Minute

type researchRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// handleResearch starts a research workflow and blocks until the answer is
// ready. Clients wanting progress subscribe to /stream/sse or /stream/ws
// with the research_id returned in the X-Research-ID header, which is set
// before the body is written.
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question must not be empty")
		return
	}

	researchID := "research-" + uuid.New().String()
	w.Header().Set("X-Research-ID", researchID)

	opts := client.StartWorkflowOptions{
		ID:        researchID,
		TaskQueue: s.cfg.Config().Temporal.TaskQueue,
	}
	input := workflows.ResearchInput{
		Question:  req.Question,
		SessionID: req.SessionID,
	}

	metrics.ResearchCallsStarted.Inc()
	start := time.Now()

	run, err := s.temporal.ExecuteWorkflow(r.Context(), opts, workflows.ResearchWorkflow, input)
	if err != nil {
		s.logger.Error("Failed to start research workflow", zap.Error(err))
		metrics.ResearchCallsCompleted.WithLabelValues("error").Inc()
		writeError(w, http.StatusServiceUnavailable, "could not start research")
		return
	}

	var out workflows.ResearchOutput
	err = run.Get(r.Context(), &out)
	metrics.ResearchDuration.Observe(time.Since(start).Seconds())
	time.AfterFunc(replayRetention, func() { s.hub.Forget(researchID) })

	if err != nil {
		metrics.ResearchCallsCompleted.WithLabelValues("error").Inc()
		s.logger.Warn("Research call failed",
			zap.String("research_id", researchID),
			zap.Error(err),
		)
		writeError(w, statusForWorkflowError(err), err.Error())
		return
	}

	metrics.ResearchCallsCompleted.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, out)
}

// statusForWorkflowError maps pipeline failures to HTTP statuses: contract
// violations from the model are 502s (the upstream misbehaved), everything
// else is a 500.
func statusForWorkflowError(err error) int {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case activities.PlanningErrorType, activities.SynthesisErrorType:
			return http.StatusBadGateway
		}
	}
	var canceled *temporal.CanceledError
	if errors.As(err, &canceled) {
		return 499 // client closed request
	}
	return http.StatusInternalServerError
}
