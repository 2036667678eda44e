package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/activities"
	"github.com/sounderhq/sounder/internal/config"
	"github.com/sounderhq/sounder/internal/streaming"
)

func newTestServer(hub *streaming.Hub) *Server {
	return NewServer(nil, hub, config.NewManager(config.Defaults(), zap.NewNop()), zap.NewNop())
}

func TestResearchRequestValidation(t *testing.T) {
	srv := newTestServer(streaming.NewHub(16))
	handler := srv.Handler()

	t.Run("rejects invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/research", strings.NewReader("{nope"))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects empty question", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/research", strings.NewReader(`{"question":"   "}`))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects GET", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/research", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestHealth(t *testing.T) {
	srv := newTestServer(streaming.NewHub(16))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestSSERequiresResearchID(t *testing.T) {
	srv := newTestServer(streaming.NewHub(16))
	req := httptest.NewRequest(http.MethodGet, "/stream/sse", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSSEReplaysBufferedEventsUntilTerminal(t *testing.T) {
	hub := streaming.NewHub(16)
	srv := newTestServer(hub)

	hub.Publish(streaming.Event{ResearchID: "r1", Type: streaming.EventPlanning})
	hub.Publish(streaming.Event{ResearchID: "r1", Type: streaming.EventSearching, StepIndex: 0, Attempt: 1})
	hub.Publish(streaming.Event{ResearchID: "r1", Type: streaming.EventCompleted})

	req := httptest.NewRequest(http.MethodGet, "/stream/sse?research_id=r1", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	body := rr.Body.String()
	assert.Contains(t, body, "event: PLANNING")
	assert.Contains(t, body, "event: SEARCHING")
	assert.Contains(t, body, "event: COMPLETED")
	// Terminal event ends the stream; ordering is preserved.
	assert.Less(t, strings.Index(body, "PLANNING"), strings.Index(body, "COMPLETED"))
}

func TestSSEResumesFromLastEventID(t *testing.T) {
	hub := streaming.NewHub(16)
	srv := newTestServer(hub)

	hub.Publish(streaming.Event{ResearchID: "r1", Type: streaming.EventPlanning})  // seq 1
	hub.Publish(streaming.Event{ResearchID: "r1", Type: streaming.EventSearching}) // seq 2
	hub.Publish(streaming.Event{ResearchID: "r1", Type: streaming.EventCompleted}) // seq 3

	req := httptest.NewRequest(http.MethodGet, "/stream/sse?research_id=r1", nil)
	req.Header.Set("Last-Event-ID", "2")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	body := rr.Body.String()
	assert.NotContains(t, body, "event: PLANNING")
	assert.NotContains(t, body, "event: SEARCHING")
	assert.Contains(t, body, "event: COMPLETED")
	assert.Contains(t, body, "id: 3")
}

func TestLastEventID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stream/sse?last_event_id=7", nil)
	assert.Equal(t, uint64(7), lastEventID(req))

	req = httptest.NewRequest(http.MethodGet, "/stream/sse", nil)
	req.Header.Set("Last-Event-ID", "12")
	assert.Equal(t, uint64(12), lastEventID(req))

	req = httptest.NewRequest(http.MethodGet, "/stream/sse", nil)
	assert.Zero(t, lastEventID(req))

	req = httptest.NewRequest(http.MethodGet, "/stream/sse", nil)
	req.Header.Set("Last-Event-ID", "garbage")
	assert.Zero(t, lastEventID(req))
}

func TestStatusForWorkflowError(t *testing.T) {
	planning := temporal.NewNonRetryableApplicationError("bad plan", activities.PlanningErrorType, nil)
	assert.Equal(t, http.StatusBadGateway, statusForWorkflowError(planning))

	synthesis := temporal.NewNonRetryableApplicationError("bad answer", activities.SynthesisErrorType, nil)
	assert.Equal(t, http.StatusBadGateway, statusForWorkflowError(synthesis))

	assert.Equal(t, http.StatusInternalServerError, statusForWorkflowError(errors.New("boom")))
}
