package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/streaming"
)

const heartbeatInterval = 15 * time.Second

// handleSSE streams progress events for one research call as Server-Sent
// Events. A Last-Event-ID header (or last_event_id query param) resumes
// from the replay buffer.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	researchID := r.URL.Query().Get("research_id")
	if researchID == "" {
		writeError(w, http.StatusBadRequest, "research_id is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	since := lastEventID(r)
	ch := s.hub.Subscribe(researchID, 64)
	defer s.hub.Unsubscribe(researchID, ch)

	// Replay after subscribing so no event falls between the two.
	lastSeq := since
	for _, evt := range s.hub.ReplaySince(researchID, since) {
		writeSSEEvent(w, evt)
		lastSeq = evt.Seq
		if isTerminal(evt.Type) {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Seq <= lastSeq {
				continue
			}
			lastSeq = evt.Seq
			writeSSEEvent(w, evt)
			flusher.Flush()
			if isTerminal(evt.Type) {
				s.logger.Debug("SSE stream finished",
					zap.String("research_id", researchID),
					zap.Uint64("last_seq", evt.Seq),
				)
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt streaming.Event) {
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Type, evt.Marshal())
}

func lastEventID(r *http.Request) uint64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("last_event_id")
	}
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func isTerminal(t streaming.EventType) bool {
	return t == streaming.EventCompleted || t == streaming.EventFailed
}
