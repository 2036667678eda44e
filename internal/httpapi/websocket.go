package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API fronts trusted internal clients; origin policy belongs to
	// the ingress layer.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleWebSocket streams progress events for one research call over a
// WebSocket. Supports last_event_id resumption like the SSE endpoint.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	researchID := r.URL.Query().Get("research_id")
	if researchID == "" {
		writeError(w, http.StatusBadRequest, "research_id is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	since := lastEventID(r)
	ch := s.hub.Subscribe(researchID, 64)
	defer s.hub.Unsubscribe(researchID, ch)

	// Reader goroutine only detects close; clients do not send messages.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lastSeq := since
	for _, evt := range s.hub.ReplaySince(researchID, since) {
		if err := writeWSEvent(conn, evt); err != nil {
			return
		}
		lastSeq = evt.Seq
		if isTerminal(evt.Type) {
			return
		}
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Seq <= lastSeq {
				continue
			}
			lastSeq = evt.Seq
			if err := writeWSEvent(conn, evt); err != nil {
				return
			}
			if isTerminal(evt.Type) {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}
}

func writeWSEvent(conn *websocket.Conn, evt any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(evt)
}
