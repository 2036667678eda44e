// Package httpapi exposes the research service over HTTP: a synchronous
// research endpoint plus SSE and WebSocket progress streams.
package httpapi

import (
	"encoding/json"
	"net/http"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sounderhq/sounder/internal/config"
	"github.com/sounderhq/sounder/internal/streaming"
)

// Server holds the HTTP handler dependencies.
type Server struct {
	temporal client.Client
	hub      *streaming.Hub
	cfg      *config.Manager
	logger   *zap.Logger
}

// NewServer creates the API server.
func NewServer(temporal client.Client, hub *streaming.Hub, cfg *config.Manager, logger *zap.Logger) *Server {
	return &Server{temporal: temporal, hub: hub, cfg: cfg, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /research", s.handleResearch)
	mux.HandleFunc("GET /stream/sse", s.handleSSE)
	mux.HandleFunc("GET /stream/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
