package api

import (
	"net/http"

	"github.com/fnk59456/uwb-bridge/internal/session"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// SessionResponse is returned by GET /session.
type SessionResponse struct {
	Session     session.Snapshot `json:"session"`
	QueueLength int              `json:"queue_length"`
}

// handleHealth reports 200 when the broker session is connected and every
// optional component is healthy, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		Version:    s.version,
		Components: map[string]string{"mqtt": "ok"},
	}

	if err := s.bridge.HealthCheck(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Components["mqtt"] = err.Error()
	}
	if s.sink != nil {
		resp.Components["influxdb"] = "ok"
		if err := s.sink.HealthCheck(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Components["influxdb"] = err.Error()
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleSession returns a snapshot of the broker session.
func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SessionResponse{
		Session:     s.bridge.Session().Snapshot(),
		QueueLength: s.bridge.QueueLength(),
	})
}
