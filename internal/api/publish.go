package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fnk59456/uwb-bridge/internal/auth"
	"github.com/fnk59456/uwb-bridge/internal/infrastructure/mqtt"
)

// maxPublishCount bounds one POST /publish request.
const maxPublishCount = 1000

// PublishRequest is the body of POST /publish. An empty body sends one
// record.
type PublishRequest struct {
	Count int `json:"count"`
}

// PublishResponse reports the records the bridge accepted.
type PublishResponse struct {
	Accepted  int      `json:"accepted"`
	Tickets   []uint64 `json:"tickets"`
	Sequences []uint64 `json:"sequences"`
	Error     string   `json:"error,omitempty"`
}

// handlePublish sends count generated records through the publisher,
// paced by the configured burst rate.
//
// Records accepted before a failure stay accepted; the response lists them
// alongside the error.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		writeUnavailable(w, "publisher is disabled")
		return
	}

	req := PublishRequest{Count: 1}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Count < 1 || req.Count > maxPublishCount {
		writeBadRequest(w, fmt.Sprintf("count must be between 1 and %d", maxPublishCount))
		return
	}

	tickets, err := s.trigger.SendN(r.Context(), req.Count, s.limiter())

	subject := ""
	if claims, ok := r.Context().Value(ctxKeyClaims).(*auth.Claims); ok {
		subject = claims.Subject
	}
	s.logger.Info("publish triggered",
		"requested", req.Count,
		"accepted", len(tickets),
		"subject", subject,
	)

	resp := PublishResponse{
		Accepted:  len(tickets),
		Tickets:   make([]uint64, 0, len(tickets)),
		Sequences: make([]uint64, 0, len(tickets)),
	}
	for _, t := range tickets {
		resp.Tickets = append(resp.Tickets, t.ID)
		resp.Sequences = append(resp.Sequences, t.Request.Sequence)
	}

	if err != nil {
		s.logger.Warn("publish request stopped early",
			"requested", req.Count,
			"accepted", len(tickets),
			"error", err,
		)
		resp.Error = err.Error()
		status := http.StatusInternalServerError
		if errors.Is(err, mqtt.ErrNotConnected) || errors.Is(err, mqtt.ErrShutdown) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}
