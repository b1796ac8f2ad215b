package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fnk59456/uwb-bridge/internal/monitor"
)

// defaultMessageLimit caps GET /messages when no limit is given.
const defaultMessageLimit = 100

// MessagesResponse is returned by GET /messages.
type MessagesResponse struct {
	Count    int             `json:"count"`
	Total    uint64          `json:"total"`
	Messages []monitor.Entry `json:"messages"`
}

// handleListMessages returns recent inbound messages, newest first.
//
// Query parameters: topic, gateway, content, since (RFC 3339) and limit
// (default 100, 0 for everything buffered).
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	limit := defaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries := s.recorder.Recent(filter, limit)
	if entries == nil {
		entries = []monitor.Entry{}
	}
	writeJSON(w, http.StatusOK, MessagesResponse{
		Count:    len(entries),
		Total:    s.recorder.Total(),
		Messages: entries,
	})
}

// handleLatestMessage returns the newest message, optionally for one topic.
func (s *Server) handleLatestMessage(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	e, ok := s.recorder.Latest(topic)
	if !ok {
		writeNotFound(w, "no messages recorded")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// parseFilter reads the message filter shared by /messages and /stream.
func parseFilter(r *http.Request) (monitor.Filter, error) {
	q := r.URL.Query()
	f := monitor.Filter{
		Topic:   q.Get("topic"),
		Gateway: q.Get("gateway"),
		Content: q.Get("content"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return monitor.Filter{}, errors.New("since must be an RFC 3339 timestamp")
		}
		f.Since = since
	}
	return f, nil
}
