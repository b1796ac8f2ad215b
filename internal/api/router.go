package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fnk59456/uwb-bridge/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/session", s.handleSession)

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", s.handleListMessages)
			r.Get("/latest", s.handleLatestMessage)
		})

		r.With(s.requireScope(auth.ScopePublish)).Post("/publish", s.handlePublish)

		// WebSocket stream of inbound messages
		r.Get("/stream", s.handleStream)
	})

	return r
}
