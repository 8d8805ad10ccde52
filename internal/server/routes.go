package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Session routes
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Post("/view", s.setViewedSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Patch("/", s.updateSession)
			r.Delete("/", s.deleteSession)

			// Messages
			r.Get("/message", s.getMessages)
			r.Post("/message", s.sendMessage)

			// Session operations
			r.Post("/abort", s.abortSession)
			r.Post("/stop", s.stopSession)
			r.Post("/title", s.regenerateTitle)
			r.Get("/diff", s.getDiff)
		})
	})

	// Workspace routes
	r.Route("/workspace", func(r chi.Router) {
		r.Get("/", s.listWorkspaces)
		r.Post("/", s.createWorkspace)
		r.Post("/match", s.matchWorkspace)
	})

	// Event streaming (SSE)
	r.Get("/event", s.events)
}
