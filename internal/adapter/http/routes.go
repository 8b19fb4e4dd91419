package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	if h.WS != nil {
		r.Handle("/ws", h.WS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Providers
		r.Get("/providers", h.ListProviders)
		r.Post("/providers", h.CreateProvider)
		r.Put("/providers/{id}", h.UpdateProvider)
		r.Delete("/providers/{id}", h.DeleteProvider)
		r.Post("/providers/{id}/test", h.TestProviderConnection)
		r.Get("/providers/{id}/repos", h.ListProviderRepositories)

		// Sessions
		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions", h.CreateSession)
		r.Get("/sessions/{id}", h.GetSession)
		r.Delete("/sessions/{id}", h.DeleteSession)
		r.Get("/sessions/{id}/logs", h.ListSessionLogs)

		// Runtime operations
		r.Post("/sessions/{id}/git", h.RunSessionGitCommand)
		r.Get("/sessions/{id}/context", h.ExportSessionContext)
		r.Post("/sessions/{id}/start", h.StartSessionContainer)
	})
}
