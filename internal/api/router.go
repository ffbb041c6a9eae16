package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Analysis pipeline.
	r.Post("/analyze/note", h.AnalyzeNote)
	r.Post("/analyze/vault", h.AnalyzeVault)
	r.Post("/backlinks", h.Backlinks)

	// Change history and rollback.
	r.Get("/changes", h.Changes)
	r.Post("/changes/{id}/rollback", h.RollbackChange)
	r.Post("/sessions/{id}/rollback", h.RollbackSession)

	// Learned preferences.
	r.Get("/preferences", h.Preferences)
	r.Post("/preferences/analyze", h.AnalyzePreferences)

	// Read-only vault access.
	r.Get("/search", h.Search)
	r.Get("/notes/*", h.GetNote)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
