package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/othala/internal/noteservice"
	"github.com/starford/othala/internal/views"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(vs *views.Service, ns *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(vs, ns)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Views: build-and-return plus listing.
	r.Get("/views", h.ListViews)
	r.Get("/views/global", h.GlobalView)
	r.Get("/views/folder", h.FolderView)
	r.Get("/views/tag", h.TagView)
	r.Get("/views/search", h.SearchView)

	// View edits (the canvas's narrow write path).
	r.Post("/views/nodes", h.AddNode)
	r.Patch("/views/nodes/{id}", h.MoveNode)
	r.Post("/views/edges", h.AddEdge)

	// Notes, read-only.
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/*", h.GetNote)

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
