package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/noteservice"
	"github.com/starford/othala/internal/views"
)

// Handler holds API route handlers.
type Handler struct {
	views *views.Service
	notes *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(vs *views.Service, ns *noteservice.Service) *Handler {
	return &Handler{views: vs, notes: ns}
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// GlobalView handles GET /api/views/global.
//
//	@Summary		Build and return the vault-wide view
//	@Tags			views
//	@Produce		json
//	@Success		200	{object}	ViewDocument
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/global [get]
func (h *Handler) GlobalView(w http.ResponseWriter, r *http.Request) {
	doc, err := h.views.BuildGlobal(r.Context())
	h.writeView(w, doc, err)
}

// FolderView handles GET /api/views/folder.
//
//	@Summary		Build and return the view of one vault directory
//	@Tags			views
//	@Produce		json
//	@Param			dir			query		string	false	"Folder path relative to the vault root"
//	@Param			recursive	query		bool	false	"Include subfolders"
//	@Param			limit		query		int		false	"Max items"
//	@Success		200			{object}	ViewDocument
//	@Failure		400			{object}	errResponse
//	@Failure		503			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/folder [get]
func (h *Handler) FolderView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := &views.Options{}
	if v := q.Get("recursive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("recursive must be a boolean"))
			return
		}
		opts.Recursive = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		opts.Limit = &n
	}
	doc, err := h.views.BuildFolder(r.Context(), q.Get("dir"), opts)
	h.writeView(w, doc, err)
}

// TagView handles GET /api/views/tag.
//
//	@Summary		Build and return the view of all notes carrying a tag
//	@Tags			views
//	@Produce		json
//	@Param			tag	query		string	true	"Tag, with or without leading #"
//	@Success		200	{object}	ViewDocument
//	@Failure		400	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/tag [get]
func (h *Handler) TagView(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if strings.TrimSpace(strings.TrimPrefix(tag, "#")) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'tag' is required"))
		return
	}
	doc, err := h.views.BuildTag(r.Context(), tag)
	h.writeView(w, doc, err)
}

// SearchView handles GET /api/views/search.
//
//	@Summary		Build and return the view of a full-text query's results
//	@Tags			views
//	@Produce		json
//	@Param			q	query		string	true	"Search query"
//	@Success		200	{object}	ViewDocument
//	@Failure		400	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/search [get]
func (h *Handler) SearchView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	doc, err := h.views.BuildSearch(r.Context(), q)
	h.writeView(w, doc, err)
}

// writeView maps a build result onto the wire. A build that succeeded
// but could not be persisted still serves its document; the next build
// retries the write.
func (h *Handler) writeView(w http.ResponseWriter, doc *views.Document, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, doc)
	case doc != nil:
		slog.Warn("view save failed, serving built document",
			slog.String("view", doc.ViewID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, doc)
	case errors.Is(err, apperr.ErrIndexNotReady):
		writeRetryAfter(w, 2, "index rebuilding, retry shortly")
	default:
		slog.Error("view build failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListViews handles GET /api/views.
//
//	@Summary		List persisted view documents
//	@Tags			views
//	@Produce		json
//	@Success		200	{object}	ViewListResponse
//	@Security		BearerAuth
//	@Router			/views [get]
func (h *Handler) ListViews(w http.ResponseWriter, r *http.Request) {
	items, err := h.views.ListViews(r.Context())
	if err != nil {
		slog.Error("list views failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"views": items,
	})
}

// AddNode handles POST /api/views/nodes.
//
//	@Summary		Drop a text annotation onto a view
//	@Tags			views
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddNodeRequest	true	"Node to add"
//	@Success		200		{object}	ViewDocument
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/nodes [post]
func (h *Handler) AddNode(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req AddNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("text is required"))
		return
	}
	ref, ok := viewRef(w, req.Kind, req.Selector)
	if !ok {
		return
	}
	doc, err := h.views.AddTextNode(r.Context(), ref, req.Text, req.X, req.Y)
	h.writeEdit(w, doc, err)
}

// MoveNode handles PATCH /api/views/nodes/{id}.
//
//	@Summary		Reposition a node on a view
//	@Tags			views
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Node id"
//	@Param			body	body		MoveNodeRequest	true	"Target position"
//	@Success		200		{object}	ViewDocument
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/nodes/{id} [patch]
func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "id")
	if nodeID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("node id is required"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req MoveNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ref, ok := viewRef(w, req.Kind, req.Selector)
	if !ok {
		return
	}
	doc, err := h.views.MoveNode(r.Context(), ref, nodeID, req.X, req.Y)
	h.writeEdit(w, doc, err)
}

// AddEdge handles POST /api/views/edges.
//
//	@Summary		Connect two nodes on a view
//	@Tags			views
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddEdgeRequest	true	"Edge to add"
//	@Success		200		{object}	ViewDocument
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/edges [post]
func (h *Handler) AddEdge(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req AddEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Source == "" || req.Target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("source and target are required"))
		return
	}
	ref, ok := viewRef(w, req.Kind, req.Selector)
	if !ok {
		return
	}
	doc, err := h.views.ConnectNodes(r.Context(), ref, req.Source, req.Target, req.Label)
	h.writeEdit(w, doc, err)
}

// viewRef validates the kind+selector pair every edit request carries.
// On failure it writes a 400 and reports ok=false.
func viewRef(w http.ResponseWriter, kind, selector string) (views.Ref, bool) {
	k, err := views.ParseKind(kind)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown view kind"))
		return views.Ref{}, false
	}
	if (k == views.KindTag || k == views.KindSearch) && strings.TrimSpace(strings.TrimPrefix(selector, "#")) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("selector is required"))
		return views.Ref{}, false
	}
	return views.Ref{Kind: k, Selector: selector}, true
}

func (h *Handler) writeEdit(w http.ResponseWriter, doc *views.Document, err error) {
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("view edit failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with optional pagination and filtering
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	tag := q.Get("tag")

	items, total, err := h.notes.ListNotes(r.Context(), limit, offset, tag)
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notes": items,
		"total": total,
	})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.notes.GetNote(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.notes.Search(r.Context(), q, limit)
	if err != nil {
		if errors.Is(err, apperr.ErrIndexNotReady) {
			writeRetryAfter(w, 2, "index rebuilding, retry shortly")
			return
		}
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{Path: hit.Path, Title: hit.Title, Snippet: hit.Snippet}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}
