package api

import (
	"github.com/starford/othala/internal/noteservice"
	"github.com/starford/othala/internal/views"
)

// AddNodeRequest is the request body for dropping a text annotation onto a view.
type AddNodeRequest struct {
	Kind     string  `json:"kind" example:"folder" validate:"required"`
	Selector string  `json:"selector" example:"projects"`
	Text     string  `json:"text" example:"ship this week" validate:"required"`
	X        float64 `json:"x" example:"120"`
	Y        float64 `json:"y" example:"80"`
}

// MoveNodeRequest is the request body for repositioning a node.
type MoveNodeRequest struct {
	Kind     string  `json:"kind" example:"global" validate:"required"`
	Selector string  `json:"selector" example:""`
	X        float64 `json:"x" example:"500"`
	Y        float64 `json:"y" example:"260"`
}

// AddEdgeRequest is the request body for connecting two nodes on a view.
type AddEdgeRequest struct {
	Kind     string `json:"kind" example:"folder" validate:"required"`
	Selector string `json:"selector" example:"projects"`
	Source   string `json:"source" example:"projects/alpha.md" validate:"required"`
	Target   string `json:"target" example:"projects/beta.md" validate:"required"`
	Label    string `json:"label" example:"depends on"`
}

// ViewDocument is the full view response type (aliased from the domain layer).
type ViewDocument = views.Document

// ViewSummary is a lightweight item in a view listing (aliased from the domain layer).
type ViewSummary = views.Summary

// ViewListResponse wraps the view listing.
type ViewListResponse struct {
	Views []ViewSummary `json:"views" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}
