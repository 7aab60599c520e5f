// Package models defines the domain types for Othala.
package models

import "time"

// NoteMetadata is a lightweight representation of a Markdown note
// returned by list operations on the vault.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileEntry describes one vault file found by a folder listing.
// IsNote reports whether the file is a managed content type (Markdown);
// everything else becomes a generic file card on a view.
type FileEntry struct {
	Path   string `json:"path"`
	IsNote bool   `json:"is_note"`
}

// FileContent is the result of a batch read for a single path.
// A failed read degrades to Missing=true with empty Text rather than
// aborting the batch.
type FileContent struct {
	Path    string `json:"path"`
	Text    string `json:"text"`
	Missing bool   `json:"missing"`
}
