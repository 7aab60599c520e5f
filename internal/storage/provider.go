// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/othala/internal/models"

// ReservedDir is the vault subtree where persisted view documents live.
// It is never reported by List or ListAll unless a listing is explicitly
// rooted inside it, so view documents cannot become nodes of the views
// that contain them, nor rows of the search index.
const ReservedDir = "views"

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every .md file under dir (relative to
	// vault root), skipping the ReservedDir subtree unless dir itself
	// lies within it.
	List(dir string) ([]models.NoteMetadata, error)
	// ListAll returns every non-hidden file under dir in lexical order.
	// With recursive=false only direct children are returned. A limit > 0
	// caps the result after ordering. The ReservedDir subtree is skipped
	// unless dir itself lies within it.
	ListAll(dir string, recursive bool, limit int) ([]models.FileEntry, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// ReadMany reads several files; a failed read degrades that entry to
	// empty content instead of failing the batch.
	ReadMany(paths []string) ([]models.FileContent, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to vault root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to vault root).
	Move(oldPath, newPath string) error
}
