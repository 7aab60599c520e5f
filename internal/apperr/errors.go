// Package apperr defines the sentinel errors shared across Othala layers.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrIndexNotReady signals that the note index is stale or mid-rebuild.
	// View builders treat it as a retryable condition: trigger one index
	// rebuild, retry the build once, and surface it only if it recurs.
	ErrIndexNotReady = errors.New("index not ready")
)
