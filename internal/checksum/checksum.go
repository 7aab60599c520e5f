// Package checksum provides the SHA-256 digest used both for change
// detection in the note index and for content-addressed view paths.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the lowercase hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumString returns the lowercase hex-encoded SHA-256 digest of s.
func SumString(s string) string {
	return Sum([]byte(s))
}
