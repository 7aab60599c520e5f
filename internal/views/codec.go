package views

import (
	"encoding/json"
	"fmt"

	"github.com/starford/othala/internal/storage"
)

// Codec reads and writes view documents through the vault store.
//
// Loading is deliberately lenient: a missing file, malformed JSON, a
// wrong schema version, or the wrong document shape all read as "no
// prior document" rather than an error, so a corrupted view heals on
// the next build instead of wedging it.
type Codec struct {
	store storage.Provider
}

// NewCodec returns a codec persisting through store.
func NewCodec(store storage.Provider) *Codec {
	return &Codec{store: store}
}

// Load returns the document at path, or nil when no usable one exists.
func (c *Codec) Load(path string) *Document {
	raw, err := c.store.Read(path)
	if err != nil {
		return nil
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil
	}
	doc.Sanitize()
	return &doc
}

// Save sanitizes and persists doc. Output is stable: saving the same
// content twice yields byte-identical files, which is what the
// changed check during reconciliation relies on.
func (c *Codec) Save(path string, doc *Document) error {
	doc.Sanitize()
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("views: encode %s: %w", path, err)
	}
	raw = append(raw, '\n')
	if err := c.store.Write(path, raw); err != nil {
		return fmt.Errorf("views: save %s: %w", path, err)
	}
	return nil
}
