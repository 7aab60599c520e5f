// Package views maintains materialized spatial views of the vault:
// persisted node-and-edge documents that mirror folder contents, tag
// queries, and search results while preserving every spatial edit a
// user has made to them.
package views

import (
	"fmt"
	"strings"

	"github.com/starford/othala/internal/checksum"
	"github.com/starford/othala/internal/storage"
)

// Kind discriminates the four view flavours.
type Kind string

const (
	KindGlobal Kind = "global"
	KindFolder Kind = "folder"
	KindTag    Kind = "tag"
	KindSearch Kind = "search"
)

// RootTitle labels the vault-wide view and the vault root folder.
const RootTitle = "Vault"

// globalPath is the fixed location of the global view document.
const globalPath = storage.ReservedDir + "/global.json"

// Ref is a request for a view: a kind plus its raw selector. It is a
// pure input value and is never persisted directly.
type Ref struct {
	Kind     Kind
	Selector string
}

// Global requests the vault-wide view.
func Global() Ref { return Ref{Kind: KindGlobal} }

// Folder requests the view of one vault directory ("" for the root).
func Folder(dir string) Ref { return Ref{Kind: KindFolder, Selector: dir} }

// Tag requests the view of all notes carrying a tag.
func Tag(tag string) Ref { return Ref{Kind: KindTag, Selector: tag} }

// Search requests the view of a full-text query's results.
func Search(query string) Ref { return Ref{Kind: KindSearch, Selector: query} }

// Identity is the resolved, normalized form of a Ref. Equal references
// always resolve to the same Identity, making Path a stable cache key.
type Identity struct {
	ID       string
	Kind     Kind
	Selector string
	Title    string
	Path     string
}

// Resolve normalizes a Ref into its Identity and storage path.
//
// Folder selectors are trimmed, backslashes become forward slashes, and
// leading/trailing slashes are stripped. Tag selectors always carry a
// leading '#'. The path for every non-global view hashes the id so that
// arbitrary selectors (deep folder paths, search queries with special
// characters) yield bounded, filesystem-safe filenames.
func Resolve(ref Ref) (Identity, error) {
	switch ref.Kind {
	case KindGlobal:
		return Identity{
			ID:    "global",
			Kind:  KindGlobal,
			Title: RootTitle,
			Path:  globalPath,
		}, nil

	case KindFolder:
		sel := strings.ReplaceAll(strings.TrimSpace(ref.Selector), "\\", "/")
		sel = strings.Trim(sel, "/")
		title := RootTitle
		if sel != "" {
			title = sel
			if i := strings.LastIndex(sel, "/"); i >= 0 {
				title = sel[i+1:]
			}
		}
		return identityFor(KindFolder, sel, title), nil

	case KindTag:
		sel := strings.TrimSpace(ref.Selector)
		sel = "#" + strings.TrimPrefix(sel, "#")
		if sel == "#" {
			return Identity{}, fmt.Errorf("views: empty tag selector")
		}
		return identityFor(KindTag, sel, sel), nil

	case KindSearch:
		sel := strings.TrimSpace(ref.Selector)
		if sel == "" {
			return Identity{}, fmt.Errorf("views: empty search query")
		}
		return identityFor(KindSearch, sel, "Search: "+sel), nil

	default:
		return Identity{}, fmt.Errorf("views: unknown view kind %q", ref.Kind)
	}
}

// ParseKind validates a kind string coming off the wire.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindGlobal, KindFolder, KindTag, KindSearch:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("views: unknown view kind %q", s)
	}
}

func identityFor(kind Kind, selector, title string) Identity {
	id := string(kind) + ":" + selector
	return Identity{
		ID:       id,
		Kind:     kind,
		Selector: selector,
		Title:    title,
		Path:     storage.ReservedDir + "/" + string(kind) + "/" + checksum.SumString(id) + ".json",
	}
}
