package views

import (
	"fmt"
	"path"
	"strings"

	"github.com/starford/othala/internal/parser"
)

// folderItems lists a directory and builds items for its files, with
// parsed titles and content excerpts for the Markdown notes among them.
// Unreadable notes degrade to cards without an excerpt.
func (s *Service) folderItems(dir string, recursive bool, limit int) ([]Item, error) {
	entries, err := s.store.ListAll(dir, recursive, limit)
	if err != nil {
		return nil, fmt.Errorf("views: list %q: %w", dir, err)
	}

	var notePaths []string
	for _, e := range entries {
		if e.IsNote {
			notePaths = append(notePaths, e.Path)
		}
	}
	contents, err := s.store.ReadMany(notePaths)
	if err != nil {
		return nil, fmt.Errorf("views: read notes: %w", err)
	}
	text := make(map[string]string, len(contents))
	for _, c := range contents {
		if !c.Missing {
			text[c.Path] = c.Text
		}
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		rel := e.Path
		if dir != "" {
			rel = strings.TrimPrefix(e.Path, dir+"/")
		}
		it := Item{
			ID:     e.Path,
			IsNote: e.IsNote,
			Name:   path.Base(rel),
		}
		if i := strings.Index(rel, "/"); i >= 0 {
			it.Group = rel[:i]
		}
		it.Title = it.Name
		if e.IsNote {
			it.Title = strings.TrimSuffix(it.Name, path.Ext(it.Name))
			if raw, ok := text[e.Path]; ok {
				if res, perr := parser.Parse([]byte(raw)); perr == nil {
					if res.Title != "" {
						it.Title = res.Title
					}
					it.Excerpt = parser.Excerpt(res.Body, s.excerptLen)
				}
			}
		}
		items = append(items, it)
	}
	return items, nil
}

// tagItems queries the index for notes carrying the tag. Not-ready
// errors pass through untouched so the retry protocol can see them.
func (s *Service) tagItems(tag string, limit int) ([]Item, error) {
	refs, err := s.idx.TagNotes(tag, limit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(refs))
	for _, r := range refs {
		items = append(items, Item{
			ID:     r.Path,
			Title:  titleOrBase(r.Title, r.Path),
			IsNote: true,
		})
	}
	return items, nil
}

// searchItems queries the full-text index. Same not-ready passthrough
// as tagItems.
func (s *Service) searchItems(query string, limit int) ([]Item, error) {
	hits, err := s.idx.Search(query, limit)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(hits))
	for _, h := range hits {
		items = append(items, Item{
			ID:     h.Path,
			Title:  titleOrBase(h.Title, h.Path),
			IsNote: true,
		})
	}
	return items, nil
}

func titleOrBase(title, p string) string {
	if title != "" {
		return title
	}
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
