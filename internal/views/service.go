package views

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/storage"
)

// Status is a view's build state, exposed so clients can render an
// indexing-in-progress hint.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusBuilding   Status = "building"
	StatusRebuilding Status = "rebuilding"
)

// Index is the slice of the note index the view builders consume.
// *index.DB satisfies it.
type Index interface {
	Search(query string, limit int) ([]index.SearchResult, error)
	TagNotes(tag string, limit int) ([]index.NoteRef, error)
	Rebuild(ctx context.Context, store storage.Provider) error
}

// Notifier receives view lifecycle events for fan-out (SSE).
type Notifier interface {
	ViewUpdated(viewID string)
	ViewIndexing(viewID string, active bool)
}

// Settings carries the tunables the app config feeds the service.
type Settings struct {
	DefaultLimit  int // item cap per view query
	ExcerptLength int // rune budget for note card content
}

// Summary describes one persisted view document.
type Summary struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Selector string `json:"selector"`
	Title    string `json:"title"`
	Nodes    int    `json:"nodes"`
}

// Service builds, reconciles, and persists view documents.
//
// Builds for one view are "last request wins": every build captures a
// per-view version at start, and a build whose version went stale by
// completion leaves no mark on storage or listeners. Queries failing
// with apperr.ErrIndexNotReady enter the rebuild protocol: one index
// rebuild, one retry, served stale-while-revalidating whenever a prior
// document exists.
type Service struct {
	store storage.Provider
	idx   Index
	codec *Codec
	log   *slog.Logger

	defaultLimit int
	excerptLen   int

	notify Notifier

	mu       sync.Mutex
	versions map[string]uint64
	statuses map[string]Status
}

// NewService creates a view service over the vault store and note index.
func NewService(store storage.Provider, idx Index, log *slog.Logger, st Settings) *Service {
	if st.DefaultLimit <= 0 {
		st.DefaultLimit = 200
	}
	if st.ExcerptLength <= 0 {
		st.ExcerptLength = 280
	}
	return &Service{
		store:        store,
		idx:          idx,
		codec:        NewCodec(store),
		log:          log,
		defaultLimit: st.DefaultLimit,
		excerptLen:   st.ExcerptLength,
		versions:     make(map[string]uint64),
		statuses:     make(map[string]Status),
	}
}

// SetNotifier wires the event fan-out. Call before serving requests.
func (s *Service) SetNotifier(n Notifier) { s.notify = n }

// BuildGlobal builds the vault-wide view.
func (s *Service) BuildGlobal(ctx context.Context) (*Document, error) {
	return s.Build(ctx, Global(), nil)
}

// BuildFolder builds the view of one vault directory.
func (s *Service) BuildFolder(ctx context.Context, dir string, opts *Options) (*Document, error) {
	return s.Build(ctx, Folder(dir), opts)
}

// BuildTag builds the view of all notes carrying a tag.
func (s *Service) BuildTag(ctx context.Context, tag string) (*Document, error) {
	return s.Build(ctx, Tag(tag), nil)
}

// BuildSearch builds the view of a full-text query's results.
func (s *Service) BuildSearch(ctx context.Context, query string) (*Document, error) {
	return s.Build(ctx, Search(query), nil)
}

// Build materializes the view for ref: load the prior document, query
// the collaborator, reconcile, persist when changed, return the merged
// document.
//
// Build can return both a document and an error: when the build
// succeeded but persisting it failed, callers get the merged document
// alongside the write error so they can still present current content.
func (s *Service) Build(ctx context.Context, ref Ref, reqOpts *Options) (*Document, error) {
	id, err := Resolve(ref)
	if err != nil {
		return nil, err
	}

	version := s.begin(id.ID)
	prior := s.codec.Load(id.Path)
	opts := s.resolveOptions(id.Kind, prior, reqOpts)

	doc, changed, err := s.runQuery(ctx, id, prior, opts)
	if err != nil && errors.Is(err, apperr.ErrIndexNotReady) {
		if prior != nil {
			// A usable stale document exists: hand it out now and
			// revalidate in the background.
			go s.revalidate(context.WithoutCancel(ctx), id, opts, version)
			return prior, nil
		}
		doc, changed, err = s.rebuildAndRetry(ctx, id, prior, opts)
	}
	if err != nil {
		s.endBuild(id.ID, version)
		return nil, err
	}
	return s.commit(id, doc, changed, version)
}

// rebuildAndRetry is the blocking arm of the retry protocol: no stale
// document exists, so the caller waits through one rebuild and exactly
// one more build attempt. A second not-ready failure is surfaced as-is.
func (s *Service) rebuildAndRetry(ctx context.Context, id Identity, prior *Document, opts Options) (*Document, bool, error) {
	s.setStatus(id.ID, StatusRebuilding)
	if err := s.idx.Rebuild(ctx, s.store); err != nil {
		return nil, false, fmt.Errorf("views: rebuild index: %w", err)
	}
	s.setStatus(id.ID, StatusBuilding)
	return s.runQuery(ctx, id, prior, opts)
}

// revalidate is the background arm: rebuild the index, rerun the build,
// and commit under the version captured by the request that triggered
// it. Failures are logged; the caller already has the stale document.
func (s *Service) revalidate(ctx context.Context, id Identity, opts Options, version uint64) {
	s.setStatus(id.ID, StatusRebuilding)
	if err := s.idx.Rebuild(ctx, s.store); err != nil {
		s.log.Warn("view revalidate: rebuild failed",
			slog.String("view", id.ID), slog.String("error", err.Error()))
		s.endBuild(id.ID, version)
		return
	}
	s.setStatus(id.ID, StatusBuilding)

	prior := s.codec.Load(id.Path)
	doc, changed, err := s.runQuery(ctx, id, prior, opts)
	if err != nil {
		s.log.Warn("view revalidate: build failed",
			slog.String("view", id.ID), slog.String("error", err.Error()))
		s.endBuild(id.ID, version)
		return
	}
	if _, err := s.commit(id, doc, changed, version); err != nil {
		s.log.Warn("view revalidate: persist failed",
			slog.String("view", id.ID), slog.String("error", err.Error()))
	}
}

// runQuery gathers the current items for a view and reconciles them
// against the prior document. No storage writes happen here.
func (s *Service) runQuery(ctx context.Context, id Identity, prior *Document, opts Options) (*Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var (
		items []Item
		cfg   buildConfig
		err   error
	)
	switch id.Kind {
	case KindGlobal:
		cfg = folderConfig
		items, err = s.folderItems("", true, optLimit(opts, s.defaultLimit))
	case KindFolder:
		cfg = folderConfig
		items, err = s.folderItems(id.Selector, optRecursive(opts, true), optLimit(opts, s.defaultLimit))
	case KindTag:
		cfg = queryConfig
		items, err = s.tagItems(id.Selector, optLimit(opts, s.defaultLimit))
	case KindSearch:
		cfg = queryConfig
		items, err = s.searchItems(id.Selector, optLimit(opts, s.defaultLimit))
	default:
		err = fmt.Errorf("views: unknown view kind %q", id.Kind)
	}
	if err != nil {
		return nil, false, err
	}

	doc, changed := reconcile(id, prior, opts, items, cfg)
	return doc, changed, nil
}

// commit applies a finished build unless its version went stale while
// it ran. The document is returned to the caller either way; a stale
// build simply leaves no mark.
func (s *Service) commit(id Identity, doc *Document, changed bool, version uint64) (*Document, error) {
	s.mu.Lock()
	current := s.versions[id.ID] == version
	if current {
		s.statuses[id.ID] = StatusIdle
	}
	s.mu.Unlock()

	if !current {
		s.log.Debug("discarding stale build", slog.String("view", id.ID))
		return doc, nil
	}
	if changed {
		if err := s.codec.Save(id.Path, doc); err != nil {
			// The build itself succeeded; callers still get the document.
			return doc, err
		}
		if s.notify != nil {
			s.notify.ViewUpdated(id.ID)
		}
	}
	return doc, nil
}

// MoveNode repositions one node and persists the document. The position
// is stored verbatim; snapping is the canvas's business.
func (s *Service) MoveNode(_ context.Context, ref Ref, nodeID string, x, y float64) (*Document, error) {
	id, doc, err := s.loadForEdit(ref)
	if err != nil {
		return nil, err
	}
	n := doc.Node(nodeID)
	if n == nil {
		return nil, fmt.Errorf("views: node %q in view %q: %w", nodeID, id.ID, apperr.ErrNotFound)
	}
	n.Position = Position{X: x, Y: y}
	return s.commitEdit(id, doc)
}

// AddTextNode drops a free-floating annotation onto the view. Text
// nodes are foreign to every builder and survive rebuilds untouched.
func (s *Service) AddTextNode(_ context.Context, ref Ref, text string, x, y float64) (*Document, error) {
	id, doc, err := s.loadForEdit(ref)
	if err != nil {
		return nil, err
	}
	data := NewBag()
	data.Set("text", text)
	doc.Nodes = append(doc.Nodes, Node{
		ID:       uuid.NewString(),
		Type:     "text",
		Position: Position{X: x, Y: y},
		Data:     data,
	})
	return s.commitEdit(id, doc)
}

// ConnectNodes draws a user edge between two existing nodes.
func (s *Service) ConnectNodes(_ context.Context, ref Ref, source, target, label string) (*Document, error) {
	id, doc, err := s.loadForEdit(ref)
	if err != nil {
		return nil, err
	}
	if doc.Node(source) == nil {
		return nil, fmt.Errorf("views: node %q in view %q: %w", source, id.ID, apperr.ErrNotFound)
	}
	if doc.Node(target) == nil {
		return nil, fmt.Errorf("views: node %q in view %q: %w", target, id.ID, apperr.ErrNotFound)
	}
	e := Edge{ID: uuid.NewString(), Source: source, Target: target, Data: NewBag()}
	if label != "" {
		e.Label = label
	}
	doc.Edges = append(doc.Edges, e)
	return s.commitEdit(id, doc)
}

func (s *Service) loadForEdit(ref Ref) (Identity, *Document, error) {
	id, err := Resolve(ref)
	if err != nil {
		return Identity{}, nil, err
	}
	doc := s.codec.Load(id.Path)
	if doc == nil {
		return Identity{}, nil, fmt.Errorf("views: view %q: %w", id.ID, apperr.ErrNotFound)
	}
	return id, doc, nil
}

// commitEdit persists an edited document and bumps the view's version
// so no in-flight build can overwrite the edit on completion.
func (s *Service) commitEdit(id Identity, doc *Document) (*Document, error) {
	if err := s.codec.Save(id.Path, doc); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.versions[id.ID]++
	s.mu.Unlock()
	if s.notify != nil {
		s.notify.ViewUpdated(id.ID)
	}
	return doc, nil
}

// ListViews enumerates every persisted view document.
func (s *Service) ListViews(_ context.Context) ([]Summary, error) {
	entries, err := s.store.ListAll(storage.ReservedDir, true, 0)
	if err != nil {
		return nil, fmt.Errorf("views: list views: %w", err)
	}
	out := []Summary{}
	for _, e := range entries {
		if !strings.HasSuffix(e.Path, ".json") {
			continue
		}
		doc := s.codec.Load(e.Path)
		if doc == nil {
			continue
		}
		out = append(out, Summary{
			ID:       doc.ViewID,
			Kind:     doc.Kind,
			Selector: doc.Selector,
			Title:    doc.Title,
			Nodes:    len(doc.Nodes),
		})
	}
	return out, nil
}

// RebuildIndex triggers a full index rebuild. Idempotent, safe on a
// healthy index.
func (s *Service) RebuildIndex(ctx context.Context) error {
	if err := s.idx.Rebuild(ctx, s.store); err != nil {
		return fmt.Errorf("views: rebuild index: %w", err)
	}
	return nil
}

// Status reports the build state for ref.
func (s *Service) Status(ref Ref) Status {
	id, err := Resolve(ref)
	if err != nil {
		return StatusIdle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statuses[id.ID]; ok {
		return st
	}
	return StatusIdle
}

func (s *Service) begin(viewID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[viewID]++
	s.statuses[viewID] = StatusBuilding
	return s.versions[viewID]
}

// endBuild returns a view to idle, unless a newer request owns the
// status by now.
func (s *Service) endBuild(viewID string, version uint64) {
	s.mu.Lock()
	current := s.versions[viewID] == version
	s.mu.Unlock()
	if current {
		s.setStatus(viewID, StatusIdle)
	}
}

// setStatus records a transition and fans out indexing on/off edges.
func (s *Service) setStatus(viewID string, st Status) {
	s.mu.Lock()
	prev := s.statuses[viewID]
	s.statuses[viewID] = st
	s.mu.Unlock()

	if s.notify == nil || prev == st {
		return
	}
	if st == StatusRebuilding {
		s.notify.ViewIndexing(viewID, true)
	} else if prev == StatusRebuilding {
		s.notify.ViewIndexing(viewID, false)
	}
}

// resolveOptions layers request options over the stored document's and
// the configured defaults.
func (s *Service) resolveOptions(kind Kind, prior *Document, req *Options) Options {
	out := Options{}

	limit := s.defaultLimit
	if prior != nil && prior.Options.Limit != nil {
		limit = *prior.Options.Limit
	}
	if req != nil && req.Limit != nil {
		limit = *req.Limit
	}
	out.Limit = &limit

	if kind == KindFolder {
		recursive := true
		if prior != nil && prior.Options.Recursive != nil {
			recursive = *prior.Options.Recursive
		}
		if req != nil && req.Recursive != nil {
			recursive = *req.Recursive
		}
		out.Recursive = &recursive
	}
	return out
}

func optLimit(opts Options, def int) int {
	if opts.Limit != nil && *opts.Limit > 0 {
		return *opts.Limit
	}
	return def
}

func optRecursive(opts Options, def bool) bool {
	if opts.Recursive != nil {
		return *opts.Recursive
	}
	return def
}
