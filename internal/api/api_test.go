package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/noteservice"
	"github.com/starford/othala/internal/storage"
	"github.com/starford/othala/internal/testutil"
	"github.com/starford/othala/internal/views"
)

// testEnv bundles a temp vault, SQLite index, services, and router.
// authToken="" means auth disabled; non-empty enables token mode.
type testEnv struct {
	store  storage.Provider
	db     *index.DB
	router http.Handler
}

func newTestEnv(t *testing.T, authToken string) *testEnv {
	t.Helper()

	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)

	vs := views.NewService(store, db, testutil.Logger(), views.Settings{})
	ns := noteservice.NewService(store, db)
	router := NewRouter(vs, ns, authToken != "", authToken, nil)
	return &testEnv{store: store, db: db, router: router}
}

// seed writes vault files and rebuilds the index over them.
func (e *testEnv) seed(t *testing.T, files map[string]string) {
	t.Helper()
	testutil.Seed(t, e.store, files)
	if err := e.db.Rebuild(context.Background(), e.store); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
}

func (e *testEnv) get(t *testing.T, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) send(t *testing.T, method, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(raw))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeDoc(t *testing.T, w *httptest.ResponseRecorder) *views.Document {
	t.Helper()
	var doc views.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v, body = %s", err, w.Body.String())
	}
	return &doc
}

func TestGlobalView(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{
		"a.md":     "# Alpha\nbody",
		"sub/b.md": "# Beta\nbody",
	})

	w := e.get(t, "/views/global")
	if w.Code != http.StatusOK {
		t.Fatalf("global = %d, body = %s", w.Code, w.Body.String())
	}
	doc := decodeDoc(t, w)
	if doc.ViewID != "global" {
		t.Errorf("view_id = %q, want global", doc.ViewID)
	}
	if doc.Node("a.md") == nil || doc.Node("sub/b.md") == nil {
		t.Errorf("missing note cards, nodes = %d", len(doc.Nodes))
	}
	// Grouped first build: frames for the root and for sub/.
	if doc.Node("frame:/") == nil || doc.Node("frame:sub") == nil {
		t.Errorf("missing frames on first build")
	}

	// A second GET must serve the same document unchanged.
	w2 := e.get(t, "/views/global")
	if w2.Code != http.StatusOK {
		t.Fatalf("second global = %d", w2.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), w2.Body.Bytes()) {
		t.Error("rebuild without vault changes altered the document")
	}
}

func TestFolderView_RecursiveAndLimit(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{
		"sub/x.md":      "# X",
		"sub/deep/y.md": "# Y",
	})

	w := e.get(t, "/views/folder?dir=sub&recursive=false")
	if w.Code != http.StatusOK {
		t.Fatalf("folder = %d, body = %s", w.Code, w.Body.String())
	}
	doc := decodeDoc(t, w)
	if doc.Kind != views.KindFolder || doc.Selector != "sub" {
		t.Errorf("kind = %q selector = %q", doc.Kind, doc.Selector)
	}
	if doc.Node("sub/x.md") == nil {
		t.Error("direct child missing")
	}
	if doc.Node("sub/deep/y.md") != nil {
		t.Error("recursive=false leaked a nested note")
	}
}

func TestFolderView_BadParams(t *testing.T) {
	e := newTestEnv(t, "")

	if w := e.get(t, "/views/folder?recursive=maybe"); w.Code != http.StatusBadRequest {
		t.Errorf("bad recursive = %d, want 400", w.Code)
	}
	if w := e.get(t, "/views/folder?limit=-3"); w.Code != http.StatusBadRequest {
		t.Errorf("negative limit = %d, want 400", w.Code)
	}
}

func TestTagView(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{
		"todo.md":  "---\ntags: [urgent]\n---\n# Todo",
		"other.md": "# Other",
	})

	w := e.get(t, "/views/tag?tag=urgent")
	if w.Code != http.StatusOK {
		t.Fatalf("tag view = %d, body = %s", w.Code, w.Body.String())
	}
	doc := decodeDoc(t, w)
	if doc.Selector != "#urgent" {
		t.Errorf("selector = %q, want #urgent", doc.Selector)
	}
	if doc.Node("todo.md") == nil {
		t.Error("tagged note missing")
	}
	if doc.Node("other.md") != nil {
		t.Error("untagged note leaked into tag view")
	}
}

func TestTagView_MissingParam(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.get(t, "/views/tag"); w.Code != http.StatusBadRequest {
		t.Errorf("tag without param = %d, want 400", w.Code)
	}
}

func TestSearchView(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{
		"find.md": "# Find\nuniquetoken here",
	})

	w := e.get(t, "/views/search?q=uniquetoken")
	if w.Code != http.StatusOK {
		t.Fatalf("search view = %d, body = %s", w.Code, w.Body.String())
	}
	doc := decodeDoc(t, w)
	if doc.Kind != views.KindSearch {
		t.Errorf("kind = %q", doc.Kind)
	}
	if doc.Node("find.md") == nil {
		t.Error("matching note missing")
	}
}

func TestSearchView_MissingQuery(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.get(t, "/views/search"); w.Code != http.StatusBadRequest {
		t.Errorf("search view without q = %d, want 400", w.Code)
	}
}

func TestMoveNodeEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{"a.md": "# A", "b.md": "# B"})

	if w := e.get(t, "/views/folder"); w.Code != http.StatusOK {
		t.Fatalf("initial build = %d", w.Code)
	}

	w := e.send(t, http.MethodPatch, "/views/nodes/a.md", MoveNodeRequest{
		Kind: "folder", X: 640, Y: 320,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("move = %d, body = %s", w.Code, w.Body.String())
	}

	// The position must survive the next build.
	doc := decodeDoc(t, e.get(t, "/views/folder"))
	n := doc.Node("a.md")
	if n == nil {
		t.Fatal("moved node gone")
	}
	if n.Position.X != 640 || n.Position.Y != 320 {
		t.Errorf("position = (%v, %v), want (640, 320)", n.Position.X, n.Position.Y)
	}
}

func TestMoveNodeEndpoint_Missing(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{"a.md": "# A"})
	if w := e.get(t, "/views/folder"); w.Code != http.StatusOK {
		t.Fatalf("initial build = %d", w.Code)
	}

	// Unknown node in an existing view.
	w := e.send(t, http.MethodPatch, "/views/nodes/ghost.md", MoveNodeRequest{Kind: "folder"})
	if w.Code != http.StatusNotFound {
		t.Errorf("move unknown node = %d, want 404", w.Code)
	}

	// View that was never built.
	w = e.send(t, http.MethodPatch, "/views/nodes/a.md", MoveNodeRequest{Kind: "tag", Selector: "nope"})
	if w.Code != http.StatusNotFound {
		t.Errorf("move in missing view = %d, want 404", w.Code)
	}
}

func TestAddNodeEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{"a.md": "# A"})
	if w := e.get(t, "/views/folder"); w.Code != http.StatusOK {
		t.Fatalf("initial build = %d", w.Code)
	}

	w := e.send(t, http.MethodPost, "/views/nodes", AddNodeRequest{
		Kind: "folder", Text: "remember this", X: 40, Y: 60,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add node = %d, body = %s", w.Code, w.Body.String())
	}
	doc := decodeDoc(t, w)
	var annotation *views.Node
	for i := range doc.Nodes {
		if doc.Nodes[i].Type == "text" {
			annotation = &doc.Nodes[i]
		}
	}
	if annotation == nil {
		t.Fatal("no text node in response")
	}
	if annotation.Position.X != 40 || annotation.Position.Y != 60 {
		t.Errorf("annotation at (%v, %v)", annotation.Position.X, annotation.Position.Y)
	}
}

func TestAddNodeEndpoint_Validation(t *testing.T) {
	e := newTestEnv(t, "")

	if w := e.send(t, http.MethodPost, "/views/nodes", AddNodeRequest{Kind: "folder"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing text = %d, want 400", w.Code)
	}
	if w := e.send(t, http.MethodPost, "/views/nodes", AddNodeRequest{Kind: "galaxy", Text: "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind = %d, want 400", w.Code)
	}
	if w := e.send(t, http.MethodPost, "/views/nodes", AddNodeRequest{Kind: "tag", Text: "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("tag without selector = %d, want 400", w.Code)
	}
}

func TestAddEdgeEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{"a.md": "# A", "b.md": "# B"})
	if w := e.get(t, "/views/folder"); w.Code != http.StatusOK {
		t.Fatalf("initial build = %d", w.Code)
	}

	w := e.send(t, http.MethodPost, "/views/edges", AddEdgeRequest{
		Kind: "folder", Source: "a.md", Target: "b.md", Label: "depends on",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add edge = %d, body = %s", w.Code, w.Body.String())
	}
	doc := decodeDoc(t, w)
	if len(doc.Edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(doc.Edges))
	}
	edge := doc.Edges[0]
	if edge.Source != "a.md" || edge.Target != "b.md" {
		t.Errorf("edge %s -> %s", edge.Source, edge.Target)
	}
	if edge.Label != "depends on" {
		t.Errorf("label = %v", edge.Label)
	}

	// Unknown endpoint → 404.
	w = e.send(t, http.MethodPost, "/views/edges", AddEdgeRequest{
		Kind: "folder", Source: "a.md", Target: "ghost.md",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("edge to unknown node = %d, want 404", w.Code)
	}

	// Missing endpoints → 400.
	w = e.send(t, http.MethodPost, "/views/edges", AddEdgeRequest{Kind: "folder", Source: "a.md"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("edge without target = %d, want 400", w.Code)
	}
}

func TestListViewsEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{"a.md": "---\ntags: [x]\n---\n# A"})

	if w := e.get(t, "/views/global"); w.Code != http.StatusOK {
		t.Fatalf("global build = %d", w.Code)
	}
	if w := e.get(t, "/views/tag?tag=x"); w.Code != http.StatusOK {
		t.Fatalf("tag build = %d", w.Code)
	}

	w := e.get(t, "/views")
	if w.Code != http.StatusOK {
		t.Fatalf("list views = %d", w.Code)
	}
	var resp struct {
		Views []ViewSummary `json:"views"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Views) != 2 {
		t.Fatalf("views = %d, want 2", len(resp.Views))
	}
	ids := map[string]bool{}
	for _, v := range resp.Views {
		ids[v.ID] = true
	}
	if !ids["global"] || !ids["tag:#x"] {
		t.Errorf("ids = %v", ids)
	}
}

func TestGetNoteEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{"hello.md": "# Hello\nWorld"})

	w := e.get(t, "/notes/hello.md")
	if w.Code != http.StatusOK {
		t.Fatalf("get note = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Path != "hello.md" {
		t.Errorf("path = %q", note.Path)
	}
	if note.Title != "Hello" {
		t.Errorf("title = %q, want Hello", note.Title)
	}

	if w := e.get(t, "/notes/nope.md"); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestListNotesEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{"a.md": "# A", "b.md": "# B"})

	w := e.get(t, "/notes?limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	notes := resp["notes"].([]any)
	if len(notes) != 2 {
		t.Errorf("len(notes) = %d, want 2", len(notes))
	}
}

func TestSearchEndpoint(t *testing.T) {
	e := newTestEnv(t, "")
	e.seed(t, map[string]string{"find.md": "uniquetoken here"})

	w := e.get(t, "/search?q=uniquetoken")
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	if resp.Results[0].Path != "find.md" {
		t.Errorf("path = %q", resp.Results[0].Path)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.get(t, "/search"); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

// stuckIndex never becomes ready, even after a rebuild.
type stuckIndex struct{}

func (stuckIndex) Search(string, int) ([]index.SearchResult, error) {
	return nil, fmt.Errorf("index: search: %w", apperr.ErrIndexNotReady)
}

func (stuckIndex) TagNotes(string, int) ([]index.NoteRef, error) {
	return nil, fmt.Errorf("index: tag notes: %w", apperr.ErrIndexNotReady)
}

func (stuckIndex) Rebuild(context.Context, storage.Provider) error { return nil }

func TestViewEndpoint_IndexNotReady503(t *testing.T) {
	_, store := testutil.TestVault(t)
	vs := views.NewService(store, stuckIndex{}, testutil.Logger(), views.Settings{})
	router := NewRouter(vs, nil, false, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/views/tag?tag=stuck", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("stuck index = %d, want 503", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got == "" {
		t.Error("missing Retry-After header")
	}
}

// okIndex serves a fixed tag result.
type okIndex struct{ refs []index.NoteRef }

func (i okIndex) Search(string, int) ([]index.SearchResult, error) { return nil, nil }
func (i okIndex) TagNotes(string, int) ([]index.NoteRef, error)    { return i.refs, nil }
func (i okIndex) Rebuild(context.Context, storage.Provider) error  { return nil }

// readOnlyStore accepts no writes at all.
type readOnlyStore struct{ storage.Provider }

func (readOnlyStore) Write(string, []byte) error { return errors.New("disk full") }

func TestViewEndpoint_SaveFailureStillServesDocument(t *testing.T) {
	_, base := testutil.TestVault(t)
	idx := okIndex{refs: []index.NoteRef{{Path: "a.md", Title: "A"}}}
	vs := views.NewService(readOnlyStore{base}, idx, testutil.Logger(), views.Settings{})
	router := NewRouter(vs, nil, false, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/views/tag?tag=x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("save failure = %d, want 200, body = %s", w.Code, w.Body.String())
	}
	var doc views.Document
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Node("a.md") == nil {
		t.Error("built document missing its node")
	}
}

// Auth tests.

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := newTestEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/views", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := newTestEnv(t, "secret123")
	if w := e.get(t, "/views"); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := newTestEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/views", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := newTestEnv(t, "")
	if w := e.get(t, "/views"); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	e := newTestEnv(t, "secret123")
	if w := e.get(t, "/views?access_token=secret123"); w.Code != http.StatusOK {
		t.Errorf("query token = %d, want 200", w.Code)
	}
	if w := e.get(t, "/views?access_token=wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong query token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := routerWithSSE(t, true, "secret")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := routerWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

func TestSSEEvents_QueryToken(t *testing.T) {
	router := routerWithSSE(t, true, "tok")

	// EventSource cannot set request headers, so the stream accepts the
	// token as a query parameter.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with query token should not 401")
	}
}

// routerWithSSE mounts a stub SSE handler that blocks until context done.
func routerWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()

	_, store := testutil.TestVault(t)
	vs := views.NewService(store, stuckIndex{}, testutil.Logger(), views.Settings{})

	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	return NewRouter(vs, nil, authEnabled, token, sseHandler)
}
