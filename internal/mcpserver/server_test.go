package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/noteservice"
	"github.com/starford/othala/internal/storage"
	"github.com/starford/othala/internal/testutil"
	"github.com/starford/othala/internal/views"
)

func testServer(t *testing.T) (*Server, storage.Provider, *index.DB) {
	t.Helper()

	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)

	vs := views.NewService(store, db, testutil.Logger(), views.Settings{})
	ns := noteservice.NewService(store, db)

	srv := New(vs, ns)
	return srv, store, db
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call
	// the handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_view":
		result, err = srv.getView(ctx, req)
	case "list_views":
		result, err = srv.listViews(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "move_node":
		result, err = srv.moveNode(ctx, req)
	case "rebuild_index":
		result, err = srv.rebuildIndex(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestGetView_ReturnsParseableDocument(t *testing.T) {
	srv, store, _ := testServer(t)
	_ = store.Write("a.md", []byte("# Alpha\nbody"))
	_ = store.Write("b.md", []byte("# Beta\nbody"))

	r := callTool(t, srv, "get_view", map[string]interface{}{"kind": "folder"})
	if r.IsError {
		t.Fatalf("get_view error: %s", resultText(r))
	}

	var doc views.Document
	if err := json.Unmarshal([]byte(resultText(r)), &doc); err != nil {
		t.Fatalf("document not parseable: %v", err)
	}
	if doc.Kind != views.KindFolder {
		t.Errorf("kind = %q", doc.Kind)
	}
	if doc.Node("a.md") == nil || doc.Node("b.md") == nil {
		t.Errorf("missing note cards, nodes = %d", len(doc.Nodes))
	}
}

func TestGetView_UnknownKind(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "get_view", map[string]interface{}{"kind": "galaxy"})
	if !r.IsError {
		t.Error("expected error for unknown kind")
	}
}

func TestMoveNode_Persists(t *testing.T) {
	srv, store, _ := testServer(t)
	_ = store.Write("a.md", []byte("# Alpha"))

	// Build once so the view document exists.
	callTool(t, srv, "get_view", map[string]interface{}{"kind": "folder"})

	r := callTool(t, srv, "move_node", map[string]interface{}{
		"kind": "folder",
		"id":   "a.md",
		"x":    640.0,
		"y":    320.0,
	})
	if r.IsError {
		t.Fatalf("move_node error: %s", resultText(r))
	}

	// The position must survive the next build.
	r = callTool(t, srv, "get_view", map[string]interface{}{"kind": "folder"})
	var doc views.Document
	if err := json.Unmarshal([]byte(resultText(r)), &doc); err != nil {
		t.Fatal(err)
	}
	n := doc.Node("a.md")
	if n == nil {
		t.Fatal("moved node gone")
	}
	if n.Position.X != 640 || n.Position.Y != 320 {
		t.Errorf("position = (%v, %v), want (640, 320)", n.Position.X, n.Position.Y)
	}
}

func TestMoveNode_MissingNode(t *testing.T) {
	srv, store, _ := testServer(t)
	_ = store.Write("a.md", []byte("# Alpha"))
	callTool(t, srv, "get_view", map[string]interface{}{"kind": "folder"})

	r := callTool(t, srv, "move_node", map[string]interface{}{
		"kind": "folder",
		"id":   "ghost.md",
		"x":    0.0,
		"y":    0.0,
	})
	if !r.IsError {
		t.Error("expected error for unknown node")
	}
}

func TestReadNote(t *testing.T) {
	srv, store, _ := testServer(t)
	_ = store.Write("test.md", []byte("# Test\nHello"))

	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "test.md"})
	if resultText(r) != "# Test\nHello" {
		t.Errorf("read result = %q", resultText(r))
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestSearchNotes(t *testing.T) {
	srv, store, db := testServer(t)
	_ = store.Write("find.md", []byte("# Find\nuniquetoken here"))
	if err := db.Rebuild(context.Background(), store); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "search_notes", map[string]interface{}{"query": "uniquetoken"})
	if r.IsError {
		t.Fatalf("search error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "find.md") {
		t.Errorf("search result missing hit: %s", resultText(r))
	}
}

func TestRebuildIndexTool(t *testing.T) {
	srv, store, _ := testServer(t)
	_ = store.Write("late.md", []byte("# Late\nfreshtoken"))

	r := callTool(t, srv, "rebuild_index", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("rebuild error: %s", resultText(r))
	}

	r = callTool(t, srv, "search_notes", map[string]interface{}{"query": "freshtoken"})
	if !strings.Contains(resultText(r), "late.md") {
		t.Errorf("rebuilt index missing note: %s", resultText(r))
	}
}

func TestListViewsTool(t *testing.T) {
	srv, store, _ := testServer(t)
	_ = store.Write("a.md", []byte("# Alpha"))
	callTool(t, srv, "get_view", map[string]interface{}{"kind": "global"})

	r := callTool(t, srv, "list_views", map[string]interface{}{})
	var items []views.Summary
	if err := json.Unmarshal([]byte(resultText(r)), &items); err != nil {
		t.Fatalf("list not parseable: %v", err)
	}
	if len(items) != 1 || items[0].ID != "global" {
		t.Errorf("items = %+v", items)
	}
}

func TestViewsResource(t *testing.T) {
	srv, store, _ := testServer(t)
	_ = store.Write("a.md", []byte("# Alpha"))
	callTool(t, srv, "get_view", map[string]interface{}{"kind": "global"})

	contents, err := srv.readViewsResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("unexpected contents type %T", contents[0])
	}
	var items []views.Summary
	if err := json.Unmarshal([]byte(tc.Text), &items); err != nil {
		t.Fatalf("resource not parseable: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("items = %+v", items)
	}
}
