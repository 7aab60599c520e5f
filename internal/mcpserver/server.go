// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Othala views and notes for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/othala/internal/noteservice"
	"github.com/starford/othala/internal/views"
)

// Server wraps the MCP server with Othala tools.
type Server struct {
	mcp   *server.MCPServer
	views *views.Service
	notes *noteservice.Service
}

// New creates a new MCP server with all Othala tools registered.
func New(vs *views.Service, ns *noteservice.Service) *Server {
	s := &Server{views: vs, notes: ns}

	s.mcp = server.NewMCPServer(
		"Othala",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_view",
		mcp.WithDescription("Build and return a spatial view document as JSON. "+
			"Kinds: global (whole vault), folder (one directory), tag (notes carrying a tag), "+
			"search (full-text query results). Positions and annotations users added "+
			"on the canvas are part of the document."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("View kind: global, folder, tag, or search")),
		mcp.WithString("selector", mcp.Description("Folder path, tag, or search query (unused for global)")),
	), s.getView)

	s.mcp.AddTool(mcp.NewTool("list_views",
		mcp.WithDescription("List all persisted view documents (id, kind, title, node count)."),
	), s.listViews)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("move_node",
		mcp.WithDescription("Reposition a node on a view. The position survives rebuilds."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("View kind: global, folder, tag, or search")),
		mcp.WithString("selector", mcp.Description("Folder path, tag, or search query (unused for global)")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id, usually the note path")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Target x coordinate")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Target y coordinate")),
	), s.moveNode)

	s.mcp.AddTool(mcp.NewTool("rebuild_index",
		mcp.WithDescription("Rebuild the note index from the vault. Use when search results look stale."),
	), s.rebuildIndex)

	// Resource: persisted view documents.
	s.mcp.AddResource(
		mcp.NewResource("othala://views", "Persisted Views",
			mcp.WithResourceDescription("All persisted view documents with their kinds and node counts."),
			mcp.WithMIMEType("application/json"),
		),
		s.readViewsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// refFromRequest reads the kind+selector pair every view tool carries.
// A non-nil result is the error to return to the caller.
func refFromRequest(req mcp.CallToolRequest) (views.Ref, *mcp.CallToolResult) {
	kindRaw, err := req.RequireString("kind")
	if err != nil {
		return views.Ref{}, mcp.NewToolResultError(err.Error())
	}
	kind, err := views.ParseKind(kindRaw)
	if err != nil {
		return views.Ref{}, mcp.NewToolResultError(err.Error())
	}
	selector := ""
	if v, err := req.RequireString("selector"); err == nil {
		selector = v
	}
	return views.Ref{Kind: kind, Selector: selector}, nil
}

func (s *Server) getView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, errRes := refFromRequest(req)
	if errRes != nil {
		return errRes, nil
	}
	// A build that succeeded but failed to persist still carries its
	// document; serve it.
	doc, err := s.views.Build(ctx, ref, nil)
	if doc == nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(doc, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listViews(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.views.ListViews(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.notes.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.notes.GetNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) moveNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, errRes := refFromRequest(req)
	if errRes != nil {
		return errRes, nil
	}
	nodeID, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	x, err := req.RequireFloat("x")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	y, err := req.RequireFloat("y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.views.MoveNode(ctx, ref, nodeID, x, y); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved %s to (%g, %g)", nodeID, x, y)), nil
}

func (s *Server) rebuildIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.views.RebuildIndex(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("index rebuilt"), nil
}

func (s *Server) readViewsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	items, err := s.views.ListViews(ctx)
	if err != nil {
		return nil, err
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "othala://views",
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
