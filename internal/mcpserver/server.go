// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the Ansuz analysis tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/analyzer"
	"github.com/starford/ansuz/internal/changelog"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/prefs"
	"github.com/starford/ansuz/internal/storage"
)

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp     *server.MCPServer
	svc     *analyzer.Service
	changes *changelog.Store
	learner *prefs.Learner
	store   storage.Provider
	db      *index.DB
}

// New creates a new MCP server with all Ansuz tools registered.
func New(svc *analyzer.Service, changes *changelog.Store, learner *prefs.Learner,
	store storage.Provider, db *index.DB) *Server {
	s := &Server{svc: svc, changes: changes, learner: learner, store: store, db: db}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("analyze_note",
		mcp.WithDescription("Analyze one note: suggest wikilinks and tags, apply the accepted ones, and record the edit in the change log."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.analyzeNote)

	s.mcp.AddTool(mcp.NewTool("analyze_vault",
		mcp.WithDescription("Analyze every note in the vault in one change session. May take a while; progress is paced to respect oracle rate limits."),
	), s.analyzeVault)

	s.mcp.AddTool(mcp.NewTool("link_backlinks",
		mcp.WithDescription("Find notes that mention the given note's title without linking it, and insert the wikilink in each."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the target note")),
	), s.linkBacklinks)

	s.mcp.AddTool(mcp.NewTool("change_history",
		mcp.WithDescription("List recorded change sessions, most recent last."),
		mcp.WithNumber("limit", mcp.Description("Max sessions to return (0 for all)")),
	), s.changeHistory)

	s.mcp.AddTool(mcp.NewTool("rollback_change",
		mcp.WithDescription("Revert a single recorded change by id, restoring the note's prior content."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Change id from change_history")),
	), s.rollbackChange)

	s.mcp.AddTool(mcp.NewTool("rollback_session",
		mcp.WithDescription("Revert every change of a session in reverse order. Reports how many notes were restored."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Session id from change_history")),
	), s.rollbackSession)

	s.mcp.AddTool(mcp.NewTool("analyze_preferences",
		mcp.WithDescription("Recompute vault-wide usage statistics (frequent tags, link patterns, recurring concepts) that bias future suggestions."),
	), s.analyzePreferences)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

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

func (s *Server) analyzeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.svc.AnalyzeNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(rep, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) analyzeVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.AnalyzeVault(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(rep, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) linkBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.svc.LinkBacklinks(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rep.NotesUpdated) == 0 {
		return mcp.NewToolResultText("no unlinked mentions found"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("linked %q in:\n%s",
		rep.Title, strings.Join(rep.NotesUpdated, "\n"))), nil
}

func (s *Server) changeHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 0)
	sessions := s.changes.Sessions(limit)
	if len(sessions) == 0 {
		return mcp.NewToolResultText("no recorded sessions"), nil
	}
	out, _ := json.MarshalIndent(sessions, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) rollbackChange(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.RollbackChange(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("rolled back: %s", id)), nil
}

func (s *Server) rollbackSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.RollbackSession(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("restored %d notes", n)), nil
}

func (s *Server) analyzePreferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.learner.AnalyzeVault(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p := s.learner.Preferences()
	out, _ := json.MarshalIndent(p, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.db.Search(query, 20)
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
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
