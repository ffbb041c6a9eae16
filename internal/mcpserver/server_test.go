package mcpserver

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/analyzer"
	"github.com/starford/ansuz/internal/changelog"
	"github.com/starford/ansuz/internal/filter"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/oracle"
	"github.com/starford/ansuz/internal/prefs"
	"github.com/starford/ansuz/internal/storage"
)

type stubOracle struct {
	analysis oracle.Analysis
}

func (s *stubOracle) Analyze(_ context.Context, _ oracle.Request) (*oracle.Analysis, error) {
	a := s.analysis
	return &a, nil
}

func testServer(t *testing.T) (*Server, storage.Provider, *stubOracle) {
	t.Helper()

	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	changes := changelog.NewStore(store, logger, 0)
	learner := prefs.NewLearner(store, logger)
	so := &stubOracle{}
	svc := analyzer.NewService(store, db, so, changes, learner, nil, logger, analyzer.Options{
		Filter:     filter.Options{MinConfidence: 0.7, AllowNewTags: true},
		BatchDelay: time.Millisecond,
	})

	srv := New(svc, changes, learner, store, db)
	return srv, store, so
}

func addNote(t *testing.T, srv *Server, path, content string) {
	t.Helper()
	if err := srv.store.Write(path, []byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := index.IndexFile(srv.db, path, []byte(content)); err != nil {
		t.Fatal(err)
	}
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
	case "analyze_note":
		result, err = srv.analyzeNote(ctx, req)
	case "analyze_vault":
		result, err = srv.analyzeVault(ctx, req)
	case "link_backlinks":
		result, err = srv.linkBacklinks(ctx, req)
	case "change_history":
		result, err = srv.changeHistory(ctx, req)
	case "rollback_change":
		result, err = srv.rollbackChange(ctx, req)
	case "rollback_session":
		result, err = srv.rollbackSession(ctx, req)
	case "analyze_preferences":
		result, err = srv.analyzePreferences(ctx, req)
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
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

func TestAnalyzeNoteTool(t *testing.T) {
	srv, store, so := testServer(t)
	addNote(t, srv, "Cats.md", "All about felines.")
	addNote(t, srv, "note.md", "I love cats.")
	so.analysis = oracle.Analysis{
		Links: []models.SuggestedLink{
			{TargetText: "cats", LinkTarget: "Cats", Confidence: 0.9},
		},
	}

	r := callTool(t, srv, "analyze_note", map[string]interface{}{"path": "note.md"})
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	if text := resultText(r); !strings.Contains(text, `"links_added": 1`) {
		t.Errorf("result = %q", text)
	}

	data, err := store.Read("note.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "I love [[Cats|cats]]." {
		t.Errorf("patched content = %q", data)
	}
}

func TestAnalyzeNoteTool_MissingArgs(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "analyze_note", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error result for missing path")
	}
}

func TestChangeHistoryAndRollbackTools(t *testing.T) {
	srv, store, so := testServer(t)
	addNote(t, srv, "Cats.md", "All about felines.")
	addNote(t, srv, "note.md", "I love cats.")
	so.analysis = oracle.Analysis{
		Links: []models.SuggestedLink{
			{TargetText: "cats", LinkTarget: "Cats", Confidence: 0.9},
		},
	}
	callTool(t, srv, "analyze_note", map[string]interface{}{"path": "note.md"})

	r := callTool(t, srv, "change_history", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "link_added") {
		t.Fatalf("history = %q", text)
	}

	sessions := srv.changes.Sessions(0)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d", len(sessions))
	}
	id := sessions[0].Changes[0].ID

	r = callTool(t, srv, "rollback_change", map[string]interface{}{"id": id})
	if r.IsError {
		t.Fatalf("rollback error: %s", resultText(r))
	}
	data, err := store.Read("note.md")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "I love cats." {
		t.Errorf("rolled back content = %q", data)
	}

	r = callTool(t, srv, "rollback_change", map[string]interface{}{"id": id})
	if !r.IsError {
		t.Error("expected error for unknown change id")
	}
}

func TestRollbackSessionTool(t *testing.T) {
	srv, _, so := testServer(t)
	addNote(t, srv, "Cats.md", "All about felines.")
	addNote(t, srv, "a.md", "cats here")
	so.analysis = oracle.Analysis{
		Links: []models.SuggestedLink{
			{TargetText: "cats", LinkTarget: "Cats", Confidence: 0.9},
		},
	}
	callTool(t, srv, "analyze_vault", map[string]interface{}{})

	sessions := srv.changes.Sessions(0)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d", len(sessions))
	}

	r := callTool(t, srv, "rollback_session", map[string]interface{}{"id": sessions[0].ID})
	if text := resultText(r); text != "restored 1 notes" {
		t.Errorf("result = %q", text)
	}
}

func TestLinkBacklinksTool(t *testing.T) {
	srv, store, _ := testServer(t)
	addNote(t, srv, "Golang.md", "The language.")
	addNote(t, srv, "a.md", "Learning golang now.")

	r := callTool(t, srv, "link_backlinks", map[string]interface{}{"path": "Golang.md"})
	if text := resultText(r); !strings.Contains(text, "a.md") {
		t.Fatalf("result = %q", text)
	}
	data, err := store.Read("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[[Golang|golang]]") {
		t.Errorf("a.md = %q", data)
	}
}

func TestAnalyzePreferencesTool(t *testing.T) {
	srv, _, _ := testServer(t)
	addNote(t, srv, "a.md", "---\ntags: [golang]\n---\nbody")

	r := callTool(t, srv, "analyze_preferences", map[string]interface{}{})
	if text := resultText(r); !strings.Contains(text, "golang") {
		t.Errorf("result = %q", text)
	}
}

func TestSearchAndReadTools(t *testing.T) {
	srv, _, _ := testServer(t)
	addNote(t, srv, "guide.md", "kubernetes deployment guide")

	r := callTool(t, srv, "search_notes", map[string]interface{}{"query": "kubernetes"})
	if text := resultText(r); !strings.Contains(text, "guide.md") {
		t.Errorf("search result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"path": "guide.md"})
	if text := resultText(r); text != "kubernetes deployment guide" {
		t.Errorf("read result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{"path": "missing.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}
