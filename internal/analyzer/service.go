// Package analyzer orchestrates the augmentation pipeline: read a note,
// consult the oracle, filter the suggestions, patch the document, and track
// every applied edit in the changelog.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/changelog"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/filter"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/oracle"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/patch"
	"github.com/starford/ansuz/internal/prefs"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
)

// DefaultBatchDelay is the pause between notes in a vault-wide run, a
// courtesy to rate-limited oracle backends.
const DefaultBatchDelay = time.Second

// reactiveDebounce is how long a note must stay quiet after a watcher event
// before reactive mode analyzes it.
const reactiveDebounce = 2 * time.Second

// preferredTagCount bounds how many learned tags are offered to the oracle.
const preferredTagCount = 20

// Options configures the pipeline.
type Options struct {
	Filter      filter.Options
	MaxTokens   int
	Temperature float32
	// BatchDelay is the inter-note pause during AnalyzeVault;
	// <= 0 selects DefaultBatchDelay.
	BatchDelay time.Duration
}

// Skip is one rejected suggestion, flattened for response payloads.
type Skip struct {
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
}

// Report is the outcome of analyzing a single note.
type Report struct {
	Path         string   `json:"path"`
	LinksAdded   int      `json:"links_added"`
	TagsAdded    int      `json:"tags_added"`
	SkippedLinks []Skip   `json:"skipped_links,omitempty"`
	SkippedTags  []Skip   `json:"skipped_tags,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	KeyConcepts  []string `json:"key_concepts,omitempty"`
	Modified     bool     `json:"modified"`
}

// BatchReport is the outcome of a vault-wide run.
type BatchReport struct {
	Total    int               `json:"total"`
	Analyzed int               `json:"analyzed"`
	Failed   int               `json:"failed"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// BacklinkReport is the outcome of a backlink pass for one target note.
type BacklinkReport struct {
	Path         string   `json:"path"`
	Title        string   `json:"title"`
	NotesUpdated []string `json:"notes_updated"`
}

// Service coordinates the storage, index, oracle, changelog, and preference
// layers behind the operator command surface.
type Service struct {
	store   storage.Provider
	db      *index.DB
	oracle  oracle.Client
	changes *changelog.Store
	learner *prefs.Learner
	broker  *sse.Broker
	logger  *slog.Logger
	opts    Options

	mu       sync.Mutex
	inflight map[string]struct{}
	// recentWrites maps path -> checksum of content this service wrote,
	// so reactive mode does not re-analyze its own edits.
	recentWrites map[string]string
	debounce     map[string]*time.Timer
}

// NewService creates the orchestrator. broker may be nil when no event
// stream is wanted (CLI one-shots, tests).
func NewService(store storage.Provider, db *index.DB, oracleClient oracle.Client,
	changes *changelog.Store, learner *prefs.Learner, broker *sse.Broker,
	logger *slog.Logger, opts Options) *Service {
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = DefaultBatchDelay
	}
	return &Service{
		store:        store,
		db:           db,
		oracle:       oracleClient,
		changes:      changes,
		learner:      learner,
		broker:       broker,
		logger:       logger,
		opts:         opts,
		inflight:     make(map[string]struct{}),
		recentWrites: make(map[string]string),
		debounce:     make(map[string]*time.Timer),
	}
}

// AnalyzeNote runs the full pipeline for one note. When no changelog session
// is open it wraps the call in its own; inside a batch it joins the batch
// session. A second call for a path still in flight returns
// apperr.ErrAnalysisInFlight.
func (s *Service) AnalyzeNote(ctx context.Context, path string) (*Report, error) {
	if !s.acquire(path) {
		return nil, apperr.ErrAnalysisInFlight
	}
	defer s.release(path)

	if !s.changes.SessionActive() {
		s.changes.StartSession("analyze " + path)
		defer s.changes.EndSession()
	}
	return s.analyzeNote(ctx, path)
}

// analyzeNote is the pipeline core. The caller holds the in-flight slot and
// owns the changelog session.
func (s *Service) analyzeNote(ctx context.Context, path string) (*Report, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("analyzer: read %s: %w", path, err)
	}
	content := string(data)

	req := oracle.Request{
		Title:       parser.NoteTitle(path),
		Content:     content,
		Context:     s.vaultContext(),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}
	analysis, err := s.oracle.Analyze(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("analyzer: oracle: %w", err)
	}

	known, err := s.knownTargets()
	if err != nil {
		return nil, err
	}
	vaultTags, err := s.db.AllTags()
	if err != nil {
		return nil, fmt.Errorf("analyzer: load vault tags: %w", err)
	}

	lres := filter.Links(analysis.Links, content, known, s.opts.Filter)
	tres := filter.Tags(analysis.Tags, content, vaultTags, s.opts.Filter)

	rep := &Report{
		Path:        path,
		Summary:     analysis.Summary,
		KeyConcepts: analysis.KeyConcepts,
	}
	for _, sk := range lres.Skip {
		rep.SkippedLinks = append(rep.SkippedLinks, Skip{Suggestion: sk.Suggestion.TargetText, Reason: sk.Reason})
	}
	for _, sk := range tres.Skip {
		rep.SkippedTags = append(rep.SkippedTags, Skip{Suggestion: sk.Suggestion.Tag, Reason: sk.Reason})
	}

	entry := s.changes.RecordBefore(path, content)
	patched, nLinks := patch.Links(content, lres.Apply)
	patched, nTags := patch.Tags(patched, tres.Apply)
	rep.LinksAdded = nLinks
	rep.TagsAdded = nTags

	if patched == content {
		s.changes.DiscardChange(entry)
		s.logger.Debug("analyzer: no applicable suggestions", slog.String("path", path))
		return rep, nil
	}

	if err := s.writeAndIndex(path, patched); err != nil {
		s.changes.DiscardChange(entry)
		return nil, err
	}
	s.changes.RecordAfter(entry, changeType(nLinks, nTags),
		fmt.Sprintf("added %d links, %d tags", nLinks, nTags), patched)
	rep.Modified = true

	for _, tag := range tres.Apply {
		s.learner.RecordTagUsage(tag.Tag)
	}
	if s.broker != nil {
		s.broker.PublishAnalyzed(path, nLinks, nTags)
	}
	s.logger.Info("analyzer: note augmented",
		slog.String("path", path),
		slog.Int("links", nLinks),
		slog.Int("tags", nTags))
	return rep, nil
}

// AnalyzeVault runs the pipeline over every note. One session spans the
// whole batch; per-note failures are tallied and never abort the run.
func (s *Service) AnalyzeVault(ctx context.Context) (*BatchReport, error) {
	metas, err := s.store.List("")
	if err != nil {
		return nil, fmt.Errorf("analyzer: list vault: %w", err)
	}

	s.changes.StartSession("vault analysis")
	defer s.changes.EndSession()

	rep := &BatchReport{Total: len(metas), Errors: make(map[string]string)}
	for i, m := range metas {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if i > 0 {
			select {
			case <-time.After(s.opts.BatchDelay):
			case <-ctx.Done():
				return rep, ctx.Err()
			}
		}

		if !s.acquire(m.Path) {
			continue
		}
		_, err := s.analyzeNote(ctx, m.Path)
		s.release(m.Path)

		if err != nil {
			rep.Failed++
			rep.Errors[m.Path] = err.Error()
			s.logger.Warn("analyzer: note failed",
				slog.String("path", m.Path),
				slog.String("error", err.Error()))
		} else {
			rep.Analyzed++
		}
		if s.broker != nil {
			s.broker.PublishBatchProgress(i+1, len(metas), m.Path)
		}
	}

	if s.broker != nil {
		s.broker.PublishBatchCompleted(rep.Analyzed, rep.Failed)
	}
	s.logger.Info("analyzer: vault analyzed",
		slog.Int("total", rep.Total),
		slog.Int("analyzed", rep.Analyzed),
		slog.Int("failed", rep.Failed))
	return rep, nil
}

// LinkBacklinks finds every note whose body mentions the target note's title
// without linking it, and inserts the link. No oracle round-trip: the title
// mention is the evidence.
func (s *Service) LinkBacklinks(ctx context.Context, path string) (*BacklinkReport, error) {
	if !s.store.Exists(path) {
		return nil, apperr.ErrNotFound
	}
	title := parser.NoteTitle(path)
	if title == "" {
		return nil, apperr.ErrNotFound
	}

	metas, err := s.store.List("")
	if err != nil {
		return nil, fmt.Errorf("analyzer: list vault: %w", err)
	}
	known, err := s.knownTargets()
	if err != nil {
		return nil, err
	}

	s.changes.StartSession("backlinks " + path)
	defer s.changes.EndSession()

	rep := &BacklinkReport{Path: path, Title: title, NotesUpdated: []string{}}
	sug := []models.SuggestedLink{{
		TargetText: title,
		LinkTarget: title,
		Reasoning:  "mentions " + title,
		Confidence: 1,
	}}

	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if m.Path == path {
			continue
		}
		data, err := s.store.Read(m.Path)
		if err != nil {
			s.logger.Warn("analyzer: backlink read failed",
				slog.String("path", m.Path),
				slog.String("error", err.Error()))
			continue
		}
		content := string(data)

		lres := filter.Links(sug, content, known, s.opts.Filter)
		if len(lres.Apply) == 0 {
			continue
		}

		entry := s.changes.RecordBefore(m.Path, content)
		patched, n := patch.Links(content, lres.Apply)
		if n == 0 || patched == content {
			s.changes.DiscardChange(entry)
			continue
		}
		if err := s.writeAndIndex(m.Path, patched); err != nil {
			s.changes.DiscardChange(entry)
			s.logger.Warn("analyzer: backlink write failed",
				slog.String("path", m.Path),
				slog.String("error", err.Error()))
			continue
		}
		s.changes.RecordAfter(entry, changelog.TypeLinkAdded,
			fmt.Sprintf("linked mention of %s", title), patched)
		rep.NotesUpdated = append(rep.NotesUpdated, m.Path)
	}

	s.logger.Info("analyzer: backlinks linked",
		slog.String("target", path),
		slog.Int("notes", len(rep.NotesUpdated)))
	return rep, nil
}

// HandleNoteEvent is the reactive-mode hook wired to the vault watcher.
// Created and updated notes are re-analyzed after a quiet period; edits the
// service itself just wrote are ignored.
func (s *Service) HandleNoteEvent(kind, path string) {
	if kind != "created" && kind != "updated" {
		return
	}
	if s.isOwnWrite(path) {
		return
	}

	s.mu.Lock()
	if t, ok := s.debounce[path]; ok {
		t.Stop()
	}
	s.debounce[path] = time.AfterFunc(reactiveDebounce, func() {
		s.mu.Lock()
		delete(s.debounce, path)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.AnalyzeNote(ctx, path); err != nil &&
			!errors.Is(err, apperr.ErrAnalysisInFlight) &&
			!errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn("analyzer: reactive analysis failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	})
	s.mu.Unlock()
}

// RollbackChange reverts one change and announces it.
func (s *Service) RollbackChange(id string) error {
	c := s.changes.Change(id)
	if err := s.changes.RollbackChange(id); err != nil {
		return err
	}
	if c != nil {
		s.reindexPath(c.Path)
		if s.broker != nil {
			s.broker.PublishRollback(id, c.Path)
		}
	}
	return nil
}

// RollbackSession reverts a whole session and reindexes the touched notes.
func (s *Service) RollbackSession(id string) (int, error) {
	// Capture paths before the session record is removed.
	var paths []string
	for _, sess := range s.changes.Sessions(0) {
		if sess.ID == id {
			for _, c := range sess.Changes {
				paths = append(paths, c.Path)
			}
		}
	}
	n, err := s.changes.RollbackSession(id)
	if err != nil {
		return 0, err
	}
	for _, p := range paths {
		s.reindexPath(p)
	}
	if s.broker != nil {
		s.broker.PublishRollback(id, "")
	}
	return n, nil
}

func (s *Service) vaultContext() oracle.VaultContext {
	ctx := oracle.VaultContext{
		Whitelist: s.opts.Filter.PredefinedTags,
		Blacklist: s.opts.Filter.Blacklist,
	}
	if titles, err := s.db.AllTitles(); err == nil {
		for t := range titles {
			ctx.KnownTitles = append(ctx.KnownTitles, t)
		}
	}
	if tags, err := s.db.AllTags(); err == nil {
		ctx.KnownTags = tags
	}
	p := s.learner.Preferences()
	ctx.PreferredTags = p.TopTags(preferredTagCount)
	return ctx
}

func (s *Service) knownTargets() (map[string]struct{}, error) {
	titles, err := s.db.AllTitles()
	if err != nil {
		return nil, fmt.Errorf("analyzer: load known titles: %w", err)
	}
	known := make(map[string]struct{}, len(titles))
	for t := range titles {
		known[t] = struct{}{}
	}
	return known, nil
}

// writeAndIndex persists patched content, reindexes it, and remembers the
// write so reactive mode skips the resulting watcher event.
func (s *Service) writeAndIndex(path, content string) error {
	data := []byte(content)

	s.mu.Lock()
	s.recentWrites[path] = checksum.Sum(data)
	s.mu.Unlock()

	if err := s.store.Write(path, data); err != nil {
		return fmt.Errorf("analyzer: write %s: %w", path, err)
	}
	if err := index.IndexFile(s.db, path, data); err != nil {
		s.logger.Warn("analyzer: reindex failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return nil
}

func (s *Service) reindexPath(path string) {
	data, err := s.store.Read(path)
	if err != nil {
		if derr := s.db.DeleteNote(path); derr != nil {
			s.logger.Warn("analyzer: deindex failed",
				slog.String("path", path),
				slog.String("error", derr.Error()))
		}
		return
	}
	if err := index.IndexFile(s.db, path, data); err != nil {
		s.logger.Warn("analyzer: reindex failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

func (s *Service) isOwnWrite(path string) bool {
	data, err := s.store.Read(path)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	want, ok := s.recentWrites[path]
	if !ok {
		return false
	}
	if checksum.Sum(data) == want {
		return true
	}
	// The note moved on since our write; stop tracking it.
	delete(s.recentWrites, path)
	return false
}

func (s *Service) acquire(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[path]; busy {
		return false
	}
	s.inflight[path] = struct{}{}
	return true
}

func (s *Service) release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, path)
}

func changeType(links, tags int) changelog.ChangeType {
	switch {
	case links > 0 && tags == 0:
		return changelog.TypeLinkAdded
	case tags > 0 && links == 0:
		return changelog.TypeTagAdded
	default:
		return changelog.TypeContentModified
	}
}
