package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/analyzer"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/changelog"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/oracle"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/prefs"
	"github.com/starford/ansuz/internal/storage"
)

// Handler holds API route handlers.
type Handler struct {
	svc     *analyzer.Service
	changes *changelog.Store
	learner *prefs.Learner
	db      *index.DB
	store   storage.Provider
}

// NewHandler creates a new Handler.
func NewHandler(svc *analyzer.Service, changes *changelog.Store, learner *prefs.Learner,
	db *index.DB, store storage.Provider) *Handler {
	return &Handler{svc: svc, changes: changes, learner: learner, db: db, store: store}
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return "", false
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return "", false
	}
	return req.Path, true
}

// writeAnalyzeError maps pipeline failures to HTTP statuses. Oracle failures
// surface as upstream problems, not internal ones.
func writeAnalyzeError(w http.ResponseWriter, path string, err error) {
	var oerr *oracle.Error
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAnalysisInFlight):
		writeJSON(w, http.StatusConflict, errorBody("analysis already in flight"))
	case errors.As(err, &oerr):
		status := http.StatusBadGateway
		if oerr.Kind == oracle.KindRateLimit {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, errorBody(oerr.Error()))
	default:
		slog.Error("analysis failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// AnalyzeNote handles POST /api/analyze/note.
//
//	@Summary		Analyze a single note and apply accepted suggestions
//	@Tags			analysis
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnalyzeRequest	true	"Note to analyze"
//	@Success		200		{object}	Report
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/analyze/note [post]
func (h *Handler) AnalyzeNote(w http.ResponseWriter, r *http.Request) {
	path, ok := decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}
	rep, err := h.svc.AnalyzeNote(r.Context(), path)
	if err != nil {
		writeAnalyzeError(w, path, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// AnalyzeVault handles POST /api/analyze/vault.
//
//	@Summary		Analyze every note in the vault
//	@Tags			analysis
//	@Produce		json
//	@Success		200	{object}	BatchReport
//	@Security		BearerAuth
//	@Router			/analyze/vault [post]
func (h *Handler) AnalyzeVault(w http.ResponseWriter, r *http.Request) {
	// The batch honors client disconnects but is otherwise allowed to run
	// long; progress streams over /events.
	rep, err := h.svc.AnalyzeVault(r.Context())
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("vault analysis failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Backlinks handles POST /api/backlinks.
//
//	@Summary		Link unlinked mentions of a note across the vault
//	@Tags			analysis
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnalyzeRequest	true	"Target note"
//	@Success		200		{object}	BacklinkReport
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks [post]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path, ok := decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}
	rep, err := h.svc.LinkBacklinks(r.Context(), path)
	if err != nil {
		writeAnalyzeError(w, path, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Changes handles GET /api/changes.
//
//	@Summary		List change history sessions
//	@Tags			changes
//	@Produce		json
//	@Param			limit	query		int	false	"Max sessions, most recent last"
//	@Success		200		{object}	HistoryResponse
//	@Security		BearerAuth
//	@Router			/changes [get]
func (h *Handler) Changes(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions := h.changes.Sessions(limit)
	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = sessionDTO(s)
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Sessions: dtos})
}

// RollbackChange handles POST /api/changes/{id}/rollback.
//
//	@Summary		Revert a single recorded change
//	@Tags			changes
//	@Produce		json
//	@Param			id	path	string	true	"Change id"
//	@Success		204	"Change reverted"
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/changes/{id}/rollback [post]
func (h *Handler) RollbackChange(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.RollbackChange(id); err != nil {
		switch {
		case errors.Is(err, apperr.ErrChangeNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("change not found"))
		case errors.Is(err, apperr.ErrNotRollbackable):
			writeJSON(w, http.StatusConflict, errorBody("change has no recoverable prior state"))
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusConflict, errorBody("target file no longer exists"))
		default:
			slog.Error("rollback failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RollbackSession handles POST /api/sessions/{id}/rollback.
//
//	@Summary		Revert every change of a session
//	@Tags			changes
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	RollbackResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/rollback [post]
func (h *Handler) RollbackSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.svc.RollbackSession(id)
	if err != nil {
		if errors.Is(err, apperr.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("session not found"))
			return
		}
		slog.Error("session rollback failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RollbackResponse{Restored: n})
}

// Preferences handles GET /api/preferences.
//
//	@Summary		Get learned vault preferences
//	@Tags			preferences
//	@Produce		json
//	@Success		200	{object}	PreferencesResponse
//	@Security		BearerAuth
//	@Router			/preferences [get]
func (h *Handler) Preferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.learner.Preferences())
}

// AnalyzePreferences handles POST /api/preferences/analyze.
//
//	@Summary		Recompute vault preferences from the full corpus
//	@Tags			preferences
//	@Produce		json
//	@Success		200	{object}	PreferencesResponse
//	@Security		BearerAuth
//	@Router			/preferences/analyze [post]
func (h *Handler) AnalyzePreferences(w http.ResponseWriter, r *http.Request) {
	if err := h.learner.AnalyzeVault(r.Context()); err != nil {
		slog.Error("preference analysis failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, h.learner.Preferences())
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.db.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	data, err := h.store.Read(path)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	res, err := parser.Parse(data)
	if err != nil {
		slog.Error("parse failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	bl, _ := h.db.Backlinks(path)
	if bl == nil {
		bl = []string{}
	}
	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	title := res.Title
	if title == "" {
		title = parser.NoteTitle(path)
	}
	writeJSON(w, http.StatusOK, NoteDetail{
		Path:        path,
		Title:       title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        tags,
		Frontmatter: res.Frontmatter,
		Backlinks:   bl,
	})
}
