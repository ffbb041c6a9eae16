package api

import (
	"time"

	"github.com/starford/ansuz/internal/analyzer"
	"github.com/starford/ansuz/internal/changelog"
	"github.com/starford/ansuz/internal/prefs"
)

// AnalyzeRequest is the request body for single-note analysis and backlink
// passes.
type AnalyzeRequest struct {
	Path string `json:"path" example:"topics/golang.md" validate:"required"`
}

// Report is the single-note analysis response (aliased from the domain layer).
type Report = analyzer.Report

// BatchReport is the vault-wide analysis response.
type BatchReport = analyzer.BatchReport

// BacklinkReport is the backlink pass response.
type BacklinkReport = analyzer.BacklinkReport

// SessionDTO is one changelog session in history responses.
type SessionDTO struct {
	ID        string      `json:"session_id" validate:"required"`
	Label     string      `json:"label,omitempty"`
	StartTime time.Time   `json:"start_time"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
	Changes   []ChangeDTO `json:"changes"`
}

// ChangeDTO is one recorded change, without the content snapshots (those can
// be large; history listing is an overview, rollback needs no client copy).
type ChangeDTO struct {
	ID           string    `json:"id" validate:"required"`
	Timestamp    time.Time `json:"timestamp"`
	Type         string    `json:"type" example:"link_added"`
	Path         string    `json:"file_path"`
	Description  string    `json:"description"`
	Rollbackable bool      `json:"rollbackable"`
}

// HistoryResponse wraps the session history.
type HistoryResponse struct {
	Sessions []SessionDTO `json:"sessions" validate:"required"`
}

// RollbackResponse reports the outcome of a session rollback.
type RollbackResponse struct {
	Restored int `json:"restored" example:"3" validate:"required"`
}

// PreferencesResponse is the learned-preferences payload.
type PreferencesResponse = prefs.Preferences

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"topics/golang.md" validate:"required"`
	Title   string `json:"title" example:"Golang" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// NoteDetail is the read-only note payload with backlink enrichment.
type NoteDetail struct {
	Path        string         `json:"path" example:"topics/golang.md" validate:"required"`
	Title       string         `json:"title" example:"Golang"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Backlinks   []string       `json:"backlinks"`
}

func sessionDTO(s *changelog.Session) SessionDTO {
	dto := SessionDTO{
		ID:        s.ID,
		Label:     s.Label,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Changes:   make([]ChangeDTO, len(s.Changes)),
	}
	for i, c := range s.Changes {
		dto.Changes[i] = ChangeDTO{
			ID:           c.ID,
			Timestamp:    c.Timestamp,
			Type:         string(c.Type),
			Path:         c.Path,
			Description:  c.Description,
			Rollbackable: c.Rollbackable(),
		}
	}
	return dto
}
