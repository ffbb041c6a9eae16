// Package models defines the domain types for Ansuz.
package models

import "time"

// Note represents a parsed Markdown file in the vault.
type Note struct {
	Path        string                 `json:"path"`
	Content     []byte                 `json:"-"`
	Body        string                 `json:"body"`
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Links       []string               `json:"links,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Checksum    string                 `json:"checksum"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link represents a directed edge between two notes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"` // "inline" or "frontmatter"
}

// SuggestedLink is a wikilink candidate produced by the oracle for one note.
// TargetText is the surface text in the note body that should become a link
// to LinkTarget (a note title). Suggestions are ephemeral: consumed by the
// filter and the patch engine, never persisted.
type SuggestedLink struct {
	TargetText string  `json:"target_text"`
	LinkTarget string  `json:"link_target"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Tag placement locations.
const (
	TagLocationFrontmatter = "frontmatter"
	TagLocationInline      = "inline"
)

// SuggestedTag is a tag candidate produced by the oracle for one note.
type SuggestedTag struct {
	Tag        string  `json:"tag"`
	Location   string  `json:"location"` // "frontmatter" or "inline"
	Reasoning  string  `json:"reasoning,omitempty"`
	Confidence float64 `json:"confidence"`
}
