// Package oracle talks to the external suggestion service (a local Ollama
// daemon or the OpenAI API) and turns its untrusted free-form output into
// validated suggestion sets.
package oracle

import (
	"context"

	"github.com/starford/ansuz/internal/models"
)

// VaultContext is the corpus-level context sent alongside a note so the
// oracle suggests links to notes that actually exist and tags the vault
// already uses.
type VaultContext struct {
	KnownTitles   []string
	KnownTags     []string
	PreferredTags []string
	Whitelist     []string
	Blacklist     []string
}

// Request carries one note to analyze.
type Request struct {
	Title       string
	Content     string
	Context     VaultContext
	MaxTokens   int
	Temperature float32
}

// Analysis is the validated suggestion set for one note. A note the oracle
// had nothing to say about (or answered with garbage) yields the zero value,
// never an error.
type Analysis struct {
	Links       []models.SuggestedLink `json:"suggested_links"`
	Tags        []models.SuggestedTag  `json:"suggested_tags"`
	KeyConcepts []string               `json:"key_concepts"`
	Summary     string                 `json:"summary"`
}

// Empty reports whether the analysis carries no suggestions at all.
func (a *Analysis) Empty() bool {
	return len(a.Links) == 0 && len(a.Tags) == 0 && len(a.KeyConcepts) == 0 && a.Summary == ""
}

// Client is the interface the analyzer depends on; backends and test
// doubles implement it.
type Client interface {
	// Analyze sends the note to the oracle and returns validated
	// suggestions. Errors are always *Error with a classified Kind.
	Analyze(ctx context.Context, req Request) (*Analysis, error)
}
