package prefs

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
)

// minConceptLength is exclusive: tokens of this many runes or fewer are noise.
const minConceptLength = 4

// topTopicCount bounds the promoted topic list.
const topTopicCount = 10

// stopWords are common tokens that survive the length cut but carry no
// topical signal.
var stopWords = map[string]struct{}{
	"about": {}, "above": {}, "after": {}, "again": {}, "because": {},
	"before": {}, "being": {}, "between": {}, "could": {}, "doing": {},
	"during": {}, "every": {}, "first": {}, "having": {}, "however": {},
	"might": {}, "other": {}, "really": {}, "should": {}, "since": {},
	"their": {}, "there": {}, "therefore": {}, "these": {}, "thing": {},
	"things": {}, "think": {}, "those": {}, "through": {}, "under": {},
	"until": {}, "where": {}, "which": {}, "while": {}, "would": {},
}

// Learner owns the preference aggregates and their persistence.
type Learner struct {
	provider storage.Provider
	logger   *slog.Logger

	mu    sync.Mutex
	prefs *Preferences
}

// NewLearner creates a Learner persisting through provider.
func NewLearner(provider storage.Provider, logger *slog.Logger) *Learner {
	return &Learner{
		provider: provider,
		logger:   logger,
		prefs:    newPreferences(),
	}
}

// Load reads previously persisted preferences. Missing or corrupt storage
// yields empty aggregates.
func (l *Learner) Load() {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.provider.Read(StoragePath)
	if err != nil {
		return
	}
	var loaded Preferences
	if err := json.Unmarshal(data, &loaded); err != nil {
		l.logger.Warn("prefs: corrupt storage, starting empty", slog.String("error", err.Error()))
		return
	}
	if loaded.FrequentTags == nil {
		loaded.FrequentTags = map[string]int{}
	}
	if loaded.LinkPatterns == nil {
		loaded.LinkPatterns = map[string]int{}
	}
	if loaded.FrequentConcepts == nil {
		loaded.FrequentConcepts = map[string]int{}
	}
	l.prefs = &loaded
}

// Preferences returns a copy of the current aggregates.
func (l *Learner) Preferences() Preferences {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.prefs
}

// AnalyzeVault performs the full-corpus statistical scan, replacing all
// aggregates with freshly computed values and persisting the result.
func (l *Learner) AnalyzeVault(ctx context.Context) error {
	metas, err := l.provider.List("")
	if err != nil {
		return err
	}

	next := newPreferences()
	var (
		totalTags, totalLinks    int
		headerTags, inlineTags   int
		conceptDocs              = map[string]int{} // concept → distinct docs
		conceptTotal             = map[string]int{} // concept → corpus-wide count
		noteCount                int
	)

	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := l.provider.Read(m.Path)
		if err != nil {
			l.logger.Warn("prefs: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		noteCount++

		res, _ := parser.Parse(data)
		for _, tag := range res.Tags {
			next.FrequentTags[strings.ToLower(tag)]++
		}
		headerTags += len(parser.TagField(res.Frontmatter))
		inlineTags += len(parser.InlineTags(res.Body))
		totalTags += len(res.Tags)

		for _, target := range res.Links {
			next.LinkPatterns[target]++
		}
		totalLinks += len(res.Links)

		// A token repeated within one note is that note's signal; corpus-wide
		// frequency alone does not make a concept.
		for concept, count := range docConcepts(string(data)) {
			conceptDocs[concept]++
			conceptTotal[concept] += count
		}
	}

	for concept, docs := range conceptDocs {
		if docs > 1 && conceptTotal[concept] > 2 {
			next.FrequentConcepts[concept] = conceptTotal[concept]
		}
	}
	next.Vocabulary = sortedKeys(next.FrequentConcepts)
	next.TopTopics = topConcepts(next.FrequentConcepts, topTopicCount)
	next.PreferredTagLocation = dominantLocation(headerTags, inlineTags)
	if noteCount > 0 {
		next.AvgTagsPerNote = float64(totalTags) / float64(noteCount)
		next.AvgLinksPerNote = float64(totalLinks) / float64(noteCount)
	}
	next.LastUpdated = time.Now()

	l.mu.Lock()
	l.prefs = next
	l.persistLocked()
	l.mu.Unlock()

	l.logger.Info("prefs: vault analyzed",
		slog.Int("notes", noteCount),
		slog.Int("tags", len(next.FrequentTags)),
		slog.Int("concepts", len(next.FrequentConcepts)))
	return nil
}

// RecordTagUsage bumps one tag's frequency without a full rescan, the fast
// path taken when a suggestion is applied.
func (l *Learner) RecordTagUsage(tag string) {
	tag = strings.ToLower(parser.NormalizeTag(tag))
	if tag == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prefs.FrequentTags[tag]++
	l.persistLocked()
}

// docConcepts tokenizes one note and returns the tokens that repeat within
// it, with their in-note counts.
func docConcepts(content string) map[string]int {
	counts := map[string]int{}
	for _, token := range strings.Fields(strings.ToLower(parser.StripMarkup(content))) {
		token = strings.Trim(token, ".,;:!?()\"'`*_-[]{}")
		if utf8.RuneCountInString(token) <= minConceptLength {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		counts[token]++
	}
	for token, count := range counts {
		if count < 2 {
			delete(counts, token)
		}
	}
	return counts
}

// dominantLocation applies the 2:1 dominance rule between header and inline
// tag counts.
func dominantLocation(header, inline int) string {
	switch {
	case header == 0 && inline == 0:
		return LocationMixed
	case header >= 2*inline:
		return LocationFrontmatter
	case inline >= 2*header:
		return LocationInline
	default:
		return LocationMixed
	}
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func topConcepts(m map[string]int, n int) []string {
	type entry struct {
		concept string
		count   int
	}
	entries := make([]entry, 0, len(m))
	for c, count := range m {
		entries = append(entries, entry{c, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].concept < entries[j].concept
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.concept
	}
	return out
}

func (l *Learner) persistLocked() {
	data, err := json.MarshalIndent(l.prefs, "", "  ")
	if err != nil {
		l.logger.Error("prefs: marshal failed", slog.String("error", err.Error()))
		return
	}
	if err := l.provider.Write(StoragePath, data); err != nil {
		l.logger.Error("prefs: persist failed", slog.String("error", err.Error()))
	}
}
