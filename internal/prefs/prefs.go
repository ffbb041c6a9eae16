// Package prefs computes corpus-wide usage statistics (tag frequency, link
// patterns, recurring concepts) that bias future suggestion filtering. The
// aggregates are a point-in-time snapshot: each vault analysis fully
// recomputes them, nothing ties them to live note content between scans.
package prefs

import (
	"sort"
	"time"
)

// StoragePath is the vault-relative location of the persisted preferences.
const StoragePath = ".ansuz/preferences.json"

// Tag location classifications for PreferredTagLocation.
const (
	LocationFrontmatter = "frontmatter"
	LocationInline      = "inline"
	LocationMixed       = "mixed"
)

// Preferences is the aggregate produced by a vault scan.
type Preferences struct {
	FrequentTags         map[string]int `json:"frequent_tags"`
	LinkPatterns         map[string]int `json:"link_patterns"`
	FrequentConcepts     map[string]int `json:"frequent_concepts"`
	Vocabulary           []string       `json:"vocabulary"`
	TopTopics            []string       `json:"top_topics"`
	PreferredTagLocation string         `json:"preferred_tag_location"`
	AvgTagsPerNote       float64        `json:"avg_tags_per_note"`
	AvgLinksPerNote      float64        `json:"avg_links_per_note"`
	LastUpdated          time.Time      `json:"last_updated"`
}

func newPreferences() *Preferences {
	return &Preferences{
		FrequentTags:         map[string]int{},
		LinkPatterns:         map[string]int{},
		FrequentConcepts:     map[string]int{},
		PreferredTagLocation: LocationMixed,
	}
}

// TopTags returns the n most frequent tags, most frequent first. Ties break
// alphabetically so the result is stable.
func (p *Preferences) TopTags(n int) []string {
	type entry struct {
		tag   string
		count int
	}
	entries := make([]entry, 0, len(p.FrequentTags))
	for tag, count := range p.FrequentTags {
		entries = append(entries, entry{tag, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].tag < entries[j].tag
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.tag
	}
	return out
}
