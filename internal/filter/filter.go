// Package filter validates oracle suggestions before they reach the patch
// engine. Both filters are pure functions of their inputs: no I/O, no
// side effects, so they can be unit-tested against literal fixtures.
// A rejected suggestion is routed to the skip list with a reason; rejection
// is informational and never an error.
package filter

import (
	"strings"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
)

// Options holds the acceptance gates shared by both filters.
type Options struct {
	// MinConfidence is the acceptance threshold; suggestions scoring below
	// it are skipped regardless of any other condition.
	MinConfidence float64
	// AllowNewTags permits tags that exist neither in the vault nor in
	// PredefinedTags.
	AllowNewTags bool
	// PredefinedTags are always acceptable tag names.
	PredefinedTags []string
	// Blacklist rejects any tag containing one of these terms
	// (case-insensitive substring match).
	Blacklist []string
}

// SkippedLink is a rejected link suggestion with the reason it was skipped.
type SkippedLink struct {
	Suggestion models.SuggestedLink
	Reason     string
}

// SkippedTag is a rejected tag suggestion with the reason it was skipped.
type SkippedTag struct {
	Suggestion models.SuggestedTag
	Reason     string
}

// LinkResult partitions link suggestions into accepted and skipped.
type LinkResult struct {
	Apply []models.SuggestedLink
	Skip  []SkippedLink
}

// TagResult partitions tag suggestions into accepted and skipped.
type TagResult struct {
	Apply []models.SuggestedTag
	Skip  []SkippedTag
}

// Links validates link suggestions against content and the set of known
// note titles (the corpus ground truth for valid link targets).
func Links(sugs []models.SuggestedLink, content string, knownTargets map[string]struct{}, opts Options) LinkResult {
	var res LinkResult

	linked := make(map[string]struct{})
	for _, target := range parser.ExtractLinks(content) {
		linked[strings.ToLower(target)] = struct{}{}
	}
	spans := parser.LinkSpans(content)

	for _, sug := range sugs {
		switch {
		case sug.Confidence < opts.MinConfidence:
			res.Skip = append(res.Skip, SkippedLink{sug, "confidence below threshold"})
		case sug.TargetText == "":
			res.Skip = append(res.Skip, SkippedLink{sug, "empty target text"})
		case !targetKnown(knownTargets, sug.LinkTarget):
			res.Skip = append(res.Skip, SkippedLink{sug, "link target is not a known note"})
		case alreadyLinked(linked, sug.LinkTarget):
			res.Skip = append(res.Skip, SkippedLink{sug, "link already exists"})
		default:
			loc := parser.FindFold(content, sug.TargetText)
			if loc == nil {
				res.Skip = append(res.Skip, SkippedLink{sug, "target text not found in note"})
				continue
			}
			if insideSpan(spans, loc[0], loc[1]) {
				res.Skip = append(res.Skip, SkippedLink{sug, "target text is already part of a link"})
				continue
			}
			res.Apply = append(res.Apply, sug)
		}
	}
	return res
}

// Tags validates tag suggestions against content and the vault's known tag
// set.
func Tags(sugs []models.SuggestedTag, content string, vaultTags []string, opts Options) TagResult {
	var res TagResult

	fm, body := parser.SplitFrontmatter([]byte(content))
	present := make(map[string]struct{})
	for _, t := range parser.TagField(fm) {
		present[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range parser.InlineTags(body) {
		present[strings.ToLower(t)] = struct{}{}
	}

	known := make(map[string]struct{}, len(vaultTags)+len(opts.PredefinedTags))
	for _, t := range vaultTags {
		known[strings.ToLower(parser.NormalizeTag(t))] = struct{}{}
	}
	for _, t := range opts.PredefinedTags {
		known[strings.ToLower(parser.NormalizeTag(t))] = struct{}{}
	}

	for _, sug := range sugs {
		name := parser.NormalizeTag(sug.Tag)
		lower := strings.ToLower(name)
		switch {
		case sug.Confidence < opts.MinConfidence:
			res.Skip = append(res.Skip, SkippedTag{sug, "confidence below threshold"})
		case name == "":
			res.Skip = append(res.Skip, SkippedTag{sug, "empty or invalid tag name"})
		case hasTag(present, lower):
			res.Skip = append(res.Skip, SkippedTag{sug, "tag already present"})
		case blacklisted(lower, opts.Blacklist):
			res.Skip = append(res.Skip, SkippedTag{sug, "tag is blacklisted"})
		case !opts.AllowNewTags && !hasTag(known, lower):
			res.Skip = append(res.Skip, SkippedTag{sug, "new tags are disabled and tag is unknown"})
		default:
			present[lower] = struct{}{}
			res.Apply = append(res.Apply, sug)
		}
	}
	return res
}

func targetKnown(known map[string]struct{}, target string) bool {
	if _, ok := known[target]; ok {
		return true
	}
	// Titles are matched case-insensitively as a fallback.
	for k := range known {
		if strings.EqualFold(k, target) {
			return true
		}
	}
	return false
}

func alreadyLinked(linked map[string]struct{}, target string) bool {
	_, ok := linked[strings.ToLower(target)]
	return ok
}

func hasTag(set map[string]struct{}, lower string) bool {
	_, ok := set[lower]
	return ok
}

func blacklisted(lower string, blacklist []string) bool {
	for _, term := range blacklist {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func insideSpan(spans []parser.Span, start, end int) bool {
	for _, s := range spans {
		if start < s.End && end > s.Start {
			return true
		}
	}
	return false
}
