// Package patch applies validated link and tag suggestions to raw note
// content. All operations are position-independent text substitutions that
// are safe to re-run: applying the same suggestion set to already-patched
// content is a no-op.
package patch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
)

// Links inserts wikilinks for the given suggestions and returns the patched
// content plus the number of links actually added.
//
// A candidate is skipped when its link target is already linked anywhere in
// the note, when its surface text sits inside an existing link span, or when
// the surface text does not occur at all. Only the first case-insensitive
// occurrence is linked. Candidates are applied in descending order of their
// first-occurrence offset: replacements change content length, so working
// back-to-front keeps every not-yet-applied candidate's offset valid.
func Links(content string, sugs []models.SuggestedLink) (string, int) {
	if len(sugs) == 0 {
		return content, 0
	}

	linked := make(map[string]struct{})
	for _, target := range parser.ExtractLinks(content) {
		linked[strings.ToLower(target)] = struct{}{}
	}
	spans := parser.LinkSpans(content)

	type candidate struct {
		sug   models.SuggestedLink
		start int
		end   int
	}
	var candidates []candidate

	for _, sug := range sugs {
		if sug.TargetText == "" || sug.LinkTarget == "" {
			continue
		}
		if _, ok := linked[strings.ToLower(sug.LinkTarget)]; ok {
			continue
		}
		loc := parser.FindFold(content, sug.TargetText)
		if loc == nil {
			continue
		}
		if insideAny(spans, loc[0], loc[1]) {
			continue
		}
		candidates = append(candidates, candidate{sug: sug, start: loc[0], end: loc[1]})
		// One link per target within a single application.
		linked[strings.ToLower(sug.LinkTarget)] = struct{}{}
	}

	// Latest occurrence first, so splices never shift pending offsets.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].start > candidates[j].start
	})

	applied := 0
	prevStart := len(content) + 1
	for _, c := range candidates {
		if c.end > prevStart {
			// Overlaps a candidate already applied further right.
			continue
		}
		surface := content[c.start:c.end]
		var link string
		if surface == c.sug.LinkTarget {
			link = fmt.Sprintf("[[%s]]", c.sug.LinkTarget)
		} else {
			link = fmt.Sprintf("[[%s|%s]]", c.sug.LinkTarget, surface)
		}
		content = content[:c.start] + link + content[c.end:]
		prevStart = c.start
		applied++
	}

	return content, applied
}

func insideAny(spans []parser.Span, start, end int) bool {
	for _, s := range spans {
		// Any overlap with a link span disqualifies the occurrence.
		if start < s.End && end > s.Start {
			return true
		}
	}
	return false
}

// Tags merges the suggested tags into the note and returns the patched
// content plus the number of tags actually added. Tags already present in
// the frontmatter tags field or inline in the body are skipped
// (case-insensitively, with or without the # marker). Frontmatter-located
// tags are merged into the tags field, creating the field or the whole
// frontmatter block when absent; inline tags are appended as one trailing
// line.
func Tags(content string, sugs []models.SuggestedTag) (string, int) {
	if len(sugs) == 0 {
		return content, 0
	}

	fm, body := parser.SplitFrontmatter([]byte(content))
	existing := make(map[string]struct{})
	for _, t := range parser.TagField(fm) {
		existing[strings.ToLower(t)] = struct{}{}
	}
	for _, t := range parser.InlineTags(body) {
		existing[strings.ToLower(t)] = struct{}{}
	}

	var toFrontmatter, toInline []string
	for _, sug := range sugs {
		tag := parser.NormalizeTag(sug.Tag)
		if tag == "" {
			continue
		}
		if _, dup := existing[strings.ToLower(tag)]; dup {
			continue
		}
		existing[strings.ToLower(tag)] = struct{}{}
		if sug.Location == models.TagLocationInline {
			toInline = append(toInline, tag)
		} else {
			toFrontmatter = append(toFrontmatter, tag)
		}
	}

	applied := 0
	if len(toFrontmatter) > 0 {
		content = mergeFrontmatterTags(content, parser.TagField(fm), toFrontmatter)
		applied += len(toFrontmatter)
	}
	if len(toInline) > 0 {
		markers := make([]string, len(toInline))
		for i, t := range toInline {
			markers[i] = "#" + t
		}
		content = strings.TrimRight(content, " \t\n") + "\n\n" + strings.Join(markers, " ") + "\n"
		applied += len(toInline)
	}

	return content, applied
}

// mergeFrontmatterTags rewrites (or creates) the frontmatter tags field with
// existing tags preserved and newTags appended, always emitting the
// bracketed list form.
func mergeFrontmatterTags(content string, existingTags, newTags []string) string {
	merged := append(append([]string{}, existingTags...), newTags...)
	tagsLine := "tags: [" + strings.Join(merged, ", ") + "]"

	region := parser.FrontmatterRegion(content)
	if region == (parser.Span{}) {
		return "---\n" + tagsLine + "\n---\n" + content
	}

	block := content[region.Start:region.End]
	lines := strings.Split(block, "\n")

	// Locate the tags field and any indented list items that follow it.
	start, end := -1, -1
	for i, line := range lines {
		if start < 0 {
			if strings.HasPrefix(line, "tags:") {
				start = i
				end = i + 1
			}
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") {
			end = i + 1
			continue
		}
		break
	}

	var rebuilt []string
	if start < 0 {
		// No tags field: insert before the closing delimiter line.
		closing := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "---" {
				closing = i
				break
			}
		}
		rebuilt = append(rebuilt, lines[:closing]...)
		rebuilt = append(rebuilt, tagsLine)
		rebuilt = append(rebuilt, lines[closing:]...)
	} else {
		rebuilt = append(rebuilt, lines[:start]...)
		rebuilt = append(rebuilt, tagsLine)
		rebuilt = append(rebuilt, lines[end:]...)
	}

	return content[:region.Start] + strings.Join(rebuilt, "\n") + content[region.End:]
}
