// Package parser extracts frontmatter, wikilinks, and tags from Markdown
// content, and exposes the span-level helpers the patch engine builds on.
package parser

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	// A tag name may start with a digit but needs at least one non-numeric
	// character, so issue references like #1 or #2024 are not tags.
	tagRe      = regexp.MustCompile(`(?:^|\s)#([0-9A-Za-z_/-]*[A-Za-z_/-][0-9A-Za-z_/-]*)`)
	validTagRe = regexp.MustCompile(`^[0-9A-Za-z_/-]*[A-Za-z_/-][0-9A-Za-z_/-]*$`)
	urlRe      = regexp.MustCompile(`https?://\S+`)
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Links       []string
	Tags        []string
	Title       string
}

// Span is a byte-offset region [Start, End) within a document.
type Span struct {
	Start int
	End   int
}

// Contains reports whether the span fully covers [start, end).
func (s Span) Contains(start, end int) bool {
	return start >= s.Start && end <= s.End
}

// Parse extracts frontmatter, body, wikilinks, and tags from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body := SplitFrontmatter(data)

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       ExtractLinks(body),
		Tags:        ExtractTags(body, fm),
		Title:       DeriveTitle(fm, body),
	}, nil
}

// SplitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found, or the YAML is invalid,
// the entire content is body.
func SplitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter.
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}

	return fm, body
}

// FrontmatterRegion returns the span of the frontmatter block (including both
// delimiter lines) within content, or a zero span if there is none. A block
// whose YAML does not parse is not frontmatter, keeping this view consistent
// with SplitFrontmatter's fallback.
func FrontmatterRegion(content string) Span {
	const delim = "---"
	lead := len(content) - len(strings.TrimLeft(content, "\n\r"))
	trimmed := content[lead:]
	if !strings.HasPrefix(trimmed, delim) {
		return Span{}
	}
	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return Span{}
	}
	var fm map[string]interface{}
	if err := yaml.Unmarshal([]byte(rest[:idx]), &fm); err != nil {
		return Span{}
	}
	end := lead + len(delim) + idx + 1 + len(delim)
	// Extend over the trailing newline of the closing delimiter line.
	if end < len(content) && content[end] == '\n' {
		end++
	}
	return Span{Start: lead, End: end}
}

// LinkSpans returns the byte-offset spans of all [[...]] regions in content.
func LinkSpans(content string) []Span {
	idxs := wikilinkRe.FindAllStringIndex(content, -1)
	spans := make([]Span, len(idxs))
	for i, m := range idxs {
		spans[i] = Span{Start: m[0], End: m[1]}
	}
	return spans
}

// ExtractLinks returns deduplicated wikilink targets, normalising aliases.
func ExtractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		raw := m[1]
		// Handle aliases: [[Target|Alias]] → Target.
		target := raw
		if i := strings.Index(raw, "|"); i >= 0 {
			target = raw[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// TagField returns the tags declared in the frontmatter "tags" field.
// Both list syntax and a bare scalar ("tags: idea" or "tags: a, b") are
// supported; values are trimmed and leading # markers stripped.
func TagField(fm map[string]interface{}) []string {
	if fm == nil {
		return nil
	}
	raw, ok := fm["tags"]
	if !ok {
		return nil
	}
	var out []string
	appendTag := func(s string) {
		s = NormalizeTag(s)
		if s != "" {
			out = append(out, s)
		}
	}
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				appendTag(s)
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			appendTag(part)
		}
	}
	return out
}

// InlineTags returns all #tags found in the body, markers stripped, in order
// of first occurrence, deduplicated.
func InlineTags(body string) []string {
	matches := tagRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// ExtractTags collects tags from the frontmatter "tags" field and inline
// #tags from the body, frontmatter first, deduplicated.
func ExtractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range TagField(fm) {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for _, t := range InlineTags(body) {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// FindFold returns the [start, end) byte offsets of the first
// case-insensitive occurrence of target in content, or nil when absent.
// Zero-length targets never match.
func FindFold(content, target string) []int {
	if target == "" {
		return nil
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(target))
	if err != nil {
		return nil
	}
	return re.FindStringIndex(content)
}

// NormalizeTag trims whitespace and strips a single leading # marker. Names
// that could not round-trip through an inline #marker are rejected with "":
// only letters, digits, underscores, hyphens and slashes are allowed, with at
// least one non-numeric character.
func NormalizeTag(tag string) string {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if !validTagRe.MatchString(tag) {
		return ""
	}
	return tag
}

// StripMarkup removes frontmatter, wikilink markup (keeping display text),
// inline tag markers, and URLs from content, leaving plain prose. Used by
// the preference learner's concept extraction.
func StripMarkup(content string) string {
	_, body := SplitFrontmatter([]byte(content))
	body = wikilinkRe.ReplaceAllStringFunc(body, func(m string) string {
		inner := strings.TrimSuffix(strings.TrimPrefix(m, "[["), "]]")
		// Keep the alias when present, the target otherwise.
		if i := strings.Index(inner, "|"); i >= 0 {
			return inner[i+1:]
		}
		return inner
	})
	body = urlRe.ReplaceAllString(body, " ")
	body = tagRe.ReplaceAllString(body, " ")
	return body
}

// DeriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func DeriveTitle(fm map[string]interface{}, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// NoteTitle derives the link-target title for a note path: the file name
// without its .md extension.
func NoteTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, ".md")
}
