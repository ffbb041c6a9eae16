package oracle

import (
	"encoding/json"
	"strings"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
)

// defaultConfidence is assumed when the oracle omits a confidence score.
const defaultConfidence = 0.7

// ParseAnalysis extracts the first well-formed JSON object embedded in the
// oracle's free-form reply and validates it field by field. Surrounding
// prose is tolerated; total parse failure yields an empty Analysis rather
// than an error, since a chatty or confused oracle is an expected condition.
func ParseAnalysis(raw string) *Analysis {
	obj := firstJSONObject(raw)
	if obj == nil {
		return &Analysis{}
	}

	out := &Analysis{}

	for _, entry := range asObjectList(obj["suggestedLinks"]) {
		targetText, ok1 := asString(entry["targetText"])
		linkTarget, ok2 := asString(entry["linkTarget"])
		if !ok1 || !ok2 || targetText == "" || linkTarget == "" {
			continue
		}
		reasoning, _ := asString(entry["reasoning"])
		out.Links = append(out.Links, models.SuggestedLink{
			TargetText: targetText,
			LinkTarget: linkTarget,
			Reasoning:  reasoning,
			Confidence: asConfidence(entry["confidence"]),
		})
	}

	for _, entry := range asObjectList(obj["suggestedTags"]) {
		tag, ok := asString(entry["tag"])
		if !ok || parser.NormalizeTag(tag) == "" {
			continue
		}
		reasoning, _ := asString(entry["reasoning"])
		location, _ := asString(entry["location"])
		out.Tags = append(out.Tags, models.SuggestedTag{
			Tag:        tag,
			Location:   normalizeLocation(location),
			Reasoning:  reasoning,
			Confidence: asConfidence(entry["confidence"]),
		})
	}

	if concepts, ok := obj["keyConcepts"].([]interface{}); ok {
		for _, c := range concepts {
			if s, ok := asString(c); ok && s != "" {
				out.KeyConcepts = append(out.KeyConcepts, s)
			}
		}
	}

	if summary, ok := asString(obj["summary"]); ok {
		out.Summary = summary
	}

	return out
}

// firstJSONObject returns the first decodable JSON object found in raw.
// It tries a decode at every '{' so a brace inside leading prose does not
// defeat extraction.
func firstJSONObject(raw string) map[string]interface{} {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(raw[i:]))
		var obj map[string]interface{}
		if err := dec.Decode(&obj); err == nil {
			return obj
		}
	}
	return nil
}

func asObjectList(v interface{}) []map[string]interface{} {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []map[string]interface{}
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func asString(v interface{}) (string, bool) {
	s, ok := v.(string)
	return strings.TrimSpace(s), ok
}

// asConfidence coerces a confidence value to a float in [0,1], defaulting
// when missing or not a number.
func asConfidence(v interface{}) float64 {
	f, ok := v.(float64)
	if !ok {
		return defaultConfidence
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func normalizeLocation(loc string) string {
	switch strings.ToLower(loc) {
	case models.TagLocationInline:
		return models.TagLocationInline
	case models.TagLocationFrontmatter, "header":
		return models.TagLocationFrontmatter
	default:
		return models.TagLocationFrontmatter
	}
}
