package oracle

import (
	"fmt"
	"strings"
)

// maxContextTitles caps how many known titles are listed in the prompt so a
// large vault does not blow the context window.
const maxContextTitles = 200

const systemPrompt = `You analyze personal knowledge base notes and suggest improvements.
Respond with a single JSON object and nothing else, using this shape:
{
  "suggestedLinks": [{"targetText": "...", "linkTarget": "...", "reasoning": "...", "confidence": 0.0}],
  "suggestedTags": [{"tag": "...", "location": "frontmatter", "reasoning": "...", "confidence": 0.0}],
  "keyConcepts": ["..."],
  "summary": "..."
}
Only suggest linkTarget values taken from the list of existing note titles.
Prefer existing tags over inventing new ones. Confidence is a number between 0 and 1.`

// buildPrompt renders the user prompt for one note with its vault context.
func buildPrompt(req Request) string {
	var b strings.Builder

	titles := req.Context.KnownTitles
	if len(titles) > maxContextTitles {
		titles = titles[:maxContextTitles]
	}

	fmt.Fprintf(&b, "Note title: %s\n\n", req.Title)
	if len(titles) > 0 {
		fmt.Fprintf(&b, "Existing note titles:\n%s\n\n", strings.Join(titles, "\n"))
	}
	if len(req.Context.KnownTags) > 0 {
		fmt.Fprintf(&b, "Existing tags: %s\n", strings.Join(req.Context.KnownTags, ", "))
	}
	if len(req.Context.PreferredTags) > 0 {
		fmt.Fprintf(&b, "Frequently used tags (prefer these): %s\n", strings.Join(req.Context.PreferredTags, ", "))
	}
	if len(req.Context.Whitelist) > 0 {
		fmt.Fprintf(&b, "Allowed new tags: %s\n", strings.Join(req.Context.Whitelist, ", "))
	}
	if len(req.Context.Blacklist) > 0 {
		fmt.Fprintf(&b, "Never suggest these tags: %s\n", strings.Join(req.Context.Blacklist, ", "))
	}
	fmt.Fprintf(&b, "\nNote content:\n%s\n", req.Content)

	return b.String()
}
