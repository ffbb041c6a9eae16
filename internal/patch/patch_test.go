package patch

import (
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/models"
)

func link(text, target string) models.SuggestedLink {
	return models.SuggestedLink{TargetText: text, LinkTarget: target, Confidence: 0.9}
}

func TestLinks_AliasForm(t *testing.T) {
	content := "I love cats."
	out, n := Links(content, []models.SuggestedLink{link("cats", "Cats")})
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}
	if out != "I love [[Cats|cats]]." {
		t.Errorf("out = %q", out)
	}
}

func TestLinks_ExactForm(t *testing.T) {
	content := "Read about Cats today."
	out, n := Links(content, []models.SuggestedLink{link("Cats", "Cats")})
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}
	if out != "Read about [[Cats]] today." {
		t.Errorf("out = %q", out)
	}
}

func TestLinks_Idempotent(t *testing.T) {
	sugs := []models.SuggestedLink{link("cats", "Cats")}
	once, _ := Links("I love cats.", sugs)
	twice, n := Links(once, sugs)
	if n != 0 {
		t.Errorf("second application added %d links", n)
	}
	if twice != once {
		t.Errorf("second application changed content: %q vs %q", twice, once)
	}
}

func TestLinks_SkipsAlreadyLinkedTarget(t *testing.T) {
	content := "See [[Cats]] and also cats elsewhere."
	out, n := Links(content, []models.SuggestedLink{link("cats", "Cats")})
	if n != 0 || out != content {
		t.Errorf("out = %q, applied = %d", out, n)
	}
}

func TestLinks_SkipsTextInsideExistingSpan(t *testing.T) {
	content := "See [[Feline|cats]] for details."
	out, n := Links(content, []models.SuggestedLink{link("cats", "Cats")})
	if n != 0 || out != content {
		t.Errorf("out = %q, applied = %d", out, n)
	}
}

func TestLinks_SkipsAbsentAndEmptyTargets(t *testing.T) {
	content := "Nothing to see here."
	out, n := Links(content, []models.SuggestedLink{
		link("dogs", "Dogs"),
		link("", "Empty"),
	})
	if n != 0 || out != content {
		t.Errorf("out = %q, applied = %d", out, n)
	}
}

func TestLinks_OnlyFirstOccurrence(t *testing.T) {
	content := "cats here, cats there"
	out, n := Links(content, []models.SuggestedLink{link("cats", "Cats")})
	if n != 1 {
		t.Fatalf("applied = %d", n)
	}
	if out != "[[Cats|cats]] here, cats there" {
		t.Errorf("out = %q", out)
	}
}

func TestLinks_OffsetSafety(t *testing.T) {
	// Three replacements with very different length deltas; descending
	// offset order must keep every splice on target.
	content := "alpha and beta and gamma end"
	out, n := Links(content, []models.SuggestedLink{
		link("alpha", "A Very Long Target Name"),
		link("beta", "B"),
		link("gamma", "Gamma"),
	})
	if n != 3 {
		t.Fatalf("applied = %d, want 3", n)
	}
	want := "[[A Very Long Target Name|alpha]] and [[B|beta]] and [[Gamma|gamma]] end"
	if out != want {
		t.Errorf("out = %q\nwant %q", out, want)
	}
}

func TestLinks_EmptySuggestions(t *testing.T) {
	out, n := Links("unchanged", nil)
	if n != 0 || out != "unchanged" {
		t.Errorf("out = %q, applied = %d", out, n)
	}
}

func tag(name, location string) models.SuggestedTag {
	return models.SuggestedTag{Tag: name, Location: location, Confidence: 0.8}
}

func TestTags_CreatesFrontmatterBlock(t *testing.T) {
	out, n := Tags("Some text", []models.SuggestedTag{tag("#idea", models.TagLocationFrontmatter)})
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}
	want := "---\ntags: [idea]\n---\nSome text"
	if out != want {
		t.Errorf("out = %q\nwant %q", out, want)
	}
}

func TestTags_MergesIntoExistingField(t *testing.T) {
	content := "---\ntitle: X\ntags:\n  - go\n---\nbody\n"
	out, n := Tags(content, []models.SuggestedTag{tag("ideas", models.TagLocationFrontmatter)})
	if n != 1 {
		t.Fatalf("applied = %d", n)
	}
	if !strings.Contains(out, "tags: [go, ideas]") {
		t.Errorf("out = %q", out)
	}
	if !strings.Contains(out, "title: X") {
		t.Errorf("unrelated frontmatter lost: %q", out)
	}
	if !strings.HasSuffix(out, "body\n") {
		t.Errorf("body altered: %q", out)
	}
}

func TestTags_BareScalarField(t *testing.T) {
	content := "---\ntags: go\n---\nbody"
	out, n := Tags(content, []models.SuggestedTag{tag("ideas", models.TagLocationFrontmatter)})
	if n != 1 {
		t.Fatalf("applied = %d", n)
	}
	if !strings.Contains(out, "tags: [go, ideas]") {
		t.Errorf("out = %q", out)
	}
}

func TestTags_AddsFieldToExistingFrontmatter(t *testing.T) {
	content := "---\ntitle: X\n---\nbody"
	out, n := Tags(content, []models.SuggestedTag{tag("idea", models.TagLocationFrontmatter)})
	if n != 1 {
		t.Fatalf("applied = %d", n)
	}
	if !strings.Contains(out, "title: X\ntags: [idea]\n---") {
		t.Errorf("out = %q", out)
	}
}

func TestTags_InlineAppended(t *testing.T) {
	content := "Some body text.   \n\n"
	out, n := Tags(content, []models.SuggestedTag{
		tag("one", models.TagLocationInline),
		tag("two", models.TagLocationInline),
	})
	if n != 2 {
		t.Fatalf("applied = %d", n)
	}
	if !strings.HasSuffix(out, "Some body text.\n\n#one #two\n") {
		t.Errorf("out = %q", out)
	}
}

func TestTags_DuplicatesSkippedCaseInsensitive(t *testing.T) {
	content := "---\ntags: [Go]\n---\nbody with #ideas tag"
	out, n := Tags(content, []models.SuggestedTag{
		tag("go", models.TagLocationFrontmatter),
		tag("#Ideas", models.TagLocationInline),
	})
	if n != 0 {
		t.Errorf("applied = %d, want 0", n)
	}
	if out != content {
		t.Errorf("content changed: %q", out)
	}
}

func TestTags_DigitLeadingInlineIdempotent(t *testing.T) {
	sugs := []models.SuggestedTag{tag("2024notes", models.TagLocationInline)}
	once, n := Tags("Plan for the year.", sugs)
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}
	if !strings.HasSuffix(once, "#2024notes\n") {
		t.Errorf("out = %q", once)
	}
	twice, n := Tags(once, sugs)
	if n != 0 {
		t.Errorf("second application added %d tags", n)
	}
	if twice != once {
		t.Errorf("second application changed content:\n%q\n%q", twice, once)
	}
}

func TestTags_PurelyNumericRejected(t *testing.T) {
	content := "Issue #1 logged."
	out, n := Tags(content, []models.SuggestedTag{tag("2024", models.TagLocationInline)})
	if n != 0 || out != content {
		t.Errorf("out = %q, applied = %d", out, n)
	}
}

func TestTags_MalformedFrontmatterPreserved(t *testing.T) {
	// The tags field inside the broken block must survive untouched; the new
	// tag goes into a fresh block prepended above it.
	content := "---\ntags: [alpha, beta\ntitle: : bad\n---\nBody\n"
	out, n := Tags(content, []models.SuggestedTag{tag("gamma", models.TagLocationFrontmatter)})
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}
	if !strings.Contains(out, "tags: [alpha, beta") {
		t.Errorf("broken block rewritten, original tags lost: %q", out)
	}
	if !strings.HasPrefix(out, "---\ntags: [gamma]\n---\n") {
		t.Errorf("out = %q", out)
	}
	again, n := Tags(out, []models.SuggestedTag{tag("gamma", models.TagLocationFrontmatter)})
	if n != 0 || again != out {
		t.Errorf("second application changed content: applied = %d, %q", n, again)
	}
}

func TestTags_Idempotent(t *testing.T) {
	sugs := []models.SuggestedTag{
		tag("idea", models.TagLocationFrontmatter),
		tag("later", models.TagLocationInline),
	}
	once, _ := Tags("Some text", sugs)
	twice, n := Tags(once, sugs)
	if n != 0 {
		t.Errorf("second application added %d tags", n)
	}
	if twice != once {
		t.Errorf("second application changed content:\n%q\n%q", twice, once)
	}
}

func TestTags_EmptySuggestions(t *testing.T) {
	out, n := Tags("unchanged", nil)
	if n != 0 || out != "unchanged" {
		t.Errorf("out = %q, applied = %d", out, n)
	}
}
