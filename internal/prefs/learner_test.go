package prefs

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/storage"
)

func testLearner(t *testing.T) (*Learner, string) {
	t.Helper()
	dir := t.TempDir()
	provider, err := storage.NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewLearner(provider, logger), dir
}

func writeNote(t *testing.T, dir, path, content string) {
	t.Helper()
	full := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	l, _ := testLearner(t)
	l.Load()

	p := l.Preferences()
	if len(p.FrequentTags) != 0 || len(p.LinkPatterns) != 0 {
		t.Fatalf("expected empty aggregates, got %+v", p)
	}
	if p.PreferredTagLocation != LocationMixed {
		t.Fatalf("default location = %q, want mixed", p.PreferredTagLocation)
	}
}

func TestLoad_CorruptFileYieldsDefaults(t *testing.T) {
	l, dir := testLearner(t)
	writeNote(t, dir, StoragePath, "{not json")
	l.Load()

	if got := len(l.Preferences().FrequentTags); got != 0 {
		t.Fatalf("expected empty tags after corrupt load, got %d", got)
	}
}

func TestAnalyzeVault_TagAndLinkFrequencies(t *testing.T) {
	l, dir := testLearner(t)
	writeNote(t, dir, "a.md", "---\ntags: [golang, testing]\n---\nSee [[Concurrency]].")
	writeNote(t, dir, "b.md", "---\ntags: [golang]\n---\nAlso [[Concurrency]] and [[Channels]].")

	if err := l.AnalyzeVault(context.Background()); err != nil {
		t.Fatalf("AnalyzeVault: %v", err)
	}
	p := l.Preferences()

	if p.FrequentTags["golang"] != 2 {
		t.Errorf("golang count = %d, want 2", p.FrequentTags["golang"])
	}
	if p.FrequentTags["testing"] != 1 {
		t.Errorf("testing count = %d, want 1", p.FrequentTags["testing"])
	}
	if p.LinkPatterns["Concurrency"] != 2 {
		t.Errorf("Concurrency link count = %d, want 2", p.LinkPatterns["Concurrency"])
	}
	if p.AvgTagsPerNote != 1.5 {
		t.Errorf("AvgTagsPerNote = %v, want 1.5", p.AvgTagsPerNote)
	}
	if p.AvgLinksPerNote != 1.5 {
		t.Errorf("AvgLinksPerNote = %v, want 1.5", p.AvgLinksPerNote)
	}
}

func TestAnalyzeVault_ConceptPromotion(t *testing.T) {
	l, dir := testLearner(t)
	// "kubernetes" repeats within each of two notes: promoted.
	// "deployment" repeats within only one note: not promoted.
	// "a" is too short regardless of frequency.
	writeNote(t, dir, "a.md", "kubernetes cluster kubernetes deployment deployment a a a")
	writeNote(t, dir, "b.md", "kubernetes upgrade kubernetes a a")

	if err := l.AnalyzeVault(context.Background()); err != nil {
		t.Fatalf("AnalyzeVault: %v", err)
	}
	p := l.Preferences()

	if p.FrequentConcepts["kubernetes"] != 4 {
		t.Errorf("kubernetes = %d, want 4", p.FrequentConcepts["kubernetes"])
	}
	if _, ok := p.FrequentConcepts["deployment"]; ok {
		t.Error("deployment promoted despite appearing in a single note")
	}
	if _, ok := p.FrequentConcepts["a"]; ok {
		t.Error("short token promoted")
	}
	if len(p.TopTopics) == 0 || p.TopTopics[0] != "kubernetes" {
		t.Errorf("TopTopics = %v, want kubernetes first", p.TopTopics)
	}
}

func TestAnalyzeVault_ConceptLengthCountsRunes(t *testing.T) {
	l, dir := testLearner(t)
	// "café" is four runes: below the cut even though it is five bytes.
	// "cafés" is five runes and qualifies.
	writeNote(t, dir, "a.md", "café tour café stop cafés menu cafés plan")
	writeNote(t, dir, "b.md", "café again café more cafés list cafés done")

	if err := l.AnalyzeVault(context.Background()); err != nil {
		t.Fatalf("AnalyzeVault: %v", err)
	}
	p := l.Preferences()

	if _, ok := p.FrequentConcepts["café"]; ok {
		t.Error("four-rune token promoted")
	}
	if p.FrequentConcepts["cafés"] != 4 {
		t.Errorf("cafés = %d, want 4", p.FrequentConcepts["cafés"])
	}
}

func TestAnalyzeVault_IgnoresMarkup(t *testing.T) {
	l, dir := testLearner(t)
	writeNote(t, dir, "a.md", "[[Target|surface]] surface https://example.com/surface surface")
	writeNote(t, dir, "b.md", "surface words surface words")

	if err := l.AnalyzeVault(context.Background()); err != nil {
		t.Fatalf("AnalyzeVault: %v", err)
	}
	p := l.Preferences()

	// The URL is stripped, so "surface" counts 3 in a.md, 2 in b.md.
	if p.FrequentConcepts["surface"] != 5 {
		t.Errorf("surface = %d, want 5", p.FrequentConcepts["surface"])
	}
}

func TestAnalyzeVault_TagLocationDominance(t *testing.T) {
	cases := []struct {
		name  string
		notes []string
		want  string
	}{
		{
			name:  "frontmatter dominant",
			notes: []string{"---\ntags: [a1, b2, c3, d4]\n---\nbody #solo"},
			want:  LocationFrontmatter,
		},
		{
			name:  "inline dominant",
			notes: []string{"---\ntags: [a1]\n---\nbody #one #two #three #four"},
			want:  LocationInline,
		},
		{
			name:  "mixed",
			notes: []string{"---\ntags: [a1, b2]\n---\nbody #one #two #three"},
			want:  LocationMixed,
		},
		{
			name:  "no tags at all",
			notes: []string{"plain body"},
			want:  LocationMixed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, dir := testLearner(t)
			for i, content := range tc.notes {
				writeNote(t, dir, filepath.Join("n", filepath.Base(t.Name())+string(rune('a'+i))+".md"), content)
			}
			if err := l.AnalyzeVault(context.Background()); err != nil {
				t.Fatalf("AnalyzeVault: %v", err)
			}
			if got := l.Preferences().PreferredTagLocation; got != tc.want {
				t.Errorf("PreferredTagLocation = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAnalyzeVault_PersistsAndReloads(t *testing.T) {
	l, dir := testLearner(t)
	writeNote(t, dir, "a.md", "---\ntags: [golang]\n---\nbody")
	if err := l.AnalyzeVault(context.Background()); err != nil {
		t.Fatalf("AnalyzeVault: %v", err)
	}

	provider, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	fresh := NewLearner(provider, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	fresh.Load()

	if got := fresh.Preferences().FrequentTags["golang"]; got != 1 {
		t.Fatalf("reloaded golang count = %d, want 1", got)
	}
}

func TestRecordTagUsage(t *testing.T) {
	l, _ := testLearner(t)
	l.RecordTagUsage("#Golang")
	l.RecordTagUsage("golang")
	l.RecordTagUsage("")

	if got := l.Preferences().FrequentTags["golang"]; got != 2 {
		t.Fatalf("golang count = %d, want 2", got)
	}
}

func TestTopTags_OrderAndLimit(t *testing.T) {
	p := newPreferences()
	p.FrequentTags = map[string]int{"beta": 3, "alpha": 3, "gamma": 5, "delta": 1}

	got := p.TopTags(3)
	want := []string{"gamma", "alpha", "beta"}
	if len(got) != len(want) {
		t.Fatalf("TopTags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("TopTags = %v, want %v", got, want)
		}
	}
}
