package manuscript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
)

// book writes chapter files plus a book.yaml naming them in order and loads
// the config.
func book(t *testing.T, files map[string]string, order ...string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	var b strings.Builder
	b.WriteString("title: Test Book\nchapters:\n")
	for _, ch := range order {
		b.WriteString("  - " + ch + "\n")
	}
	cfgPath := filepath.Join(dir, "book.yaml")
	if err := os.WriteFile(cfgPath, []byte(b.String()), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestResolvePreservesOrder(t *testing.T) {
	cfg := book(t, map[string]string{
		"ch/02-middle.md": "# Middle\n",
		"ch/01-intro.md":  "# Introduction\n",
		"ch/03-end.md":    "# The End\n",
	}, "ch/02-middle.md", "ch/01-intro.md", "ch/03-end.md")

	chapters, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(chapters) != 3 {
		t.Fatalf("got %d chapters, want 3", len(chapters))
	}
	// Configured order wins over filename order.
	wantIDs := []string{"02-middle", "01-intro", "03-end"}
	for i, ch := range chapters {
		if ch.Seq != i+1 {
			t.Errorf("chapter %d Seq = %d", i, ch.Seq)
		}
		if ch.ID != wantIDs[i] {
			t.Errorf("chapter %d ID = %q, want %q", i, ch.ID, wantIDs[i])
		}
	}
	if chapters[0].Title != "Middle" {
		t.Errorf("Title = %q, want Middle", chapters[0].Title)
	}
	if got := chapters[0].Stem(); got != "01-02-middle" {
		t.Errorf("Stem = %q, want 01-02-middle", got)
	}
}

func TestResolveFrontmatterOverrides(t *testing.T) {
	cfg := book(t, map[string]string{
		"ch/a.md": "---\ntitle: Custom Title\nid: custom\n---\n# Ignored Heading\n",
	}, "ch/a.md")

	chapters, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if chapters[0].Title != "Custom Title" {
		t.Errorf("Title = %q, want Custom Title", chapters[0].Title)
	}
	if chapters[0].ID != "custom" {
		t.Errorf("ID = %q, want custom", chapters[0].ID)
	}
}

func TestResolveTitleFallsBackToFilename(t *testing.T) {
	cfg := book(t, map[string]string{
		"ch/no-heading.md": "just prose\n",
	}, "ch/no-heading.md")

	chapters, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if chapters[0].Title != "no-heading" {
		t.Errorf("Title = %q, want no-heading", chapters[0].Title)
	}
}

func TestResolveCountsExecutableBlocks(t *testing.T) {
	content := "# Ch\n\n``` go run name=a\nfmt.Println(1)\n```\n\n```go\n// plain listing\n```\n\n``` go silent\nx := 1\n_ = x\n```\n"
	cfg := book(t, map[string]string{"ch/x.md": content}, "ch/x.md")

	chapters, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if chapters[0].Executable != 2 {
		t.Errorf("Executable = %d, want 2", chapters[0].Executable)
	}
}

func TestResolveDisambiguatesDuplicateIDs(t *testing.T) {
	cfg := book(t, map[string]string{
		"part1/intro.md": "# One\n",
		"part2/intro.md": "# Two\n",
	}, "part1/intro.md", "part2/intro.md")

	chapters, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if chapters[0].ID == chapters[1].ID {
		t.Fatalf("ids not disambiguated: %q", chapters[0].ID)
	}
	if chapters[1].ID != "part2-intro" {
		t.Errorf("second ID = %q, want part2-intro", chapters[1].ID)
	}
}

func TestResolveBadFrontmatterFails(t *testing.T) {
	cfg := book(t, map[string]string{
		"ch/bad.md": "---\ntitle: open\n# no closing delimiter\n",
	}, "ch/bad.md")

	_, err := Resolve(cfg)
	if err == nil {
		t.Fatal("expected error for unterminated frontmatter")
	}
}
