package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "chapters"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chapters", "01-intro.md"), []byte("# Intro\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "book.yaml"), []byte("title: Practical DSLs\nchapters:\n  - chapters/01-intro.md\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(filepath.Join(dir, "book.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestLayoutPaths(t *testing.T) {
	cfg := testConfig(t)
	l := ForTarget(cfg, config.FormatPDF)

	if got := l.Intermediate("01-intro"); got != filepath.Join(cfg.BuildRoot(), "pdf", "01-intro.md") {
		t.Errorf("Intermediate = %s", got)
	}
	if got := l.FigureDir("intro"); got != filepath.Join(cfg.BuildRoot(), "pdf", "figures", "intro") {
		t.Errorf("FigureDir = %s", got)
	}
	if got := l.FigureRel("intro"); got != "figures/intro" {
		t.Errorf("FigureRel = %s", got)
	}
	if got := l.Artifact(); got != filepath.Join(cfg.OutputRoot(), "practical-dsls.pdf") {
		t.Errorf("Artifact = %s", got)
	}
}

func TestHTMLArtifactStaysInBuildTree(t *testing.T) {
	cfg := testConfig(t)
	l := ForTarget(cfg, config.FormatHTML)
	if got := l.Artifact(); got != filepath.Join(cfg.BuildRoot(), "html", "index.html") {
		t.Errorf("Artifact = %s", got)
	}
}

func TestEnsureCreatesTree(t *testing.T) {
	cfg := testConfig(t)
	l := ForTarget(cfg, config.FormatEPUB)
	if err := l.Ensure(); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	for _, dir := range []string{l.BuildRoot, filepath.Join(l.BuildRoot, "figures"), cfg.OutputRoot()} {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			t.Errorf("missing directory %s", dir)
		}
	}
}

func TestWriteIntermediateAtomic(t *testing.T) {
	cfg := testConfig(t)
	l := ForTarget(cfg, config.FormatPDF)
	if err := l.Ensure(); err != nil {
		t.Fatal(err)
	}

	if err := l.WriteIntermediate("01-intro", []byte("# Intro\n")); err != nil {
		t.Fatalf("WriteIntermediate: %v", err)
	}
	data, err := os.ReadFile(l.Intermediate("01-intro"))
	if err != nil {
		t.Fatalf("read intermediate: %v", err)
	}
	if string(data) != "# Intro\n" {
		t.Errorf("content = %q", data)
	}
	if _, err := os.Stat(l.Intermediate("01-intro") + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestCleanLeavesSources(t *testing.T) {
	cfg := testConfig(t)
	l := ForTarget(cfg, config.FormatPDF)
	if err := l.Ensure(); err != nil {
		t.Fatal(err)
	}
	if err := l.WriteIntermediate("01-intro", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(l.Artifact(), []byte("pdf"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Clean(cfg, []config.Format{config.FormatPDF}); err != nil {
		t.Fatalf("Clean: %v", err)
	}

	if _, err := os.Stat(cfg.BuildRoot()); !os.IsNotExist(err) {
		t.Error("build root survived clean")
	}
	if _, err := os.Stat(l.Artifact()); !os.IsNotExist(err) {
		t.Error("artifact survived clean")
	}
	src := cfg.Resolve("chapters/01-intro.md")
	if _, err := os.Stat(src); err != nil {
		t.Errorf("chapter source was touched: %v", err)
	}
}
