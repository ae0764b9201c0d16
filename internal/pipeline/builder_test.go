package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/compile"
	"git.home.luguber.info/inful/bookbuilder/internal/config"
	"git.home.luguber.info/inful/bookbuilder/internal/history"
	"git.home.luguber.info/inful/bookbuilder/internal/manuscript"
	"git.home.luguber.info/inful/bookbuilder/internal/workspace"
)

// fakeRunner simulates pandoc: it records invocations and creates the -o
// target so the compiler's rename step has something to install.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.err != nil {
		return "", "simulated compiler failure", f.err
	}
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			if err := os.WriteFile(args[i+1], []byte("doc"), 0644); err != nil {
				return "", "", err
			}
		}
	}
	return "", "", nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func writeBook(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	cfg, err := config.Load(filepath.Join(dir, "book.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func twoChapterBook(t *testing.T) *config.Config {
	t.Helper()
	return writeBook(t, map[string]string{
		"book.yaml": "title: Build Orchestration\nchapters:\n  - chapters/01-intro.md\n  - chapters/02-usage.md\n",
		"chapters/01-intro.md": "---\ntitle: Introduction\n---\n# Introduction\n\n" +
			"#ifdef PDF\nPrint edition notes.\n#else\nScreen edition notes.\n#endif\n",
		"chapters/02-usage.md": "# Usage\n\nPlain chapter.\n",
	})
}

func testBuilder(cfg *config.Config, runner compile.CommandRunner) *Builder {
	return &Builder{
		Config:   cfg,
		Compiler: &compile.Compiler{Runner: runner},
	}
}

func intermediatePaths(t *testing.T, cfg *config.Config, format config.Format) []string {
	t.Helper()
	chapters, err := manuscript.Resolve(cfg)
	if err != nil {
		t.Fatalf("resolve chapters: %v", err)
	}
	layout := workspace.ForTarget(cfg, format)
	paths := make([]string, len(chapters))
	for i, ch := range chapters {
		paths[i] = layout.Intermediate(ch.Stem())
	}
	return paths
}

func TestBuildProducesArtifact(t *testing.T) {
	cfg := twoChapterBook(t)
	runner := &fakeRunner{}
	b := testBuilder(cfg, runner)

	report, err := b.Build(t.Context(), config.FormatPDF)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if report.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %s", report.Outcome)
	}
	if report.Chapters != 2 || report.Rebuilt != 2 {
		t.Errorf("chapters = %d rebuilt = %d", report.Chapters, report.Rebuilt)
	}
	if !report.Compiled {
		t.Error("expected a compile run")
	}
	if _, err := os.Stat(report.Artifact); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
	for _, stage := range []string{"prepare", "chapters", "compile"} {
		if _, ok := report.StageDurations[stage]; !ok {
			t.Errorf("no duration recorded for stage %s", stage)
		}
	}
}

func TestIntermediateIsNormalized(t *testing.T) {
	cfg := twoChapterBook(t)
	b := testBuilder(cfg, &fakeRunner{})

	if _, err := b.Build(t.Context(), config.FormatPDF); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	data, err := os.ReadFile(intermediatePaths(t, cfg, config.FormatPDF)[0])
	if err != nil {
		t.Fatalf("read intermediate: %v", err)
	}
	text := string(data)

	if !strings.Contains(text, "Print edition notes.") {
		t.Error("active branch missing from intermediate")
	}
	if strings.Contains(text, "Screen edition notes.") {
		t.Error("inactive branch leaked into intermediate")
	}
	if strings.Contains(text, "#ifdef") || strings.Contains(text, "#endif") {
		t.Error("directives leaked into intermediate")
	}
	if strings.Contains(text, "title: Introduction") {
		t.Error("frontmatter leaked into intermediate")
	}
}

func TestFormatSymbolSelectsBranch(t *testing.T) {
	cfg := twoChapterBook(t)
	b := testBuilder(cfg, &fakeRunner{})

	if _, err := b.Build(t.Context(), config.FormatEPUB); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	data, err := os.ReadFile(intermediatePaths(t, cfg, config.FormatEPUB)[0])
	if err != nil {
		t.Fatalf("read intermediate: %v", err)
	}
	if !strings.Contains(string(data), "Screen edition notes.") {
		t.Error("epub build should take the else branch")
	}
}

func TestChapterOrderOnCompilerCommandLine(t *testing.T) {
	cfg := twoChapterBook(t)
	runner := &fakeRunner{}
	b := testBuilder(cfg, runner)

	if _, err := b.Build(t.Context(), config.FormatPDF); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 compiler call, got %d", len(runner.calls))
	}

	args := runner.calls[0]
	want := intermediatePaths(t, cfg, config.FormatPDF)
	got := args[len(args)-len(want):]
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("input %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRebuildWithoutChangesIsIdempotent(t *testing.T) {
	cfg := twoChapterBook(t)
	runner := &fakeRunner{}
	b := testBuilder(cfg, runner)

	if _, err := b.Build(t.Context(), config.FormatPDF); err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	report, err := b.Build(t.Context(), config.FormatPDF)
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}

	if report.Rebuilt != 0 {
		t.Errorf("second build rebuilt %d chapters", report.Rebuilt)
	}
	if report.Compiled {
		t.Error("second build recompiled a fresh artifact")
	}
	if runner.callCount() != 1 {
		t.Errorf("compiler ran %d times, want 1", runner.callCount())
	}
	if report.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %s", report.Outcome)
	}
}

func TestTouchedChapterRebuildsSelectively(t *testing.T) {
	cfg := twoChapterBook(t)
	runner := &fakeRunner{}
	b := testBuilder(cfg, runner)

	if _, err := b.Build(t.Context(), config.FormatPDF); err != nil {
		t.Fatalf("first build failed: %v", err)
	}

	intermediates := intermediatePaths(t, cfg, config.FormatPDF)
	before, err := os.Stat(intermediates[0])
	if err != nil {
		t.Fatal(err)
	}

	// Touch the second chapter into the future so mtime granularity cannot
	// hide the edit.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(cfg.Resolve("chapters/02-usage.md"), future, future); err != nil {
		t.Fatal(err)
	}

	report, err := b.Build(t.Context(), config.FormatPDF)
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	if report.Rebuilt != 1 {
		t.Errorf("rebuilt = %d, want 1", report.Rebuilt)
	}
	if !report.Compiled {
		t.Error("artifact should be recompiled after a chapter edit")
	}

	after, err := os.Stat(intermediates[0])
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("untouched chapter's intermediate was regenerated")
	}
}

func TestForceRebuildsEverything(t *testing.T) {
	cfg := twoChapterBook(t)
	runner := &fakeRunner{}
	b := testBuilder(cfg, runner)

	if _, err := b.Build(t.Context(), config.FormatPDF); err != nil {
		t.Fatalf("first build failed: %v", err)
	}

	b.Force = true
	report, err := b.Build(t.Context(), config.FormatPDF)
	if err != nil {
		t.Fatalf("forced build failed: %v", err)
	}
	if report.Rebuilt != 2 {
		t.Errorf("rebuilt = %d, want 2", report.Rebuilt)
	}
	if !report.Compiled {
		t.Error("forced build should recompile")
	}
	if runner.callCount() != 2 {
		t.Errorf("compiler ran %d times, want 2", runner.callCount())
	}
}

func TestExecutableBlockOutputWoven(t *testing.T) {
	cfg := writeBook(t, map[string]string{
		"book.yaml": "title: Woven\nchapters:\n  - chapters/01-demo.md\n",
		"chapters/01-demo.md": "# Demo\n\n```go run\nfmt.Println(\"answer: 42\")\n```\n",
	})
	b := testBuilder(cfg, &fakeRunner{})

	report, err := b.Build(t.Context(), config.FormatPDF)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if report.Blocks != 1 {
		t.Errorf("blocks = %d, want 1", report.Blocks)
	}

	data, err := os.ReadFile(intermediatePaths(t, cfg, config.FormatPDF)[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "answer: 42") {
		t.Errorf("block output missing from intermediate:\n%s", data)
	}
}

func TestFailingBlockFailsBuildWithoutArtifact(t *testing.T) {
	cfg := writeBook(t, map[string]string{
		"book.yaml": "title: Broken\nchapters:\n  - chapters/01-bad.md\n",
		"chapters/01-bad.md": "# Bad\n\n```go run\nnoSuchFunction()\n```\n",
	})
	runner := &fakeRunner{}
	b := testBuilder(cfg, runner)

	store, err := history.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()
	b.History = store

	report, buildErr := b.Build(t.Context(), config.FormatPDF)
	if buildErr == nil {
		t.Fatal("expected build error")
	}
	if report.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s", report.Outcome)
	}
	if runner.callCount() != 0 {
		t.Error("compiler must not run after a failed weave")
	}
	if _, err := os.Stat(report.Artifact); !os.IsNotExist(err) {
		t.Error("failed build left a final artifact")
	}

	records, err := store.Recent(t.Context(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(records))
	}
	if records[0].Outcome != string(OutcomeFailed) || records[0].Error == "" {
		t.Errorf("history record = %+v", records[0])
	}
}

func TestFailedCompileInstallsNoArtifact(t *testing.T) {
	cfg := twoChapterBook(t)
	runner := &fakeRunner{err: os.ErrPermission} // stands in for a failing pandoc
	b := testBuilder(cfg, runner)

	report, err := b.Build(t.Context(), config.FormatPDF)
	if err == nil {
		t.Fatal("expected build error")
	}
	if report.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s", report.Outcome)
	}
	if _, err := os.Stat(report.Artifact); !os.IsNotExist(err) {
		t.Error("failed compile left a final artifact")
	}
}

func TestBuildAllSharesBuildID(t *testing.T) {
	cfg := twoChapterBook(t)
	b := testBuilder(cfg, &fakeRunner{})

	store, err := history.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()
	b.History = store

	reports, err := b.BuildAll(t.Context(), []config.Format{config.FormatPDF, config.FormatEPUB})
	if err != nil {
		t.Fatalf("build all failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].BuildID != reports[1].BuildID {
		t.Error("targets of one invocation must share a build id")
	}

	records, err := store.ByBuildID(t.Context(), reports[0].BuildID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(records))
	}
	if records[0].Format != "pdf" || records[1].Format != "epub" {
		t.Errorf("history order: %s, %s", records[0].Format, records[1].Format)
	}
}

func TestParallelChaptersMatchSequential(t *testing.T) {
	files := map[string]string{
		"book.yaml": "title: Parallel\nchapters:\n  - chapters/01-a.md\n  - chapters/02-b.md\n  - chapters/03-c.md\n  - chapters/04-d.md\n",
	}
	for i, name := range []string{"01-a", "02-b", "03-c", "04-d"} {
		files["chapters/"+name+".md"] = "# Chapter " + string(rune('A'+i)) + "\n\nBody.\n"
	}
	cfg := writeBook(t, files)

	b := testBuilder(cfg, &fakeRunner{})
	b.Jobs = 4
	report, err := b.Build(t.Context(), config.FormatPDF)
	if err != nil {
		t.Fatalf("parallel build failed: %v", err)
	}
	if report.Rebuilt != 4 {
		t.Errorf("rebuilt = %d, want 4", report.Rebuilt)
	}

	for i, p := range intermediatePaths(t, cfg, config.FormatPDF) {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("intermediate %d missing: %v", i, err)
		}
		want := "# Chapter " + string(rune('A'+i))
		if !strings.Contains(string(data), want) {
			t.Errorf("intermediate %d holds the wrong chapter", i)
		}
	}
}

func TestCanceledContext(t *testing.T) {
	cfg := twoChapterBook(t)
	b := testBuilder(cfg, &fakeRunner{})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	report, err := b.Build(ctx, config.FormatPDF)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if report.Outcome != OutcomeCanceled {
		t.Errorf("outcome = %s", report.Outcome)
	}
}
