package compile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
)

// fakeRunner records invocations and simulates pandoc by creating the -o
// target when succeed is set.
type fakeRunner struct {
	calls   [][]string
	stderr  string
	err     error
	succeed bool
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.succeed {
		for i, a := range args {
			if a == "-o" && i+1 < len(args) {
				if err := os.WriteFile(args[i+1], []byte("doc"), 0644); err != nil {
					return "", "", err
				}
			}
		}
	}
	return "", f.stderr, f.err
}

func baseJob(t *testing.T, format config.Format) Job {
	t.Helper()
	dir := t.TempDir()
	return Job{
		Format:       format,
		Inputs:       []string{"a.md", "b.md", "c.md"},
		Output:       filepath.Join(dir, "book"+format.Ext()),
		ResourcePath: dir,
		Title:        "Test Book",
		Author:       "Author",
		Language:     "en",
		TOCDepth:     1,
	}
}

func TestArgsCommonFlags(t *testing.T) {
	job := baseJob(t, config.FormatPDF)
	job.PDFEngine = "xelatex"
	args := job.args("out.pdf")

	for _, want := range []string{
		"--from", "markdown+smart",
		"--standalone",
		"--toc",
		"--toc-depth=1",
		"--top-level-division=chapter",
		"--filter", "pandoc-crossref",
		"--citeproc",
		"--metadata=title:Test Book",
		"--metadata=lang:en",
		"--pdf-engine=xelatex",
	} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %q:\n%v", want, args)
		}
	}

	// Inputs come last, in order, after -o.
	n := len(args)
	if args[n-3] != "a.md" || args[n-2] != "b.md" || args[n-1] != "c.md" {
		t.Errorf("inputs not last in order: %v", args[n-5:])
	}
	oIdx := slices.Index(args, "-o")
	if oIdx < 0 || args[oIdx+1] != "out.pdf" {
		t.Errorf("-o out.pdf not found: %v", args)
	}
}

func TestArgsPerFormat(t *testing.T) {
	epub := baseJob(t, config.FormatEPUB)
	epub.EPUBCover = "cover.png"
	args := epub.args("out.epub")
	if !slices.Contains(args, "--epub-cover-image=cover.png") {
		t.Errorf("missing cover flag: %v", args)
	}
	if !slices.Contains(args, "--default-image-extension=.png") {
		t.Errorf("missing default image extension: %v", args)
	}

	docx := baseJob(t, config.FormatDOCX)
	docx.ReferenceDoc = "styles.docx"
	if args := docx.args("out.docx"); !slices.Contains(args, "--reference-doc=styles.docx") {
		t.Errorf("missing reference doc: %v", args)
	}

	html := baseJob(t, config.FormatHTML)
	if args := html.args("out.html"); !slices.Contains(args, "--to=html5") {
		t.Errorf("missing html writer: %v", args)
	}

	// Bibliography applies to every format.
	pdf := baseJob(t, config.FormatPDF)
	pdf.Bibliography = "refs.bib"
	if args := pdf.args("out.pdf"); !slices.Contains(args, "--bibliography=refs.bib") {
		t.Errorf("missing bibliography: %v", args)
	}
}

func TestCompileInstallsViaRename(t *testing.T) {
	runner := &fakeRunner{succeed: true}
	c := &Compiler{Runner: runner}
	job := baseJob(t, config.FormatPDF)

	if err := c.Compile(context.Background(), job); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := os.Stat(job.Output); err != nil {
		t.Errorf("artifact not installed: %v", err)
	}
	tmp := filepath.Join(filepath.Dir(job.Output), ".tmp-"+filepath.Base(job.Output))
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
	if len(runner.calls) != 1 || runner.calls[0][0] != "pandoc" {
		t.Errorf("calls = %v", runner.calls)
	}
}

func TestCompileFailureInstallsNothing(t *testing.T) {
	runner := &fakeRunner{
		stderr: "warming up\n! LaTeX Error: Undefined control sequence.\n",
		err:    fmt.Errorf("exit status 43"),
	}
	c := &Compiler{Runner: runner}
	job := baseJob(t, config.FormatPDF)

	err := c.Compile(context.Background(), job)
	if err == nil {
		t.Fatal("expected compile error")
	}
	if !bberrors.IsCategory(err, bberrors.CategoryCompile) {
		t.Errorf("category = %v", err)
	}
	if !strings.Contains(err.Error(), "LaTeX Error") {
		t.Errorf("error lost the tool diagnostic: %v", err)
	}
	if _, statErr := os.Stat(job.Output); !os.IsNotExist(statErr) {
		t.Error("artifact must not exist after failure")
	}
}

func TestCompileMirrorsToolExitCode(t *testing.T) {
	// Generate a genuine *exec.ExitError so ExitCode sees a real code.
	toolErr := exec.Command("sh", "-c", "exit 83").Run()
	var ee *exec.ExitError
	if !errors.As(toolErr, &ee) {
		t.Skip("cannot produce exec.ExitError on this platform")
	}

	runner := &fakeRunner{err: toolErr}
	c := &Compiler{Runner: runner}
	err := c.Compile(context.Background(), baseJob(t, config.FormatPDF))

	var bbe *bberrors.BookBuilderError
	if !errors.As(err, &bbe) {
		t.Fatalf("err = %T", err)
	}
	if bbe.ToolExit != 83 {
		t.Errorf("ToolExit = %d, want 83", bbe.ToolExit)
	}
}

func TestCompileRejectsEmptyInputs(t *testing.T) {
	c := &Compiler{Runner: &fakeRunner{}}
	job := baseJob(t, config.FormatPDF)
	job.Inputs = nil
	if err := c.Compile(context.Background(), job); err == nil {
		t.Fatal("expected error for empty inputs")
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(fmt.Errorf("plain")); got != -1 {
		t.Errorf("ExitCode(plain) = %d, want -1", got)
	}
	err := exec.Command("sh", "-c", "exit 7").Run()
	if err == nil {
		t.Skip("sh unavailable")
	}
	if got := ExitCode(err); got != 7 {
		t.Errorf("ExitCode = %d, want 7", got)
	}
}

func TestDoctor(t *testing.T) {
	runner := &fakeRunner{}
	probes := Doctor(context.Background(), runner, "definitely-not-installed-engine")

	if len(probes) != 3 {
		t.Fatalf("probes = %d, want 3", len(probes))
	}
	if probes[0].Name != "pandoc" || probes[1].Name != "pandoc-crossref" {
		t.Errorf("probe order: %+v", probes)
	}
	if probes[2].Available {
		t.Errorf("missing engine reported available: %+v", probes[2])
	}
}

func TestProbeToolPresent(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh unavailable")
	}
	runner := &fakeRunner{}
	p := probeTool(context.Background(), runner, "sh")
	if !p.Available || p.Path == "" {
		t.Errorf("probe = %+v, want available with path", p)
	}
}

func TestImageExt(t *testing.T) {
	if got := imageExt(""); got != ".png" {
		t.Errorf("imageExt(\"\") = %q", got)
	}
	if got := imageExt("jpg"); got != ".jpg" {
		t.Errorf("imageExt(jpg) = %q", got)
	}
	if got := imageExt(".svg"); got != ".svg" {
		t.Errorf("imageExt(.svg) = %q", got)
	}
}
