// Package compile turns ordered chapter intermediates into final documents
// by invoking pandoc, exactly once per target format.
package compile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
	"git.home.luguber.info/inful/bookbuilder/internal/logfields"
)

// Job describes one pandoc invocation. Inputs are the woven chapter files
// in configured order; their order on the command line is the document
// order.
type Job struct {
	Format       config.Format
	Inputs       []string
	Output       string // final artifact path
	ResourcePath string // base for relative image references

	Title    string
	Subtitle string
	Author   string
	Date     string
	Language string
	Revision string

	TOCDepth     int
	Bibliography string

	PDFEngine    string
	PDFTemplate  string
	EPUBCover    string
	ImageExt     string // EPUB default image extension, with or without dot
	ReferenceDoc string
}

// Compiler runs pandoc through a CommandRunner seam.
type Compiler struct {
	Runner CommandRunner
	// Pandoc overrides the binary name, mostly for tests.
	Pandoc string
}

// New returns a Compiler wired to the real pandoc binary.
func New() *Compiler {
	return &Compiler{Runner: &ExecRunner{}}
}

func (c *Compiler) binary() string {
	if c.Pandoc != "" {
		return c.Pandoc
	}
	return "pandoc"
}

// Compile runs one pandoc invocation. The document is written to a
// temporary name and renamed into place on success, so a failed compile
// never installs a final artifact. On failure the returned error carries
// pandoc's own exit code.
func (c *Compiler) Compile(ctx context.Context, job Job) error {
	if len(job.Inputs) == 0 {
		return bberrors.ValidationFailed("inputs", "no chapter intermediates to compile")
	}
	if err := os.MkdirAll(filepath.Dir(job.Output), 0755); err != nil {
		return bberrors.WorkspaceError("create output directory", err)
	}

	// The temporary name keeps the real extension so pandoc still infers
	// the writer from it.
	tmp := filepath.Join(filepath.Dir(job.Output), ".tmp-"+filepath.Base(job.Output))
	defer os.Remove(tmp)

	args := job.args(tmp)
	slog.Debug("invoking pandoc",
		logfields.Target(string(job.Format)),
		slog.Int("inputs", len(job.Inputs)),
		logfields.Artifact(job.Output),
	)

	_, stderr, err := c.Runner.Run(ctx, c.binary(), args...)
	if err != nil {
		code := ExitCode(err)
		cause := err
		if msg := strings.TrimSpace(stderr); msg != "" {
			cause = fmt.Errorf("%s: %w", lastLine(msg), err)
		}
		return bberrors.CompileError(string(job.Format), code, cause)
	}

	if err := os.Rename(tmp, job.Output); err != nil {
		return bberrors.WorkspaceError("install artifact", err)
	}
	return nil
}

// args assembles the pandoc command line for this job, writing to output.
func (j Job) args(output string) []string {
	args := []string{
		"--from", "markdown+smart",
		"--standalone",
		"--toc",
		fmt.Sprintf("--toc-depth=%d", max(j.TOCDepth, 1)),
		"--top-level-division=chapter",
		"--filter", "pandoc-crossref",
		"--citeproc",
	}

	if j.ResourcePath != "" {
		args = append(args, "--resource-path="+j.ResourcePath)
	}
	if j.Bibliography != "" {
		args = append(args, "--bibliography="+j.Bibliography)
	}

	meta := []struct{ key, value string }{
		{"title", j.Title},
		{"subtitle", j.Subtitle},
		{"author", j.Author},
		{"date", j.Date},
		{"lang", j.Language},
		{"revision", j.Revision},
	}
	for _, m := range meta {
		if m.value != "" {
			args = append(args, "--metadata="+m.key+":"+m.value)
		}
	}

	switch j.Format {
	case config.FormatPDF:
		if j.PDFEngine != "" {
			args = append(args, "--pdf-engine="+j.PDFEngine)
		}
		if j.PDFTemplate != "" {
			args = append(args, "--template="+j.PDFTemplate)
		}
	case config.FormatEPUB:
		if j.EPUBCover != "" {
			args = append(args, "--epub-cover-image="+j.EPUBCover)
		}
		args = append(args, "--default-image-extension="+imageExt(j.ImageExt))
	case config.FormatDOCX:
		if j.ReferenceDoc != "" {
			args = append(args, "--reference-doc="+j.ReferenceDoc)
		}
	case config.FormatHTML:
		args = append(args, "--to=html5")
	}

	args = append(args, "-o", output)
	args = append(args, j.Inputs...)
	return args
}

func imageExt(ext string) string {
	if ext == "" {
		return ".png"
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

// lastLine returns the final non-empty line of tool output; pandoc puts the
// actual error there after pages of LaTeX noise.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return s
}
