package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
	"git.home.luguber.info/inful/bookbuilder/internal/pipeline"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Formats  []string `short:"f" placeholder:"FORMAT" help:"Formats to build (pdf, epub, docx); default is the configured list"`
	Force    bool     `help:"Rebuild everything regardless of timestamps"`
	Jobs     int      `short:"j" help:"Concurrent chapter rebuilds (0 or 1 is sequential)"`
	Chapters []string `placeholder:"PATH" help:"Build only these chapter paths, in the given order"`
}

func (b *BuildCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if len(b.Chapters) > 0 {
		cfg.Chapters = b.Chapters
	}

	formats := cfg.BuildFormats()
	if len(b.Formats) > 0 {
		parsed, unknown := config.ParseFormats(b.Formats)
		if len(unknown) > 0 {
			return bberrors.ValidationFailed("formats", "unknown format(s): "+strings.Join(unknown, ", "))
		}
		formats = parsed
	}

	return RunBuild(context.Background(), cfg, formats, b.Force, b.Jobs)
}

// RunBuild builds the given targets in order and prints one summary line per
// target on stdout. The first failed target stops the run; its error decides
// the process exit code.
func RunBuild(ctx context.Context, cfg *config.Config, formats []config.Format, force bool, jobs int) error {
	builder, cleanup := newBuilder(cfg, force, jobs)
	defer cleanup()

	reports, err := builder.BuildAll(ctx, formats)
	for _, r := range reports {
		printReport(r)
	}
	return err
}

func printReport(r *pipeline.Report) {
	switch {
	case r.Err() != nil:
		fmt.Printf("%-5s failed after %s\n", r.Format, r.Duration().Truncate(time.Millisecond))
	case !r.Compiled:
		fmt.Printf("%-5s up to date: %s\n", r.Format, r.Artifact)
	default:
		fmt.Printf("%-5s %s (%d/%d chapters rebuilt, %d blocks, %s)\n",
			r.Format, r.Artifact, r.Rebuilt, r.Chapters, r.Blocks,
			r.Duration().Truncate(time.Millisecond))
	}
}

// PdfCmd is single-target sugar for build.
type PdfCmd struct {
	Force bool `help:"Rebuild everything regardless of timestamps"`
	Jobs  int  `short:"j" help:"Concurrent chapter rebuilds (0 or 1 is sequential)"`
}

func (p *PdfCmd) Run(_ *Global, root *CLI) error {
	return runSingle(root, config.FormatPDF, p.Force, p.Jobs)
}

// EpubCmd is single-target sugar for build.
type EpubCmd struct {
	Force bool `help:"Rebuild everything regardless of timestamps"`
	Jobs  int  `short:"j" help:"Concurrent chapter rebuilds (0 or 1 is sequential)"`
}

func (e *EpubCmd) Run(_ *Global, root *CLI) error {
	return runSingle(root, config.FormatEPUB, e.Force, e.Jobs)
}

// DocxCmd is single-target sugar for build.
type DocxCmd struct {
	Force bool `help:"Rebuild everything regardless of timestamps"`
	Jobs  int  `short:"j" help:"Concurrent chapter rebuilds (0 or 1 is sequential)"`
}

func (d *DocxCmd) Run(_ *Global, root *CLI) error {
	return runSingle(root, config.FormatDOCX, d.Force, d.Jobs)
}

func runSingle(root *CLI, format config.Format, force bool, jobs int) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	return RunBuild(context.Background(), cfg, []config.Format{format}, force, jobs)
}
