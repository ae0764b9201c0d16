package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/bookbuilder/internal/compile"
	"git.home.luguber.info/inful/bookbuilder/internal/config"
	"git.home.luguber.info/inful/bookbuilder/internal/history"
	"git.home.luguber.info/inful/bookbuilder/internal/logfields"
	"git.home.luguber.info/inful/bookbuilder/internal/notify"
	"git.home.luguber.info/inful/bookbuilder/internal/pipeline"
)

// Global context passed to subcommands if we need to share global state later.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags - used by commands that need access to the root config path.
type CLI struct {
	Config  string           `short:"c" help:"Book configuration file path" default:"book.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build    BuildCmd    `cmd:"" help:"Build the configured output formats"`
	Pdf      PdfCmd      `cmd:"" help:"Build the pdf edition"`
	Epub     EpubCmd     `cmd:"" help:"Build the epub edition"`
	Docx     DocxCmd     `cmd:"" help:"Build the docx edition"`
	Clean    CleanCmd    `cmd:"" help:"Remove the build tree and final artifacts"`
	Init     InitCmd     `cmd:"" help:"Initialize a new book configuration"`
	Chapters ChaptersCmd `cmd:"" help:"List the resolved chapter model"`
	Weave    WeaveCmd    `cmd:"" help:"Normalize and weave one chapter without building"`
	Lint     LintCmd     `cmd:"" help:"Check the manuscript for broken references and assets"`
	Preview  PreviewCmd  `cmd:"" help:"Serve the html edition locally with live reload"`
	History  HistoryCmd  `cmd:"" help:"List recent builds from the history store"`
	Doctor   DoctorCmd   `cmd:"" help:"Check that the external toolchain is available"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// newBuilder assembles the build pipeline for one loaded configuration.
// History recording and event publishing are config-gated; a store or broker
// that cannot be opened downgrades to a warning instead of blocking the
// build, matching the best-effort recording inside the pipeline itself.
func newBuilder(cfg *config.Config, force bool, jobs int) (*pipeline.Builder, func()) {
	b := &pipeline.Builder{
		Config:   cfg,
		Compiler: compile.New(),
		Force:    force,
		Jobs:     jobs,
	}

	if cfg.History.Path != "" {
		store, err := history.NewSQLiteStore(cfg.Resolve(cfg.History.Path))
		if err != nil {
			slog.Warn("build history disabled", logfields.Error(err))
		} else {
			b.History = store
		}
	}

	if cfg.Notify.URL != "" {
		notifier, err := notify.NewNATSNotifier(cfg.Notify)
		if err != nil {
			slog.Warn("build notifications disabled", logfields.Error(err))
		} else {
			b.Notifier = notifier
		}
	}

	cleanup := func() {
		if b.History != nil {
			if err := b.History.Close(); err != nil {
				slog.Warn("failed to close history store", logfields.Error(err))
			}
		}
		if b.Notifier != nil {
			b.Notifier.Close()
		}
	}
	return b, cleanup
}
