// Package pipeline orchestrates target builds as an ordered stage sequence:
// prepare the build tree, normalize and weave every chapter, compile the
// document, then record the outcome. Stage errors are classified so a
// warning (say, an unreachable history store) never masks a clean artifact,
// while any fatal error stops the target immediately.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/bookbuilder/internal/compile"
	"git.home.luguber.info/inful/bookbuilder/internal/config"
	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
	"git.home.luguber.info/inful/bookbuilder/internal/frontmatter"
	"git.home.luguber.info/inful/bookbuilder/internal/history"
	"git.home.luguber.info/inful/bookbuilder/internal/logfields"
	"git.home.luguber.info/inful/bookbuilder/internal/macro"
	"git.home.luguber.info/inful/bookbuilder/internal/manuscript"
	"git.home.luguber.info/inful/bookbuilder/internal/metrics"
	"git.home.luguber.info/inful/bookbuilder/internal/notify"
	"git.home.luguber.info/inful/bookbuilder/internal/vcs"
	"git.home.luguber.info/inful/bookbuilder/internal/weave"
	"git.home.luguber.info/inful/bookbuilder/internal/workspace"
)

// Builder runs target builds for one loaded configuration.
//
// Compiler is required. Recorder, History, and Notifier are optional; nil
// means the concern is disabled.
type Builder struct {
	Config   *config.Config
	Compiler *compile.Compiler
	Recorder metrics.Recorder
	History  history.Store
	Notifier notify.Notifier

	// Force rebuilds every intermediate and artifact regardless of mtimes.
	Force bool
	// Jobs bounds concurrent chapter processing. Zero or one is sequential.
	Jobs int
	// BuildID ties the targets of one invocation together in history and
	// events. Generated when empty.
	BuildID string
}

func (b *Builder) recorder() metrics.Recorder {
	if b.Recorder == nil {
		return metrics.NoopRecorder{}
	}
	return b.Recorder
}

// BuildAll builds the given targets in order, stopping at the first failed
// target. All targets share one build id.
func (b *Builder) BuildAll(ctx context.Context, formats []config.Format) ([]*Report, error) {
	if b.BuildID == "" {
		b.BuildID = uuid.NewString()
	}

	reports := make([]*Report, 0, len(formats))
	for _, f := range formats {
		report, err := b.Build(ctx, f)
		reports = append(reports, report)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

// Build runs one target build end to end and returns its report. The report
// is non-nil even on failure.
func (b *Builder) Build(ctx context.Context, format config.Format) (*Report, error) {
	buildID := b.BuildID
	if buildID == "" {
		buildID = uuid.NewString()
	}

	bs := &BuildState{
		Format: format,
		Layout: workspace.ForTarget(b.Config, format),
		Report: newReport(buildID, format),
	}
	bs.Report.Artifact = bs.Layout.Artifact()

	slog.Info("build started",
		logfields.BuildID(buildID),
		logfields.Target(string(format)),
		slog.String("title", b.Config.Title))

	err := b.runStages(ctx, bs, []struct {
		name string
		fn   Stage
	}{
		{"prepare", b.stagePrepare},
		{"chapters", b.stageChapters},
		{"compile", b.stageCompile},
	})

	bs.Report.finish()
	bs.Report.deriveOutcome()

	rec := b.recorder()
	rec.ObserveBuildDuration(bs.Report.Duration())
	rec.IncBuildOutcome(string(bs.Report.Outcome))

	// Recording is best effort on every outcome, including failures.
	b.record(ctx, bs)

	slog.Info("build finished",
		logfields.BuildID(buildID),
		logfields.Target(string(format)),
		slog.String("outcome", string(bs.Report.Outcome)),
		logfields.DurationMS(float64(bs.Report.Duration().Milliseconds())))

	return bs.Report, err
}

// stagePrepare resolves the chapter model, the symbol table, and the vcs
// revision, and creates the target's build tree.
func (b *Builder) stagePrepare(_ context.Context, bs *BuildState) error {
	chapters, err := manuscript.Resolve(b.Config)
	if err != nil {
		return newFatalStageError("prepare", err)
	}
	bs.Chapters = chapters
	bs.Report.Chapters = len(chapters)

	// Exactly one format symbol per build; user defines come on top.
	bs.Symbols = macro.Symbols{bs.Format.Symbol(): ""}
	for name, value := range b.Config.Defines {
		bs.Symbols[name] = value
	}

	if err := bs.Layout.Ensure(); err != nil {
		return newFatalStageError("prepare", err)
	}

	rev, err := vcs.Describe(b.Config.Dir())
	switch {
	case err == nil:
		bs.Revision = rev
		bs.Report.Revision = rev.Stamp()
	case errors.Is(err, vcs.ErrNoRepository):
		// Unversioned manuscript; documents carry no revision stamp.
	default:
		return newWarnStageError("prepare", fmt.Errorf("derive revision: %w", err))
	}
	return nil
}

// stageChapters normalizes and weaves every chapter into its intermediate,
// in configured order. Chapters are independent, so with Jobs > 1 they run
// concurrently; the intermediate list stays in configured order regardless.
func (b *Builder) stageChapters(ctx context.Context, bs *BuildState) error {
	outcomes := make([]chapterResult, len(bs.Chapters))
	bs.intermediates = make([]string, len(bs.Chapters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.Jobs, 1))

	rec := b.recorder()
	for i, ch := range bs.Chapters {
		bs.intermediates[i] = bs.Layout.Intermediate(ch.Stem())
		g.Go(func() error {
			t0 := time.Now()
			res, err := b.processChapter(gctx, bs, ch)
			if err != nil {
				return err
			}
			rec.ObserveChapterDuration(ch.ID, time.Since(t0), res.rebuilt)
			rec.IncChapterResult(res.rebuilt)
			outcomes[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return newCanceledStageError("chapters", err)
		}
		return newFatalStageError("chapters", err)
	}

	for _, o := range outcomes {
		if o.rebuilt {
			bs.Report.Rebuilt++
		}
		bs.Report.Blocks += o.blocks
		bs.Report.Figures += o.figures
		bs.Report.Tables += o.tables
	}
	rec.AddBlocksExecuted(bs.Report.Blocks)
	return nil
}

type chapterResult struct {
	rebuilt bool
	blocks  int
	figures int
	tables  int
}

// processChapter regenerates one chapter intermediate when it is stale:
// split frontmatter, resolve macros for the target symbol, weave executable
// blocks, write atomically. Fresh intermediates are left untouched.
func (b *Builder) processChapter(ctx context.Context, bs *BuildState, ch *manuscript.Chapter) (chapterResult, error) {
	intermediate := bs.Layout.Intermediate(ch.Stem())
	if !b.Force && !staleAgainst(intermediate, ch.Path, b.Config.Path()) {
		slog.Debug("chapter up to date",
			logfields.Chapter(ch.ID),
			logfields.Target(string(bs.Format)))
		return chapterResult{}, nil
	}

	source, err := os.ReadFile(ch.Path)
	if err != nil {
		return chapterResult{}, bberrors.WrapError(err, bberrors.CategoryChapter, fmt.Sprintf("read chapter %s", ch.Rel))
	}

	// Frontmatter was absorbed into the chapter model; pandoc must never
	// see a mid-document metadata block.
	_, body, _, _, err := frontmatter.Split(source)
	if err != nil {
		return chapterResult{}, bberrors.WrapError(err, bberrors.CategoryChapter, fmt.Sprintf("chapter %s", ch.Rel))
	}

	resolver := &macro.Resolver{}
	normalized, err := resolver.Resolve(body, ch.Path, bs.Symbols)
	if err != nil {
		return chapterResult{}, bberrors.WrapError(err, bberrors.CategoryMacro, fmt.Sprintf("chapter %s", ch.Rel))
	}

	res := chapterResult{rebuilt: true}
	content := normalized
	if weave.HasBlocks(normalized) {
		woven, werr := weave.Weave(ctx, normalized, weave.Options{
			Name:      ch.Rel,
			ChapterID: ch.ID,
			FigureDir: bs.Layout.FigureDir(ch.ID),
			FigureRel: bs.Layout.FigureRel(ch.ID),
			FigureExt: b.Config.Weave.FigureFormat,
			Timeout:   b.Config.Weave.BlockTimeout(),
		})
		if werr != nil {
			return chapterResult{}, bberrors.WrapError(werr, bberrors.CategoryWeave, fmt.Sprintf("chapter %s", ch.Rel))
		}
		content = woven.Output
		res.blocks = woven.Blocks
		res.figures = woven.Figures
		res.tables = woven.Tables
	}

	if err := bs.Layout.WriteIntermediate(ch.Stem(), content); err != nil {
		return chapterResult{}, err
	}

	slog.Debug("chapter rebuilt",
		logfields.Chapter(ch.ID),
		logfields.Target(string(bs.Format)),
		slog.Int("blocks", res.blocks))
	return res, nil
}

// stageCompile runs the single pandoc invocation when the artifact is stale
// against the intermediates and the config file.
func (b *Builder) stageCompile(ctx context.Context, bs *BuildState) error {
	artifact := bs.Layout.Artifact()
	deps := append([]string{b.Config.Path()}, bs.intermediates...)
	if !b.Force && !staleAgainst(artifact, deps...) {
		slog.Info("artifact up to date",
			logfields.Target(string(bs.Format)),
			logfields.Artifact(artifact))
		return nil
	}

	job := b.compileJob(bs)
	if err := b.Compiler.Compile(ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			return newCanceledStageError("compile", err)
		}
		return newFatalStageError("compile", err)
	}

	bs.Report.Compiled = true
	slog.Info("artifact written",
		logfields.Target(string(bs.Format)),
		logfields.Artifact(artifact))
	return nil
}

// compileJob assembles the pandoc invocation for this target.
func (b *Builder) compileJob(bs *BuildState) compile.Job {
	cfg := b.Config
	job := compile.Job{
		Format: bs.Format,
		Inputs: bs.intermediates,
		Output: bs.Layout.Artifact(),
		// Woven figures resolve under the build tree, author assets under
		// the book root.
		ResourcePath: bs.Layout.BuildRoot + string(os.PathListSeparator) + cfg.Dir(),

		Title:    cfg.Title,
		Subtitle: cfg.Subtitle,
		Author:   cfg.Author,
		Date:     cfg.Date,
		Language: cfg.Language,

		TOCDepth:     cfg.TOCDepth,
		Bibliography: cfg.Resolve(cfg.Bibliography),

		PDFEngine:    cfg.PDF.Engine,
		PDFTemplate:  cfg.Resolve(cfg.PDF.Template),
		EPUBCover:    cfg.Resolve(cfg.EPUB.CoverImage),
		ImageExt:     cfg.EPUB.DefaultImageExtension,
		ReferenceDoc: cfg.Resolve(cfg.DOCX.ReferenceDoc),
	}

	if bs.Revision != nil {
		job.Revision = bs.Revision.Stamp()
		if job.Date == "" {
			job.Date = bs.Revision.CommitTime.Format("2006-01-02")
		}
	}
	return job
}

// record persists the outcome to history and publishes the build event.
// Both are best effort: failures are logged, never escalated, so a written
// artifact is not reported as a failed build.
func (b *Builder) record(ctx context.Context, bs *BuildState) {
	r := bs.Report

	if b.History != nil {
		rec := history.Record{
			BuildID:         r.BuildID,
			Format:          string(r.Format),
			Outcome:         string(r.Outcome),
			Revision:        r.Revision,
			Artifact:        r.Artifact,
			Chapters:        r.Chapters,
			ChaptersRebuilt: r.Rebuilt,
			Blocks:          r.Blocks,
			StartedAt:       r.Start,
			FinishedAt:      r.End,
		}
		if err := r.Err(); err != nil {
			rec.Error = err.Error()
		}
		if err := b.History.Append(ctx, rec); err != nil {
			slog.Warn("failed to record build history", logfields.Error(err))
		}
	}

	if b.Notifier != nil {
		event := notify.Event{
			BuildID:  r.BuildID,
			Title:    b.Config.Title,
			Format:   string(r.Format),
			Outcome:  string(r.Outcome),
			Revision: r.Revision,
			Artifact: r.Artifact,
			Chapters: r.Chapters,
			Blocks:   r.Blocks,
			Duration: r.Duration().Truncate(time.Millisecond).String(),
		}
		if err := r.Err(); err != nil {
			event.Error = err.Error()
		}
		if err := b.Notifier.Publish(event); err != nil {
			slog.Warn("failed to publish build event", logfields.Error(err))
		}
	}
}
