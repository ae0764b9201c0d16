package commands

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
	"git.home.luguber.info/inful/bookbuilder/internal/frontmatter"
	"git.home.luguber.info/inful/bookbuilder/internal/macro"
	"git.home.luguber.info/inful/bookbuilder/internal/manuscript"
	"git.home.luguber.info/inful/bookbuilder/internal/weave"
)

// WeaveCmd normalizes and weaves a single chapter outside a full build, for
// inspecting exactly what the compiler would consume.
type WeaveCmd struct {
	Chapter string `arg:"" help:"Chapter path as listed in book.yaml, or its id"`
	Target  string `short:"t" default:"pdf" enum:"pdf,epub,docx,html" help:"Target the format symbol is defined for"`
	Out     string `short:"o" help:"Directory for the woven chapter and its figures (default: stdout, figures in a temp dir)"`
}

func (w *WeaveCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	chapters, err := manuscript.Resolve(cfg)
	if err != nil {
		return err
	}

	var ch *manuscript.Chapter
	for _, c := range chapters {
		if c.Rel == w.Chapter || c.ID == w.Chapter {
			ch = c
			break
		}
	}
	if ch == nil {
		return bberrors.ChapterNotFound(w.Chapter)
	}

	format := config.NormalizeFormat(w.Target)
	symbols := macro.Symbols{format.Symbol(): ""}
	for name, value := range cfg.Defines {
		symbols[name] = value
	}

	source, err := os.ReadFile(ch.Path)
	if err != nil {
		return bberrors.WrapError(err, bberrors.CategoryChapter, fmt.Sprintf("read chapter %s", ch.Rel))
	}
	_, body, _, _, err := frontmatter.Split(source)
	if err != nil {
		return bberrors.WrapError(err, bberrors.CategoryChapter, fmt.Sprintf("chapter %s", ch.Rel))
	}

	resolver := &macro.Resolver{}
	content, err := resolver.Resolve(body, ch.Path, symbols)
	if err != nil {
		return bberrors.WrapError(err, bberrors.CategoryMacro, fmt.Sprintf("chapter %s", ch.Rel))
	}

	if weave.HasBlocks(content) {
		figBase := w.Out
		if figBase == "" {
			figBase, err = os.MkdirTemp("", "bookbuilder-weave-")
			if err != nil {
				return bberrors.WorkspaceError("create figure directory", err)
			}
			fmt.Fprintf(os.Stderr, "figures: %s\n", figBase)
		}
		woven, werr := weave.Weave(context.Background(), content, weave.Options{
			Name:      ch.Rel,
			ChapterID: ch.ID,
			FigureDir: filepath.Join(figBase, "figures", ch.ID),
			FigureRel: path.Join("figures", ch.ID),
			FigureExt: cfg.Weave.FigureFormat,
			Timeout:   cfg.Weave.BlockTimeout(),
		})
		if werr != nil {
			return bberrors.WrapError(werr, bberrors.CategoryWeave, fmt.Sprintf("chapter %s", ch.Rel))
		}
		content = woven.Output
	}

	if w.Out == "" {
		_, err = os.Stdout.Write(content)
		return err
	}
	if err := os.MkdirAll(w.Out, 0755); err != nil {
		return bberrors.WorkspaceError("create weave output directory", err)
	}
	dest := filepath.Join(w.Out, ch.Stem()+".md")
	if err := os.WriteFile(dest, content, 0644); err != nil {
		return bberrors.WorkspaceError("write woven chapter", err)
	}
	fmt.Printf("Wrote %s\n", dest)
	return nil
}
