// Package workspace fixes the on-disk layout of derived build artifacts.
//
// Every path a build stage writes comes from a Layout, so the tree shape
// lives in one place:
//
//	<build>/<target>/NN-chapter.md         chapter intermediates
//	<build>/<target>/figures/<chapter>/    figures written by woven blocks
//	<output>/<book-slug>.<ext>             final artifacts
//
// The html target is an exception: its artifact stays inside the build tree
// (it is a preview rendition, not a distributable).
package workspace

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	"git.home.luguber.info/inful/bookbuilder/internal/slug"
)

// Layout resolves derived-artifact paths for one (book, target) pair.
// All paths are absolute. The zero value is not usable; use ForTarget.
type Layout struct {
	BuildRoot  string // <build>/<target>
	OutputRoot string
	Format     config.Format
	BookSlug   string
}

// ForTarget builds the layout for one target format.
func ForTarget(cfg *config.Config, format config.Format) Layout {
	return Layout{
		BuildRoot:  filepath.Join(cfg.BuildRoot(), string(format)),
		OutputRoot: cfg.OutputRoot(),
		Format:     format,
		BookSlug:   slug.Make(cfg.Title),
	}
}

// Ensure creates the target's build directory tree.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.BuildRoot, filepath.Join(l.BuildRoot, "figures")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create build directory %s: %w", dir, err)
		}
	}
	if l.Format != config.FormatHTML {
		if err := os.MkdirAll(l.OutputRoot, 0755); err != nil {
			return fmt.Errorf("create output directory %s: %w", l.OutputRoot, err)
		}
	}
	return nil
}

// Intermediate returns the normalized/woven chapter path for a chapter stem.
func (l Layout) Intermediate(stem string) string {
	return filepath.Join(l.BuildRoot, stem+".md")
}

// FigureDir returns the directory a chapter's woven figures land in.
func (l Layout) FigureDir(chapterID string) string {
	return filepath.Join(l.BuildRoot, "figures", chapterID)
}

// FigureRel returns the forward-slash path figures are referenced by from
// the woven Markdown, relative to the build root.
func (l Layout) FigureRel(chapterID string) string {
	return path.Join("figures", chapterID)
}

// Artifact returns the final document path for this target.
func (l Layout) Artifact() string {
	if l.Format == config.FormatHTML {
		return filepath.Join(l.BuildRoot, "index.html")
	}
	return filepath.Join(l.OutputRoot, l.BookSlug+l.Format.Ext())
}

// WriteIntermediate writes a chapter intermediate atomically: temp file in
// the same directory, then rename. A failed weave never leaves a truncated
// intermediate that a later run would consider fresh.
func (l Layout) WriteIntermediate(stem string, content []byte) error {
	target := l.Intermediate(stem)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, content, 0644); err != nil {
		return fmt.Errorf("write intermediate %s: %w", target, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install intermediate %s: %w", target, err)
	}
	return nil
}

// Clean removes the whole build tree and every final artifact for the given
// formats. Chapter sources are never touched: only the build root and the
// named artifacts under the output root are removed, and the output root
// itself is deleted only when that leaves it empty.
func Clean(cfg *config.Config, formats []config.Format) error {
	if err := os.RemoveAll(cfg.BuildRoot()); err != nil {
		return fmt.Errorf("remove build directory: %w", err)
	}

	for _, f := range formats {
		l := ForTarget(cfg, f)
		if err := os.Remove(l.Artifact()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove artifact %s: %w", l.Artifact(), err)
		}
	}

	// Drop the output dir when nothing else lives there.
	if entries, err := os.ReadDir(cfg.OutputRoot()); err == nil && len(entries) == 0 {
		if err := os.Remove(cfg.OutputRoot()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove output directory: %w", err)
		}
	}
	return nil
}
