// Package manuscript resolves the configured chapter list into the ordered
// chapter model every later stage works from.
package manuscript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
	"git.home.luguber.info/inful/bookbuilder/internal/frontmatter"
	"git.home.luguber.info/inful/bookbuilder/internal/markdown"
	"git.home.luguber.info/inful/bookbuilder/internal/slug"
	"git.home.luguber.info/inful/bookbuilder/internal/weave"
)

// Chapter is one entry of the ordered chapter list.
//
// Order is the single source of truth for document structure: Seq is the
// 1-based position in book.yaml and is never reassigned by later stages.
type Chapter struct {
	Seq   int
	ID    string // stable slug used for intermediate names and figure dirs
	Rel   string // path as configured, relative to the book directory
	Path  string // absolute source path
	Title string

	// Executable counts executable fences in the source text. Informational:
	// the weave stage re-detects blocks on the normalized text, since
	// includes can add blocks the source does not carry.
	Executable int
}

// Stem returns the intermediate file stem, ordered so a directory listing
// matches the configured order.
func (c *Chapter) Stem() string {
	return fmt.Sprintf("%02d-%s", c.Seq, c.ID)
}

// Resolve reads every configured chapter and builds the chapter model.
// The configured order is preserved verbatim; any unreadable chapter or ID
// collision fails the whole resolve.
func Resolve(cfg *config.Config) ([]*Chapter, error) {
	chapters := make([]*Chapter, 0, len(cfg.Chapters))
	byID := make(map[string]*Chapter, len(cfg.Chapters))

	for i, rel := range cfg.Chapters {
		path := cfg.Resolve(rel)
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, bberrors.ChapterNotFound(rel)
			}
			return nil, bberrors.WrapError(err, bberrors.CategoryChapter, fmt.Sprintf("read chapter %s", rel))
		}

		meta, body, _, _, err := frontmatter.Split(content)
		if err != nil {
			return nil, bberrors.WrapError(err, bberrors.CategoryChapter, fmt.Sprintf("chapter %s", rel)).
				WithContext("path", rel)
		}
		fields, err := frontmatter.ParseFields(meta)
		if err != nil {
			return nil, bberrors.WrapError(err, bberrors.CategoryChapter, fmt.Sprintf("chapter %s", rel)).
				WithContext("path", rel)
		}

		scan, err := markdown.Scan(body)
		if err != nil {
			return nil, bberrors.WrapError(err, bberrors.CategoryChapter, fmt.Sprintf("scan chapter %s", rel))
		}

		ch := &Chapter{
			Seq:   i + 1,
			Rel:   rel,
			Path:  path,
			Title: chapterTitle(fields, scan, rel),
		}
		ch.ID = chapterID(fields, rel)
		for _, f := range scan.Fences {
			if weave.IsExecutable(f.Info) {
				ch.Executable++
			}
		}

		if prev, dup := byID[ch.ID]; dup {
			// Same basename in different directories; disambiguate with the
			// parent directory before giving up.
			ch.ID = qualifyID(rel, ch.ID)
			if _, still := byID[ch.ID]; still || ch.ID == prev.ID {
				return nil, bberrors.ValidationFailed("chapters",
					fmt.Sprintf("%s and %s resolve to the same id %q; set an explicit id in frontmatter", prev.Rel, rel, prev.ID))
			}
		}
		byID[ch.ID] = ch
		chapters = append(chapters, ch)
	}

	return chapters, nil
}

func chapterTitle(fields frontmatter.Fields, scan *markdown.Summary, rel string) string {
	if fields.Title != "" {
		return fields.Title
	}
	if scan.Title != "" {
		return scan.Title
	}
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func chapterID(fields frontmatter.Fields, rel string) string {
	if fields.ID != "" {
		return slug.Make(fields.ID)
	}
	base := filepath.Base(rel)
	return slug.Make(strings.TrimSuffix(base, filepath.Ext(base)))
}

func qualifyID(rel, id string) string {
	dir := filepath.Base(filepath.Dir(rel))
	if dir == "." || dir == "" {
		return id
	}
	return slug.Make(dir) + "-" + id
}
