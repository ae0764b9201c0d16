package lint

import (
	"bytes"
	"fmt"
	"os"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
	"git.home.luguber.info/inful/bookbuilder/internal/frontmatter"
	"git.home.luguber.info/inful/bookbuilder/internal/manuscript"
	"git.home.luguber.info/inful/bookbuilder/internal/markdown"
)

// Book is the scanned manuscript the rules run against.
type Book struct {
	// Dir is the book root; relative asset paths resolve against it and
	// against each chapter's own directory.
	Dir      string
	Chapters []*ChapterScan
}

// ChapterScan pairs one chapter with its parsed body.
type ChapterScan struct {
	Meta *manuscript.Chapter
	Body []byte
	Scan *markdown.Summary

	// offset is the number of source lines preceding the body (the
	// frontmatter block); body-relative line numbers add it to report
	// positions in the author's file.
	offset int
}

// Line converts a body-relative line number to a source-file line number.
func (c *ChapterScan) Line(bodyLine int) int {
	if bodyLine <= 0 {
		return 0
	}
	return bodyLine + c.offset
}

// LoadBook resolves the configured chapters and scans each body.
func LoadBook(cfg *config.Config) (*Book, error) {
	chapters, err := manuscript.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	book := &Book{Dir: cfg.Dir(), Chapters: make([]*ChapterScan, 0, len(chapters))}
	for _, ch := range chapters {
		source, err := os.ReadFile(ch.Path)
		if err != nil {
			return nil, fmt.Errorf("read chapter %s: %w", ch.Rel, err)
		}
		_, body, _, _, err := frontmatter.Split(source)
		if err != nil {
			return nil, fmt.Errorf("chapter %s: %w", ch.Rel, err)
		}
		scan, err := markdown.Scan(body)
		if err != nil {
			return nil, fmt.Errorf("scan chapter %s: %w", ch.Rel, err)
		}

		book.Chapters = append(book.Chapters, &ChapterScan{
			Meta:   ch,
			Body:   body,
			Scan:   scan,
			offset: bytes.Count(source, []byte("\n")) - bytes.Count(body, []byte("\n")),
		})
	}
	return book, nil
}
