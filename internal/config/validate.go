package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
)

// Validate checks the configuration for problems. All problems are collected
// so a single run reports everything wrong with the file.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Title) == "" {
		problems = append(problems, "title is required")
	}

	if len(c.Chapters) == 0 {
		problems = append(problems, "chapters list is empty; at least one chapter is required")
	}

	seen := make(map[string]int, len(c.Chapters))
	for i, ch := range c.Chapters {
		if strings.TrimSpace(ch) == "" {
			problems = append(problems, fmt.Sprintf("chapters[%d]: empty path", i))
			continue
		}
		if filepath.IsAbs(ch) {
			problems = append(problems, fmt.Sprintf("chapters[%d]: %s: absolute paths are not allowed", i, ch))
			continue
		}
		clean := filepath.Clean(ch)
		if strings.HasPrefix(clean, "..") {
			problems = append(problems, fmt.Sprintf("chapters[%d]: %s: path escapes the book directory", i, ch))
			continue
		}
		if prev, dup := seen[clean]; dup {
			problems = append(problems, fmt.Sprintf("chapters[%d]: %s: duplicate of chapters[%d]", i, ch, prev))
			continue
		}
		seen[clean] = i
		if _, err := os.Stat(c.Resolve(clean)); err != nil {
			problems = append(problems, fmt.Sprintf("chapters[%d]: %s: file not found", i, ch))
		}
	}

	_, bad := ParseFormats(c.Formats)
	for _, b := range bad {
		problems = append(problems, fmt.Sprintf("formats: unknown format %q (valid: pdf, epub, docx)", b))
	}
	for _, f := range c.Formats {
		if NormalizeFormat(f) == FormatHTML {
			problems = append(problems, "formats: html is not a book target; use the preview server instead")
		}
	}

	if c.TOCDepth < 1 || c.TOCDepth > 6 {
		problems = append(problems, fmt.Sprintf("toc_depth: %d is out of range 1..6", c.TOCDepth))
	}

	if c.Bibliography != "" {
		if _, err := os.Stat(c.Resolve(c.Bibliography)); err != nil {
			problems = append(problems, fmt.Sprintf("bibliography: %s: file not found", c.Bibliography))
		}
	}
	if c.EPUB.CoverImage != "" {
		if _, err := os.Stat(c.Resolve(c.EPUB.CoverImage)); err != nil {
			problems = append(problems, fmt.Sprintf("epub.cover_image: %s: file not found", c.EPUB.CoverImage))
		}
	}
	if c.DOCX.ReferenceDoc != "" {
		if _, err := os.Stat(c.Resolve(c.DOCX.ReferenceDoc)); err != nil {
			problems = append(problems, fmt.Sprintf("docx.reference_doc: %s: file not found", c.DOCX.ReferenceDoc))
		}
	}
	if c.PDF.Template != "" {
		if _, err := os.Stat(c.Resolve(c.PDF.Template)); err != nil {
			problems = append(problems, fmt.Sprintf("pdf.template: %s: file not found", c.PDF.Template))
		}
	}

	if c.Weave.Timeout != "" {
		if d, err := time.ParseDuration(c.Weave.Timeout); err != nil {
			problems = append(problems, fmt.Sprintf("weave.timeout: %q is not a valid duration", c.Weave.Timeout))
		} else if d <= 0 {
			problems = append(problems, fmt.Sprintf("weave.timeout: %q must be positive", c.Weave.Timeout))
		}
	}
	if c.Preview.RebuildInterval != "" {
		if d, err := time.ParseDuration(c.Preview.RebuildInterval); err != nil {
			problems = append(problems, fmt.Sprintf("preview.rebuild_interval: %q is not a valid duration", c.Preview.RebuildInterval))
		} else if d < time.Second {
			problems = append(problems, fmt.Sprintf("preview.rebuild_interval: %q is below the 1s minimum", c.Preview.RebuildInterval))
		}
	}
	if c.Preview.Port < 0 || c.Preview.Port > 65535 {
		problems = append(problems, fmt.Sprintf("preview.port: %d is out of range", c.Preview.Port))
	}

	for name := range c.Defines {
		if !validSymbol(name) {
			problems = append(problems, fmt.Sprintf("defines: %q is not a valid symbol name (want [A-Z][A-Z0-9_]*)", name))
		}
	}

	if len(problems) > 0 {
		return bberrors.New(bberrors.CategoryConfig, bberrors.SeverityFatal,
			"invalid configuration:\n  - "+strings.Join(problems, "\n  - "))
	}
	return nil
}

// validSymbol reports whether name is an acceptable macro symbol:
// uppercase letters, digits and underscores, starting with a letter.
func validSymbol(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
		case r == '_' && i > 0:
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
