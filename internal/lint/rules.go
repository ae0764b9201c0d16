package lint

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Crossref label kinds pandoc-crossref understands. Plain citations
// (@doe2020) are deliberately not matched.
const refKinds = `fig|tbl|sec|eq|lst`

var (
	labelDefRe = regexp.MustCompile(`\{#((?:` + refKinds + `):[^}\s]+)`)
	refUseRe   = regexp.MustCompile(`@((?:` + refKinds + `):[A-Za-z0-9._-]+)`)
)

// location is one line position inside a chapter.
type location struct {
	chapter *ChapterScan
	line    int // body-relative
}

// scanProse walks the body lines that are outside fenced code blocks.
// Fences are skipped so listings about crossref syntax lint clean.
func scanProse(body []byte, fn func(line string, n int)) {
	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	var fenceChar byte
	var fenceLen int
	inFence := false

	for i, line := range lines {
		if inFence {
			if ch, n, rest := fenceMarker(line); ch == fenceChar && n >= fenceLen && strings.TrimSpace(rest) == "" {
				inFence = false
			}
			continue
		}
		if ch, n, _ := fenceMarker(line); ch != 0 {
			inFence = true
			fenceChar, fenceLen = ch, n
			continue
		}
		fn(line, i+1)
	}
}

// fenceMarker reports the fence character and run length when line opens or
// closes a fenced code block.
func fenceMarker(line string) (ch byte, n int, rest string) {
	i := 0
	for i < len(line) && i < 3 && line[i] == ' ' {
		i++
	}
	if i >= len(line) || (line[i] != '`' && line[i] != '~') {
		return 0, 0, ""
	}
	c := line[i]
	j := i
	for j < len(line) && line[j] == c {
		j++
	}
	if j-i < 3 {
		return 0, 0, ""
	}
	return c, j - i, line[j:]
}

// collectLabels gathers every crossref label definition in the book.
// Listing labels inside fences count too: pandoc-crossref reads fence
// attributes even though prose references inside fences stay inert.
func collectLabels(book *Book) map[string][]location {
	labels := make(map[string][]location)
	for _, ch := range book.Chapters {
		text := strings.ReplaceAll(string(ch.Body), "\r\n", "\n")
		for i, line := range strings.Split(text, "\n") {
			for _, m := range labelDefRe.FindAllStringSubmatch(line, -1) {
				labels[m[1]] = append(labels[m[1]], location{chapter: ch, line: i + 1})
			}
		}
	}
	return labels
}

// HeadingRule checks that every chapter opens with a level-1 heading, so
// --top-level-division=chapter starts each chapter on its own division.
type HeadingRule struct{}

func (HeadingRule) Name() string { return "chapter-heading" }

func (r HeadingRule) Check(book *Book) []Issue {
	var issues []Issue
	for _, ch := range book.Chapters {
		if len(ch.Scan.Headings) == 0 {
			issues = append(issues, Issue{
				Chapter:  ch.Meta.Rel,
				Severity: SeverityWarning,
				Rule:     r.Name(),
				Message:  "chapter has no heading; it will merge into the previous chapter",
			})
			continue
		}
		if first := ch.Scan.Headings[0]; first.Level != 1 {
			issues = append(issues, Issue{
				Chapter:  ch.Meta.Rel,
				Line:     ch.Line(first.Line),
				Severity: SeverityWarning,
				Rule:     r.Name(),
				Message:  fmt.Sprintf("chapter starts with a level-%d heading; expected a level-1 chapter title", first.Level),
			})
		}
	}
	return issues
}

// DuplicateLabelRule reports crossref labels defined more than once.
// pandoc-crossref silently resolves duplicates to one of them, which
// scrambles references.
type DuplicateLabelRule struct{}

func (DuplicateLabelRule) Name() string { return "duplicate-label" }

func (r DuplicateLabelRule) Check(book *Book) []Issue {
	var issues []Issue
	for label, locs := range collectLabels(book) {
		if len(locs) < 2 {
			continue
		}
		first := locs[0]
		for _, loc := range locs[1:] {
			issues = append(issues, Issue{
				Chapter:  loc.chapter.Meta.Rel,
				Line:     loc.chapter.Line(loc.line),
				Severity: SeverityError,
				Rule:     r.Name(),
				Message: fmt.Sprintf("label %q already defined in %s:%d",
					label, first.chapter.Meta.Rel, first.chapter.Line(first.line)),
			})
		}
	}
	return issues
}

// DanglingRefRule reports crossref references with no matching label
// anywhere in the book. Woven figures define their labels at build time, so
// references into the chapter's own generated figures are skipped when the
// chapter has executable blocks.
type DanglingRefRule struct{}

func (DanglingRefRule) Name() string { return "dangling-ref" }

func (r DanglingRefRule) Check(book *Book) []Issue {
	labels := collectLabels(book)

	var issues []Issue
	for _, ch := range book.Chapters {
		scanProse(ch.Body, func(line string, n int) {
			for _, m := range refUseRe.FindAllStringSubmatch(line, -1) {
				ref := m[1]
				if _, ok := labels[ref]; ok {
					continue
				}
				if ch.Meta.Executable > 0 && strings.HasPrefix(ref, "fig:"+ch.Meta.ID+"-") {
					continue
				}
				issues = append(issues, Issue{
					Chapter:  ch.Meta.Rel,
					Line:     ch.Line(n),
					Severity: SeverityError,
					Rule:     r.Name(),
					Message:  fmt.Sprintf("reference @%s has no matching label", ref),
				})
			}
		})
	}
	return issues
}

// ImageRule checks that relative image paths exist, resolved against the
// chapter's directory and then the book root. Generated figure paths are
// skipped; they exist only under the build tree.
type ImageRule struct{}

func (ImageRule) Name() string { return "missing-image" }

func (r ImageRule) Check(book *Book) []Issue {
	var issues []Issue
	for _, ch := range book.Chapters {
		chapterDir := filepath.Dir(ch.Meta.Path)
		for _, img := range ch.Scan.Images {
			dest := img.Destination
			if dest == "" || strings.Contains(dest, "://") || strings.HasPrefix(dest, "data:") {
				continue
			}
			if strings.HasPrefix(dest, "figures/") {
				continue
			}
			if filepath.IsAbs(dest) {
				if _, err := os.Stat(dest); err == nil {
					continue
				}
			} else if existsUnder(chapterDir, dest) || existsUnder(book.Dir, dest) {
				continue
			}
			issues = append(issues, Issue{
				Chapter:  ch.Meta.Rel,
				Severity: SeverityError,
				Rule:     r.Name(),
				Message:  fmt.Sprintf("image %q not found next to the chapter or under the book root", dest),
			})
		}
	}
	return issues
}

func existsUnder(dir, rel string) bool {
	_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
	return err == nil
}
