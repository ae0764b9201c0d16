// Package lint checks a manuscript for problems pandoc and pandoc-crossref
// would either reject late or, worse, paper over: dangling or duplicated
// crossref labels, missing images, chapters without a title heading.
package lint

import (
	"sort"
)

// Linter runs all manuscript rules against a scanned book.
type Linter struct {
	rules []Rule
}

// New creates a linter with the standard rule set.
func New() *Linter {
	return &Linter{
		rules: []Rule{
			HeadingRule{},
			DuplicateLabelRule{},
			DanglingRefRule{},
			ImageRule{},
		},
	}
}

// Lint applies every rule and returns the combined result, ordered by
// chapter position and line.
func (l *Linter) Lint(book *Book) *Result {
	result := &Result{
		Issues:        []Issue{},
		ChaptersTotal: len(book.Chapters),
	}
	for _, rule := range l.rules {
		result.Issues = append(result.Issues, rule.Check(book)...)
	}

	seq := make(map[string]int, len(book.Chapters))
	for _, ch := range book.Chapters {
		seq[ch.Meta.Rel] = ch.Meta.Seq
	}
	sort.SliceStable(result.Issues, func(i, j int) bool {
		a, b := result.Issues[i], result.Issues[j]
		if seq[a.Chapter] != seq[b.Chapter] {
			return seq[a.Chapter] < seq[b.Chapter]
		}
		return a.Line < b.Line
	})
	return result
}
