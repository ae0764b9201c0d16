package lint

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
)

func loadTestBook(t *testing.T, files map[string]string) *Book {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	cfg, err := config.Load(filepath.Join(dir, "book.yaml"))
	require.NoError(t, err)

	book, err := LoadBook(cfg)
	require.NoError(t, err)
	return book
}

func issuesFor(result *Result, rule string) []Issue {
	var out []Issue
	for _, issue := range result.Issues {
		if issue.Rule == rule {
			out = append(out, issue)
		}
	}
	return out
}

func TestCleanManuscriptLintsClean(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml": "title: Clean\nchapters:\n  - chapters/01-intro.md\n  - chapters/02-data.md\n",
		"chapters/01-intro.md": "# Introduction {#sec:intro}\n\nSee @sec:data for details.\n",
		"chapters/02-data.md":  "# Data {#sec:data}\n\nBack in @sec:intro we began.\n",
	})

	result := New().Lint(book)
	require.Empty(t, result.Issues)
	require.Equal(t, 2, result.ChaptersTotal)
	require.False(t, result.HasErrors())
}

func TestDanglingReferenceReported(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml":            "title: Dangling\nchapters:\n  - chapters/01-intro.md\n",
		"chapters/01-intro.md": "# Intro\n\nSee @fig:missing for the diagram.\n",
	})

	result := New().Lint(book)
	issues := issuesFor(result, "dangling-ref")
	require.Len(t, issues, 1)
	require.Equal(t, SeverityError, issues[0].Severity)
	require.Contains(t, issues[0].Message, "@fig:missing")
	require.Equal(t, 3, issues[0].Line)
	require.True(t, result.HasErrors())
}

func TestReferencesAcrossChaptersResolve(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml":        "title: Cross\nchapters:\n  - chapters/01-a.md\n  - chapters/02-b.md\n",
		"chapters/01-a.md": "# A\n\n![diagram](pic.png){#fig:arch}\n",
		"chapters/02-b.md": "# B\n\nAs @fig:arch shows.\n",
		"chapters/pic.png": "png",
	})

	result := New().Lint(book)
	require.Empty(t, issuesFor(result, "dangling-ref"))
}

func TestReferenceInsideFenceIgnored(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml": "title: Fenced\nchapters:\n  - chapters/01-a.md\n",
		"chapters/01-a.md": "# A\n\n```markdown\nSee @fig:not-a-real-ref here.\n```\n",
	})

	result := New().Lint(book)
	require.Empty(t, issuesFor(result, "dangling-ref"))
}

func TestDuplicateLabelReported(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml":        "title: Dup\nchapters:\n  - chapters/01-a.md\n  - chapters/02-b.md\n",
		"chapters/01-a.md": "# A {#sec:setup}\n",
		"chapters/02-b.md": "# B {#sec:setup}\n",
	})

	result := New().Lint(book)
	issues := issuesFor(result, "duplicate-label")
	require.Len(t, issues, 1)
	require.Equal(t, "chapters/02-b.md", issues[0].Chapter)
	require.Contains(t, issues[0].Message, "chapters/01-a.md:1")
}

func TestFrontmatterOffsetInPositions(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml": "title: Offset\nchapters:\n  - chapters/01-a.md\n",
		"chapters/01-a.md": "---\ntitle: With Frontmatter\n---\n# A\n\nSee @tbl:gone now.\n",
	})

	result := New().Lint(book)
	issues := issuesFor(result, "dangling-ref")
	require.Len(t, issues, 1)
	// Line 6 of the author's file, not line 3 of the stripped body.
	require.Equal(t, 6, issues[0].Line)
}

func TestMissingImageReported(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml":        "title: Img\nchapters:\n  - chapters/01-a.md\n",
		"chapters/01-a.md": "# A\n\n![gone](assets/gone.png)\n\n![remote](https://example.com/x.png)\n",
	})

	result := New().Lint(book)
	issues := issuesFor(result, "missing-image")
	require.Len(t, issues, 1)
	require.Contains(t, issues[0].Message, "assets/gone.png")
}

func TestImageUnderBookRootResolves(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml":        "title: Img\nchapters:\n  - chapters/01-a.md\n",
		"chapters/01-a.md": "# A\n\n![ok](assets/logo.png)\n",
		"assets/logo.png":  "png",
	})

	result := New().Lint(book)
	require.Empty(t, issuesFor(result, "missing-image"))
}

func TestGeneratedFigurePathsSkipped(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml":        "title: Gen\nchapters:\n  - chapters/01-a.md\n",
		"chapters/01-a.md": "# A\n\n![woven](figures/a/plot.png)\n",
	})

	result := New().Lint(book)
	require.Empty(t, issuesFor(result, "missing-image"))
}

func TestChapterWithoutHeadingWarns(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml":        "title: NoHead\nchapters:\n  - chapters/01-a.md\n  - chapters/02-b.md\n",
		"chapters/01-a.md": "Just prose, no heading.\n",
		"chapters/02-b.md": "## Subsection First\n\nBody.\n",
	})

	result := New().Lint(book)
	issues := issuesFor(result, "chapter-heading")
	require.Len(t, issues, 2)
	require.Equal(t, SeverityWarning, issues[0].Severity)
	require.Contains(t, issues[1].Message, "level-2")
	require.False(t, result.HasErrors())
}

func TestWovenFigureReferenceNotDangling(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml": "title: Woven\nchapters:\n  - chapters/01-demo.md\n",
		"chapters/01-demo.md": "# Demo\n\nSee @fig:01-demo-plot below.\n\n" +
			"```go run\n_ = weave.Figure(\"plot\", \"A plot\")\n```\n",
	})

	result := New().Lint(book)
	require.Empty(t, issuesFor(result, "dangling-ref"))
}

func TestIssuesOrderedByChapterAndLine(t *testing.T) {
	book := loadTestBook(t, map[string]string{
		"book.yaml":        "title: Order\nchapters:\n  - chapters/01-a.md\n  - chapters/02-b.md\n",
		"chapters/01-a.md": "# A\n\n@eq:one and later @eq:two.\n\nAnd @eq:three.\n",
		"chapters/02-b.md": "# B\n\n@eq:four.\n",
	})

	result := New().Lint(book)
	require.Len(t, result.Issues, 4)
	require.Equal(t, "chapters/01-a.md", result.Issues[0].Chapter)
	require.Equal(t, "chapters/02-b.md", result.Issues[3].Chapter)
	require.LessOrEqual(t, result.Issues[0].Line, result.Issues[1].Line)
}

func TestTextFormatter(t *testing.T) {
	result := &Result{
		ChaptersTotal: 1,
		Issues: []Issue{
			{Chapter: "chapters/01-a.md", Line: 3, Severity: SeverityError, Rule: "dangling-ref", Message: "reference @fig:x has no matching label"},
			{Chapter: "chapters/01-a.md", Severity: SeverityWarning, Rule: "chapter-heading", Message: "chapter has no heading; it will merge into the previous chapter"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter("text").Format(&buf, result))

	out := buf.String()
	require.Contains(t, out, "chapters/01-a.md:3: ERROR dangling-ref:")
	require.Contains(t, out, "chapters/01-a.md: WARNING chapter-heading:")
	require.Contains(t, out, "1 chapters checked: 1 errors, 1 warnings")
}

func TestJSONFormatter(t *testing.T) {
	result := &Result{
		ChaptersTotal: 2,
		Issues: []Issue{
			{Chapter: "chapters/01-a.md", Line: 3, Severity: SeverityError, Rule: "dangling-ref", Message: "x"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewFormatter("json").Format(&buf, result))

	var decoded struct {
		Issues []struct {
			Chapter  string `json:"chapter"`
			Severity string `json:"severity"`
			Rule     string `json:"rule"`
		} `json:"issues"`
		Errors int `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Issues, 1)
	require.Equal(t, "ERROR", decoded.Issues[0].Severity)
	require.Equal(t, 1, decoded.Errors)
}

func TestScanProseSkipsFences(t *testing.T) {
	body := "prose one\n```go\ncode line\n```\nprose two\n~~~\ntilde code\n~~~\nprose three\n"
	var seen []string
	scanProse([]byte(body), func(line string, n int) {
		seen = append(seen, line)
	})
	require.Equal(t, []string{"prose one", "prose two", "prose three"}, seen)
	require.False(t, strings.Contains(strings.Join(seen, "\n"), "code"))
}
