// Package weave executes a chapter's executable code blocks and splices
// their results into the Markdown.
//
// An executable block is a fenced code block whose info string is `go`
// followed by execution attributes (see ParseInfo). All blocks of one
// chapter run top to bottom in a single Session, so a block can use
// variables and functions defined by earlier blocks. Chapters without
// executable blocks pass through byte-identical.
package weave

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"git.home.luguber.info/inful/bookbuilder/internal/logfields"
)

// Options configures one chapter weave.
type Options struct {
	// Name is the diagnostic name used in error positions, typically the
	// chapter's source path.
	Name string
	// ChapterID qualifies generated crossref labels so figure names only
	// need to be unique within their chapter.
	ChapterID string
	// FigureDir is the absolute directory blocks write figures into.
	FigureDir string
	// FigureRel is the forward-slash path figures are referenced by in the
	// woven Markdown. Defaults to figures/<ChapterID>.
	FigureRel string
	// FigureExt is the figure file extension without dot. Defaults to png.
	FigureExt string
	// Timeout bounds each block's execution. Defaults to 30s.
	Timeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "chapter"
	}
	if o.FigureExt == "" {
		o.FigureExt = "png"
	}
	if o.FigureRel == "" {
		o.FigureRel = path.Join("figures", o.ChapterID)
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// Result is the outcome of weaving one chapter.
type Result struct {
	Output  []byte
	Blocks  int // executed blocks
	Figures int
	Tables  int
}

// Weave runs every executable block in content and returns the rewritten
// chapter. Any block error (evaluation failure, panic, timeout, helper
// misuse, a registered figure never written) aborts the weave; there is no
// partial chapter success.
func Weave(ctx context.Context, content []byte, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	segs, err := split(content, opts.Name)
	if err != nil {
		return nil, err
	}
	if countBlocks(segs) == 0 {
		return &Result{Output: content}, nil
	}

	sess, err := NewSession(opts)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var out []string
	for _, seg := range segs {
		if seg.block == nil {
			out = append(out, seg.lines...)
			continue
		}

		b := seg.block
		output, err := sess.Run(ctx, b.code)
		if err != nil {
			return nil, blockErr(opts.Name, b, withOutput(err, output))
		}
		figs, tabs, err := sess.Drain()
		if err != nil {
			return nil, blockErr(opts.Name, b, err)
		}
		for _, f := range figs {
			if _, statErr := os.Stat(f.Path); statErr != nil {
				return nil, blockErr(opts.Name, b, fmt.Errorf("figure %q was registered but never written to %s", f.Name, f.Path))
			}
		}

		out = append(out, renderBlock(b, output, figs, tabs, opts.ChapterID)...)
		res.Blocks++
		res.Figures += len(figs)
		res.Tables += len(tabs)
		slog.Debug("block executed",
			logfields.Block(b.label),
			logfields.Line(b.line),
			slog.Int("figures", len(figs)),
			slog.Int("tables", len(tabs)))
	}

	joined := strings.Join(out, "\n")
	if len(content) > 0 && content[len(content)-1] == '\n' && joined != "" {
		joined += "\n"
	}
	res.Output = []byte(joined)
	return res, nil
}

// HasBlocks reports whether content contains at least one executable block.
// Used by the pipeline to decide whether a chapter needs a weave at all.
func HasBlocks(content []byte) bool {
	segs, err := split(content, "probe")
	if err != nil {
		// Malformed blocks still count; the weave will diagnose them.
		return true
	}
	return countBlocks(segs) > 0
}

type segment struct {
	lines []string
	block *blockSegment
}

type blockSegment struct {
	attrs  Attrs
	label  string // attrs.Name or a generated ordinal name
	line   int    // opening fence line, 1-based
	marker string // original fence run, e.g. ``` or ~~~~
	code   string
	lines  []string
}

func countBlocks(segs []segment) int {
	n := 0
	for _, s := range segs {
		if s.block != nil {
			n++
		}
	}
	return n
}

// split separates content into prose runs and executable blocks. Plain
// fences (any language, no execution attributes) stay inside prose runs
// untouched.
func split(content []byte, name string) ([]segment, error) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	var segs []segment
	var prose []string
	flush := func() {
		if len(prose) > 0 {
			segs = append(segs, segment{lines: prose})
			prose = nil
		}
	}

	ordinal := 0
	seen := map[string]int{}
	i := 0
	for i < len(lines) {
		ch, n, rest := fenceRun(lines[i])
		if ch == 0 {
			prose = append(prose, lines[i])
			i++
			continue
		}

		// Find the closing fence; an unclosed fence runs to EOF.
		closing := len(lines)
		for j := i + 1; j < len(lines); j++ {
			c2, n2, r2 := fenceRun(lines[j])
			if c2 == ch && n2 >= n && strings.TrimSpace(r2) == "" {
				closing = j
				break
			}
		}

		attrs, ok, perr := ParseInfo(strings.TrimSpace(rest))
		if perr != nil {
			return nil, fmt.Errorf("%s:%d: %v", name, i+1, perr)
		}
		if !ok {
			end := closing
			if closing < len(lines) {
				end = closing + 1
			}
			prose = append(prose, lines[i:end]...)
			i = end
			continue
		}
		if closing >= len(lines) {
			return nil, fmt.Errorf("%s:%d: unterminated executable block", name, i+1)
		}

		ordinal++
		b := &blockSegment{
			attrs:  attrs,
			label:  attrs.Name,
			line:   i + 1,
			marker: strings.Repeat(string(ch), n),
			code:   strings.Join(lines[i+1:closing], "\n"),
			lines:  lines[i+1 : closing],
		}
		if b.label == "" {
			b.label = fmt.Sprintf("block-%d", ordinal)
		}
		if prev, dup := seen[b.label]; dup {
			return nil, fmt.Errorf("%s:%d: block name %q already used at line %d", name, b.line, b.label, prev)
		}
		seen[b.label] = b.line

		flush()
		segs = append(segs, segment{block: b})
		i = closing + 1
	}
	flush()
	return segs, nil
}

// renderBlock produces the woven replacement for one executed block:
// source echo (unless hidden), console output (unless silent or empty),
// then tables and figures.
func renderBlock(b *blockSegment, output string, figs []Figure, tabs []Table, chapterID string) []string {
	var out []string

	if !b.attrs.Silent && !b.attrs.Hide {
		out = append(out, b.marker+"go")
		out = append(out, b.lines...)
		out = append(out, b.marker)
	}

	if !b.attrs.Silent && strings.TrimSpace(output) != "" {
		fence := outputFence(output)
		out = append(out, "", fence+"text")
		out = append(out, strings.Split(strings.TrimRight(output, "\n"), "\n")...)
		out = append(out, fence)
	}

	for _, t := range tabs {
		out = append(out, "")
		out = append(out, renderTable(t)...)
	}
	for _, f := range figs {
		out = append(out, "", fmt.Sprintf("![%s](%s){#fig:%s}", f.Caption, f.Rel, figureLabel(chapterID, f.Name)))
	}

	// A fully silent block with no figures or tables vanishes from the
	// output entirely.
	return out
}

func figureLabel(chapterID, name string) string {
	if chapterID == "" {
		return name
	}
	return chapterID + "-" + name
}

// outputFence picks a backtick run longer than any run inside the output so
// captured text can never terminate the fence early.
func outputFence(output string) string {
	longest := 0
	run := 0
	for _, r := range output {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	n := 3
	if longest >= 3 {
		n = longest + 1
	}
	return strings.Repeat("`", n)
}

// renderTable renders a pipe table. Cells are escaped so embedded pipes
// cannot break the table structure.
func renderTable(t Table) []string {
	row := func(cells []string) string {
		escaped := make([]string, len(cells))
		for i, c := range cells {
			escaped[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		return "| " + strings.Join(escaped, " | ") + " |"
	}

	lines := []string{row(t.Header)}
	sep := make([]string, len(t.Header))
	for i := range sep {
		sep[i] = "---"
	}
	lines = append(lines, "|"+strings.Join(sep, "|")+"|")
	for _, r := range t.Rows {
		lines = append(lines, row(r))
	}
	return lines
}

// fenceRun reports a fence delimiter at this line: up to three leading
// spaces, then at least three backticks or tildes. rest is the remainder
// after the run; ch is zero for non-fence lines.
func fenceRun(line string) (ch byte, n int, rest string) {
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

func blockErr(name string, b *blockSegment, err error) error {
	return fmt.Errorf("%s:%d: block %q: %w", name, b.line, b.label, err)
}

// withOutput attaches the block's captured console output to an execution
// error so the diagnostic shows what the block printed before failing.
func withOutput(err error, output string) error {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return err
	}
	return fmt.Errorf("%w\nblock output:\n%s", err, trimmed)
}
