// Package macro expands conditional-text directives in chapter Markdown.
//
// Directives are recognized at column 0, outside fenced code regions only:
//
//	#ifdef NAME / #ifndef NAME / #else / #endif
//	#define NAME [value]
//	#undef NAME
//	#include "rel/path.md"
//
// plus {{NAME}} value substitution on prose lines. Resolution is a pure
// function of (content, symbol table): the caller's table is never mutated,
// and identical inputs produce identical output. Anything else starting
// with '#' is Markdown, not a directive.
package macro

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Symbols is the macro symbol table. The empty string is a valid value;
// presence alone drives #ifdef.
type Symbols map[string]string

// DefaultMaxDepth bounds #include nesting.
const DefaultMaxDepth = 16

// Resolver expands directives. The zero value is ready to use.
type Resolver struct {
	// MaxDepth overrides DefaultMaxDepth when positive.
	MaxDepth int
}

var (
	directiveRe = regexp.MustCompile(`^#(ifdef|ifndef|else|endif|define|undef|include)\b[ \t]*(.*)$`)
	symbolRe    = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
	defineRe    = regexp.MustCompile(`^([A-Z][A-Z0-9_]*)(?:[ \t]+(.*))?$`)
	includeRe   = regexp.MustCompile(`^"([^"]+)"$`)
	substRe     = regexp.MustCompile(`\{\{([A-Z][A-Z0-9_]*)\}\}`)
)

// ResolveFile reads path and resolves it. Includes are read relative to the
// file's directory.
func (r *Resolver) ResolveFile(path string, symbols Symbols) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return r.Resolve(content, path, symbols)
}

// Resolve resolves in-memory content. path is used for include resolution
// and diagnostics; it does not have to exist.
func (r *Resolver) Resolve(content []byte, path string, symbols Symbols) ([]byte, error) {
	st := &state{
		symbols:  maps.Clone(symbols),
		maxDepth: r.MaxDepth,
		visiting: map[string]bool{},
	}
	if st.symbols == nil {
		st.symbols = Symbols{}
	}
	if st.maxDepth <= 0 {
		st.maxDepth = DefaultMaxDepth
	}

	lines, err := st.resolveLines(content, path)
	if err != nil {
		return nil, err
	}

	out := strings.Join(lines, "\n")
	if len(content) > 0 && content[len(content)-1] == '\n' && out != "" {
		out += "\n"
	}
	return []byte(out), nil
}

type state struct {
	symbols  Symbols
	maxDepth int
	depth    int
	visiting map[string]bool
}

// cond is one conditional nesting level.
type cond struct {
	openLine int
	met      bool // condition held
	inElse   bool
}

func (c cond) active() bool { return c.met != c.inElse }

func (st *state) resolveLines(content []byte, path string) ([]string, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		key = filepath.Clean(path)
	}
	if st.visiting[key] {
		return nil, fmt.Errorf("%s: include cycle", path)
	}
	st.visiting[key] = true
	defer delete(st.visiting, key)

	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")

	var out []string
	var conds []cond
	var fenceChar byte
	var fenceLen int
	inFence := false

	emit := func() bool {
		for _, c := range conds {
			if !c.active() {
				return false
			}
		}
		return true
	}

	for i, line := range lines {
		lineNo := i + 1

		if inFence {
			if ch, n, rest := fenceMarker(line); ch == fenceChar && n >= fenceLen && strings.TrimSpace(rest) == "" {
				inFence = false
			}
			if emit() {
				out = append(out, line)
			}
			continue
		}

		if m := directiveRe.FindStringSubmatch(line); m != nil {
			name, arg := m[1], strings.TrimSpace(m[2])
			switch name {
			case "ifdef", "ifndef":
				if !symbolRe.MatchString(arg) {
					return nil, errAt(path, lineNo, "#%s needs a symbol name, got %q", name, arg)
				}
				_, defined := st.symbols[arg]
				met := defined == (name == "ifdef")
				conds = append(conds, cond{openLine: lineNo, met: met})
			case "else":
				if arg != "" {
					return nil, errAt(path, lineNo, "unexpected text after #else")
				}
				if len(conds) == 0 {
					return nil, errAt(path, lineNo, "#else without #ifdef")
				}
				top := &conds[len(conds)-1]
				if top.inElse {
					return nil, errAt(path, lineNo, "second #else for #ifdef at line %d", top.openLine)
				}
				top.inElse = true
			case "endif":
				if arg != "" {
					return nil, errAt(path, lineNo, "unexpected text after #endif")
				}
				if len(conds) == 0 {
					return nil, errAt(path, lineNo, "#endif without #ifdef")
				}
				conds = conds[:len(conds)-1]
			case "define":
				if !emit() {
					continue
				}
				dm := defineRe.FindStringSubmatch(arg)
				if dm == nil {
					return nil, errAt(path, lineNo, "#define needs a symbol name, got %q", arg)
				}
				st.symbols[dm[1]] = strings.TrimSpace(dm[2])
			case "undef":
				if !emit() {
					continue
				}
				if !symbolRe.MatchString(arg) {
					return nil, errAt(path, lineNo, "#undef needs a symbol name, got %q", arg)
				}
				delete(st.symbols, arg)
			case "include":
				if !emit() {
					continue
				}
				im := includeRe.FindStringSubmatch(arg)
				if im == nil {
					return nil, errAt(path, lineNo, `#include needs a quoted path, got %q`, arg)
				}
				if filepath.IsAbs(im[1]) {
					return nil, errAt(path, lineNo, "#include path must be relative: %s", im[1])
				}
				included, err := st.include(filepath.Join(filepath.Dir(path), im[1]), path, lineNo)
				if err != nil {
					return nil, err
				}
				out = append(out, included...)
			}
			continue
		}

		if ch, n, _ := fenceMarker(line); ch != 0 {
			inFence = true
			fenceChar, fenceLen = ch, n
			if emit() {
				out = append(out, line)
			}
			continue
		}

		if !emit() {
			continue
		}
		out = append(out, st.substitute(line))
	}

	if len(conds) > 0 {
		top := conds[len(conds)-1]
		return nil, errAt(path, top.openLine, "unterminated conditional (missing #endif)")
	}

	return out, nil
}

func (st *state) include(path, from string, line int) ([]string, error) {
	if st.depth >= st.maxDepth {
		return nil, errAt(from, line, "include depth limit (%d) exceeded", st.maxDepth)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errAt(from, line, "cannot include %s: %v", path, err)
	}
	st.depth++
	defer func() { st.depth-- }()

	lines, err := st.resolveLines(content, path)
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// substitute replaces {{NAME}} for defined symbols. Unknown names stay
// verbatim; definedness is checked so empty values still substitute.
func (st *state) substitute(line string) string {
	if !strings.Contains(line, "{{") {
		return line
	}
	return substRe.ReplaceAllStringFunc(line, func(m string) string {
		name := m[2 : len(m)-2]
		if value, ok := st.symbols[name]; ok {
			return value
		}
		return m
	})
}

// fenceMarker reports the fence run opening or closing at this line:
// up to three leading spaces, then at least three backticks or tildes.
// rest is the remainder after the run. ch is zero for non-fence lines.
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

func errAt(path string, line int, format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s", path, line, fmt.Sprintf(format, args...))
}
