package weave

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"git.home.luguber.info/inful/bookbuilder/internal/slug"
)

// Session is one persistent evaluation context for a chapter's executable
// blocks. Blocks share interpreter state: later blocks see definitions from
// earlier ones. Stdout and stderr of interpreted code are captured per block.
type Session struct {
	interp  *interp.Interpreter
	out     *bytes.Buffer
	reg     *registry
	timeout time.Duration
}

// Figure is a figure registered by an executable block via weave.Figure.
type Figure struct {
	Name    string // slugified name, unique within the chapter
	Caption string
	Path    string // absolute path the block must write
	Rel     string // forward-slash path used in the image reference
}

// Table is a table registered via weave.Table.
type Table struct {
	Header []string
	Rows   [][]string
}

// NewSession starts an interpreter with the stdlib plus the injected weave
// helper package, and imports fmt and weave so every block can use them
// without its own import clause.
func NewSession(opts Options) (*Session, error) {
	opts = opts.withDefaults()

	out := &bytes.Buffer{}
	i := interp.New(interp.Options{Stdout: out, Stderr: out})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load interpreter stdlib: %w", err)
	}

	reg := &registry{
		dir:   opts.FigureDir,
		rel:   opts.FigureRel,
		ext:   opts.FigureExt,
		names: map[string]bool{},
	}
	err := i.Use(interp.Exports{
		"weave/weave": {
			"Figure": reflect.ValueOf(reg.Figure),
			"Table":  reflect.ValueOf(reg.Table),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("inject weave helpers: %w", err)
	}
	if _, err := i.Eval(`import ("fmt"; "weave")`); err != nil {
		return nil, fmt.Errorf("session preamble: %w", err)
	}

	return &Session{interp: i, out: out, reg: reg, timeout: opts.Timeout}, nil
}

// Run evaluates one block and returns its captured console output. The
// output is returned even on failure so diagnostics can show what the block
// printed before dying.
func (s *Session) Run(ctx context.Context, code string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.eval(cctx, code)
	output := s.out.String()
	s.out.Reset()

	if err != nil {
		switch {
		case cctx.Err() == context.DeadlineExceeded:
			return output, fmt.Errorf("timed out after %s", s.timeout)
		case ctx.Err() != nil:
			return output, ctx.Err()
		}
		return output, err
	}
	return output, nil
}

// eval recovers interpreter panics; interpreted code must never take the
// build process down.
func (s *Session) eval(ctx context.Context, code string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	_, err = s.interp.EvalWithContext(ctx, code)
	return err
}

// Drain returns the figures and tables registered since the last call, plus
// the first helper error recorded in that window.
func (s *Session) Drain() ([]Figure, []Table, error) {
	return s.reg.drain()
}

// registry collects helper calls made by interpreted code. The helper
// signatures cannot return errors to the weaver directly, so problems are
// recorded and surfaced after the block finishes.
type registry struct {
	dir   string
	rel   string
	ext   string
	names map[string]bool

	figures []Figure
	tables  []Table
	errs    []error
}

// Figure registers a figure and returns the absolute path the block must
// write. Exposed to interpreted code as weave.Figure.
func (r *registry) Figure(name, caption string) string {
	if strings.TrimSpace(name) == "" {
		r.errs = append(r.errs, fmt.Errorf("weave.Figure needs a non-empty name"))
		return filepath.Join(r.dir, "unnamed."+r.ext)
	}
	id := slug.Make(name)
	if r.names[id] {
		r.errs = append(r.errs, fmt.Errorf("duplicate figure name %q", name))
	}
	r.names[id] = true

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		r.errs = append(r.errs, fmt.Errorf("create figure directory: %w", err))
	}

	file := id + "." + r.ext
	fig := Figure{
		Name:    id,
		Caption: caption,
		Path:    filepath.Join(r.dir, file),
		Rel:     path.Join(r.rel, file),
	}
	r.figures = append(r.figures, fig)
	return fig.Path
}

// Table registers a table for rendering after the block. Exposed to
// interpreted code as weave.Table.
func (r *registry) Table(header []string, rows [][]string) {
	r.tables = append(r.tables, Table{Header: header, Rows: rows})
}

func (r *registry) drain() ([]Figure, []Table, error) {
	figs, tabs := r.figures, r.tables
	r.figures, r.tables = nil, nil

	var err error
	if len(r.errs) > 0 {
		err = r.errs[0]
		r.errs = nil
	}
	return figs, tabs, err
}
