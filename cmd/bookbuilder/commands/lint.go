package commands

import (
	"context"
	"fmt"
	"os"

	"git.home.luguber.info/inful/bookbuilder/internal/compile"
	"git.home.luguber.info/inful/bookbuilder/internal/config"
	bberrors "git.home.luguber.info/inful/bookbuilder/internal/errors"
	"git.home.luguber.info/inful/bookbuilder/internal/linkcheck"
	"git.home.luguber.info/inful/bookbuilder/internal/lint"
	"git.home.luguber.info/inful/bookbuilder/internal/pipeline"
)

// LintCmd implements the 'lint' command.
type LintCmd struct {
	Format   string `short:"f" default:"text" enum:"text,json" help:"Output format (text or json)"`
	Rendered bool   `help:"Also build the html edition and verify every internal anchor resolves"`
}

func (l *LintCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	book, err := lint.LoadBook(cfg)
	if err != nil {
		return err
	}
	result := lint.New().Lint(book)

	if l.Rendered {
		issues, err := renderedIssues(cfg)
		if err != nil {
			return err
		}
		result.Issues = append(result.Issues, issues...)
	}

	if err := lint.NewFormatter(l.Format).Format(os.Stdout, result); err != nil {
		return err
	}
	if result.HasErrors() {
		return bberrors.ValidationFailed("manuscript", fmt.Sprintf("%d lint error(s)", result.ErrorCount()))
	}
	return nil
}

// renderedIssues builds the html rendition and checks that every internal
// link in it resolves to an anchor. The build is a plain check run: nothing
// is recorded to history and no event is published.
func renderedIssues(cfg *config.Config) ([]lint.Issue, error) {
	builder := &pipeline.Builder{Config: cfg, Compiler: compile.New()}
	report, err := builder.Build(context.Background(), config.FormatHTML)
	if err != nil {
		return nil, err
	}

	res, err := linkcheck.File(report.Artifact)
	if err != nil {
		return nil, err
	}

	issues := make([]lint.Issue, 0, len(res.Broken))
	for _, ref := range res.Broken {
		issues = append(issues, lint.Issue{
			Severity: lint.SeverityError,
			Rule:     "rendered-anchor",
			Message:  fmt.Sprintf("internal link %q resolves to no anchor #%s in the rendered document", ref.Text, ref.Anchor),
		})
	}
	return issues, nil
}
