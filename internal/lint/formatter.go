package lint

import (
	"encoding/json"
	"fmt"
	"io"
)

// Formatter renders a lint result for output.
type Formatter interface {
	Format(w io.Writer, result *Result) error
}

// NewFormatter returns the formatter for the requested output format.
// Unknown names fall back to text.
func NewFormatter(format string) Formatter {
	if format == "json" {
		return &JSONFormatter{}
	}
	return &TextFormatter{}
}

// TextFormatter renders results as compiler-style diagnostics, one line per
// issue: chapter:line: SEVERITY rule: message.
type TextFormatter struct{}

func (f *TextFormatter) Format(w io.Writer, result *Result) error {
	for _, issue := range result.Issues {
		pos := issue.Chapter
		if issue.Line > 0 {
			pos = fmt.Sprintf("%s:%d", issue.Chapter, issue.Line)
		}
		if _, err := fmt.Fprintf(w, "%s: %s %s: %s\n", pos, issue.Severity, issue.Rule, issue.Message); err != nil {
			return err
		}
	}

	if len(result.Issues) > 0 {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d chapters checked: %d errors, %d warnings\n",
		result.ChaptersTotal, result.ErrorCount(), result.WarningCount())
	return err
}

// JSONFormatter renders the result as a single JSON document.
type JSONFormatter struct{}

// jsonIssue mirrors Issue with the severity spelled out.
type jsonIssue struct {
	Issue
	Severity string `json:"severity"`
}

func (f *JSONFormatter) Format(w io.Writer, result *Result) error {
	out := struct {
		Issues        []jsonIssue `json:"issues"`
		ChaptersTotal int         `json:"chapters_total"`
		Errors        int         `json:"errors"`
		Warnings      int         `json:"warnings"`
	}{
		Issues:        make([]jsonIssue, 0, len(result.Issues)),
		ChaptersTotal: result.ChaptersTotal,
		Errors:        result.ErrorCount(),
		Warnings:      result.WarningCount(),
	}
	for _, issue := range result.Issues {
		out.Issues = append(out.Issues, jsonIssue{Issue: issue, Severity: issue.Severity.String()})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
