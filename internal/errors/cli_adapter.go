package errors

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
//
// A compile error carrying the compiler's own exit code mirrors it verbatim,
// so callers see the same status pandoc (or the PDF engine) reported. The
// classified error is looked up through the whole chain, so a stage wrapper
// never changes the exit code.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	if bbe, ok := AsBookBuilder(err); ok {
		return a.exitCodeFromBookBuilder(bbe)
	}

	return 1
}

// exitCodeFromBookBuilder maps BookBuilderError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromBookBuilder(err *BookBuilderError) int {
	// ToolExit <= 0 means the compiler never ran or reported nothing usable;
	// those fall through to the build-error code.
	if err.Category == CategoryCompile && err.ToolExit > 0 {
		return err.ToolExit
	}
	switch err.Category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryChapter, CategoryMacro:
		return 3 // Manuscript error
	case CategoryWeave:
		return 4 // Executable block error
	case CategoryCompile, CategoryFileSystem:
		return 11 // Build error
	case CategoryServer:
		return 12 // Runtime error
	case CategoryInternal:
		return 10 // Internal error
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if bbe, ok := AsBookBuilder(err); ok {
		return a.formatBookBuilder(bbe)
	}

	return fmt.Sprintf("Error: %v", err)
}

// formatBookBuilder formats a BookBuilderError for display. Context fields
// carry the specifics (paths, field names, reasons) and are always appended.
func (a *CLIErrorAdapter) formatBookBuilder(err *BookBuilderError) string {
	var msg string
	switch {
	case a.verbose:
		msg = err.Error()
	case err.Category == CategoryConfig, err.Category == CategoryValidation, err.Category == CategoryChapter:
		msg = err.Message
	case err.Cause != nil:
		msg = fmt.Sprintf("%s: %s: %v", err.Category, err.Message, err.Cause)
	default:
		msg = fmt.Sprintf("%s: %s", err.Category, err.Message)
	}

	if ctx := formatContext(err.Context); ctx != "" {
		msg += " (" + ctx + ")"
	}
	return msg
}

// formatContext renders context fields as "key: value" pairs in stable order.
func formatContext(fields ContextFields) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, fields[k]))
	}
	return strings.Join(parts, ", ")
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	exitCode := a.ExitCodeFor(err)
	message := a.FormatError(err)

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(os.Stderr, "%s\n", message)
	os.Exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if bbe, ok := AsBookBuilder(err); ok {
		return bbe.Category == CategoryInternal ||
			bbe.Category == CategoryServer ||
			bbe.Severity == SeverityFatal
	}

	return true
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	if bbe, ok := AsBookBuilder(err); ok {
		level := a.slogLevelFromSeverity(bbe.Severity)
		attrs := []slog.Attr{
			slog.String("category", string(bbe.Category)),
		}
		if bbe.ToolExit != 0 {
			attrs = append(attrs, slog.Int("tool_exit", bbe.ToolExit))
		}

		a.logger.LogAttrs(nil, level, bbe.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}

// slogLevelFromSeverity converts BookBuilderError severity to slog level.
func (a *CLIErrorAdapter) slogLevelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityFatal:
		return slog.LevelError
	default:
		return slog.LevelError
	}
}
