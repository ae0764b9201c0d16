// Package errors provides a lightweight structured error type (BookBuilderError)
// for category-based classification and exit-code mapping in the CLI.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a BookBuilder error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryChapter    ErrorCategory = "chapter"

	// Manuscript processing errors
	CategoryMacro ErrorCategory = "macro"
	CategoryWeave ErrorCategory = "weave"

	// Build and external tool errors
	CategoryCompile    ErrorCategory = "compile"
	CategoryFileSystem ErrorCategory = "filesystem"

	// Runtime and infrastructure errors
	CategoryServer   ErrorCategory = "server"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// BookBuilderError is a structured error with category, tool exit code, and context
type BookBuilderError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	// ToolExit carries the exit code of a failed external tool invocation
	// (pandoc, the PDF engine). Zero means no tool exit code is attached.
	ToolExit int           `json:"tool_exit,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for BookBuilderError
type ContextFields map[string]any

// Error implements the error interface
func (e *BookBuilderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *BookBuilderError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *BookBuilderError) WithContext(key string, value any) *BookBuilderError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// WithToolExit attaches the exit code of a failed external tool invocation.
func (e *BookBuilderError) WithToolExit(code int) *BookBuilderError {
	e.ToolExit = code
	return e
}

// New creates a new BookBuilderError
func New(category ErrorCategory, severity ErrorSeverity, message string) *BookBuilderError {
	return &BookBuilderError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new BookBuilderError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *BookBuilderError {
	return &BookBuilderError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// AsBookBuilder extracts the BookBuilderError from err's chain, so pipeline
// wrappers (stage errors) never hide the classified cause.
func AsBookBuilder(err error) (*BookBuilderError, bool) {
	var bbe *BookBuilderError
	ok := errors.As(err, &bbe)
	return bbe, ok
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if bbe, ok := AsBookBuilder(err); ok {
		return bbe.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a BookBuilderError
func GetCategory(err error) ErrorCategory {
	if bbe, ok := AsBookBuilder(err); ok {
		return bbe.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error (invalid usage)
func ValidationError(message string) *BookBuilderError {
	return &BookBuilderError{
		Category: CategoryValidation,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// WrapError wraps an existing error with a new BookBuilderError
func WrapError(err error, category ErrorCategory, message string) *BookBuilderError {
	return &BookBuilderError{
		Category: category,
		Severity: SeverityError,
		Message:  message,
		Cause:    err,
	}
}
