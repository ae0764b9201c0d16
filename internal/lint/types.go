package lint

// Severity indicates the importance level of a lint issue.
type Severity int

const (
	// SeverityInfo indicates informational findings.
	SeverityInfo Severity = iota
	// SeverityWarning indicates issues worth fixing that do not break builds.
	SeverityWarning
	// SeverityError indicates issues that produce broken documents
	// (dangling references, missing images).
	SeverityError
)

// String returns the human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Issue is a single problem found in the manuscript.
type Issue struct {
	Chapter  string   `json:"chapter"` // chapter path as configured
	Line     int      `json:"line"`    // 1-based source line, 0 for chapter-level issues
	Severity Severity `json:"-"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
}

// Result contains all issues found during a lint run.
type Result struct {
	Issues        []Issue `json:"issues"`
	ChaptersTotal int     `json:"chapters_total"`
}

// HasErrors returns true if any error-level issues exist.
func (r *Result) HasErrors() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error-level issues.
func (r *Result) ErrorCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			count++
		}
	}
	return count
}

// WarningCount returns the number of warning-level issues.
func (r *Result) WarningCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityWarning {
			count++
		}
	}
	return count
}

// Rule checks one aspect of the manuscript. Rules see the whole book, since
// crossref labels and references routinely span chapters.
type Rule interface {
	// Name returns the unique identifier for this rule.
	Name() string

	// Check inspects the book and returns any issues found.
	Check(book *Book) []Issue
}
