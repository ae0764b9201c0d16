package config

import "strings"

// Format identifies one of the supported output renditions.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatEPUB Format = "epub"
	FormatDOCX Format = "docx"
	// FormatHTML is an internal rendition used by preview and rendered lint;
	// it is never part of the default build set.
	FormatHTML Format = "html"
)

// DefaultFormats are built when the config and CLI request nothing narrower.
var DefaultFormats = []Format{FormatPDF, FormatEPUB, FormatDOCX}

// NormalizeFormat canonicalizes user input, returning empty string if unknown.
func NormalizeFormat(raw string) Format {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(FormatPDF):
		return FormatPDF
	case string(FormatEPUB):
		return FormatEPUB
	case string(FormatDOCX):
		return FormatDOCX
	case string(FormatHTML):
		return FormatHTML
	default:
		return ""
	}
}

// Symbol returns the macro symbol defined for this format during chapter
// normalization. Exactly one format symbol is defined per build; there is no
// implicit default branch.
func (f Format) Symbol() string {
	return strings.ToUpper(string(f))
}

// Ext returns the artifact file extension including the leading dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// ParseFormats normalizes a list of format names, rejecting unknown entries
// and dropping duplicates while preserving first-mention order.
func ParseFormats(raw []string) ([]Format, []string) {
	var (
		out  []Format
		bad  []string
		seen = map[Format]bool{}
	)
	for _, r := range raw {
		f := NormalizeFormat(r)
		if f == "" {
			bad = append(bad, r)
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out, bad
}
