package weave

import (
	"fmt"
	"strings"
)

// Attrs are the parsed attributes of an executable block's info string.
//
// The info string names the language first, then attributes:
//
//	``` go run name=sum-example
//
// run executes the block. hide executes but suppresses the source echo.
// silent executes but suppresses both source and output (setup blocks).
// name labels the block for diagnostics and figure paths.
type Attrs struct {
	Name   string
	Hide   bool
	Silent bool
}

// ParseInfo parses a fence info string. ok is false for plain listings
// (any language without an execution attribute); those fences pass through
// the weaver untouched. A `go` fence that asks for execution but carries an
// unknown attribute is an error rather than a silent listing.
func ParseInfo(info string) (Attrs, bool, error) {
	tokens := strings.Fields(info)
	if len(tokens) == 0 || tokens[0] != "go" {
		return Attrs{}, false, nil
	}

	var attrs Attrs
	var execute bool
	var unknown []string
	for _, tok := range tokens[1:] {
		switch {
		case tok == "run":
			execute = true
		case tok == "hide":
			attrs.Hide = true
			execute = true
		case tok == "silent":
			attrs.Silent = true
			execute = true
		case strings.HasPrefix(tok, "name="):
			attrs.Name = strings.TrimPrefix(tok, "name=")
		default:
			unknown = append(unknown, tok)
		}
	}

	if !execute {
		if attrs.Name != "" {
			return Attrs{}, true, fmt.Errorf("block attribute name=%s requires run, hide, or silent", attrs.Name)
		}
		// Plain `go` listing, possibly with foreign attributes.
		return Attrs{}, false, nil
	}
	if len(unknown) > 0 {
		return Attrs{}, true, fmt.Errorf("unknown block attribute %q in %q", unknown[0], info)
	}
	if attrs.Name != "" && !validBlockName(attrs.Name) {
		return Attrs{}, true, fmt.Errorf("invalid block name %q (want letters, digits, hyphens)", attrs.Name)
	}
	return attrs, true, nil
}

// IsExecutable reports whether the info string asks for execution,
// well-formed or not. Malformed executable fences still count so they are
// diagnosed instead of silently skipped.
func IsExecutable(info string) bool {
	_, ok, err := ParseInfo(info)
	return ok || err != nil
}

func validBlockName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return name != ""
}
