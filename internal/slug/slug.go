// Package slug derives filesystem- and anchor-safe identifiers from manuscript
// text (book titles, chapter headings, figure names).
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes characters and removes combining marks, so
// "Métaprogrammation" slugs the same as "Metaprogrammation".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Make converts arbitrary text into a lowercase hyphen-separated slug.
// Unicode letters are folded to their unaccented form; anything that is not
// a letter or digit becomes a separator. An input with no usable characters
// yields "untitled".
func Make(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Transform failures only happen on malformed UTF-8; fall back to
		// the raw string and let the filter below drop invalid runes.
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastHyphen := true // suppress leading separators
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "untitled"
	}
	return out
}

// File returns a slug suitable for a generated file name, preserving the
// given extension (which must include its leading dot, e.g. ".png").
func File(name, ext string) string {
	return Make(name) + ext
}
