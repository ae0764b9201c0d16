// Package frontmatter splits YAML frontmatter from chapter Markdown.
//
// Chapters may open with a `---` delimited YAML block carrying metadata
// (title, id). The normalize stage absorbs that block: its fields feed the
// chapter model and the block itself is stripped so pandoc never sees
// mid-document frontmatter.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the chapter started with a YAML
// frontmatter delimiter but never closed it.
var ErrMissingClosingDelimiter = errors.New("yaml frontmatter start delimiter found but closing delimiter is missing")

// Style captures the newline shape needed for stable rewriting. YAML
// formatting inside the block is not preserved.
type Style struct {
	Newline            string
	HasTrailingNewline bool
}

// Fields are the chapter metadata keys the build understands. Unknown keys
// are tolerated and ignored.
type Fields struct {
	Title string `yaml:"title"`
	ID    string `yaml:"id"`
}

// Split separates YAML frontmatter (`---` delimited) from the Markdown body.
//
// If the chapter does not start with a frontmatter delimiter, had is false
// and body is the full input.
func Split(content []byte) (meta []byte, body []byte, had bool, style Style, err error) {
	style = detectStyle(content)

	nl := style.Newline
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, style, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		// Empty frontmatter block.
		return []byte{}, content[start+len(open):], true, style, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closeSeq)
	if idx < 0 {
		return nil, nil, false, style, ErrMissingClosingDelimiter
	}

	metaEnd := start + idx + len(nl)
	bodyStart := start + idx + len(closeSeq)
	return content[start:metaEnd], content[bodyStart:], true, style, nil
}

// Join reassembles a chapter from raw frontmatter and body.
//
// If had is false, Join returns body as-is; otherwise it re-emits the block
// with `---` delimiters in the captured newline style.
func Join(meta []byte, body []byte, had bool, style Style) []byte {
	if !had {
		return body
	}

	nl := style.Newline
	if nl == "" {
		nl = "\n"
	}

	delim := []byte("---" + nl)
	out := make([]byte, 0, 2*len(delim)+len(meta)+len(body))
	out = append(out, delim...)
	out = append(out, meta...)
	out = append(out, delim...)
	out = append(out, body...)
	return out
}

// ParseFields decodes the chapter metadata keys from raw frontmatter
// (without delimiters).
func ParseFields(meta []byte) (Fields, error) {
	var f Fields
	if len(meta) == 0 {
		return f, nil
	}
	if err := yaml.Unmarshal(meta, &f); err != nil {
		return Fields{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	return f, nil
}

// ParseYAML parses raw frontmatter into a generic map, for callers that need
// keys beyond Fields.
func ParseYAML(meta []byte) (map[string]any, error) {
	if len(meta) == 0 {
		return map[string]any{}, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal(meta, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func detectStyle(content []byte) Style {
	newline := "\n"
	for i := 0; i+1 < len(content); i++ {
		if content[i] == '\r' && content[i+1] == '\n' {
			newline = "\r\n"
			break
		}
		if content[i] == '\n' {
			break
		}
	}

	return Style{
		Newline:            newline,
		HasTrailingNewline: len(content) > 0 && content[len(content)-1] == '\n',
	}
}
