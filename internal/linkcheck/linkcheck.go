// Package linkcheck verifies internal anchors in a rendered HTML document.
//
// pandoc emits fragment links for every crossref and table-of-contents
// entry; a reference that survives to the HTML with no matching element id
// means a broken cross-reference in every other target too. The rendered
// lint mode builds the html target and runs this check over it.
package linkcheck

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// Ref is one internal fragment reference found in the document.
type Ref struct {
	Anchor string // fragment without the leading #
	Text   string // link text, for diagnostics
}

// Result is the outcome of checking one document.
type Result struct {
	Anchors int // distinct element ids
	Refs    int // internal fragment references
	Broken  []Ref
}

// Ok reports whether every internal reference resolved.
func (r *Result) Ok() bool { return len(r.Broken) == 0 }

// File checks the HTML document at path.
func File(path string) (*Result, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open rendered document: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Reader(f)
}

// Reader checks an HTML document from r.
func Reader(r io.Reader) (*Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	ids := make(map[string]bool)
	var refs []Ref

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id := getAttr(n, "id"); id != "" {
				ids[id] = true
			}
			// Legacy anchors still appear in some pandoc templates.
			if n.Data == "a" {
				if name := getAttr(n, "name"); name != "" {
					ids[name] = true
				}
				if href := getAttr(n, "href"); strings.HasPrefix(href, "#") && len(href) > 1 {
					refs = append(refs, Ref{Anchor: unescape(href[1:]), Text: nodeText(n)})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	result := &Result{Anchors: len(ids), Refs: len(refs)}
	for _, ref := range refs {
		if !ids[ref.Anchor] {
			result.Broken = append(result.Broken, ref)
		}
	}
	return result, nil
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return strings.TrimSpace(b.String())
}

func unescape(fragment string) string {
	if u, err := url.PathUnescape(fragment); err == nil {
		return u
	}
	return fragment
}
