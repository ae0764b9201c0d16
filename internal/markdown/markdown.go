// Package markdown provides structural analysis of chapter bodies.
//
// This is an analysis API used by the chapter model, lint, and the CLI; it
// never re-renders Markdown. Rewriting stages work line-oriented on the
// source text instead.
package markdown

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Scan parses a Markdown body (frontmatter already removed) and collects the
// structure the build cares about: headings with crossref labels, fenced
// code blocks with their info strings, and link destinations.
func Scan(body []byte) (*Summary, error) {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(body))

	s := &Summary{}
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *gmast.Heading:
			raw := headingText(node, body)
			clean, label := splitHeadingLabel(raw)
			h := Heading{
				Level: node.Level,
				Text:  clean,
				Label: label,
				Line:  headingLine(node, body),
			}
			s.Headings = append(s.Headings, h)
			if node.Level == 1 && s.Title == "" {
				s.Title = h.Text
			}
		case *gmast.FencedCodeBlock:
			info := ""
			line := 0
			if node.Info != nil {
				info = string(node.Info.Segment.Value(body))
				line = lineOf(body, node.Info.Segment.Start)
			} else if node.Lines().Len() > 0 {
				line = lineOf(body, node.Lines().At(0).Start) - 1
			}
			s.Fences = append(s.Fences, Fence{Info: info, Line: line})
		case *gmast.Image:
			s.Images = append(s.Images, Image{Destination: string(node.Destination)})
		case *gmast.Link:
			// Goldmark resolves reference-style links to a Link node with a Destination.
			s.Links = append(s.Links, Link{Kind: LinkKindInline, Destination: string(node.Destination)})
		case *gmast.AutoLink:
			s.Links = append(s.Links, Link{Kind: LinkKindAuto, Destination: string(node.URL(body))})
		}
		return gmast.WalkContinue, nil
	})

	return s, nil
}

// headingText flattens the inline text of a heading node.
func headingText(n gmast.Node, body []byte) string {
	var b strings.Builder
	_ = gmast.Walk(n, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *gmast.Text:
			b.Write(t.Segment.Value(body))
		case *gmast.String:
			b.Write(t.Value)
		}
		return gmast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// headingLabelRe matches a trailing pandoc attribute block carrying an
// identifier, e.g. "Intro {#sec:intro}".
var headingLabelRe = regexp.MustCompile(`^(.*?)\s*\{#([^}\s]+)[^}]*\}\s*$`)

func splitHeadingLabel(raw string) (text, label string) {
	if m := headingLabelRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1]), m[2]
	}
	return raw, ""
}

func headingLine(n *gmast.Heading, body []byte) int {
	if n.Lines().Len() == 0 {
		return 0
	}
	return lineOf(body, n.Lines().At(0).Start)
}

func lineOf(body []byte, offset int) int {
	if offset > len(body) {
		offset = len(body)
	}
	return 1 + bytes.Count(body[:offset], []byte("\n"))
}
