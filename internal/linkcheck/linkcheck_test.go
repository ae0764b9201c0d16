package linkcheck

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const renderedDoc = `<!DOCTYPE html>
<html>
<body>
<nav id="TOC">
<a href="#introduction">Introduction</a>
<a href="#sec:data">Data</a>
</nav>
<h1 id="introduction">Introduction</h1>
<p>See <a href="#fig:arch">the architecture diagram</a> and <a href="#sec:data">chapter two</a>.</p>
<div id="fig:arch"><img src="figures/arch.png" alt="arch"></div>
<h1 id="sec:data">Data</h1>
<p><a href="https://example.com/external">external</a> and <a href="#missing-anchor">broken</a>.</p>
</body>
</html>`

func TestReaderResolvesAnchors(t *testing.T) {
	result, err := Reader(strings.NewReader(renderedDoc))
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}

	// TOC, fig, sec:data twice, missing-anchor; the external link is not a
	// fragment reference.
	if result.Refs != 5 {
		t.Errorf("Refs = %d, want 5", result.Refs)
	}
	if result.Anchors != 4 {
		t.Errorf("Anchors = %d, want 4", result.Anchors)
	}
	if len(result.Broken) != 1 {
		t.Fatalf("Broken = %v, want exactly one", result.Broken)
	}
	if result.Broken[0].Anchor != "missing-anchor" {
		t.Errorf("broken anchor = %q", result.Broken[0].Anchor)
	}
	if result.Broken[0].Text != "broken" {
		t.Errorf("broken text = %q", result.Broken[0].Text)
	}
	if result.Ok() {
		t.Error("Ok must be false with broken refs")
	}
}

func TestCleanDocumentOk(t *testing.T) {
	doc := `<html><body><h1 id="one">One</h1><a href="#one">up</a></body></html>`
	result, err := Reader(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Ok() {
		t.Errorf("unexpected broken refs: %v", result.Broken)
	}
}

func TestEscapedFragmentsResolve(t *testing.T) {
	doc := `<html><body><h1 id="sec:caf&#233;">Caf&#233;</h1><a href="#sec:caf%C3%A9">ref</a></body></html>`
	result, err := Reader(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Ok() {
		t.Errorf("escaped fragment did not resolve: %v", result.Broken)
	}
}

func TestLegacyNameAnchors(t *testing.T) {
	doc := `<html><body><a name="old-style"></a><a href="#old-style">ref</a></body></html>`
	result, err := Reader(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Ok() {
		t.Errorf("name anchor not honored: %v", result.Broken)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	if err := os.WriteFile(path, []byte(renderedDoc), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if len(result.Broken) != 1 {
		t.Errorf("Broken = %v", result.Broken)
	}

	if _, err := File(filepath.Join(t.TempDir(), "absent.html")); err == nil {
		t.Error("expected error for missing file")
	}
}
