package markdown

// Summary is the structural digest of one chapter body.
type Summary struct {
	// Title is the text of the first level-1 heading, empty when absent.
	Title    string
	Headings []Heading
	Fences   []Fence
	Images   []Image
	Links    []Link
}

// Heading is a single heading with its pandoc crossref label, if any.
type Heading struct {
	Level int
	Text  string
	// Label is the attribute identifier ("sec:intro" in "{#sec:intro}").
	Label string
	Line  int
}

// Fence is a fenced code block; Info is the info string verbatim.
type Fence struct {
	Info string
	Line int
}

// Image is an inline image reference.
type Image struct {
	Destination string
}

type LinkKind string

const (
	LinkKindInline LinkKind = "inline"
	LinkKindAuto   LinkKind = "auto"
)

type Link struct {
	Kind        LinkKind
	Destination string
}
