package highlight

import (
	"errors"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ContentClass marks the element that holds rendered article content.
const ContentClass = "article-content"

var (
	ErrOutsideContent   = errors.New("selection is outside the article content")
	ErrEmptySelection   = errors.New("selection is empty")
	ErrBoundaryNotFound = errors.New("selection boundary not found in article content")
	ErrTextNotFound     = errors.New("text not found in article content")
)

// Boundary is one end of a selection, as in a DOM Range. For a text node
// Offset counts UTF-16 code units into the node's text; for an element it
// is a child index.
type Boundary struct {
	Node   *html.Node
	Offset int
}

// Selection is a user's selection in a rendered article page.
type Selection struct {
	Start Boundary
	End   Boundary
}

// Collapsed reports whether the selection is empty.
func (s Selection) Collapsed() bool {
	return s.Start == s.End
}

// Captured is a selection resolved to content offsets, not yet persisted.
type Captured struct {
	Start int
	End   int
	Text  string
}

// ContentRegion returns the first element with ContentClass in doc.
func ContentRegion(doc *html.Node) (*html.Node, error) {
	sel := goquery.NewDocumentFromNode(doc).Find("." + ContentClass).First()
	if sel.Length() == 0 {
		return nil, ErrOutsideContent
	}
	return sel.Get(0), nil
}

func contains(ancestor, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

// Capture resolves sel against the rendered page doc into offsets of the
// article content text. The selection is trimmed of surrounding
// whitespace and the offsets move inward accordingly.
func Capture(doc *html.Node, sel Selection) (Captured, error) {
	if sel.Start.Node == nil || sel.End.Node == nil {
		return Captured{}, ErrBoundaryNotFound
	}
	if sel.Collapsed() {
		return Captured{}, ErrEmptySelection
	}

	region, err := ContentRegion(doc)
	if err != nil {
		return Captured{}, err
	}
	if !contains(region, sel.Start.Node) || !contains(region, sel.End.Node) {
		return Captured{}, ErrOutsideContent
	}

	w := &walker{sel: sel, start: -1, end: -1}
	w.visit(region)
	if w.start < 0 || w.end < 0 || w.end < w.start {
		return Captured{}, ErrBoundaryNotFound
	}

	text := w.text.String()
	selected := text[byteIndex(text, w.start):byteIndex(text, w.end)]
	trimmed := strings.TrimSpace(selected)
	if trimmed == "" {
		return Captured{}, ErrEmptySelection
	}

	lead := utf16Len(selected[:len(selected)-len(strings.TrimLeftFunc(selected, unicode.IsSpace))])
	trail := utf16Len(selected[len(strings.TrimRightFunc(selected, unicode.IsSpace)):])
	return Captured{
		Start: w.start + lead,
		End:   w.end - trail,
		Text:  trimmed,
	}, nil
}

// walker accumulates the running text offset in document order and
// records the selection boundaries as it passes them.
type walker struct {
	sel     Selection
	running int
	start   int
	end     int
	text    strings.Builder
	done    bool
}

func (w *walker) visit(n *html.Node) {
	if w.done {
		return
	}
	if n.Type == html.TextNode {
		length := utf16Len(n.Data)
		if n == w.sel.Start.Node {
			w.start = w.running + clamp(w.sel.Start.Offset, 0, length)
		}
		w.text.WriteString(n.Data)
		if n == w.sel.End.Node {
			w.end = w.running + clamp(w.sel.End.Offset, 0, length)
			w.done = true
			return
		}
		w.running += length
		return
	}

	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count++
	}
	i := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.elementBoundary(n, i, count)
		if w.done {
			return
		}
		w.visit(c)
		if w.done {
			return
		}
		i++
	}
	w.elementBoundary(n, i, count)
}

// elementBoundary records boundaries that sit before child i of n, or
// after its last child when i == count.
func (w *walker) elementBoundary(n *html.Node, i, count int) {
	matches := func(b Boundary) bool {
		if b.Node != n {
			return false
		}
		return b.Offset == i || (i == count && b.Offset > count)
	}
	if w.start < 0 && matches(w.sel.Start) {
		w.start = w.running
	}
	if matches(w.sel.End) {
		w.end = w.running
		w.done = true
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FindText builds a Selection covering the occurrence-th (0-based)
// occurrence of quote in the article content of doc.
func FindText(doc *html.Node, quote string, occurrence int) (Selection, error) {
	if strings.TrimSpace(quote) == "" {
		return Selection{}, ErrEmptySelection
	}
	region, err := ContentRegion(doc)
	if err != nil {
		return Selection{}, err
	}

	nodes := textNodes(region)
	starts := make([]int, len(nodes))
	var b strings.Builder
	for i, n := range nodes {
		starts[i] = b.Len()
		b.WriteString(n.Data)
	}
	text := b.String()

	pos, from := -1, 0
	for k := 0; k <= occurrence; k++ {
		idx := strings.Index(text[from:], quote)
		if idx < 0 {
			return Selection{}, ErrTextNotFound
		}
		pos = from + idx
		from = pos + len(quote)
	}
	end := pos + len(quote)

	var sel Selection
	for i, n := range nodes {
		nodeStart, nodeEnd := starts[i], starts[i]+len(n.Data)
		if sel.Start.Node == nil && pos >= nodeStart && pos < nodeEnd {
			sel.Start = Boundary{Node: n, Offset: utf16Len(n.Data[:pos-nodeStart])}
		}
		if end > nodeStart && end <= nodeEnd {
			sel.End = Boundary{Node: n, Offset: utf16Len(n.Data[:end-nodeStart])}
			break
		}
	}
	if sel.Start.Node == nil || sel.End.Node == nil {
		return Selection{}, ErrTextNotFound
	}
	return sel, nil
}
