package highlight

import (
	"sort"
	"strings"

	"readmark/internal/model"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// interval is a maximal run of overlapping highlights.
type interval struct {
	start, end int
	members    []model.Highlight
}

func (iv interval) attrs() []html.Attribute {
	ids := make([]string, len(iv.members))
	var notes []string
	for i, h := range iv.members {
		ids[i] = h.ID.String()
		if n := strings.TrimSpace(h.Note); n != "" {
			notes = append(notes, n)
		}
	}
	color := iv.members[0].Color
	if color == "" {
		color = model.ColorYellow
	}
	attrs := []html.Attribute{
		{Key: "class", Val: "highlight"},
		{Key: "data-color", Val: string(color)},
		{Key: "data-highlight-ids", Val: strings.Join(ids, " ")},
	}
	if len(notes) > 0 {
		attrs = append(attrs, html.Attribute{Key: "title", Val: strings.Join(notes, "\n")})
	}
	return attrs
}

// coverage sorts valid highlights and merges overlapping ones. Highlights
// that only share a boundary stay separate.
func coverage(highlights []model.Highlight, length int) []interval {
	valid := make([]model.Highlight, 0, len(highlights))
	for _, h := range highlights {
		if h.StartOffset >= 0 && h.StartOffset < h.EndOffset && h.EndOffset <= length {
			valid = append(valid, h)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if a.StartOffset != b.StartOffset {
			return a.StartOffset < b.StartOffset
		}
		if a.EndOffset != b.EndOffset {
			return a.EndOffset < b.EndOffset
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	var out []interval
	for _, h := range valid {
		if n := len(out); n > 0 && h.StartOffset < out[n-1].end {
			last := &out[n-1]
			last.end = max(last.end, h.EndOffset)
			last.members = append(last.members, h)
			continue
		}
		out = append(out, interval{start: h.StartOffset, end: h.EndOffset, members: []model.Highlight{h}})
	}
	return out
}

// unwrappable lists parents whose text cannot be wrapped in a span
// without the parser moving it elsewhere or reading it back as raw text.
var unwrappable = map[atom.Atom]bool{
	atom.Table: true, atom.Tbody: true, atom.Thead: true, atom.Tfoot: true,
	atom.Tr: true, atom.Colgroup: true, atom.Select: true, atom.Optgroup: true,
	atom.Option: true, atom.Textarea: true, atom.Title: true,
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Iframe: true,
	atom.Xmp: true, atom.Noembed: true, atom.Noframes: true, atom.Plaintext: true,
}

// wrappable reports whether text node n may be split into spans. Text in
// SVG or MathML is left alone since a span there breaks out of the
// foreign element.
func wrappable(n *html.Node) bool {
	p := n.Parent
	return p != nil && p.Namespace == "" && !unwrappable[p.DataAtom]
}

// Render returns content with every valid highlight wrapped in
// <span class="highlight"> elements. Overlapping highlights are merged
// into one coverage interval; an interval crossing element boundaries is
// split into one span per text run so the markup stays well formed.
// Highlights outside the content text are skipped. Content without
// applicable highlights is returned unchanged.
func Render(content string, highlights []model.Highlight) (string, error) {
	if len(highlights) == 0 {
		return content, nil
	}
	root, err := parseContent(content)
	if err != nil {
		return "", err
	}
	nodes := textNodes(root)
	length := 0
	for _, n := range nodes {
		length += utf16Len(n.Data)
	}

	intervals := coverage(highlights, length)
	if len(intervals) == 0 {
		return content, nil
	}

	pos, next := 0, 0
	for _, n := range nodes {
		nodeLen := utf16Len(n.Data)
		nodeStart, nodeEnd := pos, pos+nodeLen
		pos = nodeEnd
		if nodeLen == 0 {
			continue
		}

		for next < len(intervals) && intervals[next].end <= nodeStart {
			next++
		}
		if next == len(intervals) {
			break
		}
		if intervals[next].start >= nodeEnd || !wrappable(n) {
			continue
		}
		splitText(n, nodeStart, nodeEnd, intervals[next:])
	}

	var b strings.Builder
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

// splitText replaces text node n, covering [nodeStart, nodeEnd), with
// plain and highlighted pieces for the intervals that intersect it.
func splitText(n *html.Node, nodeStart, nodeEnd int, intervals []interval) {
	parent := n.Parent
	cursor := nodeStart
	piece := func(from, to int) string {
		return n.Data[byteIndex(n.Data, from-nodeStart):byteIndex(n.Data, to-nodeStart)]
	}

	for _, iv := range intervals {
		if iv.start >= nodeEnd {
			break
		}
		segStart, segEnd := max(iv.start, nodeStart), min(iv.end, nodeEnd)
		if segStart > cursor {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: piece(cursor, segStart)}, n)
		}
		span := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span, Attr: iv.attrs()}
		span.AppendChild(&html.Node{Type: html.TextNode, Data: piece(segStart, segEnd)})
		parent.InsertBefore(span, n)
		cursor = segEnd
	}
	if cursor < nodeEnd {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: piece(cursor, nodeEnd)}, n)
	}
	parent.RemoveChild(n)
}
