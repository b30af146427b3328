// Package highlight maps user selections to offsets into an article's
// content text and re-applies stored highlights as inline markup.
//
// Offsets address the text projection of the canonical content: every text
// node of the content, parsed as a body fragment, concatenated in document
// order. They count UTF-16 code units, the unit of DOM Range offsets.
package highlight

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parseContent parses content as the children of a detached body element.
func parseContent(content string) (*html.Node, error) {
	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), root)
	if err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

// textNodes returns the text nodes under n in document order.
func textNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// byteIndex returns the byte offset in s of the given UTF-16 offset. An
// offset inside a surrogate pair rounds down to the start of the rune;
// offsets past the end return len(s).
func byteIndex(s string, units int) int {
	if units <= 0 {
		return 0
	}
	n := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		w := 1
		if r >= 0x10000 {
			w = 2
		}
		if n+w > units {
			return i
		}
		n += w
		i += size
		if n == units {
			return i
		}
	}
	return len(s)
}

// Text returns the text projection of content.
func Text(content string) (string, error) {
	root, err := parseContent(content)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, n := range textNodes(root) {
		b.WriteString(n.Data)
	}
	return b.String(), nil
}

// TextLength returns the length of content's text projection in UTF-16
// code units. Highlight offsets must not exceed it.
func TextLength(content string) (int, error) {
	text, err := Text(content)
	if err != nil {
		return 0, err
	}
	return utf16Len(text), nil
}

// Substring returns the text between the UTF-16 offsets [start, end) of
// content's text projection.
func Substring(content string, start, end int) (string, error) {
	text, err := Text(content)
	if err != nil {
		return "", err
	}
	if start < 0 || end < start || end > utf16Len(text) {
		return "", fmt.Errorf("range [%d, %d) out of bounds", start, end)
	}
	return text[byteIndex(text, start):byteIndex(text, end)], nil
}
