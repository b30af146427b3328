package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Result is the output of extraction for one URL.
type Result struct {
	Title       string
	Content     string
	Description string
	Strategy    Strategy
}

var contentPolicy = newContentPolicy()

func newContentPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// DocumentExtractor turns fetched HTML into readable article fields.
type DocumentExtractor interface {
	ExtractDocument(body []byte, pageURL *url.URL) (*Result, error)
}

// ReadabilityExtractor runs go-readability and sanitizes its output.
type ReadabilityExtractor struct{}

// ExtractDocument parses body, isolates the main content and returns the
// title, sanitized HTML and excerpt. Pages with no readable text fail
// with ErrExtractionFailed.
func (ReadabilityExtractor) ExtractDocument(body []byte, pageURL *url.URL) (*Result, error) {
	art, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	content := strings.TrimSpace(contentPolicy.Sanitize(art.Content))
	if content == "" || strings.TrimSpace(art.TextContent) == "" {
		return nil, fmt.Errorf("%w: no readable content at %s", ErrExtractionFailed, pageURL)
	}

	res := &Result{
		Title:       strings.TrimSpace(art.Title),
		Content:     content,
		Description: strings.TrimSpace(art.Excerpt),
		Strategy:    Strategy{Kind: KindDocument},
	}
	if res.Title == "" || res.Description == "" {
		fillFromMeta(res, body)
	}
	return res, nil
}

// fillFromMeta fills missing title and description from the page head.
func fillFromMeta(res *Result, body []byte) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return
	}
	if res.Title == "" {
		res.Title = firstNonEmpty(
			metaContent(doc, `meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("head title").First().Text()),
		)
	}
	if res.Description == "" {
		res.Description = firstNonEmpty(
			metaContent(doc, `meta[name="description"]`),
			metaContent(doc, `meta[property="og:description"]`),
		)
	}
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
