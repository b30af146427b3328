// Package export serializes an article and its annotations as Markdown.
package export

import (
	"fmt"
	"strings"
	"sync"

	"readmark/internal/model"

	"github.com/JohannesKaufmann/dom"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	mdConverter     *converter.Converter
	mdConverterOnce sync.Once
)

// getConverter returns a shared CommonMark converter. Data URI images are
// replaced with their alt text.
func getConverter() *converter.Converter {
	mdConverterOnce.Do(func() {
		mdConverter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		)
		mdConverter.Register.RendererFor("img", converter.TagTypeInline,
			func(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
				src := dom.GetAttributeOr(n, "src", "")
				if !strings.HasPrefix(src, "data:") {
					return converter.RenderTryNext
				}
				if alt := strings.TrimSpace(dom.GetAttributeOr(n, "alt", "")); alt != "" {
					w.WriteString("[Image: " + alt + "]")
				}
				return converter.RenderSuccess
			},
			converter.PriorityEarly,
		)
	})
	return mdConverter
}

// replaceEmbeds turns embedded iframes into plain links, which the
// converter would otherwise drop.
func replaceEmbeds(content string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", err
	}
	embeds := doc.Find("iframe[src]")
	if embeds.Length() == 0 {
		return content, nil
	}
	embeds.Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		title := strings.TrimSpace(s.AttrOr("title", ""))
		if title == "" {
			title = "Embedded video"
		}
		s.ReplaceWithHtml(fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(src), html.EscapeString(title)))
	})
	return doc.Find("body").Html()
}

// ContentMarkdown converts article HTML to CommonMark.
func ContentMarkdown(content string) (string, error) {
	body, err := replaceEmbeds(content)
	if err != nil {
		return "", fmt.Errorf("prepare content: %w", err)
	}
	md, err := getConverter().ConvertString(body)
	if err != nil {
		return "", fmt.Errorf("markdown conversion: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// Quote block-quotes text verbatim, prefixing every line with "> ".
func Quote(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
			continue
		}
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// Markdown renders the article, its highlights and notes as one document.
// Highlight text is taken from the stored copies, never re-extracted.
func Markdown(article *model.Article, highlights []model.Highlight) (string, error) {
	content, err := ContentMarkdown(article.Content)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", article.Title)
	fmt.Fprintf(&b, "Source: <%s>\n", article.URL)
	if len(article.Tags) > 0 {
		fmt.Fprintf(&b, "\nTags: %s\n", strings.Join(article.Tags, ", "))
	}
	if content != "" {
		b.WriteString("\n")
		b.WriteString(content)
		b.WriteString("\n")
	}

	if len(highlights) > 0 {
		b.WriteString("\n## Highlights\n")
		for _, h := range highlights {
			b.WriteString("\n")
			b.WriteString(Quote(h.Text))
			b.WriteString("\n")
			if note := strings.TrimSpace(h.Note); note != "" {
				fmt.Fprintf(&b, "\n%s\n", note)
			}
		}
	}

	if notes := strings.TrimSpace(article.Notes); notes != "" {
		fmt.Fprintf(&b, "\n## Notes\n\n%s\n", notes)
	}
	return b.String(), nil
}
