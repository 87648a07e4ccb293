package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// contentSelectors is the prioritized list of structural selectors tried
// before falling back to whole-body extraction. Earlier entries win.
var contentSelectors = []string{
	"article",
	"main",
	".post-content",
	".entry-content",
	".thread",
	"#content",
	".content",
}

// ParsePage extracts a title and cleaned text from raw HTML. Structural
// selectors are tried in priority order; when none yields enough text the
// whole page goes through readability, and finally plain body text.
func ParsePage(html, pageURL string) (title, text string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", cleanText(html)
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, nav, header, footer, aside").Remove()

	for _, selector := range contentSelectors {
		sel := doc.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		if extracted := cleanText(sel.Text()); len(extracted) > 200 {
			return title, extracted
		}
	}

	if parsed, err := readability.FromReader(strings.NewReader(html), mustParseURL(pageURL)); err == nil {
		if extracted := cleanText(parsed.TextContent); len(extracted) > 100 {
			if title == "" {
				title = parsed.Title
			}
			return title, extracted
		}
	}

	return title, cleanText(doc.Find("body").Text())
}

// cleanText collapses whitespace runs into single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate caps text at limit characters without splitting a word when a
// nearby space allows it.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := s[:limit]
	if idx := strings.LastIndexByte(cut, ' '); idx > limit/2 {
		cut = cut[:idx]
	}
	return cut
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
