package scrape

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

const maxFeedItems = 5

// fetchFeed handles feed-type sources: the source URL points at an RSS/Atom
// feed whose recent entries are treated as scraped pages.
func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string) ([]feedItem, error) {
	parser := gofeed.NewParser()
	parser.UserAgent = f.userAgent

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var items []feedItem
	for _, item := range feed.Items {
		if len(items) >= maxFeedItems {
			break
		}

		link := item.Link
		if link == "" {
			link = feedURL
		}
		title := strings.TrimSpace(item.Title)

		content := item.Content
		if content == "" {
			content = item.Description
		}
		content = cleanText(stripTags(content))
		if title == "" || content == "" {
			continue
		}

		items = append(items, feedItem{URL: link, Title: title, Content: content})
	}
	return items, nil
}

type feedItem struct {
	URL     string
	Title   string
	Content string
}

// stripTags removes HTML tags from feed content, which is frequently embedded
// HTML rather than plain text.
func stripTags(text string) string {
	var b strings.Builder
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	s := b.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	return s
}
