package extract

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/ports"
)

// FeedParser turns RSS/Atom documents into article drafts inside a lookback window.
type FeedParser struct {
	fetcher  ports.Fetcher
	lookback time.Duration
	now      func() time.Time
}

// NewFeedParser keeps entries published within lookbackDays; 0 keeps everything.
func NewFeedParser(fetcher ports.Fetcher, lookbackDays int) *FeedParser {
	return &FeedParser{
		fetcher:  fetcher,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		now:      time.Now,
	}
}

// Fetch streams feedURL and parses it.
func (p *FeedParser) Fetch(ctx context.Context, feedURL string) ([]domain.ArticleDraft, error) {
	body, err := p.fetcher.Stream(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return p.Parse(body)
}

// Parse reads a feed document. Entries without a usable link or older than the window are dropped.
// Undated entries are kept with a nil PublishedAt.
func (p *FeedParser) Parse(r io.Reader) ([]domain.ArticleDraft, error) {
	feed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, crawlerr.Parse("parse feed", err)
	}

	cutoff := p.cutoff()
	drafts := make([]domain.ArticleDraft, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := itemLink(item)
		if link == "" {
			continue
		}

		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}
		if !inWindow(published, cutoff) {
			continue
		}

		description := item.Description
		if strings.TrimSpace(description) == "" {
			description = item.Content
		}

		imageURL, imageAlt := itemImage(item)
		drafts = append(drafts, domain.ArticleDraft{
			URL:         link,
			Title:       StripHTML(item.Title),
			Summary:     StripHTML(description),
			PublishedAt: published,
			ImageURL:    imageURL,
			ImageAlt:    imageAlt,
		})
	}
	return drafts, nil
}

// Filter applies the lookback window to drafts from other origins, such as site adapters.
func (p *FeedParser) Filter(drafts []domain.ArticleDraft) []domain.ArticleDraft {
	cutoff := p.cutoff()
	kept := drafts[:0]
	for _, d := range drafts {
		if inWindow(d.PublishedAt, cutoff) {
			kept = append(kept, d)
		}
	}
	return kept
}

func (p *FeedParser) cutoff() time.Time {
	if p.lookback <= 0 {
		return time.Time{}
	}
	return p.now().Add(-p.lookback)
}

func inWindow(published *time.Time, cutoff time.Time) bool {
	return published == nil || cutoff.IsZero() || !published.Before(cutoff)
}

func itemLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	if strings.HasPrefix(item.GUID, "http") {
		return strings.TrimSpace(item.GUID)
	}
	return ""
}

// itemImage prefers the feed image, then image enclosures, then media:content/thumbnail.
func itemImage(item *gofeed.Item) (string, string) {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL, item.Image.Title
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL, ""
		}
	}
	media := item.Extensions["media"]
	for _, name := range []string{"content", "thumbnail"} {
		for _, ext := range media[name] {
			if u := ext.Attrs["url"]; u != "" {
				if medium := ext.Attrs["medium"]; medium != "" && medium != "image" {
					continue
				}
				alt := ""
				if desc := ext.Children["description"]; len(desc) > 0 {
					alt = strings.TrimSpace(desc[0].Value)
				}
				return u, alt
			}
		}
	}
	return "", ""
}
