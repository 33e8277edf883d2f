package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsIngest/internal/config"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/scanner"
	"NewsIngest/internal/urlutil"
)

// Option keys understood by SelectorScanner. Selectors inside an item are relative to it.
const (
	optItem       = "item"
	optLink       = "link"
	optTitle      = "title"
	optSummary    = "summary"
	optDate       = "date"
	optDateLayout = "dateLayout"
	optImage      = "image"
	optSource     = "source"
)

var fallbackLayouts = []string{time.RFC3339, "2006-01-02", "2 January 2006", "January 2, 2006", "Jan 2, 2006", "02.01.2006"}

// SelectorScanner is a site adapter driven entirely by CSS selectors from configuration.
// A "source" selector marks it as a directory: each entry names the site it came from.
type SelectorScanner struct {
	key        string
	categories []config.CategoryConfig
	opts       map[string]string
}

var _ scanner.Adapter = (*SelectorScanner)(nil)

// NewSelectorScanner validates that the item and link selectors are present.
func NewSelectorScanner(site config.SiteConfig) (*SelectorScanner, error) {
	if site.Options[optItem] == "" {
		return nil, fmt.Errorf("site %s: option %q is required", site.Name, optItem)
	}
	opts := map[string]string{optLink: "a[href]"}
	for k, v := range site.Options {
		opts[k] = v
	}
	return &SelectorScanner{key: site.Name, categories: site.Categories, opts: opts}, nil
}

// Key identifies the adapter inside the registry.
func (s *SelectorScanner) Key() string {
	return s.key
}

// ListingURLs returns the configured category pages.
func (s *SelectorScanner) ListingURLs() []string {
	out := make([]string, 0, len(s.categories))
	for _, cat := range s.categories {
		out = append(out, cat.URL)
	}
	return out
}

// ExtractEntries applies the configured selectors to every item on the page.
func (s *SelectorScanner) ExtractEntries(_ context.Context, doc *goquery.Document, pageURL string) ([]domain.ArticleDraft, error) {
	items := doc.Find(s.opts[optItem])
	if items.Length() == 0 {
		return nil, fmt.Errorf("no items match %q", s.opts[optItem])
	}

	var drafts []domain.ArticleDraft
	items.Each(func(_ int, item *goquery.Selection) {
		linkSel := item.Find(s.opts[optLink]).First()
		if item.Is(s.opts[optLink]) {
			linkSel = item
		}
		href, _ := linkSel.Attr("href")
		link := urlutil.Resolve(pageURL, strings.TrimSpace(href))
		if href == "" || link == "" {
			return
		}

		title := linkSel.Text()
		if sel := s.opts[optTitle]; sel != "" {
			title = item.Find(sel).First().Text()
		}

		draft := domain.ArticleDraft{
			URL:   link,
			Title: collapseSpace(title),
		}
		if sel := s.opts[optSummary]; sel != "" {
			draft.Summary = collapseSpace(item.Find(sel).First().Text())
		}
		if sel := s.opts[optDate]; sel != "" {
			draft.PublishedAt = s.parseDate(item.Find(sel).First())
		}
		if sel := s.opts[optImage]; sel != "" {
			img := item.Find(sel).First()
			if src, ok := img.Attr("src"); ok {
				draft.ImageURL = urlutil.Resolve(pageURL, src)
				draft.ImageAlt, _ = img.Attr("alt")
			}
		}
		if sel := s.opts[optSource]; sel != "" {
			if origin, ok := item.Find(sel).First().Attr("href"); ok {
				draft.SourceURL = urlutil.Origin(urlutil.Resolve(pageURL, origin))
			}
		}
		drafts = append(drafts, draft)
	})
	return drafts, nil
}

func (s *SelectorScanner) parseDate(sel *goquery.Selection) *time.Time {
	raw, ok := sel.Attr("datetime")
	if !ok {
		raw = sel.Text()
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	layouts := fallbackLayouts
	if layout := s.opts[optDateLayout]; layout != "" {
		layouts = append([]string{layout}, fallbackLayouts...)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
