package parser

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsIngest/internal/config"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/scanner"
	"NewsIngest/internal/urlutil"
)

const defaultArxivPageSize = 200

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// ArxivScanner reads arXiv category listings (dl > dt/dd pairs).
type ArxivScanner struct {
	key        string
	categories []config.CategoryConfig
	pageSize   int
}

var _ scanner.Adapter = (*ArxivScanner)(nil)

// NewArxivScanner builds the adapter for one configured site; options["show"] sets the page size.
func NewArxivScanner(site config.SiteConfig) *ArxivScanner {
	pageSize := defaultArxivPageSize
	if v, err := strconv.Atoi(site.Options["show"]); err == nil && v > 0 {
		pageSize = v
	}
	return &ArxivScanner{key: site.Name, categories: site.Categories, pageSize: pageSize}
}

// Key identifies the adapter inside the registry.
func (a *ArxivScanner) Key() string {
	return a.key
}

// ListingURLs returns the first page of every category.
func (a *ArxivScanner) ListingURLs() []string {
	out := make([]string, 0, len(a.categories))
	for _, cat := range a.categories {
		pageURL, err := buildPageURL(cat.URL, 0, a.pageSize)
		if err != nil {
			continue
		}
		out = append(out, pageURL)
	}
	return out
}

// ExtractEntries turns each dt/dd pair into a draft.
func (a *ArxivScanner) ExtractEntries(_ context.Context, doc *goquery.Document, pageURL string) ([]domain.ArticleDraft, error) {
	var drafts []domain.ArticleDraft
	doc.Find("dl > dt").Each(func(_ int, dt *goquery.Selection) {
		draft, ok := parseEntry(dt, dt.Next(), pageURL)
		if ok {
			drafts = append(drafts, draft)
		}
	})
	return drafts, nil
}

func parseEntry(dt, dd *goquery.Selection, pageURL string) (domain.ArticleDraft, bool) {
	href, _ := dt.Find(`a[href*="/abs/"]`).First().Attr("href")
	link := urlutil.Resolve(pageURL, strings.TrimSpace(href))
	if href == "" || link == "" {
		return domain.ArticleDraft{}, false
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))

	summary := dd.Find("p.mathjax").First().Text()
	summary = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(summary), "Abstract:"))

	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}

	var published *time.Time
	if match := dateExpr.FindString(dateText); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			published = &parsed
		}
	}

	return domain.ArticleDraft{
		URL:         link,
		Title:       title,
		Summary:     summary,
		PublishedAt: published,
	}, true
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid category url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
