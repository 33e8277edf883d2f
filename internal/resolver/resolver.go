// Package resolver refreshes a source's name, feed URL and icons from its home page.
package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/icons"
	"NewsIngest/internal/ports"
	"NewsIngest/internal/runctx"
	"NewsIngest/internal/urlutil"
)

// ErrNoFeed is logged when a website source still has no feed after resolution.
var ErrNoFeed = errors.New("no feed url found")

// Options configures resolution.
type Options struct {
	RefreshDays int
	// NameOverrides maps normalized source URLs to curated display names.
	NameOverrides map[string]string
}

// Resolver fetches a source page and derives its metadata.
type Resolver struct {
	fetcher   ports.Fetcher
	cascade   *icons.Cascade
	overrides map[string]string
	days      int
	now       func() time.Time
}

// New wires a resolver.
func New(fetcher ports.Fetcher, cascade *icons.Cascade, opts Options) *Resolver {
	overrides := make(map[string]string, len(opts.NameOverrides))
	for raw, name := range opts.NameOverrides {
		overrides[trimSlash(urlutil.MustNormalize(raw))] = name
	}
	return &Resolver{
		fetcher:   fetcher,
		cascade:   cascade,
		overrides: overrides,
		days:      opts.RefreshDays,
		now:       time.Now,
	}
}

// NeedsRefresh applies the freshness rule.
func NeedsRefresh(src *domain.Source, now time.Time, refreshDays int) bool {
	switch {
	case src.Status != domain.StatusDone:
		return true
	case src.LastBuildDate == nil:
		return true
	case src.IsWebsite() && src.RSSURL == nil:
		return true
	default:
		return src.LastBuildDate.Before(now.Add(-time.Duration(refreshDays) * 24 * time.Hour))
	}
}

// Due reports whether src should be resolved in this run.
func (r *Resolver) Due(src *domain.Source) bool {
	return NeedsRefresh(src, r.now(), r.days)
}

// Resolve refreshes src in place. A fetch failure leaves the prior fields untouched,
// marks the source pending and returns the error after logging it.
func (r *Resolver) Resolve(ctx context.Context, run *runctx.Run, src *domain.Source) error {
	urls := domain.LogURLs{SourceURL: src.URL}
	src.CrawlKey = domain.Ptr(run.Key)

	if normalized, err := urlutil.Normalize(src.URL); err == nil {
		src.URL = normalized
	}
	if src.OriginalURL == "" {
		src.OriginalURL = src.URL
	}

	doc, err := r.page(ctx, src.URL)
	if err != nil {
		src.Status = domain.StatusPending
		run.Error(urls, "resolve source", err)
		return err
	}

	if name := r.name(src, doc); name != "" {
		src.Name = domain.Ptr(name)
	}

	if src.RSSURL == nil {
		if feed := DiscoverFeed(doc, src.URL); feed != "" {
			src.RSSURL = domain.Ptr(feed)
		}
	}

	r.resolveIcons(ctx, run, src, doc)

	if src.IsWebsite() && src.RSSURL == nil && src.Adapter == "" {
		run.Errorf(domain.ErrorCrawl, urls, "resolve source", ErrNoFeed)
	}

	now := r.now()
	src.LastBuildDate = &now
	src.Status = domain.StatusDone
	return nil
}

func (r *Resolver) name(src *domain.Source, doc *goquery.Document) string {
	for _, key := range []string{src.URL, src.OriginalURL} {
		if name, ok := r.overrides[trimSlash(urlutil.MustNormalize(key))]; ok {
			return name
		}
	}
	return DeriveName(pageTitle(doc), src.URL)
}

// resolveIcons runs the cascade on the source page and walks up the URL hierarchy
// until both small icons exist or the URL stops changing.
func (r *Resolver) resolveIcons(ctx context.Context, run *runctx.Run, src *domain.Source, doc *goquery.Document) {
	if r.cascade == nil {
		return
	}
	prior := icons.FromSource(src)
	dir := urlutil.DirName(src.OriginalURL)

	current := src.URL
	set := r.cascade.Resolve(ctx, doc, current, dir, icons.Set{})
	for !set.Complete() {
		parent := urlutil.Parent(current)
		if trimSlash(parent) == trimSlash(current) {
			break
		}
		current = parent

		parentDoc, err := r.page(ctx, current)
		if err != nil {
			run.Logger().Debug("icon walk-up fetch failed", "source_url", src.URL, "page_url", current, "error", err)
			continue
		}
		set = r.cascade.Resolve(ctx, parentDoc, current, dir, set)
	}

	if !set.Complete() && prior.Complete() {
		return
	}
	set.Apply(src)
	if !set.Complete() {
		run.Logger().Warn("icons incomplete", "source_url", src.URL)
	}
}

func (r *Resolver) page(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := r.fetcher.Text(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, crawlerr.Parse("parse page "+pageURL, err)
	}
	return doc, nil
}

func trimSlash(u string) string {
	return strings.TrimRight(u, "/")
}
