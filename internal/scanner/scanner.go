// Package scanner holds the registry of site adapters: sources whose articles come from
// their own listing pages instead of a feed.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"NewsIngest/internal/domain"
	"NewsIngest/internal/pool"
	"NewsIngest/internal/ports"
	"NewsIngest/internal/urlutil"
)

// Adapter extracts article drafts from a site's listing pages.
type Adapter interface {
	Key() string
	ListingURLs() []string
	ExtractEntries(ctx context.Context, doc *goquery.Document, pageURL string) ([]domain.ArticleDraft, error)
}

// Registry keeps a mapping from adapter keys to their implementations.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// Register adds or replaces an adapter.
func (r *Registry) Register(adapter Adapter) {
	if r.adapters == nil {
		r.adapters = map[string]Adapter{}
	}
	r.adapters[adapter.Key()] = adapter
}

// Resolve returns an adapter by key or an error if it is absent.
func (r *Registry) Resolve(key string) (Adapter, error) {
	if r != nil {
		if adapter, ok := r.adapters[key]; ok {
			return adapter, nil
		}
	}
	return nil, fmt.Errorf("adapter %s is not registered", key)
}

// Keys lists registered adapters in sorted order.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Collect fetches every listing page of adapter with up to concurrency pages in flight and
// merges the drafts, keeping the first draft per normalized url. Pages that fail are skipped
// and reported together in the returned error.
func Collect(ctx context.Context, fetcher ports.Fetcher, adapter Adapter, concurrency int) ([]domain.ArticleDraft, error) {
	listings := adapter.ListingURLs()
	if len(listings) == 0 {
		return nil, fmt.Errorf("adapter %s has no listing urls", adapter.Key())
	}
	if concurrency < 1 {
		concurrency = 1
	}

	pages := make([][]domain.ArticleDraft, len(listings))
	index := make(map[string]int, len(listings))
	for i, u := range listings {
		index[u] = i
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	_, err := pool.Run(ctx, listings, concurrency, func(ctx context.Context, pageURL string) error {
		html, err := fetcher.Text(ctx, pageURL)
		if err != nil {
			return err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return fmt.Errorf("parse listing: %w", err)
		}
		drafts, err := adapter.ExtractEntries(ctx, doc, pageURL)
		if err != nil {
			return err
		}
		mu.Lock()
		pages[index[pageURL]] = drafts
		mu.Unlock()
		return nil
	}, func(pageURL string, err error) {
		mu.Lock()
		errs = append(errs, fmt.Errorf("listing %s: %w", pageURL, err))
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var merged []domain.ArticleDraft
	for _, drafts := range pages {
		for _, d := range drafts {
			key, err := urlutil.Normalize(d.URL)
			if err != nil {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, d)
		}
	}
	return merged, errors.Join(errs...)
}
