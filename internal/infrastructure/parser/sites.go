package parser

import (
	"fmt"
	"log/slog"

	"NewsIngest/internal/config"
	"NewsIngest/internal/scanner"
)

// Scanner kinds accepted in sites[].scanner.
const (
	KindArxiv     = "arxiv"
	KindSelectors = "selectors"
)

// NewRegistry builds one adapter per configured site.
func NewRegistry(sites []config.SiteConfig, log *slog.Logger) (*scanner.Registry, error) {
	reg := scanner.NewRegistry()
	for _, site := range sites {
		if site.Name == "" {
			return nil, fmt.Errorf("site without name (scanner %q)", site.Scanner)
		}
		adapter, err := newAdapter(site)
		if err != nil {
			return nil, err
		}
		reg.Register(adapter)
		if log != nil {
			log.Debug("registered site adapter", "site", site.Name, "scanner", site.Scanner, "listings", len(site.Categories))
		}
	}
	return reg, nil
}

func newAdapter(site config.SiteConfig) (scanner.Adapter, error) {
	switch site.Scanner {
	case KindArxiv:
		return NewArxivScanner(site), nil
	case KindSelectors, "":
		return NewSelectorScanner(site)
	default:
		return nil, fmt.Errorf("site %s: unknown scanner %q", site.Name, site.Scanner)
	}
}
