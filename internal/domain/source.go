package domain

import "time"

// SourceType distinguishes publishing sites from aggregators.
type SourceType string

const (
	SourceWebsite   SourceType = "website"
	SourceDirectory SourceType = "directory"
)

// Source is a crawlable origin.
type Source struct {
	Key         string
	URL         string
	OriginalURL string
	RSSURL      *string
	Name        *string
	Type        SourceType
	Status      Status
	// Adapter is the registry key of a custom site adapter, empty for feed-driven sites.
	Adapter string

	LastBuildDate *time.Time

	Icon16URL       *string
	Icon32URL       *string
	IconLargestURL  *string
	Icon16Path      *string
	Icon32Path      *string
	IconLargestPath *string

	CrawlKey  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsWebsite treats an unset type as a website.
func (s *Source) IsWebsite() bool {
	return s.Type == "" || s.Type == SourceWebsite
}

// DisplayName falls back to the url while the name is unresolved.
func (s *Source) DisplayName() string {
	if s.Name != nil && *s.Name != "" {
		return *s.Name
	}
	return s.URL
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Value dereferences p, returning the zero value for nil.
func Value[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// NonEmpty returns nil for an empty string so unset stays unset.
func NonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
