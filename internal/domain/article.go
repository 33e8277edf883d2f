package domain

import (
	"errors"
	"time"
)

// ErrDuplicate reports an insert that hit the unique url constraint and was skipped.
var ErrDuplicate = errors.New("article already exists")

// Table selects between the main article store and the raw staging area.
type Table string

const (
	TableArticle    Table = "article"
	TableRawArticle Table = "raw_article"
)

// Status is shared by sources and articles.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
)

// InitialRetryDelay seeds next_retry_at for freshly created articles.
const InitialRetryDelay = time.Hour

// Article is one content item attributed to a Source.
type Article struct {
	Key         string
	URL         string
	OriginalURL string
	SourceKey   string

	Title                 string
	Summary               *string
	OriginalSummary       *string
	PublishedDate         *time.Time
	OriginalPublishedDate *time.Time

	ImageURL    *string
	ImagePath   *string
	ImagePath2x *string
	ImageAlt    *string

	// Content is the path of the externally stored extracted text.
	Content *string

	Industry         *string
	Type             *string
	AITitle          *string
	AISummary        []string
	RelativityScore  *int
	RelativityReason *string
	ViralTendency    *int

	Metadata Metadata

	Status      Status
	NextRetryAt *time.Time
	CrawlKey    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasAIFields reports whether the full categorization already ran.
func (a *Article) HasAIFields() bool {
	return a.AITitle != nil && len(a.AISummary) > 0 && a.Industry != nil && a.Type != nil && a.ViralTendency != nil
}

// CompletionStatus applies the completion law: content must exist, an image URL
// requires both resized variants, and AI fields count only when required.
func (a *Article) CompletionStatus(requireAI bool) Status {
	if a.Content == nil || *a.Content == "" {
		return StatusPending
	}
	if a.ImageURL != nil && *a.ImageURL != "" {
		if a.ImagePath == nil || a.ImagePath2x == nil {
			return StatusPending
		}
	}
	if requireAI && !a.HasAIFields() {
		return StatusPending
	}
	return StatusDone
}

// Metadata holds provider-specific extras plus the running AI price.
type Metadata map[string]any

const metadataPrice = "price"

// Price returns the accumulated model cost.
func (m Metadata) Price() float64 {
	switch v := m[metadataPrice].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// AddPrice accumulates cost onto the article's metadata, allocating the map when needed.
func (a *Article) AddPrice(cost float64) {
	if a.Metadata == nil {
		a.Metadata = Metadata{}
	}
	a.Metadata[metadataPrice] = a.Metadata.Price() + cost
}

// ArticleDraft is what feeds and site adapters emit before normalization.
type ArticleDraft struct {
	URL         string
	Title       string
	Summary     string
	PublishedAt *time.Time
	ImageURL    string
	ImageAlt    string
	// SourceURL names the origin site of an entry listed by a directory.
	SourceURL string
}
