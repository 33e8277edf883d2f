package extract

import (
	"time"

	"NewsIngest/internal/backoff"
	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/urlutil"
)

// NewArticle builds a pending article from a draft. Future publish dates are clamped
// to now for display while the true date is kept in OriginalPublishedDate.
func NewArticle(draft domain.ArticleDraft, sourceKey, crawlKey string, now time.Time) (*domain.Article, error) {
	normalized, err := urlutil.Normalize(draft.URL)
	if err != nil {
		return nil, crawlerr.Parse("normalize article url "+draft.URL, err)
	}

	title := collapse(draft.Title)
	if title == "" {
		title = normalized
	}

	article := &domain.Article{
		URL:         normalized,
		OriginalURL: draft.URL,
		SourceKey:   sourceKey,
		Title:       title,
		ImageURL:    domain.NonEmpty(draft.ImageURL),
		ImageAlt:    domain.NonEmpty(collapse(draft.ImageAlt)),
		Status:      domain.StatusPending,
		CrawlKey:    domain.NonEmpty(crawlKey),
		CreatedAt:   now,
	}

	if summary := collapse(draft.Summary); summary != "" {
		article.Summary = domain.Ptr(summary)
		article.OriginalSummary = domain.Ptr(summary)
	}

	published := now
	if draft.PublishedAt != nil {
		original := draft.PublishedAt.UTC()
		article.OriginalPublishedDate = &original
		if original.Before(now) {
			published = original
		}
	}
	article.PublishedDate = &published

	retry := backoff.SeedRetryAt(now)
	article.NextRetryAt = &retry
	return article, nil
}
