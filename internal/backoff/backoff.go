// Package backoff re-visits incomplete articles on a delay that doubles from their creation time.
package backoff

import (
	"context"
	"time"

	"NewsIngest/internal/domain"
)

// DefaultBatchSize bounds one retry pass per table.
const DefaultBatchSize = 50

// SeedRetryAt is the first retry time of a freshly created item.
func SeedRetryAt(created time.Time) time.Time {
	return created.Add(domain.InitialRetryDelay)
}

// NextRetryAt anchors the delay to creation: created + 2*(now-created).
// A creation time in the future is treated as now.
func NextRetryAt(created, now time.Time) time.Time {
	elapsed := now.Sub(created)
	if elapsed < 0 {
		elapsed = 0
	}
	return created.Add(2 * elapsed)
}

// Store is the slice of persistence the controller needs.
type Store interface {
	PendingArticles(ctx context.Context, table domain.Table, now time.Time, limit int) ([]domain.Article, error)
	UpdateArticle(ctx context.Context, table domain.Table, article *domain.Article) error
}

// Attempt re-runs extraction for one article and returns its new status.
type Attempt func(ctx context.Context, table domain.Table, article *domain.Article) domain.Status

// Report summarizes one pass.
type Report struct {
	Selected  int
	Completed int
	Pending   int
	Failed    int
}

// Controller selects due articles, retries them and reschedules the ones still incomplete.
type Controller struct {
	store     Store
	attempt   Attempt
	batchSize int
	now       func() time.Time
	onError   func(article domain.Article, err error)
}

// NewController builds a controller; batchSize <= 0 selects DefaultBatchSize.
func NewController(store Store, attempt Attempt, batchSize int, onError func(domain.Article, error)) *Controller {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if onError == nil {
		onError = func(domain.Article, error) {}
	}
	return &Controller{store: store, attempt: attempt, batchSize: batchSize, now: time.Now, onError: onError}
}

// Run performs one pass over table. Only the selection query failing is returned;
// per-article update failures go to onError.
func (c *Controller) Run(ctx context.Context, table domain.Table) (Report, error) {
	now := c.now()
	due, err := c.store.PendingArticles(ctx, table, now, c.batchSize)
	if err != nil {
		return Report{}, err
	}

	report := Report{Selected: len(due)}
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		article := &due[i]
		status := c.attempt(ctx, table, article)

		article.Status = status
		next := NextRetryAt(article.CreatedAt, c.now())
		article.NextRetryAt = &next

		if err := c.store.UpdateArticle(ctx, table, article); err != nil {
			report.Failed++
			c.onError(*article, err)
			continue
		}
		if status == domain.StatusDone {
			report.Completed++
		} else {
			report.Pending++
		}
	}
	return report, nil
}
