package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsIngest/internal/domain"
)

type memStore struct {
	articles map[string]*domain.Article
	failKey  string
	limit    int
}

func (m *memStore) PendingArticles(_ context.Context, _ domain.Table, now time.Time, limit int) ([]domain.Article, error) {
	m.limit = limit
	var out []domain.Article
	for _, a := range m.articles {
		if a.Status == domain.StatusDone {
			continue
		}
		if a.NextRetryAt != nil && a.NextRetryAt.After(now) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memStore) UpdateArticle(_ context.Context, _ domain.Table, a *domain.Article) error {
	if a.Key == m.failKey {
		return errors.New("write failed")
	}
	stored := *a
	m.articles[a.Key] = &stored
	return nil
}

func TestNextRetryAtDoublesFromCreation(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, created.Add(time.Hour), SeedRetryAt(created))
	assert.Equal(t, created.Add(6*time.Hour), NextRetryAt(created, created.Add(3*time.Hour)))
	assert.Equal(t, created, NextRetryAt(created, created.Add(-time.Hour)), "future creation is clamped")
}

func TestControllerBackoffIsMonotonic(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	seed := SeedRetryAt(created)
	store := &memStore{articles: map[string]*domain.Article{
		"a": {Key: "a", CreatedAt: created, Status: domain.StatusPending, NextRetryAt: &seed},
	}}

	attempts := 0
	ctrl := NewController(store, func(context.Context, domain.Table, *domain.Article) domain.Status {
		attempts++
		return domain.StatusPending
	}, 0, nil)

	clock := seed
	ctrl.now = func() time.Time { return clock }

	var gaps []time.Duration
	for i := 0; i < 2; i++ {
		report, err := ctrl.Run(context.Background(), domain.TableArticle)
		require.NoError(t, err)
		require.Equal(t, 1, report.Pending)

		next := *store.articles["a"].NextRetryAt
		gaps = append(gaps, next.Sub(created))
		clock = next
	}

	assert.Equal(t, 2, attempts)
	assert.Equal(t, DefaultBatchSize, store.limit)
	assert.Greater(t, gaps[1], gaps[0])
	assert.Equal(t, 2*gaps[0], gaps[1])
	assert.Equal(t, 2*time.Hour, gaps[0])
}

func TestControllerReschedulesEvenOnSuccess(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{articles: map[string]*domain.Article{
		"ok":   {Key: "ok", CreatedAt: created, Status: domain.StatusPending},
		"fail": {Key: "fail", CreatedAt: created, Status: domain.StatusPending},
	}, failKey: "fail"}

	var failed []string
	ctrl := NewController(store, func(context.Context, domain.Table, *domain.Article) domain.Status {
		return domain.StatusDone
	}, 10, func(a domain.Article, _ error) { failed = append(failed, a.Key) })
	now := created.Add(10 * time.Hour)
	ctrl.now = func() time.Time { return now }

	report, err := ctrl.Run(context.Background(), domain.TableRawArticle)
	require.NoError(t, err)
	assert.Equal(t, Report{Selected: 2, Completed: 1, Failed: 1}, report)
	assert.Equal(t, []string{"fail"}, failed)

	ok := store.articles["ok"]
	assert.Equal(t, domain.StatusDone, ok.Status)
	assert.Equal(t, created.Add(20*time.Hour), *ok.NextRetryAt)
}
