package storage

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/ports"
)

func openTestRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "news.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedSource(t *testing.T, repo *SQLRepository, url string) domain.Source {
	t.Helper()
	src := domain.Source{URL: url, OriginalURL: url, Type: domain.SourceWebsite}
	require.NoError(t, repo.UpsertSource(context.Background(), &src))
	require.NotEmpty(t, src.Key)
	return src
}

func TestInsertArticleDuplicateURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)
	src := seedSource(t, repo, "https://news.example.com")

	first := domain.Article{URL: "https://news.example.com/a", SourceKey: src.Key, Title: "A"}
	require.NoError(t, repo.InsertArticle(ctx, domain.TableArticle, &first))
	assert.NotEmpty(t, first.Key)
	assert.Equal(t, domain.StatusPending, first.Status)

	second := domain.Article{URL: "https://news.example.com/a", SourceKey: src.Key, Title: "A again"}
	err := repo.InsertArticle(ctx, domain.TableArticle, &second)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.Empty(t, second.Key)

	n, err := repo.CountArticles(ctx, domain.TableArticle)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateArticleRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)
	src := seedSource(t, repo, "https://news.example.com")

	published := time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)
	a := domain.Article{URL: "https://news.example.com/b", SourceKey: src.Key, Title: "B", PublishedDate: &published}
	require.NoError(t, repo.InsertArticle(ctx, domain.TableArticle, &a))

	a.Content = domain.Ptr("content/news.example.com_/b.md")
	a.AITitle = domain.Ptr("Short title")
	a.AISummary = []string{"one", "two"}
	a.Industry = domain.Ptr("Technology")
	a.Type = domain.Ptr("News")
	a.ViralTendency = domain.Ptr(7)
	a.AddPrice(0.25)
	a.Status = domain.StatusDone
	require.NoError(t, repo.UpdateArticle(ctx, domain.TableArticle, &a))

	got, err := repo.MissingAIFields(ctx, published.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, got, "categorized article must not be listed")

	all, err := repo.PendingArticles(ctx, domain.TableArticle, time.Now().Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, all, "done article must not be pending")

	stored, err := repo.selectArticles(ctx, repo.builder.Select(articleColumns...).From("article"))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, []string{"one", "two"}, stored[0].AISummary)
	assert.InDelta(t, 0.25, stored[0].Metadata.Price(), 1e-9)
	assert.Equal(t, 7, domain.Value(stored[0].ViralTendency))
	require.NotNil(t, stored[0].PublishedDate)
	assert.True(t, published.Equal(*stored[0].PublishedDate))
}

func TestPendingArticlesOrderAndDueness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)
	src := seedSource(t, repo, "https://news.example.com")
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	insert := func(url string, retry time.Time, status domain.Status) {
		a := domain.Article{URL: url, SourceKey: src.Key, Title: url, NextRetryAt: &retry, Status: status}
		require.NoError(t, repo.InsertArticle(ctx, domain.TableArticle, &a))
	}
	insert("https://news.example.com/later", now.Add(-time.Hour), domain.StatusPending)
	insert("https://news.example.com/earlier", now.Add(-2*time.Hour), domain.StatusPending)
	insert("https://news.example.com/future", now.Add(time.Hour), domain.StatusPending)
	insert("https://news.example.com/done", now.Add(-3*time.Hour), domain.StatusDone)

	got, err := repo.PendingArticles(ctx, domain.TableArticle, now, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://news.example.com/earlier", got[0].URL)
	assert.Equal(t, "https://news.example.com/later", got[1].URL)

	limited, err := repo.PendingArticles(ctx, domain.TableArticle, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestWithTransactionRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)
	src := seedSource(t, repo, "https://news.example.com")

	boom := errors.New("boom")
	err := repo.WithTransaction(ctx, func(tx ports.Store) error {
		a := domain.Article{URL: "https://news.example.com/c", SourceKey: src.Key, Title: "C"}
		if err := tx.InsertArticle(ctx, domain.TableArticle, &a); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := repo.CountArticles(ctx, domain.TableArticle)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStagedAboveScoreSkipsDone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)
	src := seedSource(t, repo, "https://news.example.com")

	stage := func(url string, score *int) domain.Article {
		a := domain.Article{URL: url, SourceKey: src.Key, Title: url, RelativityScore: score}
		require.NoError(t, repo.InsertArticle(ctx, domain.TableRawArticle, &a))
		return a
	}
	stage("https://news.example.com/high", domain.Ptr(9))
	stage("https://news.example.com/low", domain.Ptr(3))
	stage("https://news.example.com/unscored", nil)
	done := stage("https://news.example.com/done", domain.Ptr(10))
	done.Status = domain.StatusDone
	require.NoError(t, repo.UpdateArticle(ctx, domain.TableRawArticle, &done))

	// already in the main table but still open in staging: returned so promotion can close it
	elsewhere := stage("https://news.example.com/elsewhere", domain.Ptr(7))
	require.NoError(t, repo.InsertArticle(ctx, domain.TableArticle, &domain.Article{
		URL: elsewhere.URL, SourceKey: src.Key, Title: elsewhere.Title,
	}))

	got, err := repo.StagedAboveScore(ctx, 5)
	require.NoError(t, err)
	urls := make([]string, 0, len(got))
	for _, a := range got {
		urls = append(urls, a.URL)
	}
	assert.ElementsMatch(t, []string{"https://news.example.com/high", "https://news.example.com/elsewhere"}, urls)

	missing, err := repo.MissingRelativity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "https://news.example.com/unscored", missing[0].URL)
}

func TestUpsertSourceIsIdempotentByURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := openTestRepo(t)

	first := seedSource(t, repo, "https://blog.example.org")
	again := domain.Source{URL: "https://blog.example.org", Type: domain.SourceWebsite, Name: domain.Ptr("Example")}
	require.NoError(t, repo.UpsertSource(ctx, &again))
	assert.Equal(t, first.Key, again.Key)

	built := time.Now()
	again.Status = domain.StatusDone
	again.LastBuildDate = &built
	again.RSSURL = domain.Ptr("https://blog.example.org/feed.xml")
	require.NoError(t, repo.UpsertSource(ctx, &again))

	sources, err := repo.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, domain.StatusDone, sources[0].Status)
	assert.Equal(t, "Example", domain.Value(sources[0].Name))
	assert.Equal(t, "https://blog.example.org/feed.xml", domain.Value(sources[0].RSSURL))

	due, err := repo.SourcesDue(ctx, built.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "freshly built source with a feed is not due")

	due, err = repo.SourcesDue(ctx, built.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 1)

	dup := domain.Source{URL: "https://blog.example.org", Type: domain.SourceWebsite}
	assert.ErrorIs(t, repo.InsertSource(ctx, &dup), domain.ErrDuplicate)
}

func TestAppendLog(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	err := repo.AppendLog(context.Background(), domain.LogEntry{
		CrawlKey:  "k",
		LogType:   domain.LogError,
		ErrorType: domain.ErrorNetwork,
		URLs:      domain.LogURLs{SourceURL: "https://news.example.com"},
		Message:   "fetch failed",
	})
	require.NoError(t, err)
}

func TestPostgresDialectInsertDuplicate(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepository(db, DriverPostgres)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO raw_article (id,url,") + ".*VALUES \\(\\$1,\\$2,.*ON CONFLICT DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	a := domain.Article{URL: "https://news.example.com/a", SourceKey: "s", Title: "A"}
	err = repo.InsertArticle(context.Background(), domain.TableRawArticle, &a)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteDialectUsesQuestionPlaceholders(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepository(db, DriverSQLite)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO raw_article (id,url,") + ".*VALUES \\(\\?,\\?,.*ON CONFLICT DO NOTHING").
		WillReturnResult(sqlmock.NewResult(1, 1))

	a := domain.Article{URL: "https://news.example.com/a", SourceKey: "s", Title: "A"}
	require.NoError(t, repo.InsertArticle(context.Background(), domain.TableRawArticle, &a))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDialectClassifiesFailures(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepository(db, DriverPostgres)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM article")).WillReturnError(errors.New("connection reset"))

	_, err = repo.CountArticles(context.Background(), domain.TableArticle)
	require.Error(t, err)
	assert.Equal(t, domain.ErrorDatabase, crawlerr.TypeOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownTableRejected(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	_, err := repo.CountArticles(context.Background(), domain.Table("users"))
	assert.Error(t, err)
}

func TestDiskStore(t *testing.T) {
	t.Parallel()
	store := NewDiskStore(t.TempDir())

	rel, err := store.WriteFile("icons/example.com_/icon-16.png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "icons/example.com_/icon-16.png", rel)
	assert.True(t, store.Exists(rel))

	// Writing the same path twice is fine.
	_, err = store.WriteFile(rel, []byte("png2"))
	require.NoError(t, err)
	data, err := store.ReadFile(rel)
	require.NoError(t, err)
	assert.Equal(t, "png2", string(data))

	escaped, err := store.WriteFile("../outside.txt", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "outside.txt", escaped)
	assert.False(t, store.Exists("icons/missing.png"))

	_, err = store.WriteFile("", nil)
	assert.Error(t, err)
}
