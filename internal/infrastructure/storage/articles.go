package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
)

var articleColumns = []string{
	"id", "url", "original_url", "source_id", "title", "summary", "original_summary",
	"published_date", "original_published_date",
	"image_url", "image_path", "image_path_2x", "image_alt", "content",
	"industry", "type", "ai_title", "ai_summary", "relativity_score", "relativity_reason", "viral_tendency",
	"metadata", "status", "next_retry_at", "crawl_key", "created_at", "updated_at",
}

func tableName(table domain.Table) (string, error) {
	switch table {
	case domain.TableArticle, domain.TableRawArticle:
		return string(table), nil
	default:
		return "", fmt.Errorf("unknown article table %q", table)
	}
}

// InsertArticle adds the article and fills its Key. An existing url yields domain.ErrDuplicate.
func (r *SQLRepository) InsertArticle(ctx context.Context, table domain.Table, article *domain.Article) error {
	name, err := tableName(table)
	if err != nil {
		return crawlerr.Database("insert article", err)
	}

	now := r.now()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = now
	}
	article.UpdatedAt = now
	if article.Status == "" {
		article.Status = domain.StatusPending
	}
	if article.OriginalURL == "" {
		article.OriginalURL = article.URL
	}
	key := uuid.NewString()

	values, err := articleValues(key, article)
	if err != nil {
		return crawlerr.Database("encode article "+article.URL, err)
	}

	query, args, err := r.builder.Insert(name).
		Columns(articleColumns...).
		Values(values...).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return crawlerr.Database("build insert article", err)
	}

	res, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return crawlerr.Database("insert article "+article.URL, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrDuplicate
	}
	article.Key = key
	return nil
}

// UpdateArticle rewrites every mutable column of an existing row.
func (r *SQLRepository) UpdateArticle(ctx context.Context, table domain.Table, article *domain.Article) error {
	name, err := tableName(table)
	if err != nil {
		return crawlerr.Database("update article", err)
	}
	if article.Key == "" {
		return crawlerr.Database("update article", fmt.Errorf("article %s has no key", article.URL))
	}
	article.UpdatedAt = r.now()

	aiSummary, err := encodeJSON(article.AISummary, len(article.AISummary) == 0)
	if err != nil {
		return crawlerr.Database("encode ai summary", err)
	}
	metadata, err := encodeJSON(article.Metadata, len(article.Metadata) == 0)
	if err != nil {
		return crawlerr.Database("encode metadata", err)
	}

	query, args, err := r.builder.Update(name).
		SetMap(map[string]any{
			"title":             article.Title,
			"summary":           nullString(article.Summary),
			"published_date":    nullTime(article.PublishedDate),
			"image_url":         nullString(article.ImageURL),
			"image_path":        nullString(article.ImagePath),
			"image_path_2x":     nullString(article.ImagePath2x),
			"image_alt":         nullString(article.ImageAlt),
			"content":           nullString(article.Content),
			"industry":          nullString(article.Industry),
			"type":              nullString(article.Type),
			"ai_title":          nullString(article.AITitle),
			"ai_summary":        aiSummary,
			"relativity_score":  nullInt(article.RelativityScore),
			"relativity_reason": nullString(article.RelativityReason),
			"viral_tendency":    nullInt(article.ViralTendency),
			"metadata":          metadata,
			"status":            string(article.Status),
			"next_retry_at":     nullTime(article.NextRetryAt),
			"crawl_key":         nullString(article.CrawlKey),
			"updated_at":        stamp(article.UpdatedAt),
		}).
		Where(sq.Eq{"id": article.Key}).
		ToSql()
	if err != nil {
		return crawlerr.Database("build update article", err)
	}

	if _, err := r.conn.ExecContext(ctx, query, args...); err != nil {
		return crawlerr.Database("update article "+article.URL, err)
	}
	return nil
}

// PendingArticles returns unfinished articles whose retry time has come, earliest first.
func (r *SQLRepository) PendingArticles(ctx context.Context, table domain.Table, now time.Time, limit int) ([]domain.Article, error) {
	name, err := tableName(table)
	if err != nil {
		return nil, crawlerr.Database("pending articles", err)
	}
	b := r.builder.Select(articleColumns...).From(name).
		Where(sq.Or{sq.Eq{"status": string(domain.StatusPending)}, sq.Eq{"status": nil}}).
		Where(sq.Or{sq.Eq{"next_retry_at": nil}, sq.LtOrEq{"next_retry_at": stamp(now)}}).
		OrderBy("next_retry_at ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.selectArticles(ctx, b)
}

// MissingAIFields returns recent articles that were never categorized.
func (r *SQLRepository) MissingAIFields(ctx context.Context, publishedSince time.Time, limit int) ([]domain.Article, error) {
	b := r.builder.Select(articleColumns...).From(string(domain.TableArticle)).
		Where(sq.Eq{"ai_title": nil}).
		Where(sq.GtOrEq{"published_date": stamp(publishedSince)}).
		OrderBy("published_date DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.selectArticles(ctx, b)
}

// MissingRelativity returns staged articles that have not been scored yet.
func (r *SQLRepository) MissingRelativity(ctx context.Context, limit int) ([]domain.Article, error) {
	b := r.builder.Select(articleColumns...).From(string(domain.TableRawArticle)).
		Where(sq.Eq{"relativity_score": nil}).
		OrderBy("created_at ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return r.selectArticles(ctx, b)
}

// StagedAboveScore returns staged articles scored above threshold that were not promoted yet.
// Rows whose url already exists in the main table are included; promotion skips and closes them.
func (r *SQLRepository) StagedAboveScore(ctx context.Context, threshold int) ([]domain.Article, error) {
	b := r.builder.Select(articleColumns...).From(string(domain.TableRawArticle)).
		Where(sq.Gt{"relativity_score": threshold}).
		Where(sq.NotEq{"status": string(domain.StatusDone)}).
		OrderBy("created_at ASC")
	return r.selectArticles(ctx, b)
}

// CountArticles returns the number of rows in the table.
func (r *SQLRepository) CountArticles(ctx context.Context, table domain.Table) (int, error) {
	name, err := tableName(table)
	if err != nil {
		return 0, crawlerr.Database("count articles", err)
	}
	query, args, err := r.builder.Select("COUNT(*)").From(name).ToSql()
	if err != nil {
		return 0, crawlerr.Database("build count articles", err)
	}
	var n int
	if err := r.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, crawlerr.Database("count articles", err)
	}
	return n, nil
}

func (r *SQLRepository) selectArticles(ctx context.Context, b sq.SelectBuilder) ([]domain.Article, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, crawlerr.Database("build select articles", err)
	}

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, crawlerr.Database("select articles", err)
	}
	defer rows.Close()

	var articles []domain.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, crawlerr.Database("scan article", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, crawlerr.Database("iterate articles", err)
	}
	return articles, nil
}

func scanArticle(rows *sql.Rows) (domain.Article, error) {
	var (
		a                                          domain.Article
		summary, originalSummary                   sql.NullString
		published, originalPublished, nextRetry    sql.NullTime
		imageURL, imagePath, imagePath2x, imageAlt sql.NullString
		content, industry, articleType, aiTitle    sql.NullString
		aiSummary, reason, metadata, crawlKey      sql.NullString
		score, viral                               sql.NullInt64
		status                                     string
	)
	err := rows.Scan(&a.Key, &a.URL, &a.OriginalURL, &a.SourceKey, &a.Title, &summary, &originalSummary,
		&published, &originalPublished,
		&imageURL, &imagePath, &imagePath2x, &imageAlt, &content,
		&industry, &articleType, &aiTitle, &aiSummary, &score, &reason, &viral,
		&metadata, &status, &nextRetry, &crawlKey, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Article{}, fmt.Errorf("scan: %w", err)
	}

	a.Summary, a.OriginalSummary = fromNullString(summary), fromNullString(originalSummary)
	a.PublishedDate, a.OriginalPublishedDate = fromNullTime(published), fromNullTime(originalPublished)
	a.ImageURL, a.ImagePath, a.ImagePath2x, a.ImageAlt = fromNullString(imageURL), fromNullString(imagePath), fromNullString(imagePath2x), fromNullString(imageAlt)
	a.Content = fromNullString(content)
	a.Industry, a.Type, a.AITitle = fromNullString(industry), fromNullString(articleType), fromNullString(aiTitle)
	a.RelativityScore, a.RelativityReason, a.ViralTendency = fromNullInt(score), fromNullString(reason), fromNullInt(viral)
	a.Status = domain.Status(status)
	a.NextRetryAt = fromNullTime(nextRetry)
	a.CrawlKey = fromNullString(crawlKey)

	if aiSummary.Valid && aiSummary.String != "" {
		if err := json.Unmarshal([]byte(aiSummary.String), &a.AISummary); err != nil {
			return domain.Article{}, fmt.Errorf("decode ai_summary: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
			return domain.Article{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return a, nil
}

func articleValues(key string, a *domain.Article) ([]any, error) {
	aiSummary, err := encodeJSON(a.AISummary, len(a.AISummary) == 0)
	if err != nil {
		return nil, err
	}
	metadata, err := encodeJSON(a.Metadata, len(a.Metadata) == 0)
	if err != nil {
		return nil, err
	}
	return []any{
		key, a.URL, a.OriginalURL, a.SourceKey, a.Title, nullString(a.Summary), nullString(a.OriginalSummary),
		nullTime(a.PublishedDate), nullTime(a.OriginalPublishedDate),
		nullString(a.ImageURL), nullString(a.ImagePath), nullString(a.ImagePath2x), nullString(a.ImageAlt), nullString(a.Content),
		nullString(a.Industry), nullString(a.Type), nullString(a.AITitle), aiSummary,
		nullInt(a.RelativityScore), nullString(a.RelativityReason), nullInt(a.ViralTendency),
		metadata, string(a.Status), nullTime(a.NextRetryAt), nullString(a.CrawlKey),
		stamp(a.CreatedAt), stamp(a.UpdatedAt),
	}, nil
}
