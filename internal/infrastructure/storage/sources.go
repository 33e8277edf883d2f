package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
)

var sourceColumns = []string{
	"id", "url", "original_url", "rss_url", "name", "type", "status", "adapter", "last_build_date",
	"icon_16_url", "icon_32_url", "icon_largest_url", "icon_16_path", "icon_32_path", "icon_largest_path",
	"crawl_key", "created_at", "updated_at",
}

// UpsertSource updates by key when set, otherwise inserts or updates by url.
func (r *SQLRepository) UpsertSource(ctx context.Context, source *domain.Source) error {
	now := r.now()
	source.UpdatedAt = now
	if source.Key != "" {
		return r.updateSource(ctx, source)
	}

	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	key := uuid.NewString()

	query, args, err := r.builder.Insert(tableSource).
		Columns(sourceColumns...).
		Values(sourceValues(key, source)...).
		Suffix(`ON CONFLICT (url) DO UPDATE SET
			rss_url = COALESCE(excluded.rss_url, source.rss_url),
			name = COALESCE(excluded.name, source.name),
			type = excluded.type,
			adapter = excluded.adapter,
			updated_at = excluded.updated_at
			RETURNING id`).
		ToSql()
	if err != nil {
		return crawlerr.Database("build upsert source", err)
	}

	if err := r.conn.QueryRowContext(ctx, query, args...).Scan(&source.Key); err != nil {
		return crawlerr.Database("upsert source "+source.URL, err)
	}
	return nil
}

// InsertSource adds a newly discovered source and reports existing ones as duplicates.
func (r *SQLRepository) InsertSource(ctx context.Context, source *domain.Source) error {
	now := r.now()
	if source.CreatedAt.IsZero() {
		source.CreatedAt = now
	}
	source.UpdatedAt = now
	if source.Status == "" {
		source.Status = domain.StatusPending
	}
	key := uuid.NewString()

	query, args, err := r.builder.Insert(tableSource).
		Columns(sourceColumns...).
		Values(sourceValues(key, source)...).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return crawlerr.Database("build insert source", err)
	}

	res, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return crawlerr.Database("insert source "+source.URL, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrDuplicate
	}
	source.Key = key
	return nil
}

func (r *SQLRepository) updateSource(ctx context.Context, source *domain.Source) error {
	query, args, err := r.builder.Update(tableSource).
		SetMap(map[string]any{
			"url":               source.URL,
			"rss_url":           nullString(source.RSSURL),
			"name":              nullString(source.Name),
			"type":              string(sourceType(source)),
			"status":            string(source.Status),
			"adapter":           source.Adapter,
			"last_build_date":   nullTime(source.LastBuildDate),
			"icon_16_url":       nullString(source.Icon16URL),
			"icon_32_url":       nullString(source.Icon32URL),
			"icon_largest_url":  nullString(source.IconLargestURL),
			"icon_16_path":      nullString(source.Icon16Path),
			"icon_32_path":      nullString(source.Icon32Path),
			"icon_largest_path": nullString(source.IconLargestPath),
			"crawl_key":         nullString(source.CrawlKey),
			"updated_at":        stamp(source.UpdatedAt),
		}).
		Where(sq.Eq{"id": source.Key}).
		ToSql()
	if err != nil {
		return crawlerr.Database("build update source", err)
	}
	if _, err := r.conn.ExecContext(ctx, query, args...); err != nil {
		return crawlerr.Database("update source "+source.URL, err)
	}
	return nil
}

// ListSources returns every source ordered by creation.
func (r *SQLRepository) ListSources(ctx context.Context) ([]domain.Source, error) {
	return r.selectSources(ctx, r.builder.Select(sourceColumns...).From(tableSource).OrderBy("created_at ASC"))
}

// SourcesDue returns sources that are unfinished, never built, feedless websites, or built before the cutoff.
func (r *SQLRepository) SourcesDue(ctx context.Context, builtBefore time.Time) ([]domain.Source, error) {
	return r.selectSources(ctx, r.builder.Select(sourceColumns...).From(tableSource).
		Where(sq.Or{
			sq.NotEq{"status": string(domain.StatusDone)},
			sq.Eq{"last_build_date": nil},
			sq.And{
				sq.Or{sq.Eq{"type": string(domain.SourceWebsite)}, sq.Eq{"type": ""}},
				sq.Eq{"rss_url": nil},
			},
			sq.Lt{"last_build_date": stamp(builtBefore)},
		}).
		OrderBy("created_at ASC"))
}

func (r *SQLRepository) selectSources(ctx context.Context, b sq.SelectBuilder) ([]domain.Source, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, crawlerr.Database("build select sources", err)
	}

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, crawlerr.Database("select sources", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, crawlerr.Database("scan source", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, crawlerr.Database("iterate sources", err)
	}
	return sources, nil
}

func scanSource(rows *sql.Rows) (domain.Source, error) {
	var (
		s                                domain.Source
		rss, name, crawlKey              sql.NullString
		i16u, i32u, ilu, i16p, i32p, ilp sql.NullString
		sourceType, status               string
		lastBuild                        sql.NullTime
	)
	err := rows.Scan(&s.Key, &s.URL, &s.OriginalURL, &rss, &name, &sourceType, &status, &s.Adapter, &lastBuild,
		&i16u, &i32u, &ilu, &i16p, &i32p, &ilp, &crawlKey, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Source{}, fmt.Errorf("scan: %w", err)
	}
	s.RSSURL = fromNullString(rss)
	s.Name = fromNullString(name)
	s.Type = domain.SourceType(sourceType)
	s.Status = domain.Status(status)
	s.LastBuildDate = fromNullTime(lastBuild)
	s.Icon16URL, s.Icon32URL, s.IconLargestURL = fromNullString(i16u), fromNullString(i32u), fromNullString(ilu)
	s.Icon16Path, s.Icon32Path, s.IconLargestPath = fromNullString(i16p), fromNullString(i32p), fromNullString(ilp)
	s.CrawlKey = fromNullString(crawlKey)
	return s, nil
}

func sourceValues(key string, s *domain.Source) []any {
	status := s.Status
	if status == "" {
		status = domain.StatusPending
	}
	original := s.OriginalURL
	if original == "" {
		original = s.URL
	}
	return []any{
		key, s.URL, original, nullString(s.RSSURL), nullString(s.Name), string(sourceType(s)), string(status), s.Adapter,
		nullTime(s.LastBuildDate),
		nullString(s.Icon16URL), nullString(s.Icon32URL), nullString(s.IconLargestURL),
		nullString(s.Icon16Path), nullString(s.Icon32Path), nullString(s.IconLargestPath),
		nullString(s.CrawlKey), stamp(s.CreatedAt), stamp(s.UpdatedAt),
	}
}

func sourceType(s *domain.Source) domain.SourceType {
	if s.Type == "" {
		return domain.SourceWebsite
	}
	return s.Type
}
