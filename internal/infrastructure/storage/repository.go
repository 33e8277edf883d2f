package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	tableSource = "source"
	tableLog    = "crawl_log"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLRepository persists sources, articles and log entries in Postgres or SQLite.
type SQLRepository struct {
	db      *sql.DB
	conn    dbtx
	builder sq.StatementBuilderType
	now     func() time.Time
}

var _ ports.Store = (*SQLRepository)(nil)

// Open connects to the configured driver and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, crawlerr.Database("open", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, crawlerr.Database(pragma, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, crawlerr.Database("ping", err)
	}

	repo := NewSQLRepository(db, driver)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLRepository wires an existing sql.DB; driver selects the placeholder style.
func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	var placeholder sq.PlaceholderFormat = sq.Dollar
	if driver == DriverSQLite {
		placeholder = sq.Question
	}
	return &SQLRepository{
		db:      db,
		conn:    db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:     time.Now,
	}
}

// Close releases the connection pool.
func (r *SQLRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates missing tables and indexes.
func (r *SQLRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := r.conn.ExecContext(ctx, stmt); err != nil {
			return crawlerr.Database("ensure schema", err)
		}
	}
	return nil
}

// WithTransaction runs fn inside one transaction. Nested calls reuse the open transaction.
func (r *SQLRepository) WithTransaction(ctx context.Context, fn func(tx ports.Store) error) error {
	if _, inTx := r.conn.(*sql.Tx); inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return crawlerr.Database("begin", err)
	}

	bound := *r
	bound.conn = tx

	if err := fn(&bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return crawlerr.Database("commit", err)
	}
	return nil
}

// AppendLog stores one diagnostic entry.
func (r *SQLRepository) AppendLog(ctx context.Context, entry domain.LogEntry) error {
	created := entry.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	query, args, err := r.builder.Insert(tableLog).
		Columns("id", "crawl_key", "log_type", "error_type", "source_url", "article_url", "feed_url", "message", "created_at").
		Values(uuid.NewString(), entry.CrawlKey, string(entry.LogType), string(entry.ErrorType),
			nullString(domain.NonEmpty(entry.URLs.SourceURL)),
			nullString(domain.NonEmpty(entry.URLs.ArticleURL)),
			nullString(domain.NonEmpty(entry.URLs.FeedURL)),
			entry.Message, stamp(created)).
		ToSql()
	if err != nil {
		return crawlerr.Database("build append log", err)
	}
	if _, err := r.conn.ExecContext(ctx, query, args...); err != nil {
		return crawlerr.Database("append log", err)
	}
	return nil
}

// stamp normalizes timestamps so both drivers store and compare them consistently.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return stamp(*t)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func fromNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func encodeJSON(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
