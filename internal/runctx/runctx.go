// Package runctx carries the per-run state that every pipeline step receives explicitly:
// the crawl identifier, the log sink and the store handle.
package runctx

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/ports"
)

// Run is created once per pipeline invocation.
type Run struct {
	Key       string
	StartedAt time.Time
	Store     ports.Store

	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries []domain.LogEntry
}

// New starts a run with a fresh crawl key.
func New(store ports.Store, logger *slog.Logger) *Run {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	key := uuid.NewString()
	return &Run{
		Key:       key,
		StartedAt: time.Now(),
		Store:     store,
		logger:    logger.With("crawl_key", key),
		now:       time.Now,
	}
}

// Logger returns the run-scoped process logger.
func (r *Run) Logger() *slog.Logger {
	return r.logger
}

// Info appends an informational entry.
func (r *Run) Info(urls domain.LogURLs, msg string) {
	r.logger.Info(msg, urlAttrs(urls)...)
	r.append(domain.LogEntry{
		LogType:   domain.LogInfo,
		ErrorType: domain.ErrorNone,
		URLs:      urls,
		Message:   msg,
	})
}

// Error appends a failure entry typed from err's classification.
func (r *Run) Error(urls domain.LogURLs, msg string, err error) {
	r.Errorf(crawlerr.TypeOf(err), urls, msg, err)
}

// Errorf appends a failure entry with an explicit type.
func (r *Run) Errorf(errType domain.ErrorType, urls domain.LogURLs, msg string, err error) {
	if errType == domain.ErrorNone {
		errType = domain.ErrorUnknown
	}
	message := msg
	if err != nil {
		message = msg + ": " + err.Error()
	}
	attrs := append(urlAttrs(urls), "error_type", string(errType))
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	r.logger.Error(msg, attrs...)
	r.append(domain.LogEntry{
		LogType:   domain.LogError,
		ErrorType: errType,
		URLs:      urls,
		Message:   message,
	})
}

// Entries returns a snapshot of the appended entries.
func (r *Run) Entries() []domain.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ErrorCount counts failure entries.
func (r *Run) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.LogType == domain.LogError {
			n++
		}
	}
	return n
}

// Flush persists entries one by one. A failed append is reported and skipped.
func (r *Run) Flush(ctx context.Context) int {
	if r.Store == nil {
		return 0
	}
	written := 0
	for _, entry := range r.Entries() {
		if err := r.Store.AppendLog(ctx, entry); err != nil {
			r.logger.Warn("append log entry failed", "error", err)
			continue
		}
		written++
	}
	return written
}

func (r *Run) append(entry domain.LogEntry) {
	entry.CrawlKey = r.Key
	entry.CreatedAt = r.now()
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
}

func urlAttrs(urls domain.LogURLs) []any {
	attrs := make([]any, 0, 6)
	if urls.SourceURL != "" {
		attrs = append(attrs, "source_url", urls.SourceURL)
	}
	if urls.ArticleURL != "" {
		attrs = append(attrs, "article_url", urls.ArticleURL)
	}
	if urls.FeedURL != "" {
		attrs = append(attrs, "feed_url", urls.FeedURL)
	}
	return attrs
}
