package ports

import (
	"context"
	"io"
	"time"

	"NewsIngest/internal/domain"
)

// Fetcher performs GET requests with fixed headers and a timeout.
type Fetcher interface {
	Text(ctx context.Context, url string) (string, error)
	Binary(ctx context.Context, url string) ([]byte, error)
	Stream(ctx context.Context, url string) (io.ReadCloser, error)
}

// SourceRepository persists crawlable origins.
type SourceRepository interface {
	// UpsertSource inserts or updates by normalized url and fills Key on insert.
	UpsertSource(ctx context.Context, source *domain.Source) error
	// InsertSource skips existing urls and returns domain.ErrDuplicate for them.
	InsertSource(ctx context.Context, source *domain.Source) error
	ListSources(ctx context.Context) ([]domain.Source, error)
	SourcesDue(ctx context.Context, builtBefore time.Time) ([]domain.Source, error)
}

// ArticleRepository persists articles in the main and staging tables.
type ArticleRepository interface {
	// InsertArticle returns domain.ErrDuplicate when the normalized url already exists.
	InsertArticle(ctx context.Context, table domain.Table, article *domain.Article) error
	UpdateArticle(ctx context.Context, table domain.Table, article *domain.Article) error
	PendingArticles(ctx context.Context, table domain.Table, now time.Time, limit int) ([]domain.Article, error)
	MissingAIFields(ctx context.Context, publishedSince time.Time, limit int) ([]domain.Article, error)
	MissingRelativity(ctx context.Context, limit int) ([]domain.Article, error)
	StagedAboveScore(ctx context.Context, threshold int) ([]domain.Article, error)
	CountArticles(ctx context.Context, table domain.Table) (int, error)
}

// LogRepository stores diagnostic entries.
type LogRepository interface {
	AppendLog(ctx context.Context, entry domain.LogEntry) error
}

// Store is the full persistence collaborator.
type Store interface {
	SourceRepository
	ArticleRepository
	LogRepository
	// WithTransaction runs fn against a store bound to one transaction,
	// committing on nil and rolling back on error.
	WithTransaction(ctx context.Context, fn func(tx Store) error) error
}

// FileStore writes pipeline assets below a root directory.
type FileStore interface {
	// WriteFile creates parent directories as needed and returns the path relative to the root.
	WriteFile(rel string, data []byte) (string, error)
	ReadFile(rel string) ([]byte, error)
	Exists(rel string) bool
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string
	Content string
}

// CompletionRequest asks a model for the next assistant turn.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []ChatMessage
	MaxTokens int
}

// Completion is the first choice of a reply plus token usage.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Completer talks to a chat-completion model.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// Notifier streams run digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
