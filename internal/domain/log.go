package domain

import "time"

// LogType separates informational entries from failures.
type LogType string

const (
	LogInfo  LogType = "info"
	LogError LogType = "error"
)

// ErrorType classifies failures for the log stream.
type ErrorType string

const (
	ErrorCrawl    ErrorType = "crawl"
	ErrorAI       ErrorType = "ai"
	ErrorDatabase ErrorType = "database"
	ErrorNetwork  ErrorType = "network"
	ErrorParse    ErrorType = "parse"
	ErrorIO       ErrorType = "io"
	ErrorUnknown  ErrorType = "unknown"
	ErrorNone     ErrorType = "none"
)

// LogURLs are the locations a log entry refers to; any may be empty.
type LogURLs struct {
	SourceURL  string
	ArticleURL string
	FeedURL    string
}

// LogEntry is an append-only diagnostic record owned by a run.
type LogEntry struct {
	CrawlKey  string
	LogType   LogType
	ErrorType ErrorType
	URLs      LogURLs
	Message   string
	CreatedAt time.Time
}
