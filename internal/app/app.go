package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"NewsIngest/internal/config"
	"NewsIngest/internal/enrich"
	"NewsIngest/internal/extract"
	"NewsIngest/internal/icons"
	"NewsIngest/internal/infrastructure/httpfetch"
	"NewsIngest/internal/infrastructure/llm"
	"NewsIngest/internal/infrastructure/parser"
	"NewsIngest/internal/infrastructure/scheduler"
	"NewsIngest/internal/infrastructure/storage"
	"NewsIngest/internal/infrastructure/telegram"
	"NewsIngest/internal/logging"
	"NewsIngest/internal/metrics"
	"NewsIngest/internal/ports"
	"NewsIngest/internal/resolver"
	"NewsIngest/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.SQLRepository
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
}

// New opens the store and builds every adapter the pipeline needs.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	if cfg.Database.Driver == storage.DriverSQLite {
		if err := ensureParent(cfg.Database.DSN); err != nil {
			return nil, err
		}
	}
	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	files := storage.NewDiskStore(cfg.Storage.AssetsDir)
	fetcher := httpfetch.New(nil, httpfetch.Options{
		Timeout:           cfg.Crawl.RequestTimeout,
		UserAgent:         cfg.Crawl.UserAgent,
		RequestsPerSecond: cfg.Crawl.RequestsPerSecond,
	})
	stats := metrics.New()

	adapters, err := parser.NewRegistry(cfg.Sites, baseLogger.With("component", "sites"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("site adapters: %w", err)
	}

	cascade := icons.New(fetcher, files, baseLogger.With("component", "icons"))
	sourceResolver := resolver.New(fetcher, cascade, resolver.Options{
		RefreshDays:   cfg.Crawl.RefreshDays,
		NameOverrides: cfg.NameOverrides,
	})
	extractor := extract.NewExtractor(fetcher, files, extract.ImageBox{
		Width:  cfg.Images.Width,
		Height: cfg.Images.Height,
	}, cfg.AI.RequireAI)

	var worker *enrich.Worker
	if cfg.AI.Enabled() {
		completer, err := llm.NewCompleter(cfg.AI)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ai provider: %w", err)
		}
		worker = enrich.NewWorker(completer, files, enrich.TaxonomyFromConfig(cfg.AI.Taxonomy), enrich.PricingFromConfig(cfg.AI), enrich.Options{
			Model:          cfg.AI.Model,
			MaxTokens:      cfg.AI.MaxTokens,
			SystemPrompt:   cfg.AI.SystemPrompt,
			BatchSize:      cfg.AI.BatchSize,
			Concurrency:    cfg.AI.Concurrency,
			TestMode:       cfg.AI.TestMode,
			Threshold:      cfg.AI.RelativityThreshold,
			RecencyDays:    cfg.AI.RecencyDays,
			CandidateLimit: cfg.AI.CandidateLimit,
			RequireAI:      cfg.AI.RequireAI,
		}, stats)
	} else {
		baseLogger.Info("ai enrichment disabled", "provider", cfg.AI.Provider)
	}

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram); tg.Enabled() {
		notifier = tg
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Store:     store,
		Fetcher:   fetcher,
		Resolver:  sourceResolver,
		Feeds:     extract.NewFeedParser(fetcher, cfg.Crawl.LookbackDays),
		Extractor: extractor,
		Adapters:  adapters,
		Enricher:  worker,
		Notifier:  notifier,
		Metrics:   stats,
		Logger:    baseLogger.With("component", "pipeline"),
		Seeds:     cfg.Sources,
		Options: usecase.PipelineOptions{
			Concurrency:          cfg.Crawl.Concurrency,
			DirectoryConcurrency: cfg.Crawl.DirectoryConcurrency,
			RetryBatch:           cfg.Crawl.RetryBatch,
			RefreshDays:          cfg.Crawl.RefreshDays,
			MetricsTextfile:      cfg.Metrics.Textfile,
		},
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), baseLogger.With("component", "scheduler"))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler")),
	}, nil
}

// Pipeline exposes the orchestration use case to the CLI.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Serve starts the cron loop and blocks until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	a.logger.Info("shutting down scheduler")
	return a.scheduler.Stop(context.Background())
}

// Close releases the store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func ensureParent(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	return nil
}
