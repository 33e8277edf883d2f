package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"NewsIngest/internal/backoff"
	"NewsIngest/internal/config"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/enrich"
	"NewsIngest/internal/extract"
	"NewsIngest/internal/metrics"
	"NewsIngest/internal/pool"
	"NewsIngest/internal/ports"
	"NewsIngest/internal/resolver"
	"NewsIngest/internal/runctx"
	"NewsIngest/internal/scanner"
	"NewsIngest/internal/urlutil"
)

// Job names used in logs and metrics.
const (
	JobCrawl  = "crawl"
	JobRetry  = "retry"
	JobScore  = "score"
	JobEnrich = "enrich"
	JobRun    = "run"
)

// PipelineOptions bounds the crawl.
type PipelineOptions struct {
	Concurrency          int
	DirectoryConcurrency int
	RetryBatch           int
	RefreshDays          int
	MetricsTextfile      string
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Store     ports.Store
	Fetcher   ports.Fetcher
	Resolver  *resolver.Resolver
	Feeds     *extract.FeedParser
	Extractor *extract.Extractor
	Adapters  *scanner.Registry
	Enricher  *enrich.Worker
	Notifier  ports.Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Seeds     []config.SourceConfig
	Options   PipelineOptions
}

// Pipeline implements the crawl, retry and enrichment workflow.
type Pipeline struct {
	store     ports.Store
	fetcher   ports.Fetcher
	resolver  *resolver.Resolver
	feeds     *extract.FeedParser
	extractor *extract.Extractor
	adapters  *scanner.Registry
	enricher  *enrich.Worker
	notifier  ports.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	seeds     []config.SourceConfig
	opts      PipelineOptions
	now       func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := deps.Options
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.DirectoryConcurrency <= 0 {
		opts.DirectoryConcurrency = 1
	}
	return &Pipeline{
		store:     deps.Store,
		fetcher:   deps.Fetcher,
		resolver:  deps.Resolver,
		feeds:     deps.Feeds,
		extractor: deps.Extractor,
		adapters:  deps.Adapters,
		enricher:  deps.Enricher,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logger,
		seeds:     deps.Seeds,
		opts:      opts,
		now:       time.Now,
	}
}

// crawlStats is shared by the source lanes of one run.
type crawlStats struct {
	sources    atomic.Int64
	failed     atomic.Int64
	inserted   atomic.Int64
	duplicates atomic.Int64
	done       atomic.Int64
	pending    atomic.Int64
	discovered atomic.Int64

	retried   atomic.Int64
	completed atomic.Int64

	scored     atomic.Int64
	promoted   atomic.Int64
	categories atomic.Int64
	cost       atomic.Int64 // micro-units
}

// Crawl resolves due sources, ingests their entries and runs one retry pass.
func (p *Pipeline) Crawl(ctx context.Context) error {
	run, stats := p.begin(JobCrawl)
	err := p.crawl(ctx, run, stats)
	if err == nil {
		err = p.retry(ctx, run, stats)
	}
	p.finish(ctx, run, JobCrawl, stats, true)
	return err
}

// Retry re-attempts due pending articles in both tables.
func (p *Pipeline) Retry(ctx context.Context) error {
	run, stats := p.begin(JobRetry)
	err := p.retry(ctx, run, stats)
	p.finish(ctx, run, JobRetry, stats, false)
	return err
}

// Score rates staged articles and promotes the relevant ones.
func (p *Pipeline) Score(ctx context.Context) error {
	if p.enricher == nil {
		p.logger.Info("ai disabled, skipping score")
		return nil
	}
	run, stats := p.begin(JobScore)
	err := p.score(ctx, run, stats)
	p.finish(ctx, run, JobScore, stats, false)
	return err
}

// Enrich categorizes recent articles that still lack AI fields.
func (p *Pipeline) Enrich(ctx context.Context) error {
	if p.enricher == nil {
		p.logger.Info("ai disabled, skipping enrich")
		return nil
	}
	run, stats := p.begin(JobEnrich)
	err := p.categorize(ctx, run, stats)
	p.finish(ctx, run, JobEnrich, stats, false)
	return err
}

// Run performs crawl, retry, score and enrich under a single crawl key.
func (p *Pipeline) Run(ctx context.Context) error {
	run, stats := p.begin(JobRun)
	var errs []error
	if err := p.crawl(ctx, run, stats); err != nil {
		errs = append(errs, err)
	} else if err := p.retry(ctx, run, stats); err != nil {
		errs = append(errs, err)
	}
	if p.enricher != nil {
		if err := p.score(ctx, run, stats); err != nil {
			errs = append(errs, err)
		}
		if err := p.categorize(ctx, run, stats); err != nil {
			errs = append(errs, err)
		}
	}
	p.finish(ctx, run, JobRun, stats, true)
	return errors.Join(errs...)
}

func (p *Pipeline) begin(job string) (*runctx.Run, *crawlStats) {
	run := runctx.New(p.store, p.logger)
	run.StartedAt = p.now()
	run.Info(domain.LogURLs{}, job+" started")
	return run, &crawlStats{}
}

func (p *Pipeline) crawl(ctx context.Context, run *runctx.Run, stats *crawlStats) error {
	p.seed(ctx, run)

	sources, err := p.store.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	due, err := p.store.SourcesDue(ctx, p.now().AddDate(0, 0, -p.opts.RefreshDays))
	if err != nil {
		return fmt.Errorf("sources due: %w", err)
	}
	run.Info(domain.LogURLs{}, fmt.Sprintf("crawling %d sources, %d due for refresh", len(sources), len(due)))

	_, err = pool.Run(ctx, sources, p.opts.Concurrency, func(ctx context.Context, src domain.Source) error {
		return p.crawlSource(ctx, run, stats, src)
	}, func(src domain.Source, err error) {
		stats.failed.Add(1)
		p.metrics.Source(metrics.ResultFailed)
		run.Errorf(domain.ErrorCrawl, domain.LogURLs{SourceURL: src.URL}, "crawl source", err)
	})
	return err
}

// seed upserts the configured sources; existing rows keep their resolved fields.
func (p *Pipeline) seed(ctx context.Context, run *runctx.Run) {
	for _, seed := range p.seeds {
		normalized, err := urlutil.Normalize(seed.URL)
		if err != nil {
			run.Errorf(domain.ErrorParse, domain.LogURLs{SourceURL: seed.URL}, "seed source", err)
			continue
		}
		src := domain.Source{
			URL:         normalized,
			OriginalURL: seed.URL,
			RSSURL:      domain.NonEmpty(seed.RSS),
			Name:        domain.NonEmpty(seed.Name),
			Type:        domain.SourceType(seed.Type),
			Adapter:     seed.Adapter,
		}
		if err := p.store.UpsertSource(ctx, &src); err != nil {
			run.Error(domain.LogURLs{SourceURL: seed.URL}, "seed source", err)
		}
	}
}

// crawlSource runs the strictly sequential per-source flow:
// resolve when due, persist the source, gather drafts, then ingest each draft.
func (p *Pipeline) crawlSource(ctx context.Context, run *runctx.Run, stats *crawlStats, src domain.Source) error {
	stats.sources.Add(1)
	urls := domain.LogURLs{SourceURL: src.URL}

	if p.resolver != nil && p.resolver.Due(&src) {
		if err := p.resolver.Resolve(ctx, run, &src); err != nil {
			stats.failed.Add(1)
			p.metrics.Source(metrics.ResultFailed)
		} else {
			p.metrics.Source(metrics.ResultResolved)
		}
	}

	if err := p.store.UpsertSource(ctx, &src); err != nil {
		run.Error(urls, "save source", err)
		return nil
	}

	drafts := p.drafts(ctx, run, &src)
	if len(drafts) == 0 {
		return nil
	}

	table := domain.TableArticle
	if src.Type == domain.SourceDirectory {
		table = domain.TableRawArticle
	}
	dir := urlutil.DirName(src.URL)
	for _, draft := range drafts {
		if ctx.Err() != nil {
			break
		}
		p.ingest(ctx, run, stats, &src, table, dir, draft)
	}
	return nil
}

// drafts prefers a registered site adapter and falls back to the feed.
func (p *Pipeline) drafts(ctx context.Context, run *runctx.Run, src *domain.Source) []domain.ArticleDraft {
	urls := domain.LogURLs{SourceURL: src.URL}

	if src.Adapter != "" {
		adapter, err := p.adapters.Resolve(src.Adapter)
		if err != nil {
			run.Errorf(domain.ErrorCrawl, urls, "site adapter", err)
		} else {
			drafts, err := scanner.Collect(ctx, p.fetcher, adapter, p.opts.DirectoryConcurrency)
			if err != nil {
				run.Error(urls, "site adapter "+adapter.Key(), err)
			}
			return p.feeds.Filter(drafts)
		}
	}

	feedURL := domain.Value(src.RSSURL)
	if feedURL == "" {
		return nil
	}
	urls.FeedURL = feedURL
	drafts, err := p.feeds.Fetch(ctx, feedURL)
	if err != nil {
		run.Error(urls, "read feed", err)
		return nil
	}
	return drafts
}

func (p *Pipeline) ingest(ctx context.Context, run *runctx.Run, stats *crawlStats, src *domain.Source, table domain.Table, dir string, draft domain.ArticleDraft) {
	urls := domain.LogURLs{SourceURL: src.URL, ArticleURL: draft.URL}

	if draft.SourceURL != "" {
		p.discover(ctx, run, stats, src, draft.SourceURL)
	}

	article, err := extract.NewArticle(draft, src.Key, run.Key, p.now())
	if err != nil {
		run.Error(urls, "build article", err)
		return
	}

	if err := p.store.InsertArticle(ctx, table, article); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			stats.duplicates.Add(1)
			p.metrics.Article(metrics.ResultDuplicate)
			return
		}
		run.Error(urls, "insert article", err)
		return
	}
	stats.inserted.Add(1)
	p.metrics.Article(metrics.ResultInserted)

	status := p.extractor.Complete(ctx, run, dir, article)
	if err := p.store.UpdateArticle(ctx, table, article); err != nil {
		run.Error(urls, "update article", err)
		return
	}
	if status == domain.StatusDone {
		stats.done.Add(1)
		p.metrics.Article(metrics.ResultDone)
	} else {
		stats.pending.Add(1)
		p.metrics.Article(metrics.ResultPending)
	}
}

// discover records the origin site of a directory entry as a pending website source.
func (p *Pipeline) discover(ctx context.Context, run *runctx.Run, stats *crawlStats, from *domain.Source, siteURL string) {
	normalized, err := urlutil.Normalize(siteURL)
	if err != nil || urlutil.Origin(normalized) == urlutil.Origin(from.URL) {
		return
	}
	found := domain.Source{
		URL:         normalized,
		OriginalURL: siteURL,
		Type:        domain.SourceWebsite,
		Status:      domain.StatusPending,
	}
	switch err := p.store.InsertSource(ctx, &found); {
	case err == nil:
		stats.discovered.Add(1)
		run.Info(domain.LogURLs{SourceURL: normalized}, "discovered source via "+from.URL)
	case !errors.Is(err, domain.ErrDuplicate):
		run.Error(domain.LogURLs{SourceURL: normalized}, "insert discovered source", err)
	}
}

// retry runs the backoff controller over the main table, then the staging table.
func (p *Pipeline) retry(ctx context.Context, run *runctx.Run, stats *crawlStats) error {
	sources, err := p.store.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	dirs := make(map[string]string, len(sources))
	for _, src := range sources {
		dirs[src.Key] = urlutil.DirName(src.URL)
	}

	attempt := func(ctx context.Context, _ domain.Table, article *domain.Article) domain.Status {
		return p.extractor.Complete(ctx, run, dirs[article.SourceKey], article)
	}
	onError := func(article domain.Article, err error) {
		run.Error(domain.LogURLs{ArticleURL: article.URL}, "reschedule article", err)
	}
	controller := backoff.NewController(p.store, attempt, p.opts.RetryBatch, onError)

	for _, table := range []domain.Table{domain.TableArticle, domain.TableRawArticle} {
		report, err := controller.Run(ctx, table)
		if err != nil {
			return fmt.Errorf("retry %s: %w", table, err)
		}
		stats.retried.Add(int64(report.Selected))
		stats.completed.Add(int64(report.Completed))
		run.Info(domain.LogURLs{}, fmt.Sprintf("retry %s: %d selected, %d done, %d pending, %d failed",
			table, report.Selected, report.Completed, report.Pending, report.Failed))
	}
	return nil
}

func (p *Pipeline) score(ctx context.Context, run *runctx.Run, stats *crawlStats) error {
	report, err := p.enricher.Score(ctx, run)
	stats.scored.Add(int64(report.Accepted))
	stats.promoted.Add(int64(report.Promoted))
	stats.cost.Add(int64(report.Cost * 1e6))
	return err
}

func (p *Pipeline) categorize(ctx context.Context, run *runctx.Run, stats *crawlStats) error {
	report, err := p.enricher.Categorize(ctx, run)
	stats.categories.Add(int64(report.Accepted))
	stats.cost.Add(int64(report.Cost * 1e6))
	return err
}

// finish logs the timing line, flushes the log entries, exports metrics and optionally notifies.
func (p *Pipeline) finish(ctx context.Context, run *runctx.Run, job string, stats *crawlStats, notify bool) {
	elapsed := p.now().Sub(run.StartedAt)
	run.Info(domain.LogURLs{}, fmt.Sprintf("%s finished in %s", job, elapsed.Round(time.Millisecond)))

	written := run.Flush(ctx)
	run.Logger().Debug("log entries flushed", "written", written)

	p.metrics.Observe(job, elapsed)
	if err := p.metrics.WriteTextfile(p.opts.MetricsTextfile); err != nil {
		run.Logger().Warn("metrics export failed", "error", err)
	}

	if !notify || p.notifier == nil {
		return
	}
	if err := p.notifier.PublishDigest(ctx, buildSummary(job, run, stats, elapsed)); err != nil {
		run.Logger().Warn("notify failed", "error", err)
	}
}

func buildSummary(job string, run *runctx.Run, stats *crawlStats, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "NewsIngest %s %s\n", job, run.Key)
	fmt.Fprintf(&b, "Sources: %d (%d failed, %d discovered)\n", stats.sources.Load(), stats.failed.Load(), stats.discovered.Load())
	fmt.Fprintf(&b, "Articles: %d new, %d duplicates, %d done, %d pending\n",
		stats.inserted.Load(), stats.duplicates.Load(), stats.done.Load(), stats.pending.Load())
	fmt.Fprintf(&b, "Retried: %d (%d completed)\n", stats.retried.Load(), stats.completed.Load())
	if n := stats.scored.Load() + stats.categories.Load(); n > 0 {
		fmt.Fprintf(&b, "AI: %d scored, %d promoted, %d categorized, cost %.4f\n",
			stats.scored.Load(), stats.promoted.Load(), stats.categories.Load(), float64(stats.cost.Load())/1e6)
	}
	fmt.Fprintf(&b, "Errors: %d\nDuration: %s", run.ErrorCount(), elapsed.Round(time.Second))
	return b.String()
}
