// Package enrich adds model-derived fields to articles: relevance scoring of staged
// articles with promotion into the main table, and full categorization of recent articles.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/domain"
	"NewsIngest/internal/pool"
	"NewsIngest/internal/ports"
	"NewsIngest/internal/runctx"
)

const (
	JobRelativity     = "relativity"
	JobCategorization = "categorization"

	testModeBatchSize = 3
	primingAck        = "OK"
)

// Recorder observes model calls, typically for metrics.
type Recorder interface {
	AICall(job string, ok bool, cost float64)
}

// Options tune batching and selection.
type Options struct {
	Model          string
	MaxTokens      int
	SystemPrompt   string
	BatchSize      int
	Concurrency    int
	TestMode       bool
	Threshold      int
	RecencyDays    int
	CandidateLimit int
	RequireAI      bool
}

// Report summarizes one job.
type Report struct {
	Candidates int
	Accepted   int
	Rejected   int
	Promoted   int
	Cost       float64
}

// Worker runs the two enrichment jobs.
type Worker struct {
	completer ports.Completer
	files     ports.FileStore
	taxonomy  Taxonomy
	pricing   Pricing
	opts      Options
	recorder  Recorder
	now       func() time.Time
}

// NewWorker wires the model client; files may be nil, in which case prompts carry no body text.
func NewWorker(completer ports.Completer, files ports.FileStore, taxonomy Taxonomy, pricing Pricing, opts Options, recorder Recorder) *Worker {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Worker{
		completer: completer,
		files:     files,
		taxonomy:  taxonomy,
		pricing:   pricing,
		opts:      opts,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Score rates staged articles that have no relativity score yet, then promotes every staged
// article above the threshold into the main table in one transaction.
func (w *Worker) Score(ctx context.Context, run *runctx.Run) (Report, error) {
	candidates, err := run.Store.MissingRelativity(ctx, w.opts.CandidateLimit)
	if err != nil {
		return Report{}, fmt.Errorf("load unscored articles: %w", err)
	}

	report := w.process(ctx, run, JobRelativity, candidates, func(a *domain.Article, content string) string {
		return relativityPrompt(a, content)
	}, func(a *domain.Article, reply string) error {
		r, err := ParseRelativity(reply, w.taxonomy)
		if err != nil {
			return err
		}
		if r.Industry != nil {
			a.Industry = r.Industry
		}
		if r.Type != nil {
			a.Type = r.Type
		}
		a.RelativityScore = domain.Ptr(r.Score)
		a.RelativityReason = domain.Ptr(r.Reason)
		return nil
	}, domain.TableRawArticle)

	promoted, err := w.Promote(ctx, run)
	report.Promoted = promoted
	if err != nil {
		return report, err
	}
	return report, nil
}

// Promote copies staged articles scored above the threshold into the main table and marks
// the staged rows done. Either every promotion in the set commits or none does.
func (w *Worker) Promote(ctx context.Context, run *runctx.Run) (int, error) {
	staged, err := run.Store.StagedAboveScore(ctx, w.opts.Threshold)
	if err != nil {
		return 0, fmt.Errorf("load staged articles: %w", err)
	}
	if len(staged) == 0 {
		return 0, nil
	}

	promoted := 0
	err = run.Store.WithTransaction(ctx, func(tx ports.Store) error {
		promoted = 0
		for i := range staged {
			rawRow := staged[i]
			main := rawRow
			main.Key = ""
			main.CreatedAt = time.Time{}
			main.CrawlKey = domain.Ptr(run.Key)
			main.Status = main.CompletionStatus(w.opts.RequireAI)

			if err := tx.InsertArticle(ctx, domain.TableArticle, &main); err != nil {
				if !errors.Is(err, domain.ErrDuplicate) {
					return fmt.Errorf("promote %s: %w", rawRow.URL, err)
				}
			} else {
				promoted++
			}

			rawRow.Status = domain.StatusDone
			if err := tx.UpdateArticle(ctx, domain.TableRawArticle, &rawRow); err != nil {
				return fmt.Errorf("mark staged %s: %w", rawRow.URL, err)
			}
		}
		return nil
	})
	if err != nil {
		run.Error(domain.LogURLs{}, "promote staged articles", err)
		return 0, err
	}
	run.Info(domain.LogURLs{}, fmt.Sprintf("promoted %d staged articles", promoted))
	return promoted, nil
}

// Categorize fills title, summary, industry, type and viral tendency for recent main
// articles that lack them.
func (w *Worker) Categorize(ctx context.Context, run *runctx.Run) (Report, error) {
	since := w.now().AddDate(0, 0, -w.opts.RecencyDays)
	candidates, err := run.Store.MissingAIFields(ctx, since, w.opts.CandidateLimit)
	if err != nil {
		return Report{}, fmt.Errorf("load uncategorized articles: %w", err)
	}

	return w.process(ctx, run, JobCategorization, candidates, func(a *domain.Article, content string) string {
		return categorizationPrompt(a, content)
	}, func(a *domain.Article, reply string) error {
		c, err := ParseCategorization(reply, w.taxonomy)
		if err != nil {
			return err
		}
		a.AITitle = domain.Ptr(c.Title)
		a.AISummary = c.Summary
		a.Industry = domain.Ptr(c.Industry)
		a.Type = domain.Ptr(c.Type)
		a.ViralTendency = domain.Ptr(c.ViralTendency)
		a.Status = a.CompletionStatus(w.opts.RequireAI)
		return nil
	}, domain.TableArticle), nil
}

type promptFunc func(a *domain.Article, content string) string

type applyFunc func(a *domain.Article, reply string) error

// process splits candidates into batches and runs them through the pool. Each batch opens
// with one priming exchange that is replayed as history before every article prompt.
func (w *Worker) process(ctx context.Context, run *runctx.Run, job string, candidates []domain.Article,
	prompt promptFunc, apply applyFunc, table domain.Table) Report {
	batches := w.batches(candidates)

	var (
		mu     sync.Mutex
		report Report
	)
	for _, b := range batches {
		report.Candidates += len(b)
	}

	handler := func(ctx context.Context, batch []domain.Article) error {
		history, primingCost, err := w.prime(ctx, job)
		if err != nil {
			return err
		}

		for i := range batch {
			article := batch[i]
			urls := domain.LogURLs{ArticleURL: article.URL}

			reply, err := w.completer.Complete(ctx, ports.CompletionRequest{
				Model:     w.opts.Model,
				System:    w.opts.SystemPrompt,
				Messages:  append(append([]ports.ChatMessage(nil), history...), ports.ChatMessage{Role: "user", Content: prompt(&article, w.content(&article))}),
				MaxTokens: w.opts.MaxTokens,
			})
			if err != nil {
				w.record(job, false, 0)
				run.Error(urls, job+" request failed", err)
				mu.Lock()
				report.Rejected++
				mu.Unlock()
				continue
			}

			cost := w.pricing.Cost(w.opts.Model, reply.PromptTokens, reply.CompletionTokens)
			if i == 0 {
				cost += primingCost
			}

			if err := apply(&article, reply.Content); err != nil {
				w.record(job, false, cost)
				run.Error(urls, job+" reply rejected", crawlerr.AI("validate reply", err))
				mu.Lock()
				report.Rejected++
				mu.Unlock()
				continue
			}
			w.record(job, true, cost)

			article.AddPrice(cost)
			article.CrawlKey = domain.Ptr(run.Key)
			if err := run.Store.UpdateArticle(ctx, table, &article); err != nil {
				run.Error(urls, "save "+job, err)
				mu.Lock()
				report.Rejected++
				mu.Unlock()
				continue
			}

			mu.Lock()
			report.Accepted++
			report.Cost += cost
			mu.Unlock()
		}
		return nil
	}

	_, err := pool.Run(ctx, batches, w.opts.Concurrency, handler, func(batch []domain.Article, err error) {
		run.Error(domain.LogURLs{}, fmt.Sprintf("%s batch of %d failed", job, len(batch)), err)
		mu.Lock()
		report.Rejected += len(batch)
		mu.Unlock()
	})
	if err != nil {
		run.Errorf(domain.ErrorAI, domain.LogURLs{}, job+" pool", err)
	}

	if !w.pricing.Known(w.opts.Model) && report.Accepted > 0 {
		run.Logger().Warn("no price configured for model, cost recorded as zero", "model", w.opts.Model)
	}
	run.Info(domain.LogURLs{}, fmt.Sprintf("%s: %d accepted, %d rejected of %d", job, report.Accepted, report.Rejected, report.Candidates))
	return report
}

func (w *Worker) prime(ctx context.Context, job string) ([]ports.ChatMessage, float64, error) {
	priming := ports.ChatMessage{Role: "user", Content: w.taxonomy.PrimingPrompt()}
	reply, err := w.completer.Complete(ctx, ports.CompletionRequest{
		Model:     w.opts.Model,
		System:    w.opts.SystemPrompt,
		Messages:  []ports.ChatMessage{priming},
		MaxTokens: w.opts.MaxTokens,
	})
	if err != nil {
		w.record(job, false, 0)
		return nil, 0, crawlerr.AI("priming", err)
	}
	cost := w.pricing.Cost(w.opts.Model, reply.PromptTokens, reply.CompletionTokens)
	w.record(job, true, cost)

	ack := strings.TrimSpace(reply.Content)
	if ack == "" {
		ack = primingAck
	}
	return []ports.ChatMessage{priming, {Role: "assistant", Content: ack}}, cost, nil
}

// batches splits candidates by BatchSize; test mode keeps a single batch of at most three.
func (w *Worker) batches(candidates []domain.Article) [][]domain.Article {
	size := w.opts.BatchSize
	if w.opts.TestMode {
		size = testModeBatchSize
	}

	var out [][]domain.Article
	for start := 0; start < len(candidates); start += size {
		end := min(start+size, len(candidates))
		out = append(out, candidates[start:end])
		if w.opts.TestMode {
			break
		}
	}
	return out
}

func (w *Worker) content(a *domain.Article) string {
	path := domain.Value(a.Content)
	if w.files == nil || path == "" {
		return ""
	}
	data, err := w.files.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func (w *Worker) record(job string, ok bool, cost float64) {
	if w.recorder != nil {
		w.recorder.AICall(job, ok, cost)
	}
}
