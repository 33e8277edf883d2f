package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"NewsIngest/internal/ports"
)

// CronScheduler runs a job on a five-field cron expression in a fixed timezone.
// Overlapping runs are skipped and job panics are recovered and logged.
type CronScheduler struct {
	spec     string
	location *time.Location
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler configured via cron expression string.
func NewCronScheduler(spec string, location *time.Location, logger *slog.Logger) *CronScheduler {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CronScheduler{spec: spec, location: location, logger: logger}
}

// Start registers job and starts the cron loop. It returns an error for an invalid expression.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron != nil {
		return nil
	}

	log := cronLogger{c.logger}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	runner := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(c.location),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)

	if _, err := runner.AddFunc(c.spec, func() { job(time.Now().In(c.location)) }); err != nil {
		return fmt.Errorf("schedule %q: %w", c.spec, err)
	}

	runner.Start()
	c.cron = runner
	c.logger.Info("scheduler started", "cron", c.spec, "timezone", c.location.String())

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()
	return nil
}

// Stop halts the loop and waits for a running job to finish or ctx to expire.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.cron
	c.cron = nil
	c.mu.Unlock()

	if runner == nil {
		return nil
	}
	select {
	case <-runner.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next reports the next activation after t, for logging.
func (c *CronScheduler) Next(t time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(c.spec)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(t.In(c.location)), nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
