package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsIngest/internal/scanner"
)

type manualDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *manualDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *manualDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerRunsPipelineOnTrigger(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	driver := &manualDriver{}
	s := NewScheduler(driver, h.pipeline(nil, scanner.NewRegistry()), nil)

	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, driver.job)

	driver.job(time.Now())
	require.Len(t, h.notifier.digests, 1)
	assert.Contains(t, h.notifier.digests[0], "NewsIngest run ")

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)
}

func TestSchedulerWithoutDriver(t *testing.T) {
	s := NewScheduler(nil, nil, nil)
	assert.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
}
