package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRespectsConcurrencyBound(t *testing.T) {
	t.Parallel()

	for _, k := range []int{1, 3, 8, 50} {
		items := make([]int, 40)
		var active, peak atomic.Int64

		stats, err := Run(context.Background(), items, k, func(_ context.Context, _ int) error {
			now := active.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			return nil
		}, nil)

		require.NoError(t, err)
		assert.LessOrEqual(t, peak.Load(), int64(k), "k=%d", k)
		assert.Equal(t, len(items), stats.Completed)
		assert.Zero(t, stats.Failed)
	}
}

func TestRunDispatchesEachItemOnce(t *testing.T) {
	t.Parallel()

	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	var mu sync.Mutex
	seen := map[int]int{}
	_, err := Run(context.Background(), items, 7, func(_ context.Context, item int) error {
		mu.Lock()
		seen[item]++
		mu.Unlock()
		return nil
	}, nil)

	require.NoError(t, err)
	require.Len(t, seen, len(items))
	for item, count := range seen {
		assert.Equal(t, 1, count, "item %d", item)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	items := []int{0, 1, 2, 3, 4, 5}
	var done atomic.Int64
	var mu sync.Mutex
	var failedItems []int

	stats, err := Run(context.Background(), items, 2, func(_ context.Context, item int) error {
		switch item {
		case 2:
			return errors.New("boom")
		case 4:
			panic("handler exploded")
		}
		done.Add(1)
		return nil
	}, func(item int, _ error) {
		mu.Lock()
		failedItems = append(failedItems, item)
		mu.Unlock()
	})

	require.NoError(t, err)
	assert.Equal(t, int64(4), done.Load())
	assert.Equal(t, 6, stats.Completed)
	assert.Equal(t, 2, stats.Failed)
	assert.ElementsMatch(t, []int{2, 4}, failedItems)
}

func TestRunRejectsZeroConcurrency(t *testing.T) {
	t.Parallel()

	called := false
	_, err := Run(context.Background(), []int{1}, 0, func(context.Context, int) error {
		called = true
		return nil
	}, nil)

	require.ErrorIs(t, err, ErrInvalidConcurrency)
	assert.False(t, called)
}

func TestRunEmptyInput(t *testing.T) {
	t.Parallel()

	stats, err := Run(context.Background(), nil, 4, func(context.Context, string) error { return nil }, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Completed)
}
