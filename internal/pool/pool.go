// Package pool runs a handler over a slice with a fixed number of concurrent lanes.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrInvalidConcurrency is returned for a lane count below one.
var ErrInvalidConcurrency = errors.New("pool: concurrency must be at least 1")

// Stats summarizes a finished run.
type Stats struct {
	Completed int
	Failed    int
}

// Handler processes one item.
type Handler[T any] func(ctx context.Context, item T) error

// Run dispatches every item exactly once across k lanes. Each lane claims the next
// index from a shared cursor until none remain. A failing or panicking handler is
// reported to onError and does not stop the other items. Run returns after every
// claimed item has finished. Cancelling ctx stops lanes from claiming new items.
func Run[T any](ctx context.Context, items []T, k int, handler Handler[T], onError func(item T, err error)) (Stats, error) {
	if k < 1 {
		return Stats{}, ErrInvalidConcurrency
	}
	if k > len(items) {
		k = len(items)
	}

	var (
		cursor    atomic.Int64
		completed atomic.Int64
		failed    atomic.Int64
		wg        sync.WaitGroup
	)

	lane := func() {
		defer wg.Done()
		for ctx.Err() == nil {
			i := int(cursor.Add(1) - 1)
			if i >= len(items) {
				return
			}
			if err := invoke(ctx, handler, items[i]); err != nil {
				failed.Add(1)
				if onError != nil {
					onError(items[i], err)
				}
			}
			completed.Add(1)
		}
	}

	wg.Add(k)
	for range k {
		go lane()
	}
	wg.Wait()

	return Stats{Completed: int(completed.Load()), Failed: int(failed.Load())}, nil
}

func invoke[T any](ctx context.Context, handler Handler[T], item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pool: handler panic: %v", r)
		}
	}()
	return handler(ctx, item)
}
