// Package async provides bounded-concurrency helpers for fanning broker
// calls out over batches.
package async

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Collect runs fn over every item with at most workers goroutines and
// gathers the successful results. Per-item failures do not abort the batch;
// the first error observed is returned alongside the partial results.
func Collect[T, R any](ctx context.Context, items []T, workers int, fn func(context.Context, T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}
	var (
		mu       sync.Mutex
		results  = make([]R, 0, len(items))
		firstErr error
	)
	p := pool.New().WithMaxGoroutines(workers)
	for _, item := range items {
		item := item
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			res, err := fn(ctx, item)
			mu.Lock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
			} else {
				results = append(results, res)
			}
			mu.Unlock()
		})
	}
	p.Wait()
	return results, firstErr
}
