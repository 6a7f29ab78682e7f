// Package workpool runs a fixed number of indexed tasks with bounded concurrency.
package workpool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Run calls task for every index in [0, n) with at most limit calls in flight.
//
// After the first task error no further tasks are started; tasks already
// running are allowed to finish and Run returns that first error. Cancelling
// ctx also stops scheduling, in which case Run returns ctx.Err() once the
// running tasks have returned.
func Run(ctx context.Context, limit, n int, task func(i int) error) error {
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)

	var stopped atomic.Bool
	for i := range n {
		if stopped.Load() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// g.Go may have blocked on the limit while another task failed
			if stopped.Load() {
				return nil
			}
			if err := task(i); err != nil {
				stopped.Store(true)
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
