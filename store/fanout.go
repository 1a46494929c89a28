package store

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fanOut runs fn for every index in [0, n) with at most limit calls in flight.
// The first error cancels the context passed to the remaining calls and is returned.
func fanOut(ctx context.Context, limit, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(ctx, i)
		})
	}
	return g.Wait()
}
