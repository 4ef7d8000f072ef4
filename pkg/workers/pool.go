// Package workers provides the scoped worker pool used by the parallel steps
// of the pipeline (raster sampling, model fitting and prediction).
//
// A pool is attached to a context with Scope and detached by the release
// function it returns. Code that receives the context calls ForEach; without
// an open pool the work runs on the calling goroutine. Chunks write disjoint
// index ranges, so results never depend on the worker count.
package workers

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"satbathy/internal/models"
)

type poolKey struct{}

// Pool is a bounded set of goroutines shared by one pipeline step.
type Pool struct {
	size   int
	closed atomic.Bool
}

// Size returns the number of concurrent workers, 1 once the pool is closed.
func (p *Pool) Size() int {
	if p == nil || p.closed.Load() {
		return 1
	}
	return p.size
}

// Scope opens a pool sized by par and attaches it to ctx. The returned
// release function closes the pool; it is safe to call more than once and
// must be deferred by the caller so the pool never outlives its step.
func Scope(ctx context.Context, par models.Parallelism) (context.Context, func()) {
	p := &Pool{size: par.EffectiveWorkers()}
	log.Debug().Int("workers", p.size).Str("backend", string(par.Backend)).Msg("worker scope opened")
	return context.WithValue(ctx, poolKey{}, p), func() {
		if p.closed.CompareAndSwap(false, true) {
			log.Debug().Msg("worker scope closed")
		}
	}
}

// FromContext returns the pool attached to ctx, or nil.
func FromContext(ctx context.Context) *Pool {
	p, _ := ctx.Value(poolKey{}).(*Pool)
	return p
}

// Size returns the worker count available on ctx.
func Size(ctx context.Context) int {
	return FromContext(ctx).Size()
}

// ForEach splits [0, n) into contiguous chunks and calls fn for each of them,
// concurrently when ctx carries an open pool. The first error is returned
// after every started chunk has finished.
func ForEach(ctx context.Context, n int, fn func(start, end int) error) error {
	if n <= 0 {
		return nil
	}
	size := Size(ctx)
	if size <= 1 || n == 1 {
		return fn(0, n)
	}

	// a few chunks per worker keeps the pool busy when chunk costs differ
	chunks := size * 4
	if chunks > n {
		chunks = n
	}
	step := (n + chunks - 1) / chunks

	g := new(errgroup.Group)
	g.SetLimit(size)
	for start := 0; start < n; start += step {
		end := min(start+step, n)
		g.Go(func() error {
			return fn(start, end)
		})
	}
	return g.Wait()
}

// Map calls fn for every index in [0, n) and collects the results in order.
func Map[T any](ctx context.Context, n int, fn func(i int) (T, error)) ([]T, error) {
	out := make([]T, n)
	err := ForEach(ctx, n, func(start, end int) error {
		for i := start; i < end; i++ {
			v, err := fn(i)
			if err != nil {
				return err
			}
			out[i] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
