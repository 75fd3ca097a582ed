// Package dispatch provides the bounded worker pool the pipeline fans work
// units out on. Results are index-tagged and streamed back to a single
// consumer in input order, so the consumer sees map semantics regardless of
// which worker finishes first — and sees each result as soon as every
// earlier one has been delivered, not only after the whole batch completes.
// A pool size of zero runs every unit sequentially in the caller as a
// first-class mode of the same API.
package dispatch

import (
	"context"
	"io"
	"os"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"
)

type options struct {
	label  string
	output io.Writer
}

// Option configures a [Map] invocation.
type Option func(*options)

// WithLabel sets the progress bar label.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// WithProgressOutput redirects progress rendering, e.g. to io.Discard in
// tests. Defaults to stderr.
func WithProgressOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// Map applies fn to every unit and returns the results in input order.
// workers bounds the pool size; zero means sequential execution in the
// calling goroutine. Progress is reported as results arrive. The only error
// returned is context cancellation; per-unit failures are values in O.
func Map[I, O any](ctx context.Context, units []I, workers int, fn func(context.Context, I) O, opts ...Option) ([]O, error) {
	return MapWorkers(ctx, units, workers, func() func(context.Context, I) O { return fn }, opts...)
}

// MapWorkers is [Map] with per-worker state: newFn runs once in each worker
// goroutine (once total in sequential mode) and returns the unit function,
// which may close over state such as a lazily-loaded inference service. The
// state is never shared between workers.
func MapWorkers[I, O any](ctx context.Context, units []I, workers int, newFn func() func(context.Context, I) O, opts ...Option) ([]O, error) {
	results := make([]O, len(units))
	err := ForEachWorkers(ctx, units, workers, newFn, func(i int, out O) error {
		results[i] = out
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ForEachWorkers is [MapWorkers] with streaming delivery: each result is
// handed to handle in input order as soon as all earlier results are in, so
// the consumer can persist completed work while later units are still
// running. handle runs in the calling goroutine; an error from handle
// cancels outstanding work and is returned. The only other error returned is
// context cancellation; per-unit failures are values in O.
func ForEachWorkers[I, O any](ctx context.Context, units []I, workers int, newFn func() func(context.Context, I) O, handle func(i int, out O) error, opts ...Option) error {
	o := options{label: "processing", output: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	if len(units) == 0 {
		return nil
	}

	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(o.output))
	bar := p.AddBar(int64(len(units)),
		mpb.PrependDecorators(
			decor.Name(o.label+": "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)
	defer p.Wait()

	if workers <= 0 {
		fn := newFn()
		for i, u := range units {
			if err := ctx.Err(); err != nil {
				bar.Abort(true)
				return err
			}
			if err := handle(i, fn(ctx, u)); err != nil {
				bar.Abort(true)
				return err
			}
			bar.Increment()
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	indices := make(chan int)

	g.Go(func() error {
		defer close(indices)
		for i := range units {
			select {
			case indices <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	type tagged struct {
		i   int
		out O
	}
	results := make(chan tagged, workers)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			fn := newFn()
			for i := range indices {
				select {
				case results <- tagged{i: i, out: fn(ctx, units[i])}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		g.Wait()
		close(results)
	}()

	// Reorder out-of-order arrivals and deliver each index exactly once.
	pending := make(map[int]O)
	next := 0
	var handleErr error
	for t := range results {
		if handleErr != nil {
			continue
		}
		pending[t.i] = t.out
		for {
			out, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if err := handle(next, out); err != nil {
				handleErr = err
				cancel()
				break
			}
			next++
			bar.Increment()
		}
	}
	if handleErr != nil {
		bar.Abort(true)
		return handleErr
	}
	if err := g.Wait(); err != nil {
		bar.Abort(true)
		return err
	}
	return nil
}
