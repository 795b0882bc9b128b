package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of items a BatchProcessor handles at once.
const DefaultConcurrency = 4

// BatchProcessor runs per-item work of a phase concurrently.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
// Fetches inside the work still go through the Governor, so concurrency
// hides parse latency without raising the request rate.
type BatchProcessor struct {
	// concurrency is the maximum number of items in flight.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent items.
// Values below one are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// Concurrency returns the configured limit.
func (bp *BatchProcessor) Concurrency() int {
	return bp.concurrency
}

// Run calls fn for every index in [0, n) with at most Concurrency calls in
// flight. The first error returned by fn cancels the remaining calls and is
// returned; failures that should not stop the batch must be recorded by fn
// itself. Cancellation of ctx stops dispatch and returns ctx.Err().
func (bp *BatchProcessor) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	bp.logger.Debug("starting batch",
		"items", n,
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i := range n {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			return fn(gctx, i)
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	bp.logger.Debug("batch complete",
		"items", n,
		"elapsed", time.Since(startTime),
	)
	return err
}

// Map applies fn to every item concurrently and returns the results in
// input order. On error the results computed so far are still returned;
// slots whose call did not finish hold the zero value.
func Map[T, R any](ctx context.Context, bp *BatchProcessor, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	err := bp.Run(ctx, len(items), func(ctx context.Context, i int) error {
		r, err := fn(ctx, items[i])
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})
	return results, err
}
