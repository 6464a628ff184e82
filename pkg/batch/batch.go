// Package batch runs a fixed sequence of independent operations with
// bounded parallelism, per-operation timeout, and aggregated success/error
// reporting.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	taskerrors "github.com/corelane/taskcore/pkg/errors"
	"github.com/corelane/taskcore/pkg/task"
)

// ExecutionError describes the failure of a single operation within a
// batch. Cause is the operation's own error, unwrapped through errors.Is
// and errors.As the normal way; Message is a short human-readable form.
type ExecutionError struct {
	Index   int
	Cause   error
	Message string
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("operation %d: %s", e.Index, e.Message)
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// BatchResult is the aggregated outcome of a batch run. Successes and
// Errors are each sorted ascending by the original input index; an index
// appears in exactly one of the two.
type BatchResult[T any] struct {
	// RunID correlates this run's log lines; the batch itself never
	// inspects it.
	RunID     string
	Successes []T
	Errors    []*ExecutionError
	Submitted int
	Succeeded int
	Duration  time.Duration
}

// HasErrors reports whether any operation failed.
func (r BatchResult[T]) HasErrors() bool {
	return len(r.Errors) > 0
}

// AllSucceeded reports whether every submitted operation succeeded.
func (r BatchResult[T]) AllSucceeded() bool {
	return len(r.Errors) == 0
}

// SuccessRate returns Succeeded/Submitted, or 1 when nothing was submitted.
func (r BatchResult[T]) SuccessRate() float64 {
	if r.Submitted == 0 {
		return 1
	}
	return float64(r.Succeeded) / float64(r.Submitted)
}

type options struct {
	name            string
	maxParallelism  int
	continueOnError bool
	perOpTimeout    time.Duration
	progress        task.ProgressSink
	logger          *slog.Logger
}

func defaultOptions() *options {
	return &options{
		name:            "default",
		maxParallelism:  runtime.GOMAXPROCS(0),
		continueOnError: true,
		logger:          slog.Default(),
	}
}

// Option configures a Run call.
type Option func(*options)

// WithName labels this run's metrics, distinguishing it from other batch
// call sites in the same process.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithMaxParallelism bounds the number of operations in flight at once.
// Values <= 0 are ignored, leaving the default (host parallelism) in
// effect.
func WithMaxParallelism(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxParallelism = n
		}
	}
}

// WithFailFast makes the first operation failure abort the batch,
// discarding already-collected results. Default behavior collects every
// failure into BatchResult.Errors instead.
func WithFailFast() Option {
	return func(o *options) {
		o.continueOnError = false
	}
}

// WithContinueOnError explicitly sets the continue-on-error mode.
func WithContinueOnError(v bool) Option {
	return func(o *options) {
		o.continueOnError = v
	}
}

// WithPerOpTimeout derives a per-operation cancellation that fires after
// d in addition to the caller's context.
func WithPerOpTimeout(d time.Duration) Option {
	return func(o *options) {
		o.perOpTimeout = d
	}
}

// WithProgress registers a sink invoked after each operation resolves.
func WithProgress(sink task.ProgressSink) Option {
	return func(o *options) {
		o.progress = sink
	}
}

// WithLogger overrides the default logger (slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Run executes ops with bounded parallelism and returns their aggregated
// outcome. An empty ops returns an empty BatchResult with zero duration.
//
// Outer context cancellation always wins: Run returns ctx.Err() with a
// zero BatchResult even if every operation that managed to complete
// succeeded. A per-operation timeout set via WithPerOpTimeout is scoped to
// that operation alone and surfaces as an ExecutionError, not as outer
// cancellation.
func Run[T any](ctx context.Context, ops []task.Operation[T], opts ...Option) (BatchResult[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	runID := uuid.New().String()

	n := len(ops)
	if n == 0 {
		return BatchResult[T]{RunID: runID}, nil
	}

	start := time.Now()

	limit := o.maxParallelism
	if limit > n {
		limit = n
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make([]T, n)
	successOK := make([]bool, n)
	errs := make([]*ExecutionError, n)

	var completed, failed atomic.Int64
	batchSubmittedTotal.WithLabelValues(o.name).Add(float64(n))

	emit := func() {
		if o.progress == nil {
			return
		}
		o.progress(task.Progress{
			Total:     n,
			Completed: int(completed.Load()),
			Failed:    int(failed.Load()),
		})
	}

	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			opCtx := gctx
			var cancel context.CancelFunc
			if o.perOpTimeout > 0 {
				opCtx, cancel = context.WithTimeout(gctx, o.perOpTimeout)
				defer cancel()
			}

			opStart := time.Now()
			val, err := op(opCtx)
			if err != nil {
				if ctx.Err() != nil {
					// Outer cancellation dominates any continue_on_error
					// setting; let the group's context carry it.
					return ctx.Err()
				}

				if o.perOpTimeout > 0 && errors.Is(err, context.DeadlineExceeded) {
					err = &taskerrors.TimeoutError{
						Operation: fmt.Sprintf("batch operation %d", i),
						Duration:  time.Since(opStart),
						Cause:     err,
					}
				}

				completed.Add(1)
				failed.Add(1)
				batchFailedTotal.WithLabelValues(o.name).Inc()
				errs[i] = &ExecutionError{Index: i, Cause: err, Message: err.Error()}
				o.logger.Debug("batch operation failed", "batch", o.name, "run_id", runID, "index", i, "error", err)
				emit()

				if !o.continueOnError {
					return errs[i]
				}
				return nil
			}

			completed.Add(1)
			results[i] = val
			successOK[i] = true
			emit()
			return nil
		})
	}

	werr := g.Wait()
	elapsed := time.Since(start)
	batchDuration.WithLabelValues(o.name).Observe(elapsed.Seconds())

	if werr != nil {
		batchAbortedTotal.WithLabelValues(o.name).Inc()
		if ctx.Err() != nil {
			return BatchResult[T]{}, ctx.Err()
		}
		return BatchResult[T]{}, werr
	}

	successes := make([]T, 0, n)
	var orderedErrs []*ExecutionError
	for i := 0; i < n; i++ {
		if successOK[i] {
			successes = append(successes, results[i])
		} else if errs[i] != nil {
			orderedErrs = append(orderedErrs, errs[i])
		}
	}

	return BatchResult[T]{
		RunID:     runID,
		Successes: successes,
		Errors:    orderedErrs,
		Submitted: n,
		Succeeded: len(successes),
		Duration:  elapsed,
	}, nil
}
