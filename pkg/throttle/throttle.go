// Package throttle bounds the number of concurrently executing operations
// and records throughput metrics for them.
package throttle

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	taskerrors "github.com/corelane/taskcore/pkg/errors"
	"github.com/corelane/taskcore/pkg/task"
)

// Throttle is a counting semaphore of size Capacity with live metrics and
// resizing. It is a cheap, process-lived singleton: a BatchExecutor and a
// WorkflowEngine behind the same Orchestrator typically share one.
type Throttle struct {
	name   string
	logger *slog.Logger

	mu       sync.RWMutex
	sem      *semaphore.Weighted
	capacity int64

	inFlight      atomic.Int64
	executedTotal atomic.Int64
	failedTotal   atomic.Int64
	durationNanos atomic.Int64
	durationCount atomic.Int64
}

// Option configures a Throttle at construction time.
type Option func(*Throttle)

// WithName sets the label used to distinguish this throttle's metrics
// from other Throttle instances in the same process. Default "default".
func WithName(name string) Option {
	return func(t *Throttle) {
		if name != "" {
			t.name = name
		}
	}
}

// WithLogger overrides the default logger (slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(t *Throttle) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a Throttle with the given capacity. capacity must be
// positive.
func New(capacity int, opts ...Option) (*Throttle, error) {
	if capacity <= 0 {
		return nil, &taskerrors.ValidationError{
			Field:      "capacity",
			Message:    "must be a positive integer",
			Suggestion: "pass a capacity greater than zero",
		}
	}

	t := &Throttle{
		name:     "default",
		logger:   slog.Default(),
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
	for _, opt := range opts {
		opt(t)
	}

	throttleCapacity.WithLabelValues(t.name).Set(float64(capacity))
	return t, nil
}

// currentSemaphore returns the semaphore currently accepting acquisitions.
// It is read fresh on every acquire so that a concurrent SetCapacity is
// observed promptly; a permit is always released back to the semaphore it
// was acquired from.
func (t *Throttle) currentSemaphore() *semaphore.Weighted {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sem
}

// SetCapacity atomically replaces the throttle's capacity. Operations
// already holding a permit complete normally; future acquisitions block
// against the new limit. The old semaphore is replaced outright; permits
// still held on it are released back to it, so until those holders finish
// the number of operations in flight can briefly exceed the new capacity.
func (t *Throttle) SetCapacity(n int) error {
	if n <= 0 {
		return &taskerrors.ValidationError{
			Field:      "capacity",
			Message:    "must be a positive integer",
			Suggestion: "pass a capacity greater than zero",
		}
	}

	t.mu.Lock()
	t.sem = semaphore.NewWeighted(int64(n))
	t.capacity = int64(n)
	t.mu.Unlock()

	throttleCapacity.WithLabelValues(t.name).Set(float64(n))
	t.logger.Debug("throttle capacity changed", "throttle", t.name, "capacity", n)
	return nil
}

// Metrics is a point-in-time snapshot of throttle counters.
type Metrics struct {
	Capacity      int
	InFlight      int
	ExecutedTotal int
	FailedTotal   int
	MeanDuration  time.Duration
}

// Metrics returns a coherent snapshot of the throttle's counters.
func (t *Throttle) Metrics() Metrics {
	t.mu.RLock()
	capacity := t.capacity
	t.mu.RUnlock()

	count := t.durationCount.Load()
	var mean time.Duration
	if count > 0 {
		mean = time.Duration(t.durationNanos.Load() / count)
	}

	return Metrics{
		Capacity:      int(capacity),
		InFlight:      int(t.inFlight.Load()),
		ExecutedTotal: int(t.executedTotal.Load()),
		FailedTotal:   int(t.failedTotal.Load()),
		MeanDuration:  mean,
	}
}

// AcquireAndRun waits for a permit, invokes op, releases the permit on
// every exit path, and returns op's outcome. It updates ExecutedTotal on
// completion (success or failure) and FailedTotal on failure, and records
// the elapsed duration. A cancelled wait for a permit returns ctx.Err()
// without having run op and without touching the counters.
func AcquireAndRun[T any](ctx context.Context, t *Throttle, op task.Operation[T]) (T, error) {
	var zero T

	sem := t.currentSemaphore()
	if err := sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	t.inFlight.Add(1)
	throttleInFlightGauge.WithLabelValues(t.name).Set(float64(t.inFlight.Load()))

	start := time.Now()
	result, err := op(ctx)
	elapsed := time.Since(start)

	t.inFlight.Add(-1)
	sem.Release(1)
	throttleInFlightGauge.WithLabelValues(t.name).Set(float64(t.inFlight.Load()))

	t.executedTotal.Add(1)
	t.durationNanos.Add(elapsed.Nanoseconds())
	t.durationCount.Add(1)
	throttleExecutedTotal.WithLabelValues(t.name).Inc()
	throttleDuration.WithLabelValues(t.name).Observe(elapsed.Seconds())

	if err != nil {
		t.failedTotal.Add(1)
		throttleFailedTotal.WithLabelValues(t.name).Inc()
		t.logger.Debug("throttled operation failed", "throttle", t.name, "error", err, "duration", elapsed)
	}

	return result, err
}

// AcquireAndRunBatch runs each operation through AcquireAndRun, preserving
// input order in the returned slice. Operations are launched concurrently
// (each still gated by the shared permit pool); on any operation failure,
// the caller observes that failure after every submitted operation has
// resolved. Already-running operations are never cancelled by a sibling's
// failure.
func AcquireAndRunBatch[T any](ctx context.Context, t *Throttle, ops []task.Operation[T]) ([]T, error) {
	n := len(ops)
	results := make([]T, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i, op := range ops {
		go func(i int, op task.Operation[T]) {
			defer wg.Done()
			v, err := AcquireAndRun(ctx, t, op)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = v
		}(i, op)
	}
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			return results, errs[i]
		}
	}
	return results, nil
}
