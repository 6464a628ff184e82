package batch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corelane/taskcore/pkg/batch"
	taskerrors "github.com/corelane/taskcore/pkg/errors"
	"github.com/corelane/taskcore/pkg/task"
)

func TestRun_EmptyBatchSucceedsTrivially(t *testing.T) {
	result, err := batch.Run[int](context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Submitted)
	assert.Equal(t, time.Duration(0), result.Duration)
	assert.True(t, result.AllSucceeded())
	assert.Equal(t, float64(1), result.SuccessRate())
}

// Scenario A: all operations succeed; result preserves input order
// regardless of completion order.
func TestRun_AllSucceedPreservesOrder(t *testing.T) {
	ops := make([]task.Operation[int], 8)
	for i := range ops {
		i := i
		ops[i] = func(ctx context.Context) (int, error) {
			time.Sleep(time.Duration(8-i) * time.Millisecond)
			return i * i, nil
		}
	}

	result, err := batch.Run(context.Background(), ops, batch.WithMaxParallelism(4))
	require.NoError(t, err)
	assert.True(t, result.AllSucceeded())
	assert.Equal(t, 8, result.Submitted)
	assert.Equal(t, 8, result.Succeeded)
	require.Len(t, result.Successes, 8)
	for i, v := range result.Successes {
		assert.Equal(t, i*i, v)
	}
}

// Scenario B: continue-on-error collects every failure by original index,
// and every index lands in exactly one of Successes/Errors.
func TestRun_ContinueOnErrorAggregatesFailures(t *testing.T) {
	ops := make([]task.Operation[int], 6)
	for i := range ops {
		i := i
		ops[i] = func(ctx context.Context) (int, error) {
			if i%2 == 0 {
				return 0, fmt.Errorf("op %d failed", i)
			}
			return i, nil
		}
	}

	result, err := batch.Run(context.Background(), ops, batch.WithContinueOnError(true))
	require.NoError(t, err)
	assert.True(t, result.HasErrors())
	assert.Equal(t, 6, result.Submitted)
	assert.Equal(t, 3, result.Succeeded)
	require.Len(t, result.Errors, 3)

	seen := map[int]bool{}
	for _, v := range result.Successes {
		seen[v] = true
	}
	for _, e := range result.Errors {
		assert.Equal(t, 0, e.Index%2)
		assert.False(t, seen[e.Index])
	}

	// Errors are strictly increasing in index.
	for i := 1; i < len(result.Errors); i++ {
		assert.Greater(t, result.Errors[i].Index, result.Errors[i-1].Index)
	}
}

// Scenario C: fail-fast aborts the batch as a whole; no BatchResult is
// returned, and the propagated error is an *ExecutionError.
func TestRun_FailFastAbortsBatch(t *testing.T) {
	var started int32
	var mu sync.Mutex

	ops := make([]task.Operation[int], 10)
	for i := range ops {
		i := i
		ops[i] = func(ctx context.Context) (int, error) {
			mu.Lock()
			started++
			mu.Unlock()
			if i == 3 {
				return 0, errors.New("deliberate failure")
			}
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(50 * time.Millisecond):
				return i, nil
			}
		}
	}

	result, err := batch.Run(context.Background(), ops, batch.WithFailFast(), batch.WithMaxParallelism(10))
	require.Error(t, err)
	assert.Equal(t, batch.BatchResult[int]{}, result)

	var execErr *batch.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, execErr.Index)
}

func TestRun_PerOpTimeoutYieldsExecutionErrorNotOuterCancellation(t *testing.T) {
	ops := []task.Operation[int]{
		func(ctx context.Context) (int, error) {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Second):
				return 1, nil
			}
		},
	}

	result, err := batch.Run(context.Background(), ops, batch.WithPerOpTimeout(10*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0].Cause, context.DeadlineExceeded)

	var timeoutErr *taskerrors.TimeoutError
	require.True(t, errors.As(result.Errors[0].Cause, &timeoutErr))
	assert.Equal(t, "batch operation 0", timeoutErr.Operation)
}

// Scenario F: outer cancellation propagates a cancellation error and no
// BatchResult is returned, even though some operations may have observed
// cancellation cleanly and returned promptly.
func TestRun_OuterCancellationPropagatesWithoutPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ops := make([]task.Operation[int], 10)
	for i := range ops {
		ops[i] = func(ctx context.Context) (int, error) {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(2 * time.Second):
				return 1, nil
			}
		}
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result, err := batch.Run(ctx, ops, batch.WithMaxParallelism(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, batch.BatchResult[int]{}, result)
}

func TestRun_ProgressReachesTerminalUpdate(t *testing.T) {
	ops := make([]task.Operation[int], 5)
	for i := range ops {
		ops[i] = func(ctx context.Context) (int, error) { return 0, nil }
	}

	var mu sync.Mutex
	var last task.Progress
	sink := func(p task.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.Completed > last.Completed {
			last = p
		}
	}

	_, err := batch.Run(context.Background(), ops, batch.WithProgress(sink))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, last.Total)
	assert.Equal(t, 5, last.Completed)
}
