package throttle_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corelane/taskcore/pkg/task"
	"github.com/corelane/taskcore/pkg/throttle"
)

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	_, err := throttle.New(0)
	require.Error(t, err)

	_, err = throttle.New(-1)
	require.Error(t, err)
}

func TestAcquireAndRun_NeverExceedsCapacity(t *testing.T) {
	const capacity = 3
	const operations = 30

	th, err := throttle.New(capacity, throttle.WithName(t.Name()))
	require.NoError(t, err)

	var current atomic.Int64
	var maxSeen atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < operations; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = throttle.AcquireAndRun(context.Background(), th, func(ctx context.Context) (int, error) {
				n := current.Add(1)
				for {
					max := maxSeen.Load()
					if n <= max || maxSeen.CompareAndSwap(max, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return int(n), nil
			})
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, maxSeen.Load(), int64(capacity))
}

func TestAcquireAndRun_CountersMatchOutcomes(t *testing.T) {
	th, err := throttle.New(4, throttle.WithName(t.Name()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = throttle.AcquireAndRun(context.Background(), th, func(ctx context.Context) (int, error) {
				if i%3 == 0 {
					return 0, errors.New("boom")
				}
				return i, nil
			})
		}(i)
	}
	wg.Wait()

	m := th.Metrics()
	assert.Equal(t, 10, m.ExecutedTotal)
	assert.Equal(t, 4, m.FailedTotal) // i = 0, 3, 6, 9
	assert.Equal(t, 0, m.InFlight)
}

func TestAcquireAndRun_CancelledWaitDoesNotRun(t *testing.T) {
	th, err := throttle.New(1)
	require.NoError(t, err)

	// Hold the single permit.
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = throttle.AcquireAndRun(context.Background(), th, func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	_, err = throttle.AcquireAndRun(ctx, th, func(ctx context.Context) (int, error) {
		ran = true
		return 0, nil
	})
	assert.Error(t, err)
	assert.False(t, ran)

	close(release)
}

func TestSetCapacity_PreservesLivenessAndRejectsInvalid(t *testing.T) {
	th, err := throttle.New(2, throttle.WithName(t.Name()))
	require.NoError(t, err)

	require.Error(t, th.SetCapacity(0))

	// All in-flight operations (started under the old capacity) must still
	// complete, and subsequent acquisitions must respect the new limit.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = throttle.AcquireAndRun(context.Background(), th, func(ctx context.Context) (int, error) {
				time.Sleep(time.Millisecond)
				return 0, nil
			})
		}()
	}
	require.NoError(t, th.SetCapacity(5))
	assert.Equal(t, 5, th.Metrics().Capacity)
	wg.Wait()

	assert.Equal(t, 20, th.Metrics().ExecutedTotal)
}

func TestAcquireAndRunBatch_PreservesOrderAndPropagatesFirstFailure(t *testing.T) {
	th, err := throttle.New(4, throttle.WithName(t.Name()))
	require.NoError(t, err)

	ops := make([]task.Operation[int], 5)
	for i := range ops {
		i := i
		ops[i] = func(ctx context.Context) (int, error) {
			time.Sleep(time.Duration(5-i) * time.Millisecond)
			if i == 2 {
				return 0, errors.New("op 2 failed")
			}
			return i * 10, nil
		}
	}

	results, err := throttle.AcquireAndRunBatch(context.Background(), th, ops)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op 2 failed")
	// Successful entries are still placed at their original index.
	assert.Equal(t, 0, results[0])
	assert.Equal(t, 10, results[1])
}

func TestAcquireAndRunBatch_AllSucceedPreservesOrder(t *testing.T) {
	th, err := throttle.New(2, throttle.WithName(t.Name()))
	require.NoError(t, err)

	ops := make([]task.Operation[int], 6)
	for i := range ops {
		i := i
		ops[i] = func(ctx context.Context) (int, error) {
			time.Sleep(time.Duration(6-i) * time.Millisecond)
			return i, nil
		}
	}

	results, err := throttle.AcquireAndRunBatch(context.Background(), th, ops)
	require.NoError(t, err)
	require.Len(t, results, 6)
	for i, v := range results {
		assert.Equal(t, i, v)
	}
}
