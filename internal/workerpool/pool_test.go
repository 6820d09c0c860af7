package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLimited_PreservesOrder(t *testing.T) {
	tasks := make([]Task[int], 6)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			// Later tasks finish first.
			time.Sleep(time.Duration(len(tasks)-i) * 5 * time.Millisecond)
			return i * 10, nil
		}
	}

	results := RunLimited(context.Background(), tasks, 3)

	require.Len(t, results, 6)
	for i, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, i*10, r.Value)
	}
}

func TestRunLimited_RespectsConcurrencyCeiling(t *testing.T) {
	var inFlight, peak int32
	tasks := make([]Task[struct{}], 12)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (struct{}, error) {
			current := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if current <= old || atomic.CompareAndSwapInt32(&peak, old, current) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return struct{}{}, nil
		}
	}

	RunLimited(context.Background(), tasks, 3)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Equal(t, int32(0), atomic.LoadInt32(&inFlight))
}

func TestRunLimited_FailuresStayInTheirSlot(t *testing.T) {
	boom := errors.New("instrument not found")
	tasks := []Task[string]{
		func(ctx context.Context) (string, error) { return "BTC", nil },
		func(ctx context.Context) (string, error) { return "", boom },
		func(ctx context.Context) (string, error) { panic("bad payload") },
		func(ctx context.Context) (string, error) { return "SOL", nil },
	}

	results := RunLimited(context.Background(), tasks, 2)

	assert.Equal(t, "BTC", results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.ErrorContains(t, results[2].Err, "panicked")
	assert.Equal(t, "SOL", results[3].Value)
}

func TestRunLimited_SequentialMatchesParallel(t *testing.T) {
	build := func() []Task[int] {
		tasks := make([]Task[int], 8)
		for i := range tasks {
			tasks[i] = func(ctx context.Context) (int, error) {
				if i%3 == 0 {
					return 0, errors.New("fail")
				}
				return i * i, nil
			}
		}
		return tasks
	}

	sequential := RunLimited(context.Background(), build(), 1)
	parallel := RunLimited(context.Background(), build(), 8)

	require.Len(t, parallel, len(sequential))
	for i := range sequential {
		assert.Equal(t, sequential[i].Value, parallel[i].Value)
		assert.Equal(t, sequential[i].Err != nil, parallel[i].Err != nil)
	}
}

func TestRunLimited_SequentialRunsOneAtATime(t *testing.T) {
	var mu sync.Mutex
	var order []int
	tasks := make([]Task[int], 4)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}
	}

	RunLimited(context.Background(), tasks, 1)

	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestRunLimited_EmptyAndInvalidLimit(t *testing.T) {
	assert.Empty(t, RunLimited[int](context.Background(), nil, 4))

	results := RunLimited(context.Background(), []Task[int]{
		func(ctx context.Context) (int, error) { return 7, nil },
	}, 0)
	assert.Equal(t, 7, results[0].Value)
}

func TestValues(t *testing.T) {
	values, errs := Values([]Result[int]{{Value: 1}, {Err: errors.New("x")}, {Value: 3}})

	assert.Equal(t, []int{1, 3}, values)
	assert.Len(t, errs, 1)
}
