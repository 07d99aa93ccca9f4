package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSpecs(n int) []Spec {
	specs := make([]Spec, n)
	for i := range specs {
		specs[i] = Spec{Key: fmt.Sprintf("task-%d", i), Instruction: "work", Tier: TierLite}
	}
	return specs
}

func TestRun_AllKeysPresent(t *testing.T) {
	specs := makeSpecs(8)

	results := Run(context.Background(), specs, 4, func(_ context.Context, spec Spec) (string, error) {
		return "done:" + spec.Key, nil
	})

	require.Len(t, results, 8)
	for _, spec := range specs {
		out, ok := results[spec.Key]
		require.True(t, ok, "missing key %s", spec.Key)
		assert.NoError(t, out.Err)
		assert.Equal(t, "done:"+spec.Key, out.Value)
	}
}

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	specs := makeSpecs(20)

	var inFlight, peak int64
	var mu sync.Mutex

	Run(context.Background(), specs, 3, func(_ context.Context, _ Spec) (struct{}, error) {
		cur := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return struct{}{}, nil
	})

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int64(3))
	assert.Greater(t, peak, int64(0))
}

func TestRun_FailureIsolation(t *testing.T) {
	specs := makeSpecs(6)
	boom := eris.New("boom")

	results := Run(context.Background(), specs, 6, func(_ context.Context, spec Spec) (int, error) {
		if spec.Key == "task-2" {
			return 0, boom
		}
		return 1, nil
	})

	require.Len(t, results, 6)
	assert.Error(t, results["task-2"].Err)
	for _, spec := range specs {
		if spec.Key == "task-2" {
			continue
		}
		assert.NoError(t, results[spec.Key].Err, "sibling %s must not be cancelled", spec.Key)
		assert.Equal(t, 1, results[spec.Key].Value)
	}

	assert.Equal(t, []string{"task-2"}, FailedKeys(specs, results))
}

func TestRun_CancellationAbandonsPending(t *testing.T) {
	specs := makeSpecs(10)
	ctx, cancel := context.WithCancel(context.Background())

	var started int64
	results := Run(ctx, specs, 1, func(taskCtx context.Context, _ Spec) (struct{}, error) {
		if atomic.AddInt64(&started, 1) == 1 {
			cancel()
			return struct{}{}, nil
		}
		return struct{}{}, taskCtx.Err()
	})

	// Every key settles, but specs after cancellation report the ctx error.
	require.Len(t, results, 10)
	var cancelled int
	for _, out := range results {
		if out.Err != nil {
			cancelled++
		}
	}
	assert.GreaterOrEqual(t, cancelled, 9)
}

func TestRun_TaskTimeout(t *testing.T) {
	specs := []Spec{{Key: "slow", Timeout: 10 * time.Millisecond}}

	results := Run(context.Background(), specs, 1, func(taskCtx context.Context, _ Spec) (struct{}, error) {
		select {
		case <-taskCtx.Done():
			return struct{}{}, taskCtx.Err()
		case <-time.After(time.Second):
			return struct{}{}, nil
		}
	})

	require.Error(t, results["slow"].Err)
	assert.ErrorIs(t, results["slow"].Err, context.DeadlineExceeded)
}

func TestRun_EmptySpecs(t *testing.T) {
	results := Run(context.Background(), nil, 4, func(_ context.Context, _ Spec) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	})
	assert.Empty(t, results)
}

func TestRun_ZeroLimitDefaultsToAll(t *testing.T) {
	specs := makeSpecs(4)
	results := Run(context.Background(), specs, 0, func(_ context.Context, _ Spec) (int, error) {
		return 7, nil
	})
	require.Len(t, results, 4)
}
