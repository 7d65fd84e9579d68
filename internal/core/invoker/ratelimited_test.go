package invoker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/engine"
)

type recordingInvoker struct {
	mu    sync.Mutex
	calls []time.Time
}

func (r *recordingInvoker) Invoke(ctx context.Context, req *Request, out any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, time.Now())
	return nil
}

func (r *recordingInvoker) times() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.calls...)
}

func TestNewRateLimitedInvokerRejectsInvalidSpec(t *testing.T) {
	_, err := NewRateLimitedInvoker(&recordingInvoker{}, engine.RateLimitSpec{Window: time.Second, MaxCalls: 0})
	require.ErrorIs(t, err, engine.ErrInvalidRateLimit)
}

func TestRateLimitedInvokerCapsCallsPerWindow(t *testing.T) {
	const (
		maxCalls = 3
		window   = 100 * time.Millisecond
		callers  = 10 * maxCalls
	)

	tracker, err := engine.NewQuotaTracker(engine.RateLimitSpec{Window: window, MaxCalls: maxCalls})
	require.NoError(t, err)

	var (
		statesMu sync.Mutex
		states   []core.RateLimitState
	)
	tracker.OnReset = func(state core.RateLimitState) {
		statesMu.Lock()
		defer statesMu.Unlock()
		states = append(states, state)
	}
	tracker.Start()

	next := &recordingInvoker{}
	inv := &RateLimitedInvoker{Next: next, Permits: tracker}
	defer inv.Close() // nolint:errcheck // test cleanup

	var waited atomic.Int64
	inv.OnWait = func(time.Duration) { waited.Add(1) }

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, inv.Invoke(context.Background(), &Request{Path: "/x"}, nil))
		}()
	}
	wg.Wait()
	require.NoError(t, inv.Close())

	require.Len(t, next.times(), callers)
	require.Equal(t, int64(callers), waited.Load())

	// 30 calls at 3 per window need at least 9 resets after the first window.
	require.GreaterOrEqual(t, time.Since(start), 9*window-10*time.Millisecond)

	// Windows are fixed and aligned to the reset ticker: each closed window
	// and the open one hold at most maxCalls calls, and together they account
	// for every call.
	statesMu.Lock()
	defer statesMu.Unlock()
	require.GreaterOrEqual(t, len(states), 9)

	total := tracker.Snapshot().RequestCount
	require.LessOrEqual(t, total, maxCalls)
	for i, state := range states {
		require.LessOrEqual(t, state.RequestCount, maxCalls, "window %d", i)
		require.Equal(t, maxCalls, state.Limit)
		total += state.RequestCount
	}
	require.Equal(t, callers, total)
}

func TestRateLimitedInvokerHonoursContext(t *testing.T) {
	next := &recordingInvoker{}
	inv, err := NewRateLimitedInvoker(next, engine.RateLimitSpec{Window: time.Hour, MaxCalls: 1})
	require.NoError(t, err)
	defer inv.Close() // nolint:errcheck // test cleanup

	require.NoError(t, inv.Invoke(context.Background(), &Request{}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = inv.Invoke(ctx, &Request{}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, next.times(), 1)
}

func TestRateLimitedInvokerCloseStopsTracker(t *testing.T) {
	inv, err := NewRateLimitedInvoker(&recordingInvoker{}, engine.RateLimitSpec{Window: 5 * time.Millisecond, MaxCalls: 1})
	require.NoError(t, err)
	require.NoError(t, inv.Close())
	require.NoError(t, inv.Close())

	tracker, ok := inv.Permits.(*engine.QuotaTracker)
	require.True(t, ok)
	require.True(t, tracker.TryAcquire())
	time.Sleep(25 * time.Millisecond)
	require.False(t, tracker.TryAcquire())
}
