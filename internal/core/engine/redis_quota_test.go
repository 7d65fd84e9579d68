package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/docgate/docgate/internal/core"
)

func TestRedisQuotaWindowMath(t *testing.T) {
	q := &RedisQuota{Spec: RateLimitSpec{Window: time.Second, MaxCalls: 1}, Prefix: "test"}

	now := time.Unix(100, 250*int64(time.Millisecond))
	require.Equal(t, "test:100", q.windowKey(now))
	require.Equal(t, 750*time.Millisecond, q.untilNextWindow(now))
}

func TestRedisQuotaRollover(t *testing.T) {
	q := &RedisQuota{Spec: RateLimitSpec{Window: time.Second, MaxCalls: 5}, Prefix: "test"}

	_, ok := q.rollover(100)
	require.False(t, ok, "first window seen has no predecessor to report")
	_, ok = q.rollover(100)
	require.False(t, ok)

	previous, ok := q.rollover(101)
	require.True(t, ok)
	require.Equal(t, int64(100), previous)

	_, ok = q.rollover(100)
	require.False(t, ok, "stale window must not be reported")

	previous, ok = q.rollover(105)
	require.True(t, ok)
	require.Equal(t, int64(104), previous)

	state := q.windowState(100, 3)
	require.Equal(t, time.Unix(100, 0).UTC(), state.WindowStart)
	require.Equal(t, time.Unix(101, 0).UTC(), state.WindowEnd)
	require.Equal(t, 3, state.RequestCount)
	require.Equal(t, 2, state.Remaining())
}

func TestRedisQuota_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close() // nolint:errcheck // best-effort cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}

	prefix := fmt.Sprintf("docgate_test_%d", time.Now().UnixNano())
	quota, err := NewRedisQuota(ctx, client, RateLimitSpec{Window: time.Hour, MaxCalls: 2}, prefix)
	require.NoError(t, err)

	require.True(t, quota.TryAcquire())
	require.True(t, quota.TryAcquire())
	for i := 0; i < 50; i++ {
		require.False(t, quota.TryAcquire())
	}

	used, err := client.Get(ctx, quota.windowKey(time.Now().UTC())).Int()
	require.NoError(t, err)
	require.Equal(t, 2, used)

	waitCtx, waitCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer waitCancel()
	require.ErrorIs(t, quota.Acquire(waitCtx), context.DeadlineExceeded)
}

func TestRedisQuota_IntegrationReportsClosedWindow(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close() // nolint:errcheck // best-effort cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}

	prefix := fmt.Sprintf("docgate_test_%d", time.Now().UnixNano())
	quota, err := NewRedisQuota(ctx, client, RateLimitSpec{Window: time.Minute, MaxCalls: 3}, prefix)
	require.NoError(t, err)

	clock := time.Unix(6000, 0).UTC()
	quota.Clock = func() time.Time { return clock }

	var states []core.RateLimitState
	quota.OnReset = func(state core.RateLimitState) {
		states = append(states, state)
	}

	require.True(t, quota.TryAcquire())
	require.True(t, quota.TryAcquire())
	require.Empty(t, states)

	clock = clock.Add(time.Minute)
	require.True(t, quota.TryAcquire())

	require.Len(t, states, 1)
	require.Equal(t, 2, states[0].RequestCount)
	require.Equal(t, 3, states[0].Limit)
	require.Equal(t, time.Unix(6000, 0).UTC(), states[0].WindowStart)
	require.Equal(t, time.Unix(6060, 0).UTC(), states[0].WindowEnd)
}
