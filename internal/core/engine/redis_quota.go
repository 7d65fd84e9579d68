package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docgate/docgate/internal/core"
)

// fixedWindowScript takes a permit from the window counter in KEYS[1] unless
// ARGV[1] permits are already used. The counter never exceeds the limit and
// outlives its window by one window so the closed count can still be read.
var fixedWindowScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
if used >= tonumber(ARGV[1]) then
	return 0
end
used = redis.call('INCR', KEYS[1])
if used == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// RedisQuota is a fixed-window quota shared by every process that uses the
// same Redis key prefix. Windows are aligned to multiples of the window
// duration since the Unix epoch.
type RedisQuota struct {
	Client *redis.Client
	Spec   RateLimitSpec
	Prefix string
	Clock  func() time.Time
	// Timeout bounds TryAcquire's round trip to Redis.
	Timeout time.Duration
	// OnReset, when set, receives the shared usage of the previous window the
	// first time this process takes a permit in a new window.
	OnReset func(state core.RateLimitState)

	mu        sync.Mutex
	lastIndex int64
}

// NewRedisQuota validates the spec and pings Redis.
func NewRedisQuota(ctx context.Context, client *redis.Client, spec RateLimitSpec, prefix string) (*RedisQuota, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if _, err := NewRateLimitSpec(spec.Window, spec.MaxCalls); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "docgate:quota"
	}

	return &RedisQuota{Client: client, Spec: spec, Prefix: prefix, Timeout: 2 * time.Second}, nil
}

// TryAcquire takes a permit from the current window. Redis failures deny the
// permit.
func (q *RedisQuota) TryAcquire() bool {
	ctx := context.Background()
	if q.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.Timeout)
		defer cancel()
	}
	ok, err := q.take(ctx, q.now())
	return err == nil && ok
}

// Acquire blocks until a permit is taken, ctx is done or Redis fails.
func (q *RedisQuota) Acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		now := q.now()
		ok, err := q.take(ctx, now)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(q.untilNextWindow(now))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Close implements Permits. The Redis client is owned by the caller.
func (q *RedisQuota) Close() error {
	return nil
}

func (q *RedisQuota) take(ctx context.Context, now time.Time) (bool, error) {
	index := q.windowIndex(now)
	if q.OnReset != nil {
		if previous, ok := q.rollover(index); ok {
			q.reportWindow(ctx, previous)
		}
	}

	ttl := 2 * q.Spec.Window.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}

	granted, err := fixedWindowScript.Run(ctx, q.Client, []string{q.indexKey(index)}, q.Spec.MaxCalls, ttl).Int()
	if err != nil {
		return false, fmt.Errorf("redis quota: %w", err)
	}
	return granted == 1, nil
}

// rollover records index as the current window and reports the window before
// it when index is newer than the last one seen. The first window seen is
// never reported since its start is unknown to this process.
func (q *RedisQuota) rollover(index int64) (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lastIndex == 0 {
		q.lastIndex = index
		return 0, false
	}
	if index <= q.lastIndex {
		return 0, false
	}
	q.lastIndex = index
	return index - 1, true
}

func (q *RedisQuota) reportWindow(ctx context.Context, index int64) {
	used, err := q.Client.Get(ctx, q.indexKey(index)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return
	}
	q.OnReset(q.windowState(index, used))
}

func (q *RedisQuota) windowState(index int64, used int) core.RateLimitState {
	start := time.Unix(0, index*int64(q.Spec.Window)).UTC()
	return core.RateLimitState{
		Limit:        q.Spec.MaxCalls,
		RequestCount: used,
		WindowStart:  start,
		WindowEnd:    start.Add(q.Spec.Window),
	}
}

func (q *RedisQuota) windowIndex(now time.Time) int64 {
	return now.UnixNano() / int64(q.Spec.Window)
}

func (q *RedisQuota) windowKey(now time.Time) string {
	return q.indexKey(q.windowIndex(now))
}

func (q *RedisQuota) indexKey(index int64) string {
	return fmt.Sprintf("%s:%d", q.Prefix, index)
}

func (q *RedisQuota) untilNextWindow(now time.Time) time.Duration {
	window := int64(q.Spec.Window)
	next := (now.UnixNano()/window + 1) * window
	return time.Duration(next - now.UnixNano())
}

func (q *RedisQuota) now() time.Time {
	if q != nil && q.Clock != nil {
		return q.Clock()
	}
	return time.Now().UTC()
}
