package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docgate/docgate/internal/core"
)

// ErrInvalidRateLimit is returned when a rate limit has no positive amount or
// window.
var ErrInvalidRateLimit = errors.New("invalid rate limit")

// ErrClosed is returned by Acquire once the tracker has been stopped and no
// permit is left.
var ErrClosed = errors.New("quota tracker closed")

// RateLimitSpec is an immutable fixed-window quota: at most MaxCalls calls per
// Window.
type RateLimitSpec struct {
	Window   time.Duration
	MaxCalls int
}

// NewRateLimitSpec validates and returns a RateLimitSpec.
func NewRateLimitSpec(window time.Duration, maxCalls int) (RateLimitSpec, error) {
	if maxCalls <= 0 {
		return RateLimitSpec{}, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidRateLimit, maxCalls)
	}
	if window <= 0 {
		return RateLimitSpec{}, fmt.Errorf("%w: window must be positive, got %s", ErrInvalidRateLimit, window)
	}
	return RateLimitSpec{Window: window, MaxCalls: maxCalls}, nil
}

// ParseUnit maps a time unit name to its duration.
func ParseUnit(unit string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "ms", "millisecond", "milliseconds":
		return time.Millisecond, nil
	case "s", "sec", "second", "seconds", "":
		return time.Second, nil
	case "m", "min", "minute", "minutes":
		return time.Minute, nil
	case "h", "hour", "hours":
		return time.Hour, nil
	case "d", "day", "days":
		return 24 * time.Hour, nil
	}
	if d, err := time.ParseDuration(unit); err == nil && d > 0 {
		return d, nil
	}
	return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidRateLimit, unit)
}

// Permits hands out call permits. QuotaTracker and RedisQuota implement it.
type Permits interface {
	// Acquire blocks until a permit is granted or ctx is done.
	Acquire(ctx context.Context) error
	// TryAcquire takes a permit without blocking.
	TryAcquire() bool
	// Close releases background resources.
	Close() error
}

// QuotaTracker is an in-process fixed-window permit counter. Remaining
// permits are reset to MaxCalls at every window start by a background ticker
// started with Start and stopped with Stop.
type QuotaTracker struct {
	spec      RateLimitSpec
	remaining atomic.Int64

	mu          sync.Mutex
	wake        chan struct{}
	windowStart time.Time
	closed      bool

	// OnReset, when set, receives the usage of each window as it closes.
	OnReset func(state core.RateLimitState)
	Clock   func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewQuotaTracker returns a tracker with a full window of permits. The reset
// ticker is not running until Start is called.
func NewQuotaTracker(spec RateLimitSpec) (*QuotaTracker, error) {
	if _, err := NewRateLimitSpec(spec.Window, spec.MaxCalls); err != nil {
		return nil, err
	}

	t := &QuotaTracker{
		spec: spec,
		wake: make(chan struct{}),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	t.remaining.Store(int64(spec.MaxCalls))
	t.windowStart = t.now()
	return t, nil
}

// Spec returns the tracker's rate limit.
func (t *QuotaTracker) Spec() RateLimitSpec {
	return t.spec
}

// TryAcquire takes one permit if any is left in the current window. The
// counter floors at zero so denied attempts never move it.
func (t *QuotaTracker) TryAcquire() bool {
	for {
		current := t.remaining.Load()
		if current <= 0 {
			return false
		}
		if t.remaining.CompareAndSwap(current, current-1) {
			return true
		}
	}
}

// Acquire blocks until a permit is available or ctx is done. Waiters park on
// a channel that the next ResetWindow closes. After Stop, Acquire drains the
// permits left in the current window and then fails with ErrClosed.
func (t *QuotaTracker) Acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		// Grab the wake channel before trying so a reset between the
		// attempt and the wait is not missed.
		t.mu.Lock()
		wake := t.wake
		closed := t.closed
		t.mu.Unlock()

		if t.TryAcquire() {
			return nil
		}
		if closed {
			return ErrClosed
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ResetWindow refills the window to MaxCalls and wakes every waiter.
func (t *QuotaTracker) ResetWindow() {
	now := t.now()
	used := int64(t.spec.MaxCalls) - t.remaining.Swap(int64(t.spec.MaxCalls))

	t.mu.Lock()
	previousStart := t.windowStart
	t.windowStart = now
	if !t.closed {
		close(t.wake)
		t.wake = make(chan struct{})
	}
	t.mu.Unlock()

	if t.OnReset != nil {
		t.OnReset(core.RateLimitState{
			Limit:        t.spec.MaxCalls,
			RequestCount: int(used),
			WindowStart:  previousStart,
			WindowEnd:    now,
		})
	}
}

// Remaining returns the permits left in the current window.
func (t *QuotaTracker) Remaining() int {
	return int(t.remaining.Load())
}

// Snapshot reports usage of the current window so far.
func (t *QuotaTracker) Snapshot() core.RateLimitState {
	t.mu.Lock()
	start := t.windowStart
	t.mu.Unlock()

	return core.RateLimitState{
		Limit:        t.spec.MaxCalls,
		RequestCount: t.spec.MaxCalls - t.Remaining(),
		WindowStart:  start,
		WindowEnd:    start.Add(t.spec.Window),
	}
}

// Start launches the reset ticker. Calling Start more than once has no effect.
func (t *QuotaTracker) Start() {
	t.startOnce.Do(func() {
		go t.run()
	})
}

// Stop halts the reset ticker, waits for it to exit and releases parked
// Acquire calls with ErrClosed. Safe to call more than once, and before Start.
func (t *QuotaTracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		started := true
		t.startOnce.Do(func() { started = false })
		if started {
			<-t.done
		}

		t.mu.Lock()
		t.closed = true
		close(t.wake)
		t.mu.Unlock()
	})
}

// Close implements Permits.
func (t *QuotaTracker) Close() error {
	t.Stop()
	return nil
}

func (t *QuotaTracker) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.spec.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.ResetWindow()
		case <-t.stop:
			return
		}
	}
}

func (t *QuotaTracker) now() time.Time {
	if t != nil && t.Clock != nil {
		return t.Clock()
	}
	return time.Now().UTC()
}
