package invoker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/core/engine"
)

// RateLimitedInvoker waits for a permit before delegating to Next. It owns the
// permit source and releases it on Close.
type RateLimitedInvoker struct {
	Next    Invoker
	Permits engine.Permits
	Logger  Logger
	// OnWait, when set, observes how long each call waited for its permit.
	OnWait func(wait time.Duration)
}

// NewRateLimitedInvoker decorates next with an in-process quota tracker and
// starts its reset ticker.
func NewRateLimitedInvoker(next Invoker, spec engine.RateLimitSpec) (*RateLimitedInvoker, error) {
	tracker, err := engine.NewQuotaTracker(spec)
	if err != nil {
		return nil, err
	}
	tracker.Start()
	return &RateLimitedInvoker{Next: next, Permits: tracker}, nil
}

// Invoke blocks until a permit is available, then calls Next. Waiting ends
// early only if ctx is done.
func (r *RateLimitedInvoker) Invoke(ctx context.Context, req *Request, out any) error {
	if r == nil || r.Next == nil {
		return fmt.Errorf("rate limited invoker not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if r.Permits != nil {
		started := time.Now()
		if err := r.Permits.Acquire(ctx); err != nil {
			return fmt.Errorf("wait for rate limit permit: %w", err)
		}
		wait := time.Since(started)
		if r.Logger != nil && wait > time.Millisecond {
			r.Logger.Debug("Rate limit permit acquired", zap.Duration("wait", wait))
		}
		if r.OnWait != nil {
			r.OnWait(wait)
		}
	}

	return r.Next.Invoke(ctx, req, out)
}

// Close stops the permit source's background work.
func (r *RateLimitedInvoker) Close() error {
	if r == nil || r.Permits == nil {
		return nil
	}
	return r.Permits.Close()
}
