package store

import (
	"context"
	"sync"
	"time"

	"github.com/docgate/docgate/internal/core"
)

const recordTimeout = 5 * time.Second

// WindowRecorder persists quota windows off the caller's goroutine. Only the
// most recent pending window is kept, so a slow database never holds up the
// quota reset ticker.
type WindowRecorder struct {
	store    *Store
	endpoint string
	onError  func(error)

	mu     sync.Mutex
	closed bool
	states chan core.RateLimitState
	done   chan struct{}
}

// NewWindowRecorder starts a recorder writing to the rate_limits row of
// endpoint. onError may be nil.
func NewWindowRecorder(s *Store, endpoint string, onError func(error)) *WindowRecorder {
	r := &WindowRecorder{
		store:    s,
		endpoint: endpoint,
		onError:  onError,
		states:   make(chan core.RateLimitState, 1),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Observe queues state for writing, replacing any window still pending. It
// never blocks. Calls after Close are ignored.
func (r *WindowRecorder) Observe(state core.RateLimitState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	select {
	case r.states <- state:
		return
	default:
	}

	select {
	case <-r.states:
	default:
	}
	select {
	case r.states <- state:
	default:
	}
}

// Close flushes the pending window and stops the writer.
func (r *WindowRecorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.states)
	}
	r.mu.Unlock()

	<-r.done
	return nil
}

func (r *WindowRecorder) run() {
	defer close(r.done)
	for state := range r.states {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err := r.store.UpdateRateLimit(ctx, r.endpoint, &state)
		cancel()
		if err != nil && r.onError != nil {
			r.onError(err)
		}
	}
}
