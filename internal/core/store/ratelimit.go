package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docgate/docgate/internal/core"
)

// GetRateLimit returns the last recorded quota window for an endpoint.
func (s *Store) GetRateLimit(ctx context.Context, endpoint string) (*core.RateLimitState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	var (
		limit        int
		requestCount int
		windowStart  int64
		windowEnd    int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT limit_count, request_count, window_start, window_end
		FROM rate_limits
		WHERE endpoint = ?
	`, endpoint)

	if err := row.Scan(&limit, &requestCount, &windowStart, &windowEnd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}

	return &core.RateLimitState{
		Limit:        limit,
		RequestCount: requestCount,
		WindowStart:  fromMillis(windowStart),
		WindowEnd:    fromMillis(windowEnd),
	}, nil
}

// UpdateRateLimit persists the usage of a quota window for an endpoint.
func (s *Store) UpdateRateLimit(ctx context.Context, endpoint string, state *core.RateLimitState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (endpoint, limit_count, request_count, window_start, window_end)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			limit_count = excluded.limit_count,
			request_count = excluded.request_count,
			window_start = excluded.window_start,
			window_end = excluded.window_end
	`, endpoint, state.Limit, state.RequestCount, toMillis(state.WindowStart), toMillis(state.WindowEnd))
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}

	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
