//go:build cgo

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docgate/docgate/internal/config"
	"github.com/docgate/docgate/internal/core"
)

func openMemoryStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrations must be re-runnable")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSubmissionJournal(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	subs := []*core.Submission{
		{ID: "s1", DocumentID: "doc-1", Source: "a.json", Status: core.SubmissionAccepted, Value: "reg-1", RequestedAt: base, CompletedAt: base.Add(120 * time.Millisecond)},
		{ID: "s2", DocumentID: "doc-2", Status: core.SubmissionRejected, ErrorCode: "INVALID", Message: "bad inn", RequestedAt: base.Add(time.Second), CompletedAt: base.Add(2 * time.Second)},
		{ID: "s3", DocumentID: "doc-1", Status: core.SubmissionTransport, Message: "refused", RequestedAt: base.Add(2 * time.Second), CompletedAt: base.Add(2 * time.Second)},
	}
	for _, sub := range subs {
		require.NoError(t, store.RecordSubmission(ctx, sub))
	}

	all, err := store.ListSubmissions(ctx, SubmissionQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "s3", all[0].ID, "newest first")
	require.Equal(t, "s1", all[2].ID)
	require.Equal(t, "a.json", all[2].Source)
	require.Equal(t, "reg-1", all[2].Value)
	require.Equal(t, 120*time.Millisecond, all[2].Duration())

	byDoc, err := store.ListSubmissions(ctx, SubmissionQuery{DocumentID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, byDoc, 2)

	rejected, err := store.ListSubmissions(ctx, SubmissionQuery{Status: core.SubmissionRejected})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	require.Equal(t, "INVALID", rejected[0].ErrorCode)

	limited, err := store.ListSubmissions(ctx, SubmissionQuery{Since: base.Add(time.Second), Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "s3", limited[0].ID)

	count, err := store.CountSubmissions(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	purged, err := store.PurgeSubmissions(ctx, base.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	count, err = store.CountSubmissions(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	require.Error(t, store.RecordSubmission(ctx, &core.Submission{}))
	require.Error(t, store.RecordSubmission(ctx, nil))
}

func TestRateLimitSnapshots(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	missing, err := store.GetRateLimit(ctx, "registry")
	require.NoError(t, err)
	require.Nil(t, missing)

	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	state := &core.RateLimitState{Limit: 5, RequestCount: 3, WindowStart: start, WindowEnd: start.Add(time.Second)}
	require.NoError(t, store.UpdateRateLimit(ctx, "registry:create", state))
	require.NoError(t, store.UpdateRateLimit(ctx, "other", &core.RateLimitState{Limit: 1, WindowStart: start}))

	got, err := store.GetRateLimit(ctx, "registry:create")
	require.NoError(t, err)
	require.Equal(t, *state, *got)
	require.Equal(t, 2, got.Remaining())

	entries, err := store.ListRateLimits(ctx, RateLimitQuery{Prefix: "registry"})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	count, err := store.CountRateLimits(ctx, RateLimitQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = store.ListRateLimits(ctx, RateLimitQuery{})
	require.Error(t, err)

	removed, err := store.ResetRateLimits(ctx, RateLimitQuery{Endpoint: "other"})
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestWindowRecorderKeepsLatestWindow(t *testing.T) {
	ctx := context.Background()
	store := openMemoryStore(t)

	var errs []error
	recorder := NewWindowRecorder(store, "registry:create", func(err error) { errs = append(errs, err) })

	start := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		windowStart := start.Add(time.Duration(i) * time.Second)
		recorder.Observe(core.RateLimitState{Limit: 2, RequestCount: i % 3, WindowStart: windowStart, WindowEnd: windowStart.Add(time.Second)})
	}
	require.NoError(t, recorder.Close())
	recorder.Observe(core.RateLimitState{Limit: 99})

	require.Empty(t, errs)
	got, err := store.GetRateLimit(ctx, "registry:create")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 2, got.Limit)
	require.Equal(t, start.Add(9*time.Second), got.WindowStart)
}

func TestWindowRecorderReportsErrors(t *testing.T) {
	var reported error
	recorder := NewWindowRecorder(&Store{}, "x", func(err error) { reported = err })
	recorder.Observe(core.RateLimitState{Limit: 1})
	require.NoError(t, recorder.Close())
	require.Error(t, reported)
	require.False(t, errors.Is(reported, context.Canceled))
}
