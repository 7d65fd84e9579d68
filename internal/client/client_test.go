package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/engine"
	"github.com/docgate/docgate/internal/core/invoker"
)

func sampleDocument() *core.Document {
	date := core.NewDate(2024, time.March, 15)
	return &core.Document{
		Description:    &core.Description{ParticipantInn: "7700000000"},
		ID:             "doc-1",
		Type:           "LP_INTRODUCE_GOODS",
		ProducerInn:    "7711111111",
		ProductionDate: &date,
		Products: []core.Product{
			{UitCode: "0104650000000000", TnvedCode: "6401"},
		},
	}
}

func TestConfigValidate(t *testing.T) {
	var cfgErr *ConfigurationError

	var nilCfg *Config
	require.ErrorAs(t, nilCfg.Validate(), &cfgErr)

	require.ErrorAs(t, (&Config{}).Validate(), &cfgErr)
	require.Equal(t, "base_url", cfgErr.Field)

	require.ErrorAs(t, (&Config{BaseURL: "not a url"}).Validate(), &cfgErr)

	for _, amount := range []int{0, -1} {
		cfg := &Config{BaseURL: "https://example.test", RateLimit: &RateLimitConfig{Unit: time.Second, Amount: amount}}
		err := cfg.Validate()
		require.ErrorAs(t, err, &cfgErr)
		require.Equal(t, "rate_limit", cfgErr.Field)
		require.ErrorIs(t, err, engine.ErrInvalidRateLimit)
	}

	require.NoError(t, (&Config{BaseURL: "https://example.test"}).Validate())
}

func TestNewFailsOnInvalidConfig(t *testing.T) {
	_, err := New(nil, Options{})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	_, err = New(&Config{BaseURL: "https://example.test", RateLimit: &RateLimitConfig{Unit: time.Second, Amount: 0}}, Options{})
	require.ErrorAs(t, err, &cfgErr)
}

func TestCreateDocumentRoundTrip(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CreateDocumentPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"value":"3f1c-registry-id","extra_field":[1,2,3]}`))
	}))
	defer server.Close()

	c, err := New(&Config{BaseURL: server.URL, ConnectTimeout: time.Second, ReadTimeout: time.Second}, Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer c.Close() // nolint:errcheck // test cleanup
	require.False(t, c.RateLimited())

	resp, err := c.CreateDocument(context.Background(), sampleDocument(), "")
	require.NoError(t, err)
	require.Equal(t, "3f1c-registry-id", resp.Value)
	require.Nil(t, resp.Error)
	require.NoError(t, resp.Err())

	require.Equal(t, "doc-1", received["doc_id"])
	require.Equal(t, "2024-03-15", received["production_date"])
	require.Equal(t, map[string]any{"participantInn": "7700000000"}, received["description"])
	_, hasStatus := received["doc_status"]
	require.False(t, hasStatus, "empty fields must be omitted")
}

func TestCreateDocumentErrorDescriptor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_INN","message":"participant inn is invalid"}}`))
	}))
	defer server.Close()

	c, err := New(&Config{BaseURL: server.URL}, Options{})
	require.NoError(t, err)

	resp, err := c.CreateDocument(context.Background(), sampleDocument(), "")
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	require.Equal(t, "INVALID_INN", resp.Error.Code)

	var apiErr *core.APIError
	require.ErrorAs(t, resp.Err(), &apiErr)
}

type failingInvoker struct {
	err error
}

func (f failingInvoker) Invoke(ctx context.Context, req *invoker.Request, out any) error {
	return f.err
}

type refusingTransport struct {
	calls atomic.Int64
}

func (r *refusingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	r.calls.Add(1)
	return nil, errors.New("connection refused")
}

func TestCreateDocumentTransportError(t *testing.T) {
	transport := &refusingTransport{}
	base := &invoker.HTTPInvoker{
		BaseURL: "https://registry.test",
		Client:  &http.Client{Transport: transport},
	}

	c, err := NewWithInvoker(&Config{BaseURL: "https://registry.test"}, base, Options{})
	require.NoError(t, err)

	resp, err := c.CreateDocument(context.Background(), sampleDocument(), "")
	require.Nil(t, resp)

	var transportErr *invoker.TransportError
	require.ErrorAs(t, err, &transportErr)
	var decodeErr *invoker.DecodeError
	require.False(t, errors.As(err, &decodeErr))
	require.Equal(t, int64(1), transport.calls.Load())
}

func TestCreateDocumentDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value":`))
	}))
	defer server.Close()

	c, err := New(&Config{BaseURL: server.URL}, Options{})
	require.NoError(t, err)

	resp, err := c.CreateDocument(context.Background(), sampleDocument(), "")
	require.Nil(t, resp)
	var decodeErr *invoker.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestCreateDocumentPropagatesInvokerError(t *testing.T) {
	sentinel := errors.New("boom")
	c, err := NewWithInvoker(&Config{BaseURL: "https://registry.test"}, failingInvoker{err: sentinel}, Options{})
	require.NoError(t, err)

	_, err = c.CreateDocument(context.Background(), sampleDocument(), "")
	require.ErrorIs(t, err, sentinel)

	_, err = c.CreateDocument(context.Background(), nil, "")
	require.Error(t, err)
}

func TestCreateDocumentSignature(t *testing.T) {
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Signature")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	signer := func(ctx context.Context, req *http.Request, signature string) error {
		req.Header.Set("X-Signature", signature)
		return nil
	}

	c, err := New(&Config{BaseURL: server.URL}, Options{Signer: signer})
	require.NoError(t, err)

	_, err = c.CreateDocument(context.Background(), sampleDocument(), "detached-sig")
	require.NoError(t, err)
	require.Equal(t, "detached-sig", gotSignature)
}

// runConcurrentCallers submits one document per caller at the same time and
// returns the elapsed wall time.
func runConcurrentCallers(t *testing.T, c *Client, callers int) time.Duration {
	t.Helper()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.CreateDocument(context.Background(), sampleDocument(), "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	return time.Since(start)
}

func TestCreateDocumentRateLimitedSerializesWindows(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"value":"ok"}`))
	}))
	defer server.Close()

	const window = 100 * time.Millisecond
	var resets atomic.Int64
	c, err := New(&Config{
		BaseURL:   server.URL,
		RateLimit: &RateLimitConfig{Unit: window, Amount: 1},
	}, Options{OnReset: func(core.RateLimitState) { resets.Add(1) }})
	require.NoError(t, err)
	defer c.Close() // nolint:errcheck // test cleanup
	require.True(t, c.RateLimited())

	elapsed := runConcurrentCallers(t, c, 10)

	require.Equal(t, int64(10), calls.Load())
	require.GreaterOrEqual(t, elapsed, 9*window-10*time.Millisecond)
	require.GreaterOrEqual(t, resets.Load(), int64(9))

	snapshot, ok := c.QuotaSnapshot()
	require.True(t, ok)
	require.Equal(t, 1, snapshot.Limit)
}

func TestCreateDocumentOneCallPerSecond(t *testing.T) {
	if testing.Short() {
		t.Skip("takes ten seconds")
	}

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, err := New(&Config{
		BaseURL:        server.URL,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
		RateLimit:      &RateLimitConfig{Unit: time.Second, Amount: 1},
	}, Options{})
	require.NoError(t, err)
	defer c.Close() // nolint:errcheck // test cleanup

	elapsed := runConcurrentCallers(t, c, 10)

	require.Equal(t, int64(10), calls.Load())
	require.GreaterOrEqual(t, elapsed, 9*time.Second-10*time.Millisecond)
}

func TestCreateDocumentSharedPermits(t *testing.T) {
	tracker, err := engine.NewQuotaTracker(engine.RateLimitSpec{Window: time.Hour, MaxCalls: 2})
	require.NoError(t, err)

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, err := New(&Config{BaseURL: server.URL, RateLimit: &RateLimitConfig{Unit: time.Hour, Amount: 2}}, Options{Permits: tracker})
	require.NoError(t, err)
	defer c.Close() // nolint:errcheck // test cleanup

	_, ok := c.QuotaSnapshot()
	require.False(t, ok)

	for i := 0; i < 2; i++ {
		_, err := c.CreateDocument(context.Background(), sampleDocument(), "")
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = c.CreateDocument(ctx, sampleDocument(), "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int64(2), calls.Load())
}
