// Package client is the entry point for submitting documents to the registry.
// It picks a plain or rate-limited invoker once, at construction, and shares
// it between every goroutine that calls CreateDocument.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/engine"
	"github.com/docgate/docgate/internal/core/invoker"
)

// CreateDocumentPath is the registry endpoint for new documents.
const CreateDocumentPath = "/lk/documents/create"

// DefaultBaseURL is the production registry API root.
const DefaultBaseURL = "https://ismp.crpt.ru/api/v3"

// RateLimitConfig caps calls to Amount per Unit.
type RateLimitConfig struct {
	Unit   time.Duration
	Amount int
}

// Config configures a Client. It is not modified after New.
type Config struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	RateLimit      *RateLimitConfig
}

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "invalid configuration"
	}
	if e.Err != nil {
		return fmt.Sprintf("invalid configuration: %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Validate checks the configuration without building a client.
func (c *Config) Validate() error {
	if c == nil {
		return &ConfigurationError{Field: "config", Message: "is required"}
	}

	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		return &ConfigurationError{Field: "base_url", Message: "is required"}
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &ConfigurationError{Field: "base_url", Message: fmt.Sprintf("%q is not an absolute URL", base), Err: err}
	}
	if c.ConnectTimeout < 0 {
		return &ConfigurationError{Field: "connect_timeout", Message: "must not be negative"}
	}
	if c.ReadTimeout < 0 {
		return &ConfigurationError{Field: "read_timeout", Message: "must not be negative"}
	}

	if c.RateLimit != nil {
		if _, err := engine.NewRateLimitSpec(c.RateLimit.Unit, c.RateLimit.Amount); err != nil {
			return &ConfigurationError{Field: "rate_limit", Message: "amount and unit must be positive", Err: err}
		}
	}

	return nil
}

// Options carries optional collaborators for New.
type Options struct {
	Logger invoker.Logger
	Signer invoker.Signer
	// Permits replaces the in-process quota tracker, e.g. with a shared
	// engine.RedisQuota. Ignored when no rate limit is configured.
	Permits engine.Permits
	// OnReset observes each closed window of the in-process tracker.
	OnReset func(state core.RateLimitState)
	// OnWait observes how long each call waited for a permit.
	OnWait func(wait time.Duration)
}

// Client submits documents to the registry.
type Client struct {
	invoker invoker.Invoker
	limited *invoker.RateLimitedInvoker
	tracker *engine.QuotaTracker
	logger  invoker.Logger
}

// New validates cfg and wires the invoker chain. Callers must Close the
// client to stop the quota reset ticker.
func New(cfg *Config, opts Options) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	plain := invoker.NewHTTPInvoker(cfg.BaseURL, invoker.TransportOptions{
		ConnectTimeout:           cfg.ConnectTimeout,
		ReadTimeout:              cfg.ReadTimeout,
		RetryOnConnectionFailure: true,
	})
	plain.Signer = opts.Signer
	plain.Logger = opts.Logger

	return newClient(cfg, plain, opts)
}

// NewWithInvoker builds a client around a caller-supplied base invoker.
// Rate limiting from cfg still applies.
func NewWithInvoker(cfg *Config, base invoker.Invoker, opts Options) (*Client, error) {
	if base == nil {
		return nil, &ConfigurationError{Field: "invoker", Message: "is required"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newClient(cfg, base, opts)
}

func newClient(cfg *Config, base invoker.Invoker, opts Options) (*Client, error) {
	c := &Client{invoker: base, logger: opts.Logger}
	if cfg.RateLimit == nil {
		return c, nil
	}

	spec, err := engine.NewRateLimitSpec(cfg.RateLimit.Unit, cfg.RateLimit.Amount)
	if err != nil {
		return nil, &ConfigurationError{Field: "rate_limit", Message: "amount and unit must be positive", Err: err}
	}

	permits := opts.Permits
	if permits == nil {
		tracker, err := engine.NewQuotaTracker(spec)
		if err != nil {
			return nil, &ConfigurationError{Field: "rate_limit", Message: "invalid", Err: err}
		}
		tracker.OnReset = opts.OnReset
		tracker.Start()
		c.tracker = tracker
		permits = tracker
	}

	c.limited = &invoker.RateLimitedInvoker{
		Next:    base,
		Permits: permits,
		Logger:  opts.Logger,
		OnWait:  opts.OnWait,
	}
	c.invoker = c.limited

	if opts.Logger != nil {
		opts.Logger.Debug("Rate limiting enabled",
			zap.Duration("window", spec.Window),
			zap.Int("max_calls", spec.MaxCalls))
	}

	return c, nil
}

// RateLimited reports whether calls are gated by a quota.
func (c *Client) RateLimited() bool {
	return c != nil && c.limited != nil
}

// QuotaSnapshot reports usage of the current in-process window. ok is false
// when the client has no in-process tracker.
func (c *Client) QuotaSnapshot() (state core.RateLimitState, ok bool) {
	if c == nil || c.tracker == nil {
		return core.RateLimitState{}, false
	}
	return c.tracker.Snapshot(), true
}

// CreateDocument submits doc. signature is handed to the configured Signer;
// it is ignored when none is set. A registry error descriptor is returned in
// the response, not as an error.
func (c *Client) CreateDocument(ctx context.Context, doc *core.Document, signature string) (*core.DocumentCreatedResponse, error) {
	if c == nil || c.invoker == nil {
		return nil, errors.New("client is not configured")
	}
	if doc == nil {
		return nil, errors.New("document is required")
	}

	req, err := invoker.NewJSONRequest(CreateDocumentPath, doc)
	if err != nil {
		return nil, err
	}
	req.Signature = signature

	var resp core.DocumentCreatedResponse
	if err := c.invoker.Invoke(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Close stops the quota reset ticker and releases the permit source.
func (c *Client) Close() error {
	if c == nil || c.limited == nil {
		return nil
	}
	return c.limited.Close()
}
