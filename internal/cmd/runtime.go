package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/client"
	"github.com/docgate/docgate/internal/config"
	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/engine"
	"github.com/docgate/docgate/internal/core/store"
	"github.com/docgate/docgate/internal/metrics"
	"github.com/docgate/docgate/internal/observability"
)

// clientRuntime owns a client and everything it was wired with. Close
// releases them in reverse order.
type clientRuntime struct {
	Client   *client.Client
	Store    *store.Store
	recorder *store.WindowRecorder
	redis    *redis.Client
}

// runtimeOptions selects the optional parts of a clientRuntime.
type runtimeOptions struct {
	// WithStore opens the store for the submission journal and quota
	// snapshots. Store failures are logged and the runtime continues without
	// it unless RequireStore is set.
	WithStore    bool
	RequireStore bool
	Logger       *zap.Logger
}

func newClientRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (*clientRuntime, error) {
	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		return nil, err
	}

	rt := &clientRuntime{}
	if opts.WithStore {
		db, err := openStore(ctx, cfg)
		switch {
		case err == nil:
			rt.Store = db
		case opts.RequireStore:
			return nil, fmt.Errorf("open store: %w", err)
		default:
			warn("Store unavailable, continuing without journal", zap.Error(err))
		}
	}

	clientOpts := client.Options{
		Logger: observability.RequestLogger(),
		OnWait: metrics.RecordQuotaWait,
	}
	if opts.Logger != nil {
		clientOpts.Logger = opts.Logger
	}

	if clientCfg.RateLimit != nil {
		if rt.Store != nil {
			rt.recorder = store.NewWindowRecorder(rt.Store, client.CreateDocumentPath, func(err error) {
				warn("Failed to record quota window", zap.Error(err))
			})
		}
		clientOpts.OnReset = rt.observeWindow

		permits, redisClient, err := sharedPermits(ctx, cfg.Redis, clientCfg.RateLimit)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		if quota, ok := permits.(*engine.RedisQuota); ok {
			quota.OnReset = rt.observeWindow
		}
		clientOpts.Permits = permits
		rt.redis = redisClient
	}

	c, err := client.New(clientCfg, clientOpts)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Client = c
	return rt, nil
}

func (rt *clientRuntime) observeWindow(state core.RateLimitState) {
	metrics.RecordQuotaWindow(state)
	if rt.recorder != nil {
		rt.recorder.Observe(state)
	}
}

// Journal returns the store when submissions should be recorded.
func (rt *clientRuntime) Journal(cfg *config.Config) *store.Store {
	if rt == nil || rt.Store == nil || !cfg.Store.Journal {
		return nil
	}
	return rt.Store
}

// Close stops the quota ticker before flushing the recorder so the final
// window is persisted.
func (rt *clientRuntime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	if rt.Client != nil {
		if state, ok := rt.Client.QuotaSnapshot(); ok {
			rt.observeWindow(state)
		}
		errs = append(errs, rt.Client.Close())
	}
	if rt.recorder != nil {
		errs = append(errs, rt.recorder.Close())
	}
	if rt.redis != nil {
		errs = append(errs, rt.redis.Close())
	}
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	return errors.Join(errs...)
}

// sharedPermits connects to Redis when redis.addr is set. The returned
// permits are nil when no shared quota is configured.
func sharedPermits(ctx context.Context, cfg config.RedisConfig, limit *client.RateLimitConfig) (engine.Permits, *redis.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, nil, nil
	}

	spec, err := engine.NewRateLimitSpec(limit.Unit, limit.Amount)
	if err != nil {
		return nil, nil, &client.ConfigurationError{Field: "rate_limit", Message: "amount and unit must be positive", Err: err}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	quota, err := engine.NewRedisQuota(pingCtx, rdb, spec, cfg.Prefix)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect shared quota at %s: %w", addr, err)
	}

	debug("Using shared Redis quota",
		zap.String("addr", addr),
		zap.String("prefix", quota.Prefix),
		zap.Duration("window", spec.Window),
		zap.Int("max_calls", spec.MaxCalls))
	return quota, rdb, nil
}

func warn(msg string, fields ...zap.Field) {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Warn(msg, fields...)
		return
	}
	if observability.CLILogger != nil {
		observability.CLILogger.Warn(msg, fields...)
	}
}

func debug(msg string, fields ...zap.Field) {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Debug(msg, fields...)
		return
	}
	if observability.CLILogger != nil {
		observability.CLILogger.Debug(msg, fields...)
	}
}
