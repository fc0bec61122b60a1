package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/adapters/redis"
	"github.com/aretw0/chatflow/pkg/observability"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/aretw0/chatflow/pkg/ports"
)

// NewApp initializes a chatflow App following the configuration: session store
// driver, engine limits and, when set, the flow definitions directory.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra ...chatflow.Option) (*chatflow.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts := []chatflow.Option{
		chatflow.WithLogger(logger),
		chatflow.WithEventSink(observability.LogSink{Logger: logger}),
		chatflow.WithLifecycleHooks(observability.LogHooks(logger)),
		chatflow.WithStepBudget(cfg.Engine.StepBudget),
		chatflow.WithAPITimeouts(cfg.Engine.APITimeout, cfg.Engine.APIMaxTimeout),
		chatflow.WithMaxInputSize(cfg.Session.MaxInputSize),
	}

	var store ports.SessionStore
	switch cfg.Store.Driver {
	case config.DriverRedis:
		rs := redis.New(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB,
			redis.WithRetention(cfg.Session.Retention),
			redis.WithPrefix(cfg.Store.Redis.Prefix),
		)
		if err := rs.Client().Ping(ctx).Err(); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Store.Redis.Addr, err)
		}
		store = rs
		opts = append(opts,
			chatflow.WithLocker(redis.NewLocker(rs.Client(), cfg.Store.Redis.Prefix)),
			chatflow.WithCloser(rs.Close),
		)
		logger.Info("Using redis session store", "addr", cfg.Store.Redis.Addr, "prefix", cfg.Store.Redis.Prefix)
	case config.DriverFile:
		store = file.New(cfg.Store.File.Dir, file.WithRetention(cfg.Session.Retention))
		logger.Info("Using file session store", "dir", cfg.Store.File.Dir)
	default:
		store = memory.NewStore(memory.WithRetention(cfg.Session.Retention))
	}

	if cfg.Session.EncryptionKey != "" {
		enc, err := encryptionConfig(cfg)
		if err != nil {
			return nil, err
		}
		store = middleware.Chain(store, middleware.NewEncryptionMiddleware(enc))
		logger.Info("Session encryption enabled", "fallback_keys", len(enc.FallbackKeys))
	}
	opts = append(opts, chatflow.WithSessionStore(store))

	app := chatflow.New(append(opts, extra...)...)
	if cfg.Flows.Dir != "" {
		n, err := app.LoadFlows(ctx, cfg.Flows.Dir)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("loading flows: %w", err)
		}
		logger.Info("Flows loaded", "dir", cfg.Flows.Dir, "count", n)
	}
	return app, nil
}

func encryptionConfig(cfg *config.Config) (middleware.EncryptionConfig, error) {
	var enc middleware.EncryptionConfig
	key, err := middleware.ParseKey(cfg.Session.EncryptionKey)
	if err != nil {
		return enc, err
	}
	enc.ActiveKey = key
	for _, s := range cfg.Session.FallbackKeys {
		k, err := middleware.ParseKey(s)
		if err != nil {
			return enc, err
		}
		enc.FallbackKeys = append(enc.FallbackKeys, k)
	}
	return enc, nil
}
