package app

import (
	"context"
	"strings"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/adapters/file"
	"fastsearch-cache/internal/adapters/local"
	"fastsearch-cache/internal/adapters/memcached"
	"fastsearch-cache/internal/adapters/memory"
	redisadapter "fastsearch-cache/internal/adapters/redis"
	"fastsearch-cache/internal/adapters/sqldb"
	"fastsearch-cache/internal/cache"
	"fastsearch-cache/internal/circuitbreaker"
	"fastsearch-cache/internal/codec"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
)

// newRegistry registers a factory for every adapter the configuration can
// name. Network backends are wrapped in a circuit breaker.
func (app *App) newRegistry() (*adapters.Registry, error) {
	cfg := app.Config

	persisted, err := codec.NewFromNames(cfg.File.Serializer, cfg.File.Compression)
	if err != nil {
		return nil, errors.ConfigError(err.Error())
	}

	guard := func(a adapters.Adapter) adapters.Adapter {
		return circuitbreaker.Guard(a, cfg.Breaker, cfg.BackendTimeout,
			app.Logger.WithFields(logging.Field{Key: "adapter", Value: a.Name()}))
	}

	registry := adapters.NewRegistry()
	registry.Register("memory", func(context.Context) (adapters.Adapter, error) {
		return memory.New(cfg.Memory, memory.WithLogger(logging.Component("memory"))), nil
	})
	registry.Register("local", func(context.Context) (adapters.Adapter, error) {
		return local.New(cfg.Local), nil
	})
	registry.Register("file", func(context.Context) (adapters.Adapter, error) {
		a, err := file.New(cfg.File.Config, persisted, file.WithLogger(logging.Component("file")))
		if err != nil {
			return nil, err
		}
		app.Disk = a
		return a, nil
	})
	registry.Register("sql", func(ctx context.Context) (adapters.Adapter, error) {
		a, err := sqldb.New(ctx, cfg.SQL, persisted)
		if err != nil {
			return nil, err
		}
		if isNetworkDriver(cfg.SQL.Driver) {
			return guard(a), nil
		}
		return a, nil
	})
	registry.Register("redis", func(context.Context) (adapters.Adapter, error) {
		if app.Redis == nil {
			return nil, errors.ConnectionError("redis level has no redis connection", nil)
		}
		return guard(redisadapter.New(app.Redis, cfg.Redis.Prefix, codec.Default())), nil
	})
	registry.Register("memcached", func(context.Context) (adapters.Adapter, error) {
		a, err := memcached.Dial(cfg.Memcached, codec.Default())
		if err != nil {
			return nil, err
		}
		return guard(a), nil
	})
	return registry, nil
}

func isNetworkDriver(driver string) bool {
	switch strings.ToLower(driver) {
	case "postgres", "pgx":
		return true
	}
	return false
}

// buildBindings creates the adapters of every configured level in priority
// order. Adapters whose backend cannot be reached are logged and left out;
// any other failure closes the adapters created so far.
func (app *App) buildBindings(ctx context.Context, registry *adapters.Registry) ([]cache.LevelBinding, error) {
	var bindings []cache.LevelBinding
	fail := func(err error) ([]cache.LevelBinding, error) {
		for _, b := range bindings {
			_ = b.Adapter.Close()
		}
		return nil, err
	}

	byLevel := app.Config.Levels.ByLevel()
	for _, level := range []cache.Level{cache.LevelMemory, cache.LevelPersistent, cache.LevelDistributed} {
		for _, name := range byLevel[level] {
			a, err := registry.Create(ctx, name)
			if err != nil {
				if backendUnavailable(err) {
					app.Logger.Warn("Cache adapter unavailable, skipping",
						logging.Err(err),
						logging.Field{Key: "level", Value: level.String()},
						logging.Field{Key: "adapter", Value: name})
					continue
				}
				return fail(err)
			}
			bindings = append(bindings, cache.LevelBinding{Level: level, Adapter: a})
			app.Logger.Info("Cache adapter ready",
				logging.Field{Key: "level", Value: level.String()},
				logging.Field{Key: "adapter", Value: name})
		}
	}
	return bindings, nil
}
