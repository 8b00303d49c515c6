package app

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/robfig/cron/v3"

	"fastsearch-cache/internal/cache"
	"fastsearch-cache/internal/common/logging"
	"fastsearch-cache/internal/config"
	"fastsearch-cache/internal/health"
	"fastsearch-cache/internal/invalidation"
	"fastsearch-cache/internal/metrics"
	"fastsearch-cache/internal/ratelimit"
	"fastsearch-cache/internal/redis"
	"fastsearch-cache/internal/warmer"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Cache       *cache.Cache
	Redis       *redis.Client
	Bus         *invalidation.Bus
	Metrics     *metrics.Collector
	Health      *health.Reporter
	Warmer      *warmer.Warmer
	RateLimiter *ratelimit.Limiter
	Disk        health.DiskSource
	Logger      logging.Logger

	scheduler *cron.Cron
	closeOnce sync.Once
}

// New creates a new application instance with all dependencies
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	if err := app.initializeRedis(ctx); err != nil {
		return nil, err
	}

	if err := app.initializeCache(ctx); err != nil {
		app.Close()
		return nil, err
	}

	if err := app.initializeMetrics(); err != nil {
		app.Close()
		return nil, err
	}

	memoryLimit, err := cfg.ParsedMemoryLimit()
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Health = health.NewReporter(app.Cache, memoryLimit, app.Disk, nil)
	app.Warmer = warmer.New(app.Cache, cfg.Warmer, nil)
	app.RateLimiter = ratelimit.NewLimiter(cfg.RateLimit)

	if err := app.startScheduler(); err != nil {
		app.Close()
		return nil, err
	}

	return app, nil
}

func (app *App) initializeCache(ctx context.Context) error {
	registry, err := app.newRegistry()
	if err != nil {
		return err
	}
	bindings, err := app.buildBindings(ctx, registry)
	if err != nil {
		return err
	}

	opts := []cache.Option{cache.WithLogger(logging.Component("cache"))}
	switch {
	case app.Config.Invalidation.Enabled && app.Redis == nil:
		app.Logger.Warn("Invalidation bus disabled: no redis connection")
	case app.Config.Invalidation.Enabled:
		app.Bus = invalidation.New(app.Redis, app.Config.Invalidation.Channel, app.Config.InstanceID, nil)
		opts = append(opts, cache.WithNotifier(app.Bus))
	}

	c, err := cache.New(app.Config.Cache, bindings, opts...)
	if err != nil {
		for _, b := range bindings {
			_ = b.Adapter.Close()
		}
		return err
	}
	app.Cache = c

	if app.Bus != nil {
		if err := app.Bus.Start(context.Background(), c); err != nil {
			return err
		}
	}

	levels := make([]string, 0, 3)
	for _, level := range c.Levels() {
		levels = append(levels, level.String())
	}
	app.Logger.Info("Cache initialized",
		logging.Strings("levels", levels),
		logging.Field{Key: "enabled", Value: app.Config.Cache.Enabled},
		logging.Field{Key: "default_ttl", Value: app.Config.Cache.DefaultTTL.String()})
	return nil
}

func (app *App) initializeMetrics() error {
	if !app.Config.Metrics.Enabled {
		return nil
	}
	collector, err := metrics.NewCollector(app.Config.Metrics, app.Cache)
	if err != nil {
		return err
	}
	app.Metrics = collector
	return nil
}

// Shutdown stops the sweep schedule, waiting for a running sweep until ctx
// ends, then releases every backend.
func (app *App) Shutdown(ctx context.Context) error {
	if app.scheduler != nil {
		select {
		case <-app.scheduler.Stop().Done():
		case <-ctx.Done():
			app.Logger.Warn("Expiry sweep still running at shutdown")
		}
	}
	return app.Close()
}

// Close releases the invalidation bus, the cache adapters and the Redis
// connection. It is safe to call more than once.
func (app *App) Close() error {
	var errs []error
	app.closeOnce.Do(func() {
		if app.Bus != nil {
			errs = append(errs, app.Bus.Close())
		}
		if app.Cache != nil {
			errs = append(errs, app.Cache.Close())
		}
		if app.Redis != nil {
			errs = append(errs, app.Redis.Close())
		}
	})
	return stderrors.Join(errs...)
}
