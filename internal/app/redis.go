package app

import (
	"context"

	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
	"fastsearch-cache/internal/common/utils"
	redisclient "fastsearch-cache/internal/redis"
)

// initializeRedis connects when the redis level or the invalidation bus is
// configured, retrying while the server comes up. An unreachable server leaves
// app.Redis nil; the components that need it are skipped later.
func (app *App) initializeRedis(ctx context.Context) error {
	if !app.Config.NeedsRedis() {
		app.Logger.Info("Redis: Not configured (redis level and invalidation bus disabled)")
		return nil
	}

	redisConfig := app.Config.Redis.Config
	retry := utils.DefaultRetryConfig()
	retry.RetryableErrors = func(err error) bool {
		return errors.IsType(err, errors.ErrTypeConnection)
	}

	var client *redisclient.Client
	err := utils.RetryWithBackoff(ctx, retry, func() error {
		var err error
		client, err = redisclient.NewClient(ctx, &redisConfig)
		if err != nil {
			app.Logger.Warn("Redis connection attempt failed", logging.Err(err))
		}
		return err
	})
	if err != nil {
		if !backendUnavailable(err) {
			return err
		}
		app.Logger.Warn("Redis: Unavailable, continuing without it",
			logging.Err(err),
			logging.Field{Key: "address", Value: redisConfig.Address})
		return nil
	}

	app.Redis = client
	app.Logger.Info("Redis: Connected", logging.Field{Key: "address", Value: client.Address()})
	return nil
}

// backendUnavailable reports whether err means a backend could not be reached,
// as opposed to being misconfigured.
func backendUnavailable(err error) bool {
	return errors.IsType(err, errors.ErrTypeConnection) || errors.IsType(err, errors.ErrTypeTimeout)
}
