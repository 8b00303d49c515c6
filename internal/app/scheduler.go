package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
)

// sweepTimeout bounds one scheduled expiry sweep.
const sweepTimeout = time.Minute

// startScheduler runs CleanExpired on the configured cron schedule. An empty
// schedule leaves expired items to lazy removal on read.
func (app *App) startScheduler() error {
	spec := app.Config.CleanupSchedule
	if spec == "" {
		app.Logger.Info("Expiry sweep: Disabled")
		return nil
	}

	app.scheduler = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := app.scheduler.AddFunc(spec, app.sweep); err != nil {
		return errors.ConfigError("invalid cleanup schedule: " + err.Error()).WithContext("schedule", spec)
	}
	app.scheduler.Start()

	app.Logger.Info("Expiry sweep: Scheduled", logging.Field{Key: "schedule", Value: spec})
	return nil
}

// sweep removes expired items from every level once.
func (app *App) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	start := time.Now()
	removed := app.Cache.CleanExpired(ctx)
	if app.Metrics != nil {
		app.Metrics.RecordSweep(removed)
	}

	app.Logger.Info("Expiry sweep completed",
		logging.Field{Key: "removed", Value: removed},
		logging.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()})
}
