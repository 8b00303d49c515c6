// Package warmer pre-populates the cache from named jobs.
//
// A job lists keys and produces a value per key. Only present values are
// written; keys already cached are skipped unless the job asks to overwrite.
// Producers run concurrently up to a limit and are paced by a token bucket.
package warmer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"fastsearch-cache/internal/cache"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
)

// Store is the part of the cache the warmer writes to.
type Store interface {
	Exists(ctx context.Context, key string) bool
	Set(ctx context.Context, key string, value interface{}, opts ...cache.SetOption) error
}

// KeySource lists the keys of a job.
type KeySource func(ctx context.Context) ([]string, error)

// StaticKeys returns a KeySource over a fixed list.
func StaticKeys(keys ...string) KeySource {
	return func(context.Context) ([]string, error) {
		return keys, nil
	}
}

// Job describes one warm-up batch.
type Job struct {
	Name      string
	Keys      KeySource
	Produce   cache.Producer
	TTL       time.Duration
	Tags      []string
	Overwrite bool
}

// Result reports what a job did.
type Result struct {
	Job      string        `json:"job"`
	Keys     int           `json:"keys"`
	Warmed   int           `json:"warmed"`
	Skipped  int           `json:"skipped"`
	Absent   int           `json:"absent"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Config bounds producer concurrency and rate.
type Config struct {
	Concurrency   int     `yaml:"concurrency" validate:"min=1"`
	RatePerSecond float64 `yaml:"rate_per_second" validate:"min=0"`
	Burst         int     `yaml:"burst" validate:"min=0"`
}

// DefaultConfig runs four producers at up to 50 calls per second.
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		RatePerSecond: 50,
		Burst:         10,
	}
}

// Warmer runs jobs against a Store.
type Warmer struct {
	store   Store
	config  Config
	limiter *rate.Limiter
	logger  logging.Logger
}

// New creates a warmer. A RatePerSecond of 0 disables pacing.
func New(store Store, config Config, logger logging.Logger) *Warmer {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if logger == nil {
		logger = logging.Component("warmer")
	}

	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}

	return &Warmer{
		store:   store,
		config:  config,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Run executes jobs in order and returns one result per job. A failing job
// is logged and does not stop the others; only cancellation does.
func (w *Warmer) Run(ctx context.Context, jobs ...Job) ([]Result, error) {
	results := make([]Result, 0, len(jobs))
	for _, job := range jobs {
		res, err := w.RunJob(ctx, job)
		results = append(results, res)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			w.logger.Error("Warm-up job failed", err, logging.Field{Key: "job", Value: job.Name})
		}
	}
	return results, nil
}

// RunJob executes a single job.
func (w *Warmer) RunJob(ctx context.Context, job Job) (Result, error) {
	start := time.Now()
	res := Result{Job: job.Name}
	if job.Keys == nil || job.Produce == nil {
		return res, errors.ValidationError(fmt.Sprintf("warm-up job %q needs keys and a producer", job.Name))
	}

	keys, err := job.Keys(ctx)
	if err != nil {
		return res, fmt.Errorf("listing keys for %s: %w", job.Name, err)
	}
	res.Keys = len(keys)

	opts := []cache.SetOption{cache.WithTags(job.Tags...)}
	if job.TTL > 0 {
		opts = append(opts, cache.WithTTL(job.TTL))
	}

	var warmed, skipped, absent, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.Concurrency)

	for _, key := range keys {
		key := key
		if !job.Overwrite && w.store.Exists(gctx, key) {
			skipped.Add(1)
			continue
		}

		g.Go(func() error {
			if err := w.limiter.Wait(gctx); err != nil {
				return err
			}
			value, ok, err := job.Produce(gctx, key)
			if err != nil {
				failed.Add(1)
				w.logger.Warn("Warm-up producer failed",
					logging.Field{Key: "job", Value: job.Name},
					logging.Field{Key: "key", Value: key},
					logging.Err(err))
				return nil
			}
			if !ok {
				absent.Add(1)
				return nil
			}
			if err := w.store.Set(gctx, key, value, opts...); err != nil {
				failed.Add(1)
				w.logger.Warn("Warm-up write failed",
					logging.Field{Key: "job", Value: job.Name},
					logging.Field{Key: "key", Value: key},
					logging.Err(err))
				return nil
			}
			warmed.Add(1)
			return nil
		})
	}

	err = g.Wait()
	res.Warmed = int(warmed.Load())
	res.Skipped = int(skipped.Load())
	res.Absent = int(absent.Load())
	res.Failed = int(failed.Load())
	res.Duration = time.Since(start)

	w.logger.Info("Warm-up job finished",
		logging.Field{Key: "job", Value: job.Name},
		logging.Field{Key: "keys", Value: res.Keys},
		logging.Field{Key: "warmed", Value: res.Warmed},
		logging.Field{Key: "skipped", Value: res.Skipped},
		logging.Field{Key: "absent", Value: res.Absent},
		logging.Field{Key: "failed", Value: res.Failed},
		logging.Field{Key: "duration", Value: res.Duration.String()})
	return res, err
}
