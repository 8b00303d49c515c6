package circuitbreaker

import (
	"context"
	stderrors "errors"
	"time"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
)

// Guarded wraps an adapter so every call is bounded by a timeout and passes
// through a circuit breaker.
type Guarded struct {
	inner   adapters.Adapter
	breaker *GoBreakerAdapter
	timeout time.Duration
}

type guardedLocker struct {
	*Guarded
	locker adapters.Locker
}

// Guard wraps inner. The result implements adapters.Locker when inner does.
func Guard(inner adapters.Adapter, config Config, timeout time.Duration, logger logging.Logger) adapters.Adapter {
	g := &Guarded{
		inner:   inner,
		breaker: NewGoBreaker("cache-"+inner.Name(), config, logger),
		timeout: timeout,
	}
	if locker, ok := inner.(adapters.Locker); ok {
		return &guardedLocker{Guarded: g, locker: locker}
	}
	return g
}

func (g *Guarded) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return g.breaker.Execute(ctx, func() error {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		err := fn(callCtx)
		if err != nil && stderrors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return errors.TimeoutError(g.inner.Name() + " " + op)
		}
		return err
	})
}

// Unwrap returns the guarded adapter.
func (g *Guarded) Unwrap() adapters.Adapter { return g.inner }

// Breaker returns the circuit breaker guarding the adapter.
func (g *Guarded) Breaker() *GoBreakerAdapter { return g.breaker }

// Name implements adapters.Adapter.
func (g *Guarded) Name() string { return g.inner.Name() }

// Get implements adapters.Adapter.
func (g *Guarded) Get(ctx context.Context, key string) (item *adapters.Item, err error) {
	err = g.do(ctx, "get", func(ctx context.Context) error {
		item, err = g.inner.Get(ctx, key)
		return err
	})
	return item, err
}

// Set implements adapters.Adapter.
func (g *Guarded) Set(ctx context.Context, key string, item *adapters.Item) error {
	return g.do(ctx, "set", func(ctx context.Context) error {
		return g.inner.Set(ctx, key, item)
	})
}

// Delete implements adapters.Adapter.
func (g *Guarded) Delete(ctx context.Context, key string) (deleted bool, err error) {
	err = g.do(ctx, "delete", func(ctx context.Context) error {
		deleted, err = g.inner.Delete(ctx, key)
		return err
	})
	return deleted, err
}

// Clear implements adapters.Adapter. Clearing is not bounded by the per-call timeout.
func (g *Guarded) Clear(ctx context.Context) error {
	return g.breaker.Execute(ctx, func() error {
		return g.inner.Clear(ctx)
	})
}

// CleanExpired implements adapters.Adapter.
func (g *Guarded) CleanExpired(ctx context.Context) (removed int, err error) {
	err = g.breaker.Execute(ctx, func() error {
		removed, err = g.inner.CleanExpired(ctx)
		return err
	})
	return removed, err
}

// Close implements adapters.Adapter.
func (g *Guarded) Close() error { return g.inner.Close() }

// Stats implements adapters.StatsProvider, adding the breaker state.
func (g *Guarded) Stats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{}
	if sp, ok := g.inner.(adapters.StatsProvider); ok && !g.breaker.IsOpen() {
		stats = sp.Stats(ctx)
	}
	stats["circuit_breaker"] = g.breaker.Stats()
	return stats
}

// TryLock implements adapters.Locker.
func (g *guardedLocker) TryLock(ctx context.Context, key, token string, ttl time.Duration) (ok bool, err error) {
	err = g.do(ctx, "lock", func(ctx context.Context) error {
		ok, err = g.locker.TryLock(ctx, key, token, ttl)
		return err
	})
	return ok, err
}

// Unlock implements adapters.Locker.
func (g *guardedLocker) Unlock(ctx context.Context, key, token string) (ok bool, err error) {
	err = g.do(ctx, "unlock", func(ctx context.Context) error {
		ok, err = g.locker.Unlock(ctx, key, token)
		return err
	})
	return ok, err
}
