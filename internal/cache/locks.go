package cache

import (
	"context"
	"time"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
)

// lockAuthority returns the first lock-capable adapter of the slowest level.
// The slowest level is the one shared by the most processes.
func (c *Cache) lockAuthority() (adapters.Locker, string) {
	for i := len(c.tiers) - 1; i >= 0; i-- {
		for _, a := range c.tiers[i].adapters {
			if l, ok := a.(adapters.Locker); ok {
				return l, a.Name()
			}
		}
	}
	return nil, ""
}

// Lock acquires an exclusive lock on key for at most ttl and returns the
// token needed to release it. It returns ErrLockHeld when another holder
// owns the lock. Lock does not wait or retry.
func (c *Cache) Lock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if !c.config.Enabled {
		return "", ErrDisabled
	}
	nk := adapters.NormalizeKey(key)
	if nk == "" {
		return "", errors.ValidationError("lock key must not be empty")
	}
	if ttl <= 0 {
		return "", errors.ValidationError("lock timeout must be positive")
	}
	locker, name := c.lockAuthority()
	if locker == nil {
		return "", errors.ConfigError("no cache level supports locks")
	}

	token := c.token()
	ok, err := locker.TryLock(ctx, nk, token, ttl)
	if err != nil {
		return "", errors.StorageError("lock backend unavailable", err).WithContext("adapter", name)
	}
	if !ok {
		return "", ErrLockHeld.WithContext("key", nk)
	}
	return token, nil
}

// Unlock releases the lock on key if it is still held with token.
func (c *Cache) Unlock(ctx context.Context, key, token string) bool {
	if token == "" {
		return false
	}
	locker, name := c.lockAuthority()
	if locker == nil {
		return false
	}
	ok, err := locker.Unlock(ctx, adapters.NormalizeKey(key), token)
	if err != nil {
		c.logger.Warn("Failed to release lock",
			logging.Field{Key: "adapter", Value: name},
			logging.Field{Key: "key", Value: key},
			logging.Err(err))
		return false
	}
	return ok
}

// Increment adds step to the integer stored under key and returns the new
// value. An absent or non-numeric value starts from initial. A ttl of zero
// or less uses the default TTL.
func (c *Cache) Increment(ctx context.Context, key string, step, initial int64, ttl time.Duration) (int64, error) {
	token, err := c.Lock(ctx, key, c.config.LockTimeout)
	if err != nil {
		return 0, err
	}
	defer c.Unlock(ctx, key, token)

	current := initial
	if item, ok := c.lookup(ctx, key, true, true); ok {
		if n, ok := parseCounter(item.Value); ok {
			current = n
		}
	}

	next := current + step
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	if err := c.Set(ctx, key, next, WithTTL(ttl)); err != nil {
		return 0, err
	}
	return next, nil
}

// Decrement subtracts step from the integer stored under key.
func (c *Cache) Decrement(ctx context.Context, key string, step, initial int64, ttl time.Duration) (int64, error) {
	return c.Increment(ctx, key, -step, initial, ttl)
}
