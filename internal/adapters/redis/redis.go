// Package redis implements the distributed cache level on Redis.
//
// Keys are stored under a configurable prefix with a native TTL, so expired
// items vanish on their own. Locks use go-redsync: SET NX PX to acquire and a
// compare-and-delete script to release.
package redis

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/codec"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
	redisclient "fastsearch-cache/internal/redis"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
)

// lockNamespace sits after the prefix. Normalized keys never contain ':',
// so lock keys cannot collide with item keys.
const lockNamespace = "lock:"

// DefaultPrefix is prepended to every redis key.
const DefaultPrefix = "fastsearch:"

// Adapter is the Redis cache level.
type Adapter struct {
	client *redisclient.Client
	rdb    *redis.Client
	rs     *redsync.Redsync
	prefix string
	codec  *codec.Codec
	logger logging.Logger
	now    func() time.Time
}

// New creates an adapter on a connected client.
func New(client *redisclient.Client, prefix string, c *codec.Codec) *Adapter {
	if c == nil {
		c = codec.Default()
	}
	rdb := client.Raw()
	return &Adapter{
		client: client,
		rdb:    rdb,
		rs:     redsync.New(goredis.NewPool(rdb)),
		prefix: prefix,
		codec:  c,
		logger: logging.Component("redis_adapter").WithFields(logging.Field{Key: "address", Value: client.Address()}),
		now:    time.Now,
	}
}

// Name implements adapters.Adapter.
func (a *Adapter) Name() string { return "redis" }

func (a *Adapter) itemKey(key string) string { return a.prefix + key }

func (a *Adapter) lockKey(key string) string { return a.prefix + lockNamespace + key }

// Get implements adapters.Adapter.
func (a *Adapter) Get(ctx context.Context, key string) (*adapters.Item, error) {
	data, err := a.rdb.Get(ctx, a.itemKey(key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ConnectionError("redis get failed", err)
	}

	var item adapters.Item
	if err := a.codec.Decode(data, &item); err != nil {
		a.logger.Warn("Removing corrupted redis value", logging.Field{Key: "key", Value: key}, logging.Err(err))
		a.rdb.Del(ctx, a.itemKey(key))
		return nil, nil
	}
	return &item, nil
}

// Set implements adapters.Adapter. Already expired items delete the key.
func (a *Adapter) Set(ctx context.Context, key string, item *adapters.Item) error {
	remaining := item.Remaining(a.now())
	if remaining <= 0 {
		if err := a.rdb.Del(ctx, a.itemKey(key)).Err(); err != nil {
			return errors.ConnectionError("redis delete failed", err)
		}
		return nil
	}

	data, err := a.codec.Encode(item)
	if err != nil {
		return err
	}
	if err := a.rdb.Set(ctx, a.itemKey(key), data, remaining).Err(); err != nil {
		return errors.ConnectionError("redis set failed", err)
	}
	return nil
}

// Delete implements adapters.Adapter.
func (a *Adapter) Delete(ctx context.Context, key string) (bool, error) {
	n, err := a.rdb.Del(ctx, a.itemKey(key)).Result()
	if err != nil {
		return false, errors.ConnectionError("redis delete failed", err)
	}
	return n > 0, nil
}

// Clear implements adapters.Adapter. It scans the prefix and keeps lock keys.
func (a *Adapter) Clear(ctx context.Context) error {
	lockPrefix := a.prefix + lockNamespace
	iter := a.rdb.Scan(ctx, 0, a.prefix+"*", 500).Iterator()

	batch := make([]string, 0, 500)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := a.rdb.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		if strings.HasPrefix(iter.Val(), lockPrefix) {
			continue
		}
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return errors.ConnectionError("redis clear failed", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return errors.ConnectionError("redis scan failed", err)
	}
	if err := flush(); err != nil {
		return errors.ConnectionError("redis clear failed", err)
	}
	return nil
}

// CleanExpired implements adapters.Adapter. Redis expires keys natively.
func (a *Adapter) CleanExpired(_ context.Context) (int, error) {
	return 0, nil
}

// Close implements adapters.Adapter. The shared client is closed by its owner.
func (a *Adapter) Close() error { return nil }

// TryLock implements adapters.Locker.
func (a *Adapter) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	mutex := a.rs.NewMutex(a.lockKey(key),
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
		redsync.WithGenValueFunc(func() (string, error) { return token, nil }),
	)

	if err := mutex.LockContext(ctx); err == nil {
		return true, nil
	}

	// Distinguish a held lock from an unreachable server.
	if err := a.rdb.Exists(ctx, a.lockKey(key)).Err(); err != nil {
		return false, errors.ConnectionError("redis lock failed", err)
	}
	return false, nil
}

// Unlock implements adapters.Locker.
func (a *Adapter) Unlock(ctx context.Context, key, token string) (bool, error) {
	held, err := a.rdb.Get(ctx, a.lockKey(key)).Result()
	if stderrors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.ConnectionError("redis unlock failed", err)
	}
	if held != token {
		return false, nil
	}

	mutex := a.rs.NewMutex(a.lockKey(key), redsync.WithValue(token))
	ok, err := mutex.UnlockContext(ctx)
	if err != nil && !ok {
		a.logger.Debug("Lock release lost a race", logging.Field{Key: "key", Value: key}, logging.Err(err))
	}
	return ok, nil
}

// Stats implements adapters.StatsProvider using INFO.
func (a *Adapter) Stats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"prefix": a.prefix,
	}

	wanted := map[string][]string{
		"clients": {"connected_clients"},
		"memory":  {"used_memory", "used_memory_human"},
		"stats":   {"keyspace_hits", "keyspace_misses"},
	}
	for section, fields := range wanted {
		info, err := a.client.Info(ctx, section)
		if err != nil {
			continue
		}
		for _, field := range fields {
			v, ok := info[field]
			if !ok {
				continue
			}
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				stats[field] = n
			} else {
				stats[field] = v
			}
		}
	}
	return stats
}
