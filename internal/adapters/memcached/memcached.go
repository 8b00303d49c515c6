// Package memcached implements the distributed cache level on memcached
// through bradfitz/gomemcache.
package memcached

import (
	"context"
	stderrors "errors"
	"math"
	"strings"
	"time"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/codec"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"

	"github.com/bradfitz/gomemcache/memcache"
)

// relativeExpiryLimit is the largest expiration memcached treats as relative
// seconds; larger values are read as a unix timestamp.
const relativeExpiryLimit = 30 * 24 * time.Hour

const lockNamespace = "lock:"

// Config configures the memcached level.
type Config struct {
	Servers []string      `yaml:"servers" validate:"required,min=1,dive,hostname_port"`
	Prefix  string        `yaml:"prefix"`
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

// DefaultConfig points at a single local server.
func DefaultConfig() Config {
	return Config{
		Servers: []string{"127.0.0.1:11211"},
		Prefix:  "fastsearch:",
		Timeout: 500 * time.Millisecond,
	}
}

// Client is the subset of *memcache.Client used by the adapter.
type Client interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Add(item *memcache.Item) error
	Delete(key string) error
	DeleteAll() error
	Ping() error
}

// Adapter is the memcached cache level.
type Adapter struct {
	client Client
	prefix string
	codec  *codec.Codec
	logger logging.Logger
	now    func() time.Time
}

// Dial connects to the configured servers and verifies they answer.
func Dial(config Config, c *codec.Codec) (*Adapter, error) {
	if len(config.Servers) == 0 {
		return nil, errors.ConfigError("at least one memcached server is required")
	}
	mc := memcache.New(config.Servers...)
	if config.Timeout > 0 {
		mc.Timeout = config.Timeout
	}
	if err := mc.Ping(); err != nil {
		return nil, errors.ConnectionError("failed to reach memcached", err).
			WithContext("servers", strings.Join(config.Servers, ","))
	}
	return New(mc, config.Prefix, c), nil
}

// New wraps an existing client.
func New(client Client, prefix string, c *codec.Codec) *Adapter {
	if c == nil {
		c = codec.Default()
	}
	return &Adapter{
		client: client,
		prefix: prefix,
		codec:  c,
		logger: logging.Component("memcached_adapter"),
		now:    time.Now,
	}
}

// Name implements adapters.Adapter.
func (a *Adapter) Name() string { return "memcached" }

// expiration converts a remaining lifetime into memcached's expiration
// field, rounding up to whole seconds.
func (a *Adapter) expiration(remaining time.Duration) int32 {
	secs := int64(math.Ceil(remaining.Seconds()))
	if remaining > relativeExpiryLimit {
		return int32(a.now().Unix() + secs)
	}
	return int32(secs)
}

// Get implements adapters.Adapter.
func (a *Adapter) Get(_ context.Context, key string) (*adapters.Item, error) {
	mi, err := a.client.Get(a.prefix + key)
	if stderrors.Is(err, memcache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ConnectionError("memcached get failed", err)
	}

	var item adapters.Item
	if err := a.codec.Decode(mi.Value, &item); err != nil {
		a.logger.Warn("Removing corrupted memcached value", logging.Field{Key: "key", Value: key}, logging.Err(err))
		_ = a.client.Delete(a.prefix + key)
		return nil, nil
	}
	return &item, nil
}

// Set implements adapters.Adapter. Already expired items delete the key.
func (a *Adapter) Set(ctx context.Context, key string, item *adapters.Item) error {
	remaining := item.Remaining(a.now())
	if remaining <= 0 {
		_, err := a.Delete(ctx, key)
		return err
	}

	data, err := a.codec.Encode(item)
	if err != nil {
		return err
	}
	err = a.client.Set(&memcache.Item{
		Key:        a.prefix + key,
		Value:      data,
		Expiration: a.expiration(remaining),
	})
	if err != nil {
		return errors.ConnectionError("memcached set failed", err)
	}
	return nil
}

// Delete implements adapters.Adapter.
func (a *Adapter) Delete(_ context.Context, key string) (bool, error) {
	err := a.client.Delete(a.prefix + key)
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	return false, errors.ConnectionError("memcached delete failed", err)
}

// Clear implements adapters.Adapter. Memcached cannot enumerate keys, so this
// flushes every server, including keys outside the prefix.
func (a *Adapter) Clear(_ context.Context) error {
	if err := a.client.DeleteAll(); err != nil {
		return errors.ConnectionError("memcached flush failed", err)
	}
	return nil
}

// CleanExpired implements adapters.Adapter. Memcached expires keys natively.
func (a *Adapter) CleanExpired(_ context.Context) (int, error) {
	return 0, nil
}

// Close implements adapters.Adapter.
func (a *Adapter) Close() error { return nil }

// TryLock implements adapters.Locker with memcached's add, which only stores
// absent keys.
func (a *Adapter) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	err := a.client.Add(&memcache.Item{
		Key:        a.prefix + lockNamespace + key,
		Value:      []byte(token),
		Expiration: a.expiration(ttl),
	})
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, memcache.ErrNotStored) {
		return false, nil
	}
	return false, errors.ConnectionError("memcached lock failed", err)
}

// Unlock implements adapters.Locker.
func (a *Adapter) Unlock(_ context.Context, key, token string) (bool, error) {
	lockKey := a.prefix + lockNamespace + key
	mi, err := a.client.Get(lockKey)
	if stderrors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, errors.ConnectionError("memcached unlock failed", err)
	}
	if string(mi.Value) != token {
		return false, nil
	}

	err = a.client.Delete(lockKey)
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	return false, errors.ConnectionError("memcached unlock failed", err)
}

// Stats implements adapters.StatsProvider.
func (a *Adapter) Stats(_ context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"prefix":    a.prefix,
		"reachable": true,
	}
	if err := a.client.Ping(); err != nil {
		stats["reachable"] = false
		stats["error"] = err.Error()
	}
	return stats
}
