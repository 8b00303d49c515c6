package cache

import (
	"context"
	"time"

	"fastsearch-cache/internal/common/logging"
	"fastsearch-cache/internal/common/utils"
)

// Config holds the coordinator settings.
type Config struct {
	// Enabled turns the whole cache on or off. A disabled cache misses
	// every read and refuses every write.
	Enabled bool `yaml:"enabled"`
	// DefaultTTL applies to writes without an explicit TTL.
	DefaultTTL time.Duration `yaml:"default_ttl" validate:"gt=0"`
	// LockTimeout bounds the lock taken by Increment and Decrement.
	LockTimeout time.Duration `yaml:"lock_timeout" validate:"gt=0"`
}

// DefaultConfig returns an enabled cache with a 30 minute default TTL.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		DefaultTTL:  30 * time.Minute,
		LockTimeout: 5 * time.Second,
	}
}

// KeyResolver expands a warm-up pattern into concrete keys.
type KeyResolver func(ctx context.Context, pattern string) ([]string, error)

// Producer computes the value for a key. ok=false means there is nothing to
// cache for that key.
type Producer func(ctx context.Context, key string) (value interface{}, ok bool, err error)

// Invalidation describes keys and tags changed by one process so that peers
// can drop their process-local copies.
type Invalidation struct {
	Keys  []string `json:"keys,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Flush bool     `json:"flush,omitempty"`
}

// Notifier publishes invalidations to other processes.
type Notifier interface {
	Notify(ctx context.Context, inv Invalidation) error
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithKeyResolver sets the pattern resolver used by Warm.
func WithKeyResolver(resolver KeyResolver) Option {
	return func(c *Cache) {
		if resolver != nil {
			c.resolve = resolver
		}
	}
}

// WithNotifier publishes every local change through n.
func WithNotifier(n Notifier) Option {
	return func(c *Cache) {
		c.notifier = n
	}
}

// WithTokenGenerator replaces the lock token source.
func WithTokenGenerator(gen func() string) Option {
	return func(c *Cache) {
		if gen != nil {
			c.token = gen
		}
	}
}

func literalKeys(_ context.Context, pattern string) ([]string, error) {
	return []string{pattern}, nil
}

var defaultToken = utils.GenerateLockToken

// SetOption customizes a single write.
type SetOption func(*setOptions)

type setOptions struct {
	ttl    time.Duration
	hasTTL bool
	tags   []string
}

// WithTTL sets the lifetime of the item. Zero or negative values store an
// item that is already expired.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
		o.hasTTL = true
	}
}

// WithTags attaches tags used by InvalidateByTags.
func WithTags(tags ...string) SetOption {
	return func(o *setOptions) {
		o.tags = append(o.tags, tags...)
	}
}
