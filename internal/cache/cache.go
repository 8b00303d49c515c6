// Package cache coordinates an ordered set of cache levels.
//
// Reads walk the levels from fastest to slowest and promote a hit into every
// faster level with its original expiry. Writes go to every level; a write
// succeeds when at least one level accepted it. Storage failures are logged
// and degrade to misses, only invalid input surfaces as an error.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
)

var (
	// ErrNotStored is returned when no level accepted a write.
	ErrNotStored = errors.StorageError("no cache level accepted the write", nil).WithCode("NOT_STORED")
	// ErrLockHeld is returned when another holder owns the lock.
	ErrLockHeld = errors.LockError("lock is held").WithCode("LOCK_HELD")
	// ErrDisabled is returned by writes while the cache is disabled.
	ErrDisabled = errors.ConfigError("cache is disabled").WithCode("CACHE_DISABLED")
)

// Cache is the multi-level cache coordinator. It is safe for concurrent use.
type Cache struct {
	config Config
	tiers  []tier

	logger   logging.Logger
	now      func() time.Time
	resolve  KeyResolver
	notifier Notifier
	token    func() string

	tags  *tagIndex
	stats counters
}

// New builds a coordinator over the given bindings. Bindings are ordered by
// level; bindings sharing a level keep their relative order as priority.
func New(config Config, bindings []LevelBinding, opts ...Option) (*Cache, error) {
	if config.DefaultTTL <= 0 {
		return nil, errors.ConfigError("default TTL must be positive")
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = DefaultConfig().LockTimeout
	}

	c := &Cache{
		config:  config,
		logger:  logging.Component("cache"),
		now:     time.Now,
		resolve: literalKeys,
		token:   defaultToken,
		tags:    newTagIndex(),
	}
	for _, opt := range opts {
		opt(c)
	}

	sorted := append([]LevelBinding(nil), bindings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	for _, b := range sorted {
		if !b.Level.Valid() {
			return nil, errors.ConfigError(fmt.Sprintf("invalid cache level %d", int(b.Level)))
		}
		if b.Adapter == nil {
			return nil, errors.ConfigError(fmt.Sprintf("nil adapter for level %s", b.Level))
		}
		if n := len(c.tiers); n > 0 && c.tiers[n-1].level == b.Level {
			c.tiers[n-1].adapters = append(c.tiers[n-1].adapters, b.Adapter)
			continue
		}
		c.tiers = append(c.tiers, tier{level: b.Level, adapters: []adapters.Adapter{b.Adapter}})
	}
	if len(c.tiers) == 0 {
		return nil, errors.ConfigError("at least one cache level is required")
	}

	c.logger.Info("Cache initialized",
		logging.Field{Key: "levels", Value: c.Levels()},
		logging.Field{Key: "enabled", Value: config.Enabled},
		logging.Field{Key: "default_ttl", Value: config.DefaultTTL.String()})
	return c, nil
}

// Enabled reports whether the cache serves reads and writes.
func (c *Cache) Enabled() bool {
	return c.config.Enabled
}

// Levels returns the configured levels in lookup order.
func (c *Cache) Levels() []Level {
	out := make([]Level, len(c.tiers))
	for i, t := range c.tiers {
		out[i] = t.level
	}
	return out
}

// lookup walks the levels for key. Expired items are removed from the level
// they were found in. A hit is promoted into every faster level.
func (c *Cache) lookup(ctx context.Context, key string, count, promote bool) (*adapters.Item, bool) {
	if !c.config.Enabled {
		return nil, false
	}

	nk := adapters.NormalizeKey(key)
	if nk == "" {
		if count {
			c.stats.misses.Add(1)
		}
		return nil, false
	}

	now := c.now()
	for i, t := range c.tiers {
		for _, a := range t.adapters {
			item, err := a.Get(ctx, nk)
			if err != nil {
				c.logger.Warn("Cache level read failed",
					logging.Field{Key: "level", Value: t.level.String()},
					logging.Field{Key: "adapter", Value: a.Name()},
					logging.Field{Key: "key", Value: nk},
					logging.Err(err))
				continue
			}
			if item == nil {
				continue
			}
			if item.Expired(now) {
				if _, err := a.Delete(ctx, nk); err != nil {
					c.logger.Debug("Failed to drop expired item",
						logging.Field{Key: "adapter", Value: a.Name()},
						logging.Field{Key: "key", Value: nk},
						logging.Err(err))
				}
				continue
			}

			if promote && i > 0 {
				c.promote(ctx, nk, item, c.tiers[:i])
			}
			if count {
				c.stats.hits.Add(1)
			}
			return item, true
		}
	}

	if count {
		c.stats.misses.Add(1)
	}
	return nil, false
}

func (c *Cache) promote(ctx context.Context, nk string, item *adapters.Item, faster []tier) {
	for _, t := range faster {
		if c.storeTier(ctx, t, nk, item) {
			c.logger.Debug("Promoted cache item",
				logging.Field{Key: "key", Value: nk},
				logging.Field{Key: "level", Value: t.level.String()})
		}
	}
	if len(item.Tags) > 0 {
		c.tags.add(nk, item.Tags)
	}
}

// storeTier writes item to the first adapter of the tier that accepts it.
func (c *Cache) storeTier(ctx context.Context, t tier, nk string, item *adapters.Item) bool {
	for _, a := range t.adapters {
		if err := a.Set(ctx, nk, item); err != nil {
			c.logger.Warn("Cache level write failed",
				logging.Field{Key: "level", Value: t.level.String()},
				logging.Field{Key: "adapter", Value: a.Name()},
				logging.Field{Key: "key", Value: nk},
				logging.Err(err))
			continue
		}
		return true
	}
	return false
}

// Get returns the cached value decoded into a generic JSON value, or def on
// a miss.
func (c *Cache) Get(ctx context.Context, key string, def interface{}) interface{} {
	item, ok := c.lookup(ctx, key, true, true)
	if !ok {
		return def
	}
	var v interface{}
	if err := json.Unmarshal(item.Value, &v); err != nil {
		c.logger.Warn("Cached value is not valid JSON",
			logging.Field{Key: "key", Value: item.Key}, logging.Err(err))
		return def
	}
	return v
}

// Fetch decodes the cached value into dst. It reports false on a miss and
// returns an error only when a present value cannot be decoded into dst.
func (c *Cache) Fetch(ctx context.Context, key string, dst interface{}) (bool, error) {
	item, ok := c.lookup(ctx, key, true, true)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(item.Value, dst); err != nil {
		return false, errors.CorruptedError(fmt.Sprintf("cannot decode cached value for %q", key), err)
	}
	return true, nil
}

// GetBytes returns the raw JSON payload stored for key.
func (c *Cache) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	item, ok := c.lookup(ctx, key, true, true)
	if !ok {
		return nil, false
	}
	return item.Value, true
}

// Has reports whether key is cached. It counts as a read.
func (c *Cache) Has(ctx context.Context, key string) bool {
	_, ok := c.lookup(ctx, key, true, true)
	return ok
}

// Exists reports whether key is cached without touching statistics or
// promoting the item.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	_, ok := c.lookup(ctx, key, false, false)
	return ok
}

// Set stores value under key in every level.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, opts ...SetOption) error {
	if !c.config.Enabled {
		return ErrDisabled
	}
	nk := adapters.NormalizeKey(key)
	if nk == "" {
		return errors.ValidationError("cache key must not be empty")
	}

	o := setOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	ttl := c.config.DefaultTTL
	if o.hasTTL {
		ttl = o.ttl
	}

	data, err := encodeValue(value)
	if err != nil {
		return errors.ValidationError(fmt.Sprintf("cannot encode value for %q: %v", key, err))
	}

	item := adapters.NewItem(key, data, ttl, uniqueTags(o.tags), c.now())
	stored := 0
	for _, t := range c.tiers {
		if c.storeTier(ctx, t, nk, item) {
			stored++
		}
	}
	if stored == 0 {
		return ErrNotStored.WithContext("key", nk)
	}

	c.tags.assign(nk, item.Tags)
	c.stats.writes.Add(1)
	c.notify(ctx, Invalidation{Keys: []string{nk}})
	return nil
}

func encodeValue(value interface{}) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, stderrors.New("raw message is not valid JSON")
		}
		return append(json.RawMessage(nil), raw...), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func uniqueTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Delete removes key from every level and reports whether any level held it.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	if !c.config.Enabled {
		return false
	}
	nk := adapters.NormalizeKey(key)
	if nk == "" {
		return false
	}
	if !c.deleteNormalized(ctx, nk, false) {
		return false
	}
	c.notify(ctx, Invalidation{Keys: []string{nk}})
	return true
}

// deleteNormalized removes nk from every level, or only from process-local
// adapters when localOnly is set.
func (c *Cache) deleteNormalized(ctx context.Context, nk string, localOnly bool) bool {
	removed := false
	for _, t := range c.tiers {
		for _, a := range t.adapters {
			if _, ok := a.(adapters.ProcessLocal); localOnly && !ok {
				continue
			}
			ok, err := a.Delete(ctx, nk)
			if err != nil {
				c.logger.Warn("Cache level delete failed",
					logging.Field{Key: "level", Value: t.level.String()},
					logging.Field{Key: "adapter", Value: a.Name()},
					logging.Field{Key: "key", Value: nk},
					logging.Err(err))
				continue
			}
			removed = removed || ok
		}
	}
	c.tags.remove(nk)
	if removed && !localOnly {
		c.stats.deletes.Add(1)
	}
	return removed
}

// GetMultiple reads every key. Missing keys map to def; the boolean is true
// only when every key was found.
func (c *Cache) GetMultiple(ctx context.Context, keys []string, def interface{}) (map[string]interface{}, bool) {
	out := make(map[string]interface{}, len(keys))
	all := true
	for _, key := range keys {
		item, ok := c.lookup(ctx, key, true, true)
		if !ok {
			out[key] = def
			all = false
			continue
		}
		var v interface{}
		if err := json.Unmarshal(item.Value, &v); err != nil {
			out[key] = def
			all = false
			continue
		}
		out[key] = v
	}
	return out, all
}

// SetMultiple writes every entry with the same options. It returns the joined
// errors of the failed writes.
func (c *Cache) SetMultiple(ctx context.Context, values map[string]interface{}, opts ...SetOption) error {
	var errs []error
	for key, value := range values {
		if err := c.Set(ctx, key, value, opts...); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// DeleteMultiple deletes every key and reports whether all were removed.
func (c *Cache) DeleteMultiple(ctx context.Context, keys []string) bool {
	all := true
	for _, key := range keys {
		if !c.Delete(ctx, key) {
			all = false
		}
	}
	return all
}

// Clear empties the given levels, or every level when none is given. Clearing
// every level also resets statistics and the tag index.
func (c *Cache) Clear(ctx context.Context, levels ...Level) error {
	targets := c.tiers
	if len(levels) > 0 {
		targets = make([]tier, 0, len(levels))
		for _, l := range levels {
			t, ok := c.tier(l)
			if !ok {
				if !l.Valid() {
					return errors.ValidationError(fmt.Sprintf("invalid cache level %d", int(l)))
				}
				return errors.ValidationError(fmt.Sprintf("cache level %s is not configured", l))
			}
			targets = append(targets, t)
		}
	}

	var errs []error
	for _, t := range targets {
		for _, a := range t.adapters {
			if err := a.Clear(ctx); err != nil {
				c.logger.Error("Failed to clear cache level", err,
					logging.Field{Key: "level", Value: t.level.String()},
					logging.Field{Key: "adapter", Value: a.Name()})
				errs = append(errs, fmt.Errorf("%s/%s: %w", t.level, a.Name(), err))
			}
		}
	}

	if len(levels) == 0 {
		c.stats.reset()
		c.tags.reset()
		c.notify(ctx, Invalidation{Flush: true})
	}
	if len(errs) > 0 {
		return errors.StorageError("failed to clear cache", stderrors.Join(errs...))
	}
	return nil
}

func (c *Cache) tier(l Level) (tier, bool) {
	for _, t := range c.tiers {
		if t.level == l {
			return t, true
		}
	}
	return tier{}, false
}

// InvalidateByTags deletes every key written with any of tags and returns the
// number of keys removed.
func (c *Cache) InvalidateByTags(ctx context.Context, tags ...string) int {
	if !c.config.Enabled {
		return 0
	}
	removed := 0
	var keys []string
	for _, tag := range tags {
		for _, nk := range c.tags.take(tag) {
			if c.deleteNormalized(ctx, nk, false) {
				removed++
				keys = append(keys, nk)
			}
		}
	}
	if len(tags) > 0 {
		c.notify(ctx, Invalidation{Keys: keys, Tags: tags})
	}
	c.logger.Debug("Invalidated cache tags",
		logging.Strings("tags", tags),
		logging.Field{Key: "removed", Value: removed})
	return removed
}

// CleanExpired sweeps every level and returns the number of items removed.
func (c *Cache) CleanExpired(ctx context.Context) int {
	total := 0
	for _, t := range c.tiers {
		for _, a := range t.adapters {
			n, err := a.CleanExpired(ctx)
			if err != nil {
				c.logger.Warn("Expiry sweep failed",
					logging.Field{Key: "level", Value: t.level.String()},
					logging.Field{Key: "adapter", Value: a.Name()},
					logging.Err(err))
			}
			total += n
		}
	}
	return total
}

// Warm resolves every pattern into keys and stores the produced value for
// each key that is not cached yet. It returns the number of keys written.
func (c *Cache) Warm(ctx context.Context, patterns []string, produce Producer, opts ...SetOption) int {
	warmed := 0
	for _, pattern := range patterns {
		keys, err := c.resolve(ctx, pattern)
		if err != nil {
			c.logger.Warn("Failed to resolve warm-up pattern",
				logging.Field{Key: "pattern", Value: pattern}, logging.Err(err))
			continue
		}
		for _, key := range keys {
			if ctx.Err() != nil {
				return warmed
			}
			if c.Exists(ctx, key) {
				continue
			}
			value, ok, err := produce(ctx, key)
			if err != nil {
				c.logger.Warn("Warm-up producer failed",
					logging.Field{Key: "key", Value: key}, logging.Err(err))
				continue
			}
			if !ok {
				continue
			}
			if err := c.Set(ctx, key, value, opts...); err == nil {
				warmed++
			}
		}
	}
	return warmed
}

// ApplyRemoteInvalidation drops keys and tags changed by another process
// from the process-local levels. It does not publish anything.
func (c *Cache) ApplyRemoteInvalidation(ctx context.Context, inv Invalidation) {
	if inv.Flush {
		for _, t := range c.tiers {
			for _, a := range t.adapters {
				if _, ok := a.(adapters.ProcessLocal); !ok {
					continue
				}
				if err := a.Clear(ctx); err != nil {
					c.logger.Warn("Failed to flush process-local level",
						logging.Field{Key: "adapter", Value: a.Name()}, logging.Err(err))
				}
			}
		}
		c.tags.reset()
		return
	}

	for _, key := range inv.Keys {
		if nk := adapters.NormalizeKey(key); nk != "" {
			c.deleteNormalized(ctx, nk, true)
		}
	}
	for _, tag := range inv.Tags {
		for _, nk := range c.tags.take(tag) {
			c.deleteNormalized(ctx, nk, true)
		}
	}
}

func (c *Cache) notify(ctx context.Context, inv Invalidation) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, inv); err != nil {
		c.logger.Warn("Failed to publish cache invalidation", logging.Err(err))
	}
}

// Close closes every adapter.
func (c *Cache) Close() error {
	var errs []error
	for _, t := range c.tiers {
		for _, a := range t.adapters {
			if err := a.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
			}
		}
	}
	return stderrors.Join(errs...)
}

// parseCounter reads an integer from a JSON number or a numeric string.
// Fractions are truncated.
func parseCounter(raw json.RawMessage) (int64, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	if f, err := n.Float64(); err == nil {
		return int64(f), true
	}
	return 0, false
}
