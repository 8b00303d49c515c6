// Package memory implements the in-process cache level: a mutex-guarded map
// bounded by an item count and a byte ceiling.
//
// When a write would exceed either bound, the oldest items by creation time
// are evicted in rounds of 10% of the resident count (at least one item).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
)

// Config bounds the memory level. Zero disables a bound.
type Config struct {
	MaxItems int   `yaml:"max_items" validate:"min=0"`
	MaxBytes int64 `yaml:"max_bytes" validate:"min=0"`
}

// DefaultConfig allows 1000 items and 50 MiB.
func DefaultConfig() Config {
	return Config{
		MaxItems: 1000,
		MaxBytes: 50 * 1024 * 1024,
	}
}

type entry struct {
	item *adapters.Item
	seq  uint64
}

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// Adapter is the memory cache level.
type Adapter struct {
	config Config
	now    func() time.Time
	logger logging.Logger

	mu        sync.Mutex
	items     map[string]*entry
	locks     map[string]lockEntry
	seq       uint64
	bytes     int64
	evictions int64
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClock overrides the time source used by CleanExpired and locks.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithLogger sets the adapter logger.
func WithLogger(logger logging.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// New creates an empty memory level.
func New(config Config, opts ...Option) *Adapter {
	a := &Adapter{
		config: config,
		now:    time.Now,
		items:  make(map[string]*entry),
		locks:  make(map[string]lockEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.Component("memory_adapter")
	}
	return a
}

// Name implements adapters.Adapter.
func (a *Adapter) Name() string { return "memory" }

// ProcessLocal implements adapters.ProcessLocal.
func (a *Adapter) ProcessLocal() {}

// Get implements adapters.Adapter.
func (a *Adapter) Get(_ context.Context, key string) (*adapters.Item, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e, ok := a.items[key]
	if !ok {
		return nil, nil
	}
	return e.item.Clone(), nil
}

// Set implements adapters.Adapter. Items larger than the byte ceiling are refused.
func (a *Adapter) Set(_ context.Context, key string, item *adapters.Item) error {
	if a.config.MaxBytes > 0 && item.Size > a.config.MaxBytes {
		return errors.ValidationError(fmt.Sprintf("item of %d bytes exceeds memory level capacity of %d bytes", item.Size, a.config.MaxBytes)).
			WithContext("key", key)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.removeLocked(key)

	if a.config.MaxItems > 0 && len(a.items) >= a.config.MaxItems {
		a.evictLocked()
	}
	for a.config.MaxBytes > 0 && a.bytes+item.Size > a.config.MaxBytes && len(a.items) > 0 {
		a.evictLocked()
	}

	a.seq++
	a.items[key] = &entry{item: item.Clone(), seq: a.seq}
	a.bytes += item.Size
	return nil
}

// Delete implements adapters.Adapter.
func (a *Adapter) Delete(_ context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removeLocked(key), nil
}

// Clear implements adapters.Adapter. Held locks survive a clear.
func (a *Adapter) Clear(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.items = make(map[string]*entry)
	a.bytes = 0
	return nil
}

// CleanExpired implements adapters.Adapter.
func (a *Adapter) CleanExpired(_ context.Context) (int, error) {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for key, e := range a.items {
		if e.item.Expired(now) {
			a.removeLocked(key)
			removed++
		}
	}
	for key, l := range a.locks {
		if !l.expiresAt.After(now) {
			delete(a.locks, key)
		}
	}
	return removed, nil
}

// Close implements adapters.Adapter.
func (a *Adapter) Close() error {
	return a.Clear(context.Background())
}

// TryLock implements adapters.Locker.
func (a *Adapter) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if l, ok := a.locks[key]; ok && l.expiresAt.After(now) {
		return false, nil
	}
	a.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

// Unlock implements adapters.Locker.
func (a *Adapter) Unlock(_ context.Context, key, token string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[key]
	if !ok || l.token != token {
		return false, nil
	}
	delete(a.locks, key)
	return true, nil
}

// Usage implements adapters.Sizer.
func (a *Adapter) Usage() (int, int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items), a.bytes
}

// Stats implements adapters.StatsProvider.
func (a *Adapter) Stats(_ context.Context) map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	return map[string]interface{}{
		"items":     len(a.items),
		"bytes":     a.bytes,
		"max_items": a.config.MaxItems,
		"max_bytes": a.config.MaxBytes,
		"evictions": a.evictions,
		"locks":     len(a.locks),
	}
}

func (a *Adapter) removeLocked(key string) bool {
	e, ok := a.items[key]
	if !ok {
		return false
	}
	a.bytes -= e.item.Size
	delete(a.items, key)
	return true
}

// evictLocked removes the oldest 10% of items, at least one.
func (a *Adapter) evictLocked() {
	if len(a.items) == 0 {
		return
	}

	type candidate struct {
		key string
		*entry
	}
	candidates := make([]candidate, 0, len(a.items))
	for key, e := range a.items {
		candidates = append(candidates, candidate{key, e})
	}
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i].item.CreatedAt, candidates[j].item.CreatedAt
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return candidates[i].seq < candidates[j].seq
	})

	// at least a tenth of the items, rounded up
	count := (len(candidates) + 9) / 10
	for _, c := range candidates[:count] {
		a.removeLocked(c.key)
	}
	a.evictions += int64(count)

	a.logger.Debug("Evicted memory items",
		logging.Field{Key: "evicted", Value: count},
		logging.Field{Key: "remaining", Value: len(a.items)},
	)
}
