// Package local implements a host-local persistent level on top of
// patrickmn/go-cache. Expiry is native: go-cache's janitor drops expired
// entries, so CleanExpired has nothing to do.
package local

import (
	"context"
	"sync"
	"time"

	"fastsearch-cache/internal/adapters"

	gocache "github.com/patrickmn/go-cache"
)

// Config configures the go-cache janitor.
type Config struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"min=0"`
}

// DefaultConfig returns a one minute janitor interval.
func DefaultConfig() Config {
	return Config{CleanupInterval: time.Minute}
}

// Adapter wraps go-cache as a cache level.
type Adapter struct {
	items *gocache.Cache
	locks *gocache.Cache
	now   func() time.Time

	// serializes read-then-delete sequences go-cache cannot do atomically
	mu sync.Mutex
}

// New creates a go-cache backed level.
func New(config Config) *Adapter {
	return &Adapter{
		items: gocache.New(gocache.NoExpiration, config.CleanupInterval),
		locks: gocache.New(gocache.NoExpiration, config.CleanupInterval),
		now:   time.Now,
	}
}

// Name implements adapters.Adapter.
func (a *Adapter) Name() string { return "local" }

// ProcessLocal implements adapters.ProcessLocal.
func (a *Adapter) ProcessLocal() {}

// Get implements adapters.Adapter.
func (a *Adapter) Get(_ context.Context, key string) (*adapters.Item, error) {
	v, found := a.items.Get(key)
	if !found {
		return nil, nil
	}
	return v.(*adapters.Item).Clone(), nil
}

// Set implements adapters.Adapter. Already expired items delete the key.
func (a *Adapter) Set(_ context.Context, key string, item *adapters.Item) error {
	remaining := item.Remaining(a.now())
	if remaining <= 0 {
		a.items.Delete(key)
		return nil
	}
	a.items.Set(key, item.Clone(), remaining)
	return nil
}

// Delete implements adapters.Adapter.
func (a *Adapter) Delete(_ context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, found := a.items.Get(key)
	a.items.Delete(key)
	return found, nil
}

// Clear implements adapters.Adapter.
func (a *Adapter) Clear(_ context.Context) error {
	a.items.Flush()
	return nil
}

// CleanExpired implements adapters.Adapter.
func (a *Adapter) CleanExpired(_ context.Context) (int, error) {
	return 0, nil
}

// Close implements adapters.Adapter.
func (a *Adapter) Close() error {
	a.items.Flush()
	a.locks.Flush()
	return nil
}

// TryLock implements adapters.Locker using go-cache's Add, which fails while
// an unexpired entry exists.
func (a *Adapter) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := a.locks.Add(key, token, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// Unlock implements adapters.Locker.
func (a *Adapter) Unlock(_ context.Context, key, token string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	v, found := a.locks.Get(key)
	if !found || v.(string) != token {
		return false, nil
	}
	a.locks.Delete(key)
	return true, nil
}

// Stats implements adapters.StatsProvider.
func (a *Adapter) Stats(_ context.Context) map[string]interface{} {
	return map[string]interface{}{
		"items": a.items.ItemCount(),
		"locks": a.locks.ItemCount(),
	}
}
