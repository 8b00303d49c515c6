// Package adapters defines the storage contract shared by every cache level
// and the item record they persist.
//
// Concrete backends live in sub-packages (memory, local, file, sql, redis,
// memcached). Optional capabilities such as atomic locks or statistics are
// expressed as separate interfaces checked with a type assertion.
package adapters

import (
	"context"
	"encoding/json"
	"time"
)

// MaxKeyLength is the longest normalized key, in bytes.
const MaxKeyLength = 200

// Item is one cached entry as stored by an adapter.
type Item struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	TTL       time.Duration   `json:"ttl"`
	ExpiresAt time.Time       `json:"expires_at"`
	Tags      []string        `json:"tags,omitempty"`
	Size      int64           `json:"size"`
}

// NewItem builds an item created at now that expires after ttl.
// A ttl of zero or less yields an item that is already expired.
func NewItem(key string, value json.RawMessage, ttl time.Duration, tags []string, now time.Time) *Item {
	if ttl < 0 {
		ttl = 0
	}
	return &Item{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		TTL:       ttl,
		ExpiresAt: now.Add(ttl),
		Tags:      tags,
		Size:      int64(len(value)),
	}
}

// Expired reports whether the item is no longer valid at now.
func (i *Item) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// Remaining returns the time left before expiry, never negative.
func (i *Item) Remaining(now time.Time) time.Duration {
	if d := i.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Clone returns a copy that shares no mutable state with i.
func (i *Item) Clone() *Item {
	c := *i
	c.Value = append(json.RawMessage(nil), i.Value...)
	c.Tags = append([]string(nil), i.Tags...)
	return &c
}

// NormalizeKey replaces every character outside [A-Za-z0-9_.-] with '_'
// and truncates the result to MaxKeyLength bytes.
func NormalizeKey(key string) string {
	out := make([]byte, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			out = append(out, byte(r))
		default:
			out = append(out, '_')
		}
		if len(out) == MaxKeyLength {
			break
		}
	}
	return string(out)
}

// Adapter is the contract every cache level implements. Keys passed to an
// adapter are already normalized.
type Adapter interface {
	// Name identifies the backend in logs and statistics.
	Name() string
	// Get returns the stored item, or nil with no error when absent.
	// Adapters may return expired items; callers check Expired.
	Get(ctx context.Context, key string) (*Item, error)
	// Set stores the item unconditionally.
	Set(ctx context.Context, key string, item *Item) error
	// Delete removes the key and reports whether it was present.
	Delete(ctx context.Context, key string) (bool, error)
	// Clear removes every item owned by the adapter.
	Clear(ctx context.Context) error
	// CleanExpired removes expired items and returns how many were removed.
	// Backends with native expiry return 0.
	CleanExpired(ctx context.Context) (int, error)
	// Close releases the backend.
	Close() error
}

// Locker is implemented by adapters with an atomic set-if-absent primitive.
type Locker interface {
	// TryLock stores token under the lock key if no unexpired lock exists.
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Unlock removes the lock only if it still holds token.
	Unlock(ctx context.Context, key, token string) (bool, error)
}

// StatsProvider is implemented by adapters that expose backend statistics.
type StatsProvider interface {
	Stats(ctx context.Context) map[string]interface{}
}

// Sizer is implemented by adapters that track their resident size.
type Sizer interface {
	Usage() (items int, bytes int64)
}

// ProcessLocal marks adapters whose contents are private to this process
// and must be invalidated when a peer changes a key.
type ProcessLocal interface {
	ProcessLocal()
}
