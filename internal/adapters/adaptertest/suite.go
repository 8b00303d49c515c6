// Package adaptertest holds the behaviour every adapters.Adapter must share,
// run by each backend's own tests.
package adaptertest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"fastsearch-cache/internal/adapters"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Options tune the suite to a backend.
type Options struct {
	// NativeExpiry marks backends that drop expired keys themselves and
	// report 0 from CleanExpired.
	NativeExpiry bool
}

// Item builds a test item created now with the given ttl.
func Item(key, value string, ttl time.Duration, tags ...string) *adapters.Item {
	return adapters.NewItem(key, json.RawMessage(value), ttl, tags, time.Now().Truncate(time.Millisecond))
}

// Run exercises the Adapter contract against fresh instances from newAdapter.
func Run(t *testing.T, newAdapter func(t *testing.T) adapters.Adapter, opts Options) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		a := newAdapter(t)
		item, err := a.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, item)
	})

	t.Run("set then get", func(t *testing.T) {
		a := newAdapter(t)
		in := Item("search:shoes", `{"results":[1,2,3]}`, time.Hour, "search", "popular")

		require.NoError(t, a.Set(ctx, adapters.NormalizeKey(in.Key), in))

		out, err := a.Get(ctx, adapters.NormalizeKey(in.Key))
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, in.Key, out.Key)
		assert.JSONEq(t, string(in.Value), string(out.Value))
		assert.Equal(t, in.Tags, out.Tags)
		assert.Equal(t, in.TTL, out.TTL)
		assert.True(t, in.CreatedAt.Equal(out.CreatedAt), "created_at %v != %v", in.CreatedAt, out.CreatedAt)
		assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt), "expires_at %v != %v", in.ExpiresAt, out.ExpiresAt)
		assert.Equal(t, in.Size, out.Size)
	})

	t.Run("overwrite", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.Set(ctx, "k", Item("k", `"first"`, time.Hour)))
		require.NoError(t, a.Set(ctx, "k", Item("k", `"second"`, time.Hour)))

		out, err := a.Get(ctx, "k")
		require.NoError(t, err)
		require.NotNil(t, out)
		assert.Equal(t, `"second"`, string(out.Value))
	})

	t.Run("delete", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.Set(ctx, "k", Item("k", `1`, time.Hour)))

		deleted, err := a.Delete(ctx, "k")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = a.Delete(ctx, "k")
		require.NoError(t, err)
		assert.False(t, deleted)

		out, err := a.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, out)
	})

	t.Run("clear", func(t *testing.T) {
		a := newAdapter(t)
		for _, key := range []string{"a", "b", "c"} {
			require.NoError(t, a.Set(ctx, key, Item(key, `true`, time.Hour)))
		}

		require.NoError(t, a.Clear(ctx))

		for _, key := range []string{"a", "b", "c"} {
			out, err := a.Get(ctx, key)
			require.NoError(t, err)
			assert.Nil(t, out, key)
		}
	})

	t.Run("clean expired", func(t *testing.T) {
		a := newAdapter(t)
		require.NoError(t, a.Set(ctx, "live", Item("live", `1`, time.Hour)))
		require.NoError(t, a.Set(ctx, "dead", Item("dead", `2`, 0)))

		removed, err := a.CleanExpired(ctx)
		require.NoError(t, err)
		if opts.NativeExpiry {
			assert.Equal(t, 0, removed)
		} else {
			assert.Equal(t, 1, removed)
		}

		out, err := a.Get(ctx, "dead")
		require.NoError(t, err)
		if out != nil {
			assert.True(t, out.Expired(time.Now()))
		}

		out, err = a.Get(ctx, "live")
		require.NoError(t, err)
		assert.NotNil(t, out)
	})

	if _, ok := newAdapter(t).(adapters.Locker); ok {
		t.Run("locks", func(t *testing.T) {
			locker := newAdapter(t).(adapters.Locker)

			ok, err := locker.TryLock(ctx, "lock:counter", "token-a", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = locker.TryLock(ctx, "lock:counter", "token-b", time.Minute)
			require.NoError(t, err)
			assert.False(t, ok, "second holder must be refused")

			released, err := locker.Unlock(ctx, "lock:counter", "token-b")
			require.NoError(t, err)
			assert.False(t, released, "foreign token must not release")

			released, err = locker.Unlock(ctx, "lock:counter", "token-a")
			require.NoError(t, err)
			assert.True(t, released)

			ok, err = locker.TryLock(ctx, "lock:counter", "token-b", time.Minute)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}
