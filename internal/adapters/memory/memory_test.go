package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/adapters/adaptertest"
	"fastsearch-cache/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func itemAt(key, value string, created time.Time) *adapters.Item {
	return adapters.NewItem(key, json.RawMessage(value), time.Hour, nil, created)
}

func TestAdapterContract(t *testing.T) {
	adaptertest.Run(t, func(t *testing.T) adapters.Adapter {
		return New(DefaultConfig())
	}, adaptertest.Options{})
}

func TestEvictsOldestWhenCountCeilingReached(t *testing.T) {
	ctx := context.Background()
	a := New(Config{MaxItems: 10})

	// inserted newest-first so map order and insertion order disagree with age
	for i := 9; i >= 0; i-- {
		key := fmt.Sprintf("k%d", i)
		require.NoError(t, a.Set(ctx, key, itemAt(key, `1`, base.Add(time.Duration(i)*time.Second))))
	}

	require.NoError(t, a.Set(ctx, "new", itemAt("new", `1`, base.Add(time.Minute))))

	items, _ := a.Usage()
	assert.Equal(t, 10, items)

	gone, err := a.Get(ctx, "k0")
	require.NoError(t, err)
	assert.Nil(t, gone, "oldest item should be evicted")

	kept, err := a.Get(ctx, "k1")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestEvictsTenPercentPerRound(t *testing.T) {
	ctx := context.Background()
	a := New(Config{MaxItems: 30})

	for i := 0; i < 30; i++ {
		key := fmt.Sprintf("k%02d", i)
		require.NoError(t, a.Set(ctx, key, itemAt(key, `1`, base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, a.Set(ctx, "new", itemAt("new", `1`, base.Add(time.Hour))))

	items, _ := a.Usage()
	assert.Equal(t, 28, items)
	for _, key := range []string{"k00", "k01", "k02"} {
		got, _ := a.Get(ctx, key)
		assert.Nil(t, got, key)
	}
	got, _ := a.Get(ctx, "k03")
	assert.NotNil(t, got)
	assert.Equal(t, int64(3), a.Stats(ctx)["evictions"])
}

func TestEvictionRoundsTenPercentUp(t *testing.T) {
	ctx := context.Background()
	a := New(Config{MaxItems: 19})

	for i := 0; i < 19; i++ {
		key := fmt.Sprintf("k%02d", i)
		require.NoError(t, a.Set(ctx, key, itemAt(key, `1`, base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, a.Set(ctx, "new", itemAt("new", `1`, base.Add(time.Hour))))

	items, _ := a.Usage()
	assert.Equal(t, 18, items)
	assert.Equal(t, int64(2), a.Stats(ctx)["evictions"])
	for _, key := range []string{"k00", "k01"} {
		got, _ := a.Get(ctx, key)
		assert.Nil(t, got, key)
	}
	got, _ := a.Get(ctx, "k02")
	assert.NotNil(t, got)
}

func TestEvictionTieBreaksOnInsertionOrder(t *testing.T) {
	ctx := context.Background()
	a := New(Config{MaxItems: 3})

	for _, key := range []string{"first", "second", "third"} {
		require.NoError(t, a.Set(ctx, key, itemAt(key, `1`, base)))
	}
	require.NoError(t, a.Set(ctx, "fourth", itemAt("fourth", `1`, base)))

	got, _ := a.Get(ctx, "first")
	assert.Nil(t, got)
	got, _ = a.Get(ctx, "second")
	assert.NotNil(t, got)
}

func TestEvictsUntilBytesFit(t *testing.T) {
	ctx := context.Background()
	a := New(Config{MaxBytes: 10})

	require.NoError(t, a.Set(ctx, "a", itemAt("a", `"ab"`, base)))
	require.NoError(t, a.Set(ctx, "b", itemAt("b", `"cd"`, base.Add(time.Second))))
	require.NoError(t, a.Set(ctx, "c", itemAt("c", `"ef"`, base.Add(2*time.Second))))

	items, bytes := a.Usage()
	assert.Equal(t, 2, items)
	assert.Equal(t, int64(8), bytes)

	got, _ := a.Get(ctx, "a")
	assert.Nil(t, got)
}

func TestRejectsItemLargerThanCapacity(t *testing.T) {
	ctx := context.Background()
	a := New(Config{MaxBytes: 4})
	require.NoError(t, a.Set(ctx, "small", itemAt("small", `"x"`, base)))

	err := a.Set(ctx, "big", itemAt("big", `"too large"`, base))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	got, _ := a.Get(ctx, "small")
	assert.NotNil(t, got, "rejected write must not evict")
}

func TestOverwriteAtCapacityDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	a := New(Config{MaxItems: 2})

	require.NoError(t, a.Set(ctx, "a", itemAt("a", `1`, base)))
	require.NoError(t, a.Set(ctx, "b", itemAt("b", `2`, base.Add(time.Second))))
	require.NoError(t, a.Set(ctx, "b", itemAt("b", `3`, base.Add(2*time.Second))))

	items, _ := a.Usage()
	assert.Equal(t, 2, items)
	got, _ := a.Get(ctx, "a")
	assert.NotNil(t, got)
}

func TestUsageTracksBytes(t *testing.T) {
	ctx := context.Background()
	a := New(DefaultConfig())

	require.NoError(t, a.Set(ctx, "a", itemAt("a", `"12345"`, base)))
	require.NoError(t, a.Set(ctx, "a", itemAt("a", `"1"`, base)))
	_, bytes := a.Usage()
	assert.Equal(t, int64(3), bytes)

	_, err := a.Delete(ctx, "a")
	require.NoError(t, err)
	_, bytes = a.Usage()
	assert.Equal(t, int64(0), bytes)
}

func TestLockExpiresWithClock(t *testing.T) {
	ctx := context.Background()
	now := base
	a := New(DefaultConfig(), WithClock(func() time.Time { return now }))

	ok, err := a.TryLock(ctx, "lock:k", "a", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(5 * time.Second)
	ok, err = a.TryLock(ctx, "lock:k", "b", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock can be taken over")

	released, _ := a.Unlock(ctx, "lock:k", "a")
	assert.False(t, released)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	a := New(DefaultConfig())
	require.NoError(t, a.Set(ctx, "k", itemAt("k", `[1]`, base)))

	got, _ := a.Get(ctx, "k")
	got.Value[1] = '9'

	again, _ := a.Get(ctx, "k")
	assert.Equal(t, `[1]`, string(again.Value))
}
