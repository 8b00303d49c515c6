package local

import (
	"context"
	"testing"
	"time"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/adapters/adaptertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterContract(t *testing.T) {
	adaptertest.Run(t, func(t *testing.T) adapters.Adapter {
		a := New(DefaultConfig())
		t.Cleanup(func() { _ = a.Close() })
		return a
	}, adaptertest.Options{NativeExpiry: true})
}

func TestItemsExpireNatively(t *testing.T) {
	ctx := context.Background()
	a := New(DefaultConfig())

	require.NoError(t, a.Set(ctx, "k", adaptertest.Item("k", `1`, 30*time.Millisecond)))
	got, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotNil(t, got)

	time.Sleep(60 * time.Millisecond)
	got, err = a.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetExpiredItemDeletesKey(t *testing.T) {
	ctx := context.Background()
	a := New(DefaultConfig())

	require.NoError(t, a.Set(ctx, "k", adaptertest.Item("k", `1`, time.Hour)))
	require.NoError(t, a.Set(ctx, "k", adaptertest.Item("k", `2`, 0)))

	got, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLockExpires(t *testing.T) {
	ctx := context.Background()
	a := New(DefaultConfig())

	ok, _ := a.TryLock(ctx, "lock:k", "a", 20*time.Millisecond)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	ok, _ = a.TryLock(ctx, "lock:k", "b", time.Second)
	assert.True(t, ok)
}

func TestClearKeepsLocks(t *testing.T) {
	ctx := context.Background()
	a := New(DefaultConfig())

	ok, _ := a.TryLock(ctx, "lock:k", "a", time.Minute)
	require.True(t, ok)
	require.NoError(t, a.Clear(ctx))

	ok, _ = a.TryLock(ctx, "lock:k", "b", time.Minute)
	assert.False(t, ok)
	assert.Equal(t, 1, a.Stats(ctx)["locks"])
}
