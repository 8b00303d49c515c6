package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fastsearch-cache/internal/adapters"
	"fastsearch-cache/internal/adapters/adaptertest"
	"fastsearch-cache/internal/codec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, c *codec.Codec, opts ...Option) *Adapter {
	t.Helper()
	a, err := New(Config{Directory: t.TempDir()}, c, opts...)
	require.NoError(t, err)
	return a
}

func TestAdapterContract(t *testing.T) {
	for _, c := range []*codec.Codec{
		codec.Default(),
		codec.New(codec.SerializerGob, codec.CompressionGzip),
		codec.New(codec.SerializerJSON, codec.CompressionZstd),
	} {
		name := c.Serializer().String() + "_" + c.Compression().String()
		t.Run(name, func(t *testing.T) {
			adaptertest.Run(t, func(t *testing.T) adapters.Adapter {
				return newTestAdapter(t, c)
			}, adaptertest.Options{})
		})
	}
}

func TestFileLayout(t *testing.T) {
	a := newTestAdapter(t, nil)
	path := a.path("search_shoes")

	rel, err := filepath.Rel(a.Dir(), path)
	require.NoError(t, err)
	parts := strings.Split(rel, string(filepath.Separator))
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 2)
	assert.True(t, strings.HasPrefix(parts[1], parts[0]))
	assert.Equal(t, ".cache", filepath.Ext(parts[1]))
	assert.Len(t, strings.TrimSuffix(parts[1], ".cache"), 16)
}

func TestCorruptedFileReadsAsMissAndIsRemoved(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, nil)
	require.NoError(t, a.Set(ctx, "k", adaptertest.Item("k", `1`, time.Hour)))

	path := a.path("k")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	got, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCleanExpiredCountsCorruptedFiles(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, nil)

	require.NoError(t, a.Set(ctx, "live", adaptertest.Item("live", `1`, time.Hour)))
	require.NoError(t, a.Set(ctx, "dead", adaptertest.Item("dead", `1`, 0)))
	require.NoError(t, a.Set(ctx, "broken", adaptertest.Item("broken", `1`, time.Hour)))
	require.NoError(t, os.WriteFile(a.path("broken"), []byte{0x00}, 0o644))

	removed, err := a.CleanExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	files, _, err := a.DiskUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, files)
}

func TestHashCollisionReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, nil)
	require.NoError(t, a.Set(ctx, "k", adaptertest.Item("k", `1`, time.Hour)))

	// simulate another key hashing to the same file
	data, err := os.ReadFile(a.path("k"))
	require.NoError(t, err)
	other := a.path("other")
	require.NoError(t, os.MkdirAll(filepath.Dir(other), 0o755))
	require.NoError(t, os.WriteFile(other, data, 0o644))

	got, err := a.Get(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClearKeepsLocksAndIgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, nil)

	require.NoError(t, a.Set(ctx, "k", adaptertest.Item("k", `1`, time.Hour)))
	foreign := filepath.Join(a.Dir(), "README.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0o644))

	ok, err := a.TryLock(ctx, "lock:k", "token", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.Clear(ctx))

	_, err = os.Stat(foreign)
	assert.NoError(t, err)

	ok, err = a.TryLock(ctx, "lock:k", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiredLockIsTakenOver(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	a := newTestAdapter(t, nil, WithClock(func() time.Time { return now }))

	ok, err := a.TryLock(ctx, "lock:k", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, err = a.TryLock(ctx, "lock:k", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	released, err := a.Unlock(ctx, "lock:k", "a")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestExpiredLockIsHeldWhileBeingBroken(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	a := newTestAdapter(t, nil, WithClock(func() time.Time { return now }))

	ok, err := a.TryLock(ctx, "lock:k", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	now = now.Add(2 * time.Second)

	guard := a.lockPath("lock:k") + breakSuffix
	require.NoError(t, os.WriteFile(guard, nil, 0o644))

	ok, err = a.TryLock(ctx, "lock:k", "b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "another caller is breaking the lock")

	require.NoError(t, os.Remove(guard))
	ok, err = a.TryLock(ctx, "lock:k", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoFileExists(t, guard)
}

func TestAbandonedBreakGuardIsCleared(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	a := newTestAdapter(t, nil, WithClock(func() time.Time { return now }))

	ok, err := a.TryLock(ctx, "lock:k", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	now = now.Add(2 * time.Second)

	guard := a.lockPath("lock:k") + breakSuffix
	require.NoError(t, os.WriteFile(guard, nil, 0o644))
	old := time.Now().Add(-2 * breakTimeout)
	require.NoError(t, os.Chtimes(guard, old, old))

	ok, err = a.TryLock(ctx, "lock:k", "b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, guard)

	ok, err = a.TryLock(ctx, "lock:k", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpiredLockTakeoverHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	start := time.Now()
	var expired atomic.Bool
	a := newTestAdapter(t, nil, WithClock(func() time.Time {
		if expired.Load() {
			return start.Add(time.Minute)
		}
		return start
	}))

	for round := 0; round < 50; round++ {
		key := fmt.Sprintf("lock:round-%d", round)
		expired.Store(false)
		ok, err := a.TryLock(ctx, key, "stale", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		expired.Store(true)

		var wg sync.WaitGroup
		var winners atomic.Int32
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := a.TryLock(ctx, key, fmt.Sprintf("token-%d", i), time.Hour)
				if err == nil && ok {
					winners.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.LessOrEqual(t, winners.Load(), int32(1), key)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	a := newTestAdapter(t, codec.New(codec.SerializerJSON, codec.CompressionS2))
	require.NoError(t, a.Set(ctx, "k", adaptertest.Item("k", `"value"`, time.Hour)))

	stats := a.Stats(ctx)
	assert.Equal(t, 1, stats["files"])
	assert.Equal(t, "s2", stats["compression"])
	assert.Greater(t, stats["bytes"].(int64), int64(0))
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
