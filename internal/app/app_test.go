package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastsearch-cache/internal/cache"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.File.Directory = t.TempDir()
	cfg.CleanupSchedule = "@every 1h"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})
	return app
}

func TestNew_DefaultStack(t *testing.T) {
	app := newTestApp(t, testConfig(t))

	assert.Equal(t, []cache.Level{cache.LevelMemory, cache.LevelPersistent}, app.Cache.Levels())
	assert.NotNil(t, app.Disk)
	assert.NotNil(t, app.Metrics)
	assert.NotNil(t, app.Health)
	assert.Nil(t, app.Redis)
	assert.Nil(t, app.Bus)

	srv := httptest.NewServer(app.SetupRoutes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/cache/greeting", strings.NewReader(`{"value": "hello"}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(srv.URL + "/api/cache/greeting")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"key": "greeting", "value": "hello"}`, string(body))

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fastsearch_cache_hits_total 1")
	assert.Contains(t, string(body), `fastsearch_cache_operations_total{operation="cache_set",status="success"} 1`)
}

func TestNew_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	cfg.Levels.Persistent = []string{"local"}
	app := newTestApp(t, cfg)

	assert.Nil(t, app.Metrics)
	assert.Nil(t, app.Disk)

	rr := httptest.NewRecorder()
	app.SetupRoutes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNew_UnreachableBackendsAreSkipped(t *testing.T) {
	t.Run("memcached", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Levels.Distributed = []string{"memcached"}
		cfg.Memcached.Servers = []string{"127.0.0.1:1"}

		app := newTestApp(t, cfg)
		assert.Equal(t, []cache.Level{cache.LevelMemory, cache.LevelPersistent}, app.Cache.Levels())
		require.NoError(t, app.Cache.Set(context.Background(), "k", "v"))
		assert.Equal(t, "v", app.Cache.Get(context.Background(), "k", nil))
	})

	t.Run("redis", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Levels.Distributed = []string{"redis"}
		cfg.Redis.Address = "127.0.0.1:1"
		cfg.Invalidation.Enabled = true

		app := newTestApp(t, cfg)
		assert.Nil(t, app.Redis)
		assert.Nil(t, app.Bus)
		assert.Equal(t, []cache.Level{cache.LevelMemory, cache.LevelPersistent}, app.Cache.Levels())
	})

	t.Run("no level left", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Levels.Memory = nil
		cfg.Levels.Persistent = nil
		cfg.Levels.Distributed = []string{"memcached"}
		cfg.Memcached.Servers = []string{"127.0.0.1:1"}

		_, err := New(context.Background(), cfg)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})
}

func TestNew_Failures(t *testing.T) {
	t.Run("unknown adapter", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Levels.Distributed = []string{"etcd"}

		_, err := New(context.Background(), cfg)
		assert.Error(t, err)
		assert.False(t, backendUnavailable(err))
	})

	t.Run("invalid schedule", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.CleanupSchedule = "whenever"

		_, err := New(context.Background(), cfg)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})

	t.Run("bad compression", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.File.Compression = "brotli"

		_, err := New(context.Background(), cfg)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})
}

func TestRedisLevelWithInvalidationBus(t *testing.T) {
	mr := miniredis.RunT(t)

	newPeer := func(id string) *App {
		cfg := testConfig(t)
		cfg.InstanceID = id
		cfg.Levels.Persistent = nil
		cfg.Levels.Distributed = []string{"redis"}
		cfg.Redis.Address = mr.Addr()
		cfg.Invalidation.Enabled = true
		return newTestApp(t, cfg)
	}
	a := newPeer("peer-a")
	b := newPeer("peer-b")
	require.NotNil(t, a.Bus)
	ctx := context.Background()

	require.NoError(t, a.Cache.Set(ctx, "product_42", "v1"))
	assert.Equal(t, "v1", b.Cache.Get(ctx, "product_42", nil), "b reads through redis and promotes into memory")

	require.NoError(t, a.Cache.Set(ctx, "product_42", "v2"))
	assert.Eventually(t, func() bool {
		return b.Cache.Get(ctx, "product_42", nil) == "v2"
	}, 2*time.Second, 10*time.Millisecond)

	a.Cache.Delete(ctx, "product_42")
	assert.Eventually(t, func() bool {
		return !b.Cache.Exists(ctx, "product_42")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSweep(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	ctx := context.Background()

	require.NoError(t, app.Cache.Set(ctx, "short", 1, cache.WithTTL(time.Millisecond)))
	require.NoError(t, app.Cache.Set(ctx, "long", 1))
	time.Sleep(5 * time.Millisecond)

	app.sweep()

	families, err := app.Metrics.Registry().Gather()
	require.NoError(t, err)
	var removed float64
	for _, mf := range families {
		if mf.GetName() == "fastsearch_cache_expired_items_removed_total" {
			removed = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.GreaterOrEqual(t, removed, 1.0)
	assert.True(t, app.Cache.Exists(ctx, "long"))
	assert.False(t, app.Cache.Exists(ctx, "short"))
}

const seedYAML = `
jobs:
  - name: categories
    ttl: 1h
    tags: [categories]
    entries:
      category_1: {name: Books}
      category_2: {name: Music}
  - entries:
      banner: welcome
`

func TestLoadSeedJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	jobs, err := LoadSeedJobs(path)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "categories", jobs[0].Name)
	assert.Equal(t, time.Hour, jobs[0].TTL)
	assert.Equal(t, []string{"categories"}, jobs[0].Tags)
	assert.Equal(t, "seed-2", jobs[1].Name)

	keys, err := jobs[0].Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"category_1", "category_2"}, keys)

	value, ok, err := jobs[0].Produce(context.Background(), "category_2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, map[string]interface{}{"name": "Music"}, value)

	_, ok, _ = jobs[0].Produce(context.Background(), "category_9")
	assert.False(t, ok)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("jobs:\n  - ttl: soon\n"), 0o644))
	_, err = LoadSeedJobs(bad)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = LoadSeedJobs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestWarmFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o644))

	cfg := testConfig(t)
	cfg.WarmFile = path
	app := newTestApp(t, cfg)
	ctx := context.Background()

	results, err := app.WarmFromFile(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Warmed)
	assert.Equal(t, 1, results[1].Warmed)

	assert.Equal(t, map[string]interface{}{"name": "Books"}, app.Cache.Get(ctx, "category_1", nil))
	assert.Equal(t, 2, app.Cache.InvalidateByTags(ctx, "categories"))

	results, err = app.WarmFromFile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, results[0].Warmed)
	assert.Equal(t, 1, results[1].Skipped)
}
