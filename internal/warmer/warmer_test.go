package warmer

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fastsearch-cache/internal/adapters/memory"
	"fastsearch-cache/internal/cache"
	"fastsearch-cache/internal/common/errors"
)

type recordingStore struct {
	mu      sync.Mutex
	values  map[string]interface{}
	present map[string]bool
	failOn  string
}

func newRecordingStore(present ...string) *recordingStore {
	s := &recordingStore{values: map[string]interface{}{}, present: map[string]bool{}}
	for _, key := range present {
		s.present[key] = true
	}
	return s
}

func (s *recordingStore) Exists(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present[key]
}

func (s *recordingStore) Set(_ context.Context, key string, value interface{}, _ ...cache.SetOption) error {
	if key == s.failOn {
		return stderrors.New("write refused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func TestRunJob_OnlyPresentValuesAreStored(t *testing.T) {
	store := newRecordingStore("cached")
	w := New(store, Config{Concurrency: 3}, nil)

	res, err := w.RunJob(context.Background(), Job{
		Name: "search",
		Keys: StaticKeys("a", "b", "cached", "absent", "broken"),
		Produce: func(_ context.Context, key string) (interface{}, bool, error) {
			switch key {
			case "absent":
				return nil, false, nil
			case "broken":
				return nil, false, stderrors.New("backend down")
			}
			return "value " + key, true, nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"a": "value a", "b": "value b"}, store.values)
	assert.Equal(t, 5, res.Keys)
	assert.Equal(t, 2, res.Warmed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Absent)
	assert.Equal(t, 1, res.Failed)
}

func TestRunJob_Overwrite(t *testing.T) {
	store := newRecordingStore("a")
	w := New(store, DefaultConfig(), nil)

	res, err := w.RunJob(context.Background(), Job{
		Name:      "refresh",
		Keys:      StaticKeys("a"),
		Overwrite: true,
		Produce: func(context.Context, string) (interface{}, bool, error) {
			return 1, true, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Warmed)
	assert.Equal(t, 0, res.Skipped)
}

func TestRunJob_WriteFailure(t *testing.T) {
	store := newRecordingStore()
	store.failOn = "b"
	w := New(store, DefaultConfig(), nil)

	res, err := w.RunJob(context.Background(), Job{
		Name:    "job",
		Keys:    StaticKeys("a", "b"),
		Produce: func(context.Context, string) (interface{}, bool, error) { return 1, true, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Warmed)
	assert.Equal(t, 1, res.Failed)
}

func TestRunJob_Validation(t *testing.T) {
	w := New(newRecordingStore(), DefaultConfig(), nil)

	_, err := w.RunJob(context.Background(), Job{Name: "empty"})
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	_, err = w.RunJob(context.Background(), Job{
		Name:    "keys fail",
		Keys:    func(context.Context) ([]string, error) { return nil, stderrors.New("query failed") },
		Produce: func(context.Context, string) (interface{}, bool, error) { return nil, false, nil },
	})
	assert.Error(t, err)
}

func TestRunJob_ConcurrencyLimit(t *testing.T) {
	w := New(newRecordingStore(), Config{Concurrency: 2}, nil)

	var running, peak atomic.Int32
	keys := make([]string, 10)
	for i := range keys {
		keys[i] = fmt.Sprintf("k%d", i)
	}

	res, err := w.RunJob(context.Background(), Job{
		Name: "bounded",
		Keys: StaticKeys(keys...),
		Produce: func(context.Context, string) (interface{}, bool, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return 1, true, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Warmed)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunJob_Cancelled(t *testing.T) {
	w := New(newRecordingStore(), Config{Concurrency: 1, RatePerSecond: 1, Burst: 1}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := w.RunJob(ctx, Job{
		Name:    "slow",
		Keys:    StaticKeys("a", "b", "c"),
		Produce: func(context.Context, string) (interface{}, bool, error) { return 1, true, nil },
	})
	assert.Error(t, err)
	assert.Less(t, res.Warmed, 3)
}

func TestRun_WithCache(t *testing.T) {
	ctx := context.Background()
	c, err := cache.New(cache.DefaultConfig(), []cache.LevelBinding{
		{Level: cache.LevelMemory, Adapter: memory.New(memory.DefaultConfig())},
	})
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "category_1", "existing"))

	w := New(c, DefaultConfig(), nil)
	results, err := w.Run(ctx,
		Job{
			Name: "categories",
			Keys: StaticKeys("category_1", "category_2"),
			TTL:  4 * time.Hour,
			Tags: []string{"category"},
			Produce: func(_ context.Context, key string) (interface{}, bool, error) {
				return map[string]string{"key": key}, true, nil
			},
		},
		Job{Name: "invalid"},
	)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Warmed)
	assert.Equal(t, 1, results[0].Skipped)

	assert.Equal(t, map[string]interface{}{"key": "category_2"}, c.Get(ctx, "category_2", nil))
	assert.Equal(t, "existing", c.Get(ctx, "category_1", nil))
	assert.Equal(t, 1, c.InvalidateByTags(ctx, "category"))
}
