package health

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"fastsearch-cache/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats cache.Stats

func (f fixedStats) Statistics(context.Context) cache.Stats { return cache.Stats(f) }

func TestReporter_Report(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "item.cache"), make([]byte, 64), 0o644))

	t.Run("includes disk usage", func(t *testing.T) {
		r := NewReporter(fixedStats(statsWith(95, 5, 0)), 1<<40, dirSource{dir: dir}, nil)

		report := r.Report(context.Background())
		assert.Equal(t, StatusHealthy, report.Status)
		require.NotNil(t, report.Disk)
		assert.Equal(t, 1, report.Disk.FileCount)
		assert.Equal(t, int64(64), report.Disk.TotalSize)
		assert.Equal(t, int64(1<<40), report.Memory.Limit)
		assert.Equal(t, int64(100), report.Statistics.Requests())
	})

	t.Run("low hit rate is critical", func(t *testing.T) {
		r := NewReporter(fixedStats(statsWith(20, 80, 0)), 1<<40, nil, nil)

		report := r.Report(context.Background())
		assert.Equal(t, StatusCritical, report.Status)
		assert.Nil(t, report.Disk)
		assert.Contains(t, actions(report), "increase_ttl")
	})

	t.Run("disk failure is tolerated", func(t *testing.T) {
		r := NewReporter(fixedStats(statsWith(0, 0, 0)), 1<<40, dirSource{dir: dir, err: stderrors.New("walk failed")}, nil)

		report := r.Report(context.Background())
		assert.Equal(t, StatusHealthy, report.Status)
		assert.Nil(t, report.Disk)
	})
}
