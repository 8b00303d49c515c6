package health

import (
	"context"

	"fastsearch-cache/internal/cache"
	"fastsearch-cache/internal/common/logging"
)

// StatsSource supplies the statistics snapshot of a report.
type StatsSource interface {
	Statistics(ctx context.Context) cache.Stats
}

// Reporter samples a cache and the process and evaluates the result.
type Reporter struct {
	stats       StatsSource
	memoryLimit int64
	disk        DiskSource
	logger      logging.Logger
}

// NewReporter creates a reporter. disk may be nil when no level stores
// files.
func NewReporter(stats StatsSource, memoryLimit int64, disk DiskSource, logger logging.Logger) *Reporter {
	if logger == nil {
		logger = logging.Component("health")
	}
	return &Reporter{
		stats:       stats,
		memoryLimit: memoryLimit,
		disk:        disk,
		logger:      logger,
	}
}

// Report evaluates the current state. A failed disk measurement leaves the
// disk section out rather than failing the report.
func (r *Reporter) Report(ctx context.Context) Report {
	stats := r.stats.Statistics(ctx)
	mem := ReadMemory(r.memoryLimit)

	var disk *DiskUsage
	if r.disk != nil {
		usage, err := MeasureDisk(ctx, r.disk)
		if err != nil {
			r.logger.Warn("Failed to measure cache directory", logging.Err(err),
				logging.Field{Key: "directory", Value: r.disk.Dir()})
		} else {
			disk = usage
		}
	}

	report := Evaluate(stats, mem, disk)
	if report.Status != StatusHealthy {
		r.logger.Debug("Cache health degraded",
			logging.Field{Key: "status", Value: string(report.Status)},
			logging.Field{Key: "issues", Value: report.Issues})
	}
	return report
}
