// Package health turns cache statistics and process resources into a
// health report with recommendations.
package health

import (
	"math"
	"time"

	"fastsearch-cache/internal/cache"
)

// Status is the overall health of the cache.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Thresholds used by Evaluate.
const (
	LowHitRate            = 70.0
	CriticalHitRate       = 50.0
	HighMemoryPercent     = 80.0
	CriticalMemoryPercent = 90.0
	LargeDiskBytes        = 200 << 20
	efficiencyReference   = 50 << 20
)

// Recommendation is a suggested operator action.
type Recommendation struct {
	Type     string `json:"type"`
	Priority string `json:"priority"`
	Message  string `json:"message"`
	Action   string `json:"action"`
}

// Performance summarizes cache effectiveness.
type Performance struct {
	HitRate    float64 `json:"hit_rate"`
	Efficiency float64 `json:"cache_efficiency"`
}

// Report is the outcome of Evaluate.
type Report struct {
	Timestamp       time.Time        `json:"timestamp"`
	Status          Status           `json:"status"`
	Issues          int              `json:"issues"`
	Statistics      cache.Stats      `json:"statistics"`
	Memory          MemorySnapshot   `json:"memory_usage"`
	Disk            *DiskUsage       `json:"disk_usage,omitempty"`
	Performance     Performance      `json:"performance"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Evaluate builds a report from a statistics snapshot, a memory sample and
// an optional disk measurement. Hit rate rules apply only once the cache has
// served requests, memory rules only when a limit is known.
func Evaluate(stats cache.Stats, mem MemorySnapshot, disk *DiskUsage) Report {
	report := Report{
		Timestamp:       time.Now(),
		Statistics:      stats,
		Memory:          mem,
		Disk:            disk,
		Recommendations: []Recommendation{},
		Performance: Performance{
			HitRate:    stats.HitRate,
			Efficiency: Efficiency(stats),
		},
	}

	served := stats.Requests() > 0
	if served && stats.HitRate < LowHitRate {
		report.Recommendations = append(report.Recommendations, Recommendation{
			Type:     "performance",
			Priority: "high",
			Message:  "Low cache hit rate. Consider increasing TTL or warming cache.",
			Action:   "increase_ttl",
		})
	}
	if served && stats.HitRate < CriticalHitRate {
		report.Issues += 2
	}

	if mem.Limit > 0 {
		pct := mem.Percent()
		if pct > HighMemoryPercent {
			report.Recommendations = append(report.Recommendations, Recommendation{
				Type:     "memory",
				Priority: "medium",
				Message:  "High memory usage detected. Consider cleanup or increasing limits.",
				Action:   "cleanup_memory",
			})
		}
		switch {
		case pct > CriticalMemoryPercent:
			report.Issues += 2
		case pct > HighMemoryPercent:
			report.Issues++
		}
	}

	if disk != nil && disk.TotalSize > LargeDiskBytes {
		report.Recommendations = append(report.Recommendations, Recommendation{
			Type:     "disk",
			Priority: "low",
			Message:  "Large cache size on disk. Consider cleanup of old files.",
			Action:   "cleanup_disk",
		})
	}

	switch {
	case report.Issues >= 2:
		report.Status = StatusCritical
	case report.Issues >= 1:
		report.Status = StatusWarning
	default:
		report.Status = StatusHealthy
	}
	return report
}

// Efficiency weighs the hit rate against memory level usage normalized to
// 50 MiB. It is 0 before the first request.
func Efficiency(stats cache.Stats) float64 {
	if stats.Requests() == 0 {
		return 0
	}
	usage := math.Min(100, float64(stats.MemoryUsage)/efficiencyReference*100)
	return stats.HitRate*0.8 + usage*0.2
}
