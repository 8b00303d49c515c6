package cache

import (
	"context"
	"sync/atomic"

	"fastsearch-cache/internal/adapters"
)

// counters are the process-wide cache statistics.
type counters struct {
	hits    atomic.Int64
	misses  atomic.Int64
	writes  atomic.Int64
	deletes atomic.Int64
}

func (c *counters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.writes.Store(0)
	c.deletes.Store(0)
}

// AdapterStats is the snapshot of one configured adapter.
type AdapterStats struct {
	Level   string                 `json:"level"`
	Adapter string                 `json:"adapter"`
	Stats   map[string]interface{} `json:"stats,omitempty"`
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Hits        int64          `json:"hits"`
	Misses      int64          `json:"misses"`
	Writes      int64          `json:"writes"`
	Deletes     int64          `json:"deletes"`
	HitRate     float64        `json:"hit_rate"`
	MemoryUsage int64          `json:"memory_usage"`
	MemoryItems int            `json:"memory_items"`
	Tags        int            `json:"tags"`
	TaggedKeys  int            `json:"tagged_keys"`
	Adapters    []AdapterStats `json:"adapters"`
}

// Requests returns hits plus misses.
func (s Stats) Requests() int64 {
	return s.Hits + s.Misses
}

// HitRate returns hits as a percentage of requests, 0 with no requests.
func HitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Statistics returns the current counters and per-adapter statistics.
func (c *Cache) Statistics(ctx context.Context) Stats {
	s := Stats{
		Hits:    c.stats.hits.Load(),
		Misses:  c.stats.misses.Load(),
		Writes:  c.stats.writes.Load(),
		Deletes: c.stats.deletes.Load(),
	}
	s.HitRate = HitRate(s.Hits, s.Misses)
	s.Tags, s.TaggedKeys = c.tags.size()

	for _, t := range c.tiers {
		for _, a := range t.adapters {
			if t.level == LevelMemory {
				if sizer, ok := a.(adapters.Sizer); ok {
					items, bytes := sizer.Usage()
					s.MemoryItems += items
					s.MemoryUsage += bytes
				}
			}
			entry := AdapterStats{Level: t.level.String(), Adapter: a.Name()}
			if sp, ok := a.(adapters.StatsProvider); ok {
				entry.Stats = sp.Stats(ctx)
			}
			s.Adapters = append(s.Adapters, entry)
		}
	}
	return s
}
