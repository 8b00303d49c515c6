package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const scrapeTimeout = 5 * time.Second

// statsCollector reads cache statistics on every scrape.
type statsCollector struct {
	source StatsSource

	hits        *prometheus.Desc
	misses      *prometheus.Desc
	writes      *prometheus.Desc
	deletes     *prometheus.Desc
	hitRate     *prometheus.Desc
	memoryBytes *prometheus.Desc
	memoryItems *prometheus.Desc
	tags        *prometheus.Desc
}

func newStatsCollector(namespace string, source StatsSource) *statsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &statsCollector{
		source:      source,
		hits:        desc("hits_total", "Cache reads served by any level"),
		misses:      desc("misses_total", "Cache reads that found nothing"),
		writes:      desc("writes_total", "Successful cache writes"),
		deletes:     desc("deletes_total", "Successful cache deletes"),
		hitRate:     desc("hit_rate_percent", "Hits as a percentage of reads"),
		memoryBytes: desc("memory_level_bytes", "Bytes resident in the memory level"),
		memoryItems: desc("memory_level_items", "Items resident in the memory level"),
		tags:        desc("tags", "Tags known to the tag index"),
	}
}

// Describe implements prometheus.Collector.
func (s *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.hits
	ch <- s.misses
	ch <- s.writes
	ch <- s.deletes
	ch <- s.hitRate
	ch <- s.memoryBytes
	ch <- s.memoryItems
	ch <- s.tags
}

// Collect implements prometheus.Collector.
func (s *statsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	st := s.source.Statistics(ctx)
	ch <- prometheus.MustNewConstMetric(s.hits, prometheus.CounterValue, float64(st.Hits))
	ch <- prometheus.MustNewConstMetric(s.misses, prometheus.CounterValue, float64(st.Misses))
	ch <- prometheus.MustNewConstMetric(s.writes, prometheus.CounterValue, float64(st.Writes))
	ch <- prometheus.MustNewConstMetric(s.deletes, prometheus.CounterValue, float64(st.Deletes))
	ch <- prometheus.MustNewConstMetric(s.hitRate, prometheus.GaugeValue, st.HitRate)
	ch <- prometheus.MustNewConstMetric(s.memoryBytes, prometheus.GaugeValue, float64(st.MemoryUsage))
	ch <- prometheus.MustNewConstMetric(s.memoryItems, prometheus.GaugeValue, float64(st.MemoryItems))
	ch <- prometheus.MustNewConstMetric(s.tags, prometheus.GaugeValue, float64(st.Tags))
}
