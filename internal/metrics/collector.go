// Package metrics exposes cache statistics and HTTP operation timings to
// Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fastsearch-cache/internal/cache"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"`
}

// DefaultConfig returns metrics served on /metrics under the fastsearch_cache namespace.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Namespace: "fastsearch_cache",
		Path:      "/metrics",
	}
}

// StatsSource provides cache statistics at scrape time.
type StatsSource interface {
	Statistics(ctx context.Context) cache.Stats
}

// Collector owns the Prometheus registry of the service.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	sweepCounter      prometheus.Counter
}

// NewCollector registers the cache statistics of source and the operation
// metrics in a fresh registry.
func NewCollector(config Config, source StatsSource) (*Collector, error) {
	if config.Namespace == "" {
		config.Namespace = DefaultConfig().Namespace
	}

	c := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "operations_total",
				Help:      "Total number of cache API operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of cache API operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			[]string{"operation"},
		),
		sweepCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "expired_items_removed_total",
			Help:      "Items removed by scheduled expiry sweeps",
		}),
	}

	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.sweepCounter,
		newStatsCollector(config.Namespace, source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordOperation records one API operation.
func (c *Collector) RecordOperation(operation string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.WithLabelValues(operation, status).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSweep adds the result of an expiry sweep.
func (c *Collector) RecordSweep(removed int) {
	if removed > 0 {
		c.sweepCounter.Add(float64(removed))
	}
}
