package dashboard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricAggregationDuration = "dashboard_aggregation_duration_seconds"
	MetricCacheHits           = "dashboard_cache_hits_total"
	MetricCacheMisses         = "dashboard_cache_misses_total"
)

// Metrics contains Prometheus metrics for the aggregation engine.
// A nil *Metrics is valid and records nothing, so tests can omit it.
type Metrics struct {
	aggregationDuration *prometheus.HistogramVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
}

// NewMetrics creates the collectors. They are not registered; call Register
// with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		aggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricAggregationDuration,
				Help:    "Dashboard aggregation duration in seconds by metric name",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 20.0},
			},
			[]string{"metric"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCacheHits,
				Help: "Dashboard cache hits by metric name",
			},
			[]string{"metric"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCacheMisses,
				Help: "Dashboard cache misses by metric name",
			},
			[]string{"metric"},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.aggregationDuration, m.cacheHits, m.cacheMisses} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveAggregation records the duration of one aggregation.
func (m *Metrics) ObserveAggregation(metric string, start time.Time) {
	if m == nil {
		return
	}
	m.aggregationDuration.WithLabelValues(metric).Observe(time.Since(start).Seconds())
}

// IncCacheHit increments the cache hit counter for a metric.
func (m *Metrics) IncCacheHit(metric string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(metric).Inc()
}

// IncCacheMiss increments the cache miss counter for a metric.
func (m *Metrics) IncCacheMiss(metric string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(metric).Inc()
}
