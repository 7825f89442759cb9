package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics in Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec

	resolutions     prometheus.Counter
	groupExpansions prometheus.Counter
	ownedFetched    prometheus.Counter

	cacheHitRate     prometheus.Gauge
	cacheMemoryBytes prometheus.Gauge
	cacheEvictions   prometheus.Gauge
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{
		collector: collector,
		httpRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ownerstats_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route"},
		),
		httpDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ownerstats_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"route"},
		),
		httpErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ownerstats_http_errors_total",
				Help: "Total number of HTTP error responses",
			},
			[]string{"route"},
		),
		resolutions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ownerstats_ownership_resolutions_total",
			Help: "Total number of completed ownership resolutions",
		}),
		groupExpansions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ownerstats_group_expansions_total",
			Help: "Total number of group nodes expanded during hierarchy traversal",
		}),
		ownedFetched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ownerstats_owned_entities_fetched_total",
			Help: "Total number of owned entities returned by catalog searches",
		}),
		cacheHitRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ownerstats_entity_cache_hit_rate",
			Help: "Current entity cache hit rate (0.0 to 1.0)",
		}),
		cacheMemoryBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ownerstats_entity_cache_memory_bytes",
			Help: "Current memory usage of the entity cache in bytes",
		}),
		cacheEvictions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ownerstats_entity_cache_evictions_total",
			Help: "Total number of entity cache evictions",
		}),
	}
}

// Update refreshes gauge metrics from the collector. Counters are updated on
// the request path; call this periodically (e.g. every 10 seconds).
func (e *PrometheusExporter) Update() {
	cm := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cm.HitRate)
	e.cacheMemoryBytes.Set(float64(cm.MemoryBytes))
	e.cacheEvictions.Set(float64(cm.Evictions))
}

// RecordRequest records a request in Prometheus.
func (e *PrometheusExporter) RecordRequest(route string) {
	e.httpRequests.WithLabelValues(route).Inc()
}

// RecordDuration records a request duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(route string, durationSeconds float64) {
	e.httpDuration.WithLabelValues(route).Observe(durationSeconds)
}

// RecordError records an error response in Prometheus.
func (e *PrometheusExporter) RecordError(route string) {
	e.httpErrors.WithLabelValues(route).Inc()
}

// RecordResolution records one completed ownership resolution.
func (e *PrometheusExporter) RecordResolution() {
	e.resolutions.Inc()
}

// RecordGroupExpansions adds expanded group nodes for one resolution.
func (e *PrometheusExporter) RecordGroupExpansions(n int) {
	if n > 0 {
		e.groupExpansions.Add(float64(n))
	}
}

// RecordOwnedFetched adds owned entities returned by one search.
func (e *PrometheusExporter) RecordOwnedFetched(n int) {
	if n > 0 {
		e.ownedFetched.Add(float64(n))
	}
}
