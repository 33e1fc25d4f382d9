package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the API client and the runs
// built on top of it.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RowsTotal       prometheus.Counter
	SkippedTotal    prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	CacheTotal      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citybikes_requests_total",
			Help: "Total HTTP requests issued to the citybik.es API.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "citybikes_request_duration_seconds",
			Help:    "HTTP request latency for citybik.es API requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	rows := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citybikes_rows_total",
			Help: "Total number of network summaries produced.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citybikes_skipped_networks_total",
			Help: "Networks skipped because their records were malformed.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citybikes_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citybikes_errors_total",
			Help: "Total number of request errors by type.",
		},
		[]string{"error_type"},
	)
	cache := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citybikes_cache_lookups_total",
			Help: "Response cache lookups by result.",
		},
		[]string{"result"},
	)

	registry.MustRegister(requests, requestDuration, rows, skipped, retries, errorsTotal, cache)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RowsTotal:       rows,
		SkippedTotal:    skipped,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		CacheTotal:      cache,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRows increments the produced rows counter.
func (m *Metrics) IncRows() {
	if m == nil {
		return
	}
	m.RowsTotal.Inc()
}

// IncSkipped increments the skipped networks counter.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.SkippedTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCache records a cache hit or miss.
func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheTotal.WithLabelValues(result).Inc()
}
