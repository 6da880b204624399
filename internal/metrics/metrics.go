// Package metrics exports Prometheus collectors for the article cache
// service: HTTP traffic, store/warehouse activity, and the coordination
// primitives (coverage, freshness, single-flight, usage budget).
// Grounded on the teacher's internal/metrics/metrics.go — same
// singleton-via-sync.Once shape and promauto registration style,
// narrowed from the teacher's AI/billing/websocket/build surface (none
// of which exists in this domain) down to what GetArticles actually
// touches.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds every Prometheus collector the service registers.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPResponseSize     *prometheus.HistogramVec

	WarehouseFetchesTotal   *prometheus.CounterVec
	WarehouseFetchDuration  *prometheus.HistogramVec
	WarehouseBytesScanned   *prometheus.CounterVec

	CoverageChecksTotal  *prometheus.CounterVec
	FreshnessChecksTotal *prometheus.CounterVec
	SingleFlightJoins    prometheus.Counter

	UsagePercent        prometheus.Gauge
	UsageWarningLevel   *prometheus.GaugeVec
	RetentionDeletedTotal prometheus.Counter

	DBQueryDuration *prometheus.HistogramVec
	DBErrorsTotal   *prometheus.CounterVec

	StartupTime prometheus.Gauge
}

// Get returns the process-wide Metrics singleton, registering its
// collectors on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gdelt_cache",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status"},
	)
	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gdelt_cache",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)
	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gdelt_cache",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "HTTP requests currently being served",
		},
	)
	m.HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gdelt_cache",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		},
		[]string{"endpoint"},
	)

	m.WarehouseFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gdelt_cache",
			Subsystem: "warehouse",
			Name:      "fetches_total",
			Help:      "Total warehouse fetch calls by kind and result",
		},
		[]string{"kind", "result"},
	)
	m.WarehouseFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gdelt_cache",
			Subsystem: "warehouse",
			Name:      "fetch_duration_seconds",
			Help:      "Warehouse fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
	m.WarehouseBytesScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gdelt_cache",
			Subsystem: "warehouse",
			Name:      "bytes_scanned_total",
			Help:      "Bytes scanned against the warehouse, by kind",
		},
		[]string{"kind"},
	)

	m.CoverageChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gdelt_cache",
			Subsystem: "coordination",
			Name:      "coverage_checks_total",
			Help:      "Coverage evaluations by verdict",
		},
		[]string{"verdict"},
	)
	m.FreshnessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gdelt_cache",
			Subsystem: "coordination",
			Name:      "freshness_checks_total",
			Help:      "Freshness evaluations by status",
		},
		[]string{"status"},
	)
	m.SingleFlightJoins = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gdelt_cache",
			Subsystem: "coordination",
			Name:      "singleflight_joins_total",
			Help:      "Requests that joined an in-flight fetch instead of starting their own",
		},
	)

	m.UsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gdelt_cache",
			Subsystem: "usage",
			Name:      "budget_percent",
			Help:      "Percent of the monthly warehouse byte budget consumed",
		},
	)
	m.UsageWarningLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gdelt_cache",
			Subsystem: "usage",
			Name:      "warning_level",
			Help:      "1 if the current month is at or above this warning level, else 0",
		},
		[]string{"level"},
	)
	m.RetentionDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gdelt_cache",
			Subsystem: "retention",
			Name:      "rows_deleted_total",
			Help:      "Total rows deleted by the retention job",
		},
	)

	m.DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gdelt_cache",
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	m.DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gdelt_cache",
			Subsystem: "db",
			Name:      "errors_total",
			Help:      "Database errors by operation",
		},
		[]string{"operation"},
	)

	m.StartupTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gdelt_cache",
			Name:      "startup_time_seconds",
			Help:      "Unix timestamp of process startup",
		},
	)

	return m
}

// RecordHTTPRequest records one completed HTTP request's metrics.
func (m *Metrics) RecordHTTPRequest(endpoint, method string, status int, durationSeconds float64, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, statusBucket(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(endpoint, method).Observe(durationSeconds)
	m.HTTPResponseSize.WithLabelValues(endpoint).Observe(float64(responseSize))
}

func statusBucket(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
