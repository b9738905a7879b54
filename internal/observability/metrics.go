// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	EventsReceived      *prometheus.CounterVec
	EventsStored        *prometheus.CounterVec
	EventsRejected      *prometheus.CounterVec
	DuplicateEvents     prometheus.Counter
	ChainBreaks         *prometheus.CounterVec
	IngestBatchSize     prometheus.Histogram
	IngestBatchDuration prometheus.Histogram
	SourceReconnects    *prometheus.CounterVec

	// Aggregation metrics
	AggregationsTotal   *prometheus.CounterVec
	AggregationDuration *prometheus.HistogramVec
	CandlesReturned     prometheus.Histogram

	// Cache metrics
	CacheRequests      *prometheus.CounterVec
	CacheInvalidations prometheus.Counter

	// HTTP metrics
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	RateLimitedReqs prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
	UptimeSeconds           prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "goladium_analytics"
	}

	return &Metrics{
		// Ingestion metrics
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_received_total",
			Help:      "Total number of ledger events received by source",
		}, []string{"source"}),
		EventsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_stored_total",
			Help:      "Total number of ledger events stored by category",
		}, []string{"category"}),
		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_rejected_total",
			Help:      "Total number of ledger events rejected by reason",
		}, []string{"reason"}),
		DuplicateEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicate_events_total",
			Help:      "Total number of redelivered events skipped as duplicates",
		}),
		ChainBreaks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "chain_breaks_total",
			Help:      "Total number of events whose value_after does not follow from delta",
		}, []string{"category"}),
		IngestBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "batch_size",
			Help:      "Number of events per stored batch",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		IngestBatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "batch_duration_seconds",
			Help:      "Time to validate and store one batch",
			Buckets:   prometheus.DefBuckets,
		}),
		SourceReconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "source_reconnects_total",
			Help:      "Total number of source reconnect attempts",
		}, []string{"source"}),

		// Aggregation metrics
		AggregationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "requests_total",
			Help:      "Total number of aggregations by range, resolution and mode",
		}, []string{"range", "resolution", "mode"}),
		AggregationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "duration_seconds",
			Help:      "Aggregation latency including event fetch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"range"}),
		CandlesReturned: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "candles_returned",
			Help:      "Number of candles per aggregation result",
			Buckets:   []float64{0, 10, 25, 50, 100, 200, 300, 400, 500},
		}),

		// Cache metrics
		CacheRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Total number of cache lookups by result",
		}, []string{"result"}),
		CacheInvalidations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of per-user cache invalidations",
		}),

		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimitedReqs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventsReceived counts events delivered by a source.
func RecordEventsReceived(source string, n int) {
	DefaultMetrics.EventsReceived.WithLabelValues(source).Add(float64(n))
}

// RecordEventStored counts one stored event.
func RecordEventStored(category string) {
	DefaultMetrics.EventsStored.WithLabelValues(category).Inc()
}

// RecordEventRejected counts an event dropped before storage.
func RecordEventRejected(reason string) {
	DefaultMetrics.EventsRejected.WithLabelValues(reason).Inc()
}

// RecordDuplicateEvent counts a redelivered event skipped by the store.
func RecordDuplicateEvent() {
	DefaultMetrics.DuplicateEvents.Inc()
}

// RecordChainBreak counts a running-total discontinuity.
func RecordChainBreak(category string) {
	DefaultMetrics.ChainBreaks.WithLabelValues(category).Inc()
}

// RecordIngestBatch records a stored batch and marks ingestion healthy.
func RecordIngestBatch(size int, d time.Duration) {
	DefaultMetrics.IngestBatchSize.Observe(float64(size))
	DefaultMetrics.IngestBatchDuration.Observe(d.Seconds())
	DefaultMetrics.LastSuccessfulIngestion.SetToCurrentTime()
}

// RecordSourceReconnect counts a reconnect attempt.
func RecordSourceReconnect(source string) {
	DefaultMetrics.SourceReconnects.WithLabelValues(source).Inc()
}

// RecordAggregation records one aggregation result.
func RecordAggregation(rangeKey, resolution, mode string, candles int, d time.Duration) {
	DefaultMetrics.AggregationsTotal.WithLabelValues(rangeKey, resolution, mode).Inc()
	DefaultMetrics.AggregationDuration.WithLabelValues(rangeKey).Observe(d.Seconds())
	DefaultMetrics.CandlesReturned.Observe(float64(candles))
}

// RecordCacheResult counts a cache lookup as "hit", "miss" or "error".
func RecordCacheResult(result string) {
	DefaultMetrics.CacheRequests.WithLabelValues(result).Inc()
}

// RecordCacheInvalidation counts a per-user invalidation.
func RecordCacheInvalidation() {
	DefaultMetrics.CacheInvalidations.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(route, status string, d time.Duration) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, status).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited() {
	DefaultMetrics.RateLimitedReqs.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// AddUptime advances the uptime counter.
func AddUptime(d time.Duration) {
	DefaultMetrics.UptimeSeconds.Add(d.Seconds())
}
