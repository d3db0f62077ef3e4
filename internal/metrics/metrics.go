// HealthDuck - Apple Health Export Importer and Query Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/healthduck

// Package metrics defines the Prometheus instruments for the import pipeline,
// the read-only query layer and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Import pipeline metrics
	ImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthduck_import_rows_total",
			Help: "Total number of rows appended per table",
		},
		[]string{"table"},
	)

	ImportBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthduck_import_batches_total",
			Help: "Total number of batches flushed through the appender",
		},
		[]string{"table"},
	)

	ImportBatchFlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthduck_import_batch_flush_duration_seconds",
			Help:    "Time spent appending and flushing one batch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"table"},
	)

	ImportQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthduck_import_queue_depth",
			Help: "Number of ready batches waiting for the writer",
		},
	)

	ImportSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthduck_import_skipped_total",
			Help: "Total number of rows skipped during parsing",
		},
		[]string{"kind"}, // "record", "workout", "event", "statistic", "route_point"
	)

	ImportFileErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthduck_import_file_errors_total",
			Help: "Total number of auxiliary files that failed to import",
		},
		[]string{"phase"},
	)

	ImportPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthduck_import_phase_duration_seconds",
			Help:    "Duration of each import phase",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"phase"},
	)

	ImportDedupRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthduck_import_dedup_removed_total",
			Help: "Total number of duplicate rows removed by the dedup phase",
		},
		[]string{"table"},
	)

	ImportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthduck_import_runs_total",
			Help: "Total number of import runs by terminal status",
		},
		[]string{"status"},
	)

	// Query metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	QueryCircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "query_circuit_breaker_state",
			Help: "Read-only query circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	QueryCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthduck_query_cache_requests_total",
			Help: "Read-only query cache lookups by result (hit, miss)",
		},
		[]string{"operation", "result"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)

// RecordBatchFlush records one appender flush.
func RecordBatchFlush(table string, rows int, duration time.Duration) {
	ImportRowsTotal.WithLabelValues(table).Add(float64(rows))
	ImportBatchesTotal.WithLabelValues(table).Inc()
	ImportBatchFlushDuration.WithLabelValues(table).Observe(duration.Seconds())
}

// RecordSkipped records rows rejected by a parser.
func RecordSkipped(kind string, n int64) {
	if n > 0 {
		ImportSkippedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordFileError records a per-file failure in the given phase.
func RecordFileError(phase string) {
	ImportFileErrorsTotal.WithLabelValues(phase).Inc()
}

// RecordPhase records the duration of an import phase.
func RecordPhase(phase string, duration time.Duration) {
	ImportPhaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordDedup records duplicates removed from a table.
func RecordDedup(table string, removed int64) {
	if removed > 0 {
		ImportDedupRemovedTotal.WithLabelValues(table).Add(float64(removed))
	}
}

// RecordRun records a finished import run.
func RecordRun(status string) {
	ImportRunsTotal.WithLabelValues(status).Inc()
}

// UpdateQueueDepth sets the loader queue depth gauge.
func UpdateQueueDepth(depth int) {
	ImportQueueDepth.Set(float64(depth))
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordQueryCache records a query cache lookup.
func RecordQueryCache(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	QueryCacheRequests.WithLabelValues(operation, result).Inc()
}

// SetBreakerState records the query circuit breaker state.
func SetBreakerState(state int) {
	QueryCircuitBreakerState.Set(float64(state))
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
