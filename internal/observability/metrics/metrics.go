package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "devices_"

	resultSuccess  = "success"
	resultError    = "error"
	resultConflict = "conflict"
	resultInvalid  = "invalid"
)

var (
	registerOnce sync.Once

	operationTotal   *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	ignoredFields    *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	exportTotal      *prometheus.CounterVec
)

// Init registers service metrics and DB-backed gauges. Safe to call more than once.
func Init(db *sql.DB, logger zerolog.Logger) {
	registerOnce.Do(func() {
		operationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total device service operations by operation and result",
			},
			[]string{"op", "result"},
		)
		operationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_latency_seconds",
				Help:    "Device service operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)
		ignoredFields = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ignored_fields_total",
				Help: "Update fields dropped because the device was in use",
			},
			[]string{"field"},
		)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		)
		eventsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_published_total",
				Help: "Device events published by type and result",
			},
			[]string{"type", "result"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Device inventory exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			operationTotal,
			operationLatency,
			ignoredFields,
			httpRequests,
			eventsPublished,
			exportTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveOperation records a service operation result and duration.
func ObserveOperation(op, result string, duration time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if operationTotal != nil {
		operationTotal.WithLabelValues(op, result).Inc()
	}
	if operationLatency != nil {
		operationLatency.WithLabelValues(op, result).Observe(duration.Seconds())
	}
}

// IncIgnoredField counts an update field dropped by the in-use rule.
func IncIgnoredField(field string) {
	if field == "" {
		field = "unknown"
	}
	if ignoredFields != nil {
		ignoredFields.WithLabelValues(field).Inc()
	}
}

// IncHTTPRequest counts a served HTTP request.
func IncHTTPRequest(method, code string) {
	if httpRequests != nil {
		httpRequests.WithLabelValues(method, code).Inc()
	}
}

// IncEventPublished counts a device event publish attempt.
func IncEventPublished(eventType, result string) {
	if result == "" {
		result = resultSuccess
	}
	if eventsPublished != nil {
		eventsPublished.WithLabelValues(eventType, result).Inc()
	}
}

// IncExport counts an inventory export.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultConflict = resultConflict
	ResultInvalid  = resultInvalid
)
