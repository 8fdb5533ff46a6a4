// Package telemetry provides application-level observability for the audit
// service.
//
// All metrics are registered against the default Prometheus registry and are
// served on a side-channel HTTP server started by main.go:
//
//	GET http://<host>:<SLG_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not routed through Gin, so it is absent
// from the public API surface and bypasses the rate limiter.
//
// Metric groups:
//   - HTTP request counters and latency histograms (labelled by route template,
//     not raw URL, to keep label cardinality bounded)
//   - Audit write-path failure counters (the write path is fire-and-forget
//     relative to business operations, so these counters are the primary signal
//     that audit persistence is systemically broken)
//   - Database connection pool gauge (polled every 30 s)
package telemetry

import (
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// The path label holds the Gin route template (e.g. /api/v1/audit-logs), never
// the raw URL.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Audit pipeline metrics.
//
// AuditRecordsTotal counts successful appends by action, giving operators a
// cheap rate signal per action family.
//
// AuditWriteFailuresTotal counts storage or serialization failures absorbed by
// the recorder. Business operations are unaffected by these failures, so an
// alert on increase(audit_write_failures_total[15m]) > 0 is the recommended way
// to detect a silently broken audit trail.
//
// AuditShipFailuresTotal counts failed deliveries to external audit
// destinations (file/webhook shippers).
//
// AuditDetailsDecodeFailuresTotal counts stored records whose details payload
// no longer parses as JSON; such records are served with empty details rather
// than failing the page.
var (
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Total number of audit records successfully appended, by action.",
		},
		[]string{"action"},
	)

	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Total number of audit record writes absorbed as failures on the fire-and-forget write path.",
		},
	)

	AuditShipFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ship_failures_total",
			Help: "Total number of failed audit record deliveries to external destinations, by destination type.",
		},
		[]string{"destination"},
	)

	AuditDetailsDecodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_details_decode_failures_total",
			Help: "Total number of stored audit records whose details payload failed to decode and was served empty.",
		},
	)

	AuditRecordsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_records_pruned_total",
			Help: "Total number of audit records removed by the operator retention job.",
		},
	)
)

// DBOpenConnections tracks the number of open connections currently held by
// the shared pool. Sampled every 30 seconds by StartDBStatsCollector rather
// than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens
// naturally at shutdown once the pool is closed.
func StartDBStatsCollector(database *sqlx.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := database.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(database.Stats().OpenConnections))
		}
	}()
}
