package observability

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Login metrics. result is one of success, invalid, locked, error.
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Total number of admin login attempts by outcome",
		},
		[]string{"result"},
	)

	LoginLockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "login_lockouts_total",
			Help: "Total number of client identities placed into lockout",
		},
	)

	// Config document metrics. result is one of ok, conflict, invalid, error.
	ConfigWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_writes_total",
			Help: "Total number of configuration write attempts by outcome",
		},
		[]string{"result"},
	)

	// WebSocket metrics
	ConfigEventConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "config_events_connections_active",
			Help: "Number of active config event WebSocket connections",
		},
	)

	ConfigEventsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "config_events_sent_total",
			Help: "Total number of config events delivered to WebSocket clients",
		},
	)

	// Database metrics
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	StoreExpiredEntriesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_expired_entries_deleted_total",
			Help: "Total number of expired key-value rows removed by the cleanup task",
		},
	)
)

// RecordDBStats copies connection pool statistics into the DB gauges.
func RecordDBStats(stats sql.DBStats) {
	DBConnectionsOpen.Set(float64(stats.OpenConnections))
	DBConnectionsInUse.Set(float64(stats.InUse))
	DBConnectionsIdle.Set(float64(stats.Idle))
}
