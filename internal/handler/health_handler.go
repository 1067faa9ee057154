package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"navdir/internal/domain"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string         `json:"status"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Check states. A disabled dependency does not affect readiness.
const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusDisabled = "disabled"
)

// BrokerStatus is the part of the RabbitMQ connection readiness looks at.
type BrokerStatus interface {
	IsClosed() bool
}

// Ready returns readiness check with dependencies. Any argument may be nil
// when that dependency is not in use; db only adds pool statistics.
func Ready(store domain.KVStore, db *sql.DB, broker BrokerStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		// Check dependencies in parallel
		storeResult := make(chan HealthCheckResult, 1)
		brokerResult := make(chan HealthCheckResult, 1)

		go func() {
			storeResult <- checkStore(ctx, store, db)
		}()

		go func() {
			brokerResult <- checkBroker(broker)
		}()

		storeCheck := <-storeResult
		brokerCheck := <-brokerResult

		response := map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks": map[string]HealthCheckResult{
				"store":    storeCheck,
				"rabbitmq": brokerCheck,
			},
		}

		status := http.StatusOK
		response["status"] = "ready"
		if storeCheck.Status == StatusDown || brokerCheck.Status == StatusDown {
			status = http.StatusServiceUnavailable
			response["status"] = "not_ready"
		}

		writeJSON(w, r, status, response)
	}
}

// checkStore pings the key-value backend
func checkStore(ctx context.Context, store domain.KVStore, db *sql.DB) HealthCheckResult {
	if store == nil {
		return HealthCheckResult{Status: StatusDisabled}
	}

	start := time.Now()
	err := store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    StatusDown,
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}

	result := HealthCheckResult{
		Status:    StatusUp,
		LatencyMs: latency.Milliseconds(),
	}
	if db != nil {
		stats := db.Stats()
		result.Metadata = map[string]any{
			"connections_open":   stats.OpenConnections,
			"connections_in_use": stats.InUse,
			"connections_idle":   stats.Idle,
			"max_open":           stats.MaxOpenConnections,
		}
	}
	return result
}

// checkBroker verifies RabbitMQ connectivity
func checkBroker(broker BrokerStatus) HealthCheckResult {
	if broker == nil {
		return HealthCheckResult{Status: StatusDisabled}
	}
	if broker.IsClosed() {
		return HealthCheckResult{
			Status: StatusDown,
			Error:  "connection closed",
		}
	}
	return HealthCheckResult{Status: StatusUp}
}
