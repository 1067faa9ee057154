package observability

import (
	"database/sql"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetrics(t *testing.T) {
	t.Run("histogram_accepts_expected_labels", func(t *testing.T) {
		assert.NotPanics(t, func() {
			HTTPRequestDuration.WithLabelValues("GET", "/api/config", "200").Observe(0.05)
			HTTPRequestDuration.WithLabelValues("POST", "/api/login", "401").Observe(0.1)
		})
	})

	t.Run("counter_increments", func(t *testing.T) {
		c := HTTPRequestsTotal.WithLabelValues("PUT", "/api/config", "409")
		before := testutil.ToFloat64(c)
		c.Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(c))
	})
}

func TestLoginMetrics(t *testing.T) {
	tests := []string{"success", "invalid", "locked", "error"}

	for _, result := range tests {
		t.Run(result, func(t *testing.T) {
			c := LoginAttemptsTotal.WithLabelValues(result)
			before := testutil.ToFloat64(c)
			c.Inc()
			assert.Equal(t, before+1, testutil.ToFloat64(c))
		})
	}

	t.Run("lockouts", func(t *testing.T) {
		before := testutil.ToFloat64(LoginLockoutsTotal)
		LoginLockoutsTotal.Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(LoginLockoutsTotal))
	})
}

func TestConfigMetrics(t *testing.T) {
	c := ConfigWritesTotal.WithLabelValues("conflict")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(c))

	ConfigEventConnectionsActive.Set(0)
	ConfigEventConnectionsActive.Inc()
	ConfigEventConnectionsActive.Inc()
	ConfigEventConnectionsActive.Dec()
	assert.Equal(t, float64(1), testutil.ToFloat64(ConfigEventConnectionsActive))
	ConfigEventConnectionsActive.Set(0)
}

func TestRecordDBStats(t *testing.T) {
	RecordDBStats(sql.DBStats{OpenConnections: 10, InUse: 4, Idle: 6})

	assert.Equal(t, float64(10), testutil.ToFloat64(DBConnectionsOpen))
	assert.Equal(t, float64(4), testutil.ToFloat64(DBConnectionsInUse))
	assert.Equal(t, float64(6), testutil.ToFloat64(DBConnectionsIdle))
}
