package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// TestSyncSucceeded updates the offset and success counters.
func TestSyncSucceeded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	at := time.Unix(1700000000, 0)
	m.SyncSucceeded(-250*time.Millisecond, 40*time.Millisecond, at)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues(ResultSuccess)))
	assert.Equal(t, -0.25, testutil.ToFloat64(m.offset))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastSync))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.synced))
	assert.Equal(t, 1, testutil.CollectAndCount(m.rtt))
}

// TestSyncFailed counts failures by result without touching the offset.
func TestSyncFailed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SyncFailed(ResultUnavailable)
	m.SyncFailed(ResultUnavailable)
	m.SyncFailed(ResultMalformed)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues(ResultUnavailable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues(ResultMalformed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.synced))
}

// TestNilMetrics is a no-op sink.
func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.SyncSucceeded(time.Second, time.Second, time.Now())
	m.SyncFailed(ResultMalformed)
}

// TestResultSeriesInitialized exposes every result label from the start.
func TestResultSeriesInitialized(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	n, err := testutil.GatherAndCount(reg, "clocksync_sync_attempts_total")
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
}
