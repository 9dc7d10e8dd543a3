package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clocksync"

// Sync attempt results, used as the "result" label.
const (
	ResultSuccess     = "success"
	ResultUnavailable = "unavailable"
	ResultMalformed   = "malformed"
)

// Metrics holds the collectors for the sync engine. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	attempts *prometheus.CounterVec
	offset   prometheus.Gauge
	lastSync prometheus.Gauge
	rtt      prometheus.Histogram
	synced   prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_attempts_total",
			Help:      "Sync attempts against the authoritative time source, by result.",
		}, []string{"result"}),
		offset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offset_seconds",
			Help:      "Current correction applied to the local clock.",
		}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Local unix time of the last successful sync.",
		}),
		rtt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_rtt_seconds",
			Help:      "Round trip time of successful sync queries.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		synced: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "synced",
			Help:      "1 once a sync has succeeded, 0 while in degraded mode.",
		}),
	}
	reg.MustRegister(m.attempts, m.offset, m.lastSync, m.rtt, m.synced)
	for _, r := range []string{ResultSuccess, ResultUnavailable, ResultMalformed} {
		m.attempts.WithLabelValues(r)
	}
	return m
}

// SyncSucceeded records a successful attempt.
func (m *Metrics) SyncSucceeded(offset, rtt time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(ResultSuccess).Inc()
	m.offset.Set(offset.Seconds())
	m.lastSync.Set(float64(at.UnixNano()) / 1e9)
	m.rtt.Observe(rtt.Seconds())
	m.synced.Set(1)
}

// SyncFailed records a failed attempt with one of the Result constants.
func (m *Metrics) SyncFailed(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}
