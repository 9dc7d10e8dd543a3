package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flynnfc/clocksync/internal/metrics"
	"github.com/flynnfc/clocksync/internal/truetime"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func syncedRecord(clock truetime.Clock, offset time.Duration) *truetime.Record {
	r := truetime.NewRecord(clock)
	local := clock.Now()
	r.Store(truetime.Observation{
		Authoritative:   local.Add(offset),
		ObservedAtLocal: local,
		RTT:             10 * time.Millisecond,
		Server:          "time.example",
	})
	return r
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp
}

// TestTimeEndpoints checks both the current and legacy paths return corrected time.
func TestTimeEndpoints(t *testing.T) {
	clock := &stepClock{now: epoch}
	record := syncedRecord(clock, 1500*time.Millisecond)
	ts := httptest.NewServer(NewTimeServer(record, zap.NewNop()).Handler())
	defer ts.Close()

	for _, path := range []string{"/api/time", "/time"} {
		t.Run(path, func(t *testing.T) {
			var body TimeResponse
			resp := getJSON(t, ts.URL+path, &body)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
			assert.Equal(t, "2024-06-01T12:00:01.500Z", body.Time)
		})
	}
}

// TestTimeEndpointDegraded serves the local clock before any sync.
func TestTimeEndpointDegraded(t *testing.T) {
	clock := &stepClock{now: epoch}
	ts := httptest.NewServer(NewTimeServer(truetime.NewRecord(clock), zap.NewNop()).Handler())
	defer ts.Close()

	var body TimeResponse
	getJSON(t, ts.URL+"/api/time", &body)
	assert.Equal(t, "2024-06-01T12:00:00.000Z", body.Time)
}

// TestTimeEndpointRejectsPost keeps the endpoint read only.
func TestTimeEndpointRejectsPost(t *testing.T) {
	ts := httptest.NewServer(NewTimeServer(truetime.NewRecord(nil), zap.NewNop()).Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/time", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// TestStatusEndpoint reports the sync summary.
func TestStatusEndpoint(t *testing.T) {
	clock := &stepClock{now: epoch}
	record := syncedRecord(clock, -250*time.Millisecond)
	clock.Advance(30 * time.Second)
	ts := httptest.NewServer(NewTimeServer(record, zap.NewNop()).Handler())
	defer ts.Close()

	var body StatusResponse
	getJSON(t, ts.URL+"/api/status", &body)
	assert.True(t, body.Synced)
	assert.Equal(t, -250.0, body.OffsetMillis)
	assert.Equal(t, 10.0, body.RTTMillis)
	assert.Equal(t, "time.example", body.Server)
	assert.Equal(t, 30.0, body.AgeSeconds)
	assert.Equal(t, "2024-06-01T12:00:00.000Z", body.LastSync)
	assert.Equal(t, "2024-06-01T12:00:29.750Z", body.Now)
}

// TestHealthAndMetrics exposes liveness and the Prometheus registry.
func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SyncFailed(metrics.ResultUnavailable)

	ts := httptest.NewServer(NewTimeServer(truetime.NewRecord(nil), zap.NewNop(), WithGatherer(reg)).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `clocksync_sync_attempts_total{result="unavailable"} 1`)
}

// TestStreamPushesTime receives consecutive corrected times over a websocket.
func TestStreamPushesTime(t *testing.T) {
	record := syncedRecord(truetime.SystemClock{}, time.Hour)
	ts := httptest.NewServer(NewTimeServer(record, zap.NewNop(), WithStreamInterval(10*time.Millisecond)).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/time"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var prev time.Time
	for i := 0; i < 3; i++ {
		var msg TimeResponse
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		got, err := time.Parse(time.RFC3339Nano, msg.Time)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(time.Hour), got, 5*time.Second)
		assert.False(t, got.Before(prev), "stream went backwards")
		prev = got
	}
}
