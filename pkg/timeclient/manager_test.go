package timeclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flynnfc/clocksync/internal/truetime"
	"github.com/flynnfc/clocksync/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var (
	t0 = time.Date(2025, 1, 1, 9, 30, 0, 0, time.UTC)
	l0 = time.Date(2025, 1, 1, 9, 29, 58, 0, time.UTC)
)

func stubServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

// TestInitializeRoundTrip adopts remote - local receipt as the offset.
func TestInitializeRoundTrip(t *testing.T) {
	ts := stubServer(t, `{"time":"2025-01-01T09:30:00.000Z"}`)
	clock := &manualClock{now: l0}
	m := NewHTTP(ts.URL+"/api/time", WithClock(clock))

	m.Initialize(context.Background())
	require.True(t, m.Synced())
	assert.Equal(t, 2*time.Second, m.Offset())
	assert.True(t, m.CurrentTime().Equal(t0))

	clock.Advance(750 * time.Millisecond)
	assert.True(t, m.CurrentTime().Equal(t0.Add(750*time.Millisecond)))
}

// TestInitializeAgainstTimeServer runs the manager against the real handler
// on the system clock and stays within a small epsilon of the server.
func TestInitializeAgainstTimeServer(t *testing.T) {
	local := time.Now()
	record := truetime.NewRecord(nil)
	record.Store(truetime.Observation{Authoritative: local.Add(-42 * time.Second), ObservedAtLocal: local})
	ts := httptest.NewServer(server.NewTimeServer(record, zap.NewNop()).Handler())
	defer ts.Close()

	for _, path := range []string{"/api/time", "/time"} {
		m := NewHTTP(ts.URL + path)
		m.Initialize(context.Background())
		require.True(t, m.Synced(), path)
		assert.WithinDuration(t, record.Now(), m.CurrentTime(), 100*time.Millisecond, path)
	}
}

// TestInitializeUnreachable falls back to the local clock without failing.
func TestInitializeUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL + "/api/time"
	ts.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	clock := &manualClock{now: l0}
	m := NewHTTP(url, WithClock(clock), WithLogger(zap.New(core)))

	m.Initialize(context.Background())
	assert.False(t, m.Synced())
	assert.Equal(t, time.Duration(0), m.Offset())
	assert.True(t, m.CurrentTime().Equal(clock.Now()))
	assert.Equal(t, 1, logs.Len())
}

// TestSyncFailureKeepsOffset never replaces a good offset with a failure.
func TestSyncFailureKeepsOffset(t *testing.T) {
	var fail atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"time":"2025-01-01T09:30:00Z"}`)
	}))
	defer ts.Close()

	m := NewHTTP(ts.URL, WithClock(&manualClock{now: l0}))
	_, err := m.Sync(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	_, err = m.Sync(context.Background())
	assert.ErrorIs(t, err, ErrClientFetchFailed)
	assert.Equal(t, 2*time.Second, m.Offset())
}

// TestSyncRejectsBadBodies covers parse failures.
func TestSyncRejectsBadBodies(t *testing.T) {
	for name, body := range map[string]string{
		"not json":     `<html>`,
		"missing time": `{"now":"2025-01-01T09:30:00Z"}`,
		"bad time":     `{"time":"yesterday"}`,
	} {
		t.Run(name, func(t *testing.T) {
			ts := stubServer(t, body)
			m := NewHTTP(ts.URL)
			_, err := m.Sync(context.Background())
			assert.ErrorIs(t, err, ErrClientFetchFailed)
			assert.False(t, m.Synced())
		})
	}
}

// TestSyncTimeout treats a slow server as a failure.
func TestSyncTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	m := NewHTTP(ts.URL, WithTimeout(20*time.Millisecond))
	start := time.Now()
	_, err := m.Sync(context.Background())
	assert.ErrorIs(t, err, ErrClientFetchFailed)
	assert.Less(t, time.Since(start), 2*time.Second)
}

// TestResyncDisabled returns at once without fetching.
func TestResyncDisabled(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"time":"2025-01-01T09:30:00Z"}`)
	}))
	defer ts.Close()

	m := NewHTTP(ts.URL)
	done := make(chan struct{})
	go func() {
		m.Resync(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Resync blocked with re-sync disabled")
	}
	assert.Equal(t, int32(0), calls.Load())
}

// TestResyncReplacesOffset picks up a changed server offset on the cadence.
func TestResyncReplacesOffset(t *testing.T) {
	var remote atomic.Value
	remote.Store("2025-01-01T09:30:00Z")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"time":%q}`, remote.Load().(string))
	}))
	defer ts.Close()

	m := NewHTTP(ts.URL, WithClock(&manualClock{now: l0}), WithResyncInterval(10*time.Millisecond))
	m.Initialize(context.Background())
	require.Equal(t, 2*time.Second, m.Offset())

	remote.Store("2025-01-01T09:30:05Z")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Resync(ctx)

	require.Eventually(t, func() bool { return m.Offset() == 7*time.Second }, 2*time.Second, 5*time.Millisecond)
}
