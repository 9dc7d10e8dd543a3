package timeclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultEndpointURL is where a locally running clocksync server answers.
	DefaultEndpointURL = "http://localhost:8080/api/time"
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 5 * time.Second
	// DefaultResyncInterval is the re-sync cadence used by the bundled
	// consumers. Managers do not re-sync unless WithResyncInterval is set.
	DefaultResyncInterval = 5 * time.Minute
)

// ErrClientFetchFailed means the time endpoint could not be reached or its
// answer could not be used.
var ErrClientFetchFailed = errors.New("timeclient: fetch failed")

// Fetcher retrieves corrected time from a clocksync server.
type Fetcher interface {
	Fetch(ctx context.Context) (time.Time, error)
}

// Clock reads the local clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Manager derives corrected time locally from one (or periodically
// repeated) fetch. CurrentTime never does I/O.
type Manager struct {
	fetcher Fetcher
	clock   Clock
	timeout time.Duration
	resync  time.Duration
	logger  *zap.Logger

	mu     sync.Mutex // serializes Sync
	offset atomic.Int64
	synced atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the local clock.
func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) Option { return func(m *Manager) { m.timeout = d } }

// WithResyncInterval enables periodic re-sync in Resync. Zero disables it.
func WithResyncInterval(d time.Duration) Option { return func(m *Manager) { m.resync = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

// New returns a Manager using f. Until a fetch succeeds the Manager reports
// the raw local clock.
func New(f Fetcher, opts ...Option) *Manager {
	m := &Manager{
		fetcher: f,
		clock:   systemClock{},
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewHTTP returns a Manager fetching from a GET /api/time endpoint.
func NewHTTP(endpointURL string, opts ...Option) *Manager {
	return New(NewHTTPFetcher(endpointURL, nil), opts...)
}

// Initialize performs one fetch and adopts its offset. It never fails: on
// error the previous offset (zero on first use) is kept and the error is
// logged, so the clock stays usable with local time only.
func (m *Manager) Initialize(ctx context.Context) {
	if _, err := m.Sync(ctx); err != nil {
		m.logger.Warn("Time sync failed, using local clock offset",
			zap.Duration("offset", m.Offset()),
			zap.Error(err))
	}
}

// Sync performs one fetch. On success the offset is replaced and returned;
// on failure it is untouched and the error wraps ErrClientFetchFailed.
func (m *Manager) Sync(ctx context.Context) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	remote, err := m.fetcher.Fetch(ctx)
	receipt := m.clock.Now()
	if err != nil {
		if !errors.Is(err, ErrClientFetchFailed) {
			err = fmt.Errorf("%w: %v", ErrClientFetchFailed, err)
		}
		return 0, err
	}

	offset := remote.Sub(receipt)
	m.offset.Store(int64(offset))
	m.synced.Store(true)
	m.logger.Info("Synchronized with time server",
		zap.Time("remote", remote),
		zap.Duration("offset", offset))
	return offset, nil
}

// CurrentTime is the local clock plus the last adopted offset.
func (m *Manager) CurrentTime() time.Time {
	return m.clock.Now().Add(m.Offset())
}

// Offset returns the last adopted offset.
func (m *Manager) Offset() time.Duration {
	return time.Duration(m.offset.Load())
}

// Synced reports whether any fetch has succeeded.
func (m *Manager) Synced() bool {
	return m.synced.Load()
}

// Resync calls Initialize on every re-sync interval until ctx is done. It
// returns immediately when re-sync is disabled. Call Initialize first; Resync
// does not fetch before the first tick.
func (m *Manager) Resync(ctx context.Context) {
	if m.resync <= 0 {
		return
	}
	ticker := time.NewTicker(m.resync)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Initialize(ctx)
		}
	}
}
