package truetime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flynnfc/clocksync/internal/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const (
	// DefaultInterval is the period between scheduled syncs.
	DefaultInterval = 15 * time.Minute
	// DefaultDriftWarning is the offset above which a sync logs a warning.
	DefaultDriftWarning = time.Second
)

// Journal keeps a history of successful observations.
type Journal interface {
	Append(o Observation) error
}

// Poller samples a Source and publishes the result into a Record. Attempts
// are serialized: Sync waits for an outstanding attempt before starting.
type Poller struct {
	record   *Record
	source   Source
	clock    Clock
	interval time.Duration
	timeout  time.Duration
	drift    time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	journal  Journal

	mu sync.Mutex
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the local clock. It should be the Record's clock.
func WithClock(c Clock) Option { return func(p *Poller) { p.clock = c } }

// WithInterval sets the period between scheduled syncs.
func WithInterval(d time.Duration) Option { return func(p *Poller) { p.interval = d } }

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option { return func(p *Poller) { p.timeout = d } }

// WithDriftWarning sets the offset above which a sync logs a warning.
func WithDriftWarning(d time.Duration) Option { return func(p *Poller) { p.drift = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *Poller) { p.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(p *Poller) { p.metrics = m } }

// WithTracer sets the tracer used for per-attempt spans.
func WithTracer(t trace.Tracer) Option { return func(p *Poller) { p.tracer = t } }

// WithJournal records every successful observation in j.
func WithJournal(j Journal) Option { return func(p *Poller) { p.journal = j } }

// NewPoller returns a Poller writing into record.
func NewPoller(record *Record, source Source, opts ...Option) *Poller {
	p := &Poller{
		record:   record,
		source:   source,
		clock:    record.clock,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		drift:    DefaultDriftWarning,
		logger:   zap.NewNop(),
		tracer:   noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	return p
}

// Sync performs one attempt against the source. On success the Record is
// replaced; on failure it is left untouched and the error wraps
// ErrSyncUnavailable or ErrSyncMalformed.
func (p *Poller) Sync(ctx context.Context) (Observation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seq := p.record.ticket()
	id := uuid.NewString()
	ctx, span := p.tracer.Start(ctx, "truetime.sync", trace.WithAttributes(
		attribute.String("sync.id", id),
		attribute.String("sync.server", p.source.Name()),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sample, err := p.source.Query(ctx)
	local := p.clock.Now()
	if err != nil {
		result := metrics.ResultUnavailable
		switch {
		case errors.Is(err, ErrSyncMalformed):
			result = metrics.ResultMalformed
		case !errors.Is(err, ErrSyncUnavailable):
			err = fmt.Errorf("%w: %v", ErrSyncUnavailable, err)
		}
		p.metrics.SyncFailed(result)
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		p.logger.Warn("Failed to sync with authoritative time source",
			zap.String("sync_id", id),
			zap.String("server", p.source.Name()),
			zap.Duration("offset", p.record.Offset()),
			zap.Error(err))
		return Observation{}, err
	}

	o := Observation{
		Authoritative:   local.Add(sample.ClockOffset),
		ObservedAtLocal: local,
		RTT:             sample.RTT,
		Stratum:         sample.Stratum,
		Server:          p.source.Name(),
		seq:             seq,
	}
	p.record.Store(o)
	p.metrics.SyncSucceeded(o.Offset(), o.RTT, local)
	span.SetAttributes(
		attribute.Int64("sync.offset_ns", int64(o.Offset())),
		attribute.Int64("sync.rtt_ns", int64(o.RTT)),
	)

	if p.journal != nil {
		if err := p.journal.Append(o); err != nil {
			p.logger.Warn("Failed to journal observation", zap.String("sync_id", id), zap.Error(err))
		}
	}
	if p.drift > 0 && o.Offset().Abs() > p.drift {
		p.logger.Warn("Local clock is out of the acceptable sync range",
			zap.Duration("offset", o.Offset()),
			zap.Duration("threshold", p.drift))
	}
	p.logger.Info("Synchronized with authoritative time source",
		zap.String("sync_id", id),
		zap.String("server", o.Server),
		zap.Time("authoritative", o.Authoritative.Round(0)),
		zap.Duration("offset", o.Offset()),
		zap.Duration("rtt", o.RTT),
		zap.Uint8("stratum", o.Stratum))
	return o, nil
}

// Run syncs once immediately, then on every interval until ctx is done.
// Failures are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("Starting time sync poller",
		zap.String("server", p.source.Name()),
		zap.Duration("interval", p.interval))

	p.Sync(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping time sync poller")
			return
		case <-ticker.C:
			p.Sync(ctx)
		}
	}
}
