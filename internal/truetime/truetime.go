// Package truetime keeps a process-wide notion of corrected time. A Poller
// samples an authoritative NTP source and publishes Observations into a
// Record; readers derive "now" from the Record without touching the network.
package truetime

import (
	"sync/atomic"
	"time"
)

// Observation is a paired sample taken at the moment a sync succeeded.
type Observation struct {
	// Authoritative is the time reported by the source, expressed at the
	// instant ObservedAtLocal was read.
	Authoritative time.Time
	// ObservedAtLocal is the local clock reading taken when the response
	// arrived. It carries the monotonic reading used by Now.
	ObservedAtLocal time.Time
	RTT             time.Duration
	Stratum         uint8
	Server          string

	seq uint64
}

// Offset is the signed correction applied to the local clock.
func (o *Observation) Offset() time.Duration {
	return o.Authoritative.Sub(o.ObservedAtLocal)
}

// Status is a point-in-time summary of a Record.
type Status struct {
	Synced        bool
	Offset        time.Duration
	RTT           time.Duration
	Server        string
	LastSync      time.Time
	Authoritative time.Time
	Age           time.Duration
}

// Record holds the latest Observation. It has a single writer (the Poller)
// and any number of readers; every read sees a complete Observation.
type Record struct {
	clock Clock
	obs   atomic.Pointer[Observation]
	seq   atomic.Uint64
}

// NewRecord returns an empty Record in degraded mode. A nil clock means the
// system clock.
func NewRecord(clock Clock) *Record {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Record{clock: clock}
}

// ticket hands out the ordering number of a sync attempt. Attempts take a
// ticket when they start.
func (r *Record) ticket() uint64 {
	return r.seq.Add(1)
}

// Store publishes o as the current Observation. Observations from an attempt
// that started before the stored one are rejected, so the newest attempt
// wins even when completions race. An Observation built outside a Poller is
// stamped as the newest attempt. Store reports whether o was kept.
func (r *Record) Store(o Observation) bool {
	if o.seq == 0 {
		o.seq = r.ticket()
	}
	next := &o
	for {
		cur := r.obs.Load()
		if cur != nil && cur.seq > next.seq {
			return false
		}
		if r.obs.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Load returns a copy of the current Observation, or false in degraded mode.
func (r *Record) Load() (Observation, bool) {
	o := r.obs.Load()
	if o == nil {
		return Observation{}, false
	}
	return *o, true
}

// Offset returns the current correction, zero when no sync has succeeded.
func (r *Record) Offset() time.Duration {
	o := r.obs.Load()
	if o == nil {
		return 0
	}
	return o.Offset()
}

// Now returns corrected time. It never blocks and never fails: before the
// first successful sync it is the raw local clock.
func (r *Record) Now() time.Time {
	local := r.clock.Now()
	o := r.obs.Load()
	if o == nil {
		return local
	}
	return o.Authoritative.Add(local.Sub(o.ObservedAtLocal))
}

// Status summarizes the Record for diagnostics endpoints.
func (r *Record) Status() Status {
	o := r.obs.Load()
	if o == nil {
		return Status{}
	}
	return Status{
		Synced:        true,
		Offset:        o.Offset(),
		RTT:           o.RTT,
		Server:        o.Server,
		LastSync:      o.ObservedAtLocal.Round(0),
		Authoritative: o.Authoritative.Round(0),
		Age:           r.clock.Now().Sub(o.ObservedAtLocal),
	}
}
