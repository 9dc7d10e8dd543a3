package truetime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// DefaultServer is the authoritative source used when none is configured.
const DefaultServer = "time.google.com"

// DefaultTimeout bounds a single query to the authoritative source.
const DefaultTimeout = 5 * time.Second

var (
	// ErrSyncUnavailable means the source could not be reached in time.
	ErrSyncUnavailable = errors.New("truetime: authoritative source unavailable")
	// ErrSyncMalformed means the source answered with an unusable response.
	ErrSyncMalformed = errors.New("truetime: malformed response from authoritative source")
)

// Sample is one answer from an authoritative source.
type Sample struct {
	// ClockOffset is the estimated authoritative minus local time at the
	// moment the answer arrived.
	ClockOffset time.Duration
	RTT         time.Duration
	Stratum     uint8
}

// Source is an authoritative time source.
type Source interface {
	Query(ctx context.Context) (Sample, error)
	// Name identifies the source in logs and metrics.
	Name() string
}

// NTPTime queries an NTP server over UDP, one round trip per Query.
type NTPTime struct {
	Server  string
	Timeout time.Duration

	query func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
}

// NewNTPTime returns an NTP source. Empty server and zero timeout fall back
// to DefaultServer and DefaultTimeout.
func NewNTPTime(server string, timeout time.Duration) *NTPTime {
	if server == "" {
		server = DefaultServer
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NTPTime{
		Server:  server,
		Timeout: timeout,
		query:   ntp.QueryWithOptions,
	}
}

// Name returns the server host.
func (n *NTPTime) Name() string { return n.Server }

// Query performs a single NTP exchange. The timeout is the smaller of the
// configured timeout and the time left on ctx.
func (n *NTPTime) Query(ctx context.Context) (Sample, error) {
	timeout := n.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrSyncUnavailable, n.Server, err)
	}
	if timeout <= 0 {
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrSyncUnavailable, n.Server, context.DeadlineExceeded)
	}

	type result struct {
		resp *ntp.Response
		err  error
	}
	// ntp.QueryWithOptions is not context aware; the buffered channel lets
	// the query goroutine finish after an early return.
	done := make(chan result, 1)
	go func() {
		resp, err := n.query(n.Server, ntp.QueryOptions{Timeout: timeout})
		done <- result{resp, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrSyncUnavailable, n.Server, ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrSyncUnavailable, n.Server, res.err)
	}
	if err := res.resp.Validate(); err != nil {
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrSyncMalformed, n.Server, err)
	}
	return Sample{
		ClockOffset: res.resp.ClockOffset,
		RTT:         res.resp.RTT,
		Stratum:     res.resp.Stratum,
	}, nil
}
