package timeclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/flynnfc/clocksync/internal/truetime"
	"github.com/flynnfc/clocksync/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// TestGRPCFetcher drives a Manager through the gRPC TimeService.
func TestGRPCFetcher(t *testing.T) {
	clock := &manualClock{now: l0}
	record := truetime.NewRecord(clock)
	record.Store(truetime.Observation{Authoritative: t0, ObservedAtLocal: l0})

	lis := bufconn.Listen(1 << 20)
	s := server.NewGRPCServer(record, zap.NewNop(), prometheus.NewRegistry())
	go s.Serve(lis)
	defer s.Stop()

	f, err := DialGRPC("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	defer f.Close()

	m := New(f, WithClock(clock))
	m.Initialize(context.Background())

	require.True(t, m.Synced())
	assert.Equal(t, 2*time.Second, m.Offset())
	assert.True(t, m.CurrentTime().Equal(t0))
}

// TestGRPCFetcherUnavailable wraps transport errors.
func TestGRPCFetcherUnavailable(t *testing.T) {
	lis := bufconn.Listen(1 << 10)
	lis.Close()

	f, err := DialGRPC("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx)
	assert.ErrorIs(t, err, ErrClientFetchFailed)
}
