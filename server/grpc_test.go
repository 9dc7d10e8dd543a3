package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/flynnfc/clocksync/internal/truetime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func dialBufconn(t *testing.T, record *truetime.Record, reg *prometheus.Registry) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := NewGRPCServer(record, zap.NewNop(), reg)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestGRPCNow returns the corrected time as a protobuf timestamp.
func TestGRPCNow(t *testing.T) {
	clock := &stepClock{now: epoch}
	record := syncedRecord(clock, 2*time.Second)
	reg := prometheus.NewRegistry()
	conn := dialBufconn(t, record, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := new(timestamppb.Timestamp)
	require.NoError(t, conn.Invoke(ctx, NowMethod, &emptypb.Empty{}, out))
	assert.True(t, out.AsTime().Equal(epoch.Add(2*time.Second)), "got %v", out.AsTime())

	n, err := testutil.GatherAndCount(reg, "grpc_server_handled_total")
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

// TestGRPCStatus mirrors the HTTP status document.
func TestGRPCStatus(t *testing.T) {
	clock := &stepClock{now: epoch}
	record := syncedRecord(clock, 100*time.Millisecond)
	conn := dialBufconn(t, record, prometheus.NewRegistry())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, StatusMethod, &emptypb.Empty{}, out))

	fields := out.AsMap()
	assert.Equal(t, true, fields["synced"])
	assert.Equal(t, "time.example", fields["server"])
	assert.InDelta(t, 100.0, fields["offset_ms"], 0.001)
}

// TestGRPCStatusDegraded omits source fields before the first sync.
func TestGRPCStatusDegraded(t *testing.T) {
	svc := NewTimeService(truetime.NewRecord(&stepClock{now: epoch}))
	out, err := svc.Status(context.Background(), &emptypb.Empty{})
	require.NoError(t, err)

	fields := out.AsMap()
	assert.Equal(t, false, fields["synced"])
	assert.NotContains(t, fields, "server")
	assert.Equal(t, "2024-06-01T12:00:00.000Z", fields["now"])
}
