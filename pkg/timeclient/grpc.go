package timeclient

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const nowMethod = "/clocksync.v1.TimeService/Now"

// GRPCFetcher calls clocksync.v1.TimeService/Now.
type GRPCFetcher struct {
	conn  grpc.ClientConnInterface
	close func() error
}

// NewGRPCFetcher uses an existing connection. Close is then a no-op.
func NewGRPCFetcher(conn grpc.ClientConnInterface) *GRPCFetcher {
	return &GRPCFetcher{conn: conn, close: func() error { return nil }}
}

// DialGRPC opens a plaintext connection to target.
func DialGRPC(target string, opts ...grpc.DialOption) (*GRPCFetcher, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &GRPCFetcher{conn: conn, close: conn.Close}, nil
}

// Fetch performs one unary call.
func (f *GRPCFetcher) Fetch(ctx context.Context) (time.Time, error) {
	out := new(timestamppb.Timestamp)
	if err := f.conn.Invoke(ctx, nowMethod, &emptypb.Empty{}, out); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrClientFetchFailed, err)
	}
	if err := out.CheckValid(); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrClientFetchFailed, err)
	}
	return out.AsTime(), nil
}

// Close releases a connection opened by DialGRPC.
func (f *GRPCFetcher) Close() error {
	return f.close()
}
