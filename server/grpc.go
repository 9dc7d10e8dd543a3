package server

import (
	"context"
	"fmt"

	"github.com/flynnfc/clocksync/internal/truetime"
	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// The service only uses well-known protobuf types, so its descriptor is
// written by hand instead of generated.
const (
	TimeServiceName = "clocksync.v1.TimeService"
	NowMethod       = "/" + TimeServiceName + "/Now"
	StatusMethod    = "/" + TimeServiceName + "/Status"
)

// TimeServiceServer is the gRPC face of the Time Query Service.
type TimeServiceServer interface {
	Now(context.Context, *emptypb.Empty) (*timestamppb.Timestamp, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// TimeServiceDesc describes clocksync.v1.TimeService.
var TimeServiceDesc = grpc.ServiceDesc{
	ServiceName: TimeServiceName,
	HandlerType: (*TimeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Now", Handler: nowHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clocksync/v1/time.proto",
}

// RegisterTimeServiceServer registers srv on s.
func RegisterTimeServiceServer(s grpc.ServiceRegistrar, srv TimeServiceServer) {
	s.RegisterService(&TimeServiceDesc, srv)
}

func nowHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TimeServiceServer).Now(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: NowMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TimeServiceServer).Now(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TimeServiceServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TimeServiceServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// TimeService implements TimeServiceServer on a Record.
type TimeService struct {
	record *truetime.Record
}

// NewTimeService returns a service reading from record.
func NewTimeService(record *truetime.Record) *TimeService {
	return &TimeService{record: record}
}

// Now returns corrected time.
func (t *TimeService) Now(ctx context.Context, _ *emptypb.Empty) (*timestamppb.Timestamp, error) {
	return timestamppb.New(t.record.Now()), nil
}

// Status returns the same fields as GET /api/status.
func (t *TimeService) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := t.record.Status()
	fields := map[string]any{
		"synced":      st.Synced,
		"now":         formatTime(t.record.Now()),
		"offset_ms":   st.Offset.Seconds() * 1000,
		"rtt_ms":      st.RTT.Seconds() * 1000,
		"age_seconds": st.Age.Seconds(),
	}
	if st.Synced {
		fields["server"] = st.Server
		fields["last_sync"] = formatTime(st.LastSync)
		fields["authoritative"] = formatTime(st.Authoritative)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return s, nil
}

// InterceptorLogger adapts zap to the grpc-middleware logging interface.
func InterceptorLogger(l *zap.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		f := make([]zap.Field, 0, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			key := fmt.Sprint(fields[i])
			switch v := fields[i+1].(type) {
			case string:
				f = append(f, zap.String(key, v))
			case int:
				f = append(f, zap.Int(key, v))
			case bool:
				f = append(f, zap.Bool(key, v))
			default:
				f = append(f, zap.Any(key, v))
			}
		}
		logger := l.WithOptions(zap.AddCallerSkip(1)).With(f...)
		switch lvl {
		case logging.LevelDebug:
			logger.Debug(msg)
		case logging.LevelInfo:
			logger.Info(msg)
		case logging.LevelWarn:
			logger.Warn(msg)
		case logging.LevelError:
			logger.Error(msg)
		default:
			logger.Info(msg)
		}
	})
}

// NewGRPCServer builds a gRPC server exposing the TimeService with metrics,
// logging and panic recovery interceptors. Server metrics are registered on reg.
func NewGRPCServer(record *truetime.Record, l *zap.Logger, reg prometheus.Registerer) *grpc.Server {
	srvMetrics := grpcprom.NewServerMetrics()
	reg.MustRegister(srvMetrics)

	recoveryHandler := func(p any) error {
		l.Error("Recovered from panic in gRPC handler", zap.Any("panic", p))
		return status.Errorf(codes.Internal, "internal error")
	}

	opts := []grpc.ServerOption{
		grpc.Creds(insecure.NewCredentials()), // time is public, no auth
		grpc.ChainUnaryInterceptor(
			srvMetrics.UnaryServerInterceptor(),
			logging.UnaryServerInterceptor(InterceptorLogger(l), logging.WithLogOnEvents(logging.FinishCall)),
			recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(recoveryHandler)),
		),
	}
	s := grpc.NewServer(opts...)
	RegisterTimeServiceServer(s, NewTimeService(record))
	srvMetrics.InitializeMetrics(s)

	// Reflection allows us to use grpcurl to interact with the server.
	reflection.Register(s)
	return s
}
