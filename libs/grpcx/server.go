package grpcx

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server is a gRPC server that always exposes grpc.health.v1.
type Server struct {
	*grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewServer(logger *slog.Logger, extra ...grpc.ServerOption) *Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	}
	opts = append(opts, extra...)
	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	return &Server{Server: s, health: hs, logger: logger}
}

// SetServing flips the health status of service. The empty name is the overall server status.
func (s *Server) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, st)
}

// Serve listens on addr until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, lis)
}

func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("grpc server starting", "addr", lis.Addr().String())
		errCh <- s.Server.Serve(lis)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		s.GracefulStop()
		s.logger.Info("grpc server stopped")
		return nil
	}
}
