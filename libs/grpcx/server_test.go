package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

func TestServerHealth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(logger)
	srv.SetServing("clinicbook.booking", true)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, lis) }()
	defer func() {
		cancel()
		<-done
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	callCtx = metadata.AppendToOutgoingContext(callCtx, RequestIDMetadataKey, "req-42")

	var header metadata.MD
	resp, err := healthpb.NewHealthClient(conn).Check(callCtx,
		&healthpb.HealthCheckRequest{Service: "clinicbook.booking"}, grpc.Header(&header))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", resp.GetStatus())
	}
	if got := header.Get(RequestIDMetadataKey); len(got) == 0 || got[0] != "req-42" {
		t.Fatalf("expected request id echoed, got %v", got)
	}
}
