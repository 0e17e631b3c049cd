package bridge

import (
	"context"
	"fmt"
	"log"
	"net"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/grpc"

	"github.com/nixlim/sqlsidecar/internal/config"
	"github.com/nixlim/sqlsidecar/internal/notify"
)

// Sink consumes translated notifications. Implementations must be safe for
// concurrent use; both ingress servers share one.
type Sink func(notify.Notification)

// GRPCReceiver accepts OTLP log exports over gRPC and feeds the translated
// notifications into the sink.
type GRPCReceiver struct {
	collogspb.UnimplementedLogsServiceServer

	cfg  config.BridgeConfig
	sink Sink

	listener net.Listener
	server   *grpc.Server
}

// NewGRPCReceiver creates a receiver. Call Start to begin listening.
func NewGRPCReceiver(cfg config.BridgeConfig, sink Sink) *GRPCReceiver {
	return &GRPCReceiver{cfg: cfg, sink: sink}
}

// Start binds the configured port and serves until Stop or context cancel.
// It returns once the listener is up; serve errors after that are logged.
func (r *GRPCReceiver) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", r.cfg.Bind, r.cfg.GRPCPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gRPC port %d already in use or unavailable: %w", r.cfg.GRPCPort, err)
	}
	r.listener = lis

	r.server = grpc.NewServer()
	collogspb.RegisterLogsServiceServer(r.server, r)

	go func() {
		if err := r.server.Serve(lis); err != nil {
			log.Printf("ERROR: gRPC ingress stopped: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		r.Stop()
	}()

	return nil
}

// Addr returns the bound address. Only valid after Start.
func (r *GRPCReceiver) Addr() net.Addr {
	return r.listener.Addr()
}

// Stop shuts the server down gracefully.
func (r *GRPCReceiver) Stop() {
	if r.server != nil {
		r.server.GracefulStop()
	}
}

// Export implements the OTLP logs service.
func (r *GRPCReceiver) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	for _, n := range translateRequest(req) {
		r.sink(n)
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}
