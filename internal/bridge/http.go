package bridge

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/nixlim/sqlsidecar/internal/config"
)

// maxLogsBody caps a single export payload. Shim notifications are tiny;
// anything near this is not ours.
const maxLogsBody = 4 << 20

// HTTPReceiver accepts OTLP log exports over HTTP POST /v1/logs, in both
// protobuf and JSON encodings.
type HTTPReceiver struct {
	cfg  config.BridgeConfig
	sink Sink

	listener net.Listener
	server   *http.Server
}

// NewHTTPReceiver creates a receiver. Call Start to begin listening.
func NewHTTPReceiver(cfg config.BridgeConfig, sink Sink) *HTTPReceiver {
	return &HTTPReceiver{cfg: cfg, sink: sink}
}

// Start binds the configured port and serves until Stop or context cancel.
func (r *HTTPReceiver) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", r.cfg.Bind, r.cfg.HTTPPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("HTTP port %d already in use or unavailable: %w", r.cfg.HTTPPort, err)
	}
	r.listener = lis

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/logs", r.handleLogs)
	r.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := r.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Printf("ERROR: HTTP ingress stopped: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		r.Stop()
	}()

	return nil
}

// Stop shuts the server down.
func (r *HTTPReceiver) Stop() {
	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.server.Shutdown(ctx)
	}
}

// Addr returns the bound address. Only valid after Start.
func (r *HTTPReceiver) Addr() net.Addr {
	return r.listener.Addr()
}

func (r *HTTPReceiver) handleLogs(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxLogsBody))
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}

	export := &collogspb.ExportLogsServiceRequest{}
	contentType := req.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/x-protobuf"):
		err = proto.Unmarshal(body, export)
	case strings.HasPrefix(contentType, "application/json"):
		err = protojson.Unmarshal(body, export)
	default:
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return
	}
	if err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	for _, n := range translateRequest(export) {
		r.sink(n)
	}

	w.WriteHeader(http.StatusOK)
}
