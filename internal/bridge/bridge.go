// Package bridge is the process boundary to the host shim. Notifications
// arrive inbound as OTLP log records over gRPC or HTTP; editor-services
// calls go outbound over a WebSocket control channel that implements
// session.Decorator. The shim owns the editor; this side owns the engine.
package bridge

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/nixlim/sqlsidecar/internal/config"
	"github.com/nixlim/sqlsidecar/internal/notify"
)

// notificationBuffer bounds the inbound queue. The engine drains fast; a
// full buffer means it is wedged and dropping is better than backing up
// the shim's exporter.
const notificationBuffer = 1024

// Bridge runs the inbound ingress servers and the outbound control channel
// as one unit.
type Bridge struct {
	grpc    *GRPCReceiver
	http    *HTTPReceiver
	control *Control

	notifications chan notify.Notification
	dropped       uint64
}

// New assembles a bridge from config. The returned bridge is inert until
// Start.
func New(cfg config.BridgeConfig, logger Logger) *Bridge {
	if logger == nil {
		logger = NopLogger{}
	}
	b := &Bridge{
		notifications: make(chan notify.Notification, notificationBuffer),
	}
	sink := func(n notify.Notification) {
		logger.LogNotification(n)
		select {
		case b.notifications <- n:
		default:
			b.dropped++
			log.Printf("WARNING: notification buffer full, dropping %s for surface %d", n.Kind, n.Surface)
		}
	}
	b.grpc = NewGRPCReceiver(cfg, sink)
	b.http = NewHTTPReceiver(cfg, sink)
	b.control = NewControl(cfg)
	return b
}

// Notifications is the inbound stream. Closed on Stop.
func (b *Bridge) Notifications() <-chan notify.Notification { return b.notifications }

// Control returns the decorator side of the bridge.
func (b *Bridge) Control() *Control { return b.control }

// Start brings up all three servers. It returns once they are listening;
// the first listener failure wins.
func (b *Bridge) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.grpc.Start(ctx) })
	g.Go(func() error { return b.http.Start(ctx) })
	g.Go(func() error { return b.control.Start(ctx) })
	return g.Wait()
}

// Stop shuts the servers down and closes the notification stream.
func (b *Bridge) Stop() {
	b.grpc.Stop()
	b.http.Stop()
	b.control.Stop()
	close(b.notifications)
}
