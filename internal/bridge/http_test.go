package bridge

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/nixlim/sqlsidecar/internal/config"
	"github.com/nixlim/sqlsidecar/internal/notify"
)

// startTestHTTP creates an HTTP receiver on an ephemeral port for testing.
func startTestHTTP(t *testing.T, sink Sink) *HTTPReceiver {
	t.Helper()

	cfg := config.BridgeConfig{
		HTTPPort: 0, // Use ephemeral port.
		Bind:     "127.0.0.1",
	}

	r := NewHTTPReceiver(cfg, sink)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("failed to start HTTP receiver: %v", err)
	}
	return r
}

func TestHTTPReceiver_ProtobufContentType(t *testing.T) {
	sink := &collectSink{}
	r := startTestHTTP(t, sink.sink)
	defer r.Stop()

	req := makeNotificationRequest("content_modified", 17, 900, strAttr("fingerprint", "abc123"))
	body, err := proto.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	url := fmt.Sprintf("http://%s/v1/logs", r.Addr().String())
	resp, err := http.Post(url, "application/x-protobuf", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("HTTP POST failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	got := sink.waitFor(t, 1)
	if got[0].Kind != notify.KindContentModified {
		t.Errorf("kind: want content_modified, got %v", got[0].Kind)
	}
	if got[0].Payload["fingerprint"] != "abc123" {
		t.Errorf("payload fingerprint: want abc123, got %q", got[0].Payload["fingerprint"])
	}
}

func TestHTTPReceiver_JSONContentType(t *testing.T) {
	sink := &collectSink{}
	r := startTestHTTP(t, sink.sink)
	defer r.Stop()

	req := makeNotificationRequest("surface_destroyed", 5, 321)
	body, err := protojson.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	url := fmt.Sprintf("http://%s/v1/logs", r.Addr().String())
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("HTTP POST failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	got := sink.waitFor(t, 1)
	if got[0].Kind != notify.KindSurfaceDestroyed {
		t.Errorf("kind: want surface_destroyed, got %v", got[0].Kind)
	}
	if got[0].Surface != 5 {
		t.Errorf("surface: want 5, got %d", got[0].Surface)
	}
}

func TestHTTPReceiver_MalformedPayload(t *testing.T) {
	sink := &collectSink{}
	r := startTestHTTP(t, sink.sink)
	defer r.Stop()

	url := fmt.Sprintf("http://%s/v1/logs", r.Addr().String())
	resp, err := http.Post(url, "application/x-protobuf", bytes.NewReader([]byte("not protobuf at all, definitely text")))
	if err != nil {
		t.Fatalf("HTTP POST failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for malformed payload, got %d", resp.StatusCode)
	}
	if len(sink.snapshot()) != 0 {
		t.Error("malformed payload must not produce notifications")
	}
}

func TestHTTPReceiver_UnsupportedContentType(t *testing.T) {
	sink := &collectSink{}
	r := startTestHTTP(t, sink.sink)
	defer r.Stop()

	url := fmt.Sprintf("http://%s/v1/logs", r.Addr().String())
	resp, err := http.Post(url, "text/plain", bytes.NewReader([]byte("hello")))
	if err != nil {
		t.Fatalf("HTTP POST failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected status 415, got %d", resp.StatusCode)
	}
}

func TestHTTPReceiver_MethodNotAllowed(t *testing.T) {
	sink := &collectSink{}
	r := startTestHTTP(t, sink.sink)
	defer r.Stop()

	url := fmt.Sprintf("http://%s/v1/logs", r.Addr().String())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("HTTP GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", resp.StatusCode)
	}
}

func TestBridge_EndToEndChannel(t *testing.T) {
	cfg := config.BridgeConfig{Bind: "127.0.0.1"} // all ports ephemeral
	b := New(cfg, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("failed to start bridge: %v", err)
	}
	defer b.Stop()

	req := makeNotificationRequest("focus", 11, 44)
	body, err := proto.Marshal(req)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	url := fmt.Sprintf("http://%s/v1/logs", b.http.Addr().String())
	resp, err := http.Post(url, "application/x-protobuf", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("HTTP POST failed: %v", err)
	}
	_ = resp.Body.Close()

	select {
	case n := <-b.Notifications():
		if n.Kind != notify.KindFocus || n.Surface != 11 {
			t.Errorf("unexpected notification: %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification on bridge channel")
	}
}
