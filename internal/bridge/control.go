package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nixlim/sqlsidecar/internal/config"
	"github.com/nixlim/sqlsidecar/internal/notify"
	"github.com/nixlim/sqlsidecar/internal/session"
)

const (
	// writeWait bounds a single frame write to the shim.
	writeWait = 10 * time.Second

	// pongWait is how long the shim may stay silent before the connection
	// is considered dead. Pings go out at 9/10 of it.
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// callTimeout bounds one decorator round trip. The shim answers from
	// the editor's UI thread, so calls are fast or the editor is wedged.
	callTimeout = 2 * time.Second

	sendBuffer = 64
)

// ErrShimNotConnected is returned for decorator calls while no shim holds
// the control channel.
var ErrShimNotConnected = errors.New("control shim not connected")

// ErrCallTimeout is returned when the shim does not answer in time.
var ErrCallTimeout = errors.New("control call timed out")

type controlRequest struct {
	ID      string          `json:"id"`
	Op      string          `json:"op"`
	Surface uint64          `json:"surface"`
	Args    json.RawMessage `json:"args,omitempty"`
}

type controlResponse struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// shimConn is one accepted control connection. A dedicated pump goroutine
// owns all writes; readers route responses by request id.
type shimConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Control is the outbound editor-services channel. The shim dials in over
// WebSocket and answers request frames; at most one connection is live, a
// newer one replaces the old. Control implements session.Decorator.
type Control struct {
	cfg      config.BridgeConfig
	upgrader websocket.Upgrader

	listener net.Listener
	server   *http.Server

	mu      sync.Mutex
	conn    *shimConn
	pending map[string]chan controlResponse
}

var _ session.Decorator = (*Control)(nil)

// NewControl creates the control server. Call Start to begin listening.
func NewControl(cfg config.BridgeConfig) *Control {
	return &Control{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The shim connects from localhost with no Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pending: make(map[string]chan controlResponse),
	}
}

// Start binds the control port and serves until Stop or context cancel.
func (c *Control) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Bind, c.cfg.ControlPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("control port %d already in use or unavailable: %w", c.cfg.ControlPort, err)
	}
	c.listener = lis

	mux := http.NewServeMux()
	mux.HandleFunc("/control", c.handleShim)
	c.server = &http.Server{Handler: mux}

	go func() {
		if err := c.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Printf("ERROR: control server stopped: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()

	return nil
}

// Stop closes the active connection and the listener.
func (c *Control) Stop() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		c.teardown(conn)
	}
	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.server.Shutdown(ctx)
	}
}

// Connected reports whether a shim currently holds the channel.
func (c *Control) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Addr returns the bound address. Only valid after Start.
func (c *Control) Addr() net.Addr {
	return c.listener.Addr()
}

func (c *Control) handleShim(w http.ResponseWriter, r *http.Request) {
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WARNING: control upgrade failed: %v", err)
		return
	}

	conn := &shimConn{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()
	if old != nil {
		log.Printf("WARNING: control shim reconnected, dropping previous connection")
		c.teardown(old)
	} else {
		log.Printf("control shim connected from %s", ws.RemoteAddr())
	}

	go c.writePump(conn)
	c.readLoop(conn)
}

// writePump owns all writes on one connection, serializing request frames
// and keepalive pings.
func (c *Control) writePump(conn *shimConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return
		case frame := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.dropConn(conn, fmt.Errorf("control write: %w", err))
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.dropConn(conn, fmt.Errorf("control ping: %w", err))
				return
			}
		}
	}
}

func (c *Control) readLoop(conn *shimConn) {
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			c.dropConn(conn, err)
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))

		var resp controlResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			log.Printf("WARNING: malformed control response: %v", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// dropConn retires a connection if it is still the active one. Pending
// calls fail immediately rather than waiting out their timeouts.
func (c *Control) dropConn(conn *shimConn, err error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		if !errors.Is(err, net.ErrClosed) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			log.Printf("WARNING: control shim disconnected: %v", err)
		}
	}
	c.mu.Unlock()
	c.teardown(conn)
}

func (c *Control) teardown(conn *shimConn) {
	select {
	case <-conn.done:
	default:
		close(conn.done)
	}
	_ = conn.ws.Close()
}

// call performs one request/response round trip with the active shim.
func (c *Control) call(op string, h notify.Handle, args any, result any) error {
	var rawArgs json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("encoding %s args: %w", op, err)
		}
		rawArgs = data
	}

	req := controlRequest{
		ID:      uuid.NewString(),
		Op:      op,
		Surface: uint64(h),
		Args:    rawArgs,
	}
	frame, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", op, err)
	}

	respCh := make(chan controlResponse, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrShimNotConnected
	}
	c.pending[req.ID] = respCh
	c.mu.Unlock()

	select {
	case conn.send <- frame:
	case <-conn.done:
		c.forget(req.ID)
		return ErrShimNotConnected
	default:
		c.forget(req.ID)
		return fmt.Errorf("%s: control send queue full", op)
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		if !resp.OK {
			return fmt.Errorf("%s: shim error: %s", op, resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decoding %s result: %w", op, err)
			}
		}
		return nil
	case <-conn.done:
		c.forget(req.ID)
		return ErrShimNotConnected
	case <-timer.C:
		c.forget(req.ID)
		return fmt.Errorf("%s: %w", op, ErrCallTimeout)
	}
}

func (c *Control) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Initialize implements session.Decorator.
func (c *Control) Initialize(h notify.Handle) error {
	return c.call("initialize", h, nil, nil)
}

// Release implements session.Decorator.
func (c *Control) Release(h notify.Handle) error {
	return c.call("release", h, nil, nil)
}

// ContentFingerprint implements session.Decorator.
func (c *Control) ContentFingerprint(h notify.Handle) (string, error) {
	var result struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := c.call("fingerprint", h, nil, &result); err != nil {
		return "", err
	}
	return result.Fingerprint, nil
}

// Text implements session.Decorator.
func (c *Control) Text(h notify.Handle) (string, error) {
	var result struct {
		Text string `json:"text"`
	}
	if err := c.call("text", h, nil, &result); err != nil {
		return "", err
	}
	return result.Text, nil
}

// Identity implements session.Decorator.
func (c *Control) Identity(h notify.Handle) (string, error) {
	var result struct {
		Identity string `json:"identity"`
	}
	if err := c.call("identity", h, nil, &result); err != nil {
		return "", err
	}
	return result.Identity, nil
}

// SelectionNonEmpty implements session.Decorator.
func (c *Control) SelectionNonEmpty(h notify.Handle) (bool, error) {
	var result struct {
		Selection bool `json:"selection"`
	}
	if err := c.call("selection", h, nil, &result); err != nil {
		return false, err
	}
	return result.Selection, nil
}

// Valid implements session.Decorator. Any transport failure counts as
// invalid; the registry treats that the same as a dead surface.
func (c *Control) Valid(h notify.Handle) bool {
	var result struct {
		Valid bool `json:"valid"`
	}
	if err := c.call("valid", h, nil, &result); err != nil {
		return false
	}
	return result.Valid
}

// SetAnnotations implements session.Decorator.
func (c *Control) SetAnnotations(h notify.Handle, anns []session.Annotation) error {
	args := struct {
		Annotations []session.Annotation `json:"annotations"`
	}{Annotations: anns}
	return c.call("set_annotations", h, args, nil)
}

// SetHighlights implements session.Decorator.
func (c *Control) SetHighlights(h notify.Handle, hls []session.Highlight) error {
	args := struct {
		Highlights []session.Highlight `json:"highlights"`
	}{Highlights: hls}
	return c.call("set_highlights", h, args, nil)
}

// ClearAnnotations implements session.Decorator.
func (c *Control) ClearAnnotations(h notify.Handle) error {
	return c.call("clear_annotations", h, nil, nil)
}

// ViewState implements session.Decorator.
func (c *Control) ViewState(h notify.Handle) (session.ViewState, error) {
	var result struct {
		View session.ViewState `json:"view"`
	}
	if err := c.call("view_state", h, nil, &result); err != nil {
		return session.ViewState{}, err
	}
	return result.View, nil
}

// RestoreViewState implements session.Decorator.
func (c *Control) RestoreViewState(h notify.Handle, v session.ViewState) error {
	args := struct {
		View session.ViewState `json:"view"`
	}{View: v}
	return c.call("restore_view_state", h, args, nil)
}

// FoldState implements session.Decorator.
func (c *Control) FoldState(h notify.Handle) (session.FoldState, error) {
	var result struct {
		Folds session.FoldState `json:"folds"`
	}
	if err := c.call("fold_state", h, nil, &result); err != nil {
		return session.FoldState{}, err
	}
	return result.Folds, nil
}

// RestoreFoldState implements session.Decorator.
func (c *Control) RestoreFoldState(h notify.Handle, f session.FoldState) error {
	args := struct {
		Folds session.FoldState `json:"folds"`
	}{Folds: f}
	return c.call("restore_fold_state", h, args, nil)
}

// Probe implements discovery.Prober. The shim attempts the editor-services
// hookup for the candidate and reports the service mask it found.
func (c *Control) Probe(pid int, window notify.Handle) (uint64, error) {
	var result struct {
		Services uint64 `json:"services"`
	}
	args := struct {
		PID int `json:"pid"`
	}{PID: pid}
	if err := c.call("probe", window, args, &result); err != nil {
		return 0, err
	}
	return result.Services, nil
}

// Reveal implements session.Decorator.
func (c *Control) Reveal(h notify.Handle, line int) error {
	args := struct {
		Line int `json:"line"`
	}{Line: line}
	return c.call("reveal", h, args, nil)
}
