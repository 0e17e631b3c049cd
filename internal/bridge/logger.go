package bridge

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
)

// Logger provides structured debug logging for inbound notifications.
// Implementations must be safe for concurrent use.
type Logger interface {
	LogNotification(n notify.Notification)
}

// NopLogger discards all log output. This is the default when debug logging
// is not enabled, and has zero allocation overhead.
type NopLogger struct{}

// LogNotification is a no-op.
func (NopLogger) LogNotification(notify.Notification) {}

// logEntry is the JSON structure written by FileLogger.
type logEntry struct {
	Timestamp string            `json:"ts"`
	Kind      string            `json:"kind"`
	Surface   uint64            `json:"surface"`
	PID       int               `json:"pid"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// FileLogger writes structured JSON debug output to an io.Writer.
// Each line is a complete JSON object (JSONL format).
type FileLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewFileLogger creates a FileLogger that writes to the given writer.
func NewFileLogger(w io.Writer) *FileLogger {
	return &FileLogger{w: w}
}

// LogNotification writes a JSON line for a received notification.
func (l *FileLogger) LogNotification(n notify.Notification) {
	ts := n.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	entry := logEntry{
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Kind:      n.Kind.String(),
		Surface:   uint64(n.Surface),
		PID:       n.PID,
		Payload:   n.Payload,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s\n", data)
}
