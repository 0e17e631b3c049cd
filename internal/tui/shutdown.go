package tui

import (
	"context"
	"log"
	"time"
)

// DefaultDrainTimeout bounds how long shutdown waits for the bridge to
// drain in-flight notifications.
const DefaultDrainTimeout = 5 * time.Second

// ShutdownManager tears the pipeline down in dependency order: stop the
// scanner first so no new hosts appear, drain the bridge so buffered
// notifications reach the engine, stop the engine, then run cleanup
// (storage flush, log file close).
type ShutdownManager struct {
	DrainTimeout time.Duration

	StopScanner func()
	StopBridge  func(ctx context.Context) error
	StopEngine  func()
	Cleanup     func()
}

// Shutdown runs the ordered teardown. Safe to call once; individual hooks
// may be nil.
func (s *ShutdownManager) Shutdown() {
	timeout := s.DrainTimeout
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}

	if s.StopScanner != nil {
		s.StopScanner()
	}

	if s.StopBridge != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.StopBridge(ctx); err != nil {
			log.Printf("WARNING: bridge shutdown: %v", err)
		}
		cancel()
	}

	if s.StopEngine != nil {
		s.StopEngine()
	}

	if s.Cleanup != nil {
		s.Cleanup()
	}
}
