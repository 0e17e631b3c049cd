//go:build darwin

package scanner

import (
	"time"

	"github.com/nixlim/sqlsidecar/internal/config"
)

// NewDefaultScanner creates a Scanner using the real macOS libproc API.
// This is the production constructor.
func NewDefaultScanner(cfg config.ScannerConfig) *Scanner {
	return NewScanner(newDarwinProcessAPI(),
		time.Duration(cfg.IntervalSeconds)*time.Second,
		cfg.ProcessNames)
}
