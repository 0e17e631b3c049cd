//go:build linux

package scanner

import (
	"time"

	"github.com/nixlim/sqlsidecar/internal/config"
)

// NewDefaultScanner creates a Scanner using the Linux /proc filesystem API.
// This is the production constructor.
func NewDefaultScanner(cfg config.ScannerConfig) *Scanner {
	return NewScanner(newLinuxProcessAPI(),
		time.Duration(cfg.IntervalSeconds)*time.Second,
		cfg.ProcessNames)
}
