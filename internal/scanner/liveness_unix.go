//go:build linux || darwin

package scanner

import (
	"errors"
	"syscall"
)

// Alive reports whether a pid is still running, without waiting for the
// next scan cycle. Signal 0 probes existence without delivering anything;
// EPERM means the process exists but belongs to someone else.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}
