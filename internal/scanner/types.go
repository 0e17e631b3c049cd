package scanner

import "time"

// RawProcessInfo is what a platform ProcessAPI can cheaply report about
// one process.
type RawProcessInfo struct {
	PID        int
	BinaryName string
}

// ProcessInfo is one tracked host editor process.
type ProcessInfo struct {
	PID        int
	BinaryName string
	FirstSeen  time.Time
}

// ProcessAPI abstracts the platform process table. Implementations live in
// per-OS files; tests substitute fakes.
type ProcessAPI interface {
	// ListAllPIDs returns the pids owned by the current user.
	ListAllPIDs() ([]int, error)

	// GetProcessInfo returns the executable name for a pid. Races with
	// process exit are expected and reported as errors.
	GetProcessInfo(pid int) (*RawProcessInfo, error)
}
