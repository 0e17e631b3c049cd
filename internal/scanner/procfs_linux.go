//go:build linux

package scanner

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// linuxProcessAPI implements ProcessAPI using the Linux /proc filesystem.
// No CGO is required.
type linuxProcessAPI struct{}

// newLinuxProcessAPI returns a ProcessAPI backed by procfs.
func newLinuxProcessAPI() ProcessAPI {
	return &linuxProcessAPI{}
}

// ListAllPIDs returns all PIDs owned by the current user by scanning /proc.
func (l *linuxProcessAPI) ListAllPIDs() ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("read /proc: %w", err)
	}

	currentUID := os.Getuid()
	var pids []int

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}

		// Check ownership via /proc/[pid]/status Uid field.
		uid, err := readProcUID(pid)
		if err != nil {
			continue
		}
		if uid == currentUID {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// GetProcessInfo returns the binary name for a PID from /proc/[pid]/comm.
func (l *linuxProcessAPI) GetProcessInfo(pid int) (*RawProcessInfo, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return nil, fmt.Errorf("read comm for pid %d: %w", pid, err)
	}
	return &RawProcessInfo{
		PID:        pid,
		BinaryName: strings.TrimSpace(string(data)),
	}, nil
}

// readProcUID reads the real UID from /proc/[pid]/status.
func readProcUID(pid int) (int, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return -1, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Uid:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				uid, err := strconv.Atoi(fields[1])
				if err != nil {
					return -1, err
				}
				return uid, nil
			}
		}
	}
	return -1, fmt.Errorf("Uid not found in /proc/%d/status", pid)
}
