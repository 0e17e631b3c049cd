//go:build darwin

package scanner

/*
#include <libproc.h>
#include <sys/proc_info.h>
#include <unistd.h>
*/
import "C"

import (
	"fmt"
	"os"
	"unsafe"
)

// darwinProcessAPI implements ProcessAPI using macOS libproc.
type darwinProcessAPI struct{}

// newDarwinProcessAPI returns a ProcessAPI backed by macOS system calls.
func newDarwinProcessAPI() ProcessAPI {
	return &darwinProcessAPI{}
}

// ListAllPIDs returns all PIDs visible to the current user via proc_listallpids.
func (d *darwinProcessAPI) ListAllPIDs() ([]int, error) {
	// First call with nil to get count.
	n := C.proc_listallpids(nil, 0)
	if n <= 0 {
		return nil, fmt.Errorf("proc_listallpids count failed: %d", int(n))
	}

	// Allocate buffer with some extra room for new processes.
	bufSize := int(n) + 64
	buf := make([]C.int, bufSize)
	n = C.proc_listallpids(unsafe.Pointer(&buf[0]), C.int(bufSize*C.sizeof_int))
	if n <= 0 {
		return nil, fmt.Errorf("proc_listallpids failed: %d", int(n))
	}

	// Filter to current user's PIDs only.
	currentUID := os.Getuid()
	pids := make([]int, 0, int(n))
	for i := 0; i < int(n); i++ {
		pid := int(buf[i])
		if pid <= 0 {
			continue
		}
		var info C.struct_proc_taskallinfo
		ret := C.proc_pidinfo(C.int(pid), C.PROC_PIDTASKALLINFO, 0,
			unsafe.Pointer(&info), C.int(C.sizeof_struct_proc_taskallinfo))
		if ret <= 0 {
			continue // can't read -- skip
		}
		if int(info.pbsd.pbi_uid) == currentUID {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// GetProcessInfo retrieves the executable name for a single PID using
// PROC_PIDTASKALLINFO.
func (d *darwinProcessAPI) GetProcessInfo(pid int) (*RawProcessInfo, error) {
	var info C.struct_proc_taskallinfo
	ret := C.proc_pidinfo(C.int(pid), C.PROC_PIDTASKALLINFO, 0,
		unsafe.Pointer(&info), C.int(C.sizeof_struct_proc_taskallinfo))
	if ret <= 0 {
		return nil, fmt.Errorf("proc_pidinfo PROC_PIDTASKALLINFO failed for pid %d", pid)
	}

	nameBytes := info.pbsd.pbi_comm
	var nameBuf []byte
	for i := 0; i < len(nameBytes); i++ {
		if nameBytes[i] == 0 {
			break
		}
		nameBuf = append(nameBuf, byte(nameBytes[i]))
	}

	return &RawProcessInfo{
		PID:        pid,
		BinaryName: string(nameBuf),
	}, nil
}
