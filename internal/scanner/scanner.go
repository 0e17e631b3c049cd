// Package scanner watches the process table for host editor processes. The
// notification stream only carries surface handles; the scanner is how the
// sidecar learns that a host executable appeared at all, and how it learns
// that one died without saying goodbye.
package scanner

import (
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// Scanner polls the process table on an interval and diffs against the
// previous cycle. Appear/exit callbacks fire outside the scanner lock.
type Scanner struct {
	api      ProcessAPI
	interval time.Duration
	names    map[string]bool

	onAppear func(ProcessInfo)
	onExit   func(pid int)

	mu    sync.Mutex
	known map[int]ProcessInfo

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewScanner creates a scanner matching the given executable names. Names
// compare case-insensitively against the process's binary name.
func NewScanner(api ProcessAPI, interval time.Duration, names []string) *Scanner {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			set[n] = true
		}
	}
	return &Scanner{
		api:      api,
		interval: interval,
		names:    set,
		known:    make(map[int]ProcessInfo),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnAppear registers the callback for newly seen host processes. Must be
// called before Start.
func (s *Scanner) OnAppear(fn func(ProcessInfo)) { s.onAppear = fn }

// OnExit registers the callback for host processes that left the table.
// Must be called before Start.
func (s *Scanner) OnExit(fn func(pid int)) { s.onExit = fn }

// Start launches the scan loop. The first cycle runs immediately.
func (s *Scanner) Start() {
	go s.loop()
}

// Stop halts the scan loop and waits for it to finish.
func (s *Scanner) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Scanner) loop() {
	defer close(s.done)

	s.ScanOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.ScanOnce()
		}
	}
}

// ScanOnce runs one scan cycle: list pids, classify matches, diff against
// the previous cycle, fire callbacks for the changes.
func (s *Scanner) ScanOnce() {
	pids, err := s.api.ListAllPIDs()
	if err != nil {
		log.Printf("WARNING: process scan failed: %v", err)
		return
	}

	current := make(map[int]ProcessInfo)
	for _, pid := range pids {
		info, err := s.api.GetProcessInfo(pid)
		if err != nil {
			// The process likely exited between the listing and the read.
			continue
		}
		if !s.names[strings.ToLower(info.BinaryName)] {
			continue
		}
		current[pid] = ProcessInfo{PID: pid, BinaryName: info.BinaryName}
	}

	var appeared []ProcessInfo
	var exited []int

	s.mu.Lock()
	now := time.Now()
	for pid, info := range current {
		if prev, ok := s.known[pid]; ok {
			current[pid] = prev
			continue
		}
		info.FirstSeen = now
		current[pid] = info
		appeared = append(appeared, info)
	}
	for pid := range s.known {
		if _, ok := current[pid]; !ok {
			exited = append(exited, pid)
		}
	}
	s.known = current
	s.mu.Unlock()

	sort.Slice(appeared, func(i, j int) bool { return appeared[i].PID < appeared[j].PID })
	sort.Ints(exited)

	for _, info := range appeared {
		log.Printf("host process %s appeared (pid %d)", info.BinaryName, info.PID)
		if s.onAppear != nil {
			s.onAppear(info)
		}
	}
	for _, pid := range exited {
		log.Printf("host process pid %d exited", pid)
		if s.onExit != nil {
			s.onExit(pid)
		}
	}
}

// Known returns a snapshot of the tracked host processes.
func (s *Scanner) Known() []ProcessInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProcessInfo, 0, len(s.known))
	for _, info := range s.known {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}
