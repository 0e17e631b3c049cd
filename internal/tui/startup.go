package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nixlim/sqlsidecar/internal/discovery"
)

// renderStartup renders the pre-dashboard screen: bridge status, the host
// processes the scanner knows about, and the shim setup hint.
func (m Model) renderStartup() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(headerStyle.Width(m.width).Render(" sqlsidecar"))
	b.WriteString("\n\n")

	b.WriteString(panelTitleStyle.Render(" Bridge"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("   OTLP/gRPC  %s:%d\n", m.cfg.Bridge.Bind, m.cfg.Bridge.GRPCPort))
	b.WriteString(fmt.Sprintf("   OTLP/HTTP  %s:%d\n", m.cfg.Bridge.Bind, m.cfg.Bridge.HTTPPort))
	b.WriteString(fmt.Sprintf("   Control    %s:%d  ", m.cfg.Bridge.Bind, m.cfg.Bridge.ControlPort))
	if m.bridge != nil && m.bridge.Connected() {
		b.WriteString(validatedStyle.Render("shim connected"))
	} else {
		b.WriteString(pendingStyle.Render("waiting for shim"))
	}
	b.WriteString("\n\n")

	b.WriteString(panelTitleStyle.Render(" Host processes"))
	b.WriteString("\n")
	b.WriteString(m.renderStartupProcesses())
	b.WriteString("\n")

	if !m.isPersistent {
		b.WriteString(dimStyle.Render("   Persistence is disabled for this run.\n\n"))
	}

	if m.startupMessage != "" {
		b.WriteString("   " + m.startupMessage + "\n\n")
	}

	b.WriteString(dimStyle.Render("   Enter: Dashboard   s: Write shim config   r: Rescan   q: Quit"))
	return b.String()
}

func (m Model) renderStartupProcesses() string {
	if m.scanner == nil {
		return dimStyle.Render("   scanner not running\n")
	}

	known := m.scanner.Known()
	if len(known) == 0 {
		return dimStyle.Render("   No SQL editor processes found. Start the editor, then press r.\n")
	}

	sort.Slice(known, func(i, j int) bool { return known[i].PID < known[j].PID })

	states := make(map[int]discovery.State)
	if m.discovery != nil {
		for _, c := range m.discovery.Candidates() {
			states[c.PID] = c.State
		}
	}

	var b strings.Builder
	for _, p := range known {
		line := fmt.Sprintf("   %-20s pid %-8d", p.BinaryName, p.PID)
		if st, ok := states[p.PID]; ok {
			line += renderCandidateState(st)
		} else {
			line += dimStyle.Render("waiting for notification")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
