package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nixlim/sqlsidecar/internal/notify"
	"github.com/nixlim/sqlsidecar/internal/session"
)

// sessionRow is one line in the hosts+sessions table: either a host header
// or one of its sessions.
type sessionRow struct {
	pid    int
	isHost bool
	host   session.Host
	sess   session.Session
}

// sessionRows flattens hosts and their sessions into display order, hosts
// sorted by pid and each host's sessions sorted by handle.
func (m Model) sessionRows() []sessionRow {
	if m.registry == nil {
		return nil
	}

	hosts := m.registry.ListHosts()
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].PID < hosts[j].PID })

	var rows []sessionRow
	for _, h := range hosts {
		rows = append(rows, sessionRow{pid: h.PID, isHost: true, host: h})

		sessions := m.registry.SessionsForHost(h.PID)
		sort.Slice(sessions, func(i, j int) bool { return sessions[i].Handle < sessions[j].Handle })
		for _, s := range sessions {
			rows = append(rows, sessionRow{pid: h.PID, sess: s})
		}
	}
	return rows
}

// renderSessionListPanel renders the hosts+sessions table.
func (m Model) renderSessionListPanel(w, h int) string {
	rows := m.sessionRows()

	contentW := w - 4
	if contentW < 16 {
		contentW = 16
	}
	contentH := h - 4
	if contentH < 2 {
		contentH = 2
	}

	var lines []string

	title := panelTitleStyle.Render("Hosts & Sessions")
	if m.selectedSurface != 0 {
		title += dimStyle.Render(formatSurfaceLabel(m.selectedSurface))
	}
	lines = append(lines, title)

	if len(rows) == 0 {
		lines = append(lines, "")
		lines = append(lines, dimStyle.Render("No host processes found"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h, m.panelFocus() == FocusSessions)
	}

	header := formatSessionHeader(contentW)
	lines = append(lines, dimStyle.Render(header))
	lines = append(lines, dimStyle.Render(strings.Repeat("─", min(contentW, len(header)))))

	for i, row := range rows {
		var line string
		if row.isHost {
			line = formatHostRow(row.host, contentW)
		} else {
			line = formatSessionRow(row.sess, contentW)
		}
		if i == m.sessionCursor {
			line = selectedStyle.Render(stripAnsi(line))
		}
		lines = append(lines, line)
	}

	// Keep title + column header fixed, scroll the data rows so the cursor
	// stays visible.
	const fixed = 3
	if len(lines) > fixed {
		dataLines := lines[fixed:]
		visibleRows := contentH - fixed
		if visibleRows > 0 && len(dataLines) > visibleRows {
			offset := m.sessionCursor - visibleRows + 1
			if offset < 0 {
				offset = 0
			}
			if offset > len(dataLines)-visibleRows {
				offset = len(dataLines) - visibleRows
			}
			lines = append(lines[:fixed], dataLines[offset:offset+visibleRows]...)
		}
	}

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h, m.panelFocus() == FocusSessions)
}

func formatSessionHeader(maxW int) string {
	if maxW >= 70 {
		return fmt.Sprintf("%-9s %-24s %-5s %-6s %-6s %-6s",
			"Surface", "Document", "Kind", "State", "Diags", "Active")
	}
	return fmt.Sprintf("%-9s %-16s %-6s",
		"Surface", "Document", "State")
}

// formatHostRow renders a host header line: pid, binary state, session count.
func formatHostRow(h session.Host, maxW int) string {
	state := renderHostState(h.State)
	label := fmt.Sprintf("pid %d", h.PID)
	if h.Services != 0 {
		label += fmt.Sprintf("  services %#x", h.Services)
	}
	return fmt.Sprintf("%s  %s", label, state)
}

func formatSessionRow(s session.Session, maxW int) string {
	surface := fmt.Sprintf("  %-7d", s.Handle)
	doc := truncateIdentity(s.Identity, 24)
	state := renderSessionState(s)
	diags := "-"
	if s.Analysis != nil {
		diags = formatNumber(int64(len(s.Analysis.Diagnostics)))
	}
	active := formatAge(s.LastActivity)

	if maxW >= 70 {
		return fmt.Sprintf("%s %-24s %-5s %-6s %6s %6s",
			surface, doc, truncateStr(s.Kind, 5), state, diags, active)
	}
	return fmt.Sprintf("%s %-16s %-6s",
		surface, truncateIdentity(s.Identity, 16), state)
}

func renderHostState(s session.HostState) string {
	switch s {
	case session.HostValidated:
		return validatedStyle.Render("validated")
	case session.HostExhausted:
		return exhaustedStyle.Render("exhausted")
	default:
		return pendingStyle.Render("pending")
	}
}

func renderSessionState(s session.Session) string {
	switch {
	case s.Analysis != nil && s.Analysis.ParseFailed:
		return exhaustedStyle.Render("parse!")
	case s.Initialized:
		return validatedStyle.Render("ready")
	default:
		return pendingStyle.Render("init")
	}
}

func formatSurfaceLabel(h notify.Handle) string {
	return fmt.Sprintf(" Surface: %d", h)
}

// truncateIdentity reduces a document identity to its final path segment,
// truncated to fit a column.
func truncateIdentity(identity string, maxLen int) string {
	if identity == "" {
		return "—"
	}
	if i := strings.LastIndexAny(identity, `/\`); i >= 0 {
		identity = identity[i+1:]
	}
	return truncateStr(identity, maxLen)
}

// truncateStr truncates a string to maxLen characters.
func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-1] + "."
}

// formatAge renders how long ago a timestamp was, in short form.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return formatShortDuration(time.Since(t))
}

// formatShortDuration formats a duration into a human-readable short form.
func formatShortDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// formatNumber renders an integer with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}

// min returns the smaller of two ints.
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
