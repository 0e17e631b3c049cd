package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nixlim/sqlsidecar/internal/activity"
)

// categoryIcons maps feed categories to their display icons.
var categoryIcons = map[string]string{
	activity.CategoryNotify:    ">>",
	activity.CategoryAnalysis:  "A:",
	activity.CategoryDiscovery: "D:",
	activity.CategorySession:   "S:",
}

// categoryStyles maps feed categories to their display styles.
var categoryStyles = map[string]lipgloss.Style{
	activity.CategoryNotify:    lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
	activity.CategoryAnalysis:  lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
	activity.CategoryDiscovery: lipgloss.NewStyle().Foreground(lipgloss.Color("183")),
	activity.CategorySession:   lipgloss.NewStyle().Foreground(lipgloss.Color("222")),
}

// renderActivityPanel renders the scrolling activity feed.
func (m Model) renderActivityPanel(w, h int) string {
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}
	contentH := h - 4
	if contentH < 1 {
		contentH = 1
	}

	var lines []string

	title := panelTitleStyle.Render("Activity")
	if m.filter.Surface != 0 {
		title += dimStyle.Render(formatSurfaceLabel(m.filter.Surface))
	}
	lines = append(lines, title)

	entries := m.filteredActivity()

	if len(entries) == 0 {
		lines = append(lines, "")
		lines = append(lines, dimStyle.Render("Nothing yet"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h, m.panelFocus() == FocusActivity)
	}

	visibleLines := contentH - 1
	if visibleLines < 1 {
		visibleLines = 1
	}

	var startIdx int
	switch {
	case m.panelFocus() == FocusActivity:
		// Keep the cursor in view.
		startIdx = m.activityCursor - visibleLines + 1
		if startIdx < 0 {
			startIdx = 0
		}
	case m.autoScroll:
		startIdx = len(entries) - visibleLines
		if startIdx < 0 {
			startIdx = 0
		}
	default:
		startIdx = m.activityScrollPos
		if startIdx > len(entries)-visibleLines {
			startIdx = len(entries) - visibleLines
		}
		if startIdx < 0 {
			startIdx = 0
		}
	}

	endIdx := startIdx + visibleLines
	if endIdx > len(entries) {
		endIdx = len(entries)
	}

	for i := startIdx; i < endIdx; i++ {
		line := renderActivityLine(entries[i], contentW)
		if m.panelFocus() == FocusActivity && i == m.activityCursor {
			line = selectedStyle.Render(stripAnsi(line))
		}
		lines = append(lines, line)
	}

	if len(entries) > visibleLines {
		pos := formatScrollPos(startIdx+1, endIdx, len(entries))
		pad := contentW - len(pos)
		if pad < 0 {
			pad = 0
		}
		lines = append(lines, dimStyle.Render(strings.Repeat(" ", pad)+pos))
	}

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h, m.panelFocus() == FocusActivity)
}

// filteredActivity returns feed entries matching the current filter,
// oldest first.
func (m Model) filteredActivity() []activity.Entry {
	if m.activity == nil {
		return nil
	}

	var filtered []activity.Entry
	for _, e := range m.activity.Recent(m.cfg.Display.ActivityBufferSize) {
		if m.filter.Matches(e) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// renderActivityLine formats a single feed entry for display.
func renderActivityLine(e activity.Entry, maxW int) string {
	icon := categoryIcons[e.Category]
	if icon == "" {
		icon = "??"
	}

	style, ok := categoryStyles[e.Category]
	if !ok {
		style = dimStyle
	}
	if e.OK != nil && !*e.OK {
		style = exhaustedStyle
	}

	formatted := e.Formatted
	maxFormatted := maxW - len(icon) - 1
	if len(formatted) > maxFormatted && maxFormatted > 3 {
		formatted = formatted[:maxFormatted-3] + "..."
	}

	return style.Render(icon + " " + formatted)
}

// formatScrollPos returns a string like "[10-20/100]".
func formatScrollPos(start, end, total int) string {
	return "[" + formatNumber(int64(start)) + "-" + formatNumber(int64(end)) + "/" + formatNumber(int64(total)) + "]"
}
