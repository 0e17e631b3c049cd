package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/nixlim/sqlsidecar/internal/session"
)

// renderDiagnosticsPanel renders the latest analysis output for the
// selected session.
func (m Model) renderDiagnosticsPanel(w, h int) string {
	contentW := w - 4
	if contentW < 10 {
		contentW = 10
	}
	contentH := h - 4
	if contentH < 1 {
		contentH = 1
	}

	var lines []string
	lines = append(lines, panelTitleStyle.Render("Diagnostics"))

	focused := m.panelFocus() == FocusDiagnostics

	if m.selectedSurface == 0 {
		lines = append(lines, "")
		lines = append(lines, dimStyle.Render("Select a session to see its diagnostics"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h, focused)
	}

	s, ok := session.Session{}, false
	if m.registry != nil {
		s, ok = m.registry.SessionByHandle(m.selectedSurface)
	}
	if !ok {
		lines = append(lines, "")
		lines = append(lines, dimStyle.Render("Session is gone"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h, focused)
	}

	if s.Analysis == nil {
		lines = append(lines, "")
		lines = append(lines, dimStyle.Render("No analysis yet"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h, focused)
	}

	a := s.Analysis
	lines = append(lines, m.renderAnalysisSummary(a, contentW))

	if a.ParseFailed {
		lines = append(lines, exhaustedStyle.Render("  parse failed; editor decorations cleared"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h, focused)
	}

	if len(a.Diagnostics) == 0 {
		lines = append(lines, dimStyle.Render("  clean"))
		return renderBorderedPanel(strings.Join(lines, "\n"), w, h, focused)
	}

	visible := contentH - 2
	if visible < 1 {
		visible = 1
	}
	startIdx := 0
	if focused && m.diagCursor >= visible {
		startIdx = m.diagCursor - visible + 1
	}
	endIdx := startIdx + visible
	if endIdx > len(a.Diagnostics) {
		endIdx = len(a.Diagnostics)
	}

	for i := startIdx; i < endIdx; i++ {
		line := renderDiagnosticLine(a.Diagnostics[i], contentW)
		if focused && i == m.diagCursor {
			line = selectedStyle.Render(stripAnsi(line))
		}
		lines = append(lines, line)
	}

	if len(a.Diagnostics) > visible {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("  +%d more", len(a.Diagnostics)-endIdx)))
	}

	return renderBorderedPanel(strings.Join(lines, "\n"), w, h, focused)
}

func (m Model) renderAnalysisSummary(a *session.AnalysisSnapshot, maxW int) string {
	summary := fmt.Sprintf("  run #%d: %d diagnostics, %d highlights (%s)",
		a.Seq, len(a.Diagnostics), len(a.Highlights), a.Duration.Round(time.Millisecond))
	if len(a.Faults) > 0 {
		summary += exhaustedStyle.Render(fmt.Sprintf("  %d analyzer faults", len(a.Faults)))
	}
	if len(summary) > maxW {
		summary = summary[:maxW]
	}
	return dimStyle.Render(summary)
}

func renderDiagnosticLine(d session.Diagnostic, maxW int) string {
	var style = severityInfoStyle
	switch d.Severity {
	case session.SeverityError:
		style = severityErrorStyle
	case session.SeverityWarning:
		style = severityWarningStyle
	}

	line := fmt.Sprintf("  L%-4d %-7s %s", d.Line, d.Severity, d.Message)
	if len(line) > maxW && maxW > 3 {
		line = line[:maxW-3] + "..."
	}
	return style.Render(line)
}
