package tui

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type panelDimensions struct {
	sessionListW, sessionListH int
	diagW, diagH               int
	activityW, activityH       int
	statusW, statusH           int
	headerH                    int
}

const (
	minWidth  = 40
	minHeight = 10

	headerHeight = 1

	statusHeight = 3

	diagMinHeight = 6

	diagMaxHeight = 12
)

func computeDimensions(totalW, totalH int) panelDimensions {
	if totalW < minWidth {
		totalW = minWidth
	}
	if totalH < minHeight {
		totalH = minHeight
	}

	d := panelDimensions{
		headerH: headerHeight,
	}

	usableH := totalH - headerHeight - statusHeight
	if usableH < 4 {
		usableH = 4
	}

	d.sessionListW = totalW * 45 / 100
	if d.sessionListW < 24 {
		d.sessionListW = 24
	}
	if d.sessionListW > totalW-20 {
		d.sessionListW = totalW - 20
	}
	d.sessionListH = usableH

	rightW := totalW - d.sessionListW
	if rightW < 20 {
		rightW = 20
	}

	d.diagW = rightW
	maxDiag := usableH * 40 / 100
	if maxDiag < diagMinHeight {
		maxDiag = diagMinHeight
	}
	if maxDiag > diagMaxHeight {
		maxDiag = diagMaxHeight
	}
	d.diagH = maxDiag
	if d.diagH > usableH/2 {
		d.diagH = usableH / 2
	}

	d.activityW = rightW
	d.activityH = usableH - d.diagH
	if d.activityH < 3 {
		d.activityH = 3
	}

	d.statusW = totalW
	d.statusH = statusHeight

	return d
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("24"))

	panelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	focusedBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("63"))

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("69"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("24"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	validatedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	exhaustedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	severityErrorStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("196"))

	severityWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("226"))

	severityInfoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("117"))

	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("82"))

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226"))

	badStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	filterMenuStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 2)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	detailOverlayStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("69")).
				Padding(1, 2)
)

func renderBorderedPanel(content string, w, h int, focused bool) string {
	style := panelBorderStyle
	if focused {
		style = focusedBorderStyle
	}

	contentH := h - 2
	if contentH < 1 {
		contentH = 1
	}

	lines := strings.Split(content, "\n")
	if len(lines) > contentH {
		lines = lines[:contentH]
		content = strings.Join(lines, "\n")
	}

	return style.
		Width(w - 2).
		Height(contentH).
		Render(content)
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripAnsi(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func (m Model) renderDashboard() string {
	dims := computeDimensions(m.width, m.height)

	header := m.renderHeader()

	sessionList := m.renderSessionListPanel(dims.sessionListW, dims.sessionListH)
	diagPanel := m.renderDiagnosticsPanel(dims.diagW, dims.diagH)
	activityPanel := m.renderActivityPanel(dims.activityW, dims.activityH)
	statusBar := m.renderStatusBar(dims.statusW, dims.statusH)

	rightCol := lipgloss.JoinVertical(lipgloss.Left, diagPanel, activityPanel)

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, sessionList, rightCol)

	usableH := m.height - dims.headerH - dims.statusH
	if usableH < 4 {
		usableH = 4
	}
	mcLines := strings.Split(mainContent, "\n")
	if len(mcLines) > usableH {
		mcLines = mcLines[:usableH]
		mainContent = strings.Join(mcLines, "\n")
	}

	layout := lipgloss.JoinVertical(lipgloss.Left, header, mainContent, statusBar)

	if m.filterMenu.Active {
		layout = m.overlayFilterMenu(layout)
	}

	if m.detailOverlay {
		layout = m.overlayDetail(layout)
	}

	return layout
}

func (m Model) renderHeader() string {
	title := " sqlsidecar"
	viewLabel := " [Dashboard]"
	if m.selectedSurface != 0 {
		viewLabel += formatSurfaceLabel(m.selectedSurface)
	} else {
		viewLabel += " All sessions"
	}

	indicators := m.headerIndicators()
	help := m.headerHelp()

	padding := m.width - lipgloss.Width(title) - lipgloss.Width(viewLabel) - lipgloss.Width(indicators) - lipgloss.Width(help)
	if padding < 0 {
		padding = 0
	}

	return headerStyle.Width(m.width).Render(title + viewLabel + indicators + strings.Repeat(" ", padding) + help)
}

func (m Model) headerHelp() string {
	switch m.panelFocus() {
	case FocusActivity:
		return "Enter:Detail  Esc:Back  d:Diagnostics  Tab:Stats  q:Quit "
	case FocusDiagnostics:
		return "Enter:Detail  Esc:Back  e:Activity  Tab:Stats  q:Quit "
	default:
		return "d:Diag  e:Activity  [/]:Nav  Tab:Stats  f:Filter  q:Quit "
	}
}

// renderStatusBar shows the live pipeline tallies under the panels.
func (m Model) renderStatusBar(w, h int) string {
	var snapLine string
	if m.stats != nil {
		snap := m.stats.Snapshot()
		snapLine = statusBarStyle.Render(
			"  notifications " + formatNumber(int64(snap.Notifications)) +
				"  deliveries " + formatNumber(int64(snap.Deliveries)) +
				"  applied " + formatNumber(int64(snap.Applied)) +
				"  superseded " + formatNumber(int64(snap.Superseded)) +
				"  parse-failed " + formatNumber(int64(snap.ParseFailures)) +
				"  faults " + formatNumber(int64(snap.Faults)))
	}

	var navLine string
	if m.nav != nil && m.selectedHost != 0 {
		back, fwd := m.nav.HistoryDepth(m.selectedHost)
		navLine = statusBarStyle.Render(
			"  nav: " + formatNumber(int64(back)) + " back / " + formatNumber(int64(fwd)) + " forward")
	}

	lines := []string{snapLine}
	if navLine != "" {
		lines = append(lines, navLine)
	}
	for len(lines) < h-1 {
		lines = append(lines, "")
	}
	return strings.Join(lines[:h-1], "\n")
}

func (m Model) overlayFilterMenu(base string) string {
	content := panelTitleStyle.Render("Activity Filter") + "\n\n"
	for i, opt := range m.filterMenu.Options {
		cursor := "  "
		if i == m.filterMenu.Cursor {
			cursor = "> "
		}
		check := "[ ]"
		if opt.Enabled {
			check = "[x]"
		}
		line := cursor + check + " " + opt.Label
		if i == m.filterMenu.Cursor {
			line = selectedStyle.Render(line)
		}
		content += line + "\n"
	}
	content += "\nEnter: Toggle  Esc: Close"

	dialog := filterMenuStyle.Render(content)
	return placeOverlay(dialog, base)
}

func (m Model) overlayDetail(base string) string {
	overlayW := m.width * 70 / 100
	if overlayW < 40 {
		overlayW = 40
	}
	if overlayW > m.width-4 {
		overlayW = m.width - 4
	}
	overlayH := m.height * 60 / 100
	if overlayH < 10 {
		overlayH = 10
	}
	if overlayH > m.height-4 {
		overlayH = m.height - 4
	}

	contentW := overlayW - 6
	if contentW < 10 {
		contentW = 10
	}
	contentH := overlayH - 4
	if contentH < 3 {
		contentH = 3
	}

	wrapped := wrapLines(strings.Split(m.detailContent, "\n"), contentW)

	startIdx := m.detailScrollPos
	if startIdx > len(wrapped)-contentH {
		startIdx = len(wrapped) - contentH
	}
	if startIdx < 0 {
		startIdx = 0
	}
	endIdx := startIdx + contentH
	if endIdx > len(wrapped) {
		endIdx = len(wrapped)
	}

	body := strings.Join(wrapped[startIdx:endIdx], "\n")

	title := panelTitleStyle.Render(m.detailTitle)
	footer := dimStyle.Render("Esc/Enter: Close")
	if len(wrapped) > contentH {
		footer += dimStyle.Render("  Up/Down: Scroll")
	}

	content := title + "\n\n" + body + "\n\n" + footer

	dialog := detailOverlayStyle.
		Width(overlayW - 2).
		Render(content)

	return placeOverlay(dialog, base)
}

// wrapLines hard-wraps lines at width, preferring space boundaries.
func wrapLines(lines []string, width int) []string {
	var wrapped []string
	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}
		for len(line) > width {
			cutAt := width
			for i := width; i > 0; i-- {
				if line[i] == ' ' {
					cutAt = i
					break
				}
			}
			wrapped = append(wrapped, line[:cutAt])
			line = line[cutAt:]
			if len(line) > 0 && line[0] == ' ' {
				line = line[1:]
			}
		}
		if line != "" {
			wrapped = append(wrapped, line)
		}
	}
	return wrapped
}

func placeOverlay(fg, bg string) string {
	return lipgloss.Place(
		lipgloss.Width(bg),
		lipgloss.Height(bg),
		lipgloss.Center,
		lipgloss.Center,
		fg,
		lipgloss.WithWhitespaceChars(" "),
	)
}
