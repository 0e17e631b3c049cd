package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nixlim/sqlsidecar/internal/discovery"
)

// renderStats renders the full-screen statistics view.
func (m Model) renderStats() string {
	var b strings.Builder

	header := headerStyle.Width(m.width).Render(" sqlsidecar [Stats]  Tab:History  Esc:Dashboard  q:Quit")
	b.WriteString(header)
	b.WriteString("\n\n")

	var sections []string
	sections = append(sections, m.renderPipelineSection())
	sections = append(sections, m.renderAnalysisSection())
	sections = append(sections, m.renderDiscoverySection())
	sections = append(sections, m.renderRegistrySection())
	sections = append(sections, m.renderStorageSection())

	content := strings.Join(sections, "\n")
	lines := strings.Split(content, "\n")

	visibleH := m.height - 3
	if visibleH < 5 {
		visibleH = 5
	}

	startIdx := m.statsScrollPos
	if startIdx > len(lines)-visibleH {
		startIdx = len(lines) - visibleH
	}
	if startIdx < 0 {
		startIdx = 0
	}
	endIdx := startIdx + visibleH
	if endIdx > len(lines) {
		endIdx = len(lines)
	}

	b.WriteString(strings.Join(lines[startIdx:endIdx], "\n"))
	return b.String()
}

func (m Model) renderPipelineSection() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render(" Pipeline"))
	b.WriteString("\n")

	if m.stats == nil {
		b.WriteString(dimStyle.Render("   no counters available"))
		b.WriteString("\n")
		return b.String()
	}

	snap := m.stats.Snapshot()
	b.WriteString(fmt.Sprintf("   Notifications received   %10s\n", formatNumber(int64(snap.Notifications))))
	b.WriteString(fmt.Sprintf("   Debounced deliveries     %10s\n", formatNumber(int64(snap.Deliveries))))

	if snap.Notifications > 0 {
		ratio := float64(snap.Notifications-snap.Deliveries) / float64(snap.Notifications)
		b.WriteString(fmt.Sprintf("   Coalesced                %10.0f%%  %s\n", ratio*100, renderProgressBar(ratio, 20)))
	}
	return b.String()
}

func (m Model) renderAnalysisSection() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render(" Analysis"))
	b.WriteString("\n")

	if m.stats == nil {
		b.WriteString(dimStyle.Render("   no counters available"))
		b.WriteString("\n")
		return b.String()
	}

	snap := m.stats.Snapshot()
	b.WriteString(fmt.Sprintf("   Applied                  %10s\n", formatNumber(int64(snap.Applied))))
	b.WriteString(fmt.Sprintf("   Superseded               %10s\n", formatNumber(int64(snap.Superseded))))
	b.WriteString(fmt.Sprintf("   Parse failures           %10s\n", formatNumber(int64(snap.ParseFailures))))
	b.WriteString(fmt.Sprintf("   Analyzer faults          %10s\n", formatNumber(int64(snap.Faults))))

	total := snap.Applied + snap.Superseded + snap.ParseFailures
	if total > 0 {
		failRatio := float64(snap.ParseFailures) / float64(total)
		b.WriteString(fmt.Sprintf("   Failure rate             %10.1f%%  %s\n", failRatio*100, renderProgressBar(failRatio, 20)))
	}
	return b.String()
}

func (m Model) renderDiscoverySection() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render(" Discovery"))
	b.WriteString("\n")

	if m.discovery == nil {
		b.WriteString(dimStyle.Render("   no discovery data"))
		b.WriteString("\n")
		return b.String()
	}

	candidates := m.discovery.Candidates()
	if len(candidates) == 0 {
		b.WriteString(dimStyle.Render("   no candidates tracked"))
		b.WriteString("\n")
		return b.String()
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].PID < candidates[j].PID })

	byState := make(map[discovery.State]int)
	for _, c := range candidates {
		byState[c.State]++
	}
	b.WriteString(fmt.Sprintf("   Tracked                  %10s\n", formatNumber(int64(len(candidates)))))
	for _, st := range []discovery.State{discovery.StateProbing, discovery.StateRetrying, discovery.StateSuccess, discovery.StateExhausted} {
		if n := byState[st]; n > 0 {
			b.WriteString(fmt.Sprintf("   %-24s %10s\n", st.String(), formatNumber(int64(n))))
		}
	}

	for _, c := range candidates {
		line := fmt.Sprintf("   pid %-8d attempt %-3d %s", c.PID, c.Attempt, renderCandidateState(c.State))
		if !c.NextAt.IsZero() {
			line += dimStyle.Render("  next " + c.NextAt.Format("15:04:05"))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderRegistrySection() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render(" Registry"))
	b.WriteString("\n")

	if m.registry == nil {
		b.WriteString(dimStyle.Render("   no registry data"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("   Hosts                    %10s\n", formatNumber(int64(m.registry.HostCount()))))
	b.WriteString(fmt.Sprintf("   Sessions                 %10s\n", formatNumber(int64(m.registry.SessionCount()))))
	return b.String()
}

func (m Model) renderStorageSection() string {
	var b strings.Builder
	b.WriteString(panelTitleStyle.Render(" Storage"))
	b.WriteString("\n")

	if !m.isPersistent || m.store == nil {
		b.WriteString(dimStyle.Render("   persistence disabled; run history is not recorded"))
		b.WriteString("\n")
		return b.String()
	}

	dropped := m.store.DroppedWrites()
	line := fmt.Sprintf("   Dropped writes           %10s", formatNumber(dropped))
	if dropped > 0 {
		line = badStyle.Render(line)
	}
	b.WriteString(line)
	b.WriteString("\n")
	return b.String()
}

func renderCandidateState(s discovery.State) string {
	switch s {
	case discovery.StateSuccess:
		return validatedStyle.Render(s.String())
	case discovery.StateExhausted:
		return exhaustedStyle.Render(s.String())
	default:
		return pendingStyle.Render(s.String())
	}
}

// renderProgressBar renders a ratio as a fixed-width bar, colored by how
// close it is to saturation.
func renderProgressBar(ratio float64, width int) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	filled := int(ratio * float64(width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	switch {
	case ratio >= 0.8:
		return badStyle.Render(bar)
	case ratio >= 0.5:
		return warnStyle.Render(bar)
	default:
		return okStyle.Render(bar)
	}
}
