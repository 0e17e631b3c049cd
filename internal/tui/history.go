package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/nixlim/sqlsidecar/internal/storage"
)

// historyRow is one aggregated line of the run-history table.
type historyRow struct {
	label         string
	runs          int
	applied       int
	parseFailures int
	faults        int
	diagnostics   int
	avgDur        time.Duration
}

// renderHistory renders the full-screen run-history view.
func (m Model) renderHistory() string {
	var b strings.Builder

	header := headerStyle.Width(m.width).Render(
		" sqlsidecar [History]  d:Daily w:Weekly m:Monthly  Tab:Dashboard  q:Quit")
	b.WriteString(header)
	b.WriteString("\n\n")

	if !m.isPersistent || m.store == nil {
		b.WriteString(dimStyle.Render("  Persistence is disabled; no run history is recorded.\n"))
		b.WriteString(dimStyle.Render("  Remove cache.disable from the config file to enable it."))
		return b.String()
	}

	var rows []historyRow
	switch m.historyGranularity {
	case "weekly":
		rows = aggregateWeekly(m.store.DailySummaries(28))
	case "monthly":
		rows = aggregateMonthly(m.store.DailySummaries(90))
	default:
		rows = dailyRows(m.store.DailySummaries(7))
	}

	b.WriteString(panelTitleStyle.Render(fmt.Sprintf(" Run history (%s)", m.historyGranularity)))
	b.WriteString("\n\n")

	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("  No recorded runs yet"))
		return b.String()
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf("  %-12s %8s %8s %8s %8s %8s %10s\n",
		"Period", "Runs", "Applied", "Parse!", "Faults", "Diags", "Avg")))
	b.WriteString(dimStyle.Render("  " + strings.Repeat("─", 68) + "\n"))

	visibleH := m.height - 8
	if visibleH < 3 {
		visibleH = 3
	}
	startIdx := m.historyScrollPos
	if startIdx > len(rows)-visibleH {
		startIdx = len(rows) - visibleH
	}
	if startIdx < 0 {
		startIdx = 0
	}
	endIdx := startIdx + visibleH
	if endIdx > len(rows) {
		endIdx = len(rows)
	}

	for _, row := range rows[startIdx:endIdx] {
		line := fmt.Sprintf("  %-12s %8s %8s %8s %8s %8s %10s",
			row.label,
			formatNumber(int64(row.runs)),
			formatNumber(int64(row.applied)),
			formatNumber(int64(row.parseFailures)),
			formatNumber(int64(row.faults)),
			formatNumber(int64(row.diagnostics)),
			row.avgDur.Round(time.Millisecond))
		if row.parseFailures > 0 || row.faults > 0 {
			line = warnStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(rows) > visibleH {
		b.WriteString(dimStyle.Render(fmt.Sprintf("\n  %s", formatScrollPos(startIdx+1, endIdx, len(rows)))))
	}

	b.WriteString("\n")
	b.WriteString(m.renderRecentRuns())

	return b.String()
}

// renderRecentRuns shows the last few raw run records under the table.
func (m Model) renderRecentRuns() string {
	runs := m.store.RecentRuns(5)
	if len(runs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(panelTitleStyle.Render(" Recent runs"))
	b.WriteString("\n")
	for _, r := range runs {
		line := fmt.Sprintf("  %s  pid %-7d surface %-7d %-12s %3d diags  %s",
			r.CompletedAt.Format("15:04:05"),
			r.PID, r.Surface, r.Outcome, r.Diagnostics,
			truncateIdentity(r.Identity, 28))
		if r.Outcome == "parse-failed" || r.Faults > 0 {
			line = warnStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func dailyRows(summaries []storage.DailySummary) []historyRow {
	rows := make([]historyRow, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, historyRow{
			label:         s.Date,
			runs:          s.Runs,
			applied:       s.Applied,
			parseFailures: s.ParseFailures,
			faults:        s.Faults,
			diagnostics:   s.Diagnostics,
			avgDur:        s.AvgDuration,
		})
	}
	return rows
}

// aggregateWeekly folds daily summaries into ISO-week buckets, newest first.
func aggregateWeekly(summaries []storage.DailySummary) []historyRow {
	buckets := make(map[string]*historyRow)
	var order []string

	for _, s := range summaries {
		t, err := time.Parse("2006-01-02", s.Date)
		if err != nil {
			continue
		}
		year, week := t.ISOWeek()
		label := fmt.Sprintf("Week %d-%02d", year, week)

		row, ok := buckets[label]
		if !ok {
			row = &historyRow{label: label}
			buckets[label] = row
			order = append(order, label)
		}
		accumulate(row, s)
	}

	return finishAggregation(buckets, order)
}

// aggregateMonthly folds daily summaries into calendar-month buckets,
// newest first.
func aggregateMonthly(summaries []storage.DailySummary) []historyRow {
	buckets := make(map[string]*historyRow)
	var order []string

	for _, s := range summaries {
		if len(s.Date) < 7 {
			continue
		}
		label := s.Date[:7]

		row, ok := buckets[label]
		if !ok {
			row = &historyRow{label: label}
			buckets[label] = row
			order = append(order, label)
		}
		accumulate(row, s)
	}

	return finishAggregation(buckets, order)
}

func accumulate(row *historyRow, s storage.DailySummary) {
	// Weight the running average by run count so days with more runs
	// dominate the bucket.
	totalDur := row.avgDur*time.Duration(row.runs) + s.AvgDuration*time.Duration(s.Runs)
	row.runs += s.Runs
	row.applied += s.Applied
	row.parseFailures += s.ParseFailures
	row.faults += s.Faults
	row.diagnostics += s.Diagnostics
	if row.runs > 0 {
		row.avgDur = totalDur / time.Duration(row.runs)
	}
}

func finishAggregation(buckets map[string]*historyRow, order []string) []historyRow {
	rows := make([]historyRow, 0, len(order))
	for _, label := range order {
		rows = append(rows, *buckets[label])
	}
	return rows
}
