package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nixlim/sqlsidecar/internal/activity"
	"github.com/nixlim/sqlsidecar/internal/config"
	"github.com/nixlim/sqlsidecar/internal/discovery"
	"github.com/nixlim/sqlsidecar/internal/notify"
	"github.com/nixlim/sqlsidecar/internal/scanner"
	"github.com/nixlim/sqlsidecar/internal/session"
	"github.com/nixlim/sqlsidecar/internal/stats"
	"github.com/nixlim/sqlsidecar/internal/storage"
)

type ViewState int

const (
	ViewStartup ViewState = iota
	ViewDashboard
	ViewStats
	ViewHistory
)

type PanelFocus int

const (
	FocusSessions PanelFocus = iota
	FocusActivity
	FocusDiagnostics
)

type tickMsg time.Time

// RegistryProvider reads hosts and sessions. *session.Registry satisfies it.
type RegistryProvider interface {
	ListHosts() []session.Host
	SessionsForHost(pid int) []session.Session
	SessionByHandle(h notify.Handle) (session.Session, bool)
	HostCount() int
	SessionCount() int
}

// ActivityProvider reads the engine's activity feed.
type ActivityProvider interface {
	Recent(limit int) []activity.Entry
}

// StatsProvider reads the engine tallies.
type StatsProvider interface {
	Snapshot() stats.CounterSnapshot
}

// DiscoveryProvider reads the discovery candidate table.
type DiscoveryProvider interface {
	Candidates() []discovery.Candidate
}

// Navigator drives per-host back/forward jumps.
type Navigator interface {
	NavigateBack(pid int) error
	NavigateForward(pid int) error
	HistoryDepth(pid int) (back, forward int)
}

// StorageProvider reads historical data and store health.
type StorageProvider interface {
	DailySummaries(days int) []storage.DailySummary
	RecentRuns(limit int) []storage.RunRecord
	DroppedWrites() int64
}

// BridgeStatus reports whether the shim's control channel is up.
type BridgeStatus interface {
	Connected() bool
}

// ScannerProvider reads the known host processes.
type ScannerProvider interface {
	Known() []scanner.ProcessInfo
	Rescan()
}

// SettingsWriter writes the shim's bridge configuration file.
type SettingsWriter interface {
	EnableBridge() error
}

type Model struct {
	view     ViewState
	width    int
	height   int
	keys     KeyMap
	quitting bool

	cfg config.Config

	registry  RegistryProvider
	activity  ActivityProvider
	stats     StatsProvider
	discovery DiscoveryProvider
	nav       Navigator
	store     StorageProvider
	bridge    BridgeStatus
	scanner   ScannerProvider
	settings  SettingsWriter

	// selectedSurface narrows the diagnostics and activity panels to one
	// session; selectedHost is the pid navigation keys act on.
	selectedSurface notify.Handle
	selectedHost    int
	sessionCursor   int
	focus           PanelFocus

	activityScrollPos int
	autoScroll        bool
	activityCursor    int
	filter            ActivityFilter
	filterMenu        FilterMenuState

	diagCursor int

	detailOverlay   bool
	detailTitle     string
	detailContent   string
	detailScrollPos int

	statsScrollPos int

	historyGranularity string
	historyScrollPos   int

	startupMessage string

	isPersistent bool
	refreshRate  time.Duration

	onShutdown func()
}

func NewModel(cfg config.Config, opts ...ModelOption) Model {
	m := Model{
		view:               ViewStartup,
		keys:               DefaultKeyMap(),
		cfg:                cfg,
		autoScroll:         true,
		filter:             NewActivityFilter(),
		filterMenu:         NewFilterMenu(),
		historyGranularity: "daily",
		refreshRate:        time.Duration(cfg.Display.RefreshRateMS) * time.Millisecond,
	}

	for _, opt := range opts {
		opt(&m)
	}

	return m
}

type ModelOption func(*Model)

func WithRegistryProvider(r RegistryProvider) ModelOption {
	return func(m *Model) { m.registry = r }
}

func WithActivityProvider(a ActivityProvider) ModelOption {
	return func(m *Model) { m.activity = a }
}

func WithStatsProvider(s StatsProvider) ModelOption {
	return func(m *Model) { m.stats = s }
}

func WithDiscoveryProvider(d DiscoveryProvider) ModelOption {
	return func(m *Model) { m.discovery = d }
}

func WithNavigator(n Navigator) ModelOption {
	return func(m *Model) { m.nav = n }
}

func WithStorageProvider(s StorageProvider) ModelOption {
	return func(m *Model) { m.store = s }
}

func WithBridgeStatus(b BridgeStatus) ModelOption {
	return func(m *Model) { m.bridge = b }
}

func WithScannerProvider(s ScannerProvider) ModelOption {
	return func(m *Model) { m.scanner = s }
}

func WithSettingsWriter(s SettingsWriter) ModelOption {
	return func(m *Model) { m.settings = s }
}

func WithStartView(v ViewState) ModelOption {
	return func(m *Model) { m.view = v }
}

func WithOnShutdown(fn func()) ModelOption {
	return func(m *Model) { m.onShutdown = fn }
}

func WithPersistenceFlag(isPersistent bool) ModelOption {
	return func(m *Model) { m.isPersistent = isPersistent }
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.tickCmd(),
	)
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, m.tickCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.detailOverlay {
		return m.handleDetailOverlayKey(msg)
	}

	if m.filterMenu.Active {
		return m.handleFilterMenuKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.onShutdown != nil {
			m.onShutdown()
		}
		return m, tea.Quit
	}

	switch m.view {
	case ViewStartup:
		return m.handleStartupKey(msg)
	case ViewDashboard:
		return m.handleDashboardKey(msg)
	case ViewStats:
		return m.handleStatsKey(msg)
	case ViewHistory:
		return m.handleHistoryKey(msg)
	}

	return m, nil
}

func (m Model) handleStartupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Enter):
		m.view = ViewDashboard
		return m, nil

	case key.Matches(msg, m.keys.Setup):
		if m.settings != nil {
			if err := m.settings.EnableBridge(); err != nil {
				m.startupMessage = "Error: " + err.Error()
			} else {
				m.startupMessage = "Shim config written. Restart the SQL editor to pick it up."
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Rescan):
		if m.scanner != nil {
			m.scanner.Rescan()
			m.startupMessage = "Rescanning..."
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Tab):
		m.panelReset()
		m.view = ViewStats
		return m, nil

	case key.Matches(msg, m.keys.Filter):
		m.filterMenu.Active = true
		m.filterMenu.Cursor = 0
		return m, nil

	case key.Matches(msg, m.keys.FocusActivity):
		if m.panelFocus() != FocusActivity {
			m.focusActivity()
		}
		return m, nil

	case key.Matches(msg, m.keys.FocusDiagnostics):
		if m.panelFocus() != FocusDiagnostics {
			m.focus = FocusDiagnostics
			m.diagCursor = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.NavBack):
		if m.nav != nil && m.selectedHost != 0 {
			_ = m.nav.NavigateBack(m.selectedHost)
		}
		return m, nil

	case key.Matches(msg, m.keys.NavForward):
		if m.nav != nil && m.selectedHost != 0 {
			_ = m.nav.NavigateForward(m.selectedHost)
		}
		return m, nil
	}

	switch m.panelFocus() {
	case FocusActivity:
		return m.handleActivityPanelKey(msg)
	case FocusDiagnostics:
		return m.handleDiagnosticsPanelKey(msg)
	default:
		return m.handleSessionsPanelKey(msg)
	}
}

func (m Model) panelFocus() PanelFocus { return m.focus }

func (m *Model) focusActivity() {
	m.focus = FocusActivity
	m.autoScroll = false
	entries := m.filteredActivity()
	if len(entries) > 0 {
		m.activityCursor = len(entries) - 1
	}
}

func (m *Model) panelReset() {
	m.focus = FocusSessions
	m.autoScroll = true
}

func (m Model) handleSessionsPanelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.sessionCursor > 0 {
			m.sessionCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		rows := m.sessionRows()
		if m.sessionCursor < len(rows)-1 {
			m.sessionCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		rows := m.sessionRows()
		if m.sessionCursor >= 0 && m.sessionCursor < len(rows) {
			row := rows[m.sessionCursor]
			m.selectedHost = row.pid
			if !row.isHost {
				m.selectedSurface = row.sess.Handle
				m.filter.Surface = row.sess.Handle
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.selectedSurface = 0
		m.selectedHost = 0
		m.filter.Surface = 0
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.autoScroll = false
		m.activityScrollPos++
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.autoScroll = false
		if m.activityScrollPos > 0 {
			m.activityScrollPos--
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleActivityPanelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	entries := m.filteredActivity()

	switch {
	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.ScrollUp):
		if m.activityCursor > 0 {
			m.activityCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down), key.Matches(msg, m.keys.ScrollDown):
		if m.activityCursor < len(entries)-1 {
			m.activityCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.activityCursor >= 0 && m.activityCursor < len(entries) {
			e := entries[m.activityCursor]
			m.detailOverlay = true
			m.detailTitle = "Activity Detail"
			m.detailContent = formatActivityDetail(e)
			m.detailScrollPos = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.panelReset()
		return m, nil
	}

	return m, nil
}

func (m Model) handleDiagnosticsPanelKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	diags := m.selectedDiagnostics()

	switch {
	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.ScrollUp):
		if m.diagCursor > 0 {
			m.diagCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down), key.Matches(msg, m.keys.ScrollDown):
		if m.diagCursor < len(diags)-1 {
			m.diagCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.diagCursor >= 0 && m.diagCursor < len(diags) {
			d := diags[m.diagCursor]
			m.detailOverlay = true
			m.detailTitle = "Diagnostic Detail"
			m.detailContent = formatDiagnosticDetail(d)
			m.detailScrollPos = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.Escape):
		m.panelReset()
		return m, nil
	}

	return m, nil
}

func (m Model) handleDetailOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Enter):
		m.detailOverlay = false
		m.detailContent = ""
		m.detailTitle = ""
		m.detailScrollPos = 0
		return m, nil

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.ScrollUp):
		if m.detailScrollPos > 0 {
			m.detailScrollPos--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down), key.Matches(msg, m.keys.ScrollDown):
		m.detailScrollPos++
		return m, nil
	}

	return m, nil
}

func (m Model) handleStatsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Tab):
		m.view = ViewHistory
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.statsScrollPos > 0 {
			m.statsScrollPos--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.statsScrollPos++
		return m, nil
	}
	return m, nil
}

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Tab):
		m.view = ViewDashboard
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.historyScrollPos > 0 {
			m.historyScrollPos--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.historyScrollPos++
		return m, nil
	}

	if msg.Type == tea.KeyRunes && len(msg.Runes) == 1 {
		switch msg.Runes[0] {
		case 'd':
			m.historyGranularity = "daily"
			m.historyScrollPos = 0
			return m, nil
		case 'w':
			m.historyGranularity = "weekly"
			m.historyScrollPos = 0
			return m, nil
		case 'm':
			m.historyGranularity = "monthly"
			m.historyScrollPos = 0
			return m, nil
		}
	}

	return m, nil
}

func (m Model) handleFilterMenuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.filterMenu.Active = false
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.filterMenu.Cursor > 0 {
			m.filterMenu.Cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.filterMenu.Cursor < len(m.filterMenu.Options)-1 {
			m.filterMenu.Cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Enter):
		if m.filterMenu.Cursor >= 0 && m.filterMenu.Cursor < len(m.filterMenu.Options) {
			opt := &m.filterMenu.Options[m.filterMenu.Cursor]
			opt.Enabled = !opt.Enabled
			m.applyFilter()
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) applyFilter() {
	m.filter.Categories = make(map[string]bool)
	m.filter.SuccessOnly = false
	m.filter.FailureOnly = false

	for _, opt := range m.filterMenu.Options {
		switch opt.Key {
		case "success_only":
			m.filter.SuccessOnly = opt.Enabled
		case "failure_only":
			m.filter.FailureOnly = opt.Enabled
		default:
			m.filter.Categories[opt.Key] = opt.Enabled
		}
	}
}

// selectedDiagnostics returns the diagnostics of the selected session's
// latest analysis run.
func (m Model) selectedDiagnostics() []session.Diagnostic {
	if m.registry == nil || m.selectedSurface == 0 {
		return nil
	}
	s, ok := m.registry.SessionByHandle(m.selectedSurface)
	if !ok || s.Analysis == nil {
		return nil
	}
	return s.Analysis.Diagnostics
}

func formatActivityDetail(e activity.Entry) string {
	var lines []string
	lines = append(lines, "Category:  "+e.Category)
	if e.PID != 0 {
		lines = append(lines, fmt.Sprintf("Host PID:  %d", e.PID))
	}
	if e.Surface != 0 {
		lines = append(lines, fmt.Sprintf("Surface:   %d", e.Surface))
	}
	lines = append(lines, "Timestamp: "+e.Timestamp.Format("2006-01-02 15:04:05"))
	if e.OK != nil {
		if *e.OK {
			lines = append(lines, "Status:    success")
		} else {
			lines = append(lines, "Status:    failure")
		}
	}
	lines = append(lines, "")
	lines = append(lines, "Content:")
	lines = append(lines, e.Formatted)
	return strings.Join(lines, "\n")
}

func formatDiagnosticDetail(d session.Diagnostic) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Line:      %d", d.Line))
	lines = append(lines, "Severity:  "+d.Severity.String())
	lines = append(lines, "Source:    "+d.Source)
	lines = append(lines, "")
	lines = append(lines, "Message:")
	lines = append(lines, d.Message)
	return strings.Join(lines, "\n")
}

func (m Model) headerIndicators() string {
	var parts []string
	if !m.isPersistent {
		parts = append(parts, "[No persistence]")
	}
	if m.store != nil && m.store.DroppedWrites() > 0 {
		parts = append(parts, "[!] Writes dropped")
	}
	if m.bridge != nil && !m.bridge.Connected() {
		parts = append(parts, "[shim offline]")
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + dimStyle.Render(strings.Join(parts, " "))
}

func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var output string
	switch m.view {
	case ViewStartup:
		output = m.renderStartup()
	case ViewDashboard:
		output = m.renderDashboard()
	case ViewStats:
		output = m.renderStats()
	case ViewHistory:
		output = m.renderHistory()
	}

	if m.height > 0 {
		lines := strings.Split(output, "\n")
		if len(lines) > m.height {
			lines = lines[:m.height]
			output = strings.Join(lines, "\n")
		}
	}

	return output
}
