// Package ui provides a terminal dashboard for watching the agent registry,
// the pending queue and orchestrator events. Uses Bubbletea.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/hooks"
	"github.com/marcus/agentrouter/internal/orchestrator"
	"github.com/marcus/agentrouter/internal/tasks"
)

// DefaultRefresh is how often the dashboard pulls a new snapshot.
const DefaultRefresh = time.Second

const maxEvents = 500

// Panel represents which panel is currently focused.
type Panel int

const (
	PanelAgents Panel = iota
	PanelQueue
	PanelEvents
	numPanels
)

// Snapshot is the state rendered on each refresh.
type Snapshot struct {
	Health  orchestrator.HealthReport
	Queue   []tasks.Entry[tasks.Task]
	Hooks   hooks.Metrics
	NextRun time.Time
}

// SnapshotFunc produces the current state. It is called on the UI goroutine.
type SnapshotFunc func() Snapshot

// EventMsg delivers an orchestrator event to a running program.
type EventMsg orchestrator.Event

// EventEntry is one line in the events panel.
type EventEntry struct {
	Time    time.Time
	Level   string
	Message string
}

// Model holds the TUI state.
type Model struct {
	width       int
	height      int
	activePanel Panel
	quitting    bool

	source   SnapshotFunc
	refresh  time.Duration
	snapshot Snapshot

	selectedAgent int
	agentScroll   int
	queueScroll   int

	events      []EventEntry
	eventScroll int

	tick   int
	styles *Styles
}

// Styles holds lipgloss styles for the UI.
type Styles struct {
	ActiveBorder   lipgloss.Style
	InactiveBorder lipgloss.Style

	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	Muted lipgloss.Style

	StatusOK      lipgloss.Style
	StatusWarn    lipgloss.Style
	StatusError   lipgloss.Style
	StatusRunning lipgloss.Style

	Selected lipgloss.Style

	HelpKey  lipgloss.Style
	HelpText lipgloss.Style
}

// newStyles creates the default style set.
func newStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green := lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0366d6", Dark: "#58a6ff"}

	return &Styles{
		ActiveBorder:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(highlight),
		InactiveBorder: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(subtle),

		Title: lipgloss.NewStyle().Bold(true).Foreground(highlight).MarginBottom(1),
		Label: lipgloss.NewStyle().Foreground(subtle),
		Value: lipgloss.NewStyle().Bold(true),
		Muted: lipgloss.NewStyle().Foreground(subtle),

		StatusOK:      lipgloss.NewStyle().Foreground(green).Bold(true),
		StatusWarn:    lipgloss.NewStyle().Foreground(yellow).Bold(true),
		StatusError:   lipgloss.NewStyle().Foreground(red).Bold(true),
		StatusRunning: lipgloss.NewStyle().Foreground(blue).Bold(true),

		Selected: lipgloss.NewStyle().Background(highlight).Foreground(lipgloss.Color("#fff")).Bold(true),

		HelpKey:  lipgloss.NewStyle().Foreground(highlight).Bold(true),
		HelpText: lipgloss.NewStyle().Foreground(subtle),
	}
}

// tickMsg is sent periodically to refresh the snapshot.
type tickMsg time.Time

// New creates a dashboard model that polls source. A nil source renders an
// empty registry.
func New(source SnapshotFunc) *Model {
	if source == nil {
		source = func() Snapshot { return Snapshot{} }
	}
	return &Model{
		width:       80,
		height:      24,
		activePanel: PanelAgents,
		source:      source,
		refresh:     DefaultRefresh,
		snapshot:    source(),
		styles:      newStyles(),
	}
}

// SetRefresh changes the polling interval.
func (m *Model) SetRefresh(d time.Duration) {
	if d > 0 {
		m.refresh = d
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tickCmd(), tea.EnterAltScreen)
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.tick++
		m.snapshot = m.source()
		m.clampSelection()
		return m, m.tickCmd()

	case EventMsg:
		m.addEvent(orchestrator.Event(msg))
		return m, nil
	}

	return m, nil
}

func (m *Model) clampSelection() {
	n := len(m.snapshot.Health.Agents)
	if m.selectedAgent >= n {
		m.selectedAgent = max(n-1, 0)
	}
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "right", "l":
		m.activePanel = (m.activePanel + 1) % numPanels
	case "shift+tab", "left", "h":
		m.activePanel = (m.activePanel + numPanels - 1) % numPanels
	case "up", "k":
		m = m.handleUp()
	case "down", "j":
		m = m.handleDown()
	case "home", "g":
		m = m.handleHome()
	case "end", "G":
		m = m.handleEnd()
	case "r":
		m.snapshot = m.source()
		m.clampSelection()
	}
	return m, nil
}

func (m Model) handleUp() Model {
	switch m.activePanel {
	case PanelAgents:
		if m.selectedAgent > 0 {
			m.selectedAgent--
		}
	case PanelQueue:
		if m.queueScroll > 0 {
			m.queueScroll--
		}
	case PanelEvents:
		if m.eventScroll > 0 {
			m.eventScroll--
		}
	}
	return m
}

func (m Model) handleDown() Model {
	switch m.activePanel {
	case PanelAgents:
		if m.selectedAgent < len(m.snapshot.Health.Agents)-1 {
			m.selectedAgent++
		}
	case PanelQueue:
		if m.queueScroll < len(m.snapshot.Queue)-1 {
			m.queueScroll++
		}
	case PanelEvents:
		if m.eventScroll < len(m.events)-1 {
			m.eventScroll++
		}
	}
	return m
}

func (m Model) handleHome() Model {
	switch m.activePanel {
	case PanelAgents:
		m.selectedAgent = 0
	case PanelQueue:
		m.queueScroll = 0
	case PanelEvents:
		m.eventScroll = 0
	}
	return m
}

func (m Model) handleEnd() Model {
	switch m.activePanel {
	case PanelAgents:
		m.selectedAgent = max(len(m.snapshot.Health.Agents)-1, 0)
	case PanelQueue:
		m.queueScroll = max(len(m.snapshot.Queue)-1, 0)
	case PanelEvents:
		m.eventScroll = max(len(m.events)-1, 0)
	}
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	topHeight := m.height / 2
	bottomHeight := m.height - topHeight - 3
	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth

	agentBorder := m.border(PanelAgents).Width(leftWidth - 2).Height(topHeight - 2)
	queueBorder := m.border(PanelQueue).Width(rightWidth - 2).Height(topHeight - 2)
	eventBorder := m.border(PanelEvents).Width(m.width - 2).Height(bottomHeight - 2)

	topRow := lipgloss.JoinHorizontal(
		lipgloss.Top,
		agentBorder.Render(m.renderAgentPanel(topHeight-2)),
		queueBorder.Render(m.renderQueuePanel(rightWidth-2, topHeight-2)),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		topRow,
		eventBorder.Render(m.renderEventPanel(m.width-2, bottomHeight-2)),
		m.renderHelpBar(),
	)
}

func (m Model) border(panel Panel) lipgloss.Style {
	if m.activePanel == panel {
		return m.styles.ActiveBorder
	}
	return m.styles.InactiveBorder
}

func (m Model) healthStyle(status string) lipgloss.Style {
	switch status {
	case orchestrator.HealthCritical:
		return m.styles.StatusError
	case orchestrator.HealthWarning:
		return m.styles.StatusWarn
	default:
		return m.styles.StatusOK
	}
}

func (m Model) agentStyle(a orchestrator.AgentHealth) (string, lipgloss.Style) {
	switch {
	case a.Stale:
		return "!", m.styles.StatusWarn
	case a.Status == agents.StatusActive:
		return m.spinner(), m.styles.StatusRunning
	case a.Status == agents.StatusSpawning:
		return "+", m.styles.StatusRunning
	case a.Status == agents.StatusIdle:
		return "o", m.styles.StatusOK
	case a.Status == agents.StatusUnhealthy:
		return "x", m.styles.StatusError
	default:
		return "-", m.styles.Muted
	}
}

func (m Model) renderAgentPanel(height int) string {
	h := m.snapshot.Health
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Agents"))
	b.WriteString("\n")

	status := h.Status
	if status == "" {
		status = orchestrator.HealthHealthy
	}
	b.WriteString(m.styles.Label.Render("Health: "))
	b.WriteString(m.healthStyle(status).Render(status))
	b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  %d total, %d active, %d idle, %d unhealthy, %d stale",
		h.Total, h.Active, h.Idle, h.Unhealthy, h.Stale)))
	b.WriteString("\n\n")

	if len(h.Agents) == 0 {
		b.WriteString(m.styles.Muted.Render("No agents registered"))
		return b.String()
	}

	visible := max(height-6, 1)
	scroll := m.agentScroll
	if m.selectedAgent < scroll {
		scroll = m.selectedAgent
	} else if m.selectedAgent >= scroll+visible {
		scroll = m.selectedAgent - visible + 1
	}

	for i := scroll; i < len(h.Agents) && i < scroll+visible; i++ {
		a := h.Agents[i]
		icon, style := m.agentStyle(a)
		line := fmt.Sprintf(" %s %s %s", style.Render(icon), a.ID, m.styles.Muted.Render(a.Persona+" "+formatDuration(a.Uptime)))
		if a.CurrentTaskID != "" {
			line += " " + m.styles.Value.Render(a.CurrentTaskID)
		}
		if i == m.selectedAgent && m.activePanel == PanelAgents {
			line = m.styles.Selected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(h.Agents) > visible {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" [%d/%d]", m.selectedAgent+1, len(h.Agents))))
	}
	return b.String()
}

func (m Model) renderQueuePanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Queue"))
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Next run: "))
	if m.snapshot.NextRun.IsZero() {
		b.WriteString(m.styles.Muted.Render("not scheduled"))
	} else {
		b.WriteString(m.styles.Value.Render(m.snapshot.NextRun.Format("15:04:05")))
	}
	b.WriteString("\n")

	hm := m.snapshot.Hooks
	b.WriteString(m.styles.Label.Render("Hooks: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d runs, %.0f%% ok, avg %s",
		hm.Executions, hm.SuccessRate*100, hm.AverageExecutionTime.Round(time.Millisecond))))
	b.WriteString("\n\n")

	if len(m.snapshot.Queue) == 0 {
		b.WriteString(m.styles.Muted.Render("No tasks queued"))
		return b.String()
	}

	visible := max(height-7, 1)
	start := min(m.queueScroll, max(len(m.snapshot.Queue)-visible, 0))
	for i := start; i < len(m.snapshot.Queue) && i < start+visible; i++ {
		e := m.snapshot.Queue[i]
		title := truncate(e.Item.Title, width-14)
		b.WriteString(fmt.Sprintf(" %s %s %s\n",
			m.priorityStyle(e.Priority).Render(fmt.Sprintf("%3d", e.Priority)),
			e.Item.Ref(),
			title,
		))
	}
	if len(m.snapshot.Queue) > visible {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" [%d/%d]", start+1, len(m.snapshot.Queue))))
	}
	return b.String()
}

func (m Model) priorityStyle(p int) lipgloss.Style {
	switch {
	case p >= tasks.PriorityCritical:
		return m.styles.StatusError
	case p >= tasks.PriorityHigh:
		return m.styles.StatusWarn
	default:
		return m.styles.Muted
	}
}

func (m Model) renderEventPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Events"))
	b.WriteString("\n\n")

	if len(m.events) == 0 {
		b.WriteString(m.styles.Muted.Render("No events yet"))
		return b.String()
	}

	visible := max(height-4, 1)
	start := m.eventScroll
	if start+visible > len(m.events) {
		start = max(len(m.events)-visible, 0)
	}

	for i := start; i < len(m.events) && i < start+visible; i++ {
		e := m.events[i]
		style := m.styles.StatusRunning
		switch e.Level {
		case "warn":
			style = m.styles.StatusWarn
		case "error":
			style = m.styles.StatusError
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			m.styles.Muted.Render(e.Time.Format("15:04:05")),
			style.Render(fmt.Sprintf("[%-5s]", e.Level)),
			truncate(e.Message, width-20),
		))
	}
	return b.String()
}

func (m Model) renderHelpBar() string {
	items := []struct {
		key  string
		desc string
	}{
		{"tab", "switch panel"},
		{"j/k", "up/down"},
		{"r", "refresh"},
		{"q", "quit"},
	}

	var parts []string
	for _, item := range items {
		parts = append(parts, m.styles.HelpKey.Render(item.key)+" "+m.styles.HelpText.Render(item.desc))
	}
	return "  " + strings.Join(parts, "  |  ")
}

// spinner returns a spinner character based on the current tick.
func (m Model) spinner() string {
	frames := []string{"|", "/", "-", "\\"}
	return frames[m.tick%len(frames)]
}

// addEvent appends an orchestrator event, keeping the newest maxEvents.
// The view follows the tail unless the user has scrolled up.
func (m *Model) addEvent(e orchestrator.Event) {
	follow := len(m.events) == 0 || m.eventScroll >= len(m.events)-1

	level := "info"
	switch e.Type {
	case orchestrator.EventAgentError:
		level = "error"
	case orchestrator.EventTaskQueued, orchestrator.EventAgentRemoved:
		level = "warn"
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	m.events = append(m.events, EventEntry{Time: e.Time, Level: level, Message: describe(e)})
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
	if follow {
		m.eventScroll = len(m.events) - 1
	}
}

// describe renders an event as one line.
func describe(e orchestrator.Event) string {
	parts := []string{e.Type.String()}
	if e.AgentID != "" {
		parts = append(parts, "agent="+e.AgentID)
	}
	if e.TaskID != "" {
		parts = append(parts, "task="+e.TaskID)
	}
	if e.Persona != "" {
		parts = append(parts, "persona="+e.Persona)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Error != "" {
		parts = append(parts, "error="+e.Error)
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	if n > 3 && len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// Run starts the dashboard and blocks until the user quits.
func (m *Model) Run() error {
	_, err := m.Program().Run()
	return err
}

// Program returns a program for the model, so callers can Send events to it.
func (m *Model) Program() *tea.Program {
	return tea.NewProgram(*m, tea.WithAltScreen())
}
