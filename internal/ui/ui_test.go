package ui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/orchestrator"
	"github.com/marcus/agentrouter/internal/tasks"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Health: orchestrator.HealthReport{
			Status: orchestrator.HealthWarning,
			Total:  3,
			Active: 1,
			Idle:   1,
			Stale:  1,
			Agents: []orchestrator.AgentHealth{
				{ID: "development-agent-1", Persona: "architect", Status: agents.StatusActive, CurrentTaskID: "gh-12", Uptime: 2 * time.Hour, Stale: true},
				{ID: "testing-agent-2", Persona: "qa", Status: agents.StatusIdle, Uptime: 5 * time.Minute},
				{ID: "security-agent-3", Persona: "security", Status: agents.StatusUnhealthy, LastError: "boom"},
			},
		},
		Queue: []tasks.Entry[tasks.Task]{
			{Item: tasks.New("gh-7", "Patch CVE", ""), Priority: tasks.PriorityCritical},
			{Item: tasks.New("td-3", "Write docs", ""), Priority: tasks.PriorityLow},
		},
	}
}

func TestNew(t *testing.T) {
	m := New(nil)

	if m.width != 80 || m.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", m.width, m.height)
	}
	if m.activePanel != PanelAgents {
		t.Errorf("activePanel = %v, want PanelAgents", m.activePanel)
	}
	if m.refresh != DefaultRefresh {
		t.Errorf("refresh = %v, want %v", m.refresh, DefaultRefresh)
	}
	if m.styles == nil {
		t.Error("styles should be initialized")
	}
	if m.snapshot.Health.Total != 0 {
		t.Errorf("nil source should give empty snapshot, got %+v", m.snapshot.Health)
	}
}

func TestSetRefresh(t *testing.T) {
	m := New(nil)
	m.SetRefresh(5 * time.Second)
	if m.refresh != 5*time.Second {
		t.Errorf("refresh = %v, want 5s", m.refresh)
	}
	m.SetRefresh(0)
	if m.refresh != 5*time.Second {
		t.Errorf("zero refresh should be ignored, got %v", m.refresh)
	}
}

func TestInit(t *testing.T) {
	m := New(nil)
	if cmd := m.Init(); cmd == nil {
		t.Error("Init should return a command")
	}
}

func TestWindowResize(t *testing.T) {
	m := New(nil)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model := updated.(Model)
	if model.width != 120 || model.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", model.width, model.height)
	}
}

func TestQuit(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c"} {
		t.Run(key, func(t *testing.T) {
			m := New(nil)
			var msg tea.KeyMsg
			if key == "ctrl+c" {
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			} else {
				msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
			}
			updated, cmd := m.Update(msg)
			model := updated.(Model)
			if !model.quitting {
				t.Error("quitting should be true")
			}
			if cmd == nil {
				t.Error("should return quit command")
			}
			if model.View() != "" {
				t.Error("View should be empty when quitting")
			}
		})
	}
}

func TestPanelSwitch(t *testing.T) {
	m := New(nil)
	tab := tea.KeyMsg{Type: tea.KeyTab}

	want := []Panel{PanelQueue, PanelEvents, PanelAgents}
	var model tea.Model = *m
	for i, w := range want {
		model, _ = model.Update(tab)
		if got := model.(Model).activePanel; got != w {
			t.Errorf("after %d tabs activePanel = %v, want %v", i+1, got, w)
		}
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	if got := model.(Model).activePanel; got != PanelEvents {
		t.Errorf("shift+tab from agents = %v, want PanelEvents", got)
	}
}

func TestTickRefreshesSnapshot(t *testing.T) {
	calls := 0
	m := New(func() Snapshot {
		calls++
		return sampleSnapshot()
	})
	if calls != 1 {
		t.Fatalf("New should take an initial snapshot, calls = %d", calls)
	}

	updated, cmd := m.Update(tickMsg(time.Now()))
	model := updated.(Model)
	if calls != 2 {
		t.Errorf("tick should refresh, calls = %d", calls)
	}
	if model.tick != 1 {
		t.Errorf("tick = %d, want 1", model.tick)
	}
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	if model.snapshot.Health.Total != 3 {
		t.Errorf("snapshot Total = %d, want 3", model.snapshot.Health.Total)
	}
}

func TestRefreshKey(t *testing.T) {
	calls := 0
	m := New(func() Snapshot {
		calls++
		return Snapshot{}
	})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if calls != 2 {
		t.Errorf("r should refresh, calls = %d", calls)
	}
}

func TestTickClampsSelection(t *testing.T) {
	snap := sampleSnapshot()
	m := New(func() Snapshot { return snap })
	m.selectedAgent = 2

	snap.Health.Agents = snap.Health.Agents[:1]
	updated, _ := m.Update(tickMsg(time.Now()))
	if got := updated.(Model).selectedAgent; got != 0 {
		t.Errorf("selectedAgent = %d, want 0 after registry shrank", got)
	}
}

func TestView(t *testing.T) {
	m := New(func() Snapshot { return sampleSnapshot() })
	m.width, m.height = 160, 40
	view := m.View()

	for _, want := range []string{"Agents", "Queue", "Events", "warning", "development-agent-1", "gh-12", "Patch CVE", "not scheduled", "No events yet"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q", want)
		}
	}
}

func TestViewEmpty(t *testing.T) {
	m := New(nil)
	view := m.View()
	for _, want := range []string{"No agents registered", "No tasks queued", "healthy"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q", want)
		}
	}
}

func TestEventMsg(t *testing.T) {
	m := New(nil)
	m.width, m.height = 160, 40

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	updated, cmd := m.Update(EventMsg{
		Type:    orchestrator.EventTaskAssigned,
		Time:    at,
		AgentID: "development-agent-1",
		TaskID:  "gh-12",
		Persona: "architect",
	})
	if cmd != nil {
		t.Error("EventMsg should not return a command")
	}
	model := updated.(Model)
	if len(model.events) != 1 {
		t.Fatalf("events = %d, want 1", len(model.events))
	}
	e := model.events[0]
	if e.Level != "info" || !e.Time.Equal(at) {
		t.Errorf("event = %+v", e)
	}
	if e.Message != "task_assigned agent=development-agent-1 task=gh-12 persona=architect" {
		t.Errorf("Message = %q", e.Message)
	}
	if !strings.Contains(model.View(), "task_assigned") {
		t.Error("View should show the event")
	}
}

func TestEventLevels(t *testing.T) {
	tests := []struct {
		typ  orchestrator.EventType
		want string
	}{
		{orchestrator.EventAgentSpawned, "info"},
		{orchestrator.EventTaskQueued, "warn"},
		{orchestrator.EventAgentRemoved, "warn"},
		{orchestrator.EventAgentError, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			m := New(nil)
			m.addEvent(orchestrator.Event{Type: tt.typ})
			if got := m.events[0].Level; got != tt.want {
				t.Errorf("Level = %q, want %q", got, tt.want)
			}
			if m.events[0].Time.IsZero() {
				t.Error("zero event time should be filled in")
			}
		})
	}
}

func TestEventsCapped(t *testing.T) {
	m := New(nil)
	for i := 0; i < maxEvents+10; i++ {
		m.addEvent(orchestrator.Event{Type: orchestrator.EventRebalance, Message: fmt.Sprintf("pass %d", i)})
	}
	if len(m.events) != maxEvents {
		t.Errorf("events = %d, want %d", len(m.events), maxEvents)
	}
	if !strings.HasSuffix(m.events[len(m.events)-1].Message, fmt.Sprintf("pass %d", maxEvents+9)) {
		t.Errorf("last event = %q", m.events[len(m.events)-1].Message)
	}
	if m.eventScroll != maxEvents-1 {
		t.Errorf("eventScroll = %d, want tail", m.eventScroll)
	}
}

func TestEventsFollowTailOnlyAtBottom(t *testing.T) {
	m := New(nil)
	for i := 0; i < 5; i++ {
		m.addEvent(orchestrator.Event{Type: orchestrator.EventRebalance})
	}
	m.eventScroll = 1
	m.addEvent(orchestrator.Event{Type: orchestrator.EventRebalance})
	if m.eventScroll != 1 {
		t.Errorf("eventScroll = %d, should stay where the user left it", m.eventScroll)
	}
}

func TestDescribe(t *testing.T) {
	got := describe(orchestrator.Event{Type: orchestrator.EventAgentError, AgentID: "a1", Message: "hook failed", Error: "timeout"})
	want := "agent_error agent=a1 hook failed error=timeout"
	if got != want {
		t.Errorf("describe = %q, want %q", got, want)
	}
}

func TestNavigation(t *testing.T) {
	m := New(func() Snapshot { return sampleSnapshot() })

	down := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")}
	up := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("k")}
	end := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("G")}
	home := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")}

	var model tea.Model = *m
	model, _ = model.Update(down)
	if got := model.(Model).selectedAgent; got != 1 {
		t.Errorf("after j selectedAgent = %d, want 1", got)
	}
	model, _ = model.Update(end)
	if got := model.(Model).selectedAgent; got != 2 {
		t.Errorf("after G selectedAgent = %d, want 2", got)
	}
	model, _ = model.Update(down)
	if got := model.(Model).selectedAgent; got != 2 {
		t.Errorf("j past end selectedAgent = %d, want 2", got)
	}
	model, _ = model.Update(home)
	if got := model.(Model).selectedAgent; got != 0 {
		t.Errorf("after g selectedAgent = %d, want 0", got)
	}
	model, _ = model.Update(up)
	if got := model.(Model).selectedAgent; got != 0 {
		t.Errorf("k at top selectedAgent = %d, want 0", got)
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyTab})
	model, _ = model.Update(down)
	if got := model.(Model).queueScroll; got != 1 {
		t.Errorf("queueScroll = %d, want 1", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{50 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghij", 8); got != "abcde..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 8); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abcdef", 2); got != "abcdef" {
		t.Errorf("tiny width should not truncate, got %q", got)
	}
}

func TestSpinner(t *testing.T) {
	m := New(nil)
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		m.tick = i
		seen[m.spinner()] = true
	}
	if len(seen) != 4 {
		t.Errorf("spinner frames = %d, want 4", len(seen))
	}
	m.tick = 4
	first := m.spinner()
	m.tick = 0
	if m.spinner() != first {
		t.Error("spinner should cycle")
	}
}
