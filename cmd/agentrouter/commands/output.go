package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/orchestrator"
	"github.com/marcus/agentrouter/internal/persona"
)

// outStyles holds lipgloss styles for colored command output.
type outStyles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Accent  lipgloss.Style
}

func newOutStyles() outStyles {
	return outStyles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Success: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Accent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (s outStyles) field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "  %s %s\n", s.Label.Render(fmt.Sprintf("%-14s", label+":")), s.Value.Render(fmt.Sprint(value)))
}

// printAnalysis renders a classification and persona selection.
func printAnalysis(w io.Writer, cls orchestrator.Classification, sel persona.Selection) {
	s := newOutStyles()
	fmt.Fprintln(w, s.Title.Render("Analysis"))
	s.field(w, "Type", cls.Type)
	s.field(w, "Priority", cls.Priority)
	s.field(w, "Complexity", fmt.Sprintf("%.1f", cls.Complexity))
	s.field(w, "Estimate", fmt.Sprintf("%d hours", cls.EstimatedHours()))
	if cls.RequiresSpecialist {
		s.field(w, "Specialist", "required")
	}
	s.field(w, "Persona", sel.Persona)
	s.field(w, "Confidence", fmt.Sprintf("%.0f%%", sel.Confidence*100))

	if len(sel.Scores) > 0 {
		type scored struct {
			p     persona.Persona
			score int
		}
		var ranked []scored
		for p, score := range sel.Scores {
			if score > 0 {
				ranked = append(ranked, scored{p, score})
			}
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].score != ranked[j].score {
				return ranked[i].score > ranked[j].score
			}
			return ranked[i].p < ranked[j].p
		})
		parts := make([]string, len(ranked))
		for i, r := range ranked {
			parts[i] = fmt.Sprintf("%s=%d", r.p, r.score)
		}
		if len(parts) > 0 {
			s.field(w, "Scores", strings.Join(parts, " "))
		}
	}
}

// printAssignment renders a routed task.
func printAssignment(w io.Writer, a agents.Assignment) {
	s := newOutStyles()
	fmt.Fprintln(w, s.Success.Render("Assigned"))
	s.field(w, "Task", a.TaskID)
	if a.IssueNumber > 0 {
		s.field(w, "Issue", fmt.Sprintf("#%d", a.IssueNumber))
	}
	s.field(w, "Agent", a.AgentID)
	s.field(w, "Type", a.AgentType)
	s.field(w, "Persona", a.Persona)
	s.field(w, "Priority", a.Priority)
	s.field(w, "Estimate", fmt.Sprintf("%d hours", a.EstimatedHours))
	s.field(w, "Confidence", fmt.Sprintf("%.0f%%", a.Confidence*100))
	switch {
	case a.Overload:
		s.field(w, "Placement", "overload (all pools full)")
	case a.Fallback:
		s.field(w, "Placement", "fallback")
	}
}

// printRouteReport renders the outcome of a rebalance or drain pass.
func printRouteReport(w io.Writer, title string, r orchestrator.RouteReport) {
	s := newOutStyles()
	fmt.Fprintln(w, s.Title.Render(title))
	if r.Fetched > 0 {
		s.field(w, "Fetched", r.Fetched)
	}
	s.field(w, "Routed", r.Routed)
	s.field(w, "Requeued", r.Requeued)
	s.field(w, "Skipped", r.Skipped)

	if len(r.Assignments) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tAGENT\tPERSONA\tPRIORITY")
	for _, a := range r.Assignments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.TaskID, a.AgentID, a.Persona, a.Priority)
	}
	_ = tw.Flush()
}

func (s outStyles) health(status string) lipgloss.Style {
	switch status {
	case orchestrator.HealthCritical:
		return s.Error
	case orchestrator.HealthWarning:
		return s.Warn
	default:
		return s.Success
	}
}

// printHealth renders a health report as a summary and an agent table.
func printHealth(w io.Writer, r orchestrator.HealthReport) {
	s := newOutStyles()
	fmt.Fprintf(w, "%s %s\n", s.Title.Render("Health:"), s.health(r.Status).Render(r.Status))
	s.field(w, "Agents", r.Total)
	s.field(w, "Active", r.Active)
	s.field(w, "Idle", r.Idle)
	s.field(w, "Spawning", r.Spawning)
	s.field(w, "Unhealthy", r.Unhealthy)
	s.field(w, "Offline", r.Offline)
	s.field(w, "Stale", r.Stale)
	s.field(w, "Queued", r.QueuedBacklog)

	if len(r.Agents) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tPERSONA\tSTATUS\tTASK\tUPTIME")
	for _, a := range r.Agents {
		status := string(a.Status)
		if a.Stale {
			status += " (stale)"
		}
		task := a.CurrentTaskID
		if task == "" {
			task = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.Type, a.Persona, status, task, a.Uptime.Round(time.Second))
	}
	_ = tw.Flush()
}
