package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/tasks"
)

const tdSource = "td"

// TD reads tasks from the td task management CLI in a project directory.
type TD struct {
	dir    string
	runner Runner
}

// NewTD creates a td source rooted at dir. A nil runner uses os/exec.
func NewTD(dir string, runner Runner) *TD {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &TD{dir: dir, runner: runner}
}

// Name implements Source.
func (r *TD) Name() string {
	return tdSource
}

func (r *TD) td(ctx context.Context, args ...string) (string, error) {
	return r.runner.Run(ctx, Invocation{Tool: "td", Args: args, Dir: r.dir})
}

// tdTask represents a task from td's JSON output.
type tdTask struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Owner       string   `json:"owner"`
	Labels      []string `json:"labels"`
}

// Backlog returns open, unowned td tasks.
func (r *TD) Backlog(ctx context.Context) ([]tasks.Task, error) {
	out, err := r.td(ctx, "list", "--format", "json")
	if err != nil {
		return nil, err
	}

	var items []tdTask
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		// Older td versions wrap the list in an object.
		var wrapper struct {
			Tasks []tdTask `json:"tasks"`
		}
		if err := json.Unmarshal([]byte(out), &wrapper); err != nil {
			return nil, fmt.Errorf("parsing td list: %w", err)
		}
		items = wrapper.Tasks
	}

	var backlog []tasks.Task
	for _, it := range items {
		if it.Owner != "" || isClosed(it.Status) {
			continue
		}
		t := tasks.New(tdSource+"-"+it.ID, it.Subject, it.Description, it.Labels...)
		t.Priority = parsePriority(it.Priority)
		t.Source = tdSource
		backlog = append(backlog, t)
	}
	return backlog, nil
}

func isClosed(status string) bool {
	switch strings.ToLower(status) {
	case "done", "closed", "complete", "completed":
		return true
	}
	return false
}

// parsePriority converts td priority string to int.
func parsePriority(p string) int {
	switch strings.ToLower(p) {
	case "critical", "urgent":
		return tasks.PriorityCritical
	case "high":
		return tasks.PriorityHigh
	case "medium", "normal":
		return tasks.PriorityMedium
	case "low":
		return tasks.PriorityLow
	default:
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
		return tasks.PriorityMedium
	}
}

// NotifyAssignment claims the task in td and records the agent in a comment.
func (r *TD) NotifyAssignment(ctx context.Context, task tasks.Task, a agents.Assignment) error {
	id := strings.TrimPrefix(task.ID, tdSource+"-")
	if _, err := r.td(ctx, "assign", id); err != nil {
		return err
	}
	msg := fmt.Sprintf("assigned to %s (%s persona)", a.AgentID, a.Persona)
	_, err := r.td(ctx, "comment", id, msg)
	return err
}

// Complete marks a task as done in td.
func (r *TD) Complete(ctx context.Context, taskID string) error {
	_, err := r.td(ctx, "complete", strings.TrimPrefix(taskID, tdSource+"-"))
	return err
}
