// Package tasks defines the task record routed to agents and the priority
// queue that buffers pending work.
// Tasks come from GitHub issues or are submitted inline from the CLI.
package tasks

import (
	"fmt"
	"strings"
	"time"
)

// Numeric priorities used when a task is queued.
const (
	PriorityLow      = 25
	PriorityMedium   = 50
	PriorityHigh     = 75
	PriorityCritical = 100
)

// Task represents a unit of work ingested from an external tracker.
// A Task is treated as immutable once ingested; pass it by value.
type Task struct {
	ID        string
	Number    int // issue number, 0 for inline tasks
	Title     string
	Body      string
	Labels    []string
	Priority  int
	Source    string // e.g. "github", "cli"
	CreatedAt time.Time
}

// New creates a task with a copied label set and the creation time stamped.
func New(id, title, body string, labels ...string) Task {
	return Task{
		ID:        id,
		Title:     title,
		Body:      body,
		Labels:    append([]string(nil), labels...),
		Priority:  PriorityMedium,
		CreatedAt: time.Now(),
	}
}

// HasLabel reports whether the task carries the label (case-insensitive).
func (t Task) HasLabel(name string) bool {
	for _, l := range t.Labels {
		if strings.EqualFold(l, name) {
			return true
		}
	}
	return false
}

// NormalizedLabels returns the labels lower-cased.
func (t Task) NormalizedLabels() []string {
	out := make([]string, len(t.Labels))
	for i, l := range t.Labels {
		out[i] = strings.ToLower(l)
	}
	return out
}

// WithPriority returns a copy of the task with the priority replaced.
func (t Task) WithPriority(p int) Task {
	t.Labels = append([]string(nil), t.Labels...)
	t.Priority = p
	return t
}

// Ref returns a short human reference, "#42" for issues or the ID otherwise.
func (t Task) Ref() string {
	if t.Number > 0 {
		return fmt.Sprintf("#%d", t.Number)
	}
	return t.ID
}

// PriorityFromLevel maps a named priority level to its numeric value.
func PriorityFromLevel(level string) int {
	switch strings.ToLower(level) {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}
