// Package integrations connects agentrouter to external trackers and CI:
// GitHub issues and workflow runs via the gh CLI, and local td task lists.
package integrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/logging"
	"github.com/marcus/agentrouter/internal/tasks"
)

// Source supplies backlog tasks.
type Source interface {
	// Name returns the source identifier, matching Task.Source.
	Name() string

	// Backlog returns open tasks that have not been assigned yet.
	Backlog(ctx context.Context) ([]tasks.Task, error)
}

// Notifier announces an assignment back to the tracker a task came from.
type Notifier interface {
	NotifyAssignment(ctx context.Context, task tasks.Task, a agents.Assignment) error
}

// SourceError records a failed source.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

func (e SourceError) Unwrap() error { return e.Err }

// Manager merges several sources into one backlog and routes assignment
// notices back to the source each task came from.
type Manager struct {
	sources []Source
	log     *logging.Logger
}

// NewManager creates a manager over sources. Nil sources are skipped.
func NewManager(sources ...Source) *Manager {
	m := &Manager{log: logging.Component("integrations")}
	for _, s := range sources {
		if s != nil {
			m.sources = append(m.sources, s)
		}
	}
	return m
}

// Sources returns the configured source names.
func (m *Manager) Sources() []string {
	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return names
}

// Backlog gathers tasks from every source, dropping duplicate IDs. A failing
// source is logged and skipped; an error is returned only when every source
// failed.
func (m *Manager) Backlog(ctx context.Context) ([]tasks.Task, error) {
	var (
		all  []tasks.Task
		errs []error
		seen = make(map[string]bool)
	)

	for _, s := range m.sources {
		items, err := s.Backlog(ctx)
		if err != nil {
			serr := SourceError{Source: s.Name(), Err: err}
			errs = append(errs, serr)
			m.log.WarnCtx("backlog source failed", map[string]any{
				"source": s.Name(),
				"error":  err.Error(),
			})
			continue
		}
		for _, t := range items {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			all = append(all, t)
		}
	}

	if len(errs) > 0 && len(errs) == len(m.sources) {
		return nil, errors.Join(errs...)
	}
	return all, nil
}

// NotifyAssignment forwards to the source named by task.Source. Tasks from
// sources that cannot be notified (or inline tasks) are ignored.
func (m *Manager) NotifyAssignment(ctx context.Context, task tasks.Task, a agents.Assignment) error {
	for _, s := range m.sources {
		if s.Name() != task.Source {
			continue
		}
		n, ok := s.(Notifier)
		if !ok {
			return nil
		}
		if err := n.NotifyAssignment(ctx, task, a); err != nil {
			return fmt.Errorf("notifying %s: %w", s.Name(), err)
		}
		return nil
	}
	return nil
}
