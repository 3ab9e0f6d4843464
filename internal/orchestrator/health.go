package orchestrator

import (
	"sort"
	"time"

	"github.com/marcus/agentrouter/internal/agents"
)

// Overall health levels.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// AgentHealth is the per-agent part of a HealthReport.
type AgentHealth struct {
	ID            string
	Type          string
	Persona       string
	Status        agents.Status
	CurrentTaskID string
	Uptime        time.Duration
	Stale         bool
	LastError     string
}

// HealthReport aggregates the registry and the pending queue.
type HealthReport struct {
	Timestamp     time.Time
	Status        string
	Total         int
	Active        int
	Idle          int
	Spawning      int
	Unhealthy     int
	Offline       int
	Stale         int
	QueuedBacklog int
	Agents        []AgentHealth
}

// HealthCheck reports on every registered agent. An agent is stale when it
// has been active on the same task for longer than the stale threshold.
// Status is healthy with no unhealthy or stale agents, critical when they
// make up at least half the registry, and warning otherwise.
func (o *Orchestrator) HealthCheck() HealthReport {
	now := o.now()

	o.mu.Lock()
	r := HealthReport{
		Timestamp:     now,
		Total:         len(o.registry),
		QueuedBacklog: o.queue.Size(),
		Agents:        make([]AgentHealth, 0, len(o.registry)),
	}
	for _, rec := range o.registry {
		h := AgentHealth{
			ID:            rec.ID,
			Type:          rec.Type,
			Persona:       rec.Persona.String(),
			Status:        rec.Status,
			CurrentTaskID: rec.CurrentTaskID,
			LastError:     rec.LastError,
		}
		if !rec.SpawnedAt.IsZero() {
			h.Uptime = now.Sub(rec.SpawnedAt)
		}

		switch rec.Status {
		case agents.StatusActive:
			r.Active++
			since := rec.AssignedAt
			if since.IsZero() {
				since = rec.SpawnedAt
			}
			if !since.IsZero() && now.Sub(since) > o.staleAfter {
				h.Stale = true
				r.Stale++
			}
		case agents.StatusIdle:
			r.Idle++
		case agents.StatusSpawning:
			r.Spawning++
		case agents.StatusUnhealthy:
			r.Unhealthy++
		case agents.StatusOffline:
			r.Offline++
		}
		r.Agents = append(r.Agents, h)
	}
	o.mu.Unlock()

	sort.Slice(r.Agents, func(i, j int) bool { return r.Agents[i].ID < r.Agents[j].ID })

	problems := r.Unhealthy + r.Stale
	switch {
	case problems == 0:
		r.Status = HealthHealthy
	case problems*2 >= r.Total:
		r.Status = HealthCritical
	default:
		r.Status = HealthWarning
	}
	return r
}
