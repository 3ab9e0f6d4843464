package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marcus/agentrouter/internal/agents"
)

// DefaultSpawnGrace is how long a spawning or active agent may be absent
// from discovery before it is considered lost.
const DefaultSpawnGrace = 15 * time.Minute

// ErrAgentLost is recorded on agents whose run disappeared from discovery.
var ErrAgentLost = errors.New("agent run not found")

// ReconcileReport summarizes one Reconcile pass.
type ReconcileReport struct {
	Discovered int // running agents newly registered
	Completed  int // runs that succeeded; agent taken offline
	Failed     int // runs that failed; agent marked unhealthy
	Lost       int // agents missing from discovery past the grace period
}

// Changed reports whether the pass touched the registry.
func (r ReconcileReport) Changed() bool {
	return r.Discovered+r.Completed+r.Failed+r.Lost > 0
}

type ended struct {
	id, agentType, taskID, msg string
}

// Reconcile brings the registry in line with the agent directory. Running
// agents it has not seen are registered as active. Agents whose run
// finished are taken offline (success) or marked unhealthy (failure) and go
// through the same hooks as CompleteTask and ReportError. Spawning or
// active agents the directory has not listed for longer than the spawn
// grace are marked unhealthy with ErrAgentLost.
//
// Discovery failures are logged and leave the registry untouched.
func (o *Orchestrator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	if o.directory == nil {
		return report, nil
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	found, err := o.directory.Discover(ctx)
	if err != nil {
		o.logger.WarnCtx("agent discovery failed", map[string]any{
			"repo":  o.repo,
			"error": err.Error(),
		})
		return report, nil
	}

	now := o.now()
	seen := make(map[string]bool, len(found))
	var (
		added     []agents.Record
		completed []ended
		failed    []ended
	)

	o.mu.Lock()
	for _, d := range found {
		seen[d.ID] = true
		rec, ok := o.registry[d.ID]
		if !ok {
			if !d.Running() {
				continue
			}
			started := d.StartedAt
			if started.IsZero() {
				started = now
			}
			rec = &agents.Record{
				ID:          d.ID,
				Type:        d.Type,
				Persona:     d.Persona,
				Status:      agents.StatusActive,
				ExternalRef: d.ExternalRef,
				SpawnedAt:   started,
			}
			o.registry[d.ID] = rec
			added = append(added, *rec)
			continue
		}
		if rec.Status == agents.StatusOffline || rec.Status == agents.StatusUnhealthy {
			continue
		}
		switch d.State {
		case agents.RunSucceeded:
			taskID, agentType := o.endLocked(rec, agents.StatusOffline)
			completed = append(completed, ended{id: rec.ID, agentType: agentType, taskID: taskID})
		case agents.RunFailed:
			msg := "workflow run " + d.Conclusion
			if d.Conclusion == "" {
				msg = "workflow run failed"
			}
			taskID, agentType := o.failLocked(rec, msg)
			failed = append(failed, ended{id: rec.ID, agentType: agentType, taskID: taskID, msg: msg})
		}
	}

	var lost []ended
	for id, rec := range o.registry {
		if seen[id] {
			continue
		}
		if rec.Status != agents.StatusActive && rec.Status != agents.StatusSpawning {
			continue
		}
		if now.Sub(lastActivity(*rec)) <= o.spawnGrace {
			continue
		}
		msg := fmt.Sprintf("%v after %s", ErrAgentLost, o.spawnGrace)
		taskID, agentType := o.failLocked(rec, msg)
		lost = append(lost, ended{id: id, agentType: agentType, taskID: taskID, msg: msg})
	}
	total := len(o.registry)
	o.mu.Unlock()

	for _, rec := range added {
		o.emit(Event{Type: EventAgentDiscovered, AgentID: rec.ID, Persona: rec.Persona.String()})
	}
	for _, e := range completed {
		o.finished(ctx, e.id, e.agentType, e.taskID)
	}
	for _, e := range append(failed, lost...) {
		if err := o.failed(ctx, e.id, e.agentType, e.taskID, e.msg); err != nil {
			o.logger.WarnCtx("agentError hooks failed", map[string]any{
				"agent_id": e.id,
				"error":    err.Error(),
			})
		}
	}

	report = ReconcileReport{
		Discovered: len(added),
		Completed:  len(completed),
		Failed:     len(failed),
		Lost:       len(lost),
	}
	if report.Changed() {
		o.logger.InfoCtx("reconciled agents", map[string]any{
			"found":      len(found),
			"discovered": report.Discovered,
			"completed":  report.Completed,
			"failed":     report.Failed,
			"lost":       report.Lost,
			"total":      total,
		})
	}
	return report, nil
}
