// Package orchestrator routes tasks to specialist agents.
// It classifies each task, picks a persona, reuses an idle agent or spawns a
// new one, and tracks every agent in an in-memory registry.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/db"
	"github.com/marcus/agentrouter/internal/hooks"
	"github.com/marcus/agentrouter/internal/logging"
	"github.com/marcus/agentrouter/internal/persona"
	"github.com/marcus/agentrouter/internal/tasks"
	"github.com/marcus/agentrouter/internal/telemetry"
)

// DefaultStaleAfter is how long an agent may stay active on one task before
// it is reported stale.
const DefaultStaleAfter = 30 * time.Minute

var (
	// ErrAgentBusy is returned when assigning work to an agent that is
	// already working or cannot take work.
	ErrAgentBusy = errors.New("agent not available")
	// ErrNoSpawner is returned when no idle agent matches and no spawner is configured.
	ErrNoSpawner = errors.New("no agent spawner configured")
	// ErrNoTaskSource is returned by RebalanceWorkload without a task source.
	ErrNoTaskSource = errors.New("no task source configured")
	// ErrNoActiveTask is returned by CompleteTask for an agent that is not active.
	ErrNoActiveTask = errors.New("agent has no active task")
)

// TaskSource supplies the unassigned backlog.
type TaskSource interface {
	Backlog(ctx context.Context) ([]tasks.Task, error)
}

// Notifier announces assignments to the tracker the task came from.
type Notifier interface {
	NotifyAssignment(ctx context.Context, task tasks.Task, a agents.Assignment) error
}

// AssignmentRecorder persists assignment history.
type AssignmentRecorder interface {
	RecordAssignment(ctx context.Context, a db.AssignmentRow) (int64, error)
	CompleteAssignment(ctx context.Context, agentID string, at time.Time) error
}

// Orchestrator owns the agent registry and the pending task queue.
//
// All registry and queue access goes through mu. The lock is never held
// while calling a collaborator or running hooks.
type Orchestrator struct {
	mu       sync.Mutex
	registry map[string]*agents.Record
	queue    *tasks.Queue[tasks.Task]

	selector *persona.Selector
	hooks    *hooks.Pipeline

	directory agents.Directory
	spawner   agents.Spawner
	source    TaskSource
	notifier  Notifier
	recorder  AssignmentRecorder
	sink      telemetry.Sink

	capacity map[persona.Persona]int
	overflow Overflow

	repo         string
	staleAfter   time.Duration
	spawnGrace   time.Duration
	now          func() time.Time
	logger       *logging.Logger
	eventHandler EventHandler
	defaultsOnce sync.Once
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDirectory sets the collaborator used to discover running agents.
func WithDirectory(d agents.Directory) Option {
	return func(o *Orchestrator) { o.directory = d }
}

// WithSpawner sets the collaborator used to launch agents.
func WithSpawner(s agents.Spawner) Option {
	return func(o *Orchestrator) { o.spawner = s }
}

// WithTaskSource sets the backlog source for RebalanceWorkload.
func WithTaskSource(s TaskSource) Option {
	return func(o *Orchestrator) { o.source = s }
}

// WithNotifier sets the assignment notifier.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithRecorder sets the assignment history store.
func WithRecorder(r AssignmentRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithSink sets the telemetry sink used by the default hooks.
func WithSink(s telemetry.Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithHooks sets the hook pipeline.
func WithHooks(p *hooks.Pipeline) Option {
	return func(o *Orchestrator) { o.hooks = p }
}

// WithRepository records the repository identity, e.g. "owner/name".
func WithRepository(repo string) Option {
	return func(o *Orchestrator) { o.repo = repo }
}

// WithStaleAfter sets the stale threshold for active agents.
func WithStaleAfter(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

// WithSpawnGrace sets how long a spawning or active agent may be missing
// from discovery before Reconcile reports it lost.
func WithSpawnGrace(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.spawnGrace = d
		}
	}
}

// WithCapacity bounds how many agents of each persona may be spawning or
// active at once. Personas missing from the map are unbounded.
func WithCapacity(c map[persona.Persona]int) Option {
	return func(o *Orchestrator) {
		o.capacity = make(map[persona.Persona]int, len(c))
		for p, n := range c {
			o.capacity[p] = n
		}
	}
}

// WithOverflow sets what RouteIssue does when the chosen pool is full.
func WithOverflow(policy Overflow) Option {
	return func(o *Orchestrator) { o.overflow = policy }
}

// WithClock overrides time.Now (for testing).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithEventHandler sets an optional callback for real-time orchestrator events.
func WithEventHandler(h EventHandler) Option {
	return func(o *Orchestrator) { o.eventHandler = h }
}

// New creates an orchestrator with the given options.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:   make(map[string]*agents.Record),
		queue:      tasks.NewQueue[tasks.Task](),
		selector:   persona.NewSelector(),
		sink:       telemetry.Nop,
		staleAfter: DefaultStaleAfter,
		spawnGrace: DefaultSpawnGrace,
		now:        time.Now,
		logger:     logging.Component("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.hooks == nil {
		o.hooks = hooks.New()
	}
	return o
}

// Hooks returns the orchestrator's hook pipeline.
func (o *Orchestrator) Hooks() *hooks.Pipeline {
	return o.hooks
}

// Repository returns the configured repository identity.
func (o *Orchestrator) Repository() string {
	return o.repo
}

// emit sends an event to the registered handler, if any.
func (o *Orchestrator) emit(e Event) {
	if o.eventHandler != nil {
		e.Time = o.now()
		o.eventHandler(e)
	}
}

// Initialize registers the default hooks (once) and reconciles the registry
// with the agent directory. Discovery failures are logged; the registry is
// then simply smaller than reality.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	var regErr error
	o.defaultsOnce.Do(func() {
		regErr = hooks.RegisterDefaults(o.hooks, o.sink)
	})
	if regErr != nil {
		return fmt.Errorf("registering default hooks: %w", regErr)
	}
	_, err := o.Reconcile(ctx)
	return err
}

// Classify analyses a task. See Classify.
func (o *Orchestrator) Classify(task tasks.Task) Classification {
	return Classify(task)
}

// RouteIssue classifies the task, selects a persona, finds or spawns a
// matching agent and assigns the task to it. A spawn failure is returned as
// *agents.SpawnError and the task stays unassigned.
//
// When the persona's pool is full the overflow policy applies: OverflowQueue
// returns a *CapacityError, OverflowFallback places the task on another
// persona and flags the assignment.
func (o *Orchestrator) RouteIssue(ctx context.Context, task tasks.Task) (*agents.Assignment, error) {
	cls := o.Classify(task)
	sel := o.selector.Select(task)

	o.logger.DebugCtx("routing task", map[string]any{
		"task_id":    task.ID,
		"type":       cls.Type,
		"priority":   cls.Priority,
		"persona":    sel.Persona.String(),
		"confidence": sel.Confidence,
	})

	var place placement
	rec, err := o.findOrSpawn(ctx, cls.Type, sel.Persona, task.ID, o.taskLimit(sel.Persona, task))
	if errors.Is(err, ErrAtCapacity) && o.overflow == OverflowFallback {
		preferred := sel.Persona
		sel.Persona, place = o.fallbackPersona(preferred)
		o.logger.WarnCtx("pool full, using fallback persona", map[string]any{
			"task_id":   task.ID,
			"preferred": preferred.String(),
			"persona":   sel.Persona.String(),
			"overload":  place.overload,
		})
		rec, err = o.findOrSpawn(ctx, cls.Type, sel.Persona, task.ID, 0)
	}
	if err != nil {
		return nil, err
	}
	return o.assign(ctx, rec.ID, task, sel, cls, place)
}

// FindOrSpawnAgent returns an idle agent of the given type and persona, or
// spawns one. Spawned agents are registered as spawning and announced on
// the agentStart channel, and on workflowTriggered when backed by a workflow
// run. A full persona pool yields a *CapacityError.
func (o *Orchestrator) FindOrSpawnAgent(ctx context.Context, agentType string, p persona.Persona, taskID string) (agents.Record, error) {
	return o.findOrSpawn(ctx, agentType, p, taskID, o.poolSize(p))
}

// findOrSpawn is FindOrSpawnAgent with an explicit concurrency limit for p;
// limit <= 0 means unbounded.
func (o *Orchestrator) findOrSpawn(ctx context.Context, agentType string, p persona.Persona, taskID string, limit int) (agents.Record, error) {
	o.mu.Lock()
	if limit > 0 {
		if load := o.loadLocked(p); load >= limit {
			o.mu.Unlock()
			return agents.Record{}, &CapacityError{Persona: p, Load: load, Capacity: limit}
		}
	}
	if rec := o.findIdleLocked(agentType, p); rec != nil {
		found := *rec
		o.mu.Unlock()
		o.logger.DebugCtx("reusing idle agent", map[string]any{"agent_id": found.ID})
		return found, nil
	}
	o.mu.Unlock()

	if o.spawner == nil {
		return agents.Record{}, &agents.SpawnError{Type: agentType, Persona: p.String(), Err: ErrNoSpawner}
	}

	rec, err := o.spawner.Spawn(ctx, agents.SpawnRequest{Type: agentType, Persona: p, TaskID: taskID})
	if err != nil {
		var serr *agents.SpawnError
		if !errors.As(err, &serr) {
			err = &agents.SpawnError{Type: agentType, Persona: p.String(), Err: err}
		}
		o.logger.ErrorCtx("spawn failed", map[string]any{
			"type":    agentType,
			"persona": p.String(),
			"error":   err.Error(),
		})
		return agents.Record{}, err
	}

	if rec.ID == "" {
		rec.ID = agents.NewID(agentType)
	}
	if rec.Type == "" {
		rec.Type = agentType
	}
	rec.Persona = p
	rec.Status = agents.StatusSpawning
	if rec.SpawnedAt.IsZero() {
		rec.SpawnedAt = o.now()
	}

	o.mu.Lock()
	stored := rec
	o.registry[rec.ID] = &stored
	o.mu.Unlock()

	o.emit(Event{Type: EventAgentSpawned, AgentID: rec.ID, TaskID: taskID, Persona: p.String()})
	o.runHooks(ctx, hooks.AgentStart, hooks.Payload{
		hooks.KeyAgentID:   rec.ID,
		hooks.KeyAgentType: rec.Type,
		hooks.KeyPersona:   p.String(),
		hooks.KeyTaskID:    taskID,
	})
	if rec.ExternalRef != "" {
		o.runHooks(ctx, hooks.WorkflowTriggered, hooks.Payload{
			hooks.KeyAgentID:   rec.ID,
			hooks.KeyAgentType: rec.Type,
			hooks.KeyWorkflow:  rec.ExternalRef,
			hooks.KeyTaskID:    taskID,
		})
	}
	return rec, nil
}

// findIdleLocked returns the longest-registered idle agent matching type and
// persona. Callers must hold mu.
func (o *Orchestrator) findIdleLocked(agentType string, p persona.Persona) *agents.Record {
	var best *agents.Record
	for _, rec := range o.registry {
		if !rec.Available(agentType, p) {
			continue
		}
		if best == nil || rec.SpawnedAt.Before(best.SpawnedAt) ||
			(rec.SpawnedAt.Equal(best.SpawnedAt) && rec.ID < best.ID) {
			best = rec
		}
	}
	return best
}

// AssignWork marks the agent active on task, runs the issueAssigned hooks
// and notifies the task's tracker. Notification and recording failures are
// logged, not returned.
func (o *Orchestrator) AssignWork(ctx context.Context, agentID string, task tasks.Task, sel persona.Selection, cls Classification) (*agents.Assignment, error) {
	return o.assign(ctx, agentID, task, sel, cls, placement{})
}

func (o *Orchestrator) assign(ctx context.Context, agentID string, task tasks.Task, sel persona.Selection, cls Classification, place placement) (*agents.Assignment, error) {
	now := o.now()

	o.mu.Lock()
	rec, ok := o.registry[agentID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("assigning %s: %w: %s", task.ID, agents.ErrUnknownAgent, agentID)
	}
	if rec.Status != agents.StatusIdle && rec.Status != agents.StatusSpawning {
		status := rec.Status
		o.mu.Unlock()
		return nil, fmt.Errorf("assigning %s to %s (%s): %w", task.ID, agentID, status, ErrAgentBusy)
	}
	rec.Status = agents.StatusActive
	rec.CurrentTaskID = task.ID
	rec.AssignedAt = now
	a := &agents.Assignment{
		AgentID:        rec.ID,
		AgentType:      rec.Type,
		Persona:        sel.Persona,
		Confidence:     sel.Confidence,
		TaskID:         task.ID,
		IssueNumber:    task.Number,
		Priority:       cls.Priority,
		EstimatedHours: cls.EstimatedHours(),
		AssignedAt:     now,
		Fallback:       place.fallback,
		Overload:       place.overload,
	}
	o.mu.Unlock()

	o.logger.InfoCtx("task assigned", map[string]any{
		"task_id":  task.ID,
		"agent_id": a.AgentID,
		"persona":  a.Persona.String(),
		"type":     a.AgentType,
	})

	o.runHooks(ctx, hooks.IssueAssigned, hooks.Payload{
		hooks.KeyAgentID:     a.AgentID,
		hooks.KeyAgentType:   a.AgentType,
		hooks.KeyTaskID:      a.TaskID,
		hooks.KeyIssueNumber: a.IssueNumber,
		hooks.KeyPersona:     a.Persona.String(),
		hooks.KeyConfidence:  a.Confidence,
		hooks.KeyDescription: task.Title,
	})

	if o.notifier != nil {
		if err := o.notifier.NotifyAssignment(ctx, task, *a); err != nil {
			o.logger.WarnCtx("assignment notification failed", map[string]any{
				"task_id": task.ID,
				"error":   err.Error(),
			})
		}
	}
	if o.recorder != nil {
		_, err := o.recorder.RecordAssignment(ctx, db.AssignmentRow{
			TaskID:      a.TaskID,
			IssueNumber: a.IssueNumber,
			AgentID:     a.AgentID,
			Persona:     a.Persona.String(),
			TaskType:    a.AgentType,
			Confidence:  a.Confidence,
			AssignedAt:  now,
		})
		if err != nil {
			o.logger.WarnCtx("recording assignment failed", map[string]any{
				"task_id": task.ID,
				"error":   err.Error(),
			})
		}
	}

	o.emit(Event{Type: EventTaskAssigned, AgentID: a.AgentID, TaskID: a.TaskID, Persona: a.Persona.String()})
	return a, nil
}

// CompleteTask returns an active agent to idle and runs the agentComplete
// hooks. Agents that are not active yield ErrNoActiveTask.
func (o *Orchestrator) CompleteTask(ctx context.Context, agentID string) error {
	o.mu.Lock()
	rec, ok := o.registry[agentID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("completing task: %w: %s", agents.ErrUnknownAgent, agentID)
	}
	if rec.Status != agents.StatusActive {
		status := rec.Status
		o.mu.Unlock()
		return fmt.Errorf("completing task on %s (%s): %w", agentID, status, ErrNoActiveTask)
	}
	taskID, agentType := o.endLocked(rec, agents.StatusIdle)
	o.mu.Unlock()

	o.finished(ctx, agentID, agentType, taskID)
	return nil
}

// endLocked moves rec to a resting status and clears its task. Callers must
// hold mu.
func (o *Orchestrator) endLocked(rec *agents.Record, status agents.Status) (taskID, agentType string) {
	taskID, agentType = rec.CurrentTaskID, rec.Type
	rec.Status = status
	rec.CurrentTaskID = ""
	rec.LastError = ""
	rec.EndedAt = o.now()
	return taskID, agentType
}

// finished announces a completed task to hooks, the recorder and the event
// handler.
func (o *Orchestrator) finished(ctx context.Context, agentID, agentType, taskID string) {
	o.runHooks(ctx, hooks.AgentComplete, hooks.Payload{
		hooks.KeyAgentID:   agentID,
		hooks.KeyAgentType: agentType,
		hooks.KeyTaskID:    taskID,
	})
	if o.recorder != nil {
		if err := o.recorder.CompleteAssignment(ctx, agentID, o.now()); err != nil {
			o.logger.WarnCtx("recording completion failed", map[string]any{
				"agent_id": agentID,
				"error":    err.Error(),
			})
		}
	}
	o.emit(Event{Type: EventAgentCompleted, AgentID: agentID, TaskID: taskID})
}

// ReportError marks the agent unhealthy and runs the agentError hooks. A
// failing agentError hook aborts the chain and is returned as *hooks.HookError.
func (o *Orchestrator) ReportError(ctx context.Context, agentID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	o.mu.Lock()
	rec, ok := o.registry[agentID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("reporting error: %w: %s", agents.ErrUnknownAgent, agentID)
	}
	taskID, agentType := o.failLocked(rec, msg)
	o.mu.Unlock()

	return o.failed(ctx, agentID, agentType, taskID, msg)
}

// failLocked marks rec unhealthy. Callers must hold mu.
func (o *Orchestrator) failLocked(rec *agents.Record, msg string) (taskID, agentType string) {
	taskID, agentType = rec.CurrentTaskID, rec.Type
	rec.Status = agents.StatusUnhealthy
	rec.LastError = msg
	rec.EndedAt = o.now()
	return taskID, agentType
}

// failed logs an agent failure and runs the critical agentError channel.
func (o *Orchestrator) failed(ctx context.Context, agentID, agentType, taskID, msg string) error {
	o.logger.ErrorCtx("agent error", map[string]any{
		"agent_id": agentID,
		"task_id":  taskID,
		"error":    msg,
	})
	o.emit(Event{Type: EventAgentError, AgentID: agentID, TaskID: taskID, Error: msg})

	_, err := o.hooks.Execute(ctx, hooks.AgentError, hooks.Payload{
		hooks.KeyAgentID:   agentID,
		hooks.KeyAgentType: agentType,
		hooks.KeyTaskID:    taskID,
		hooks.KeyError:     msg,
	})
	return err
}

// Deregister removes an agent from the registry.
func (o *Orchestrator) Deregister(agentID string) error {
	o.mu.Lock()
	_, ok := o.registry[agentID]
	delete(o.registry, agentID)
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("deregistering: %w: %s", agents.ErrUnknownAgent, agentID)
	}
	o.emit(Event{Type: EventAgentRemoved, AgentID: agentID})
	return nil
}

// Cleanup removes offline and unhealthy agents whose last activity (spawn,
// assignment or end) is older than maxAge and returns their ids.
func (o *Orchestrator) Cleanup(maxAge time.Duration) []string {
	cutoff := o.now().Add(-maxAge)

	var removed []string
	o.mu.Lock()
	for id, rec := range o.registry {
		if rec.Status != agents.StatusOffline && rec.Status != agents.StatusUnhealthy {
			continue
		}
		if lastActivity(*rec).Before(cutoff) {
			delete(o.registry, id)
			removed = append(removed, id)
		}
	}
	o.mu.Unlock()

	sort.Strings(removed)
	for _, id := range removed {
		o.emit(Event{Type: EventAgentRemoved, AgentID: id, Message: "cleanup"})
	}
	if len(removed) > 0 {
		o.logger.InfoCtx("cleaned up agents", map[string]any{"removed": len(removed)})
	}
	return removed
}

// Agents returns a snapshot of the registry ordered by id.
func (o *Orchestrator) Agents() []agents.Record {
	o.mu.Lock()
	out := make([]agents.Record, 0, len(o.registry))
	for _, rec := range o.registry {
		out = append(out, *rec)
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Agent returns a copy of one registry entry.
func (o *Orchestrator) Agent(id string) (agents.Record, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.registry[id]
	if !ok {
		return agents.Record{}, false
	}
	return *rec, true
}

// runHooks executes a non-critical channel and logs failures.
func (o *Orchestrator) runHooks(ctx context.Context, ch hooks.Channel, p hooks.Payload) {
	out, err := o.hooks.Execute(ctx, ch, p)
	if err != nil {
		o.logger.WarnCtx("hook execution failed", map[string]any{
			"channel": ch.String(),
			"error":   err.Error(),
		})
		return
	}
	if failed := out.Failed(); len(failed) > 0 {
		o.logger.DebugCtx("hooks failed", map[string]any{
			"channel":  ch.String(),
			"failures": len(failed),
		})
	}
}

// lastActivity is the latest of r's spawn, assignment and end times.
func lastActivity(r agents.Record) time.Time {
	last := r.SpawnedAt
	for _, t := range []time.Time{r.AssignedAt, r.EndedAt} {
		if t.After(last) {
			last = t
		}
	}
	return last
}
