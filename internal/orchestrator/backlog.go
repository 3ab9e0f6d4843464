package orchestrator

import (
	"context"
	"errors"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/tasks"
)

// RouteReport summarizes a DrainQueue or RebalanceWorkload pass.
type RouteReport struct {
	Fetched     int // tasks considered
	Routed      int
	Requeued    int // routing failed; task left in the queue
	Skipped     int // already queued or being worked on
	Assignments []agents.Assignment
}

// Submit queues a task at the priority of its classification, or at the
// task's own priority when that is higher. It returns false if a task with
// the same id is already queued.
func (o *Orchestrator) Submit(task tasks.Task) (Classification, bool) {
	cls := o.Classify(task)
	prio := max(tasks.PriorityFromLevel(cls.Priority), task.Priority)

	o.mu.Lock()
	if o.queuedLocked(task.ID) {
		o.mu.Unlock()
		return cls, false
	}
	o.queue.Enqueue(task, prio)
	size := o.queue.Size()
	o.mu.Unlock()

	o.logger.DebugCtx("task queued", map[string]any{
		"task_id":  task.ID,
		"priority": prio,
		"queued":   size,
	})
	o.emit(Event{Type: EventTaskQueued, TaskID: task.ID})
	return cls, true
}

func (o *Orchestrator) queuedLocked(taskID string) bool {
	for _, e := range o.queue.Items() {
		if e.Item.ID == taskID {
			return true
		}
	}
	return false
}

func (o *Orchestrator) assignedLocked(taskID string) bool {
	for _, rec := range o.registry {
		if rec.CurrentTaskID == taskID && rec.Status == agents.StatusActive {
			return true
		}
	}
	return false
}

// Queued returns a snapshot of the pending queue in dequeue order.
func (o *Orchestrator) Queued() []tasks.Entry[tasks.Task] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Items()
}

// QueueStats returns pending queue statistics.
func (o *Orchestrator) QueueStats() tasks.Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Stats()
}

// DrainQueue routes every currently queued task in priority order. Tasks
// that fail to route are put back once the pass is over, so a failing task
// is tried at most once per drain. Context cancellation stops the pass and
// leaves the remaining tasks queued.
func (o *Orchestrator) DrainQueue(ctx context.Context) (RouteReport, error) {
	var (
		report RouteReport
		failed []tasks.Entry[tasks.Task]
	)

	defer func() {
		if len(failed) == 0 {
			return
		}
		o.mu.Lock()
		for _, e := range failed {
			o.queue.Enqueue(e.Item, e.Priority)
		}
		o.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		o.mu.Lock()
		entry, ok := o.queue.DequeueEntry()
		busy := ok && o.assignedLocked(entry.Item.ID)
		o.mu.Unlock()
		if !ok {
			break
		}
		task := entry.Item
		report.Fetched++
		if busy {
			report.Skipped++
			continue
		}

		a, err := o.RouteIssue(ctx, task)
		if err != nil {
			report.Requeued++
			failed = append(failed, entry)
			o.logRouteFailure(task, err)
			continue
		}
		report.Routed++
		report.Assignments = append(report.Assignments, *a)
	}
	return report, nil
}

// RebalanceWorkload fetches the unassigned backlog and routes each task in
// turn. Tasks that cannot be routed are queued for a later drain.
//
// Concurrent calls are not serialized here and may route the same backlog
// item twice; the scheduler runs it single-flight.
func (o *Orchestrator) RebalanceWorkload(ctx context.Context) (RouteReport, error) {
	var report RouteReport
	if o.source == nil {
		return report, ErrNoTaskSource
	}

	backlog, err := o.source.Backlog(ctx)
	if err != nil {
		return report, err
	}
	report.Fetched = len(backlog)

	for _, task := range backlog {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		o.mu.Lock()
		busy := o.assignedLocked(task.ID)
		o.mu.Unlock()
		if busy {
			report.Skipped++
			continue
		}

		a, err := o.RouteIssue(ctx, task)
		if err != nil {
			o.logRouteFailure(task, err)
			if _, queued := o.Submit(task); queued {
				report.Requeued++
			} else {
				report.Skipped++
			}
			continue
		}
		report.Routed++
		report.Assignments = append(report.Assignments, *a)
	}

	o.logger.InfoCtx("rebalanced workload", map[string]any{
		"fetched":  report.Fetched,
		"routed":   report.Routed,
		"requeued": report.Requeued,
		"skipped":  report.Skipped,
	})
	o.emit(Event{Type: EventRebalance, Message: "rebalanced"})
	return report, nil
}

func (o *Orchestrator) logRouteFailure(task tasks.Task, err error) {
	fields := map[string]any{
		"task_id": task.ID,
		"error":   err.Error(),
	}
	var serr *agents.SpawnError
	if errors.As(err, &serr) {
		fields["agent_type"] = serr.Type
		fields["persona"] = serr.Persona
	}
	var cerr *CapacityError
	if errors.As(err, &cerr) {
		fields["persona"] = cerr.Persona.String()
		fields["load"] = cerr.Load
		fields["capacity"] = cerr.Capacity
	}
	o.logger.WarnCtx("routing failed", fields)
}
