package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/hooks"
	"github.com/marcus/agentrouter/internal/persona"
	"github.com/marcus/agentrouter/internal/tasks"
)

// fakeHost spawns agents as workflow runs and lists them back, like the
// GitHub integration does.
type fakeHost struct {
	n    int
	runs []agents.Discovered
}

func (h *fakeHost) Spawn(_ context.Context, req agents.SpawnRequest) (agents.Record, error) {
	h.n++
	id := fmt.Sprintf("%s-agent-%d", req.Type, h.n)
	h.runs = append(h.runs, agents.Discovered{
		ID:          id,
		Type:        req.Type,
		Persona:     req.Persona,
		ExternalRef: fmt.Sprint(h.n),
		State:       agents.RunInProgress,
	})
	return agents.Record{ID: id, Type: req.Type, ExternalRef: "agent-development.yml"}, nil
}

func (h *fakeHost) Discover(context.Context) ([]agents.Discovered, error) {
	return append([]agents.Discovered(nil), h.runs...), nil
}

// finishAll concludes every run still in progress.
func (h *fakeHost) finishAll() {
	for i := range h.runs {
		if h.runs[i].Running() {
			h.runs[i].State = agents.RunSucceeded
			h.runs[i].Conclusion = "success"
		}
	}
}

func countHook(t *testing.T, o *Orchestrator, ch hooks.Channel) *[]hooks.Payload {
	t.Helper()
	var got []hooks.Payload
	err := o.Hooks().Register(ch, func(_ context.Context, p hooks.Payload) (hooks.Payload, error) {
		got = append(got, p)
		return nil, nil
	}, hooks.Options{Name: "capture-" + ch.String(), Sync: true})
	if err != nil {
		t.Fatal(err)
	}
	return &got
}

func TestReconcile_RunOutcomes(t *testing.T) {
	dir := &mockDirectory{found: []agents.Discovered{
		{ID: "done", State: agents.RunSucceeded, Conclusion: "success"},
		{ID: "broken", State: agents.RunFailed, Conclusion: "cancelled"},
		{ID: "new", Type: "testing", Persona: persona.QA, State: agents.RunInProgress},
		{ID: "old-unknown", State: agents.RunSucceeded},
		{ID: "already-offline", State: agents.RunFailed},
	}}
	rec := &mockRecorder{}
	var events []EventType
	o, _ := newTestOrchestrator(t, WithDirectory(dir), WithRecorder(rec), WithSpawnGrace(10*time.Minute),
		WithEventHandler(func(e Event) { events = append(events, e.Type) }))
	completed := countHook(t, o, hooks.AgentComplete)
	errored := countHook(t, o, hooks.AgentError)

	o.registry["done"] = &agents.Record{ID: "done", Type: "development", Status: agents.StatusActive, CurrentTaskID: "t1", SpawnedAt: epoch.Add(-time.Hour)}
	o.registry["broken"] = &agents.Record{ID: "broken", Status: agents.StatusActive, CurrentTaskID: "t2"}
	o.registry["already-offline"] = &agents.Record{ID: "already-offline", Status: agents.StatusOffline}
	o.registry["vanished"] = &agents.Record{ID: "vanished", Status: agents.StatusSpawning, SpawnedAt: epoch.Add(-time.Hour)}
	o.registry["just-spawned"] = &agents.Record{ID: "just-spawned", Status: agents.StatusSpawning, SpawnedAt: epoch.Add(-5 * time.Minute)}
	o.registry["resting"] = &agents.Record{ID: "resting", Status: agents.StatusIdle, SpawnedAt: epoch.Add(-time.Hour)}

	report, err := o.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	want := ReconcileReport{Discovered: 1, Completed: 1, Failed: 1, Lost: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}

	tests := []struct {
		id      string
		status  agents.Status
		lastErr string
	}{
		{"done", agents.StatusOffline, ""},
		{"broken", agents.StatusUnhealthy, "workflow run cancelled"},
		{"new", agents.StatusActive, ""},
		{"already-offline", agents.StatusOffline, ""},
		{"vanished", agents.StatusUnhealthy, ErrAgentLost.Error()},
		{"just-spawned", agents.StatusSpawning, ""},
		{"resting", agents.StatusIdle, ""},
	}
	for _, tt := range tests {
		got, ok := o.Agent(tt.id)
		if !ok {
			t.Errorf("%s missing from registry", tt.id)
			continue
		}
		if got.Status != tt.status || !strings.HasPrefix(got.LastError, tt.lastErr) {
			t.Errorf("%s = %s %q, want %s %q", tt.id, got.Status, got.LastError, tt.status, tt.lastErr)
		}
	}
	if _, ok := o.Agent("old-unknown"); ok {
		t.Error("finished run of an unknown agent should not be registered")
	}

	done, _ := o.Agent("done")
	if done.CurrentTaskID != "" || !done.EndedAt.Equal(epoch) {
		t.Errorf("done = %+v, want task cleared and EndedAt set", done)
	}
	if len(*completed) != 1 || (*completed)[0][hooks.KeyTaskID] != "t1" {
		t.Errorf("agentComplete payloads = %v", *completed)
	}
	if len(rec.completed) != 1 || rec.completed[0] != "done" {
		t.Errorf("recorder completions = %v", rec.completed)
	}
	if len(*errored) != 2 {
		t.Errorf("agentError runs = %d, want 2", len(*errored))
	}

	var discovered int
	for _, e := range events {
		if e == EventAgentDiscovered {
			discovered++
		}
	}
	if discovered != 1 {
		t.Errorf("discovered events = %d, want 1 (events %v)", discovered, events)
	}
}

func TestReconcile_FailingErrorHookIsLogged(t *testing.T) {
	dir := &mockDirectory{found: []agents.Discovered{{ID: "a1", State: agents.RunFailed}}}
	o, _ := newTestOrchestrator(t, WithDirectory(dir))
	o.registry["a1"] = &agents.Record{ID: "a1", Status: agents.StatusActive}
	_ = o.Hooks().Register(hooks.AgentError, func(context.Context, hooks.Payload) (hooks.Payload, error) {
		return nil, errors.New("pager down")
	}, hooks.Options{Name: "pager", Sync: true})

	report, err := o.Reconcile(context.Background())
	if err != nil || report.Failed != 1 {
		t.Fatalf("Reconcile() = %+v, %v", report, err)
	}
	if got, _ := o.Agent("a1"); got.LastError != "workflow run failed" {
		t.Errorf("LastError = %q", got.LastError)
	}
}

func TestReconcile_NoDirectoryOrDiscoveryError(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if report, err := o.Reconcile(context.Background()); err != nil || report.Changed() {
		t.Errorf("Reconcile() without directory = %+v, %v", report, err)
	}

	dir := &mockDirectory{err: &agents.DiscoveryError{Source: "github", Err: errors.New("rate limited")}}
	o, _ = newTestOrchestrator(t, WithDirectory(dir), WithSpawnGrace(time.Minute))
	o.registry["a1"] = &agents.Record{ID: "a1", Status: agents.StatusActive, SpawnedAt: epoch.Add(-time.Hour)}
	if report, err := o.Reconcile(context.Background()); err != nil || report.Changed() {
		t.Errorf("Reconcile() on discovery error = %+v, %v", report, err)
	}
	if got, _ := o.Agent("a1"); got.Status != agents.StatusActive {
		t.Errorf("discovery error should not mark agents lost, got %s", got.Status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.Reconcile(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRoutingCycles_RegistryStaysBounded(t *testing.T) {
	host := &fakeHost{}
	src := &mockSource{}
	o, clock := newTestOrchestrator(t, WithDirectory(host), WithSpawner(host), WithTaskSource(src))
	completed := countHook(t, o, hooks.AgentComplete)
	triggered := countHook(t, o, hooks.WorkflowTriggered)
	ctx := context.Background()

	const cycles = 5
	for i := range cycles {
		if i > 0 {
			clock.Advance(2 * time.Hour)
		}
		host.finishAll()
		if _, err := o.Reconcile(ctx); err != nil {
			t.Fatalf("cycle %d Reconcile() error = %v", i, err)
		}
		src.backlog = []tasks.Task{{ID: fmt.Sprintf("gh-%d", i)}}
		if report, err := o.RebalanceWorkload(ctx); err != nil || report.Routed != 1 {
			t.Fatalf("cycle %d RebalanceWorkload() = %+v, %v", i, report, err)
		}
		o.Cleanup(time.Hour)
	}

	if host.n != cycles {
		t.Errorf("spawns = %d, want %d", host.n, cycles)
	}
	if n := len(o.Agents()); n > 2 {
		t.Errorf("registry size = %d, want at most 2", n)
	}
	h := o.HealthCheck()
	if h.Active != 1 || h.Offline != 1 || h.Stale != 0 || h.Status != HealthHealthy {
		t.Errorf("health = %+v", h)
	}
	if len(*completed) != cycles-1 {
		t.Errorf("agentComplete runs = %d, want %d", len(*completed), cycles-1)
	}
	if len(*triggered) != cycles || (*triggered)[0][hooks.KeyWorkflow] != "agent-development.yml" {
		t.Errorf("workflowTriggered payloads = %v", *triggered)
	}

	// One more reconcile retires the last run too.
	clock.Advance(2 * time.Hour)
	host.finishAll()
	if report, _ := o.Reconcile(ctx); report.Completed != 1 {
		t.Errorf("final reconcile = %+v", report)
	}
	if h := o.HealthCheck(); h.Active != 0 || h.Stale != 0 || h.Status != HealthHealthy {
		t.Errorf("final health = %+v", h)
	}
}
