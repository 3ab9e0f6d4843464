package integrations

import (
	"context"
	"strings"
	"testing"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/persona"
	"github.com/marcus/agentrouter/internal/tasks"
)

func TestTD_Name(t *testing.T) {
	r := NewTD("", nil)
	if r.Name() != "td" {
		t.Errorf("Name() = %q, want %q", r.Name(), "td")
	}
	if _, ok := r.runner.(ExecRunner); !ok {
		t.Errorf("runner = %T, want ExecRunner", r.runner)
	}
}

func TestTDBacklog(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
	}{
		{"array", `[
			{"id": "t1", "subject": "Write tests", "description": "cover parser", "status": "open", "priority": "high", "labels": ["testing"]},
			{"id": "t2", "subject": "Owned", "status": "open", "owner": "sam"},
			{"id": "t3", "subject": "Finished", "status": "done"},
			{"id": "t4", "subject": "Numeric", "status": "open", "priority": "90"}
		]`},
		{"wrapped", `{"tasks": [
			{"id": "t1", "subject": "Write tests", "description": "cover parser", "status": "open", "priority": "high", "labels": ["testing"]},
			{"id": "t4", "subject": "Numeric", "status": "open", "priority": "90"}
		]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockRunner{Responses: []mockResponse{{Stdout: tt.stdout}}}
			r := NewTD("/work/proj", mock)

			backlog, err := r.Backlog(context.Background())
			if err != nil {
				t.Fatalf("Backlog() error = %v", err)
			}
			if len(backlog) != 2 {
				t.Fatalf("len(backlog) = %d, want 2", len(backlog))
			}
			if backlog[0].ID != "td-t1" || backlog[0].Source != "td" || backlog[0].Priority != tasks.PriorityHigh {
				t.Errorf("backlog[0] = %+v", backlog[0])
			}
			if !backlog[0].HasLabel("testing") {
				t.Error("labels not carried over")
			}
			if backlog[1].Priority != 90 {
				t.Errorf("numeric priority = %d, want 90", backlog[1].Priority)
			}
			if mock.call(0) != "td list --format json" || mock.Calls[0].Dir != "/work/proj" {
				t.Errorf("call = %q in %q", mock.call(0), mock.Calls[0].Dir)
			}
		})
	}
}

func TestTDBacklog_Errors(t *testing.T) {
	for _, resp := range []mockResponse{
		{ExitCode: 1, Stderr: "no td project"},
		{Stdout: "garbage"},
	} {
		r := NewTD("", &MockRunner{Responses: []mockResponse{resp}})
		if _, err := r.Backlog(context.Background()); err == nil {
			t.Errorf("Backlog(%+v) error = nil", resp)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"critical", 100},
		{"URGENT", 100},
		{"high", 75},
		{"normal", 50},
		{"medium", 50},
		{"low", 25},
		{"10", 10},
		{"", 50},
		{"whenever", 50},
	}
	for _, tt := range tests {
		if got := parsePriority(tt.in); got != tt.want {
			t.Errorf("parsePriority(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTDNotifyAssignment(t *testing.T) {
	mock := &MockRunner{}
	r := NewTD("", mock)

	err := r.NotifyAssignment(context.Background(), tasks.Task{ID: "td-t7", Source: "td"},
		agents.Assignment{AgentID: "testing-agent-1", Persona: persona.QA})
	if err != nil {
		t.Fatalf("NotifyAssignment() error = %v", err)
	}
	if mock.call(0) != "td assign t7" {
		t.Errorf("first call = %q", mock.call(0))
	}
	if c := mock.call(1); !strings.HasPrefix(c, "td comment t7 ") || !strings.Contains(c, "testing-agent-1") {
		t.Errorf("second call = %q", c)
	}

	mock = &MockRunner{}
	if err := NewTD("", mock).Complete(context.Background(), "td-t7"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if mock.call(0) != "td complete t7" {
		t.Errorf("call = %q", mock.call(0))
	}
}
