package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/marcus/agentrouter/internal/db"
	"github.com/marcus/agentrouter/internal/logging"
)

func TestHTTPSinkRoutesByKind(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		last  Event
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.Path)
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&last); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL+"/", srv.Client())
	ctx := context.Background()

	events := []Event{
		Activity("agent_spawned", "Agent started", "", "dev-1", nil),
		Metric("tool_execution_time", 42, map[string]any{"tool": "bash"}),
		Notification("error", "Boom", "something broke", "high"),
	}
	for _, e := range events {
		if err := sink.Emit(ctx, e); err != nil {
			t.Fatalf("Emit(%s): %v", e.Kind, err)
		}
	}

	want := []string{"/activity", "/metrics", "/notifications"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if last.Priority != "high" || last.Kind != KindNotification {
		t.Errorf("last event = %+v, want high notification", last)
	}
}

func TestHTTPSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPSink(srv.URL, nil).Emit(context.Background(), Activity("x", "", "", "", nil))
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("Emit() = %v, want 500 error", err)
	}
}

func TestMulti(t *testing.T) {
	var calls int
	ok := SinkFunc(func(context.Context, Event) error { calls++; return nil })
	boom := errors.New("boom")
	bad := SinkFunc(func(context.Context, Event) error { calls++; return boom })

	s := Multi(ok, nil, bad, ok)
	err := s.Emit(context.Background(), Event{})
	if !errors.Is(err, boom) {
		t.Errorf("Emit() = %v, want boom", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (every sink tried)", calls)
	}

	if _, fanout := Multi().(multi); fanout {
		t.Error("Multi() with no sinks should not fan out")
	}
	if _, fanout := Multi(ok).(multi); fanout {
		t.Error("Multi(single) should return the sink itself")
	}
	if err := Multi(nil).Emit(context.Background(), Event{}); err != nil {
		t.Errorf("Multi(nil).Emit = %v", err)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(logging.NewWriter(&buf, zerolog.DebugLevel))

	_ = sink.Emit(context.Background(), Notification("error", "Deploy failed", "", "critical"))
	_ = sink.Emit(context.Background(), Metric("latency", 3, map[string]any{"tool": "gh"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"level":"warn"`) || !strings.Contains(lines[0], "Deploy failed") {
		t.Errorf("critical notification line = %s", lines[0])
	}
	if !strings.Contains(lines[1], `"meta_tool":"gh"`) || !strings.Contains(lines[1], `"value":3`) {
		t.Errorf("metric line = %s", lines[1])
	}
}

func TestStoreSink(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "agentrouter.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = database.Close() }()

	sink := NewStoreSink(database)
	ctx := context.Background()
	if err := sink.Emit(ctx, Activity("issue_assigned", "Issue #4 assigned", "", "qa-1", map[string]any{"persona": "qa"})); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	rows, err := database.RecentEvents(ctx, "qa-1", 5)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(rows) != 1 || rows[0].Type != "issue_assigned" || rows[0].Metadata["persona"] != "qa" {
		t.Errorf("rows = %+v", rows)
	}
}
