package persona

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/marcus/agentrouter/internal/tasks"
)

func TestSelectSecurityTask(t *testing.T) {
	s := NewSelector()
	task := tasks.New("t-1", "security vulnerability in auth", "", "security")

	sel := s.Select(task)
	if sel.Persona != Security {
		t.Fatalf("Persona = %s, want security (scores %v)", sel.Persona, sel.Scores)
	}
	// 3 title keywords (+9), issue type label (+5), keyword in label (+2)
	if sel.Score != 16 {
		t.Errorf("Score = %d, want 16", sel.Score)
	}
	if sel.Confidence <= 0.5 {
		t.Errorf("Confidence = %f, want > 0.5", sel.Confidence)
	}
	if math.Abs(sel.Confidence-0.76) > 1e-9 {
		t.Errorf("Confidence = %f, want 0.76", sel.Confidence)
	}
}

func TestSelectFallback(t *testing.T) {
	s := NewSelector()

	sel := s.Select(tasks.Task{})
	if sel.Persona != Fallback {
		t.Errorf("Persona = %s, want %s", sel.Persona, Fallback)
	}
	if sel.Score != 0 {
		t.Errorf("Score = %d, want 0", sel.Score)
	}
	if sel.Confidence != 0 {
		t.Errorf("Confidence = %f, want 0", sel.Confidence)
	}
	if len(sel.Scores) != len(All()) {
		t.Errorf("len(Scores) = %d, want %d", len(sel.Scores), len(All()))
	}
}

func TestSelectTieGoesToFirstDeclared(t *testing.T) {
	s := NewSelector()

	tests := []struct {
		name  string
		title string
		want  Persona
	}{
		// "design" is a keyword of both architect and frontend.
		{"architect before frontend", "design", Architect},
		// "optimize" is a keyword of both refactorer and performance.
		{"refactorer before performance", "optimize", Refactorer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := s.Select(tasks.Task{Title: tt.title})
			if sel.Persona != tt.want {
				t.Errorf("Select(%q) = %s, want %s (scores %v)", tt.title, sel.Persona, tt.want, sel.Scores)
			}
		})
	}
}

func TestSelectWeights(t *testing.T) {
	s := NewSelector()

	tests := []struct {
		name      string
		task      tasks.Task
		persona   Persona
		wantScore int
	}{
		{"title keyword", tasks.Task{Title: "Slow page"}, Performance, 3},
		{"body keyword", tasks.Task{Body: "pages are slow"}, Performance, 1},
		{"issue type label", tasks.Task{Labels: []string{"bug"}}, Analyzer, 5},
		{"label case folded", tasks.Task{Labels: []string{"BUG"}}, Analyzer, 5},
		{"keyword inside label", tasks.Task{Labels: []string{"needs-readme"}}, Scribe, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := s.Select(tt.task)
			if got := sel.Scores[tt.persona]; got != tt.wantScore {
				t.Errorf("Scores[%s] = %d, want %d", tt.persona, got, tt.wantScore)
			}
		})
	}
}

func TestSelectConfidenceCapped(t *testing.T) {
	s := NewSelector()
	task := tasks.Task{
		Title:  "security vulnerability auth encryption threat attack",
		Body:   "security vulnerability auth encryption threat attack safe",
		Labels: []string{"security", "vulnerability", "authentication"},
	}

	sel := s.Select(task)
	if sel.Persona != Security {
		t.Fatalf("Persona = %s, want security", sel.Persona)
	}
	if sel.Score <= maxPossibleScore {
		t.Fatalf("Score = %d, want above %d for this test", sel.Score, maxPossibleScore)
	}
	if math.Abs(sel.Confidence-0.95) > 1e-9 {
		t.Errorf("Confidence = %f, want 0.95 (capped ratio * base)", sel.Confidence)
	}
}

func TestForIssueType(t *testing.T) {
	s := NewSelector()

	got := s.ForIssueType("Documentation")
	if len(got) != 2 || got[0] != Mentor || got[1] != Scribe {
		t.Errorf("ForIssueType(documentation) = %v, want [mentor scribe]", got)
	}
	got = s.ForIssueType("no-such-type")
	if len(got) != 1 || got[0] != Fallback {
		t.Errorf("ForIssueType(unknown) = %v, want [%s]", got, Fallback)
	}
}

func TestEstimateComplexity(t *testing.T) {
	tests := []struct {
		name string
		task tasks.Task
		want Complexity
	}{
		{"empty", tasks.Task{}, ComplexityLow},
		{"short body", tasks.Task{Body: "one line"}, ComplexityLow},
		{"one label", tasks.Task{Labels: []string{"bug"}}, ComplexityLow},
		{"two labels", tasks.Task{Labels: []string{"bug", "ui"}}, ComplexityMedium},
		{"code block", tasks.Task{Body: "```go\nx := 1\n```"}, ComplexityMedium},
		{"21 lines", tasks.Task{Body: strings.Repeat("x\n", 21)}, ComplexityMedium},
		{"sections and code", tasks.Task{Body: "## Steps\n```sh\nmake\n```"}, ComplexityHigh},
		{"51 lines", tasks.Task{Body: strings.Repeat("x\n", 51)}, ComplexityHigh},
		{"four labels", tasks.Task{Labels: []string{"a", "b", "c", "d"}}, ComplexityHigh},
		{"sections only", tasks.Task{Body: "## Context\ntext"}, ComplexityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateComplexity(tt.task); got != tt.want {
				t.Errorf("EstimateComplexity() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWorkloadRecommendation(t *testing.T) {
	tests := []struct {
		persona Persona
		c       Complexity
		want    Workload
	}{
		{Frontend, ComplexityMedium, Workload{3, 120 * time.Minute}},
		{Architect, ComplexityLow, Workload{4, 45 * time.Minute}},
		{Security, ComplexityHigh, Workload{1, 960 * time.Minute}},
		{Security, ComplexityMedium, Workload{1, 240 * time.Minute}},
		{QA, ComplexityMedium, Workload{3, 156 * time.Minute}},
		{Performance, ComplexityHigh, Workload{1, 864 * time.Minute}},
		{Backend, Complexity("extreme"), Workload{}},
	}
	for _, tt := range tests {
		got := WorkloadRecommendation(tt.persona, tt.c)
		if got != tt.want {
			t.Errorf("WorkloadRecommendation(%s, %s) = %+v, want %+v", tt.persona, tt.c, got, tt.want)
		}
	}
}
