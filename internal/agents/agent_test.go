package agents

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/marcus/agentrouter/internal/persona"
)

func TestNewID(t *testing.T) {
	re := regexp.MustCompile(`^[a-z]+-agent-[0-9a-f]{8}$`)

	tests := []struct {
		in     string
		prefix string
	}{
		{"development", "development-agent-"},
		{" Security ", "security-agent-"},
		{"", "generic-agent-"},
	}
	for _, tt := range tests {
		id := NewID(tt.in)
		if !strings.HasPrefix(id, tt.prefix) || !re.MatchString(id) {
			t.Errorf("NewID(%q) = %q, want %s<8 hex>", tt.in, id, tt.prefix)
		}
	}

	if NewID("qa") == NewID("qa") {
		t.Error("NewID returned the same id twice")
	}
}

func TestRecordAvailable(t *testing.T) {
	r := Record{Type: "testing", Persona: persona.QA, Status: StatusIdle}

	tests := []struct {
		name    string
		rec     Record
		typ     string
		persona persona.Persona
		want    bool
	}{
		{"match", r, "testing", persona.QA, true},
		{"wrong type", r, "development", persona.QA, false},
		{"wrong persona", r, "testing", persona.Security, false},
		{"busy", Record{Type: "testing", Persona: persona.QA, Status: StatusActive}, "testing", persona.QA, false},
		{"spawning", Record{Type: "testing", Persona: persona.QA, Status: StatusSpawning}, "testing", persona.QA, false},
	}
	for _, tt := range tests {
		if got := tt.rec.Available(tt.typ, tt.persona); got != tt.want {
			t.Errorf("%s: Available() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("workflow not found")

	var err error = &SpawnError{Type: "security", Persona: "security", Err: cause}
	var serr *SpawnError
	if !errors.As(err, &serr) || !errors.Is(err, cause) {
		t.Errorf("SpawnError does not unwrap to its cause: %v", err)
	}
	if !strings.Contains(err.Error(), "security agent") {
		t.Errorf("Error() = %q", err.Error())
	}

	err = &DiscoveryError{Source: "gh", Err: cause}
	var derr *DiscoveryError
	if !errors.As(err, &derr) || !errors.Is(err, cause) {
		t.Errorf("DiscoveryError does not unwrap to its cause: %v", err)
	}
}

func TestDiscoveredRunning(t *testing.T) {
	tests := []struct {
		state RunState
		want  bool
	}{
		{"", true},
		{RunInProgress, true},
		{RunSucceeded, false},
		{RunFailed, false},
	}
	for _, tt := range tests {
		if got := (Discovered{State: tt.state}).Running(); got != tt.want {
			t.Errorf("Discovered{State: %q}.Running() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
