// Package agents describes worker agents and the collaborators that find and
// launch them. Agents are external processes (CI workflow runs); this package
// only tracks their identity and lifecycle state.
package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/agentrouter/internal/persona"
)

// Status is an agent's lifecycle state.
type Status string

const (
	StatusSpawning  Status = "spawning"
	StatusActive    Status = "active"
	StatusIdle      Status = "idle"
	StatusUnhealthy Status = "unhealthy"
	StatusOffline   Status = "offline"
)

// Record is the registry entry for one agent.
type Record struct {
	ID            string
	Type          string
	Persona       persona.Persona
	Status        Status
	CurrentTaskID string
	ExternalRef   string // e.g. workflow run id
	SpawnedAt     time.Time
	AssignedAt    time.Time
	EndedAt       time.Time // when the agent last went idle, offline or unhealthy
	LastError     string
}

// Available reports whether r can take new work of the given type and persona.
func (r Record) Available(agentType string, p persona.Persona) bool {
	return r.Status == StatusIdle && r.Type == agentType && r.Persona == p
}

// RunState is the state of the external run backing an agent.
type RunState string

const (
	RunInProgress RunState = "in_progress"
	RunSucceeded  RunState = "succeeded"
	RunFailed     RunState = "failed"
)

// Discovered is an agent run seen by a Directory. An empty State means
// the run is in progress.
type Discovered struct {
	ID          string
	Type        string
	Persona     persona.Persona
	ExternalRef string
	StartedAt   time.Time
	State       RunState
	Conclusion  string // e.g. "failure", "cancelled"
}

// Running reports whether the run is still going.
func (d Discovered) Running() bool {
	return d.State == "" || d.State == RunInProgress
}

// SpawnRequest describes an agent to launch.
type SpawnRequest struct {
	Type    string
	Persona persona.Persona
	TaskID  string
}

// Directory lists agent runs: those in progress and recently finished ones.
type Directory interface {
	Discover(ctx context.Context) ([]Discovered, error)
}

// Spawner launches new agents. Implementations return *SpawnError on failure.
type Spawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (Record, error)
}

// NewID returns a fresh agent id of the form "<type>-agent-<8 hex>".
func NewID(agentType string) string {
	t := strings.ToLower(strings.TrimSpace(agentType))
	if t == "" {
		t = "generic"
	}
	return fmt.Sprintf("%s-agent-%s", t, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

var defaultPersonas = map[string]persona.Persona{
	"development":   persona.Architect,
	"testing":       persona.QA,
	"security":      persona.Security,
	"documentation": persona.Scribe,
	"migration":     persona.Backend,
	"monitoring":    persona.DevOps,
}

// DefaultPersona returns the persona assumed for an agent of the given type
// when nothing more specific is known, such as for discovered agents.
func DefaultPersona(agentType string) persona.Persona {
	if p, ok := defaultPersonas[strings.ToLower(agentType)]; ok {
		return p
	}
	return persona.Fallback
}
