package agents

import (
	"time"

	"github.com/marcus/agentrouter/internal/persona"
)

// Assignment is a task handed to an agent.
type Assignment struct {
	AgentID        string
	AgentType      string
	Persona        persona.Persona
	Confidence     float64
	TaskID         string
	IssueNumber    int
	Priority       string
	EstimatedHours int
	AssignedAt     time.Time
	Fallback       bool // preferred persona pool was full
	Overload       bool // every pool was full; placed on the least loaded
}
