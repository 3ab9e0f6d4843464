package orchestrator

import "time"

// EventType classifies orchestrator lifecycle events.
type EventType int

const (
	EventAgentDiscovered EventType = iota // agent found by the directory
	EventAgentSpawned                     // spawner launched a new agent
	EventTaskAssigned                     // task handed to an agent
	EventTaskQueued                       // task buffered for a later drain
	EventAgentCompleted                   // agent finished its task
	EventAgentError                       // agent reported a failure
	EventAgentRemoved                     // agent deregistered or cleaned up
	EventRebalance                        // backlog reconciliation finished
)

var eventNames = [...]string{
	EventAgentDiscovered: "agent_discovered",
	EventAgentSpawned:    "agent_spawned",
	EventTaskAssigned:    "task_assigned",
	EventTaskQueued:      "task_queued",
	EventAgentCompleted:  "agent_completed",
	EventAgentError:      "agent_error",
	EventAgentRemoved:    "agent_removed",
	EventRebalance:       "rebalance",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[t]
}

// Event carries data about an orchestrator lifecycle event.
type Event struct {
	Type    EventType
	Time    time.Time
	AgentID string
	TaskID  string
	Persona string
	Message string // human-readable message
	Error   string // error message if applicable
}

// EventHandler is a callback that receives orchestrator events.
// It is called synchronously and must not call back into the Orchestrator.
type EventHandler func(Event)
