package orchestrator

import (
	"errors"
	"fmt"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/persona"
	"github.com/marcus/agentrouter/internal/tasks"
)

// Overflow decides what happens to a task whose persona pool is full.
type Overflow int

const (
	// OverflowQueue fails the routing attempt with a *CapacityError so the
	// task waits in the queue for a later drain.
	OverflowQueue Overflow = iota
	// OverflowFallback places the task on the first persona in
	// fallbackOrder with a free slot, or on the least loaded pool.
	OverflowFallback
)

// ParseOverflow maps "queue" and "fallback" onto an Overflow.
func ParseOverflow(s string) (Overflow, bool) {
	switch s {
	case "", "queue":
		return OverflowQueue, true
	case "fallback":
		return OverflowFallback, true
	}
	return OverflowQueue, false
}

// ErrAtCapacity is matched by every *CapacityError.
var ErrAtCapacity = errors.New("agent pool at capacity")

// CapacityError reports a persona pool with no free slot.
type CapacityError struct {
	Persona  persona.Persona
	Load     int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s pool at capacity (%d/%d)", e.Persona, e.Load, e.Capacity)
}

// Is matches ErrAtCapacity.
func (e *CapacityError) Is(target error) bool { return target == ErrAtCapacity }

// fallbackOrder is the order pools are tried when the preferred one is full.
var fallbackOrder = []persona.Persona{
	persona.Architect,
	persona.Frontend,
	persona.Backend,
	persona.QA,
	persona.DevOps,
	persona.Security,
	persona.Performance,
	persona.Refactorer,
	persona.Scribe,
}

// placement records how a task ended up on its persona.
type placement struct {
	fallback bool
	overload bool
}

// poolSize is the configured pool for p; 0 means unbounded.
func (o *Orchestrator) poolSize(p persona.Persona) int {
	return o.capacity[p]
}

// taskLimit is the concurrency limit for one task on persona p: the pool
// size, tightened by the persona's recommended concurrency for the task's
// complexity. Unbounded pools stay unbounded.
func (o *Orchestrator) taskLimit(p persona.Persona, task tasks.Task) int {
	pool := o.poolSize(p)
	if pool <= 0 {
		return 0
	}
	return min(pool, persona.WorkloadRecommendation(p, persona.EstimateComplexity(task)).MaxConcurrent)
}

// loadLocked counts agents of persona p that hold or are about to hold a
// task. Callers must hold mu.
func (o *Orchestrator) loadLocked(p persona.Persona) int {
	n := 0
	for _, rec := range o.registry {
		if rec.Persona != p {
			continue
		}
		if rec.Status == agents.StatusActive || rec.Status == agents.StatusSpawning {
			n++
		}
	}
	return n
}

// Load returns the number of spawning or active agents per persona.
func (o *Orchestrator) Load() map[persona.Persona]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[persona.Persona]int)
	for _, rec := range o.registry {
		if rec.Status == agents.StatusActive || rec.Status == agents.StatusSpawning {
			out[rec.Persona]++
		}
	}
	return out
}

// fallbackPersona picks the pool a task goes to when preferred is full:
// the first persona in fallbackOrder under its pool size, else the least
// loaded of all candidates (an overload placement).
func (o *Orchestrator) fallbackPersona(preferred persona.Persona) (persona.Persona, placement) {
	o.mu.Lock()
	defer o.mu.Unlock()

	least, leastLoad := preferred, o.loadLocked(preferred)
	for _, p := range fallbackOrder {
		if p == preferred {
			continue
		}
		load := o.loadLocked(p)
		if size := o.poolSize(p); size <= 0 || load < size {
			return p, placement{fallback: true}
		}
		if load < leastLoad {
			least, leastLoad = p, load
		}
	}
	return least, placement{fallback: true, overload: true}
}
