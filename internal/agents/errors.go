package agents

import (
	"errors"
	"fmt"
)

// ErrUnknownAgent is returned for operations on an id not in the registry.
var ErrUnknownAgent = errors.New("unknown agent")

// SpawnError reports a failed agent launch. The task that triggered the
// spawn is left unassigned.
type SpawnError struct {
	Type    string
	Persona string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %s agent (%s): %v", e.Type, e.Persona, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// DiscoveryError reports a failed lookup of running agents.
type DiscoveryError struct {
	Source string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovering agents via %s: %v", e.Source, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }
