package hooks

import (
	"errors"
	"fmt"
)

// Sentinel causes.
var (
	ErrUnknownChannel = errors.New("unknown hook channel")
	ErrNilHandler     = errors.New("hook handler is nil")
	ErrHookTimeout    = errors.New("hook timed out")
	ErrHookPanic      = errors.New("hook panicked")
)

// ValidationError reports a registration or execution request that names
// something the pipeline does not know.
type ValidationError struct {
	Field string
	Value any
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("hooks: invalid %s %v: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// HookError is a single hook's failure. On critical channels Execute
// returns it; elsewhere it is only logged.
type HookError struct {
	Channel Channel
	Hook    string
	Err     error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %q on %s: %v", e.Hook, e.Channel, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Is matches any *HookError when the target carries no hook name, so callers
// can test errors.Is(err, &HookError{}).
func (e *HookError) Is(target error) bool {
	t, ok := target.(*HookError)
	if !ok {
		return false
	}
	return t.Hook == "" || (t.Hook == e.Hook && t.Channel == e.Channel)
}
