package integrations

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrCommandFailed marks a gh or td invocation that could not start or
// exited non-zero.
var ErrCommandFailed = errors.New("command failed")

// Invocation is one run of an external tracker CLI.
type Invocation struct {
	Tool string
	Args []string
	Dir  string
}

func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Tool}, inv.Args...), " ")
}

func (inv Invocation) verb() string {
	if len(inv.Args) == 0 {
		return ""
	}
	return inv.Args[0]
}

// Runner runs tracker CLIs and returns their stdout. Failures are
// *CommandError. Tests swap in a scripted Runner.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (string, error)
}

// CommandError describes a failed invocation.
type CommandError struct {
	Tool     string
	Verb     string
	ExitCode int // -1 when the process never ran
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := e.Stderr
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s %s: exit %d: %s", e.Tool, e.Verb, e.ExitCode, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Is matches ErrCommandFailed.
func (e *CommandError) Is(target error) bool { return target == ErrCommandFailed }

// ExecRunner runs invocations as child processes.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, inv Invocation) (string, error) {
	cmd := exec.CommandContext(ctx, inv.Tool, inv.Args...)
	cmd.Dir = inv.Dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return stdout.String(), &CommandError{
		Tool:     inv.Tool,
		Verb:     inv.verb(),
		ExitCode: code,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
}
