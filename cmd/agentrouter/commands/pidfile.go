package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/marcus/agentrouter/internal/db"
)

// pidFile records the pid of the running daemon next to the database.
type pidFile struct {
	path string
}

func defaultPidFile() pidFile {
	return pidFile{path: filepath.Join(filepath.Dir(db.DefaultPath()), "agentrouter.pid")}
}

func (f pidFile) write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating pid dir: %w", err)
	}
	return os.WriteFile(f.path, []byte(strconv.Itoa(pid)+"\n"), 0o600)
}

func (f pidFile) read() (int, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("corrupt pid file %s", f.path)
	}
	return pid, nil
}

// remove deletes the file; a missing file is not an error.
func (f pidFile) remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// exists reports whether a pid file is present, readable or not.
func (f pidFile) exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// running returns the recorded pid and whether that process is alive.
func (f pidFile) running() (int, bool) {
	pid, err := f.read()
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return p.Signal(syscall.Signal(0)) == nil
}

// terminate sends SIGTERM and waits up to grace for the process to exit,
// then sends SIGKILL. It reports whether the kill was needed.
func terminate(pid int, grace, poll time.Duration) (killed bool, err error) {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return false, fmt.Errorf("sending SIGTERM to %d: %w", pid, err)
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return false, nil
		}
		time.Sleep(poll)
	}
	_ = p.Signal(syscall.SIGKILL)
	return true, nil
}
