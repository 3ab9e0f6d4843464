package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/agentrouter/internal/config"
	"github.com/marcus/agentrouter/internal/logging"
	"github.com/marcus/agentrouter/internal/scheduler"
)

// stopGrace is how long daemon stop waits after SIGTERM before SIGKILL.
const stopGrace = 10 * time.Second

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run routing on a schedule in the background",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the routing daemon",
	Long: `Start the routing daemon, detached unless --foreground is given.

Each scheduled cycle reconciles the agent registry with running workflows,
routes the unassigned backlog, retries queued tasks and drops agents that
have been dead longer than orchestrator.cleanup_after. Cycles never overlap
and only start inside schedule.window when one is set.`,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the routing daemon (SIGTERM, then SIGKILL after 10s)",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the routing daemon is running",
	RunE:  runDaemonStatus,
}

var daemonForegroundFlag bool

func init() {
	daemonStartCmd.Flags().BoolVarP(&daemonForegroundFlag, "foreground", "f", false, "run in the foreground")
	daemonCmd.AddCommand(daemonStartCmd, daemonStopCmd, daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if pid, ok := defaultPidFile().running(); ok {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.RequireRepository(cfg); err != nil {
		return err
	}
	if cfg.Schedule.Cron == "" && cfg.Schedule.Interval == "" {
		return errors.New("daemon needs schedule.cron or schedule.interval in config")
	}

	if daemonForegroundFlag {
		applyVerbose(cmd, cfg)
		return runDaemonLoop(cfg)
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	child := exec.Command(executable, "daemon", "start", "--foreground")
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "daemon started (pid %d)\n", child.Process.Pid)
	return nil
}

// runDaemonLoop routes once at start (inside the window), then on every
// scheduled tick until SIGINT or SIGTERM.
func runDaemonLoop(cfg *config.Config) error {
	if err := initLogging(cfg); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	log := logging.Component("daemon")

	pf := defaultPidFile()
	if err := pf.write(os.Getpid()); err != nil {
		return fmt.Errorf("pid file: %w", err)
	}
	defer func() { _ = pf.remove() }()

	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sched, err := scheduler.NewFromConfig(&cfg.Schedule)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	sched.AddJob(a.routeCycle)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.orch.Initialize(ctx); err != nil {
		return err
	}
	log.InfoCtx("daemon starting", map[string]any{
		"repo":     cfg.Repository.Slug(),
		"schedule": strings.TrimSpace(describeSchedule(&cfg.Schedule)),
	})

	if sched.IsInWindow(time.Now()) {
		if err := sched.RunNow(ctx); err != nil {
			log.ErrorCtx("initial route cycle failed", map[string]any{"error": err.Error()})
		}
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("scheduler start: %w", err)
	}
	log.InfoCtx("daemon running", map[string]any{"next_run": sched.NextRun().Format(time.RFC3339)})

	<-ctx.Done()
	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
		log.ErrorCtx("scheduler stop failed", map[string]any{"error": err.Error()})
	}
	log.InfoCtx("daemon stopped", map[string]any{
		"runs":           sched.Runs(),
		"skipped":        sched.Skipped(),
		"outside_window": sched.OutsideWindow(),
	})
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	pf := defaultPidFile()

	pid, ok := pf.running()
	if !ok {
		msg := "daemon not running"
		if pf.exists() {
			_ = pf.remove()
			msg += " (stale pid file removed)"
		}
		fmt.Fprintln(out, msg)
		return nil
	}

	fmt.Fprintf(out, "stopping daemon (pid %d)...\n", pid)
	killed, err := terminate(pid, stopGrace, 100*time.Millisecond)
	if err != nil {
		return err
	}
	_ = pf.remove()
	if killed {
		fmt.Fprintln(out, "daemon did not stop in time, sent SIGKILL")
		return nil
	}
	fmt.Fprintln(out, "daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	pf := defaultPidFile()

	pid, ok := pf.running()
	if !ok {
		fmt.Fprintln(out, "Status: not running")
		return nil
	}
	fmt.Fprintf(out, "Status: running\nPID: %d\n", pid)
	if cfg, err := config.Load(); err == nil {
		fmt.Fprint(out, describeSchedule(&cfg.Schedule))
	}
	fmt.Fprintf(out, "PID file: %s\n", pf.path)
	return nil
}

// describeSchedule renders the schedule section for status output.
func describeSchedule(s *config.ScheduleConfig) string {
	var b strings.Builder
	switch {
	case s.Cron != "":
		fmt.Fprintf(&b, "Schedule: cron %s\n", s.Cron)
	case s.Interval != "":
		fmt.Fprintf(&b, "Schedule: every %s\n", s.Interval)
	default:
		return ""
	}
	if s.Window != nil {
		fmt.Fprintf(&b, "Window: %s - %s", s.Window.Start, s.Window.End)
		if s.Window.Timezone != "" {
			fmt.Fprintf(&b, " (%s)", s.Window.Timezone)
		}
		b.WriteString("\n")
	}
	return b.String()
}
