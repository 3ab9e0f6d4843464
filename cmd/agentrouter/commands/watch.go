package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/agentrouter/internal/config"
	"github.com/marcus/agentrouter/internal/logging"
	"github.com/marcus/agentrouter/internal/orchestrator"
	"github.com/marcus/agentrouter/internal/scheduler"
	"github.com/marcus/agentrouter/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Route on schedule with a live dashboard",
	Long: `Run the routing loop in the foreground with a terminal dashboard showing
agents, the pending queue and orchestrator events.

Uses the configured schedule, or --interval when none is set.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("interval", 5*time.Minute, "Routing interval when no schedule is configured")
	watchCmd.Flags().Duration("refresh", ui.DefaultRefresh, "Dashboard refresh interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyVerbose(cmd, cfg)
	if err := initLogging(cfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logging.Component("watch")

	interval, _ := cmd.Flags().GetDuration("interval")
	refresh, _ := cmd.Flags().GetDuration("refresh")

	sched, err := watchScheduler(&cfg.Schedule, interval)
	if err != nil {
		return err
	}

	// The dashboard polls a and sched; a is set before the program starts.
	var a *app
	model := ui.New(func() ui.Snapshot {
		if a == nil {
			return ui.Snapshot{}
		}
		return ui.Snapshot{
			Health:  a.orch.HealthCheck(),
			Queue:   a.orch.Queued(),
			Hooks:   a.orch.Hooks().Metrics(),
			NextRun: sched.NextRun(),
		}
	})
	model.SetRefresh(refresh)
	prog := model.Program()

	a, err = newApp(cfg, func(e orchestrator.Event) {
		// Blocks until the program starts; a no-op once it has exited.
		prog.Send(ui.EventMsg(e))
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	sched.AddJob(a.routeCycle)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	bootDone := make(chan struct{})
	go func() {
		defer close(bootDone)
		if err := a.orch.Initialize(ctx); err != nil {
			log.ErrorCtx("initialize failed", map[string]any{"error": err.Error()})
			return
		}
		if err := sched.RunNow(ctx); err != nil {
			log.ErrorCtx("route cycle failed", map[string]any{"error": err.Error()})
		}
		if err := sched.Start(ctx); err != nil {
			log.ErrorCtx("start scheduler", map[string]any{"error": err.Error()})
		}
	}()

	_, runErr := prog.Run()
	cancel()
	<-bootDone
	if sched.IsRunning() {
		_ = sched.Stop()
	}
	return runErr
}

// watchScheduler uses the configured schedule, falling back to interval.
func watchScheduler(cfg *config.ScheduleConfig, interval time.Duration) (*scheduler.Scheduler, error) {
	if cfg.Cron != "" || cfg.Interval != "" {
		return scheduler.NewFromConfig(cfg)
	}
	s := scheduler.New()
	if err := s.SetInterval(interval); err != nil {
		return nil, err
	}
	if err := s.SetWindow(cfg.Window); err != nil {
		return nil, err
	}
	return s, nil
}
