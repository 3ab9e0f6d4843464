package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/agentrouter/internal/config"
	"github.com/marcus/agentrouter/internal/db"
	"github.com/marcus/agentrouter/internal/hooks"
	"github.com/marcus/agentrouter/internal/integrations"
	"github.com/marcus/agentrouter/internal/logging"
	"github.com/marcus/agentrouter/internal/orchestrator"
	"github.com/marcus/agentrouter/internal/persona"
	"github.com/marcus/agentrouter/internal/tasks"
	"github.com/marcus/agentrouter/internal/telemetry"
)

// app bundles the collaborators a routing command needs.
type app struct {
	cfg    *config.Config
	db     *db.DB
	github *integrations.GitHub
	orch   *orchestrator.Orchestrator
	log    *logging.Logger
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) error {
	path := cfg.Logging.Path
	if path == "" {
		path = logging.DefaultDir()
	}
	return logging.Init(logging.Config{
		Level:         cfg.Logging.Level,
		Path:          path,
		Format:        cfg.Logging.Format,
		RetentionDays: cfg.Logging.RetentionDays,
	})
}

// applyVerbose lowers the log level to debug when --verbose is set.
func applyVerbose(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Logging.Level = "debug"
	}
}

// buildSink fans telemetry out to the log, the activity store and, when a
// dashboard URL is configured, the dashboard.
func buildSink(cfg *config.Config, database *db.DB) telemetry.Sink {
	sinks := []telemetry.Sink{
		telemetry.NewLogSink(logging.Component("telemetry")),
		telemetry.NewStoreSink(database),
	}
	if cfg.Telemetry.DashboardURL != "" {
		sinks = append(sinks, telemetry.NewHTTPSink(cfg.Telemetry.DashboardURL, nil))
	}
	return telemetry.Multi(sinks...)
}

// newApp wires the orchestrator to GitHub, the optional td source, the
// activity store and telemetry. The caller must Close the app.
func newApp(cfg *config.Config, handler orchestrator.EventHandler) (*app, error) {
	if err := config.RequireRepository(cfg); err != nil {
		return nil, err
	}

	limits, err := routingOptions(cfg)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Telemetry.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	gh := integrations.NewGitHubFromConfig(cfg)
	sources := []integrations.Source{gh}
	if cfg.TD.Enabled {
		sources = append(sources, integrations.NewTD(cfg.TD.Dir, nil))
	}
	mgr := integrations.NewManager(sources...)

	pipeline := hooks.New(
		hooks.WithLogger(logging.Component("hooks")),
		hooks.WithDefaultTimeout(cfg.HookTimeout()),
	)

	opts := append([]orchestrator.Option{
		orchestrator.WithDirectory(gh),
		orchestrator.WithSpawner(gh),
		orchestrator.WithTaskSource(mgr),
		orchestrator.WithNotifier(mgr),
		orchestrator.WithRecorder(database),
		orchestrator.WithSink(buildSink(cfg, database)),
		orchestrator.WithHooks(pipeline),
		orchestrator.WithRepository(gh.Repo()),
		orchestrator.WithStaleAfter(cfg.StaleAfter()),
		orchestrator.WithLogger(logging.Component("orchestrator")),
		orchestrator.WithEventHandler(handler),
	}, limits...)
	orch := orchestrator.New(opts...)

	return &app{
		cfg:    cfg,
		db:     database,
		github: gh,
		orch:   orch,
		log:    logging.Component("cli"),
	}, nil
}

// Close releases the database.
func (a *app) Close() error {
	return a.db.Close()
}

// routingOptions turns the orchestrator's pool, overflow and spawn grace
// settings into options.
func routingOptions(cfg *config.Config) ([]orchestrator.Option, error) {
	capacity := make(map[persona.Persona]int, len(cfg.Orchestrator.Capacity))
	for name, n := range cfg.Orchestrator.Capacity {
		p, ok := persona.Parse(name)
		if !ok {
			return nil, fmt.Errorf("orchestrator.capacity: unknown persona %q", name)
		}
		capacity[p] = n
	}
	overflow, ok := orchestrator.ParseOverflow(strings.ToLower(cfg.Orchestrator.Overflow))
	if !ok {
		return nil, fmt.Errorf("orchestrator.overflow: %w: %q", config.ErrInvalidOverflow, cfg.Orchestrator.Overflow)
	}
	return []orchestrator.Option{
		orchestrator.WithCapacity(capacity),
		orchestrator.WithOverflow(overflow),
		orchestrator.WithSpawnGrace(cfg.SpawnGrace()),
	}, nil
}

// routeCycle is one scheduled pass: reconcile the registry with running
// workflows, rebalance the backlog, retry the queue, then drop long-dead
// agents.
func (a *app) routeCycle(ctx context.Context) error {
	start := time.Now()

	reconciled, err := a.orch.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	rebalanced, err := a.orch.RebalanceWorkload(ctx)
	if err != nil {
		return fmt.Errorf("rebalance: %w", err)
	}
	drained, err := a.orch.DrainQueue(ctx)
	if err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}
	removed := a.orch.Cleanup(a.cfg.CleanupAfter())

	a.log.InfoCtx("route cycle complete", map[string]any{
		"duration":  time.Since(start).String(),
		"completed": reconciled.Completed,
		"failed":    reconciled.Failed + reconciled.Lost,
		"fetched":   rebalanced.Fetched,
		"routed":    rebalanced.Routed + drained.Routed,
		"requeued":  rebalanced.Requeued + drained.Requeued,
		"skipped":   rebalanced.Skipped + drained.Skipped,
		"queued":    a.orch.QueueStats().Total,
		"cleaned":   len(removed),
		"hook_runs": a.orch.Hooks().Metrics().Executions,
	})
	return nil
}

// taskFromFlags builds an inline task from --title, --body, --label and --issue.
func taskFromFlags(cmd *cobra.Command) (tasks.Task, error) {
	title, _ := cmd.Flags().GetString("title")
	body, _ := cmd.Flags().GetString("body")
	labels, _ := cmd.Flags().GetStringSlice("label")
	issue, _ := cmd.Flags().GetInt("issue")

	if strings.TrimSpace(title) == "" && strings.TrimSpace(body) == "" {
		return tasks.Task{}, fmt.Errorf("a --title or --body is required")
	}

	id := fmt.Sprintf("cli-%d", time.Now().Unix())
	if issue > 0 {
		id = fmt.Sprintf("gh-%d", issue)
	}
	t := tasks.New(id, title, body, labels...)
	t.Number = issue
	t.Source = "cli"
	if issue > 0 {
		t.Source = "github"
	}
	return t, nil
}

func addTaskFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("title", "t", "", "Task title")
	cmd.Flags().StringP("body", "b", "", "Task body")
	cmd.Flags().StringSliceP("label", "l", nil, "Task label (repeatable)")
	cmd.Flags().IntP("issue", "i", 0, "GitHub issue number the task belongs to")
}
