package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report on running agents",
	Long: `Discover agent workflow runs in the repository and report their health.

Agents that have been active longer than orchestrator.stale_after are
reported stale. Use --json for structured output.`,
	RunE: runHealth,
}

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Route the open backlog once",
	Long: `Fetch the unassigned backlog from every configured source and route each
task to an agent. Tasks that cannot be routed are retried once from the
pending queue before the command exits.`,
	RunE: runRebalance,
}

func init() {
	healthCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(healthCmd)
	rebalanceCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(rebalanceCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := a.orch.Initialize(cmd.Context()); err != nil {
		return err
	}
	report := a.orch.HealthCheck()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(os.Stdout, report)
	}
	printHealth(os.Stdout, report)
	return nil
}

func runRebalance(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if err := a.orch.Initialize(ctx); err != nil {
		return err
	}

	rebalanced, err := a.orch.RebalanceWorkload(ctx)
	if err != nil {
		return fmt.Errorf("rebalance: %w", err)
	}
	drained, err := a.orch.DrainQueue(ctx)
	if err != nil {
		return fmt.Errorf("drain queue: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(os.Stdout, map[string]any{
			"rebalance": rebalanced,
			"retry":     drained,
			"queued":    a.orch.Queued(),
		})
	}

	printRouteReport(os.Stdout, "Rebalance", rebalanced)
	fmt.Println()
	printRouteReport(os.Stdout, "Retry", drained)
	if n := a.orch.QueueStats().Total; n > 0 {
		fmt.Printf("\n%d tasks still unrouted; the daemon will retry them\n", n)
	}
	return nil
}

// setupApp loads config, initializes logging and wires the app.
func setupApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	applyVerbose(cmd, cfg)
	if err := initLogging(cfg); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return newApp(cfg, nil)
}
