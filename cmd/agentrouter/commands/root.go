// Package commands implements the agentrouter CLI commands using cobra.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "agentrouter",
	Short: "Route tracker issues to specialist AI agents",
	Long: `Agentrouter classifies open issues, picks a specialist persona for each,
and assigns it to a running agent or launches a new agent workflow.

Configure the repository in agentrouter.yaml and run "agentrouter daemon start"
to rebalance the backlog on a schedule.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose output")
}
