package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/orchestrator"
	"github.com/marcus/agentrouter/internal/persona"
	"github.com/marcus/agentrouter/internal/tasks"
)

var classifyCmd = &cobra.Command{
	Use:   "classify --title <title> [--body <body>] [--label <label>...]",
	Short: "Classify a task without routing it",
	Long: `Show the task type, priority, complexity and persona a task would get.

Nothing is spawned or assigned; no configuration is required.
Use --json for structured output.`,
	RunE: runClassify,
}

var routeCmd = &cobra.Command{
	Use:   "route --title <title> [--body <body>] [--label <label>...] [--issue N]",
	Short: "Route a single task to an agent",
	Long: `Classify a task, pick a persona, and assign it to an idle agent or
launch a new agent workflow for it.

With --issue the assignment is announced on the GitHub issue.
Use --dry-run to print the analysis without spawning anything.`,
	RunE: runRoute,
}

func init() {
	addTaskFlags(classifyCmd)
	classifyCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(classifyCmd)

	addTaskFlags(routeCmd)
	routeCmd.Flags().Bool("dry-run", false, "Print the analysis without routing")
	rootCmd.AddCommand(routeCmd)
}

// analysis is the JSON form of the classify command.
type analysis struct {
	TaskID             string           `json:"task_id"`
	Type               string           `json:"type"`
	Priority           string           `json:"priority"`
	Complexity         float64          `json:"complexity"`
	EstimatedHours     int              `json:"estimated_hours"`
	RequiresSpecialist bool             `json:"requires_specialist"`
	Persona            persona.Persona  `json:"persona"`
	Confidence         float64          `json:"confidence"`
	Workload           persona.Workload `json:"workload"`
}

func analyze(task tasks.Task) (orchestrator.Classification, persona.Selection, analysis) {
	cls := orchestrator.Classify(task)
	sel := persona.NewSelector().Select(task)
	return cls, sel, analysis{
		TaskID:             task.ID,
		Type:               cls.Type,
		Priority:           cls.Priority,
		Complexity:         cls.Complexity,
		EstimatedHours:     cls.EstimatedHours(),
		RequiresSpecialist: cls.RequiresSpecialist,
		Persona:            sel.Persona,
		Confidence:         sel.Confidence,
		Workload:           persona.WorkloadRecommendation(sel.Persona, persona.EstimateComplexity(task)),
	}
}

func runClassify(cmd *cobra.Command, args []string) error {
	task, err := taskFromFlags(cmd)
	if err != nil {
		return err
	}
	cls, sel, a := analyze(task)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(os.Stdout, a)
	}
	printAnalysis(os.Stdout, cls, sel)
	fmt.Printf("  %-14s %d concurrent, ~%s each\n", "Workload:", a.Workload.MaxConcurrent, a.Workload.EstimatedTime)
	return nil
}

func runRoute(cmd *cobra.Command, args []string) error {
	task, err := taskFromFlags(cmd)
	if err != nil {
		return err
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cls, sel, _ := analyze(task)
		printAnalysis(os.Stdout, cls, sel)
		return nil
	}

	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	if err := a.orch.Initialize(ctx); err != nil {
		return err
	}

	assignment, err := a.orch.RouteIssue(ctx, task)
	if err != nil {
		var spawnErr *agents.SpawnError
		if errors.As(err, &spawnErr) {
			return fmt.Errorf("could not launch a %s agent: %w", spawnErr.Type, err)
		}
		return fmt.Errorf("route %s: %w", task.Ref(), err)
	}
	printAssignment(os.Stdout, *assignment)
	return nil
}
