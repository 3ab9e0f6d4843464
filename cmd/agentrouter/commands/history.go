package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/agentrouter/internal/db"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show assignment history",
	Long: `Show recent task assignments recorded in the activity database.

Use --events to show lifecycle events instead, optionally for one --agent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		last, _ := cmd.Flags().GetInt("last")
		events, _ := cmd.Flags().GetBool("events")
		agentID, _ := cmd.Flags().GetString("agent")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := db.Open(cfg.Telemetry.DBPath)
		if err != nil {
			return fmt.Errorf("opening db: %w", err)
		}
		defer func() { _ = database.Close() }()

		ctx := cmd.Context()
		if events || agentID != "" {
			rows, err := database.RecentEvents(ctx, agentID, last)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(os.Stdout, rows)
			}
			printEvents(os.Stdout, rows)
			return nil
		}

		rows, err := database.Assignments(ctx, last)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(os.Stdout, rows)
		}
		printAssignments(os.Stdout, rows)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("last", "n", 20, "Show last N entries")
	historyCmd.Flags().Bool("events", false, "Show lifecycle events")
	historyCmd.Flags().String("agent", "", "Only show events for this agent")
	historyCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(historyCmd)
}

func printAssignments(w io.Writer, rows []db.AssignmentRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No assignments recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSIGNED\tTASK\tAGENT\tPERSONA\tTYPE\tCONFIDENCE\tSTATUS")
	for _, a := range rows {
		status := "open"
		if a.CompletedAt != nil {
			status = "done in " + a.CompletedAt.Sub(a.AssignedAt).Round(time.Minute).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
			a.AssignedAt.Local().Format("2006-01-02 15:04"),
			a.TaskID, a.AgentID, a.Persona, a.TaskType, a.Confidence*100, status)
	}
	_ = tw.Flush()
}

func printEvents(w io.Writer, rows []db.EventRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tTYPE\tAGENT\tTITLE")
	for _, e := range rows {
		title := e.Title
		if e.Value != nil {
			title = fmt.Sprintf("%s=%.0f", e.Type, *e.Value)
		}
		agent := e.AgentID
		if agent == "" {
			agent = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Type, agent, title)
	}
	_ = tw.Flush()
}
