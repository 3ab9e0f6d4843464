package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/marcus/agentrouter/internal/persona"
)

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List specialist personas",
	Long:  `List the personas tasks are matched against, with their focus areas.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(os.Stdout, allProfiles())
		}
		listPersonas(os.Stdout)
		return nil
	},
}

var personasShowCmd = &cobra.Command{
	Use:   "show <persona>",
	Short: "Show a persona's profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, ok := persona.Parse(args[0])
		if !ok {
			return fmt.Errorf("unknown persona %q (see 'agentrouter personas')", args[0])
		}
		return showPersona(os.Stdout, p)
	},
}

func init() {
	personasCmd.Flags().Bool("json", false, "Output as JSON")
	personasCmd.AddCommand(personasShowCmd)
	rootCmd.AddCommand(personasCmd)
}

func allProfiles() []persona.Profile {
	var out []persona.Profile
	for _, p := range persona.All() {
		if prof, ok := persona.Lookup(p); ok {
			out = append(out, prof)
		}
	}
	return out
}

func listPersonas(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERSONA\tCONFIDENCE\tFOCUS")
	for _, prof := range allProfiles() {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\n", prof.Name, prof.Confidence, strings.Join(prof.Focus, ", "))
	}
	_ = tw.Flush()
}

func showPersona(w io.Writer, p persona.Persona) error {
	prof, ok := persona.Lookup(p)
	if !ok {
		return fmt.Errorf("unknown persona %v", p)
	}
	s := newOutStyles()
	fmt.Fprintln(w, s.Title.Render(p.String()))
	s.field(w, "Focus", strings.Join(prof.Focus, ", "))
	s.field(w, "Keywords", strings.Join(prof.Keywords, ", "))
	s.field(w, "Issue types", strings.Join(prof.IssueTypes, ", "))
	s.field(w, "Confidence", fmt.Sprintf("%.2f", prof.Confidence))

	collab := persona.Collaborators(p)
	if len(collab) > 0 {
		names := make([]string, len(collab))
		for i, c := range collab {
			names[i] = c.String()
		}
		s.field(w, "Collaborators", strings.Join(names, ", "))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Title.Render("Workload"))
	for _, c := range []persona.Complexity{persona.ComplexityLow, persona.ComplexityMedium, persona.ComplexityHigh} {
		wl := persona.WorkloadRecommendation(p, c)
		s.field(w, string(c), fmt.Sprintf("%d concurrent, ~%s each", wl.MaxConcurrent, wl.EstimatedTime))
	}
	return nil
}
