package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/marcus/agentrouter/internal/hooks"
	"github.com/marcus/agentrouter/internal/logging"
	"github.com/marcus/agentrouter/internal/telemetry"
)

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Inspect and exercise the hook pipeline",
}

var hooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in hooks per channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := hooks.New(hooks.WithLogger(logging.Nop()))
		if err := hooks.RegisterDefaults(p, telemetry.Nop); err != nil {
			return err
		}
		listHooks(os.Stdout, p)
		return nil
	},
}

var hooksFireCmd = &cobra.Command{
	Use:   "fire <channel> [--set key=value...]",
	Short: "Run a channel's built-in hooks with a payload",
	Long: `Execute the built-in hooks registered on a channel and print the outcome,
the telemetry they emit, and the trace spans recorded for the run.

Example:
  agentrouter hooks fire issueAssigned --set issue_number=42 --set agent_id=dev-1`,
	Args: cobra.ExactArgs(1),
	RunE: runHooksFire,
}

func init() {
	hooksFireCmd.Flags().StringArray("set", nil, "Payload field as key=value (repeatable)")
	hooksCmd.AddCommand(hooksListCmd)
	hooksCmd.AddCommand(hooksFireCmd)
	rootCmd.AddCommand(hooksCmd)
}

func listHooks(w io.Writer, p *hooks.Pipeline) {
	registered := p.List()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tHOOK\tPRIORITY\tMODE\tTIMEOUT")
	for _, ch := range hooks.Channels() {
		for _, h := range registered[ch] {
			mode, timeout := "sync", "-"
			if h.Async {
				mode, timeout = "async", h.Timeout.String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", ch, h.Name, h.Priority, mode, timeout)
		}
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d hooks registered\n", p.Metrics().RegisteredHooks)
}

// parsePayload turns key=value pairs into a payload. Integer values are
// stored as ints so issue and PR numbers render naturally.
func parsePayload(pairs []string) (hooks.Payload, error) {
	p := hooks.Payload{}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", pair)
		}
		if n, err := strconv.Atoi(v); err == nil {
			p[k] = n
		} else {
			p[k] = v
		}
	}
	return p, nil
}

func runHooksFire(cmd *cobra.Command, args []string) error {
	ch, ok := hooks.ParseChannel(args[0])
	if !ok {
		names := make([]string, 0, len(hooks.Channels()))
		for _, c := range hooks.Channels() {
			names = append(names, c.String())
		}
		return fmt.Errorf("unknown channel %q (one of: %s)", args[0], strings.Join(names, ", "))
	}

	pairs, _ := cmd.Flags().GetStringArray("set")
	payload, err := parsePayload(pairs)
	if err != nil {
		return err
	}

	return fireHooks(cmd.Context(), os.Stdout, ch, payload)
}

func fireHooks(ctx context.Context, w io.Writer, ch hooks.Channel, payload hooks.Payload) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s := newOutStyles()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var (
		mu      sync.Mutex
		emitted []telemetry.Event
	)
	sink := telemetry.SinkFunc(func(_ context.Context, e telemetry.Event) error {
		mu.Lock()
		emitted = append(emitted, e)
		mu.Unlock()
		return nil
	})

	p := hooks.New(hooks.WithLogger(logging.Nop()), hooks.WithTracerProvider(tp))
	if err := hooks.RegisterDefaults(p, sink); err != nil {
		return err
	}

	out, execErr := p.Execute(ctx, ch, payload)
	if out != nil {
		fmt.Fprintf(w, "%s %s in %s\n", s.Title.Render("Channel"), ch, out.Duration)
		for _, r := range out.Results {
			status := s.Success.Render("ok")
			if !r.Success {
				status = s.Error.Render("failed: " + r.Err.Error())
			}
			fmt.Fprintf(w, "  %-32s %-10s %s\n", r.Hook, r.Duration, status)
		}
		if len(out.Results) == 0 {
			fmt.Fprintln(w, s.Muted.Render("  no hooks on this channel"))
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(emitted) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.Title.Render("Telemetry"))
		for _, e := range emitted {
			fmt.Fprintf(w, "  %s/%s %s\n", e.Kind, e.Type, e.Title)
		}
	}

	spans := rec.Ended()
	if len(spans) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.Title.Render("Spans"))
		for _, sp := range spans {
			fmt.Fprintf(w, "  %-32s %s %s\n", sp.Name(), sp.EndTime().Sub(sp.StartTime()), sp.Status().Code)
		}
	}
	return execErr
}
