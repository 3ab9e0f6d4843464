package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus/agentrouter/internal/logging"
	"github.com/marcus/agentrouter/internal/telemetry"
)

// Payload keys shared by the orchestrator and the default hooks.
const (
	KeyAgentID          = "agent_id"
	KeyAgentType        = "agent_type"
	KeyTaskID           = "task_id"
	KeyIssueNumber      = "issue_number"
	KeyPersona          = "persona"
	KeyConfidence       = "confidence"
	KeyPRNumber         = "pr_number"
	KeyError            = "error"
	KeyDescription      = "description"
	KeyMetadata         = "metadata"
	KeyTool             = "tool"
	KeyPerformanceStart = "performance_start"
	KeyDuration         = "duration"
	KeyType             = "type"
	KeyTitle            = "title"
	KeyMessage          = "message"
	KeyPriority         = "priority"
	KeyWorkflow         = "workflow"
)

// Priorities used by the default hooks.
const (
	observabilityPriority = 10
	performancePriority   = 5
	notificationPriority  = 8
)

// RegisterDefaults installs the built-in hooks: lifecycle activity reporting,
// tool timing, and notification forwarding. Sink failures are logged and
// never fail the hook.
func RegisterDefaults(p *Pipeline, sink telemetry.Sink) error {
	if sink == nil {
		sink = telemetry.Nop
	}
	log := logging.Component("hooks")

	emit := func(ctx context.Context, e telemetry.Event) {
		if err := sink.Emit(ctx, e); err != nil {
			log.WarnCtx("telemetry emit failed", map[string]any{
				"kind":  string(e.Kind),
				"type":  e.Type,
				"error": err.Error(),
			})
		}
	}

	lifecycle := []struct {
		ch    Channel
		name  string
		typ   string
		title func(Payload) string
	}{
		{AgentStart, "agent-start-observability", "agent_spawned", func(p Payload) string {
			return fmt.Sprintf("Agent %s started", str(p, KeyAgentID))
		}},
		{AgentComplete, "agent-complete-observability", "agent_completed", func(p Payload) string {
			return fmt.Sprintf("Agent %s completed", str(p, KeyAgentID))
		}},
		{AgentError, "agent-error-observability", "agent_error", func(p Payload) string {
			return fmt.Sprintf("Agent %s error", str(p, KeyAgentID))
		}},
		{IssueAssigned, "issue-assigned-observability", "issue_assigned", func(p Payload) string {
			return fmt.Sprintf("Issue #%v assigned", p[KeyIssueNumber])
		}},
		{PRCreated, "pr-created-observability", "pr_created", func(p Payload) string {
			return fmt.Sprintf("PR #%v created", p[KeyPRNumber])
		}},
		{WorkflowTriggered, "workflow-triggered-observability", "workflow_triggered", func(p Payload) string {
			return fmt.Sprintf("Workflow %s triggered for %s", str(p, KeyWorkflow), str(p, KeyAgentID))
		}},
	}

	for _, lc := range lifecycle {
		handler := func(ctx context.Context, in Payload) (Payload, error) {
			desc := str(in, KeyDescription)
			if lc.ch == AgentError && desc == "" {
				desc = str(in, KeyError)
			}
			meta, _ := in[KeyMetadata].(map[string]any)
			emit(ctx, telemetry.Activity(lc.typ, lc.title(in), desc, str(in, KeyAgentID), meta))
			return nil, nil
		}
		if err := p.Register(lc.ch, handler, Options{Name: lc.name, Priority: observabilityPriority}); err != nil {
			return err
		}
	}

	err := p.Register(PreToolUse, func(_ context.Context, in Payload) (Payload, error) {
		in[KeyPerformanceStart] = time.Now()
		return in, nil
	}, Options{Name: "performance-start", Priority: performancePriority, Sync: true})
	if err != nil {
		return err
	}

	err = p.Register(PostToolUse, func(ctx context.Context, in Payload) (Payload, error) {
		start, ok := in[KeyPerformanceStart].(time.Time)
		if !ok {
			return nil, nil
		}
		d := time.Since(start)
		in[KeyDuration] = d
		emit(ctx, telemetry.Metric("tool_execution_time", float64(d.Milliseconds()), map[string]any{
			"tool":     str(in, KeyTool),
			"agent_id": str(in, KeyAgentID),
		}))
		return in, nil
	}, Options{Name: "performance-end", Priority: performancePriority})
	if err != nil {
		return err
	}

	return p.Register(Notification, func(ctx context.Context, in Payload) (Payload, error) {
		priority := str(in, KeyPriority)
		log.InfoCtx("notification", map[string]any{
			"type":     str(in, KeyType),
			"title":    str(in, KeyTitle),
			"priority": priority,
		})
		if priority == "high" || priority == "critical" {
			emit(ctx, telemetry.Notification(str(in, KeyType), str(in, KeyTitle), str(in, KeyMessage), priority))
		}
		return nil, nil
	}, Options{Name: "notification-handler", Priority: notificationPriority})
}

func str(p Payload, key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}
