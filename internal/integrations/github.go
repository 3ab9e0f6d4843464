package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/marcus/agentrouter/internal/agents"
	"github.com/marcus/agentrouter/internal/config"
	"github.com/marcus/agentrouter/internal/logging"
	"github.com/marcus/agentrouter/internal/tasks"
)

const (
	githubSource   = "github"
	backlogLimit   = 100
	runLimit       = 100
	fallbackWFType = "development"
)

// GitHub talks to a repository through the gh CLI. It is a backlog Source,
// an assignment Notifier, an agents.Spawner (workflow dispatch) and an
// agents.Directory (in-progress workflow runs).
type GitHub struct {
	repo          string
	ref           string
	backlogLabel  string
	assignedLabel string
	workflows     map[string]string
	runner        Runner
	now           func() time.Time
	log           *logging.Logger
}

// GitHubOption configures a GitHub client.
type GitHubOption func(*GitHub)

// WithRef sets the git ref workflows are dispatched on.
func WithRef(ref string) GitHubOption {
	return func(g *GitHub) {
		if ref != "" {
			g.ref = ref
		}
	}
}

// WithLabels sets the backlog and assigned labels.
func WithLabels(backlog, assigned string) GitHubOption {
	return func(g *GitHub) {
		if backlog != "" {
			g.backlogLabel = backlog
		}
		if assigned != "" {
			g.assignedLabel = assigned
		}
	}
}

// WithWorkflows sets the agent type to workflow file mapping.
func WithWorkflows(wf map[string]string) GitHubOption {
	return func(g *GitHub) {
		g.workflows = make(map[string]string, len(wf))
		for k, v := range wf {
			g.workflows[strings.ToLower(k)] = v
		}
	}
}

// WithRunner sets a custom command runner (for testing).
func WithRunner(r Runner) GitHubOption {
	return func(g *GitHub) {
		g.runner = r
	}
}

// NewGitHub creates a client for the "owner/name" repository.
func NewGitHub(repo string, opts ...GitHubOption) *GitHub {
	g := &GitHub{
		repo:          repo,
		ref:           config.DefaultRef,
		backlogLabel:  config.DefaultBacklogLabel,
		assignedLabel: config.DefaultAssignedLabel,
		workflows:     config.DefaultWorkflows(),
		runner:        ExecRunner{},
		now:           time.Now,
		log:           logging.Component("github"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGitHubFromConfig creates a client from the repository, github and
// workflows config sections.
func NewGitHubFromConfig(cfg *config.Config, opts ...GitHubOption) *GitHub {
	base := []GitHubOption{
		WithRef(cfg.Repository.Ref),
		WithLabels(cfg.GitHub.BacklogLabel, cfg.GitHub.AssignedLabel),
	}
	if len(cfg.Workflows) > 0 {
		base = append(base, WithWorkflows(cfg.Workflows))
	}
	return NewGitHub(cfg.Repository.Slug(), append(base, opts...)...)
}

// Name implements Source.
func (g *GitHub) Name() string {
	return githubSource
}

// Repo returns the "owner/name" slug.
func (g *GitHub) Repo() string {
	return g.repo
}

// gh runs a gh subcommand against the repository and returns stdout.
func (g *GitHub) gh(ctx context.Context, args ...string) (string, error) {
	return g.runner.Run(ctx, Invocation{Tool: "gh", Args: args})
}

// ghIssue represents a GitHub issue from gh CLI JSON output.
type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Assignees []struct {
		Login string `json:"login"`
	} `json:"assignees"`
	CreatedAt time.Time `json:"createdAt"`
}

// Backlog lists open issues carrying the backlog label that have neither an
// assignee nor the assigned label.
func (g *GitHub) Backlog(ctx context.Context) ([]tasks.Task, error) {
	out, err := g.gh(ctx,
		"issue", "list",
		"--repo", g.repo,
		"--label", g.backlogLabel,
		"--state", "open",
		"--limit", strconv.Itoa(backlogLimit),
		"--json", "number,title,body,labels,assignees,createdAt",
	)
	if err != nil {
		return nil, err
	}

	var issues []ghIssue
	if err := json.Unmarshal([]byte(out), &issues); err != nil {
		return nil, fmt.Errorf("parsing issue list: %w", err)
	}

	var backlog []tasks.Task
	for _, issue := range issues {
		if len(issue.Assignees) > 0 {
			continue
		}
		labels := make([]string, len(issue.Labels))
		for i, l := range issue.Labels {
			labels[i] = l.Name
		}

		t := tasks.New(fmt.Sprintf("gh-%d", issue.Number), issue.Title, issue.Body, labels...)
		if t.HasLabel(g.assignedLabel) {
			continue
		}
		t.Number = issue.Number
		t.Source = githubSource
		t.Priority = extractPriority(labels)
		if !issue.CreatedAt.IsZero() {
			t.CreatedAt = issue.CreatedAt
		}
		backlog = append(backlog, t)
	}

	g.log.DebugCtx("fetched backlog", map[string]any{
		"repo":   g.repo,
		"issues": len(issues),
		"open":   len(backlog),
	})
	return backlog, nil
}

var priorityTokens = map[string]int{
	"critical": tasks.PriorityCritical,
	"urgent":   tasks.PriorityCritical,
	"p0":       tasks.PriorityCritical,
	"high":     tasks.PriorityHigh,
	"p1":       tasks.PriorityHigh,
	"medium":   tasks.PriorityMedium,
	"p2":       tasks.PriorityMedium,
	"low":      tasks.PriorityLow,
	"p3":       tasks.PriorityLow,
}

// extractPriority derives priority from the first label carrying a
// priority word as a whole token: "high", "high-priority", "priority:low",
// "P1". Words inside other words ("workflow", "highlight") do not count.
func extractPriority(labels []string) int {
	for _, label := range labels {
		tokens := strings.FieldsFunc(strings.ToLower(label), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, tok := range tokens {
			if p, ok := priorityTokens[tok]; ok {
				return p
			}
		}
	}
	return tasks.PriorityMedium
}

// AssignmentComment renders the issue comment posted when work is assigned.
func AssignmentComment(a agents.Assignment) string {
	var b strings.Builder
	b.WriteString("🤖 **Agent Assignment**\n\n")
	fmt.Fprintf(&b, "This issue has been assigned to agent `%s` with the **%s** persona.\n\n", a.AgentID, a.Persona)
	b.WriteString("**Analysis:**\n")
	fmt.Fprintf(&b, "- Type: %s\n", a.AgentType)
	fmt.Fprintf(&b, "- Priority: %s\n", a.Priority)
	fmt.Fprintf(&b, "- Estimated Time: %d hours\n", a.EstimatedHours)
	fmt.Fprintf(&b, "- Confidence: %.0f%%\n\n", a.Confidence*100)
	if a.Fallback && !a.Overload {
		b.WriteString("⚠️ **Fallback Assignment:** the preferred persona was at capacity.\n\n")
	}
	if a.Overload {
		b.WriteString("🔴 **Overload Assignment:** all agent pools are at capacity, expect delays.\n\n")
	}
	b.WriteString("The agent will begin working on this issue shortly.")
	return b.String()
}

// NotifyAssignment comments on the issue and adds the assigned label.
func (g *GitHub) NotifyAssignment(ctx context.Context, task tasks.Task, a agents.Assignment) error {
	if task.Number <= 0 {
		return fmt.Errorf("task %s has no issue number", task.ID)
	}
	num := strconv.Itoa(task.Number)

	if _, err := g.gh(ctx, "issue", "comment", num, "--repo", g.repo, "--body", AssignmentComment(a)); err != nil {
		return err
	}
	if _, err := g.gh(ctx, "issue", "edit", num, "--repo", g.repo, "--add-label", strings.Join(assignmentLabels(g.assignedLabel, a), ",")); err != nil {
		return err
	}
	return nil
}

// assignmentLabels are the labels added to an issue on assignment.
func assignmentLabels(assigned string, a agents.Assignment) []string {
	labels := []string{assigned}
	if a.Fallback {
		labels = append(labels, "fallback-assignment")
	}
	if a.Overload {
		labels = append(labels, "overload-assignment")
	}
	return labels
}

// Comment adds a comment to an issue.
func (g *GitHub) Comment(ctx context.Context, issueNumber int, body string) error {
	_, err := g.gh(ctx, "issue", "comment", strconv.Itoa(issueNumber), "--repo", g.repo, "--body", body)
	return err
}

// workflowFor resolves the workflow file for an agent type. Unknown types
// run the development workflow.
func (g *GitHub) workflowFor(agentType string) string {
	if wf, ok := g.workflows[strings.ToLower(agentType)]; ok {
		return wf
	}
	if wf, ok := g.workflows[fallbackWFType]; ok {
		return wf
	}
	return fallbackWFType + "-agent.yml"
}

// Spawn dispatches the agent workflow for req.Type. The new agent id and
// persona are passed as workflow inputs.
func (g *GitHub) Spawn(ctx context.Context, req agents.SpawnRequest) (agents.Record, error) {
	id := agents.NewID(req.Type)
	wf := g.workflowFor(req.Type)

	args := []string{
		"workflow", "run", wf,
		"--repo", g.repo,
		"--ref", g.ref,
		"-f", "agent_id=" + id,
		"-f", "persona=" + req.Persona.String(),
	}
	if req.TaskID != "" {
		args = append(args, "-f", "task_id="+req.TaskID)
	}

	if _, err := g.gh(ctx, args...); err != nil {
		return agents.Record{}, &agents.SpawnError{Type: req.Type, Persona: req.Persona.String(), Err: err}
	}

	g.log.InfoCtx("dispatched agent workflow", map[string]any{
		"agent_id": id,
		"workflow": wf,
		"persona":  req.Persona.String(),
	})

	return agents.Record{
		ID:          id,
		Type:        req.Type,
		Persona:     req.Persona,
		Status:      agents.StatusSpawning,
		ExternalRef: wf,
		SpawnedAt:   g.now(),
	}, nil
}

// ghRun represents a workflow run from gh CLI JSON output.
type ghRun struct {
	DatabaseID   int64     `json:"databaseId"`
	Name         string    `json:"name"`
	DisplayTitle string    `json:"displayTitle"`
	WorkflowName string    `json:"workflowName"`
	Status       string    `json:"status"`
	Conclusion   string    `json:"conclusion"`
	CreatedAt    time.Time `json:"createdAt"`
}

// state maps a run's status and conclusion onto agents.RunState.
func (r ghRun) state() agents.RunState {
	if r.Status != "completed" {
		return agents.RunInProgress
	}
	switch r.Conclusion {
	case "success", "neutral", "skipped":
		return agents.RunSucceeded
	}
	return agents.RunFailed
}

var agentIDPattern = regexp.MustCompile(`[a-z]+-agent-[0-9a-f]+`)

// Discover lists recent agent workflow runs, running and finished, so the
// orchestrator can tell which of its agents are done.
func (g *GitHub) Discover(ctx context.Context) ([]agents.Discovered, error) {
	out, err := g.gh(ctx,
		"run", "list",
		"--repo", g.repo,
		"--limit", strconv.Itoa(runLimit),
		"--json", "databaseId,name,displayTitle,workflowName,status,conclusion,createdAt",
	)
	if err != nil {
		return nil, &agents.DiscoveryError{Source: githubSource, Err: err}
	}

	var runs []ghRun
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		return nil, &agents.DiscoveryError{Source: githubSource, Err: fmt.Errorf("parsing run list: %w", err)}
	}

	var found []agents.Discovered
	for _, r := range runs {
		if !strings.Contains(strings.ToLower(r.Name+" "+r.WorkflowName), "agent") {
			continue
		}
		ref := strconv.FormatInt(r.DatabaseID, 10)

		id := agentIDPattern.FindString(strings.ToLower(r.DisplayTitle + " " + r.Name))
		if id == "" {
			id = "agent-run-" + ref
		}
		typ := runAgentType(r)
		found = append(found, agents.Discovered{
			ID:          id,
			Type:        typ,
			Persona:     agents.DefaultPersona(typ),
			ExternalRef: ref,
			StartedAt:   r.CreatedAt,
			State:       r.state(),
			Conclusion:  r.Conclusion,
		})
	}
	return found, nil
}

// runAgentType infers the agent type from a run's workflow name.
func runAgentType(r ghRun) string {
	name := strings.ToLower(r.WorkflowName + " " + r.Name)
	for _, t := range []string{"testing", "security", "documentation", "migration", "monitoring"} {
		if strings.Contains(name, t) {
			return t
		}
	}
	if strings.Contains(name, "test") {
		return "testing"
	}
	return fallbackWFType
}
