package orchestrator

import (
	"math"
	"strings"
	"time"

	"github.com/marcus/agentrouter/internal/tasks"
)

// Agent types produced by classification. They double as workflow keys.
const (
	TypeDevelopment   = "development"
	TypeTesting       = "testing"
	TypeSecurity      = "security"
	TypeDocumentation = "documentation"
	TypeMigration     = "migration"
)

// Priority levels produced by classification.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

const (
	defaultComplexity = 0.5
	specialistAbove   = 0.7
	hoursPerUnit      = 8
)

// Classification is the routing analysis of a task.
// Complexity is a fixed per-rule scalar and is unrelated to
// persona.EstimateComplexity.
type Classification struct {
	Type               string
	Priority           string
	Complexity         float64
	RequiresSpecialist bool
	EstimatedTime      time.Duration
}

// EstimatedHours returns the estimate in whole hours.
func (c Classification) EstimatedHours() int {
	return int(c.EstimatedTime / time.Hour)
}

// typeRule matches a task by label or by a substring of its lower-cased
// title and body.
type typeRule struct {
	labels     []string
	keywords   []string
	typ        string
	priority   string // empty keeps the default
	complexity float64
}

func (r typeRule) matches(t tasks.Task, text string) bool {
	for _, l := range r.labels {
		if t.HasLabel(l) {
			return true
		}
	}
	for _, k := range r.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// typeRules are evaluated in order; the first match wins.
var typeRules = []typeRule{
	{labels: []string{"bug"}, keywords: []string{"error", "fix"}, typ: TypeDevelopment, complexity: 0.6},
	{labels: []string{"testing"}, keywords: []string{"test"}, typ: TypeTesting, complexity: 0.4},
	{labels: []string{"security"}, keywords: []string{"vulnerability"}, typ: TypeSecurity, priority: PriorityHigh, complexity: 0.8},
	{labels: []string{"documentation"}, keywords: []string{"docs"}, typ: TypeDocumentation, complexity: 0.3},
	{labels: []string{"migration"}, keywords: []string{"database"}, typ: TypeMigration, complexity: 0.7},
	{keywords: []string{"ui", "design", "component"}, typ: TypeDevelopment, complexity: 0.5},
}

// priorityRules map labels to a priority level, first match wins. They
// override any priority set by the type rule.
var priorityRules = []struct {
	labels   []string
	priority string
}{
	{[]string{"critical", "urgent"}, PriorityCritical},
	{[]string{"high-priority"}, PriorityHigh},
	{[]string{"low-priority"}, PriorityLow},
}

// Classify runs the rule cascade over a task.
func Classify(t tasks.Task) Classification {
	text := strings.ToLower(t.Title) + " " + strings.ToLower(t.Body)

	c := Classification{
		Type:       TypeDevelopment,
		Priority:   PriorityMedium,
		Complexity: defaultComplexity,
	}

	for _, r := range typeRules {
		if !r.matches(t, text) {
			continue
		}
		c.Type = r.typ
		c.Complexity = r.complexity
		if r.priority != "" {
			c.Priority = r.priority
		}
		break
	}

	for _, r := range priorityRules {
		if hasAnyLabel(t, r.labels) {
			c.Priority = r.priority
			break
		}
	}

	c.RequiresSpecialist = c.Complexity > specialistAbove
	c.EstimatedTime = time.Duration(math.Ceil(c.Complexity*hoursPerUnit)) * time.Hour
	return c
}

func hasAnyLabel(t tasks.Task, labels []string) bool {
	for _, l := range labels {
		if t.HasLabel(l) {
			return true
		}
	}
	return false
}
