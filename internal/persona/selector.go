package persona

import (
	"math"
	"strings"
	"time"

	"github.com/marcus/agentrouter/internal/tasks"
)

// Score weights.
const (
	titleKeywordWeight = 3
	bodyKeywordWeight  = 1
	labelTypeWeight    = 5
	labelKeywordWeight = 2

	// maxPossibleScore calibrates confidence; it is not derived from the tables.
	maxPossibleScore = 20
)

// Complexity is a coarse size estimate for a task.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Selection is the outcome of scoring a task against every persona.
type Selection struct {
	Persona    Persona
	Confidence float64 // 0..1
	Score      int
	Scores     map[Persona]int
}

// Workload is a concurrency and duration recommendation for a persona.
type Workload struct {
	MaxConcurrent int
	EstimatedTime time.Duration
}

type workloadAdjustment struct {
	timeMultiplier      float64
	concurrentReduction int
}

var baseWorkloads = map[Complexity]Workload{
	ComplexityLow:    {MaxConcurrent: 5, EstimatedTime: 30 * time.Minute},
	ComplexityMedium: {MaxConcurrent: 3, EstimatedTime: 120 * time.Minute},
	ComplexityHigh:   {MaxConcurrent: 1, EstimatedTime: 480 * time.Minute},
}

var workloadAdjustments = map[Persona]workloadAdjustment{
	Architect:   {timeMultiplier: 1.5, concurrentReduction: 1},
	Security:    {timeMultiplier: 2, concurrentReduction: 2},
	QA:          {timeMultiplier: 1.3, concurrentReduction: 0},
	Performance: {timeMultiplier: 1.8, concurrentReduction: 1},
}

// Selector scores tasks against the fixed persona table.
// A Selector is read-only after construction and safe for concurrent use.
type Selector struct {
	issueTypes map[string][]Persona // issue type -> personas, in declaration order
}

// NewSelector builds a selector and its issue-type reverse index.
func NewSelector() *Selector {
	idx := make(map[string][]Persona)
	for _, p := range All() {
		for _, it := range profiles[p].IssueTypes {
			idx[it] = append(idx[it], p)
		}
	}
	return &Selector{issueTypes: idx}
}

// Select picks the best persona for the task.
func (s *Selector) Select(task tasks.Task) Selection {
	scores := make(map[Persona]int, numPersonas)
	for _, p := range All() {
		scores[p] = 0
	}

	title := strings.ToLower(task.Title)
	body := strings.ToLower(task.Body)

	for _, p := range All() {
		for _, kw := range profiles[p].Keywords {
			if strings.Contains(title, kw) {
				scores[p] += titleKeywordWeight
			}
			if strings.Contains(body, kw) {
				scores[p] += bodyKeywordWeight
			}
		}
	}

	for _, label := range task.NormalizedLabels() {
		for _, p := range s.issueTypes[label] {
			scores[p] += labelTypeWeight
		}
		for _, p := range All() {
			for _, kw := range profiles[p].Keywords {
				if strings.Contains(label, kw) {
					scores[p] += labelKeywordWeight
				}
			}
		}
	}

	best, highest := Fallback, 0
	for _, p := range All() {
		if scores[p] > highest {
			best, highest = p, scores[p]
		}
	}

	ratio := math.Min(float64(highest)/maxPossibleScore, 1)
	return Selection{
		Persona:    best,
		Confidence: ratio * profiles[best].Confidence,
		Score:      highest,
		Scores:     scores,
	}
}

// ForIssueType returns the personas whose affinities include issueType.
// Unknown issue types map to the fallback persona.
func (s *Selector) ForIssueType(issueType string) []Persona {
	ps, ok := s.issueTypes[strings.ToLower(issueType)]
	if !ok {
		return []Persona{Fallback}
	}
	return append([]Persona(nil), ps...)
}

// EstimateComplexity sizes a task from its body shape and label count.
func EstimateComplexity(task tasks.Task) Complexity {
	body := task.Body
	lines := strings.Count(body, "\n") + 1
	hasSections := strings.Contains(body, "##")
	hasCode := strings.Contains(body, "```")
	labels := len(task.Labels)

	switch {
	case lines > 50 || labels > 3 || (hasSections && hasCode):
		return ComplexityHigh
	case lines > 20 || labels > 1 || hasCode:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

// WorkloadRecommendation returns how many concurrent tasks of the given
// complexity persona p should take and how long each is expected to run.
// An unknown complexity yields the zero Workload.
func WorkloadRecommendation(p Persona, c Complexity) Workload {
	base, ok := baseWorkloads[c]
	if !ok {
		return Workload{}
	}
	adj, ok := workloadAdjustments[p]
	if !ok {
		adj = workloadAdjustment{timeMultiplier: 1}
	}

	minutes := math.Round(base.EstimatedTime.Minutes() * adj.timeMultiplier)
	return Workload{
		MaxConcurrent: max(1, base.MaxConcurrent-adj.concurrentReduction),
		EstimatedTime: time.Duration(minutes) * time.Minute,
	}
}
