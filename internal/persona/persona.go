// Package persona matches tasks to specialist agent profiles.
//
// The set of personas is closed: every Persona value has exactly one
// entry in the profile table, indexed by the Persona itself.
package persona

import "strings"

// Persona identifies a specialist profile.
type Persona int

// Declaration order is also the scoring order; ties go to the earlier persona.
const (
	Architect Persona = iota
	Frontend
	Backend
	Analyzer
	Security
	Mentor
	Refactorer
	Performance
	QA
	DevOps
	Scribe

	numPersonas
)

// Fallback is selected when no persona scores above zero.
const Fallback = Architect

// Profile describes a persona's matching vocabulary.
type Profile struct {
	Name       Persona
	Focus      []string
	Keywords   []string
	IssueTypes []string
	Confidence float64 // base confidence multiplier
}

var profiles = [numPersonas]Profile{
	Architect: {
		Name:       Architect,
		Focus:      []string{"architecture", "design", "scalability", "system-wide"},
		Keywords:   []string{"architecture", "design", "structure", "system", "scalability", "patterns"},
		IssueTypes: []string{"architecture", "design", "refactoring", "migration"},
		Confidence: 0.9,
	},
	Frontend: {
		Name:       Frontend,
		Focus:      []string{"ui", "ux", "component", "accessibility", "responsive"},
		Keywords:   []string{"ui", "ux", "component", "react", "css", "frontend", "design", "responsive"},
		IssueTypes: []string{"ui", "component", "styling", "accessibility"},
		Confidence: 0.85,
	},
	Backend: {
		Name:       Backend,
		Focus:      []string{"api", "database", "server", "performance", "reliability"},
		Keywords:   []string{"api", "database", "server", "backend", "supabase", "endpoint", "service"},
		IssueTypes: []string{"api", "database", "backend", "integration"},
		Confidence: 0.85,
	},
	Analyzer: {
		Name:       Analyzer,
		Focus:      []string{"analysis", "investigation", "debugging", "root-cause"},
		Keywords:   []string{"analyze", "investigate", "debug", "error", "issue", "problem", "root cause"},
		IssueTypes: []string{"bug", "investigation", "analysis", "debugging"},
		Confidence: 0.8,
	},
	Security: {
		Name:       Security,
		Focus:      []string{"security", "vulnerability", "authentication", "authorization"},
		Keywords:   []string{"security", "vulnerability", "auth", "encryption", "threat", "attack", "safe"},
		IssueTypes: []string{"security", "vulnerability", "authentication"},
		Confidence: 0.95,
	},
	Mentor: {
		Name:       Mentor,
		Focus:      []string{"documentation", "learning", "explanation", "guidance"},
		Keywords:   []string{"document", "explain", "guide", "learn", "understand", "tutorial", "help"},
		IssueTypes: []string{"documentation", "question", "guidance"},
		Confidence: 0.75,
	},
	Refactorer: {
		Name:       Refactorer,
		Focus:      []string{"refactoring", "cleanup", "optimization", "code-quality"},
		Keywords:   []string{"refactor", "cleanup", "optimize", "improve", "simplify", "quality", "debt"},
		IssueTypes: []string{"refactoring", "cleanup", "technical-debt"},
		Confidence: 0.8,
	},
	Performance: {
		Name:       Performance,
		Focus:      []string{"performance", "optimization", "speed", "efficiency"},
		Keywords:   []string{"performance", "speed", "optimize", "slow", "fast", "efficiency", "bottleneck"},
		IssueTypes: []string{"performance", "optimization", "bottleneck"},
		Confidence: 0.85,
	},
	QA: {
		Name:       QA,
		Focus:      []string{"testing", "quality", "validation", "verification"},
		Keywords:   []string{"test", "qa", "quality", "validation", "e2e", "unit", "integration", "coverage"},
		IssueTypes: []string{"testing", "qa", "validation"},
		Confidence: 0.8,
	},
	DevOps: {
		Name:       DevOps,
		Focus:      []string{"deployment", "infrastructure", "ci/cd", "automation"},
		Keywords:   []string{"deploy", "infrastructure", "ci", "cd", "automation", "workflow", "pipeline"},
		IssueTypes: []string{"deployment", "infrastructure", "automation"},
		Confidence: 0.85,
	},
	Scribe: {
		Name:       Scribe,
		Focus:      []string{"documentation", "writing", "communication", "localization"},
		Keywords:   []string{"write", "document", "readme", "changelog", "release", "notes", "guide"},
		IssueTypes: []string{"documentation", "writing", "communication"},
		Confidence: 0.8,
	},
}

var names = [numPersonas]string{
	Architect:   "architect",
	Frontend:    "frontend",
	Backend:     "backend",
	Analyzer:    "analyzer",
	Security:    "security",
	Mentor:      "mentor",
	Refactorer:  "refactorer",
	Performance: "performance",
	QA:          "qa",
	DevOps:      "devops",
	Scribe:      "scribe",
}

// collaborations suggests secondary reviewers for complex tasks.
var collaborations = [numPersonas][]Persona{
	Architect:   {Backend, Performance, Security},
	Frontend:    {QA, Performance, Backend},
	Backend:     {Architect, Security, Performance},
	Analyzer:    {Architect, Backend, Performance},
	Security:    {Backend, DevOps, Architect},
	Mentor:      {Scribe, Architect},
	Refactorer:  {Architect, QA, Performance},
	Performance: {Backend, Frontend, Architect},
	QA:          {Frontend, Backend, Performance},
	DevOps:      {Security, Backend, Architect},
	Scribe:      {Mentor, Architect},
}

// Valid reports whether p is one of the declared personas.
func (p Persona) Valid() bool {
	return p >= 0 && p < numPersonas
}

func (p Persona) String() string {
	if !p.Valid() {
		return "unknown"
	}
	return names[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p Persona) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Parse returns the persona with the given name (case-insensitive).
func Parse(name string) (Persona, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range names {
		if n == name {
			return Persona(i), true
		}
	}
	return 0, false
}

// All returns every persona in declaration order.
func All() []Persona {
	out := make([]Persona, numPersonas)
	for i := range out {
		out[i] = Persona(i)
	}
	return out
}

// Lookup returns the profile for p. The second result is false for an
// undeclared persona value.
func Lookup(p Persona) (Profile, bool) {
	if !p.Valid() {
		return Profile{}, false
	}
	return profiles[p], true
}

// Collaborators returns personas suited to co-review a complex task led by p.
func Collaborators(p Persona) []Persona {
	if !p.Valid() {
		return nil
	}
	return append([]Persona(nil), collaborations[p]...)
}
