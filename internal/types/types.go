package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Category is the error taxonomy a log line is classified into.
type Category string

const (
	CategoryDependency Category = "dependency"
	CategoryBuild      Category = "build"
	CategoryLint       Category = "lint"
	CategoryTest       Category = "test"
	CategoryGit        Category = "git"
	CategoryDeployment Category = "deployment"
	CategoryNetwork    Category = "network"
	CategoryPermission Category = "permission"
	CategoryMemory     Category = "memory"
	CategoryTimeout    Category = "timeout"
	CategoryUnknown    Category = "unknown"
)

// IsValid checks if the category value is valid
func (c Category) IsValid() bool {
	switch c {
	case CategoryDependency, CategoryBuild, CategoryLint, CategoryTest, CategoryGit,
		CategoryDeployment, CategoryNetwork, CategoryPermission, CategoryMemory,
		CategoryTimeout, CategoryUnknown:
		return true
	}
	return false
}

// Severity ranks how serious a classified error is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// FixStep is a single shell command run as part of an auto-fix.
type FixStep struct {
	// Name is a short label shown in logs (defaults to Run)
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Run is executed with `sh -c` in the working directory
	Run string `yaml:"run" json:"run"`

	// Timeout overrides the runner's default step timeout
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// ContinueOnError keeps the sequence going when this step fails
	ContinueOnError bool `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`
}

// Label returns the display name of the step.
func (s FixStep) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Run
}

// Rule maps log patterns to a category and the fix sequence that addresses it.
type Rule struct {
	Name     string    `yaml:"name" json:"name"`
	Category Category  `yaml:"category" json:"category"`
	Severity Severity  `yaml:"severity,omitempty" json:"severity,omitempty"`
	Patterns []string  `yaml:"patterns" json:"patterns"`
	Fixes    []FixStep `yaml:"fixes,omitempty" json:"fixes,omitempty"`

	// Retryable marks errors worth re-checking without any fix (flaky network, timeouts)
	Retryable bool `yaml:"retryable,omitempty" json:"retryable,omitempty"`
}

// Validate checks if the rule has valid field values
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if !r.Category.IsValid() {
		return fmt.Errorf("rule %s: invalid category: %s", r.Name, r.Category)
	}
	if r.Severity != "" && !r.Severity.IsValid() {
		return fmt.Errorf("rule %s: invalid severity: %s", r.Name, r.Severity)
	}
	if len(r.Patterns) == 0 {
		return fmt.Errorf("rule %s: at least one pattern is required", r.Name)
	}
	for _, p := range r.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("rule %s: invalid pattern %q: %w", r.Name, p, err)
		}
	}
	for i, f := range r.Fixes {
		if strings.TrimSpace(f.Run) == "" {
			return fmt.Errorf("rule %s: fix %d has empty run command", r.Name, i)
		}
		if f.Timeout < 0 {
			return fmt.Errorf("rule %s: fix %d has negative timeout", r.Name, i)
		}
	}
	return nil
}

// Match is a single log line that matched a rule.
type Match struct {
	Rule       string   `json:"rule"`
	Category   Category `json:"category"`
	Severity   Severity `json:"severity"`
	Pattern    string   `json:"pattern"`
	LineNumber int      `json:"line_number"` // 1-indexed
	Line       string   `json:"line"`
	Context    []string `json:"context,omitempty"`
}

// Classification is the result of matching a whole log against the rule table.
type Classification struct {
	Source      string  `json:"source"`
	Matches     []Match `json:"matches"`
	Primary     *Match  `json:"primary,omitempty"`
	Fingerprint string  `json:"fingerprint,omitempty"`
}

// Matched reports whether any rule matched.
func (c *Classification) Matched() bool {
	return c != nil && len(c.Matches) > 0
}

// Rules returns the distinct matched rule names in the order they first matched.
func (c *Classification) Rules() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, m := range c.Matches {
		if !seen[m.Rule] {
			seen[m.Rule] = true
			names = append(names, m.Rule)
		}
	}
	return names
}

// Categories returns the distinct matched categories.
func (c *Classification) Categories() []Category {
	if c == nil {
		return nil
	}
	seen := make(map[Category]bool)
	var cats []Category
	for _, m := range c.Matches {
		if !seen[m.Category] {
			seen[m.Category] = true
			cats = append(cats, m.Category)
		}
	}
	return cats
}

// Outcome is the terminal state of a heal session or attempt.
type Outcome string

const (
	OutcomeHealed    Outcome = "healed"
	OutcomeFailed    Outcome = "failed"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeEscalated Outcome = "escalated"
	OutcomeSkipped   Outcome = "skipped"
)

// IsValid checks if the outcome value is valid
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeHealed, OutcomeFailed, OutcomeUnmatched, OutcomeEscalated, OutcomeSkipped:
		return true
	}
	return false
}

// Attempt records one fix attempt against a target.
type Attempt struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Fingerprint string     `json:"fingerprint"`
	Rule        string     `json:"rule"`
	Number      int        `json:"number"`
	Outcome     Outcome    `json:"outcome"`
	Output      string     `json:"output,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Failure tracks how many times the same failure (by fingerprint) has been seen.
type Failure struct {
	Fingerprint string    `json:"fingerprint"`
	Source      string    `json:"source"`
	Category    Category  `json:"category"`
	Rule        string    `json:"rule"`
	Count       int       `json:"count"`
	Sample      string    `json:"sample"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Escalated   bool      `json:"escalated"`
}

// Escalation is handed to notifiers when self-healing gives up.
type Escalation struct {
	Source      string     `json:"source"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Category    Category   `json:"category"`
	Rule        string     `json:"rule,omitempty"`
	Count       int        `json:"count"`
	Reason      string     `json:"reason"`
	Sample      string     `json:"sample,omitempty"`
	Diagnosis   *Diagnosis `json:"diagnosis,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Diagnosis is an AI-produced explanation of a failure. Suggestions are advisory only.
type Diagnosis struct {
	Category          Category `json:"category"`
	Summary           string   `json:"summary"`
	SuggestedCommands []string `json:"suggested_commands"`
	Confidence        float64  `json:"confidence"`
}

// Truncate shortens s to at most max bytes, marking the cut.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n... (truncated)"
}
