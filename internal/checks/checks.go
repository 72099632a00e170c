// Package checks runs local check commands (build, lint, test) as heal
// targets.
package checks

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/qmoi/selfheal/internal/fixer"
	"github.com/qmoi/selfheal/internal/heal"
	"github.com/qmoi/selfheal/internal/project"
)

const (
	// DefaultTimeout bounds a check command without its own timeout
	DefaultTimeout = 15 * time.Minute

	// maxLogBytes keeps the tail of very long check output
	maxLogBytes = 256 * 1024
)

// Definition is a named check command.
type Definition struct {
	Name    string        `yaml:"name"`
	Run     string        `yaml:"run"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Validate checks if the definition is usable.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("check name is required")
	}
	if strings.TrimSpace(d.Run) == "" {
		return fmt.Errorf("check %s: run command is required", d.Name)
	}
	if d.Timeout < 0 {
		return fmt.Errorf("check %s: timeout cannot be negative", d.Name)
	}
	return nil
}

// FromProject converts detected project commands into definitions.
func FromProject(p *project.Project) []Definition {
	defs := make([]Definition, 0, len(p.Commands))
	for _, c := range p.Commands {
		defs = append(defs, Definition{Name: c.Name, Run: c.Run})
	}
	return defs
}

// Resolve merges configured checks over detected ones: a configured check
// replaces the detected check of the same name, others are appended.
func Resolve(detected, configured []Definition) []Definition {
	merged := make([]Definition, 0, len(detected)+len(configured))
	index := make(map[string]int, len(detected))
	for _, d := range detected {
		index[d.Name] = len(merged)
		merged = append(merged, d)
	}
	for _, c := range configured {
		if i, ok := index[c.Name]; ok {
			merged[i] = c
			continue
		}
		index[c.Name] = len(merged)
		merged = append(merged, c)
	}
	return merged
}

// Select returns the definitions with the given names, in the order given.
// No names selects every definition.
func Select(defs []Definition, names []string) ([]Definition, error) {
	if len(names) == 0 {
		return defs, nil
	}
	byName := make(map[string]Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	selected := make([]Definition, 0, len(names))
	for _, n := range names {
		d, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown check %q", n)
		}
		selected = append(selected, d)
	}
	return selected, nil
}

// CommandTarget runs a shell command; exit 0 passes.
type CommandTarget struct {
	def  Definition
	dir  string
	exec fixer.Executor
}

var _ heal.Target = (*CommandTarget)(nil)

// NewCommandTarget creates a target running def in dir. A nil executor runs
// the command with sh -c.
func NewCommandTarget(def Definition, dir string, exec fixer.Executor) *CommandTarget {
	if exec == nil {
		exec = fixer.ShellExecutor{}
	}
	if def.Timeout <= 0 {
		def.Timeout = DefaultTimeout
	}
	return &CommandTarget{def: def, dir: dir, exec: exec}
}

// Name implements heal.Target.
func (t *CommandTarget) Name() string {
	return t.def.Name
}

// Command returns the shell command the target runs.
func (t *CommandTarget) Command() string {
	return t.def.Run
}

// Check implements heal.Target. A command that cannot be started or is
// canceled is an error; a non-zero exit is a failed check.
func (t *CommandTarget) Check(ctx context.Context) (*heal.CheckResult, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, t.def.Timeout)
	defer cancel()

	start := time.Now()
	output, code, err := t.exec.Run(cmdCtx, t.dir, t.def.Run)
	res := &heal.CheckResult{
		Passed:   err == nil && code == 0,
		Log:      tailBytes(output, maxLogBytes),
		ExitCode: code,
		Duration: time.Since(start),
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("check %s: %w", t.def.Name, ctx.Err())
	}
	if err != nil && code < 0 {
		if cmdCtx.Err() != nil {
			// timed out: the output so far is the log
			res.Log += fmt.Sprintf("\ncheck %s timed out after %v", t.def.Name, t.def.Timeout)
			return res, nil
		}
		return nil, fmt.Errorf("check %s: %w", t.def.Name, err)
	}
	return res, nil
}

// Targets builds command targets for defs.
func Targets(defs []Definition, dir string, exec fixer.Executor) []heal.Target {
	targets := make([]heal.Target, 0, len(defs))
	for _, d := range defs {
		targets = append(targets, NewCommandTarget(d, dir, exec))
	}
	return targets
}

func tailBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	start := len(s) - max
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return "... (truncated)\n" + s[start:]
}
