// Package fixer runs auto-fix command sequences.
package fixer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qmoi/selfheal/internal/types"
)

const (
	// DefaultStepTimeout applies to steps without their own timeout
	DefaultStepTimeout = 5 * time.Minute

	// MaxOutputBytes caps the output kept per step
	MaxOutputBytes = 4096
)

// Executor runs a single shell command. ShellExecutor is the real one;
// tests substitute a fake.
type Executor interface {
	Run(ctx context.Context, dir, command string) (output string, exitCode int, err error)
}

// ShellExecutor runs commands with `sh -c`.
type ShellExecutor struct{}

// Run executes command in dir and returns its combined output.
func (ShellExecutor) Run(ctx context.Context, dir, command string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(output), exitErr.ExitCode(), err
		}
		return string(output), -1, err
	}
	return string(output), 0, nil
}

// StepResult is the outcome of one fix step.
type StepResult struct {
	Step     types.FixStep
	Output   string
	ExitCode int
	Err      error
	Duration time.Duration
	Skipped  bool // dry run
}

// Passed reports whether the step succeeded (or was skipped in a dry run).
func (s StepResult) Passed() bool {
	return s.Err == nil
}

// Result is the outcome of a fix sequence.
type Result struct {
	Steps   []StepResult
	Success bool
}

// Output joins the output of every step that ran, labeled by step.
func (r *Result) Output() string {
	var sb strings.Builder
	for _, s := range r.Steps {
		fmt.Fprintf(&sb, "$ %s\n", s.Step.Run)
		if s.Skipped {
			sb.WriteString("(dry run)\n")
			continue
		}
		if s.Output != "" {
			sb.WriteString(s.Output)
			if !strings.HasSuffix(s.Output, "\n") {
				sb.WriteString("\n")
			}
		}
		if s.Err != nil {
			fmt.Fprintf(&sb, "error: %v\n", s.Err)
		}
	}
	return sb.String()
}

// Config holds fix runner configuration
type Config struct {
	WorkingDir     string
	DefaultTimeout time.Duration // Defaults to DefaultStepTimeout
	DryRun         bool
	Executor       Executor   // Defaults to ShellExecutor
	Logger         *zap.Logger
	OnStep         func(StepResult) // Optional: called after every step
}

// Runner executes fix sequences in a working directory.
type Runner struct {
	dir     string
	timeout time.Duration
	dryRun  bool
	exec    Executor
	log     *zap.Logger
	onStep  func(StepResult)
}

// NewRunner creates a new fix runner
func NewRunner(cfg Config) *Runner {
	r := &Runner{
		dir:     cfg.WorkingDir,
		timeout: cfg.DefaultTimeout,
		dryRun:  cfg.DryRun,
		exec:    cfg.Executor,
		log:     cfg.Logger,
		onStep:  cfg.OnStep,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultStepTimeout
	}
	if r.exec == nil {
		r.exec = ShellExecutor{}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// DryRun reports whether the runner only prints steps.
func (r *Runner) DryRun() bool {
	return r.dryRun
}

// Run executes steps in order. It stops at the first failing step unless
// that step has ContinueOnError. A cancelled context stops the sequence.
func (r *Runner) Run(ctx context.Context, steps []types.FixStep) *Result {
	result := &Result{Success: true}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result.Success = false
			result.Steps = append(result.Steps, StepResult{Step: step, Err: err, ExitCode: -1})
			break
		}

		sr := r.runStep(ctx, step)
		result.Steps = append(result.Steps, sr)
		if r.onStep != nil {
			r.onStep(sr)
		}

		if sr.Err != nil {
			if step.ContinueOnError {
				r.log.Warn("fix step failed, continuing",
					zap.String("step", step.Label()), zap.Error(sr.Err))
				continue
			}
			result.Success = false
			break
		}
	}

	return result
}

func (r *Runner) runStep(ctx context.Context, step types.FixStep) StepResult {
	if r.dryRun {
		r.log.Info("dry run: would execute fix step", zap.String("command", step.Run))
		return StepResult{Step: step, Skipped: true}
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.log.Debug("running fix step", zap.String("step", step.Label()), zap.String("dir", r.dir))
	start := time.Now()
	output, code, err := r.exec.Run(stepCtx, r.dir, step.Run)
	sr := StepResult{
		Step:     step,
		Output:   types.Truncate(output, MaxOutputBytes),
		ExitCode: code,
		Duration: time.Since(start),
	}
	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("step %q timed out after %v: %w", step.Label(), timeout, err)
		} else {
			err = fmt.Errorf("step %q failed (exit %d): %w", step.Label(), code, err)
		}
		sr.Err = err
	}
	return sr
}
