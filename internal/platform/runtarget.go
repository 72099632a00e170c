package platform

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qmoi/selfheal/internal/heal"
	"github.com/qmoi/selfheal/internal/retry"
)

// RunTarget adapts a Provider to heal.Target and heal.Retrier. A check waits
// for the latest run (or the run started by Retry) to finish.
type RunTarget struct {
	provider     Provider
	pollInterval time.Duration
	timeout      time.Duration
	log          *zap.Logger

	last    *Run // Last run checked
	pending *Run // Run started by Retry, checked next
}

var (
	_ heal.Target  = (*RunTarget)(nil)
	_ heal.Retrier = (*RunTarget)(nil)
)

// NewRunTarget creates a RunTarget. pollInterval defaults to 15s and timeout
// (the longest a single check waits for a run to finish) to 20m.
func NewRunTarget(p Provider, pollInterval, timeout time.Duration, log *zap.Logger) *RunTarget {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RunTarget{provider: p, pollInterval: pollInterval, timeout: timeout, log: log}
}

// Name implements heal.Target.
func (t *RunTarget) Name() string {
	return t.provider.Name()
}

// LastRun returns the run seen by the last check.
func (t *RunTarget) LastRun() *Run {
	return t.last
}

// Check implements heal.Target. A failed or canceled run fails the check
// with the run's log.
func (t *RunTarget) Check(ctx context.Context) (*heal.CheckResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var (
		run *Run
		err error
	)
	if t.pending != nil {
		run, err = t.provider.GetRun(ctx, t.pending.ID)
	} else {
		run, err = t.provider.LatestRun(ctx)
	}
	if err != nil {
		return nil, err
	}

	for !run.Status.Terminal() {
		t.log.Debug("waiting for run to finish",
			zap.String("provider", t.provider.Name()),
			zap.String("run", run.ID),
			zap.String("status", string(run.Status)))
		if err := retry.Sleep(ctx, t.pollInterval); err != nil {
			return nil, fmt.Errorf("run %s still %s: %w", run.ID, run.Status, err)
		}
		if run, err = t.provider.GetRun(ctx, run.ID); err != nil {
			return nil, err
		}
	}
	t.pending = nil
	t.last = run

	res := &heal.CheckResult{
		Passed:   run.Status == StatusSuccess,
		URL:      run.URL,
		Duration: time.Since(start),
	}
	if res.Passed {
		return res, nil
	}

	res.ExitCode = 1
	if res.Log, err = t.provider.FetchLog(ctx, run); err != nil {
		return nil, err
	}
	t.log.Info("run failed",
		zap.String("provider", t.provider.Name()),
		zap.String("run", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("log_bytes", len(res.Log)))
	return res, nil
}

// Retry implements heal.Retrier by re-triggering the last checked run.
func (t *RunTarget) Retry(ctx context.Context) error {
	run := t.last
	if run == nil {
		var err error
		if run, err = t.provider.LatestRun(ctx); err != nil {
			return err
		}
	}
	next, err := t.provider.Retry(ctx, run)
	if err != nil {
		return err
	}
	t.log.Info("re-triggered run",
		zap.String("provider", t.provider.Name()),
		zap.String("run", run.ID),
		zap.String("next", next.ID))
	t.pending = next
	return nil
}
