// Package heal implements the self-heal loop: check a target, classify its
// failure log, apply the matching fix, commit or re-trigger, back off and
// check again until the target passes or the failure is escalated.
package heal

import (
	"context"
	"time"

	"github.com/qmoi/selfheal/internal/events"
	"github.com/qmoi/selfheal/internal/types"
)

// CheckResult is the outcome of one check of a target.
type CheckResult struct {
	Passed   bool
	Log      string // Output to classify when the check failed
	ExitCode int
	Duration time.Duration
	URL      string // Optional link to the run
}

// Target is something that can pass or fail: a local command, a CI run, a
// deployment.
type Target interface {
	Name() string
	Check(ctx context.Context) (*CheckResult, error)
}

// Retrier is implemented by targets that can be re-triggered remotely
// (redeploy, rerun failed jobs).
type Retrier interface {
	Retry(ctx context.Context) error
}

// Notifier receives escalations.
type Notifier interface {
	Notify(ctx context.Context, esc *types.Escalation) error
}

// Diagnoser explains a failure log when the rule table cannot fix it.
type Diagnoser interface {
	Diagnose(ctx context.Context, source, log string) (*types.Diagnosis, error)
}

// Store is the persistence the healer needs. storage.Storage satisfies it.
type Store interface {
	events.Store
	RecordFailure(ctx context.Context, f *types.Failure) (*types.Failure, error)
	ResetFailures(ctx context.Context, source string) (int, error)
	MarkEscalated(ctx context.Context, fingerprint string) error
	RecordAttempt(ctx context.Context, a *types.Attempt) error
}

// Report summarizes a Heal or Handle call.
type Report struct {
	Source      string
	Outcome     types.Outcome
	Attempts    int    // Fixes applied
	Fingerprint string // Last failure fingerprint
	Rule        string // Last rule applied
	Escalation  *types.Escalation
	Duration    time.Duration
}
