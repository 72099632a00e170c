package heal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qmoi/selfheal/internal/classify"
	"github.com/qmoi/selfheal/internal/events"
	"github.com/qmoi/selfheal/internal/fixer"
	"github.com/qmoi/selfheal/internal/git"
	"github.com/qmoi/selfheal/internal/retry"
	"github.com/qmoi/selfheal/internal/types"
)

// maxSampleBytes caps the log excerpt kept on failures and escalations.
const maxSampleBytes = 2048

// Deps are the collaborators of a Healer. Classifier, Runner and Store are
// required; the rest are optional.
type Deps struct {
	Classifier *classify.Classifier
	Runner     *fixer.Runner
	Store      Store
	Git        git.Operations // nil disables commits
	Notifier   Notifier
	Diagnoser  Diagnoser
	Logger     *zap.Logger
}

// Healer runs the self-heal loop.
type Healer struct {
	cfg        Config
	classifier *classify.Classifier
	runner     *fixer.Runner
	store      Store
	repo       git.Operations
	notifier   Notifier
	diagnoser  Diagnoser
	log        *zap.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error

	mu      sync.Mutex
	lastFix map[string]time.Time // fingerprint -> last fix applied by Handle
}

// New creates a Healer.
func New(cfg Config, deps Deps) (*Healer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid heal config: %w", err)
	}
	if deps.Classifier == nil || deps.Runner == nil || deps.Store == nil {
		return nil, fmt.Errorf("classifier, runner and store are required")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Healer{
		cfg:        cfg,
		classifier: deps.Classifier,
		runner:     deps.Runner,
		store:      deps.Store,
		repo:       deps.Git,
		notifier:   deps.Notifier,
		diagnoser:  deps.Diagnoser,
		log:        log,
		now:        time.Now,
		sleep:      retry.Sleep,
		lastFix:    make(map[string]time.Time),
	}, nil
}

// Config returns the healer's configuration.
func (h *Healer) Config() Config {
	return h.cfg
}

// Heal checks target and, while it fails, classifies the log, applies the
// highest-priority untried fix and checks again after a backoff. It stops
// when the target passes, when the failure has been seen EscalateAfter times,
// when no untried fix remains or after MaxAttempts fixes; the last three
// escalate. An error is returned only when the target cannot be checked or
// ctx is done.
func (h *Healer) Heal(ctx context.Context, target Target) (*Report, error) {
	start := h.now()
	source := target.Name()
	report := &Report{Source: source}
	defer func() { report.Duration = h.now().Sub(start) }()

	tried := make(map[string]map[string]bool) // fingerprint -> rules applied
	var pending *types.Attempt

	for check := 1; ; check++ {
		if err := ctx.Err(); err != nil {
			h.settle(ctx, pending, types.OutcomeFailed)
			report.Outcome = types.OutcomeFailed
			return report, fmt.Errorf("heal %s canceled after %d attempts: %w", source, report.Attempts, err)
		}

		h.emit(ctx, events.New(events.EventTypeCheckStarted, source, events.SeverityInfo,
			fmt.Sprintf("Check %d of %s", check, source)))
		res, err := target.Check(ctx)
		if err != nil {
			h.settle(ctx, pending, types.OutcomeFailed)
			report.Outcome = types.OutcomeFailed
			return report, fmt.Errorf("check %s: %w", source, err)
		}

		if res.Passed {
			h.emit(ctx, events.New(events.EventTypeCheckPassed, source, events.SeverityInfo,
				fmt.Sprintf("%s passed", source)).WithFingerprint(report.Fingerprint))
			h.settle(ctx, pending, types.OutcomeHealed)
			if n, err := h.store.ResetFailures(context.WithoutCancel(ctx), source); err != nil {
				h.log.Warn("failed to reset failure counts", zap.String("source", source), zap.Error(err))
			} else if n > 0 {
				h.log.Debug("reset failure counts", zap.String("source", source), zap.Int("count", n))
			}
			if check == 1 {
				report.Outcome = types.OutcomeSkipped
			} else {
				report.Outcome = types.OutcomeHealed
			}
			return report, nil
		}

		h.emit(ctx, events.New(events.EventTypeCheckFailed, source, events.SeverityWarning,
			fmt.Sprintf("%s failed (exit %d)", source, res.ExitCode)))

		cls := h.classifier.Classify(source, res.Log)
		if !cls.Matched() {
			h.settle(ctx, pending, types.OutcomeFailed)
			report.Outcome = types.OutcomeUnmatched
			report.Escalation = h.escalate(ctx, cls, nil, res.Log, "no rule matched the failure log")
			return report, nil
		}
		h.emitClassified(cls)
		report.Fingerprint = cls.Fingerprint

		failure, err := h.recordFailure(ctx, cls)
		if err != nil {
			h.settle(ctx, pending, types.OutcomeFailed)
			report.Outcome = types.OutcomeFailed
			return report, err
		}
		h.settle(ctx, pending, types.OutcomeFailed)
		pending = nil

		if failure.Count >= h.cfg.EscalateAfter {
			return h.giveUp(ctx, report, cls, failure, res.Log,
				fmt.Sprintf("failure seen %d times (threshold %d)", failure.Count, h.cfg.EscalateAfter)), nil
		}
		if report.Attempts >= h.cfg.MaxAttempts {
			return h.giveUp(ctx, report, cls, failure, res.Log,
				fmt.Sprintf("still failing after %d fix attempts", report.Attempts)), nil
		}

		fp := cls.Fingerprint
		if tried[fp] == nil {
			tried[fp] = make(map[string]bool)
		}
		rule, ok := h.nextRule(cls, tried[fp])
		if !ok {
			return h.giveUp(ctx, report, cls, failure, res.Log,
				fmt.Sprintf("no untried fix for %s", strings.Join(cls.Rules(), ", "))), nil
		}
		tried[fp][rule.Name] = true
		report.Attempts++
		report.Rule = rule.Name

		var retrier Retrier
		if r, ok := target.(Retrier); ok {
			retrier = r
		}
		pending = h.apply(ctx, source, cls, rule, report.Attempts, retrier)

		wait := h.cfg.Backoff(report.Attempts - 1)
		h.log.Debug("waiting before re-check",
			zap.String("source", source), zap.Int("attempt", report.Attempts), zap.Duration("backoff", wait))
		if err := h.sleep(ctx, wait); err != nil {
			h.settle(ctx, pending, types.OutcomeFailed)
			report.Outcome = types.OutcomeFailed
			return report, fmt.Errorf("heal %s canceled during backoff: %w", source, err)
		}
	}
}

// Handle is the one-shot path for text appended to a watched log: classify,
// record, and apply the primary rule's fix unless the fingerprint was fixed
// within the cooldown. Unmatched text is ignored. Without a re-check a fix
// that ran cleanly is reported as healed.
func (h *Healer) Handle(ctx context.Context, source, log string) (*Report, error) {
	start := h.now()
	report := &Report{Source: source}
	defer func() { report.Duration = h.now().Sub(start) }()

	cls := h.classifier.Classify(source, log)
	if !cls.Matched() {
		report.Outcome = types.OutcomeUnmatched
		return report, nil
	}
	h.emit(ctx, events.New(events.EventTypeWatchTriggered, source, events.SeverityWarning,
		fmt.Sprintf("%d error lines in %s", len(cls.Matches), source)).WithFingerprint(cls.Fingerprint))
	h.emitClassified(cls)
	report.Fingerprint = cls.Fingerprint

	failure, err := h.recordFailure(ctx, cls)
	if err != nil {
		report.Outcome = types.OutcomeFailed
		return report, err
	}
	if failure.Count >= h.cfg.EscalateAfter {
		return h.giveUp(ctx, report, cls, failure, log,
			fmt.Sprintf("failure seen %d times (threshold %d)", failure.Count, h.cfg.EscalateAfter)), nil
	}

	rule, _ := h.classifier.Rule(cls.Primary.Rule)
	if len(rule.Fixes) == 0 {
		report.Outcome = types.OutcomeSkipped
		return report, nil
	}
	if !h.claimFix(cls.Fingerprint) {
		h.log.Debug("fix in cooldown", zap.String("source", source), zap.String("fingerprint", cls.Fingerprint))
		report.Outcome = types.OutcomeSkipped
		return report, nil
	}

	report.Attempts = 1
	report.Rule = rule.Name
	if attempt := h.apply(ctx, source, cls, rule, 1, nil); attempt != nil {
		h.settle(ctx, attempt, types.OutcomeHealed)
		report.Outcome = types.OutcomeHealed
	} else {
		report.Outcome = types.OutcomeFailed
	}
	return report, nil
}

// nextRule returns the highest-priority matched rule that has not been tried
// and has something to do (fix steps, or a re-check for retryable errors).
func (h *Healer) nextRule(cls *types.Classification, tried map[string]bool) (types.Rule, bool) {
	matched := make(map[string]bool)
	for _, name := range cls.Rules() {
		matched[name] = true
	}
	for _, r := range h.classifier.Rules() {
		if !matched[r.Name] || tried[r.Name] {
			continue
		}
		if len(r.Fixes) > 0 || r.Retryable {
			return r, true
		}
	}
	return types.Rule{}, false
}

func (h *Healer) claimFix(fingerprint string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	if last, ok := h.lastFix[fingerprint]; ok && now.Sub(last) < h.cfg.Cooldown {
		return false
	}
	h.lastFix[fingerprint] = now
	return true
}

func (h *Healer) recordFailure(ctx context.Context, cls *types.Classification) (*types.Failure, error) {
	p := cls.Primary
	failure, err := h.store.RecordFailure(ctx, &types.Failure{
		Fingerprint: cls.Fingerprint,
		Source:      cls.Source,
		Category:    p.Category,
		Rule:        p.Rule,
		Sample:      types.Truncate(strings.Join(p.Context, "\n"), maxSampleBytes),
	})
	if err != nil {
		return nil, fmt.Errorf("record failure for %s: %w", cls.Source, err)
	}
	h.log.Info("failure recorded",
		zap.String("source", cls.Source),
		zap.String("fingerprint", failure.Fingerprint),
		zap.String("rule", failure.Rule),
		zap.Int("count", failure.Count))
	return failure, nil
}

// giveUp escalates once per failure record; a failure that was already
// escalated is reported as escalated without notifying again.
func (h *Healer) giveUp(ctx context.Context, report *Report, cls *types.Classification, failure *types.Failure, log, reason string) *Report {
	report.Outcome = types.OutcomeEscalated
	if failure.Escalated {
		h.log.Debug("failure already escalated",
			zap.String("source", cls.Source), zap.String("fingerprint", failure.Fingerprint))
		return report
	}
	report.Escalation = h.escalate(ctx, cls, failure, log, reason)
	return report
}

// apply runs the rule's fixes, then commits the resulting changes or
// re-triggers the target. It returns the attempt still awaiting a verdict,
// or nil when the attempt already failed (and was recorded).
func (h *Healer) apply(ctx context.Context, source string, cls *types.Classification, rule types.Rule, number int, retrier Retrier) *types.Attempt {
	fp := cls.Fingerprint
	attempt := &types.Attempt{
		Source:      source,
		Fingerprint: fp,
		Rule:        rule.Name,
		Number:      number,
		StartedAt:   h.now(),
	}

	data := events.FixData{Rule: rule.Name, Attempt: number, DryRun: h.runner.DryRun()}
	for _, s := range rule.Fixes {
		data.Steps = append(data.Steps, s.Run)
	}
	h.emitData(events.NewFixEvent(events.EventTypeFixStarted, source, fp, events.SeverityInfo,
		fmt.Sprintf("Applying %s fix (attempt %d)", rule.Name, number), data))
	h.log.Info("applying fix",
		zap.String("source", source), zap.String("rule", rule.Name), zap.Int("attempt", number))

	var result *fixer.Result
	if len(rule.Fixes) > 0 {
		result = h.runner.Run(ctx, rule.Fixes)
		attempt.Output = types.Truncate(result.Output(), fixer.MaxOutputBytes)
		data.Output = attempt.Output
		data.Duration = h.now().Sub(attempt.StartedAt).Seconds()

		if !result.Success {
			h.emitData(events.NewFixEvent(events.EventTypeFixFailed, source, fp, events.SeverityError,
				fmt.Sprintf("%s fix failed", rule.Name), data))
			h.settle(ctx, attempt, types.OutcomeFailed)
			return nil
		}
		h.emitData(events.NewFixEvent(events.EventTypeFixCompleted, source, fp, events.SeverityInfo,
			fmt.Sprintf("%s fix completed", rule.Name), data))
	}

	if h.runner.DryRun() {
		return attempt
	}

	committed, err := h.commit(ctx, source, cls, rule, number)
	if err != nil {
		h.log.Warn("failed to commit fix", zap.String("source", source), zap.Error(err))
		attempt.Output += "\ncommit: " + err.Error()
		h.settle(ctx, attempt, types.OutcomeFailed)
		return nil
	}
	if !committed && retrier != nil {
		if err := retrier.Retry(ctx); err != nil {
			h.log.Warn("failed to re-trigger target", zap.String("source", source), zap.Error(err))
			attempt.Output += "\nretry: " + err.Error()
			h.settle(ctx, attempt, types.OutcomeFailed)
			return nil
		}
		h.emit(ctx, events.New(events.EventTypeRemoteRetry, source, events.SeverityInfo,
			fmt.Sprintf("Re-triggered %s", source)).WithFingerprint(fp))
	}
	return attempt
}

// commit commits the working tree changes left by a fix and optionally
// pushes them. It reports whether a commit was made.
func (h *Healer) commit(ctx context.Context, source string, cls *types.Classification, rule types.Rule, number int) (bool, error) {
	if !h.cfg.Commit || h.repo == nil || len(rule.Fixes) == 0 {
		return false, nil
	}
	dir := h.cfg.WorkingDir

	status, err := h.repo.GetStatus(ctx, dir)
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	if !status.HasChanges {
		return false, nil
	}

	files := status.Files()
	steps := make([]string, 0, len(rule.Fixes))
	for _, s := range rule.Fixes {
		steps = append(steps, s.Run)
	}
	msg := git.BuildCommitMessage(git.FixCommit{
		Source:      source,
		Rule:        rule.Name,
		Category:    string(rule.Category),
		Fingerprint: cls.Fingerprint,
		Attempt:     number,
		Steps:       steps,
		Files:       files,
	})
	hash, err := h.repo.CommitChanges(ctx, dir, git.CommitOptions{Message: msg, AddAll: true})
	if err != nil {
		return false, err
	}
	h.emitData(events.NewGitEvent(events.EventTypeGitCommit, source, cls.Fingerprint,
		fmt.Sprintf("Committed %s fix (%d files)", rule.Name, len(files)),
		events.GitData{Commit: hash, Files: files}))

	if !h.cfg.Push {
		return true, nil
	}
	branch := h.cfg.Branch
	if branch == "" {
		if branch, err = h.repo.CurrentBranch(ctx, dir); err != nil {
			return true, fmt.Errorf("resolve branch for push: %w", err)
		}
	}
	if err := h.repo.Push(ctx, dir, git.PushOptions{Remote: h.cfg.Remote, Branch: branch}); err != nil {
		return true, err
	}
	h.emitData(events.NewGitEvent(events.EventTypeGitPush, source, cls.Fingerprint,
		fmt.Sprintf("Pushed %s to %s", branch, h.cfg.Remote),
		events.GitData{Commit: hash, Branch: branch, Remote: h.cfg.Remote}))
	return true, nil
}

// escalate builds the escalation, attaches an AI diagnosis when available,
// marks the failure escalated and notifies.
func (h *Healer) escalate(ctx context.Context, cls *types.Classification, failure *types.Failure, log, reason string) *types.Escalation {
	esc := &types.Escalation{
		Source:      cls.Source,
		Fingerprint: cls.Fingerprint,
		Category:    types.CategoryUnknown,
		Reason:      reason,
		Timestamp:   h.now(),
	}
	if p := cls.Primary; p != nil {
		esc.Category = p.Category
		esc.Rule = p.Rule
		esc.Sample = strings.Join(p.Context, "\n")
	} else {
		esc.Sample = tail(log, 20)
	}
	esc.Sample = types.Truncate(esc.Sample, maxSampleBytes)
	if failure != nil {
		esc.Count = failure.Count
	}

	if h.diagnoser != nil {
		d, err := h.diagnoser.Diagnose(ctx, esc.Source, log)
		if err != nil {
			h.log.Warn("AI diagnosis failed", zap.String("source", esc.Source), zap.Error(err))
		} else if d != nil {
			esc.Diagnosis = d
			ev := events.New(events.EventTypeAIDiagnosis, esc.Source, events.SeverityInfo, d.Summary).
				WithFingerprint(esc.Fingerprint)
			if err := ev.SetData(d); err == nil {
				h.emit(ctx, ev)
			}
		}
	}

	if esc.Fingerprint != "" {
		if err := h.store.MarkEscalated(context.WithoutCancel(ctx), esc.Fingerprint); err != nil {
			h.log.Warn("failed to mark failure escalated", zap.String("fingerprint", esc.Fingerprint), zap.Error(err))
		}
	}
	h.emitData(events.NewEscalationEvent(esc.Source, esc.Fingerprint,
		fmt.Sprintf("Escalated %s: %s", esc.Source, reason),
		events.EscalationData{Reason: reason, Count: esc.Count, Category: string(esc.Category), Rule: esc.Rule}))
	h.log.Warn("escalating failure",
		zap.String("source", esc.Source),
		zap.String("fingerprint", esc.Fingerprint),
		zap.String("reason", reason))

	if h.notifier != nil {
		if err := h.notifier.Notify(context.WithoutCancel(ctx), esc); err != nil {
			h.log.Warn("failed to send escalation", zap.String("source", esc.Source), zap.Error(err))
		}
	}
	return esc
}

// settle records a pending attempt with its final outcome.
func (h *Healer) settle(ctx context.Context, a *types.Attempt, outcome types.Outcome) {
	if a == nil {
		return
	}
	finished := h.now()
	a.Outcome = outcome
	a.FinishedAt = &finished
	if err := h.store.RecordAttempt(context.WithoutCancel(ctx), a); err != nil {
		h.log.Warn("failed to record attempt", zap.String("source", a.Source), zap.Error(err))
	}
}

func (h *Healer) emitClassified(cls *types.Classification) {
	p := cls.Primary
	cats := make([]string, 0, len(cls.Categories()))
	for _, c := range cls.Categories() {
		cats = append(cats, string(c))
	}
	sev := events.SeverityError
	switch p.Severity {
	case types.SeverityWarning:
		sev = events.SeverityWarning
	case types.SeverityCritical:
		sev = events.SeverityCritical
	}
	ev, err := events.NewClassifiedEvent(cls.Source, cls.Fingerprint, sev,
		fmt.Sprintf("Classified as %s (%s)", p.Rule, p.Category),
		events.ClassifiedData{
			Rules:      cls.Rules(),
			Categories: cats,
			Primary:    p.Rule,
			Line:       p.Line,
			LineNumber: p.LineNumber,
			Matches:    len(cls.Matches),
		})
	h.emitData(ev, err)
}

// emit stores an event. Storage failures are logged, never fatal.
func (h *Healer) emit(ctx context.Context, ev *events.Event) {
	if err := h.store.StoreEvent(context.WithoutCancel(ctx), ev); err != nil {
		h.log.Warn("failed to store event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

func (h *Healer) emitData(ev *events.Event, err error) {
	if err != nil {
		h.log.Warn("failed to build event", zap.Error(err))
		return
	}
	h.emit(context.Background(), ev)
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
