package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/qmoi/selfheal/internal/ai"
	"github.com/qmoi/selfheal/internal/classify"
	"github.com/qmoi/selfheal/internal/fixer"
	"github.com/qmoi/selfheal/internal/git"
	"github.com/qmoi/selfheal/internal/heal"
	"github.com/qmoi/selfheal/internal/notify"
	"github.com/qmoi/selfheal/internal/storage"
	"github.com/qmoi/selfheal/internal/types"
)

// healerOptions are per-command overrides of the configuration.
type healerOptions struct {
	dryRun   bool
	noNotify bool
}

// newClassifier builds the classifier from the default rules merged with
// the configured ones.
func newClassifier() (*classify.Classifier, error) {
	c, err := classify.New(classify.Merge(classify.DefaultRules(), cfg.Rules))
	if err != nil {
		return nil, fmt.Errorf("invalid rule table: %w", err)
	}
	return c, nil
}

// newHealer wires the heal loop from configuration.
func newHealer(ctx context.Context, store storage.Storage, root string, opts healerOptions) (*heal.Healer, error) {
	classifier, err := newClassifier()
	if err != nil {
		return nil, err
	}

	dryRun := cfg.Heal.DryRun || opts.dryRun
	runner := fixer.NewRunner(fixer.Config{
		WorkingDir:     root,
		DefaultTimeout: cfg.Heal.StepTimeout,
		DryRun:         dryRun,
		Logger:         logger.Named("fixer"),
		OnStep:         printStep,
	})

	deps := heal.Deps{
		Classifier: classifier,
		Runner:     runner,
		Store:      store,
		Logger:     logger.Named("heal"),
	}

	if cfg.Heal.Commit && !dryRun {
		g, err := git.NewGit(ctx)
		if err != nil {
			return nil, fmt.Errorf("commit is enabled but git is unavailable: %w", err)
		}
		if !g.IsRepo(ctx, root) {
			return nil, fmt.Errorf("commit is enabled but %s is not a git repository", root)
		}
		deps.Git = g
	}

	if !opts.noNotify {
		if n := buildNotifier(); n.Len() > 0 {
			deps.Notifier = n
		}
	}
	if d := buildDiagnoser(); d != nil {
		deps.Diagnoser = d
	}

	return heal.New(cfg.HealConfig(root), deps)
}

// buildNotifier assembles the configured escalation channels.
func buildNotifier() *notify.Multi {
	var list []notify.Notifier
	if cfg.Notify.Console {
		list = append(list, notify.NewConsole(os.Stderr))
	}
	if s := cfg.Notify.Slack; s != nil {
		list = append(list, notify.NewSlack(s.WebhookURL, s.Channel, s.Username))
	}
	for _, w := range cfg.Notify.Webhooks {
		list = append(list, notify.NewWebhook(w.URL, notify.WithHeaders(w.Headers)))
	}
	return notify.NewMulti(list...)
}

// buildDiagnoser returns nil unless AI diagnosis is enabled and a key is set.
func buildDiagnoser() *ai.Diagnoser {
	if !cfg.AI.Enabled {
		return nil
	}
	d, err := ai.NewDiagnoser(ai.Config{
		Model:       cfg.AI.Model,
		MaxLogBytes: cfg.AI.MaxLogBytes,
		Logger:      logger,
	})
	if err != nil {
		logger.Warn("AI diagnosis disabled", zap.Error(err))
		return nil
	}
	return d
}

func printStep(s fixer.StepResult) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	switch {
	case s.Skipped:
		fmt.Printf("  %s %s %s\n", color.YellowString("○"), s.Step.Label(), gray("(dry run)"))
	case s.Passed():
		fmt.Printf("  %s %s %s\n", color.GreenString("✓"), s.Step.Label(), gray(s.Duration.Round(time.Millisecond)))
	default:
		fmt.Printf("  %s %s %s\n", color.RedString("✗"), s.Step.Label(), gray(fmt.Sprintf("exit %d", s.ExitCode)))
	}
}

// healthy reports whether the target ended up passing.
func healthy(r *heal.Report) bool {
	return r.Outcome == types.OutcomeSkipped || r.Outcome == types.OutcomeHealed
}

// printReport shows the outcome of a heal session.
func printReport(r *heal.Report) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	detail := ""
	if r.Attempts > 0 {
		detail = fmt.Sprintf(" after %d fix attempt(s)", r.Attempts)
	}

	switch r.Outcome {
	case types.OutcomeSkipped:
		fmt.Printf("%s %s passed %s\n", color.GreenString("✓"), cyan(r.Source), gray(r.Duration.Round(time.Millisecond)))
	case types.OutcomeHealed:
		fmt.Printf("%s %s healed%s %s\n", color.GreenString("✓"), cyan(r.Source), detail, gray(r.Duration.Round(time.Millisecond)))
	case types.OutcomeUnmatched:
		fmt.Printf("%s %s failed with an unrecognized error\n", color.YellowString("?"), cyan(r.Source))
	case types.OutcomeEscalated:
		fmt.Printf("%s %s escalated%s\n", color.RedString("!"), cyan(r.Source), detail)
	default:
		fmt.Printf("%s %s %s%s\n", color.RedString("✗"), cyan(r.Source), r.Outcome, detail)
	}

	if r.Rule != "" {
		fmt.Printf("  %s\n", gray(fmt.Sprintf("rule=%s fingerprint=%s", r.Rule, r.Fingerprint)))
	}
	if esc := r.Escalation; esc != nil {
		fmt.Printf("  %s %s\n", gray("reason:"), esc.Reason)
		if d := esc.Diagnosis; d != nil {
			fmt.Printf("  %s %s (%s, %.0f%%)\n", gray("diagnosis:"), d.Summary, d.Category, d.Confidence*100)
			for _, c := range d.SuggestedCommands {
				fmt.Printf("    %s %s\n", gray("$"), c)
			}
		}
	}
}
