package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qmoi/selfheal/internal/checks"
	"github.com/qmoi/selfheal/internal/heal"
	"github.com/qmoi/selfheal/internal/project"
)

var (
	checkDryRun bool
	checkList   bool
)

var checkCmd = &cobra.Command{
	Use:   "check [name...]",
	Short: "Run the project's checks and heal the ones that fail",
	Long: `Run build, lint and test checks in order. Checks are detected from the
project and overridden or extended by the checks section of config.yaml.
Each failing check is healed before the next one runs.

Examples:
  selfheal check              # All checks
  selfheal check lint test    # Only these, in this order
  selfheal check --list       # Show the resolved checks`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		root, err := projectRoot()
		if err != nil {
			return err
		}
		defs, err := resolveChecks(root, args)
		if err != nil {
			return err
		}

		if checkList {
			gray := color.New(color.FgHiBlack).SprintFunc()
			for _, d := range defs {
				fmt.Printf("%-10s %s\n", d.Name, gray(d.Run))
			}
			return nil
		}
		if len(defs) == 0 {
			return fmt.Errorf("no checks found: add a checks section to .selfheal/config.yaml")
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		healer, err := newHealer(ctx, store, root, healerOptions{dryRun: checkDryRun})
		if err != nil {
			return err
		}
		return runTargets(ctx, healer, checks.Targets(defs, root, nil))
	},
}

// resolveChecks merges detected and configured checks and selects names.
func resolveChecks(root string, names []string) ([]checks.Definition, error) {
	proj, err := project.Detect(root)
	if err != nil {
		return nil, err
	}
	return checks.Select(checks.Resolve(checks.FromProject(proj), cfg.Checks), names)
}

// runTargets heals targets in order and prints each report.
func runTargets(ctx context.Context, healer *heal.Healer, targets []heal.Target) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	for _, t := range targets {
		fmt.Printf("%s %s\n", cyan("→"), t.Name())
		report, err := healer.Heal(ctx, t)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		printReport(report)
		if !healthy(report) {
			exitCode = 1
		}
	}
	return nil
}

func init() {
	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "Print fix steps instead of running them")
	checkCmd.Flags().BoolVar(&checkList, "list", false, "List the resolved checks and exit")
	rootCmd.AddCommand(checkCmd)
}
