package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/qmoi/selfheal/internal/checks"
)

var (
	runName    string
	runTimeout time.Duration
	runDryRun  bool
)

var runCmd = &cobra.Command{
	Use:   "run -- <command> [args...]",
	Short: "Run a command and heal it until it passes",
	Long: `Run an arbitrary command as a heal target. When it fails, its output is
classified and the matching fix is applied before running it again.

Examples:
  selfheal run -- npm run build
  selfheal run --name e2e -- npx playwright test
  selfheal run --dry-run -- make lint      # Show fixes without running them`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		root, err := projectRoot()
		if err != nil {
			return err
		}

		command := strings.Join(args, " ")
		name := runName
		if name == "" {
			name = args[0]
		}
		def := checks.Definition{Name: name, Run: command, Timeout: runTimeout}
		if err := def.Validate(); err != nil {
			return err
		}

		healer, err := newHealer(ctx, store, root, healerOptions{dryRun: runDryRun})
		if err != nil {
			return err
		}

		fmt.Printf("Running %s\n", command)
		report, err := healer.Heal(ctx, checks.NewCommandTarget(def, root, nil))
		if err != nil {
			return err
		}
		printReport(report)
		if !healthy(report) {
			exitCode = 1
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "Source name recorded for this command (default: the program name)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Kill the command after this long (default: 15m)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print fix steps instead of running them")
	rootCmd.AddCommand(runCmd)
}
