package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qmoi/selfheal/internal/platform"
)

var (
	deployProvider string
	deployStatus   bool
	deployDryRun   bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Heal the latest CI run or deployment on a provider",
	Long: `Inspect the latest run on Vercel, GitHub Actions or GitLab CI. If it failed,
its log is classified, the local fix is applied and committed (when commit
is enabled) or the run is re-triggered, and the new run is followed until it
finishes.

Tokens are read from VERCEL_TOKEN, GITHUB_TOKEN or GITLAB_TOKEN.

Examples:
  selfheal deploy                       # Provider from config.yaml
  selfheal deploy --provider vercel
  selfheal deploy --status              # Show the latest run only`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pc := cfg.PlatformConfig(deployProvider)
		if pc.Name == "" {
			return fmt.Errorf("no provider: pass --provider (%s) or set deploy.provider", strings.Join(platform.Names(), ", "))
		}
		provider, err := newProvider(pc)
		if err != nil {
			return err
		}

		if deployStatus {
			run, err := provider.LatestRun(ctx)
			if err != nil {
				return err
			}
			printRun(provider.Name(), run)
			return nil
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		root, err := projectRoot()
		if err != nil {
			return err
		}
		healer, err := newHealer(ctx, store, root, healerOptions{dryRun: deployDryRun})
		if err != nil {
			return err
		}

		target := platform.NewRunTarget(provider, cfg.Deploy.PollInterval, cfg.Deploy.Timeout, logger.Named("platform"))
		report, err := healer.Heal(ctx, target)
		if err != nil {
			return err
		}
		if run := target.LastRun(); run != nil {
			printRun(provider.Name(), run)
		}
		printReport(report)
		if !healthy(report) {
			exitCode = 1
		}
		return nil
	},
}

// newProvider builds a provider client from the deploy configuration.
func newProvider(pc platform.Config) (platform.Provider, error) {
	cc := platform.DefaultClientConfig("", "")
	cc.RatePerSec = cfg.Deploy.RatePerSec
	cc.Debug = verbose
	cc.Logger = logger.Named("platform")
	return platform.New(pc, cc)
}

func printRun(provider string, run *platform.Run) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	status := string(run.Status)
	switch run.Status {
	case platform.StatusSuccess:
		status = color.GreenString(status)
	case platform.StatusFailed, platform.StatusCanceled:
		status = color.RedString(status)
	default:
		status = color.YellowString(status)
	}
	fmt.Printf("%s run %s: %s", provider, run.ID, status)
	if !run.CreatedAt.IsZero() {
		fmt.Printf(" %s", gray(humanize.Time(run.CreatedAt)))
	}
	fmt.Println()
	if run.Branch != "" || run.Commit != "" {
		fmt.Printf("  %s\n", gray(fmt.Sprintf("branch=%s commit=%s", run.Branch, shortSHA(run.Commit))))
	}
	if run.URL != "" {
		fmt.Printf("  %s\n", gray(run.URL))
	}
}

func shortSHA(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func init() {
	deployCmd.Flags().StringVarP(&deployProvider, "provider", "p", "", "Provider: vercel, github or gitlab (default: deploy.provider)")
	deployCmd.Flags().BoolVar(&deployStatus, "status", false, "Show the latest run without healing")
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "Print fix steps instead of running them")
	rootCmd.AddCommand(deployCmd)
}
