package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/qmoi/selfheal/internal/storage"
)

var (
	failuresSource   string
	failuresMinCount int
	failuresLimit    int
	failuresReset    bool
)

var failuresCmd = &cobra.Command{
	Use:   "failures [fingerprint]",
	Short: "List persistent failures and their counts",
	Long: `Show every failure fingerprint seen so far with how often it occurred.
A failure is escalated once its count reaches heal.escalate_after.

With --reset, clear one fingerprint, all failures of --source, or
everything, so the count starts again from zero.

Examples:
  selfheal failures
  selfheal failures --source build --min-count 3
  selfheal failures --reset 3f9a2c1d0b7e4a55
  selfheal failures --reset --source deploy`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if failuresReset {
			green := color.New(color.FgGreen).SprintFunc()
			if len(args) == 1 {
				if err := store.ResetFailure(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("%s Reset failure %s\n", green("✓"), args[0])
				return nil
			}
			n, err := store.ResetFailures(ctx, failuresSource)
			if err != nil {
				return err
			}
			scope := "all sources"
			if failuresSource != "" {
				scope = failuresSource
			}
			fmt.Printf("%s Reset %d failure(s) for %s\n", green("✓"), n, scope)
			return nil
		}

		if len(args) == 1 {
			f, err := store.GetFailure(ctx, args[0])
			if err != nil {
				return err
			}
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("%s  %s\n", color.CyanString(f.Fingerprint), f.Source)
			fmt.Printf("  category:   %s (%s)\n", f.Category, f.Rule)
			fmt.Printf("  count:      %d\n", f.Count)
			fmt.Printf("  first seen: %s\n", humanize.Time(f.FirstSeen))
			fmt.Printf("  last seen:  %s\n", humanize.Time(f.LastSeen))
			fmt.Printf("  escalated:  %t\n", f.Escalated)
			if f.Sample != "" {
				fmt.Printf("\n%s\n", gray(f.Sample))
			}
			return nil
		}

		list, err := store.ListFailures(ctx, storage.FailureFilter{
			Source:   failuresSource,
			MinCount: failuresMinCount,
			Limit:    failuresLimit,
		})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Printf("\n%s No failures recorded\n\n", color.GreenString("✨"))
			return nil
		}

		threshold := cfg.Heal.EscalateAfter
		rows := []string{strings.Join([]string{"FINGERPRINT", "SOURCE", "CATEGORY", "RULE", "COUNT", "LAST SEEN", "STATUS"}, colSep)}
		for _, f := range list {
			status := ""
			switch {
			case f.Escalated:
				status = color.RedString("escalated")
			case f.Count >= threshold-1:
				status = color.YellowString("near threshold")
			}
			rows = append(rows, strings.Join([]string{
				f.Fingerprint,
				f.Source,
				string(f.Category),
				f.Rule,
				strconv.Itoa(f.Count),
				humanize.Time(f.LastSeen),
				status,
			}, colSep))
		}
		fmt.Println(columnize.Format(rows, &columnize.Config{Delim: colSep, Glue: "  "}))
		return nil
	},
}

func init() {
	failuresCmd.Flags().StringVarP(&failuresSource, "source", "s", "", "Only failures of this source")
	failuresCmd.Flags().IntVar(&failuresMinCount, "min-count", 0, "Only failures seen at least this often")
	failuresCmd.Flags().IntVarP(&failuresLimit, "limit", "n", 50, "Maximum rows")
	failuresCmd.Flags().BoolVar(&failuresReset, "reset", false, "Reset counts instead of listing")
	rootCmd.AddCommand(failuresCmd)
}
