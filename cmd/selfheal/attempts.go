package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/qmoi/selfheal/internal/heal"
	"github.com/qmoi/selfheal/internal/types"
)

var (
	attemptsSource    string
	attemptsLimit     int
	attemptsStatsOnly bool
	attemptsJSON      bool
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Show fix history and per-rule success rates",
	Long: `List recent fix attempts and how often each rule's fix healed its target.

Statistics cover every recorded attempt (of --source, if given); the
attempt list shows the most recent --limit entries.

Examples:
  selfheal attempts
  selfheal attempts --source build -n 50
  selfheal attempts --stats
  selfheal attempts --json > selfheal-report.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		all, err := store.ListAttempts(ctx, attemptsSource, 0)
		if err != nil {
			return err
		}
		sum := heal.Summarize(all, time.Now())
		recent := all
		if attemptsLimit > 0 && len(recent) > attemptsLimit {
			recent = recent[:attemptsLimit]
		}

		if attemptsJSON {
			sum.Recent = recent
			return writeSummaryJSON(os.Stdout, sum)
		}

		if len(all) == 0 {
			fmt.Printf("\n%s No fix attempts recorded\n\n", color.GreenString("✨"))
			return nil
		}

		if !attemptsStatsOnly {
			fmt.Println(columnize.Format(attemptRows(recent), &columnize.Config{Delim: colSep, Glue: "  "}))
			fmt.Println()
		}
		fmt.Println(columnize.Format(ruleStatRows(sum.Rules), &columnize.Config{Delim: colSep, Glue: "  "}))
		fmt.Printf("\n%s attempts, %s healed, %s failed\n",
			humanize.Comma(int64(sum.Attempts)),
			color.GreenString(humanize.Comma(int64(sum.Healed))),
			color.RedString(humanize.Comma(int64(sum.Failed))))
		return nil
	},
}

func attemptRows(list []*types.Attempt) []string {
	rows := []string{strings.Join([]string{"STARTED", "SOURCE", "RULE", "#", "OUTCOME", "DURATION", "FINGERPRINT"}, colSep)}
	for _, a := range list {
		duration := "-"
		if a.FinishedAt != nil {
			duration = a.FinishedAt.Sub(a.StartedAt).Round(time.Millisecond).String()
		}
		outcome := string(a.Outcome)
		if a.Outcome == types.OutcomeHealed {
			outcome = color.GreenString(outcome)
		} else {
			outcome = color.RedString(outcome)
		}
		rows = append(rows, strings.Join([]string{
			humanize.Time(a.StartedAt),
			a.Source,
			a.Rule,
			strconv.Itoa(a.Number),
			outcome,
			duration,
			a.Fingerprint,
		}, colSep))
	}
	return rows
}

func ruleStatRows(rules []heal.RuleStats) []string {
	rows := []string{strings.Join([]string{"RULE", "ATTEMPTS", "HEALED", "FAILED", "SUCCESS", "SOURCES", "LAST"}, colSep)}
	for _, r := range rules {
		rows = append(rows, strings.Join([]string{
			r.Rule,
			strconv.Itoa(r.Attempts),
			strconv.Itoa(r.Healed),
			strconv.Itoa(r.Failed),
			fmt.Sprintf("%.0f%%", r.SuccessRate()*100),
			strconv.Itoa(r.Sources),
			humanize.Time(r.LastAttempt),
		}, colSep))
	}
	return rows
}

func writeSummaryJSON(w io.Writer, sum *heal.Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func init() {
	attemptsCmd.Flags().StringVarP(&attemptsSource, "source", "s", "", "Only attempts of this source")
	attemptsCmd.Flags().IntVarP(&attemptsLimit, "limit", "n", 20, "Number of recent attempts to list")
	attemptsCmd.Flags().BoolVar(&attemptsStatsOnly, "stats", false, "Only show per-rule statistics")
	attemptsCmd.Flags().BoolVar(&attemptsJSON, "json", false, "Print the report as JSON")
	rootCmd.AddCommand(attemptsCmd)
}
