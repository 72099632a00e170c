package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"
)

// colSep separates table columns; fix commands may contain pipes.
const colSep = "\x1f"

var rulesVerbose bool

var rulesCmd = &cobra.Command{
	Use:   "rules [name]",
	Short: "Show the error rule table",
	Long: `List the rules used to classify failures, in priority order: when a log
matches several rules, the fix of the earliest one is tried first. Rules
from config.yaml replace built-in rules of the same name and are appended
otherwise.

Examples:
  selfheal rules
  selfheal rules npm-peer-dependency    # Patterns and fix steps of one rule`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		classifier, err := newClassifier()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			r, ok := classifier.Rule(args[0])
			if !ok {
				return fmt.Errorf("unknown rule %q", args[0])
			}
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("%s  %s", color.CyanString(r.Name), r.Category)
			if r.Severity != "" {
				fmt.Printf(" (%s)", r.Severity)
			}
			if r.Retryable {
				fmt.Printf(" %s", gray("retryable"))
			}
			fmt.Println()
			fmt.Println("\nPatterns:")
			for _, p := range r.Patterns {
				fmt.Printf("  %s\n", p)
			}
			fmt.Println("\nFix:")
			if len(r.Fixes) == 0 {
				fmt.Printf("  %s\n", gray("(none: escalates)"))
			}
			for i, f := range r.Fixes {
				fmt.Printf("  %d. %s\n", i+1, f.Run)
				if f.Timeout > 0 {
					fmt.Printf("     %s\n", gray(fmt.Sprintf("timeout %s", f.Timeout)))
				}
			}
			return nil
		}

		rows := []string{strings.Join([]string{"#", "NAME", "CATEGORY", "FIX"}, colSep)}
		for i, r := range classifier.Rules() {
			fix := "-"
			switch {
			case len(r.Fixes) > 0:
				steps := make([]string, len(r.Fixes))
				for j, f := range r.Fixes {
					steps[j] = f.Label()
				}
				fix = strings.Join(steps, "; ")
			case r.Retryable:
				fix = "(retry)"
			}
			if !rulesVerbose {
				fix = truncate(fix, 60)
			}
			rows = append(rows, strings.Join([]string{strconv.Itoa(i + 1), r.Name, string(r.Category), fix}, colSep))
		}
		fmt.Println(columnize.Format(rows, &columnize.Config{Delim: colSep, Glue: "  "}))
		return nil
	},
}

func init() {
	rulesCmd.Flags().BoolVarP(&rulesVerbose, "wide", "w", false, "Do not truncate fix commands")
	rootCmd.AddCommand(rulesCmd)
}
