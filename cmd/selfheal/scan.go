package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qmoi/selfheal/internal/types"
)

var (
	scanFix    bool
	scanSource string
	scanDryRun bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [file...]",
	Short: "Classify errors in log files or stdin",
	Long: `Match log text against the rule table and print what was recognized.
With --fix, the fix of the highest-priority match is applied and the
failure is counted like any other.

Examples:
  selfheal scan build.log
  npm run build 2>&1 | selfheal scan
  selfheal scan --fix --source deploy deploy.log`,
	RunE: func(cmd *cobra.Command, args []string) error {
		classifier, err := newClassifier()
		if err != nil {
			return err
		}

		type input struct{ source, text string }
		var inputs []input
		if len(args) == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			name := scanSource
			if name == "" {
				name = "stdin"
			}
			inputs = append(inputs, input{name, string(data)})
		}
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			name := scanSource
			if name == "" {
				name = filepath.Base(path)
			}
			inputs = append(inputs, input{name, string(data)})
		}

		for _, in := range inputs {
			cls := classifier.Classify(in.source, in.text)
			printClassification(cls)
		}
		if !scanFix {
			return nil
		}

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
		healer, err := newHealer(ctx, store, root, healerOptions{dryRun: scanDryRun})
		if err != nil {
			return err
		}
		for _, in := range inputs {
			report, err := healer.Handle(ctx, in.source, in.text)
			if err != nil {
				return err
			}
			printReport(report)
			if !healthy(report) {
				exitCode = 1
			}
		}
		return nil
	},
}

// printClassification lists every match, marking the primary one.
func printClassification(cls *types.Classification) {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	if !cls.Matched() {
		fmt.Printf("%s %s: no known errors\n", color.GreenString("✓"), cyan(cls.Source))
		return
	}
	fmt.Printf("%s %s: %d match(es), fingerprint %s\n",
		color.YellowString("!"), cyan(cls.Source), len(cls.Matches), cls.Fingerprint)
	for _, m := range cls.Matches {
		marker := " "
		if cls.Primary != nil && m.Rule == cls.Primary.Rule && m.LineNumber == cls.Primary.LineNumber {
			marker = color.RedString("*")
		}
		fmt.Printf(" %s %s %s %s\n", marker,
			gray(fmt.Sprintf("%5d", m.LineNumber)),
			severityColor(m.Severity).Sprintf("%-20s", m.Rule+"/"+string(m.Category)),
			truncate(m.Line, 100))
	}
}

func severityColor(s types.Severity) *color.Color {
	switch s {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case types.SeverityError:
		return color.New(color.FgRed)
	case types.SeverityWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:runeFloor(s, n)]
	}
	return s[:runeFloor(s, n-3)] + "..."
}

// runeFloor moves i back to the start of the rune containing s[i].
func runeFloor(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func init() {
	scanCmd.Flags().BoolVar(&scanFix, "fix", false, "Apply the fix for the primary match")
	scanCmd.Flags().StringVar(&scanSource, "source", "", "Source name (default: file name, or stdin)")
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "With --fix, print fix steps instead of running them")
	rootCmd.AddCommand(scanCmd)
}
