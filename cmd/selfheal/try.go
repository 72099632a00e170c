package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qmoi/selfheal/internal/storage"
)

var tryCmd = &cobra.Command{
	Use:   "try",
	Short: "Interactively test log lines against the rule table",
	Long: `Type or paste log lines to see which rule matches, its category and the
fix that would run. Nothing is executed and nothing is recorded.

Commands:
  :paste   read lines until a line with a single "." and classify them together
  :quit    exit (or Ctrl-D)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		classifier, err := newClassifier()
		if err != nil {
			return err
		}

		rl, err := readline.NewEx(&readline.Config{
			Prompt:            color.CyanString("selfheal> "),
			HistoryFile:       filepath.Join(storage.StateDir, "try_history"),
			InterruptPrompt:   "^C",
			EOFPrompt:         "exit",
			HistorySearchFold: true,
		})
		if err != nil {
			return fmt.Errorf("failed to start prompt: %w", err)
		}
		defer func() { _ = rl.Close() }()

		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s\n", gray("Paste a log line, :paste for several, :quit to exit."))

		for {
			line, err := rl.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						return nil
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}

			text := strings.TrimSpace(line)
			switch text {
			case "":
				continue
			case ":quit", ":q", "exit":
				return nil
			case ":paste":
				var lines []string
				rl.SetPrompt(gray(".. "))
				for {
					l, err := rl.Readline()
					if err != nil || strings.TrimSpace(l) == "." {
						break
					}
					lines = append(lines, l)
				}
				rl.SetPrompt(color.CyanString("selfheal> "))
				text = strings.Join(lines, "\n")
			}

			cls := classifier.Classify("try", text)
			printClassification(cls)
			if cls.Primary != nil {
				if r, ok := classifier.Rule(cls.Primary.Rule); ok {
					switch {
					case len(r.Fixes) > 0:
						for i, f := range r.Fixes {
							fmt.Printf("    %s %s\n", gray(fmt.Sprintf("fix %d:", i+1)), f.Run)
						}
					case r.Retryable:
						fmt.Printf("    %s\n", gray("fix: re-run (transient)"))
					default:
						fmt.Printf("    %s\n", gray("no fix: escalates"))
					}
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(tryCmd)
}
