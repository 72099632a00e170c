package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qmoi/selfheal/internal/git"
	"github.com/qmoi/selfheal/internal/platform"
	"github.com/qmoi/selfheal/internal/project"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the selfheal setup in this directory",
	Long: `Run diagnostics for common setup problems:

  - database discovery and access
  - config.yaml and rule table validity
  - project detection and check commands on PATH
  - git availability (required when heal.commit is set)
  - provider token, notification channels and AI key

Exits with status 1 when any check fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		var failures, warnings int
		ok := func(format string, a ...interface{}) {
			fmt.Printf("  %s %s\n", green("✓"), fmt.Sprintf(format, a...))
		}
		warn := func(format string, a ...interface{}) {
			warnings++
			fmt.Printf("  %s %s\n", yellow("⚠"), fmt.Sprintf(format, a...))
		}
		fail := func(format string, a ...interface{}) {
			failures++
			fmt.Printf("  %s %s\n", red("✗"), fmt.Sprintf(format, a...))
		}

		fmt.Printf("Running selfheal health checks...\n\n")

		fmt.Printf("%s Database\n", cyan("→"))
		store, err := openStore(ctx)
		if err != nil {
			fail("%v", err)
		} else {
			ok("Database: %s", dbPath)
			if counts, err := store.GetEventCounts(ctx); err == nil {
				ok("%d events recorded", counts.TotalEvents)
			}
			_ = store.Close()
		}

		fmt.Printf("%s Configuration\n", cyan("→"))
		if _, err := os.Stat(configPath); err != nil {
			warn("No config file at %s (using defaults)", configPath)
		} else {
			ok("Config: %s", configPath)
		}
		if c, err := newClassifier(); err != nil {
			fail("%v", err)
		} else {
			ok("%d rules loaded", len(c.Rules()))
		}

		fmt.Printf("%s Project\n", cyan("→"))
		root, err := projectRoot()
		if err != nil {
			fail("%v", err)
		} else {
			proj, err := project.Detect(root)
			if err != nil {
				fail("%v", err)
			} else {
				ok("%s project %s", proj.Kind, proj.Name)
			}
			defs, err := resolveChecks(root, nil)
			switch {
			case err != nil:
				fail("%v", err)
			case len(defs) == 0:
				warn("No checks detected or configured")
			}
			for _, d := range defs {
				bin := firstWord(d.Run)
				if _, err := exec.LookPath(bin); err != nil {
					warn("check %s: %s not found on PATH", d.Name, bin)
				} else {
					ok("check %s: %s", d.Name, d.Run)
				}
			}
			for _, dir := range cfg.Watch.Dirs {
				if !filepath.IsAbs(dir) {
					dir = filepath.Join(root, dir)
				}
				if info, err := os.Stat(dir); err != nil || !info.IsDir() {
					warn("watch dir %s does not exist", dir)
				}
			}
		}

		fmt.Printf("%s Git\n", cyan("→"))
		if g, err := git.NewGit(ctx); err != nil {
			if cfg.Heal.Commit {
				fail("git unavailable but heal.commit is set: %v", err)
			} else {
				warn("git unavailable: %v", err)
			}
		} else if root != "" && !g.IsRepo(ctx, root) {
			if cfg.Heal.Commit {
				fail("%s is not a git repository but heal.commit is set", root)
			} else {
				warn("%s is not a git repository", root)
			}
		} else {
			ok("git repository")
			if dirty, err := g.HasUncommittedChanges(ctx, root); err == nil && dirty && cfg.Heal.Commit {
				warn("Uncommitted changes would be included in fix commits")
			}
		}

		fmt.Printf("%s Integrations\n", cyan("→"))
		if p := cfg.Deploy.Provider; p != "" {
			pc := cfg.PlatformConfig("")
			if pc.ResolveToken() == "" {
				fail("deploy provider %s: %s not set", p, platform.TokenEnv[p])
			} else if _, err := newProvider(pc); err != nil {
				fail("deploy provider %s: %v", p, err)
			} else {
				ok("deploy provider %s", p)
			}
		}
		if n := buildNotifier().Len(); n == 0 {
			warn("No notification channels: escalations are only recorded")
		} else {
			ok("%d notification channel(s)", n)
		}
		if cfg.AI.Enabled {
			if os.Getenv("ANTHROPIC_API_KEY") == "" {
				fail("ai.enabled is set but ANTHROPIC_API_KEY is not")
			} else {
				ok("AI diagnosis enabled")
			}
		}

		fmt.Println()
		switch {
		case failures > 0:
			fmt.Printf("%s %d check(s) failed, %d warning(s)\n", red("✗"), failures, warnings)
			exitCode = 1
		case warnings > 0:
			fmt.Printf("%s All checks passed with %d warning(s)\n", yellow("⚠"), warnings)
		default:
			fmt.Printf("%s All checks passed\n", green("✓"))
		}
		return nil
	},
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' || r == '\t' {
			return s[:i]
		}
	}
	return s
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
