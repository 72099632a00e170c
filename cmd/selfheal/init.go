package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qmoi/selfheal/internal/checks"
	"github.com/qmoi/selfheal/internal/config"
	"github.com/qmoi/selfheal/internal/project"
	"github.com/qmoi/selfheal/internal/storage"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up self-healing in the current directory",
	Long: `Create .selfheal/ with a database and a config.yaml.

The project type is detected (package.json, go.mod, requirements.txt or
pyproject.toml) and its build, lint and test commands are written to the
config as checks. Edit .selfheal/config.yaml to add rules, notifications
or a CI provider.

Examples:
  selfheal init
  selfheal init --force    # Rewrite config.yaml with detected defaults`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}

		path, err := storage.InitProject(cwd)
		if err != nil {
			return err
		}
		store, err := storage.NewStorage(cmd.Context(), &storage.Config{Path: path})
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		_ = store.Close()

		proj, err := project.Detect(cwd)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		cfgFile := config.Path(cwd, storage.StateDir)
		_, statErr := os.Stat(cfgFile)
		wrote := false
		if initForce || errors.Is(statErr, os.ErrNotExist) {
			c := config.Default()
			c.Checks = checks.FromProject(proj)
			if err := c.Save(cfgFile); err != nil {
				return err
			}
			wrote = true
		}

		fmt.Printf("\n%s Initialized selfheal\n\n", green("✓"))
		fmt.Printf("  Database: %s\n", cyan(path))
		if wrote {
			fmt.Printf("  Config:   %s\n", cyan(cfgFile))
		} else {
			fmt.Printf("  Config:   %s %s\n", cyan(cfgFile), gray("(kept existing, use --force to rewrite)"))
		}
		fmt.Printf("  Project:  %s (%s)\n", cyan(proj.Name), proj.Kind)
		for _, c := range proj.Commands {
			fmt.Printf("    %-6s %s\n", c.Name, gray(c.Run))
		}
		fmt.Println()

		fmt.Printf("%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray("selfheal check           # Run and heal the detected checks"))
		fmt.Printf("  %s\n", gray("selfheal run -- npm test  # Heal any command"))
		fmt.Printf("  %s\n", gray("selfheal daemon          # Watch logs and re-check on a schedule"))
		fmt.Println()
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config.yaml")
	rootCmd.AddCommand(initCmd)
}
