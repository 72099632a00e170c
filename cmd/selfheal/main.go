// Command selfheal watches builds, deployments and logs, classifies failures
// against a rule table and applies known fixes until the build passes or a
// human has to take over.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qmoi/selfheal/internal/config"
	"github.com/qmoi/selfheal/internal/logging"
	"github.com/qmoi/selfheal/internal/storage"
)

var version = "dev"

var (
	// Global flags
	dbPath     string
	configPath string
	verbose    bool
	logFormat  string
	logFile    string

	logger *zap.Logger
	cfg    *config.Config

	// exitCode is set by commands whose outcome is not an error but should
	// still fail the process (a check that could not be healed).
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "selfheal",
	Short: "Self-healing CI: classify failures, apply known fixes, escalate the rest",
	Long: `selfheal runs your build, lint and test commands (or watches a CI provider
or log directory), matches failure output against a table of known error
patterns and applies the fix registered for the match. It re-checks with
exponential backoff and notifies a human when a failure keeps coming back.

State lives in .selfheal/ (SQLite database, config.yaml, daemon lock).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.Options{Verbose: verbose, Format: logFormat, File: logFile})
		if err != nil {
			return err
		}

		if configPath == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}
			configPath = config.Path(cwd, storage.StateDir)
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger.Debug("configuration loaded", zap.String("path", configPath))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: SELFHEAL_DB or .selfheal/selfheal.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: .selfheal/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// openStore opens the project database, resolving --db, SELFHEAL_DB and
// .selfheal/selfheal.db in that order.
func openStore(ctx context.Context) (storage.Storage, error) {
	path := dbPath
	if path == "" {
		var err error
		path, err = storage.DiscoverDatabase()
		if err != nil {
			return nil, err
		}
	}
	store, err := storage.NewStorage(ctx, &storage.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	dbPath = path
	return store, nil
}

// projectRoot is the directory fixes run in: the parent of .selfheal when the
// database lives there, otherwise the working directory.
func projectRoot() (string, error) {
	if dbPath != "" && dbPath != ":memory:" {
		if root, err := storage.GetProjectRoot(dbPath); err == nil {
			return root, nil
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return filepath.Abs(cwd)
}

// isCanceled reports whether err came from Ctrl-C or SIGTERM.
func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, ctx.Err())
}
