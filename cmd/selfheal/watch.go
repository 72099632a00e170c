package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qmoi/selfheal/internal/heal"
	"github.com/qmoi/selfheal/internal/watch"
)

var (
	watchFromStart bool
	watchDryRun    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir...]",
	Short: "Watch log directories and heal errors as they are written",
	Long: `Follow .log, .err and .out files in the given directories (or watch.dirs
from config.yaml). New text is classified as it is appended; a recognized
error gets its fix applied, at most once per cooldown for the same failure.

Examples:
  selfheal watch logs/
  selfheal watch --from-start build/logs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dirs := args
		if len(dirs) == 0 {
			dirs = cfg.Watch.Dirs
		}
		if len(dirs) == 0 {
			return fmt.Errorf("nothing to watch: pass directories or set watch.dirs")
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
		healer, err := newHealer(ctx, store, root, healerOptions{dryRun: watchDryRun})
		if err != nil {
			return err
		}

		w, err := newWatcher(dirs, healer, &sync.Mutex{})
		if err != nil {
			return err
		}
		fmt.Printf("%s Watching %v (Ctrl-C to stop)\n", color.CyanString("→"), dirs)
		if err := w.Run(ctx); err != nil {
			return err
		}
		st := w.Stats()
		fmt.Printf("\nStopped: %d file events, %d triggers\n", st.Events, st.Triggers)
		return nil
	},
}

// newWatcher builds a watcher whose handler feeds new log text to the
// healer. mu serializes healing with other work in the same process.
func newWatcher(dirs []string, healer *heal.Healer, mu *sync.Mutex) (*watch.Watcher, error) {
	handler := func(ctx context.Context, path, text string) {
		mu.Lock()
		defer mu.Unlock()

		source := filepath.Base(path)
		report, err := healer.Handle(ctx, source, text)
		if err != nil {
			if !isCanceled(ctx, err) {
				logger.Error("failed to handle log output", zap.String("path", path), zap.Error(err))
			}
			return
		}
		logger.Debug("log output handled",
			zap.String("path", path),
			zap.String("outcome", string(report.Outcome)),
			zap.String("rule", report.Rule))
		if report.Attempts > 0 || report.Escalation != nil {
			printReport(report)
		}
	}

	fromStart := cfg.Watch.FromStart || watchFromStart
	return watch.New(watch.Config{
		Dirs:       dirs,
		Extensions: cfg.Watch.Extensions,
		Debounce:   cfg.Watch.Debounce,
		FromStart:  fromStart,
		Logger:     logger.Named("watch"),
	}, handler)
}

func init() {
	watchCmd.Flags().BoolVar(&watchFromStart, "from-start", false, "Read existing files from the beginning")
	watchCmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "Print fix steps instead of running them")
	rootCmd.AddCommand(watchCmd)
}
