package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qmoi/selfheal/internal/checks"
	"github.com/qmoi/selfheal/internal/heal"
	"github.com/qmoi/selfheal/internal/platform"
	"github.com/qmoi/selfheal/internal/storage"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Watch logs, re-check on a schedule and prune old events",
	Long: `Run continuously in the foreground:

  - follow watch.dirs and heal errors as they are logged
  - every daemon.check_interval, heal the checks in daemon.checks (all
    checks when empty) and, with daemon.deploy, the latest provider run
  - every retention.cleanup_interval_hours, prune old events

Only one daemon runs per project (.selfheal/daemon.lock). Stop it with
Ctrl-C or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		lockPath, err := storage.AcquireDaemonLock(root, version)
		if err != nil {
			return err
		}
		defer func() {
			if err := storage.ReleaseDaemonLock(lockPath); err != nil {
				logger.Warn("failed to release daemon lock", zap.Error(err))
			}
		}()

		healer, err := newHealer(ctx, store, root, healerOptions{})
		if err != nil {
			return err
		}

		targets, err := scheduledTargets(root)
		if err != nil {
			return err
		}

		watching := len(cfg.Watch.Dirs) > 0
		scheduling := cfg.Daemon.CheckInterval > 0 && len(targets) > 0
		if !watching && !scheduling {
			return fmt.Errorf("nothing to do: set watch.dirs, or daemon.check_interval with checks or daemon.deploy")
		}

		var healMu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)

		if watching {
			w, err := newWatcher(cfg.Watch.Dirs, healer, &healMu)
			if err != nil {
				return err
			}
			g.Go(func() error { return w.Run(gctx) })
		}

		if scheduling {
			g.Go(func() error {
				return every(gctx, cfg.Daemon.CheckInterval, true, func(ctx context.Context) {
					healMu.Lock()
					defer healMu.Unlock()
					healScheduled(ctx, healer, targets)
				})
			})
		}

		if cfg.Retention.CleanupEnabled {
			rc := cfg.Retention
			g.Go(func() error {
				return every(gctx, rc.CleanupInterval(), false, func(ctx context.Context) {
					if _, _, err := runRetention(ctx, store, rc); err != nil && !isCanceled(ctx, err) {
						logger.Error("event cleanup failed", zap.Error(err))
					}
				})
			})
		}

		names := make([]string, 0, len(targets))
		for _, t := range targets {
			names = append(names, t.Name())
		}
		fmt.Printf("%s selfheal daemon started (pid lock %s)\n", color.GreenString("✓"), lockPath)
		logger.Info("daemon started",
			zap.Strings("watch", cfg.Watch.Dirs),
			zap.Strings("targets", names),
			zap.Duration("check_interval", cfg.Daemon.CheckInterval))

		err = g.Wait()
		logger.Info("daemon stopped")
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// scheduledTargets returns the checks (and provider run) the daemon heals
// on every tick.
func scheduledTargets(root string) ([]heal.Target, error) {
	defs, err := resolveChecks(root, cfg.Daemon.Checks)
	if err != nil {
		return nil, err
	}
	targets := checks.Targets(defs, root, nil)

	if cfg.Daemon.Deploy {
		pc := cfg.PlatformConfig("")
		if pc.Name == "" {
			return nil, fmt.Errorf("daemon.deploy is set but deploy.provider is empty")
		}
		provider, err := newProvider(pc)
		if err != nil {
			return nil, err
		}
		targets = append(targets, platform.NewRunTarget(provider, cfg.Deploy.PollInterval, cfg.Deploy.Timeout, logger.Named("platform")))
	}
	return targets, nil
}

func healScheduled(ctx context.Context, healer *heal.Healer, targets []heal.Target) {
	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		report, err := healer.Heal(ctx, t)
		if err != nil {
			if !isCanceled(ctx, err) {
				logger.Error("scheduled check failed", zap.String("target", t.Name()), zap.Error(err))
			}
			continue
		}
		logger.Info("scheduled check finished",
			zap.String("target", t.Name()),
			zap.String("outcome", string(report.Outcome)),
			zap.Int("attempts", report.Attempts),
			zap.Duration("duration", report.Duration))
	}
}

// every calls fn each interval until ctx is done, first immediately when
// now is set. It returns nil on cancellation.
func every(ctx context.Context, interval time.Duration, now bool, fn func(context.Context)) error {
	if now {
		fn(ctx)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
