package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qmoi/selfheal/internal/config"
	"github.com/qmoi/selfheal/internal/events"
	"github.com/qmoi/selfheal/internal/storage"
)

var cleanupVacuum bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old events from the database",
	Long: `Delete events past their retention period and enforce the global event
limit (retention section of config.yaml, SELFHEAL_EVENT_* variables).
Failure counts and fix attempts are never pruned.

Examples:
  selfheal cleanup
  selfheal cleanup --vacuum    # Also reclaim disk space`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		rc := cfg.Retention
		if cleanupVacuum {
			rc.CleanupVacuum = true
		}

		before, err := store.GetEventCounts(ctx)
		if err != nil {
			return err
		}
		byAge, byLimit, err := runRetention(ctx, store, rc)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s Deleted %s event(s) %s\n", green("✓"), humanize.Comma(int64(byAge+byLimit)),
			gray(fmt.Sprintf("(%d past retention, %d over limit)", byAge, byLimit)))
		fmt.Printf("  %s events before, %s after\n",
			humanize.Comma(int64(before.TotalEvents)), humanize.Comma(int64(before.TotalEvents-byAge-byLimit)))
		return nil
	},
}

// runRetention applies the retention policy and records an events_cleanup
// event when anything was deleted.
func runRetention(ctx context.Context, store storage.Storage, rc config.RetentionConfig) (byAge, byLimit int, err error) {
	start := time.Now()
	byAge, err = store.CleanupEventsByAge(ctx, rc.RetentionDays, rc.RetentionCriticalDays, rc.CleanupBatchSize)
	if err != nil {
		return byAge, 0, fmt.Errorf("age-based cleanup failed: %w", err)
	}
	byLimit, err = store.CleanupEventsByGlobalLimit(ctx, rc.GlobalLimitEvents, rc.CleanupBatchSize)
	if err != nil {
		return byAge, byLimit, fmt.Errorf("limit-based cleanup failed: %w", err)
	}
	if rc.CleanupVacuum {
		if err := store.VacuumDatabase(ctx); err != nil {
			return byAge, byLimit, err
		}
	}

	logger.Info("event cleanup finished",
		zap.Int("deleted_by_age", byAge),
		zap.Int("deleted_by_limit", byLimit),
		zap.Bool("vacuum", rc.CleanupVacuum),
		zap.Duration("duration", time.Since(start)))

	if byAge+byLimit > 0 {
		ev := events.New(events.EventTypeEventsCleanup, "selfheal", events.SeverityInfo,
			fmt.Sprintf("Deleted %d events", byAge+byLimit))
		if err := ev.SetData(map[string]interface{}{
			"deleted_by_age":   byAge,
			"deleted_by_limit": byLimit,
			"retention_days":   rc.RetentionDays,
			"global_limit":     rc.GlobalLimitEvents,
			"vacuum":           rc.CleanupVacuum,
		}); err == nil {
			if err := store.StoreEvent(ctx, ev); err != nil {
				logger.Warn("failed to record cleanup event", zap.Error(err))
			}
		}
	}
	return byAge, byLimit, nil
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupVacuum, "vacuum", false, "Run VACUUM after deleting")
	rootCmd.AddCommand(cleanupCmd)
}
