package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qmoi/selfheal/internal/events"
)

var (
	activityLimit    int
	activitySource   string
	activityType     string
	activitySeverity string
	activitySince    time.Duration
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent heal events",
	Long: `Display the audit trail: checks, classifications, fixes, commits,
retries and escalations, oldest first so the latest is at the bottom.

Examples:
  selfheal activity                   # Last 20 events
  selfheal activity -n 100 --source build
  selfheal activity --type escalated --since 24h`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		filter := events.Filter{
			Source:   activitySource,
			Type:     events.EventType(activityType),
			Severity: events.EventSeverity(activitySeverity),
			Limit:    activityLimit,
		}
		if activityType != "" && !filter.Type.IsValid() {
			return fmt.Errorf("unknown event type %q", activityType)
		}
		if activitySince > 0 {
			filter.AfterTime = time.Now().Add(-activitySince)
		}

		list, err := store.GetEvents(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to fetch events: %w", err)
		}
		if len(list) == 0 {
			fmt.Printf("\n%s No events found matching the criteria\n\n", color.YellowString("✨"))
			return nil
		}

		fmt.Printf("\n%s Recent activity (%d events):\n\n", color.CyanString("📋"), len(list))
		for i := len(list) - 1; i >= 0; i-- {
			displayEvent(list[i])
		}
		fmt.Println()
		return nil
	},
}

// displayEvent prints an event on two lines: header and key data fields.
func displayEvent(e *events.Event) {
	gray := color.New(color.FgHiBlack)
	source := color.New(color.FgGreen).Sprint(e.Source)
	kind := color.New(color.FgMagenta).Sprint(e.Type)

	fmt.Printf("%s [%s] %s %s: %s %s\n",
		eventIcon(e),
		e.Timestamp.Format("15:04:05"),
		source,
		kind,
		eventSeverityColor(e.Severity).Sprint(truncate(e.Message, 70)),
		gray.Sprint(humanize.Time(e.Timestamp)),
	)
	if meta := eventMetadata(e); meta != "" {
		fmt.Printf("  %s\n", gray.Sprint(meta))
	}
}

func eventIcon(e *events.Event) string {
	switch e.Type {
	case events.EventTypeCheckPassed, events.EventTypeFixCompleted:
		return "✅"
	case events.EventTypeCheckFailed, events.EventTypeFixFailed:
		return "❌"
	case events.EventTypeErrorClassified:
		return "🔎"
	case events.EventTypeFixStarted:
		return "🔧"
	case events.EventTypeGitCommit, events.EventTypeGitPush:
		return "📦"
	case events.EventTypeRemoteRetry:
		return "🔁"
	case events.EventTypeEscalated:
		return "🚨"
	case events.EventTypeWatchTriggered:
		return "👀"
	case events.EventTypeAIDiagnosis:
		return "🤖"
	case events.EventTypeEventsCleanup:
		return "🧹"
	default:
		return "•"
	}
}

func eventSeverityColor(s events.EventSeverity) *color.Color {
	switch s {
	case events.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case events.SeverityError:
		return color.New(color.FgRed)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}

// eventMetadata picks a few data fields worth showing for each event type.
func eventMetadata(e *events.Event) string {
	var keys []string
	switch e.Type {
	case events.EventTypeErrorClassified:
		keys = []string{"primary", "matches", "line_number"}
	case events.EventTypeFixStarted, events.EventTypeFixCompleted, events.EventTypeFixFailed:
		keys = []string{"rule", "attempt", "dry_run", "duration_seconds"}
	case events.EventTypeGitCommit, events.EventTypeGitPush:
		keys = []string{"commit", "branch", "remote"}
	case events.EventTypeEscalated:
		keys = []string{"category", "rule", "count"}
	case events.EventTypeEventsCleanup:
		keys = []string{"deleted_by_age", "deleted_by_limit"}
	default:
		keys = []string{"exit_code", "url", "path", "category", "confidence"}
	}

	var parts []string
	if e.Fingerprint != "" {
		parts = append(parts, "fp="+e.Fingerprint)
	}
	for _, k := range keys {
		v, ok := e.Data[k]
		if !ok || v == nil || v == "" || v == false {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " | ")
}

func init() {
	activityCmd.Flags().IntVarP(&activityLimit, "limit", "n", 20, "Number of recent events to show")
	activityCmd.Flags().StringVarP(&activitySource, "source", "s", "", "Filter by source")
	activityCmd.Flags().StringVarP(&activityType, "type", "t", "", "Filter by event type (e.g. fix_failed, escalated)")
	activityCmd.Flags().StringVar(&activitySeverity, "severity", "", "Filter by severity (info, warning, error, critical)")
	activityCmd.Flags().DurationVar(&activitySince, "since", 0, "Only events newer than this (e.g. 2h)")
	rootCmd.AddCommand(activityCmd)
}
