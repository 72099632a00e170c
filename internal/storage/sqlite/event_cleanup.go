package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// EventCounts holds event count statistics for monitoring
type EventCounts struct {
	TotalEvents      int
	EventsBySource   map[string]int
	EventsBySeverity map[string]int
	EventsByType     map[string]int
}

// CleanupEventsByAge deletes events older than the retention period.
// Info and warning events are deleted after retentionDays, error and critical
// events after criticalRetentionDays. Deletes run in batches of batchSize.
func (s *SQLiteStorage) CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error) {
	if retentionDays < 0 || criticalRetentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	now := time.Now()
	total := 0

	deleted, err := s.deleteOldEventsBatch(ctx, now.AddDate(0, 0, -retentionDays), []string{"info", "warning"}, batchSize)
	total += deleted
	if err != nil {
		return total, fmt.Errorf("failed to delete old regular events: %w", err)
	}

	deleted, err = s.deleteOldEventsBatch(ctx, now.AddDate(0, 0, -criticalRetentionDays), []string{"error", "critical"}, batchSize)
	total += deleted
	if err != nil {
		return total, fmt.Errorf("failed to delete old critical events: %w", err)
	}

	return total, nil
}

func (s *SQLiteStorage) deleteOldEventsBatch(ctx context.Context, cutoff time.Time, severities []string, batchSize int) (int, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(severities)), ", ")
	query := fmt.Sprintf(`
		DELETE FROM events
		WHERE id IN (
			SELECT id FROM events
			WHERE timestamp < ?
			AND severity IN (%s)
			ORDER BY timestamp ASC
			LIMIT ?
		)
	`, placeholders)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		args := []interface{}{formatTime(cutoff)}
		for _, sev := range severities {
			args = append(args, sev)
		}
		args = append(args, batchSize)

		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("failed to execute delete: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += int(n)

		if n < int64(batchSize) {
			return total, nil
		}
	}
}

// CleanupEventsByGlobalLimit keeps at most globalLimit events, deleting the
// oldest info and warning events first and then the oldest of any severity.
func (s *SQLiteStorage) CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error) {
	if globalLimit < 0 {
		return 0, fmt.Errorf("global limit cannot be negative")
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	total := 0
	for _, severityClause := range []string{"AND severity IN ('info', 'warning')", ""} {
		for {
			if err := ctx.Err(); err != nil {
				return total, err
			}

			var count int
			if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err != nil {
				return total, fmt.Errorf("failed to count events: %w", err)
			}
			excess := count - globalLimit
			if excess <= 0 {
				return total, nil
			}
			if excess > batchSize {
				excess = batchSize
			}

			result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
				DELETE FROM events
				WHERE id IN (
					SELECT id FROM events
					WHERE 1=1 %s
					ORDER BY timestamp ASC
					LIMIT ?
				)
			`, severityClause), excess)
			if err != nil {
				return total, fmt.Errorf("failed to execute delete: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return total, fmt.Errorf("failed to get rows affected: %w", err)
			}
			total += int(n)
			if n < int64(excess) {
				// Nothing left in this severity class
				break
			}
		}
	}
	return total, nil
}

// GetEventCounts returns event count statistics
func (s *SQLiteStorage) GetEventCounts(ctx context.Context) (*EventCounts, error) {
	counts := &EventCounts{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&counts.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to get total event count: %w", err)
	}

	var err error
	if counts.EventsBySource, err = s.countBy(ctx, "source"); err != nil {
		return nil, err
	}
	if counts.EventsBySeverity, err = s.countBy(ctx, "severity"); err != nil {
		return nil, err
	}
	if counts.EventsByType, err = s.countBy(ctx, "type"); err != nil {
		return nil, err
	}
	return counts, nil
}

// countBy groups events by a trusted column name.
func (s *SQLiteStorage) countBy(ctx context.Context, column string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM events GROUP BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("failed to query events by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		out[key] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return out, nil
}

// VacuumDatabase runs VACUUM to reclaim disk space
func (s *SQLiteStorage) VacuumDatabase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
