package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/qmoi/selfheal/internal/types"
)

// RecordAttempt stores a fix attempt. An empty ID is filled with a new UUID.
func (s *SQLiteStorage) RecordAttempt(ctx context.Context, a *types.Attempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now()
	}
	if !a.Outcome.IsValid() {
		return fmt.Errorf("invalid outcome: %q", a.Outcome)
	}

	var finished sql.NullString
	if a.FinishedAt != nil {
		finished = sql.NullString{String: formatTime(*a.FinishedAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (id, source, fingerprint, rule, number, outcome, output, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Source, a.Fingerprint, a.Rule, a.Number, string(a.Outcome), a.Output,
		formatTime(a.StartedAt), finished)
	if err != nil {
		return fmt.Errorf("failed to record attempt (source=%s, rule=%s): %w", a.Source, a.Rule, err)
	}
	return nil
}

// ListAttempts returns attempts newest first, optionally for one source.
func (s *SQLiteStorage) ListAttempts(ctx context.Context, source string, limit int) ([]*types.Attempt, error) {
	query := `
		SELECT id, source, fingerprint, rule, number, outcome, output, started_at, finished_at
		FROM attempts
	`
	args := []interface{}{}
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY started_at DESC, number DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*types.Attempt
	for rows.Next() {
		var (
			a        types.Attempt
			outcome  string
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Source, &a.Fingerprint, &a.Rule, &a.Number, &outcome,
			&a.Output, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Outcome = types.Outcome(outcome)
		if a.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			a.FinishedAt = &t
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempt rows: %w", err)
	}
	return result, nil
}
