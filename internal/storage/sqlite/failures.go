package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/qmoi/selfheal/internal/types"
)

// FailureFilter narrows ListFailures.
type FailureFilter struct {
	Source   string
	MinCount int
	Limit    int
}

// RecordFailure increments the persistent count for f.Fingerprint, creating
// the row on first sight, and returns the updated record.
func (s *SQLiteStorage) RecordFailure(ctx context.Context, f *types.Failure) (*types.Failure, error) {
	if f.Fingerprint == "" {
		return nil, fmt.Errorf("fingerprint is required")
	}
	now := formatTime(time.Now())

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO failures (fingerprint, source, category, rule, count, sample, first_seen, last_seen, escalated)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?, 0)
		ON CONFLICT(fingerprint) DO UPDATE SET
			count = count + 1,
			source = excluded.source,
			category = excluded.category,
			rule = excluded.rule,
			sample = excluded.sample,
			last_seen = excluded.last_seen
		RETURNING fingerprint, source, category, rule, count, sample, first_seen, last_seen, escalated
	`, f.Fingerprint, f.Source, string(f.Category), f.Rule, f.Sample, now, now)

	out, err := scanFailure(row)
	if err != nil {
		return nil, fmt.Errorf("failed to record failure %s: %w", f.Fingerprint, err)
	}
	return out, nil
}

// GetFailure returns the failure record for a fingerprint, or ErrNotFound.
func (s *SQLiteStorage) GetFailure(ctx context.Context, fingerprint string) (*types.Failure, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, source, category, rule, count, sample, first_seen, last_seen, escalated
		FROM failures WHERE fingerprint = ?
	`, fingerprint)

	f, err := scanFailure(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failure %s: %w", fingerprint, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failure %s: %w", fingerprint, err)
	}
	return f, nil
}

// ListFailures returns failures ordered by most recently seen.
func (s *SQLiteStorage) ListFailures(ctx context.Context, filter FailureFilter) ([]*types.Failure, error) {
	query := `
		SELECT fingerprint, source, category, rule, count, sample, first_seen, last_seen, escalated
		FROM failures
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if filter.MinCount > 0 {
		query += " AND count >= ?"
		args = append(args, filter.MinCount)
	}
	query += " ORDER BY last_seen DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*types.Failure
	for rows.Next() {
		f, err := scanFailure(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failure rows: %w", err)
	}
	return result, nil
}

// ResetFailure clears the persistent count for a fingerprint. Resetting an
// unknown fingerprint is not an error.
func (s *SQLiteStorage) ResetFailure(ctx context.Context, fingerprint string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM failures WHERE fingerprint = ?`, fingerprint); err != nil {
		return fmt.Errorf("failed to reset failure %s: %w", fingerprint, err)
	}
	return nil
}

// ResetFailures clears every failure for source, or all failures when source
// is empty. It returns the number of records removed.
func (s *SQLiteStorage) ResetFailures(ctx context.Context, source string) (int, error) {
	var (
		result sql.Result
		err    error
	)
	if source == "" {
		result, err = s.db.ExecContext(ctx, `DELETE FROM failures`)
	} else {
		result, err = s.db.ExecContext(ctx, `DELETE FROM failures WHERE source = ?`, source)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reset failures: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// MarkEscalated flags a failure as escalated.
func (s *SQLiteStorage) MarkEscalated(ctx context.Context, fingerprint string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE failures SET escalated = 1 WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to mark failure %s escalated: %w", fingerprint, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failure %s: %w", fingerprint, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFailure(row scanner) (*types.Failure, error) {
	var (
		f                   types.Failure
		category            string
		firstSeen, lastSeen string
		escalated           int
	)
	if err := row.Scan(&f.Fingerprint, &f.Source, &category, &f.Rule, &f.Count, &f.Sample,
		&firstSeen, &lastSeen, &escalated); err != nil {
		return nil, err
	}
	f.Category = types.Category(category)
	f.Escalated = escalated != 0

	var err error
	if f.FirstSeen, err = parseTime(firstSeen); err != nil {
		return nil, err
	}
	if f.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, err
	}
	return &f, nil
}
