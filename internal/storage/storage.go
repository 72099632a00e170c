// Package storage defines the persistence interface for heal state and opens
// the configured backend.
package storage

import (
	"context"
	"time"

	"github.com/qmoi/selfheal/internal/events"
	"github.com/qmoi/selfheal/internal/storage/sqlite"
	"github.com/qmoi/selfheal/internal/types"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = sqlite.ErrNotFound

// FailureFilter narrows ListFailures.
type FailureFilter = sqlite.FailureFilter

// EventCounts holds event count statistics.
type EventCounts = sqlite.EventCounts

// Storage defines the interface for selfheal storage backends
type Storage interface {
	events.Store

	// Failures - persistent counts keyed by failure fingerprint
	RecordFailure(ctx context.Context, f *types.Failure) (*types.Failure, error)
	GetFailure(ctx context.Context, fingerprint string) (*types.Failure, error)
	ListFailures(ctx context.Context, filter FailureFilter) ([]*types.Failure, error)
	ResetFailure(ctx context.Context, fingerprint string) error
	ResetFailures(ctx context.Context, source string) (int, error)
	MarkEscalated(ctx context.Context, fingerprint string) error

	// Attempts
	RecordAttempt(ctx context.Context, a *types.Attempt) error
	ListAttempts(ctx context.Context, source string, limit int) ([]*types.Attempt, error)

	// Event retention
	CleanupEventsByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error)
	CleanupEventsByGlobalLimit(ctx context.Context, globalLimit, batchSize int) (int, error)
	GetEventCounts(ctx context.Context) (*EventCounts, error)
	VacuumDatabase(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}

// Config holds storage configuration
type Config struct {
	Path string // Database file path, or ":memory:"
}

// DefaultConfig returns the default storage configuration, resolving the
// database path with DiscoverDatabase.
func DefaultConfig() *Config {
	path, err := DiscoverDatabase()
	if err != nil {
		path = DefaultDatabasePath()
	}
	return &Config{Path: path}
}

// NewStorage opens the storage backend described by cfg.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	store, err := sqlite.New(cfg.Path)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
