package config

import (
	"fmt"
	"time"
)

// RetentionConfig holds configuration for event retention and cleanup
type RetentionConfig struct {
	// RetentionDays is the retention period for info and warning events (in days)
	// Default: 30, Range: 1-365
	RetentionDays int `yaml:"retention_days"`

	// RetentionCriticalDays is the retention period for error and critical events (in days)
	// Escalations and failed fixes are kept longer for pattern analysis
	// Must be >= RetentionDays
	// Default: 90, Range: 1-730
	RetentionCriticalDays int `yaml:"retention_critical_days"`

	// GlobalLimitEvents caps the total number of events kept
	// Default: 50000, Range: 1000-1000000
	GlobalLimitEvents int `yaml:"global_limit_events"`

	// CleanupIntervalHours is how often the daemon runs cleanup (in hours)
	// Default: 24, Range: 1-168 (1 week)
	CleanupIntervalHours int `yaml:"cleanup_interval_hours"`

	// CleanupBatchSize is the number of events to delete per statement
	// Default: 1000, Range: 100-10000
	CleanupBatchSize int `yaml:"cleanup_batch_size"`

	// CleanupEnabled controls whether the daemon cleans up automatically
	// Default: true
	CleanupEnabled bool `yaml:"cleanup_enabled"`

	// CleanupVacuum controls whether to run VACUUM after cleanup
	// Default: false
	CleanupVacuum bool `yaml:"cleanup_vacuum"`
}

// DefaultRetentionConfig returns the default event retention configuration
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		RetentionDays:         30,
		RetentionCriticalDays: 90,
		GlobalLimitEvents:     50000,
		CleanupIntervalHours:  24,
		CleanupBatchSize:      1000,
		CleanupEnabled:        true,
		CleanupVacuum:         false,
	}
}

// Validate checks if the configuration has valid values
func (c RetentionConfig) Validate() error {
	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365 (got %d)", c.RetentionDays)
	}

	if c.RetentionCriticalDays < 1 || c.RetentionCriticalDays > 730 {
		return fmt.Errorf("retention_critical_days must be between 1 and 730 (got %d)",
			c.RetentionCriticalDays)
	}
	if c.RetentionCriticalDays < c.RetentionDays {
		return fmt.Errorf("retention_critical_days (%d) must be >= retention_days (%d)",
			c.RetentionCriticalDays, c.RetentionDays)
	}

	if c.GlobalLimitEvents < 1000 {
		return fmt.Errorf("global_limit_events must be at least 1000 (got %d)",
			c.GlobalLimitEvents)
	}
	if c.GlobalLimitEvents > 1000000 {
		return fmt.Errorf("global_limit_events too large (got %d, max 1000000)",
			c.GlobalLimitEvents)
	}

	if c.CleanupIntervalHours < 1 || c.CleanupIntervalHours > 168 {
		return fmt.Errorf("cleanup_interval_hours must be between 1 and 168 (got %d)",
			c.CleanupIntervalHours)
	}

	if c.CleanupBatchSize < 100 || c.CleanupBatchSize > 10000 {
		return fmt.Errorf("cleanup_batch_size must be between 100 and 10000 (got %d)",
			c.CleanupBatchSize)
	}

	return nil
}

// CleanupInterval returns the cleanup period as a time.Duration
func (c RetentionConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}

// String returns a human-readable representation of the config
func (c RetentionConfig) String() string {
	return fmt.Sprintf(
		"RetentionConfig{RetentionDays: %d, RetentionCriticalDays: %d, "+
			"GlobalLimit: %d, CleanupInterval: %dh, BatchSize: %d, Enabled: %t, Vacuum: %t}",
		c.RetentionDays, c.RetentionCriticalDays, c.GlobalLimitEvents,
		c.CleanupIntervalHours, c.CleanupBatchSize, c.CleanupEnabled, c.CleanupVacuum,
	)
}

// applyEnv overlays retention settings from the environment:
//   - SELFHEAL_EVENT_RETENTION_DAYS
//   - SELFHEAL_EVENT_RETENTION_CRITICAL_DAYS
//   - SELFHEAL_EVENT_GLOBAL_LIMIT
//   - SELFHEAL_EVENT_CLEANUP_INTERVAL_HOURS
//   - SELFHEAL_EVENT_CLEANUP_BATCH_SIZE
//   - SELFHEAL_EVENT_CLEANUP_ENABLED
//   - SELFHEAL_EVENT_CLEANUP_VACUUM
func (c *RetentionConfig) applyEnv() error {
	ints := []struct {
		key  string
		dest *int
	}{
		{"SELFHEAL_EVENT_RETENTION_DAYS", &c.RetentionDays},
		{"SELFHEAL_EVENT_RETENTION_CRITICAL_DAYS", &c.RetentionCriticalDays},
		{"SELFHEAL_EVENT_GLOBAL_LIMIT", &c.GlobalLimitEvents},
		{"SELFHEAL_EVENT_CLEANUP_INTERVAL_HOURS", &c.CleanupIntervalHours},
		{"SELFHEAL_EVENT_CLEANUP_BATCH_SIZE", &c.CleanupBatchSize},
	}
	for _, v := range ints {
		if err := parseEnvInt(v.key, v.dest); err != nil {
			return err
		}
	}
	if err := parseEnvBool("SELFHEAL_EVENT_CLEANUP_ENABLED", &c.CleanupEnabled); err != nil {
		return err
	}
	return parseEnvBool("SELFHEAL_EVENT_CLEANUP_VACUUM", &c.CleanupVacuum)
}
