package heal

import (
	"fmt"
	"time"

	"github.com/qmoi/selfheal/internal/retry"
)

// Config holds the self-heal loop settings.
type Config struct {
	MaxAttempts   int           // Fix attempts per Heal call (default: 3)
	EscalateAfter int           // Persistent count that triggers escalation (default: 5)
	Cooldown      time.Duration // Minimum gap between fixes of one fingerprint in Handle (default: 10m)

	InitialBackoff time.Duration // Wait before the first re-check (default: 5s)
	MaxBackoff     time.Duration // Backoff cap (default: 2m)
	Multiplier     float64       // Backoff multiplier (default: 2.0)

	WorkingDir string // Repository the fixes run in

	Commit bool   // Commit changes made by fixes
	Push   bool   // Push the fix commit
	Remote string // Push remote (default: origin)
	Branch string // Push branch (default: current)
}

// DefaultConfig returns the default heal configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		EscalateAfter:  5,
		Cooldown:       10 * time.Minute,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     2 * time.Minute,
		Multiplier:     2.0,
		WorkingDir:     ".",
		Commit:         false,
		Push:           false,
		Remote:         "origin",
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1 (got %d)", c.MaxAttempts)
	}
	if c.EscalateAfter < 1 {
		return fmt.Errorf("escalate_after must be at least 1 (got %d)", c.EscalateAfter)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown cannot be negative (got %v)", c.Cooldown)
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		return fmt.Errorf("backoff durations cannot be negative")
	}
	if c.MaxBackoff > 0 && c.InitialBackoff > c.MaxBackoff {
		return fmt.Errorf("initial_backoff (%v) cannot exceed max_backoff (%v)", c.InitialBackoff, c.MaxBackoff)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1 (got %g)", c.Multiplier)
	}
	if c.Push && !c.Commit {
		return fmt.Errorf("push requires commit to be enabled")
	}
	return nil
}

// Backoff returns the wait before re-check n (0-based).
func (c Config) Backoff(n int) time.Duration {
	return retry.Config{
		InitialBackoff:    c.InitialBackoff,
		MaxBackoff:        c.MaxBackoff,
		BackoffMultiplier: c.Multiplier,
	}.Backoff(n)
}
