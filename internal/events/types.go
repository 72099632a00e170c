// Package events defines the audit trail written by every self-heal step.
package events

import (
	"context"
	"time"
)

// EventType represents the type of event recorded during a heal session.
type EventType string

const (
	// EventTypeCheckStarted indicates a target check began
	EventTypeCheckStarted EventType = "check_started"
	// EventTypeCheckPassed indicates a target check passed
	EventTypeCheckPassed EventType = "check_passed"
	// EventTypeCheckFailed indicates a target check failed
	EventTypeCheckFailed EventType = "check_failed"
	// EventTypeErrorClassified indicates a failure log was matched against the rule table
	EventTypeErrorClassified EventType = "error_classified"
	// EventTypeFixStarted indicates a fix sequence began
	EventTypeFixStarted EventType = "fix_started"
	// EventTypeFixCompleted indicates every step of a fix sequence succeeded
	EventTypeFixCompleted EventType = "fix_completed"
	// EventTypeFixFailed indicates a fix step failed
	EventTypeFixFailed EventType = "fix_failed"
	// EventTypeGitCommit indicates fix changes were committed
	EventTypeGitCommit EventType = "git_commit"
	// EventTypeGitPush indicates the fix commit was pushed
	EventTypeGitPush EventType = "git_push"
	// EventTypeRemoteRetry indicates a remote deployment or job was re-triggered
	EventTypeRemoteRetry EventType = "remote_retry"
	// EventTypeEscalated indicates self-healing gave up and notified a human
	EventTypeEscalated EventType = "escalated"
	// EventTypeWatchTriggered indicates a watched log file produced new errors
	EventTypeWatchTriggered EventType = "watch_triggered"
	// EventTypeAIDiagnosis indicates an AI diagnosis was produced
	EventTypeAIDiagnosis EventType = "ai_diagnosis"
	// EventTypeEventsCleanup indicates old events were pruned
	EventTypeEventsCleanup EventType = "events_cleanup"
)

// AllTypes lists every event type in display order.
var AllTypes = []EventType{
	EventTypeCheckStarted, EventTypeCheckPassed, EventTypeCheckFailed,
	EventTypeErrorClassified, EventTypeFixStarted, EventTypeFixCompleted,
	EventTypeFixFailed, EventTypeGitCommit, EventTypeGitPush, EventTypeRemoteRetry,
	EventTypeEscalated, EventTypeWatchTriggered, EventTypeAIDiagnosis, EventTypeEventsCleanup,
}

// IsValid checks if the event type is known
func (t EventType) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates critical events requiring immediate attention
	SeverityCritical EventSeverity = "critical"
)

// Event is one entry in the audit trail.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// Source names the target, provider or log file involved
	Source string `json:"source"`
	// Fingerprint identifies the failure, if any
	Fingerprint string `json:"fingerprint,omitempty"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data"`
}

// ClassifiedData is the payload of error_classified events.
type ClassifiedData struct {
	Rules      []string `json:"rules"`
	Categories []string `json:"categories"`
	Primary    string   `json:"primary,omitempty"`
	Line       string   `json:"line,omitempty"`
	LineNumber int      `json:"line_number,omitempty"`
	Matches    int      `json:"matches"`
}

// FixData is the payload of fix_* events.
type FixData struct {
	Rule     string   `json:"rule"`
	Attempt  int      `json:"attempt"`
	Steps    []string `json:"steps"`
	Output   string   `json:"output,omitempty"`
	DryRun   bool     `json:"dry_run,omitempty"`
	Duration float64  `json:"duration_seconds,omitempty"`
}

// GitData is the payload of git_commit and git_push events.
type GitData struct {
	Commit string   `json:"commit,omitempty"`
	Branch string   `json:"branch,omitempty"`
	Remote string   `json:"remote,omitempty"`
	Files  []string `json:"files,omitempty"`
}

// EscalationData is the payload of escalated events.
type EscalationData struct {
	Reason   string `json:"reason"`
	Count    int    `json:"count"`
	Category string `json:"category"`
	Rule     string `json:"rule,omitempty"`
}

// Store defines the interface for storing and retrieving events.
type Store interface {
	// StoreEvent stores a new event
	StoreEvent(ctx context.Context, event *Event) error

	// GetEvents retrieves events matching the filter, newest first
	GetEvents(ctx context.Context, filter Filter) ([]*Event, error)
}

// Filter defines criteria for filtering events.
type Filter struct {
	// Source filters events by source name
	Source string
	// Fingerprint filters events by failure fingerprint
	Fingerprint string
	// Type filters events by event type
	Type EventType
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// Limit caps the number of results (0 = no limit)
	Limit int
}
