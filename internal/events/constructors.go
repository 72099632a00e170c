package events

import (
	"time"

	"github.com/google/uuid"
)

// New creates an event with no structured data.
func New(eventType EventType, source string, severity EventSeverity, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Severity:  severity,
		Message:   message,
		Data:      make(map[string]interface{}),
	}
}

// WithFingerprint sets the failure fingerprint and returns the event.
func (e *Event) WithFingerprint(fp string) *Event {
	e.Fingerprint = fp
	return e
}

// NewClassifiedEvent creates an error_classified event.
func NewClassifiedEvent(source, fingerprint string, severity EventSeverity, message string, data ClassifiedData) (*Event, error) {
	event := New(EventTypeErrorClassified, source, severity, message).WithFingerprint(fingerprint)
	if err := event.SetData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewFixEvent creates a fix_started, fix_completed or fix_failed event.
func NewFixEvent(eventType EventType, source, fingerprint string, severity EventSeverity, message string, data FixData) (*Event, error) {
	event := New(eventType, source, severity, message).WithFingerprint(fingerprint)
	if err := event.SetData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewGitEvent creates a git_commit or git_push event.
func NewGitEvent(eventType EventType, source, fingerprint, message string, data GitData) (*Event, error) {
	event := New(eventType, source, SeverityInfo, message).WithFingerprint(fingerprint)
	if err := event.SetData(data); err != nil {
		return nil, err
	}
	return event, nil
}

// NewEscalationEvent creates an escalated event.
func NewEscalationEvent(source, fingerprint, message string, data EscalationData) (*Event, error) {
	event := New(EventTypeEscalated, source, SeverityCritical, message).WithFingerprint(fingerprint)
	if err := event.SetData(data); err != nil {
		return nil, err
	}
	return event, nil
}
