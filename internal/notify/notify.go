// Package notify delivers escalations to people: Slack, generic webhooks and
// the terminal.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qmoi/selfheal/internal/types"
)

// Notifier sends an escalation somewhere a human will see it.
type Notifier interface {
	Notify(ctx context.Context, esc *types.Escalation) error
}

// Multi fans an escalation out to several notifiers. Every notifier is tried;
// errors are joined.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a Multi. Nil notifiers are dropped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len returns the number of wrapped notifiers.
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Notify delivers esc to every wrapped notifier.
func (m *Multi) Notify(ctx context.Context, esc *types.Escalation) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, esc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Title is the one-line summary of an escalation.
func Title(esc *types.Escalation) string {
	title := fmt.Sprintf("selfheal gave up on %s", esc.Source)
	if esc.Rule != "" {
		title += fmt.Sprintf(" (%s/%s)", esc.Category, esc.Rule)
	} else if esc.Category != "" {
		title += fmt.Sprintf(" (%s)", esc.Category)
	}
	return title
}

// Body renders the escalation as plain text.
func Body(esc *types.Escalation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reason: %s\n", esc.Reason)
	if esc.Count > 0 {
		fmt.Fprintf(&sb, "Seen: %d times\n", esc.Count)
	}
	if esc.Fingerprint != "" {
		fmt.Fprintf(&sb, "Fingerprint: %s\n", esc.Fingerprint)
	}
	if esc.Sample != "" {
		fmt.Fprintf(&sb, "\n%s\n", esc.Sample)
	}
	if d := esc.Diagnosis; d != nil {
		fmt.Fprintf(&sb, "\nDiagnosis (%.0f%% confident): %s\n", d.Confidence*100, d.Summary)
		for _, c := range d.SuggestedCommands {
			fmt.Fprintf(&sb, "  $ %s\n", c)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
