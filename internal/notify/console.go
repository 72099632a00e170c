package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/qmoi/selfheal/internal/types"
)

// Console prints escalations to a terminal.
type Console struct {
	w io.Writer
}

// NewConsole creates a console notifier writing to w (stderr when nil).
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stderr
	}
	return &Console{w: w}
}

// Notify implements Notifier.
func (c *Console) Notify(ctx context.Context, esc *types.Escalation) error {
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n%s %s\n", red("✗ ESCALATED"), Title(esc))
	fmt.Fprintf(&sb, "  %s %s\n", yellow("reason:"), esc.Reason)
	if esc.Count > 0 {
		fmt.Fprintf(&sb, "  %s %d\n", yellow("seen:"), esc.Count)
	}
	if esc.Sample != "" {
		for _, line := range strings.Split(esc.Sample, "\n") {
			fmt.Fprintf(&sb, "  │ %s\n", line)
		}
	}
	if d := esc.Diagnosis; d != nil {
		fmt.Fprintf(&sb, "  %s %s (%.0f%%)\n", cyan("diagnosis:"), d.Summary, d.Confidence*100)
		for _, cmd := range d.SuggestedCommands {
			fmt.Fprintf(&sb, "    $ %s\n", cmd)
		}
	}
	_, err := io.WriteString(c.w, sb.String())
	return err
}
