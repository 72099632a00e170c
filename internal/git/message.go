package git

import (
	"fmt"
	"strings"
)

// FixCommit describes an auto-fix for the commit message.
type FixCommit struct {
	Source      string
	Rule        string
	Category    string
	Fingerprint string
	Attempt     int
	Steps       []string
	Files       []string
}

// maxListedFiles caps the files named in the commit body.
const maxListedFiles = 10

// BuildCommitMessage formats a conventional-commit message for an auto-fix:
//
//	fix(selfheal): apply eslint fix for lint
//
//	Attempt 2 for failure 1a2b3c4d5e6f7a8b (category: lint).
//	...
func BuildCommitMessage(c FixCommit) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "fix(selfheal): apply %s fix for %s\n\n", c.Rule, c.Source)

	fmt.Fprintf(&sb, "Attempt %d", c.Attempt)
	if c.Fingerprint != "" {
		fmt.Fprintf(&sb, " for failure %s", c.Fingerprint)
	}
	if c.Category != "" {
		fmt.Fprintf(&sb, " (category: %s)", c.Category)
	}
	sb.WriteString(".\n")

	if len(c.Steps) > 0 {
		sb.WriteString("\nCommands:\n")
		for _, s := range c.Steps {
			fmt.Fprintf(&sb, "  $ %s\n", s)
		}
	}

	if len(c.Files) > 0 {
		sb.WriteString("\nChanged files:\n")
		for i, f := range c.Files {
			if i == maxListedFiles {
				fmt.Fprintf(&sb, "  ... and %d more\n", len(c.Files)-maxListedFiles)
				break
			}
			fmt.Fprintf(&sb, "  %s\n", f)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
