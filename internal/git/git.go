// Package git wraps the git CLI for committing and pushing auto-fixes.
package git

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git implements Operations using the git CLI.
type Git struct {
	gitPath string
}

// NewGit creates a new Git instance.
// It verifies that git is available on the system.
func NewGit(ctx context.Context) (*Git, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	return &Git{gitPath: gitPath}, nil
}

// run executes git in repoPath and returns trimmed combined output.
func (g *Git) run(ctx context.Context, repoPath string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, append([]string{"-C", repoPath}, args...)...)
	output, err := cmd.CombinedOutput()
	out := strings.TrimSpace(string(output))
	if err != nil {
		if out != "" {
			return out, fmt.Errorf("git %s failed in %s: %w: %s", args[0], repoPath, err, out)
		}
		return out, fmt.Errorf("git %s failed in %s: %w", args[0], repoPath, err)
	}
	return out, nil
}

// IsRepo reports whether repoPath is inside a git work tree.
func (g *Git) IsRepo(ctx context.Context, repoPath string) bool {
	out, err := g.run(ctx, repoPath, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// HasUncommittedChanges checks if there are uncommitted changes.
func (g *Git) HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error) {
	status, err := g.GetStatus(ctx, repoPath)
	if err != nil {
		return false, fmt.Errorf("failed to check uncommitted changes in %s: %w", repoPath, err)
	}
	return status.HasChanges, nil
}

// GetStatus returns the git status of the repository.
func (g *Git) GetStatus(ctx context.Context, repoPath string) (*Status, error) {
	cmd := exec.CommandContext(ctx, g.gitPath, "-C", repoPath, "status", "--porcelain")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git status failed in %s: %w", repoPath, err)
	}
	return parseStatus(string(output))
}

// parseStatus reads `git status --porcelain` output.
// Reference: https://git-scm.com/docs/git-status#_short_format
func parseStatus(output string) (*Status, error) {
	status := &Status{}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}

		code := line[0:2]
		path := line[3:]

		switch {
		case code == "??":
			status.Untracked = append(status.Untracked, path)
		case code[0] == 'A':
			status.Added = append(status.Added, path)
		case code[0] == 'R':
			status.Renamed = append(status.Renamed, path)
		case code[0] == 'D' || code[1] == 'D':
			status.Deleted = append(status.Deleted, path)
		default:
			status.Modified = append(status.Modified, path)
		}
		status.HasChanges = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}
	return status, nil
}

// CurrentBranch returns the checked-out branch.
func (g *Git) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	branch, err := g.run(ctx, repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if branch == "HEAD" {
		return "", fmt.Errorf("detached HEAD in %s", repoPath)
	}
	return branch, nil
}

// CommitChanges creates a git commit and returns its hash.
func (g *Git) CommitChanges(ctx context.Context, repoPath string, opts CommitOptions) (string, error) {
	if opts.Message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	if opts.AddAll {
		if _, err := g.run(ctx, repoPath, "add", "-A"); err != nil {
			return "", err
		}
	}

	args := []string{"commit", "-m", opts.Message}
	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}
	if _, err := g.run(ctx, repoPath, args...); err != nil {
		return "", err
	}

	return g.run(ctx, repoPath, "rev-parse", "HEAD")
}

// Push pushes the branch to the remote.
func (g *Git) Push(ctx context.Context, repoPath string, opts PushOptions) error {
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}
	branch := opts.Branch
	if branch == "" {
		var err error
		if branch, err = g.CurrentBranch(ctx, repoPath); err != nil {
			return err
		}
	}
	_, err := g.run(ctx, repoPath, "push", remote, branch)
	return err
}
