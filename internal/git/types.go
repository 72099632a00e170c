package git

import (
	"context"
)

// Operations is the subset of git the healer uses. The git CLI implements it;
// tests substitute a fake.
type Operations interface {
	// GetStatus returns detailed git status information.
	GetStatus(ctx context.Context, repoPath string) (*Status, error)

	// HasUncommittedChanges checks for staged, unstaged or untracked changes.
	HasUncommittedChanges(ctx context.Context, repoPath string) (bool, error)

	// CurrentBranch returns the checked-out branch name.
	CurrentBranch(ctx context.Context, repoPath string) (string, error)

	// CommitChanges creates a commit and returns its hash.
	CommitChanges(ctx context.Context, repoPath string, opts CommitOptions) (string, error)

	// Push pushes a branch to a remote.
	Push(ctx context.Context, repoPath string, opts PushOptions) error
}

// Status represents the git status of a repository.
type Status struct {
	// Modified files (staged or unstaged)
	Modified []string

	// Untracked files
	Untracked []string

	// Deleted files
	Deleted []string

	// Added files (staged)
	Added []string

	// Renamed files
	Renamed []string

	// HasChanges is true if any changes exist
	HasChanges bool
}

// Files returns every changed path.
func (s *Status) Files() []string {
	var files []string
	for _, group := range [][]string{s.Added, s.Modified, s.Deleted, s.Renamed, s.Untracked} {
		files = append(files, group...)
	}
	return files
}

// CommitOptions configures a git commit operation.
type CommitOptions struct {
	// Message is the commit message
	Message string

	// Author specifies the author (optional, uses git config if empty)
	Author string

	// AddAll stages all changes before committing (git add -A)
	AddAll bool
}

// PushOptions configures a git push operation.
type PushOptions struct {
	// Remote defaults to "origin"
	Remote string

	// Branch defaults to the current branch
	Branch string
}
