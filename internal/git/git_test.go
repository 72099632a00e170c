package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initRepo creates a git repo with one commit on branch main.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"config", "user.name", "Test User"},
		{"config", "user.email", "test@example.com"},
		{"config", "commit.gpgsign", "false"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi\n"), 0644))
	cmd := exec.Command("git", "add", "-A")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())
	cmd = exec.Command("git", "commit", "-m", "init")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return dir
}

func TestGitOperations(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)

	g, err := NewGit(ctx)
	require.NoError(t, err)
	assert.True(t, g.IsRepo(ctx, dir))
	assert.False(t, g.IsRepo(ctx, t.TempDir()))

	changed, err := g.HasUncommittedChanges(ctx, dir)
	require.NoError(t, err)
	assert.False(t, changed)

	branch, err := g.CurrentBranch(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("fixed\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0644))

	status, err := g.GetStatus(ctx, dir)
	require.NoError(t, err)
	assert.True(t, status.HasChanges)
	assert.Equal(t, []string{"README.md"}, status.Modified)
	assert.Equal(t, []string{"new.txt"}, status.Untracked)

	_, err = g.CommitChanges(ctx, dir, CommitOptions{})
	assert.Error(t, err)

	hash, err := g.CommitChanges(ctx, dir, CommitOptions{Message: "fix(selfheal): test", AddAll: true})
	require.NoError(t, err)
	assert.Len(t, hash, 40)

	changed, err = g.HasUncommittedChanges(ctx, dir)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPush_ToBareRemote(t *testing.T) {
	ctx := context.Background()
	dir := initRepo(t)
	remote := t.TempDir()
	cmd := exec.Command("git", "init", "--bare")
	cmd.Dir = remote
	require.NoError(t, cmd.Run())
	cmd = exec.Command("git", "remote", "add", "origin", remote)
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	g, err := NewGit(ctx)
	require.NoError(t, err)
	require.NoError(t, g.Push(ctx, dir, PushOptions{}))

	err = g.Push(ctx, dir, PushOptions{Remote: "nowhere"})
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	out := strings.Join([]string{
		" M src/app.ts",
		"M  package.json",
		"A  new.go",
		"D  old.go",
		" D gone.go",
		"R  a.go -> b.go",
		"?? scratch.txt",
		"UU conflict.go",
	}, "\n")

	status, err := parseStatus(out)
	require.NoError(t, err)
	assert.True(t, status.HasChanges)
	assert.Equal(t, []string{"src/app.ts", "package.json", "conflict.go"}, status.Modified)
	assert.Equal(t, []string{"new.go"}, status.Added)
	assert.Equal(t, []string{"old.go", "gone.go"}, status.Deleted)
	assert.Equal(t, []string{"a.go -> b.go"}, status.Renamed)
	assert.Equal(t, []string{"scratch.txt"}, status.Untracked)
	assert.Len(t, status.Files(), 8)

	empty, err := parseStatus("")
	require.NoError(t, err)
	assert.False(t, empty.HasChanges)
}

func TestBuildCommitMessage(t *testing.T) {
	msg := BuildCommitMessage(FixCommit{
		Source: "lint", Rule: "eslint", Category: "lint", Fingerprint: "abc", Attempt: 2,
		Steps: []string{"npx eslint . --fix"}, Files: []string{"src/a.ts"},
	})

	lines := strings.Split(msg, "\n")
	assert.Equal(t, "fix(selfheal): apply eslint fix for lint", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Contains(t, msg, "Attempt 2 for failure abc (category: lint).")
	assert.Contains(t, msg, "  $ npx eslint . --fix")
	assert.Contains(t, msg, "  src/a.ts")
	assert.False(t, strings.HasSuffix(msg, "\n"))

	var files []string
	for i := 0; i < maxListedFiles+3; i++ {
		files = append(files, fmt.Sprintf("f%d", i))
	}
	msg = BuildCommitMessage(FixCommit{Source: "build", Rule: "build", Attempt: 1, Files: files})
	assert.Contains(t, msg, "... and 3 more")
	assert.NotContains(t, msg, "f12")
}
