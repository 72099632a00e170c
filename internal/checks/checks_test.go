package checks

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmoi/selfheal/internal/project"
)

type fakeExecutor struct {
	output string
	code   int
	err    error
	dir    string
	cmd    string
}

func (f *fakeExecutor) Run(ctx context.Context, dir, command string) (string, int, error) {
	f.dir, f.cmd = dir, command
	return f.output, f.code, f.err
}

func TestCommandTarget(t *testing.T) {
	tests := []struct {
		name    string
		exec    *fakeExecutor
		passed  bool
		wantErr string
	}{
		{"pass", &fakeExecutor{output: "ok\n"}, true, ""},
		{"fail", &fakeExecutor{output: "✖ 3 problems\n", code: 1, err: errors.New("exit status 1")}, false, ""},
		{"cannot start", &fakeExecutor{code: -1, err: errors.New("sh: not found")}, false, "sh: not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := NewCommandTarget(Definition{Name: "lint", Run: "npm run lint"}, "/repo", tt.exec)
			res, err := target.Check(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.passed, res.Passed)
			assert.Equal(t, tt.exec.output, res.Log)
			assert.Equal(t, "/repo", tt.exec.dir)
			assert.Equal(t, "npm run lint", tt.exec.cmd)
		})
	}
}

func TestCommandTarget_RealShell(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()

	res, err := NewCommandTarget(Definition{Name: "ok", Run: "echo fine"}, dir, nil).Check(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, "fine\n", res.Log)

	res, err = NewCommandTarget(Definition{Name: "bad", Run: "echo 'Build failed' >&2; exit 3"}, dir, nil).Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Log, "Build failed")

	res, err = NewCommandTarget(Definition{Name: "slow", Run: "sleep 2", Timeout: 50 * time.Millisecond}, dir, nil).Check(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Log, "timed out")
}

func TestCommandTarget_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCommandTarget(Definition{Name: "x", Run: "true"}, ".", &fakeExecutor{code: -1, err: context.Canceled}).Check(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve(t *testing.T) {
	detected := []Definition{
		{Name: "build", Run: "npm run build"},
		{Name: "lint", Run: "npm run lint"},
	}
	configured := []Definition{
		{Name: "lint", Run: "npx eslint . --max-warnings 0"},
		{Name: "typecheck", Run: "npx tsc --noEmit"},
	}

	got := Resolve(detected, configured)

	assert.Equal(t, []Definition{
		{Name: "build", Run: "npm run build"},
		{Name: "lint", Run: "npx eslint . --max-warnings 0"},
		{Name: "typecheck", Run: "npx tsc --noEmit"},
	}, got)
	assert.Equal(t, "npm run lint", detected[1].Run, "detected must not be mutated")
}

func TestSelect(t *testing.T) {
	defs := []Definition{{Name: "build", Run: "b"}, {Name: "lint", Run: "l"}, {Name: "test", Run: "t"}}

	all, err := Select(defs, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := Select(defs, []string{"test", "build"})
	require.NoError(t, err)
	assert.Equal(t, []Definition{{Name: "test", Run: "t"}, {Name: "build", Run: "b"}}, some)

	_, err = Select(defs, []string{"deploy"})
	assert.Error(t, err)
}

func TestFromProjectAndTargets(t *testing.T) {
	p := &project.Project{Kind: project.KindGo, Commands: []project.Command{
		{Name: "build", Run: "go build ./..."},
		{Name: "test", Run: "go test ./..."},
	}}
	defs := FromProject(p)
	require.Len(t, defs, 2)

	targets := Targets(defs, ".", nil)
	require.Len(t, targets, 2)
	assert.Equal(t, "build", targets[0].Name())
	assert.Equal(t, "go test ./...", targets[1].(*CommandTarget).Command())
}

func TestDefinitionValidate(t *testing.T) {
	assert.NoError(t, Definition{Name: "a", Run: "true"}.Validate())
	assert.Error(t, Definition{Run: "true"}.Validate())
	assert.Error(t, Definition{Name: "a"}.Validate())
	assert.Error(t, Definition{Name: "a", Run: "x", Timeout: -1}.Validate())
}

func TestTailBytes(t *testing.T) {
	assert.Equal(t, "short", tailBytes("short", 10))
	got := tailBytes(strings.Repeat("a", 5)+"END", 3)
	assert.Equal(t, "... (truncated)\nEND", got)

	got = tailBytes("a✖b", 3)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "... (truncated)\nb", got)
}
