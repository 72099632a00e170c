package fixer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmoi/selfheal/internal/types"
)

// fakeExecutor returns canned results keyed by command.
type fakeExecutor struct {
	mu      sync.Mutex
	ran     []string
	results map[string]fakeResult
}

type fakeResult struct {
	output string
	code   int
	err    error
	block  bool // wait for ctx
}

func (f *fakeExecutor) Run(ctx context.Context, dir, command string) (string, int, error) {
	f.mu.Lock()
	f.ran = append(f.ran, command)
	res := f.results[command]
	f.mu.Unlock()
	if res.block {
		<-ctx.Done()
		return "", -1, ctx.Err()
	}
	return res.output, res.code, res.err
}

func TestRunner_StopsOnFirstFailure(t *testing.T) {
	fake := &fakeExecutor{results: map[string]fakeResult{
		"npm install": {output: "npm ERR! boom", code: 1, err: errors.New("exit status 1")},
	}}
	r := NewRunner(Config{Executor: fake})

	result := r.Run(context.Background(), []types.FixStep{
		{Run: "npm cache clean --force"},
		{Run: "npm install"},
		{Run: "npm run build"},
	})

	assert.False(t, result.Success)
	assert.Equal(t, []string{"npm cache clean --force", "npm install"}, fake.ran)
	require.Len(t, result.Steps, 2)
	assert.True(t, result.Steps[0].Passed())
	assert.Equal(t, 1, result.Steps[1].ExitCode)
	assert.Contains(t, result.Steps[1].Err.Error(), `step "npm install" failed (exit 1)`)
	assert.Contains(t, result.Output(), "npm ERR! boom")
}

func TestRunner_ContinueOnError(t *testing.T) {
	fake := &fakeExecutor{results: map[string]fakeResult{
		"npm cache clean --force": {code: 1, err: errors.New("exit status 1")},
	}}
	var seen []string
	r := NewRunner(Config{Executor: fake, OnStep: func(s StepResult) { seen = append(seen, s.Step.Label()) }})

	result := r.Run(context.Background(), []types.FixStep{
		{Run: "npm cache clean --force", ContinueOnError: true},
		{Name: "install", Run: "npm install"},
	})

	assert.True(t, result.Success)
	assert.Equal(t, []string{"npm cache clean --force", "install"}, seen)
}

func TestRunner_DryRun(t *testing.T) {
	fake := &fakeExecutor{}
	r := NewRunner(Config{Executor: fake, DryRun: true})
	assert.True(t, r.DryRun())

	result := r.Run(context.Background(), []types.FixStep{{Run: "rm -rf node_modules"}})

	assert.True(t, result.Success)
	assert.Empty(t, fake.ran)
	require.Len(t, result.Steps, 1)
	assert.True(t, result.Steps[0].Skipped)
	assert.Contains(t, result.Output(), "(dry run)")
}

func TestRunner_StepTimeout(t *testing.T) {
	fake := &fakeExecutor{results: map[string]fakeResult{"sleep 60": {block: true}}}
	r := NewRunner(Config{Executor: fake, DefaultTimeout: time.Hour})

	result := r.Run(context.Background(), []types.FixStep{{Run: "sleep 60", Timeout: 10 * time.Millisecond}})

	assert.False(t, result.Success)
	assert.Contains(t, result.Steps[0].Err.Error(), "timed out after 10ms")
}

func TestRunner_CanceledContext(t *testing.T) {
	fake := &fakeExecutor{}
	r := NewRunner(Config{Executor: fake})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := r.Run(ctx, []types.FixStep{{Run: "npm install"}})

	assert.False(t, result.Success)
	assert.Empty(t, fake.ran)
	assert.ErrorIs(t, result.Steps[0].Err, context.Canceled)
}

func TestRunner_TruncatesOutput(t *testing.T) {
	fake := &fakeExecutor{results: map[string]fakeResult{
		"noisy": {output: strings.Repeat("x", MaxOutputBytes*2)},
	}}
	r := NewRunner(Config{Executor: fake})

	result := r.Run(context.Background(), []types.FixStep{{Run: "noisy"}})

	assert.Less(t, len(result.Steps[0].Output), MaxOutputBytes+100)
	assert.Contains(t, result.Steps[0].Output, "truncated")
}

func TestShellExecutor(t *testing.T) {
	dir := t.TempDir()
	var sh ShellExecutor

	out, code, err := sh.Run(context.Background(), dir, "echo healed && pwd")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "healed")

	_, code, err = sh.Run(context.Background(), dir, "echo nope >&2; exit 3")
	require.Error(t, err)
	assert.Equal(t, 3, code)
}
