package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmoi/selfheal/internal/types"
)

func newDefault(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(DefaultRules())
	require.NoError(t, err)
	return c
}

func TestDefaultRulesCompile(t *testing.T) {
	c := newDefault(t)
	assert.Len(t, c.Rules(), len(DefaultRules()))

	r, ok := c.Rule("eslint")
	require.True(t, ok)
	assert.Equal(t, types.CategoryLint, r.Category)
}

func TestNewRejectsBadRules(t *testing.T) {
	_, err := New([]types.Rule{
		{Name: "a", Category: types.CategoryBuild, Patterns: []string{"x"}},
		{Name: "a", Category: types.CategoryBuild, Patterns: []string{"y"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule name")

	_, err = New([]types.Rule{{Name: "broken", Category: types.CategoryBuild, Patterns: []string{"(oops"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestClassify_PeerDependency(t *testing.T) {
	c := newDefault(t)
	log := strings.Join([]string{
		"> next build",
		"npm ERR! code ERESOLVE",
		"npm ERR! ERESOLVE unable to resolve dependency tree",
		"npm ERR! Could not resolve dependency:",
	}, "\n")

	result := c.Classify("build", log)

	require.True(t, result.Matched())
	assert.Len(t, result.Matches, 3)
	require.NotNil(t, result.Primary)
	assert.Equal(t, "npm-peer-dependency", result.Primary.Rule)
	assert.Equal(t, types.CategoryDependency, result.Primary.Category)
	assert.Equal(t, 2, result.Primary.LineNumber)
	assert.Equal(t, types.SeverityError, result.Primary.Severity)
	assert.NotEmpty(t, result.Fingerprint)
	assert.Equal(t, "build", result.Source)
}

func TestClassify_PrimaryFollowsTablePriority(t *testing.T) {
	c := newDefault(t)
	log := "Failed to compile.\nError: connect ECONNREFUSED 127.0.0.1:5432\n"

	result := c.Classify("deploy", log)

	require.Len(t, result.Matches, 2)
	assert.Equal(t, "build", result.Matches[0].Rule)
	assert.Equal(t, "network", result.Matches[1].Rule)
	require.NotNil(t, result.Primary)
	assert.Equal(t, "network", result.Primary.Rule, "network sits above build in the table")
	assert.Equal(t, []string{"build", "network"}, result.Rules())
}

func TestClassify_OneMatchPerLine(t *testing.T) {
	c := newDefault(t)
	// Matches both npm-generic and network; network is earlier in the table.
	result := c.Classify("install", "npm ERR! code ECONNRESET")

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "network", result.Matches[0].Rule)
}

func TestClassify_ContextWindow(t *testing.T) {
	c := newDefault(t)
	lines := []string{"BUILD FAILED", "a", "b", "c", "d", "e", "f", "g"}

	result := c.Classify("build", strings.Join(lines, "\n"))

	require.Len(t, result.Matches, 1)
	m := result.Matches[0]
	assert.Equal(t, 1, m.LineNumber)
	assert.Equal(t, []string{"BUILD FAILED", "a", "b", "c"}, m.Context)
}

func TestClassify_StripsANSI(t *testing.T) {
	c := newDefault(t)
	result := c.Classify("install", "\x1b[31mnpm ERR!\x1b[0m code E404")

	require.Len(t, result.Matches, 1)
	assert.Equal(t, "npm-generic", result.Matches[0].Rule)
	assert.Equal(t, "npm ERR! code E404", result.Matches[0].Line)
}

func TestClassify_GitPushRejected(t *testing.T) {
	c := newDefault(t)
	log := " ! [rejected]        main -> main (fetch first)\n" +
		"error: failed to push some refs to 'github.com:org/repo.git'\n"

	result := c.Classify("git", log)

	require.Len(t, result.Matches, 2)
	for _, m := range result.Matches {
		assert.Equal(t, "git-push-rejected", m.Rule)
		assert.Equal(t, types.CategoryGit, m.Category)
	}
}

func TestClassify_TestFailures(t *testing.T) {
	c := newDefault(t)
	result := c.Classify("test", "ok  \tpkg/a\n--- FAIL: TestFoo (0.00s)\nFAIL src/app.test.ts\n")

	require.Len(t, result.Matches, 2)
	assert.Equal(t, "test", result.Primary.Rule)
}

func TestClassify_NoMatch(t *testing.T) {
	c := newDefault(t)

	for _, log := range []string{"", "   \n\n", "compiled successfully\nall good"} {
		result := c.Classify("build", log)
		assert.False(t, result.Matched())
		assert.Nil(t, result.Primary)
		assert.Empty(t, result.Fingerprint)
	}
}

func TestFingerprint_StableAcrossRuns(t *testing.T) {
	a := Fingerprint("build", []string{"2024-01-01T10:00:00Z npm ERR! code ERESOLVE build 3f9a2c1d"})
	b := Fingerprint("build", []string{"2025-06-30T23:59:59Z npm ERR! code ERESOLVE build a1b2c3d4e"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	other := Fingerprint("build", []string{"npm ERR! code ETARGET"})
	assert.NotEqual(t, a, other)
}

func TestFingerprint_OrderAndRepetitionIndependent(t *testing.T) {
	a := Fingerprint("build", []string{"Failed to compile", "Cannot find module 'x'"})
	b := Fingerprint("build", []string{"Cannot find module 'x'", "Failed to compile", "FAILED TO COMPILE"})
	assert.Equal(t, a, b)
	assert.Empty(t, Fingerprint("build", []string{"", "   "}))
}

func TestFingerprint_ScopedBySource(t *testing.T) {
	lines := []string{"src/app.ts:3:1 error 'x' is defined but never used"}
	assert.NotEqual(t, Fingerprint("build", lines), Fingerprint("test", lines))
	assert.Equal(t, Fingerprint("build", lines), Fingerprint("build", lines))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Error TS2304: Cannot find name 'foo'  at line 42 ", "error ts#: cannot find name 'foo' at line #"},
		{"\x1b[1mDeployment failed\x1b[0m", "deployment failed"},
		{"commit deadbeef pushed", "commit deadbeef pushed"},
		{"run 9f8e7d6c5b failed", "run <hex> failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestMerge(t *testing.T) {
	base := []types.Rule{
		{Name: "a", Category: types.CategoryBuild, Patterns: []string{"a"}},
		{Name: "b", Category: types.CategoryBuild, Patterns: []string{"b"}},
	}
	overrides := []types.Rule{
		{Name: "b", Category: types.CategoryLint, Patterns: []string{"bb"}},
		{Name: "c", Category: types.CategoryTest, Patterns: []string{"c"}},
	}

	merged := Merge(base, overrides)

	require.Len(t, merged, 3)
	assert.Equal(t, "a", merged[0].Name)
	assert.Equal(t, types.CategoryLint, merged[1].Category)
	assert.Equal(t, "c", merged[2].Name)
	assert.Equal(t, types.CategoryBuild, base[1].Category, "base must not be mutated")
}
