package heal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qmoi/selfheal/internal/types"
)

func TestSummarize(t *testing.T) {
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	attempt := func(source, rule string, outcome types.Outcome, minutes int) *types.Attempt {
		return &types.Attempt{Source: source, Rule: rule, Outcome: outcome, StartedAt: base.Add(time.Duration(minutes) * time.Minute)}
	}
	attempts := []*types.Attempt{
		attempt("lint", "eslint", types.OutcomeHealed, 1),
		attempt("build", "eslint", types.OutcomeFailed, 5),
		attempt("lint", "eslint", types.OutcomeHealed, 3),
		attempt("build", "peer-deps", types.OutcomeFailed, 2),
		attempt("deploy", "network", types.OutcomeEscalated, 4),
	}

	sum := Summarize(attempts, base)

	assert.Equal(t, base, sum.GeneratedAt)
	assert.Equal(t, 5, sum.Attempts)
	assert.Equal(t, 2, sum.Healed)
	assert.Equal(t, 3, sum.Failed)

	require.Len(t, sum.Rules, 3)
	eslint := sum.Rules[0]
	assert.Equal(t, "eslint", eslint.Rule)
	assert.Equal(t, 3, eslint.Attempts)
	assert.Equal(t, 2, eslint.Healed)
	assert.Equal(t, 1, eslint.Failed)
	assert.Equal(t, 2, eslint.Sources)
	assert.Equal(t, base.Add(5*time.Minute), eslint.LastAttempt)
	assert.InDelta(t, 2.0/3.0, eslint.SuccessRate(), 1e-9)

	assert.Equal(t, []string{"network", "peer-deps"}, []string{sum.Rules[1].Rule, sum.Rules[2].Rule},
		"ties are ordered by name")
	assert.Equal(t, 1, sum.Rules[1].Failed, "escalated counts as failed")
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize(nil, time.Time{})
	assert.Zero(t, sum.Attempts)
	assert.Empty(t, sum.Rules)
	assert.Zero(t, RuleStats{}.SuccessRate())
}
