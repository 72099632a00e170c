package heal

import (
	"sort"
	"time"

	"github.com/qmoi/selfheal/internal/types"
)

// RuleStats aggregates fix attempts for one rule.
type RuleStats struct {
	Rule        string    `json:"rule"`
	Attempts    int       `json:"attempts"`
	Healed      int       `json:"healed"`
	Failed      int       `json:"failed"`
	Sources     int       `json:"sources"`
	LastAttempt time.Time `json:"last_attempt"`
}

// SuccessRate is the share of attempts that healed their target.
func (s RuleStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Healed) / float64(s.Attempts)
}

// Summary is the fix history report.
type Summary struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Attempts    int              `json:"attempts"`
	Healed      int              `json:"healed"`
	Failed      int              `json:"failed"`
	Rules       []RuleStats      `json:"rules"`
	Recent      []*types.Attempt `json:"recent,omitempty"`
}

// Summarize groups attempts by rule, most used rule first. Attempts that
// ended in any outcome other than healed count as failed.
func Summarize(attempts []*types.Attempt, now time.Time) *Summary {
	sum := &Summary{GeneratedAt: now}
	byRule := make(map[string]*RuleStats)
	sources := make(map[string]map[string]struct{})

	for _, a := range attempts {
		rs, ok := byRule[a.Rule]
		if !ok {
			rs = &RuleStats{Rule: a.Rule}
			byRule[a.Rule] = rs
			sources[a.Rule] = make(map[string]struct{})
		}
		rs.Attempts++
		sum.Attempts++
		if a.Outcome == types.OutcomeHealed {
			rs.Healed++
			sum.Healed++
		} else {
			rs.Failed++
			sum.Failed++
		}
		sources[a.Rule][a.Source] = struct{}{}
		if a.StartedAt.After(rs.LastAttempt) {
			rs.LastAttempt = a.StartedAt
		}
	}

	sum.Rules = make([]RuleStats, 0, len(byRule))
	for name, rs := range byRule {
		rs.Sources = len(sources[name])
		sum.Rules = append(sum.Rules, *rs)
	}
	sort.Slice(sum.Rules, func(i, j int) bool {
		if sum.Rules[i].Attempts != sum.Rules[j].Attempts {
			return sum.Rules[i].Attempts > sum.Rules[j].Attempts
		}
		return sum.Rules[i].Rule < sum.Rules[j].Rule
	})
	return sum
}
