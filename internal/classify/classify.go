// Package classify matches build, deploy and job logs against a table of
// regex rules and reduces the matched lines to a stable fingerprint.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/qmoi/selfheal/internal/types"
)

// ContextLines is how many lines before and after a match are kept.
const ContextLines = 3

// compiledRule pairs a rule with its compiled patterns.
type compiledRule struct {
	rule     types.Rule
	index    int
	patterns []*regexp.Regexp
}

// Classifier matches logs against an ordered rule table. Earlier rules win.
type Classifier struct {
	rules  []compiledRule
	byName map[string]types.Rule
}

// New compiles the given rules. Patterns are matched case-insensitively.
func New(rules []types.Rule) (*Classifier, error) {
	c := &Classifier{byName: make(map[string]types.Rule, len(rules))}
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate rule name: %s", r.Name)
		}
		if r.Severity == "" {
			r.Severity = types.SeverityError
		}
		cr := compiledRule{rule: r, index: i}
		for _, p := range r.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("rule %s: invalid pattern %q: %w", r.Name, p, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		c.rules = append(c.rules, cr)
		c.byName[r.Name] = r
	}
	return c, nil
}

// Rules returns the rule table in priority order.
func (c *Classifier) Rules() []types.Rule {
	out := make([]types.Rule, len(c.rules))
	for i, cr := range c.rules {
		out[i] = cr.rule
	}
	return out
}

// Rule looks up a rule by name.
func (c *Classifier) Rule(name string) (types.Rule, bool) {
	r, ok := c.byName[name]
	return r, ok
}

// Classify scans log line by line. Each line yields at most one match: the
// first rule in table order with a matching pattern. The primary match is the
// one whose rule sits highest in the table, ties broken by line order.
func (c *Classifier) Classify(source, log string) *types.Classification {
	result := &types.Classification{Source: source}
	if strings.TrimSpace(log) == "" {
		return result
	}

	lines := strings.Split(strings.ReplaceAll(log, "\r\n", "\n"), "\n")
	primaryRule, primaryPos := -1, -1

	for i, raw := range lines {
		line := stripANSI(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}
		cr, pattern := c.matchLine(line)
		if cr == nil {
			continue
		}

		m := types.Match{
			Rule:       cr.rule.Name,
			Category:   cr.rule.Category,
			Severity:   cr.rule.Severity,
			Pattern:    pattern,
			LineNumber: i + 1,
			Line:       strings.TrimSpace(line),
			Context:    contextWindow(lines, i),
		}
		result.Matches = append(result.Matches, m)

		if primaryRule == -1 || cr.index < primaryRule {
			primaryRule = cr.index
			primaryPos = len(result.Matches) - 1
		}
	}

	if primaryPos >= 0 {
		result.Primary = &result.Matches[primaryPos]
	}

	if len(result.Matches) > 0 {
		matched := make([]string, len(result.Matches))
		for i, m := range result.Matches {
			matched[i] = m.Line
		}
		result.Fingerprint = Fingerprint(source, matched)
	}

	return result
}

// matchLine returns the first rule matching line and the pattern that hit.
func (c *Classifier) matchLine(line string) (*compiledRule, string) {
	for i := range c.rules {
		cr := &c.rules[i]
		for j, re := range cr.patterns {
			if re.MatchString(line) {
				return cr, cr.rule.Patterns[j]
			}
		}
	}
	return nil, ""
}

func contextWindow(lines []string, i int) []string {
	start := i - ContextLines
	if start < 0 {
		start = 0
	}
	end := i + ContextLines + 1
	if end > len(lines) {
		end = len(lines)
	}
	window := make([]string, 0, end-start)
	for _, l := range lines[start:end] {
		window = append(window, stripANSI(l))
	}
	return window
}

var (
	ansiRegex       = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	timestampRegex  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[t ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:z|[+-]\d{2}:?\d{2})?`)
	hexRegex        = regexp.MustCompile(`\b[0-9a-f]{7,}\b`)
	digitsRegex     = regexp.MustCompile(`[0-9]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

func stripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// Normalize reduces a log line to the parts that identify the failure:
// timestamps, hashes, ids and counts are masked so that reruns of the same
// failure normalize identically.
func Normalize(line string) string {
	s := strings.ToLower(stripANSI(line))
	s = timestampRegex.ReplaceAllString(s, "<ts>")
	s = hexRegex.ReplaceAllStringFunc(s, func(m string) string {
		// Only mixed letter/digit runs look like ids; words and plain
		// numbers are left for the other masks.
		if strings.Trim(m, "0123456789") == "" || strings.Trim(m, "abcdef") == "" {
			return m
		}
		return "<hex>"
	})
	s = digitsRegex.ReplaceAllString(s, "#")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fingerprint hashes source together with the normalized, deduplicated,
// sorted lines, so the same error seen by two targets yields two fingerprints.
// It is independent of line order and repetition. The result is the first 16
// hex characters (64 bits) of the SHA-256 digest.
func Fingerprint(source string, lines []string) string {
	set := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		n := Normalize(l)
		if n != "" {
			set[n] = struct{}{}
		}
	}
	if len(set) == 0 {
		return ""
	}
	uniq := make([]string, 0, len(set))
	for n := range set {
		uniq = append(uniq, n)
	}
	sort.Strings(uniq)

	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	for _, n := range uniq {
		h.Write([]byte(n))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Merge overlays overrides on base: a rule with the same name replaces the base
// rule in place, new names are appended after the base table.
func Merge(base, overrides []types.Rule) []types.Rule {
	out := make([]types.Rule, len(base))
	copy(out, base)
	pos := make(map[string]int, len(out))
	for i, r := range out {
		pos[r.Name] = i
	}
	for _, r := range overrides {
		if i, ok := pos[r.Name]; ok {
			out[i] = r
			continue
		}
		pos[r.Name] = len(out)
		out = append(out, r)
	}
	return out
}
