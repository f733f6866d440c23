package resolver

import (
	"fmt"
	"regexp"
)

// Rule is one named extraction pattern. All patterns match
// case-insensitively, mirroring how the upstream pages mix casing.
type Rule struct {
	Name string
	re   *regexp.Regexp
}

// NewRule compiles a pattern into a Rule.
func NewRule(name, pattern string) (Rule, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", name, err)
	}
	return Rule{Name: name, re: re}, nil
}

// RuleSet is an ordered list of extraction rules for one stage: a primary
// pattern followed by progressively looser fallbacks. Rules are pure data;
// a RuleSet is compiled once at pipeline construction and never mutated.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet builds a RuleSet preserving the given rule order.
func NewRuleSet(rules ...Rule) RuleSet {
	return RuleSet{rules: rules}
}

// FirstMatch scans content with each rule in order and returns the first
// rule's first match. Later rules are never consulted once a rule matches,
// so extraction is deterministic for fixed content.
func (rs RuleSet) FirstMatch(content string) (value, rule string, ok bool) {
	for _, r := range rs.rules {
		if m := r.re.FindString(content); m != "" {
			return m, r.Name, true
		}
	}
	return "", "", false
}

// Len returns the number of rules in the set.
func (rs RuleSet) Len() int {
	return len(rs.rules)
}
