// Package keyword parses keyword-group rules and classifies titles
// against them.
//
// Rule grammar: blocks of terms separated by blank lines. Within a block a
// term prefixed with '+' is required (all must be present), a '!' prefix
// excludes (any present rejects the title), everything else is a normal term
// (any one suffices). Matching is case-insensitive substring containment.
package keyword

import (
	"fmt"
	"os"
	"strings"
)

// LoadFile reads and parses a rules file.
func LoadFile(path string) ([]Rule, []string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	rules, warnings := ParseRules(string(b))
	return rules, warnings, nil
}

// Rule is one parsed keyword group.
type Rule struct {
	ID       string
	Normal   []string
	Required []string
	Excluded []string

	// Disabled marks a malformed rule. It never matches; the parse warning
	// explains why. Other rules keep working.
	Disabled bool
}

// ParseRules parses a rule file body into rules plus configuration warnings.
// Malformed blocks come back as disabled rules so callers can surface them
// without losing track of positions.
func ParseRules(body string) ([]Rule, []string) {
	var rules []Rule
	var warnings []string

	blocks := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n")
	for i, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}

		var r Rule
		for _, line := range strings.Split(block, "\n") {
			term := strings.TrimSpace(line)
			if term == "" {
				continue
			}
			switch {
			case strings.HasPrefix(term, "!"):
				if term == "!" {
					r.Disabled = true
					continue
				}
				r.Excluded = append(r.Excluded, term[1:])
			case strings.HasPrefix(term, "+"):
				if term == "+" {
					r.Disabled = true
					continue
				}
				r.Required = append(r.Required, term[1:])
			default:
				r.Normal = append(r.Normal, term)
			}
		}

		switch {
		case r.Disabled:
			warnings = append(warnings, fmt.Sprintf("rule block %d: bare prefix term, rule disabled", i+1))
		case len(r.Normal) == 0 && len(r.Required) == 0:
			// An exclusion-only (or empty) group can never match anything.
			r.Disabled = true
			warnings = append(warnings, fmt.Sprintf("rule block %d: no normal or required terms, rule disabled", i+1))
		}

		r.ID = groupID(r)
		rules = append(rules, r)
	}

	return rules, warnings
}

// groupID labels a rule by its normal terms, falling back to required terms.
func groupID(r Rule) string {
	if len(r.Normal) > 0 {
		return strings.Join(r.Normal, " ")
	}
	if len(r.Required) > 0 {
		return strings.Join(r.Required, " ")
	}
	return "(empty)"
}

// Matches reports whether title satisfies the rule: no excluded term
// contained, every required term contained, and at least one normal term
// contained (a rule with only required terms matches on those alone).
func (r Rule) Matches(title string) bool {
	if r.Disabled {
		return false
	}
	t := strings.ToLower(title)

	for _, w := range r.Excluded {
		if strings.Contains(t, strings.ToLower(w)) {
			return false
		}
	}
	for _, w := range r.Required {
		if !strings.Contains(t, strings.ToLower(w)) {
			return false
		}
	}
	if len(r.Normal) == 0 {
		return len(r.Required) > 0
	}
	for _, w := range r.Normal {
		if strings.Contains(t, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// Classify returns the ids of every rule the title matches.
// Group membership is not mutually exclusive. Pure; safe for concurrent use.
func Classify(title string, rules []Rule) []string {
	var ids []string
	for _, r := range rules {
		if r.Matches(title) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
