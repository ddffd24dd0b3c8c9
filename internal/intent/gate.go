// Package intent gates transcript fragments before the extraction
// pipeline spends an LLM call on them.
package intent

import (
	"regexp"
)

// Pattern families. StrongAction matches explicit task vocabulary and
// passes the gate on its own; the other three are weak signals counted
// toward a family threshold.
const (
	FamilyStrongAction   = "strong_action"
	FamilyActionVerb     = "action_verb"
	FamilyResponsibility = "responsibility"
	FamilyTimeUrgency    = "time_urgency"
)

// Pattern is one signal regex belonging to a family.
type Pattern struct {
	Name   string
	Family string
	Regex  string
}

// compiledPattern holds a pre-compiled signal pattern.
type compiledPattern struct {
	Pattern
	regex *regexp.Regexp
}

// Config tunes gate construction.
type Config struct {
	// Patterns overrides the built-in signal table when non-empty.
	Patterns []Pattern
	// MinFamilies is the number of distinct weak families required to
	// pass when no strong-action pattern matches. Defaults to 1, which
	// deliberately favors recall; the extraction buffer's interval gate
	// bounds the cost downstream.
	MinFamilies int
}

// Gate is a stateless fragment classifier. Safe for concurrent use.
type Gate struct {
	strong      []*compiledPattern
	weak        []*compiledPattern
	minFamilies int
}

// NewGate compiles the signal table. Patterns that fail to compile are
// skipped.
func NewGate(cfg Config) *Gate {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}

	minFamilies := cfg.MinFamilies
	if minFamilies == 0 {
		minFamilies = 1
	}

	g := &Gate{minFamilies: minFamilies}
	for _, p := range patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			// Skip invalid patterns
			continue
		}
		cp := &compiledPattern{Pattern: p, regex: re}
		if p.Family == FamilyStrongAction {
			g.strong = append(g.strong, cp)
		} else {
			g.weak = append(g.weak, cp)
		}
	}
	return g
}

// Classify reports whether text carries enough task signal to justify an
// extraction call. A strong-action match passes immediately; otherwise the
// fragment passes when at least minFamilies distinct weak families match.
func (g *Gate) Classify(text string) bool {
	if text == "" {
		return false
	}

	for _, p := range g.strong {
		if p.regex.MatchString(text) {
			return true
		}
	}

	families := make(map[string]struct{}, 3)
	for _, p := range g.weak {
		if _, seen := families[p.Family]; seen {
			continue
		}
		if p.regex.MatchString(text) {
			families[p.Family] = struct{}{}
			if len(families) >= g.minFamilies {
				return true
			}
		}
	}
	return false
}

// Signals returns the names of all families matching text, strong-action
// first. Used for debug logging and gate metrics.
func (g *Gate) Signals(text string) []string {
	var out []string
	for _, p := range g.strong {
		if p.regex.MatchString(text) {
			out = append(out, FamilyStrongAction)
			break
		}
	}
	seen := make(map[string]struct{}, 3)
	for _, p := range g.weak {
		if _, ok := seen[p.Family]; ok {
			continue
		}
		if p.regex.MatchString(text) {
			seen[p.Family] = struct{}{}
			out = append(out, p.Family)
		}
	}
	return out
}
