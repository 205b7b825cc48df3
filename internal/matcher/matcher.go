// Package matcher matches free-text "work done" descriptions against
// unchecked checklist items.
//
// The matching rule is case-insensitive containment in either direction
// between a candidate description and an unchecked checklist line:
// either string containing the other, or every word of one appearing in
// the other ("implement user login endpoint" completes "implement login
// endpoint"). This deliberately loose heuristic favors recall over
// precision: a short description like "login" can match several
// unrelated lines, and every match is taken. False positives are an
// accepted limitation of the rule, not something the matcher
// second-guesses.
package matcher

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/swarmd/internal/checklist"
)

// DefaultMaxPerPass caps the auto-detected completions applied per
// checklist per scan pass, bounding how far one noisy description set
// can run ahead of reality.
const DefaultMaxPerPass = 3

// Matcher matches completion descriptions against checklists.
type Matcher struct {
	maxPerPass int
}

// New creates a matcher. maxPerPass caps the matches returned per call;
// a non-positive value removes the cap.
func New(maxPerPass int) *Matcher {
	return &Matcher{maxPerPass: maxPerPass}
}

// Match returns the line numbers of unchecked checklist items matched by
// any description, in ascending order, capped at maxPerPass.
//
// Zero matches is a silent no-op for the caller. Multiple items matching
// one description all get marked; recall wins over precision.
func (m *Matcher) Match(descriptions []string, items []checklist.Item) []int {
	if len(descriptions) == 0 || len(items) == 0 {
		return nil
	}

	matched := make(map[int]bool)
	for _, item := range items {
		if item.Completed {
			continue
		}
		line := strings.ToLower(strings.TrimSpace(item.Description))
		if line == "" {
			continue
		}
		for _, desc := range descriptions {
			candidate := strings.ToLower(strings.TrimSpace(desc))
			if candidate == "" {
				continue
			}
			if matches(line, candidate) {
				matched[item.Line] = true
				break
			}
		}
	}

	lines := make([]int, 0, len(matched))
	for line := range matched {
		lines = append(lines, line)
	}
	sort.Ints(lines)

	if m.maxPerPass > 0 && len(lines) > m.maxPerPass {
		lines = lines[:m.maxPerPass]
	}
	return lines
}

// matches applies the containment rule to two case-folded strings.
func matches(line, candidate string) bool {
	if strings.Contains(line, candidate) || strings.Contains(candidate, line) {
		return true
	}
	return wordSubset(line, candidate) || wordSubset(candidate, line)
}

// wordSubset reports whether every word of a appears in b.
func wordSubset(a, b string) bool {
	aWords := strings.Fields(a)
	if len(aWords) == 0 {
		return false
	}
	bWords := make(map[string]bool)
	for _, w := range strings.Fields(b) {
		bWords[w] = true
	}
	for _, w := range aWords {
		if !bWords[w] {
			return false
		}
	}
	return true
}
