// Package courses decides which configured course a deck belongs to.
package courses

import (
	"strings"
)

type MatchMode int

const (
	// MatchContains requires the pattern to be a substring of the deck name.
	MatchContains MatchMode = iota
	// MatchExact requires the deck name to equal the pattern.
	MatchExact
)

// exactPrefix marks a keyword as an exact match in configuration.
const exactPrefix = "="

type Pattern struct {
	Mode MatchMode
	Text string
}

// ParsePattern turns a configured keyword into a pattern, "=Name" is an exact match and
// anything else is a substring match.
func ParsePattern(keyword string) Pattern {
	if strings.HasPrefix(keyword, exactPrefix) {
		return Pattern{Mode: MatchExact, Text: keyword[len(exactPrefix):]}
	}
	return Pattern{Mode: MatchContains, Text: keyword}
}

func (p Pattern) String() string {
	if p.Mode == MatchExact {
		return exactPrefix + p.Text
	}
	return p.Text
}

func (p Pattern) matchesNormalized(deck string) bool {
	text := Normalize(p.Text)
	if p.Mode == MatchExact {
		return deck == text
	}
	return strings.Contains(deck, text)
}

// Rule lists the patterns that identify the decks of a course.
type Rule struct {
	Course   string
	Patterns []Pattern
}

// NewRule builds a rule from configured keywords.
func NewRule(course string, keywords ...string) Rule {
	patterns := make([]Pattern, len(keywords))
	for i, k := range keywords {
		patterns[i] = ParsePattern(k)
	}
	return Rule{Course: course, Patterns: patterns}
}

// Keywords returns the patterns in their configured form.
func (r Rule) Keywords() []string {
	out := make([]string, len(r.Patterns))
	for i, p := range r.Patterns {
		out[i] = p.String()
	}
	return out
}

// Rules maps a course name to its rule.
type Rules map[string]Rule

// NewRules builds rules from the configuration mapping of course to keywords.
func NewRules(keywords map[string][]string) Rules {
	rules := make(Rules, len(keywords))
	for course, kws := range keywords {
		rules[course] = NewRule(course, kws...)
	}
	return rules
}

var accentReplacer = strings.NewReplacer(
	"á", "a",
	"é", "e",
	"í", "i",
	"ó", "o",
	"ú", "u",
	"ñ", "n",
	"ü", "u",
)

// Normalize lowercases and trims s and strips the Spanish accents and diacritics.
func Normalize(s string) string {
	return accentReplacer.Replace(strings.TrimSpace(strings.ToLower(s)))
}

// Matches reports whether deckName belongs to course. It is false when the course has
// no rule.
func Matches(deckName, course string, rules Rules) bool {
	rule, ok := rules[course]
	if !ok {
		return false
	}
	deck := Normalize(deckName)
	for _, p := range rule.Patterns {
		if p.matchesNormalized(deck) {
			return true
		}
	}
	return false
}

// Classify returns the first course, in the given order, that deckName matches.
func Classify(deckName string, courses []string, rules Rules) (string, bool) {
	for _, course := range courses {
		if Matches(deckName, course, rules) {
			return course, true
		}
	}
	return "", false
}
