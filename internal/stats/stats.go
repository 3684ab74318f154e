// Package stats turns a student's deck tree into per-course card counts.
package stats

import (
	"ankiboard/internal/courses"
	"ankiboard/internal/decks"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// TotalKey is the key of the sum over every course in Counts.
const TotalKey = "_total"

// theoryMarker identifies the sub-deck holding the theory cards of a course deck, it is
// compared against normalized names.
const theoryMarker = "teoria"

// minSuggestionScore is the Jaro-Winkler similarity above which an unmatched deck is
// suggested as a likely candidate for a course without decks.
const minSuggestionScore = 0.8

type Topic struct {
	Name     string         `json:"name"`
	Counters decks.Counters `json:"counters"`
}

// MatchedDeck is a top-level deck claimed by a course.
type MatchedDeck struct {
	Deck   string `json:"deck"`
	Course string `json:"course"`
	// Theory is the name of the sub-deck the counters were taken from, empty when they are
	// the deck's own.
	Theory   string         `json:"theory,omitempty"`
	Counters decks.Counters `json:"counters"`
	// Topics are the children of the theory sub-deck.
	Topics []Topic `json:"topics,omitempty"`
}

// Result is the outcome of one fetch cycle for one student. It is always well formed:
// every configured course has an entry, zero when nothing was found.
type Result struct {
	// Order is the configured course order.
	Order   []string                  `json:"order"`
	Courses map[string]decks.Counters `json:"courses"`
	Total   decks.Counters            `json:"total"`
	Matched []MatchedDeck             `json:"matched"`
	Notes   []string                  `json:"notes"`
	// Fetched is false when the decks could not be fetched, the counters are then zero
	// placeholders and must not be compared against earlier counts.
	Fetched bool `json:"fetched"`
}

// NewResult creates an all-zero result for the given courses.
func NewResult(courseNames []string) Result {
	counts := make(map[string]decks.Counters, len(courseNames))
	for _, c := range courseNames {
		counts[c] = decks.Counters{}
	}
	order := make([]string, len(courseNames))
	copy(order, courseNames)
	return Result{
		Order:   order,
		Courses: counts,
	}
}

// Notef appends a diagnostic note.
func (r *Result) Notef(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// Counts returns the per-course counters along with TotalKey.
func (r Result) Counts() map[string]decks.Counters {
	out := make(map[string]decks.Counters, len(r.Courses)+1)
	for course, c := range r.Courses {
		out[course] = c
	}
	out[TotalKey] = r.Total
	return out
}

func (r *Result) add(match MatchedDeck) {
	r.Matched = append(r.Matched, match)
	r.Courses[match.Course] = r.Courses[match.Course].Add(match.Counters)
	r.Total = r.Total.Add(match.Counters)
}

func findTheory(deck *decks.Node) *decks.Node {
	for _, child := range deck.Children {
		if strings.Contains(courses.Normalize(child.Name), theoryMarker) {
			return child
		}
	}
	return nil
}

func matchDeck(deck *decks.Node, course string) MatchedDeck {
	match := MatchedDeck{
		Deck:     deck.Name,
		Course:   course,
		Counters: deck.Counters,
	}
	theory := findTheory(deck)
	if theory == nil {
		return match
	}
	match.Theory = theory.Name
	match.Counters = theory.Counters
	for _, topic := range theory.Children {
		match.Topics = append(match.Topics, Topic{Name: topic.Name, Counters: topic.Counters})
	}
	return match
}

// Aggregate sums the counters of the top-level decks of root into the course each one
// belongs to. A deck with a theory sub-deck contributes that sub-deck's own counters,
// any other deck contributes its own. A deck is claimed by the first course in
// courseNames whose rule matches it and by no other.
//
// root may be nil, the result is then all zero.
func Aggregate(root *decks.Node, courseNames []string, rules courses.Rules) Result {
	result := NewResult(courseNames)
	if root == nil {
		root = decks.NewRoot()
	}

	matchedCourses := map[string]bool{}
	var unmatched []string
	for _, deck := range root.Children {
		course, ok := courses.Classify(deck.Name, courseNames, rules)
		if !ok {
			unmatched = append(unmatched, deck.Name)
			continue
		}
		matchedCourses[course] = true
		result.add(matchDeck(deck, course))
	}

	for _, course := range courseNames {
		if matchedCourses[course] {
			continue
		}
		var keywords []string
		if rule, ok := rules[course]; ok {
			keywords = rule.Keywords()
		}
		note := fmt.Sprintf("no deck found for %q (looking for: %s)", course, strings.Join(keywords, ", "))
		if suggestion, ok := closestDeck(course, keywords, unmatched); ok {
			note += fmt.Sprintf(", closest deck: %q", suggestion)
		}
		result.Notes = append(result.Notes, note)
	}

	return result
}

// closestDeck finds the unmatched deck whose name is most similar to the course or to
// one of its keywords.
func closestDeck(course string, keywords, candidates []string) (string, bool) {
	targets := []string{courses.Normalize(course)}
	for _, k := range keywords {
		targets = append(targets, courses.Normalize(courses.ParsePattern(k).Text))
	}

	best := ""
	bestScore := 0.0
	for _, candidate := range candidates {
		name := courses.Normalize(candidate)
		for _, target := range targets {
			score := matchr.JaroWinkler(name, target, false)
			if score > bestScore {
				best = candidate
				bestScore = score
			}
		}
	}
	return best, bestScore >= minSuggestionScore
}
