// Package scoring ranks students by the cards they keep up with and their quiz scores.
package scoring

import (
	"ankiboard/internal/decks"
	"ankiboard/internal/stats"
	"math"
	"slices"
	"strings"
)

// General is the ranking over every course, computed from the stats.TotalKey counters.
const General = "_general"

type Weights struct {
	Review    float64 `json:"review"`
	Learning  float64 `json:"learning"`
	New       float64 `json:"new"`
	Quiz      float64 `json:"quiz"`
	Completed float64 `json:"completed"`
}

func DefaultWeights() Weights {
	return Weights{
		Review:    1.0,
		Learning:  0.5,
		New:       0,
		Quiz:      10,
		Completed: 0.8,
	}
}

// AnkiPoints weighs the pending cards of c.
func (w Weights) AnkiPoints(c decks.Counters) float64 {
	return float64(c.Due)*w.Review + float64(c.Learning)*w.Learning + float64(c.New)*w.New
}

// Counts maps a student to their per-course counters, as returned by stats.Result.Counts.
type Counts map[string]map[string]decks.Counters

// Quizzes maps a student to their quiz score per course, stats.TotalKey holds the sum.
type Quizzes map[string]map[string]float64

// Delta is the number of cards the student got through since the previous snapshot: how
// much the pending count went down. It is never negative, cards added to a deck do not
// count against the student.
func Delta(current decks.Counters, previous *decks.Counters) uint64 {
	if previous == nil {
		return 0
	}
	curr := current.Pending()
	prev := previous.Pending()
	if prev <= curr {
		return 0
	}
	return prev - curr
}

type Row struct {
	Rank     int            `json:"rank"`
	Student  string         `json:"student"`
	Counters decks.Counters `json:"counters"`
	// Completed is the Delta against the previous snapshot.
	Completed       uint64  `json:"completed"`
	AnkiPoints      float64 `json:"anki_points"`
	CompletedPoints float64 `json:"completed_points"`
	Quizzes         float64 `json:"quizzes"`
	QuizPoints      float64 `json:"quiz_points"`
	Score           float64 `json:"score"`
}

// Board holds one ranking per course plus General.
type Board struct {
	Courses  []string         `json:"courses"`
	Rankings map[string][]Row `json:"rankings"`
}

// Ranking returns the rows of a course, or of General, best first.
func (b Board) Ranking(course string) []Row {
	return b.Rankings[course]
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func students(anki Counts, quizzes Quizzes) []string {
	seen := map[string]bool{}
	var out []string
	for s := range anki {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for s := range quizzes {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

func row(student, key string, anki Counts, quizzes Quizzes, previous Counts, w Weights) Row {
	counters := anki[student][key]

	var prev *decks.Counters
	if snapshot, ok := previous[student]; ok {
		p := snapshot[key]
		prev = &p
	}
	completed := Delta(counters, prev)

	ankiPoints := w.AnkiPoints(counters)
	completedPoints := float64(completed) * w.Completed
	quiz := quizzes[student][key]
	quizPoints := quiz * w.Quiz

	return Row{
		Student:         student,
		Counters:        counters,
		Completed:       completed,
		AnkiPoints:      round1(ankiPoints),
		CompletedPoints: round1(completedPoints),
		Quizzes:         quiz,
		QuizPoints:      round1(quizPoints),
		Score:           round1(ankiPoints + completedPoints + quizPoints),
	}
}

func rank(rows []Row) {
	slices.SortFunc(rows, func(a, b Row) int {
		// flipped so that higher scores come first
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.Student, b.Student)
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
}

// Calculate ranks every student appearing in anki or quizzes, once per course and once
// overall. previous may be nil, no cards are then counted as completed.
func Calculate(anki Counts, quizzes Quizzes, courseNames []string, previous Counts, w Weights) Board {
	all := students(anki, quizzes)
	board := Board{
		Courses:  slices.Clone(courseNames),
		Rankings: make(map[string][]Row, len(courseNames)+1),
	}

	keys := append(slices.Clone(courseNames), General)
	for _, key := range keys {
		countsKey := key
		if key == General {
			countsKey = stats.TotalKey
		}

		rows := make([]Row, 0, len(all))
		for _, student := range all {
			rows = append(rows, row(student, countsKey, anki, quizzes, previous, w))
		}
		rank(rows)
		board.Rankings[key] = rows
	}

	return board
}
