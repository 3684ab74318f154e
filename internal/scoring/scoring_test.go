package scoring

import (
	"ankiboard/internal/decks"
	"ankiboard/internal/stats"
	"testing"

	"github.com/stretchr/testify/require"
)

func counters(due, learning, new uint64) decks.Counters {
	return decks.Counters{Due: due, Learning: learning, New: new}
}

func TestDelta(t *testing.T) {
	previous := counters(20, 10, 5)
	require.Equal(t, uint64(20), Delta(counters(10, 5, 0), &previous))
	require.Equal(t, uint64(0), Delta(counters(10, 5, 0), nil))
	require.Equal(t, uint64(0), Delta(counters(30, 15, 10), &previous))

	anatomy := counters(20, 8, 10)
	require.Equal(t, uint64(18), Delta(counters(10, 5, 5), &anatomy))
}

func TestAnkiPoints(t *testing.T) {
	w := DefaultWeights()
	require.Equal(t, 10.0, w.AnkiPoints(counters(10, 0, 0)))
	require.Equal(t, 5.0, w.AnkiPoints(counters(0, 10, 0)))
	require.Equal(t, 0.0, w.AnkiPoints(counters(0, 0, 100)))
	require.Equal(t, 25.0, w.AnkiPoints(counters(20, 10, 30)))
}

var testCourses = []string{"Anatomía", "Histología", "Fisiología"}

func testAnki() Counts {
	return Counts{
		"Ana Martínez": {
			stats.TotalKey: counters(50, 10, 20),
			"Anatomía":     counters(20, 5, 10),
			"Histología":   counters(15, 3, 5),
			"Fisiología":   counters(15, 2, 5),
		},
		"Carlos López": {
			stats.TotalKey: counters(30, 5, 15),
			"Anatomía":     counters(10, 2, 5),
			"Histología":   counters(10, 2, 5),
			"Fisiología":   counters(10, 1, 5),
		},
	}
}

func testQuizzes() Quizzes {
	return Quizzes{
		"Ana Martínez": {stats.TotalKey: 85, "Anatomía": 30, "Histología": 25, "Fisiología": 30},
		"Carlos López": {stats.TotalKey: 70, "Anatomía": 25, "Histología": 20, "Fisiología": 25},
	}
}

func testPrevious() Counts {
	return Counts{
		"Ana Martínez": {
			stats.TotalKey: counters(70, 15, 25),
			"Anatomía":     counters(30, 7, 12),
			"Histología":   counters(20, 5, 8),
			"Fisiología":   counters(20, 3, 5),
		},
		"Carlos López": {
			stats.TotalKey: counters(35, 8, 18),
			"Anatomía":     counters(12, 3, 6),
			"Histología":   counters(12, 3, 6),
			"Fisiología":   counters(11, 2, 6),
		},
	}
}

func TestCalculateRankings(t *testing.T) {
	board := Calculate(testAnki(), testQuizzes(), testCourses, nil, DefaultWeights())

	require.Equal(t, testCourses, board.Courses)
	for _, course := range append(testCourses, General) {
		rows := board.Ranking(course)
		require.Len(t, rows, 2, course)
		require.GreaterOrEqual(t, rows[0].Score, rows[1].Score, course)
		require.Equal(t, 1, rows[0].Rank)
		require.Equal(t, 2, rows[1].Rank)
		for _, r := range rows {
			require.Zero(t, r.Completed)
		}
	}

	general := board.Ranking(General)
	require.Equal(t, "Ana Martínez", general[0].Student)
	// 50 + 10*0.5 + 85*10
	require.Equal(t, 905.0, general[0].Score)
	require.Equal(t, 55.0, general[0].AnkiPoints)
	require.Equal(t, 850.0, general[0].QuizPoints)
}

func TestCalculateWithPrevious(t *testing.T) {
	board := Calculate(testAnki(), testQuizzes(), testCourses, testPrevious(), DefaultWeights())

	general := board.Ranking(General)
	ana := general[0]
	require.Equal(t, "Ana Martínez", ana.Student)
	// (70+15+25) - (50+10+20)
	require.Equal(t, uint64(30), ana.Completed)
	require.Equal(t, 24.0, ana.CompletedPoints)
	require.Equal(t, 929.0, ana.Score)

	for _, course := range testCourses {
		for _, r := range board.Ranking(course) {
			require.GreaterOrEqual(t, r.Completed, uint64(0))
		}
	}
}

func TestCalculateStudentsFromEitherSource(t *testing.T) {
	anki := Counts{"Beto": {stats.TotalKey: counters(3, 0, 0)}}
	quizzes := Quizzes{"Zoe": {stats.TotalKey: 1}}

	board := Calculate(anki, quizzes, nil, nil, DefaultWeights())
	general := board.Ranking(General)
	require.Len(t, general, 2)
	require.Equal(t, "Zoe", general[0].Student)
	require.Equal(t, 10.0, general[0].Score)
	require.Equal(t, "Beto", general[1].Student)
}

func TestCalculateTiesBreakByName(t *testing.T) {
	anki := Counts{
		"Marta": {stats.TotalKey: counters(1, 0, 0)},
		"Ana":   {stats.TotalKey: counters(1, 0, 0)},
	}
	general := Calculate(anki, nil, nil, nil, DefaultWeights()).Ranking(General)
	require.Equal(t, "Ana", general[0].Student)
	require.Equal(t, "Marta", general[1].Student)
}

func TestCalculateRounding(t *testing.T) {
	w := DefaultWeights()
	w.Learning = 0.33
	anki := Counts{"Ana": {stats.TotalKey: counters(0, 1, 0)}}
	general := Calculate(anki, nil, nil, nil, w).Ranking(General)
	require.Equal(t, 0.3, general[0].AnkiPoints)
	require.Equal(t, 0.3, general[0].Score)
}
