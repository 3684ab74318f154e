package courses

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "Fisiopatología Uribe", expected: "fisiopatologia uribe"},
		{input: "  ANATOMÍA humana Pró\t", expected: "anatomia humana pro"},
		{input: "Pingüino Ñandú", expected: "pinguino nandu"},
		{input: "plain", expected: "plain"},
	}

	for _, row := range table {
		require.Equal(t, row.expected, Normalize(row.input))
	}
}

func TestParsePattern(t *testing.T) {
	require.Equal(t, Pattern{Mode: MatchExact, Text: "Histología Ross"}, ParsePattern("=Histología Ross"))
	require.Equal(t, Pattern{Mode: MatchContains, Text: "ross"}, ParsePattern("ross"))
	require.Equal(t, []string{"=A b", "c"}, NewRule("x", "=A b", "c").Keywords())
}

func TestMatchesExact(t *testing.T) {
	rules := NewRules(map[string][]string{
		"Fisiopatología": {"=Fisiopatología Uribe"},
	})

	require.True(t, Matches("Fisiopatología Uribe", "Fisiopatología", rules))
	require.True(t, Matches("  fisiopatologia URIBE ", "Fisiopatología", rules))
	require.False(t, Matches("Fisiopatología General", "Fisiopatología", rules))
	require.False(t, Matches("Fisiopatología Uribe 2024", "Fisiopatología", rules))
}

func TestMatchesContains(t *testing.T) {
	rules := NewRules(map[string][]string{
		"Histología": {"histo"},
	})

	require.True(t, Matches("Histología Ross", "Histología", rules))
	require.True(t, Matches("Mi HISTOLOGÍA", "Histología", rules))
	require.False(t, Matches("Anatomía", "Histología", rules))
}

func TestMatchesWithoutRule(t *testing.T) {
	require.False(t, Matches("Anatomía", "Anatomía", Rules{}))
}

func TestClassifyFirstCourseWins(t *testing.T) {
	rules := NewRules(map[string][]string{
		"Patología":      {"patologia"},
		"Fisiopatología": {"fisiopatologia"},
	})

	course, ok := Classify("Fisiopatología Uribe", []string{"Patología", "Fisiopatología"}, rules)
	require.True(t, ok)
	require.Equal(t, "Patología", course)

	course, ok = Classify("Fisiopatología Uribe", []string{"Fisiopatología", "Patología"}, rules)
	require.True(t, ok)
	require.Equal(t, "Fisiopatología", course)

	_, ok = Classify("Random Deck", []string{"Fisiopatología", "Patología"}, rules)
	require.False(t, ok)
}

func TestDefaultKeywordsCoverDefaultCourses(t *testing.T) {
	rules := NewRules(DefaultKeywords)
	for _, course := range DefaultCourses {
		_, ok := rules[course]
		require.True(t, ok, course)
	}

	course, ok := Classify("Fisiopatologia Uribe", DefaultCourses, rules)
	require.True(t, ok)
	require.Equal(t, "Fisiopatología", course)
}
