package commands

import (
	"ankiboard/internal/decks"
	"ankiboard/internal/leaderboard"
	"ankiboard/internal/scoring"
	"ankiboard/internal/stats"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func rankingTitle(course string) string {
	if course == scoring.General {
		return "General"
	}
	return course
}

// parseRanking accepts "general" (any case) for scoring.General.
func parseRanking(name string, courseNames []string) (string, error) {
	if name == scoring.General || strings.EqualFold(name, "general") {
		return scoring.General, nil
	}
	for _, c := range courseNames {
		if c == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown course %q", name)
}

func renderRanking(w io.Writer, board scoring.Board, course string) {
	t := newTable(w)
	t.SetTitle(rankingTitle(course))
	t.AppendHeader(table.Row{"#", "Student", "Due", "Learning", "New", "Completed", "Quizzes", "Score"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	for _, row := range board.Ranking(course) {
		t.AppendRow(table.Row{
			row.Rank,
			row.Student,
			row.Counters.Due,
			row.Counters.Learning,
			row.Counters.New,
			row.Completed,
			fmt.Sprintf("%.1f", row.Quizzes),
			fmt.Sprintf("%.1f", row.Score),
		})
	}
	t.Render()
}

// renderPending shows the pending cards of every student in every course.
func renderPending(w io.Writer, report leaderboard.Report, students []leaderboard.Student, courseNames []string) {
	t := newTable(w)
	t.SetTitle("Pending cards")
	header := table.Row{"Student"}
	for _, c := range courseNames {
		header = append(header, c)
	}
	header = append(header, "Total")
	t.AppendHeader(header)

	for _, s := range students {
		result, ok := report.Results[s.Name]
		if !ok {
			continue
		}
		row := table.Row{s.Name}
		for _, c := range courseNames {
			row = append(row, result.Courses[c].Pending())
		}
		row = append(row, result.Total.Pending())
		t.AppendRow(row)
	}
	t.Render()
}

func renderMatched(w io.Writer, title string, result stats.Result) {
	t := newTable(w)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Course", "Deck", "Counted from", "Due", "Learning", "New"})
	for _, m := range result.Matched {
		from := m.Deck
		if m.Theory != "" {
			from = m.Theory
		}
		t.AppendRow(table.Row{m.Course, m.Deck, from, m.Counters.Due, m.Counters.Learning, m.Counters.New})
	}
	t.AppendFooter(table.Row{"", "", "Total", result.Total.Due, result.Total.Learning, result.Total.New})
	t.Render()
}

func renderTree(w io.Writer, root *decks.Node) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("%d decks", root.Count()))
	t.AppendHeader(table.Row{"Deck", "ID", "Due", "Learning", "New"})
	root.Walk(func(node *decks.Node, depth int) {
		if node == root {
			return
		}
		t.AppendRow(table.Row{
			strings.Repeat("  ", depth-1) + node.Name,
			node.ID,
			node.Counters.Due,
			node.Counters.Learning,
			node.Counters.New,
		})
	})
	t.Render()
}

func renderNotes(w io.Writer, title string, notes []string) {
	if len(notes) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, n := range notes {
		fmt.Fprintf(w, "  - %s\n", n)
	}
}
