package ankiweb

import (
	"ankiboard/internal/courses"
	"ankiboard/internal/decks"
	"ankiboard/internal/scrapers/ankiweb/ankiwebtest"
	"ankiboard/internal/stats"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func notesContaining(notes []string, substr string) []string {
	var out []string
	for _, n := range notes {
		if strings.Contains(n, substr) {
			out = append(out, n)
		}
	}
	return out
}

func TestDecodeDeckListTree(t *testing.T) {
	blob := ankiwebtest.DeckList(
		ankiwebtest.Deck{
			ID:   10,
			Name: "Histología Ross",
			Due:  30, Learning: 2, New: 100,
			Children: []ankiwebtest.Deck{
				{
					ID:   11,
					Name: "Teoría",
					Due:  8, Learning: 1, New: 40,
					Children: []ankiwebtest.Deck{
						{ID: 12, Name: "Capítulo 1", Due: 3, New: 10},
					},
				},
				{ID: 13, Name: "Láminas", Due: 22, Learning: 1, New: 60},
			},
		},
		ankiwebtest.Deck{ID: 20, Name: "Random Deck", Due: 5},
	)

	root, notes := DecodeDeckList(blob)
	require.Empty(t, notes)

	expected := &decks.Node{
		Children: []*decks.Node{
			{
				ID:       10,
				Name:     "Histología Ross",
				Counters: decks.Counters{Due: 30, Learning: 2, New: 100},
				Children: []*decks.Node{
					{
						ID:       11,
						Name:     "Teoría",
						Counters: decks.Counters{Due: 8, Learning: 1, New: 40},
						Children: []*decks.Node{
							{ID: 12, Name: "Capítulo 1", Counters: decks.Counters{Due: 3, New: 10}},
						},
					},
					{ID: 13, Name: "Láminas", Counters: decks.Counters{Due: 22, Learning: 1, New: 60}},
				},
			},
			{ID: 20, Name: "Random Deck", Counters: decks.Counters{Due: 5}},
		},
	}
	if diff := cmp.Diff(expected, root); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, 5, root.Count())
}

func TestDecodeDeckListSkipsNoise(t *testing.T) {
	var blob []byte
	// bytes before the first record and a zero length record are skipped
	blob = append(blob, 0x00, 0x7f, 0x1a, 0x00, 0x42)
	blob = append(blob, ankiwebtest.DeckList(ankiwebtest.Deck{ID: 1, Name: "Anatomía", Due: 20})...)

	root, _ := DecodeDeckList(blob)
	require.Len(t, root.Children, 1)
	require.Equal(t, "Anatomía", root.Children[0].Name)
	require.Equal(t, uint64(20), root.Children[0].Counters.Due)
}

func TestDecodeDeckListFiltersDecoys(t *testing.T) {
	blob := ankiwebtest.DeckList(
		ankiwebtest.Deck{Name: "/decks"},
		ankiwebtest.Deck{Name: "_app/immutable/entry"},
		ankiwebtest.Deck{Name: "node_modules/svelte"},
		ankiwebtest.Deck{Name: "chunk.JS"},
		ankiwebtest.Deck{Name: "A"},
		ankiwebtest.Deck{Name: "42"},
		ankiwebtest.Deck{
			Name: "Farmacología",
			Due:  4,
			Children: []ankiwebtest.Deck{
				{Name: "_app/start"},
				{Name: "Teoría", Due: 1},
			},
		},
	)

	root, _ := DecodeDeckList(blob)
	require.Len(t, root.Children, 1)
	deck := root.Children[0]
	require.Equal(t, "Farmacología", deck.Name)
	require.Len(t, deck.Children, 1)
	require.Equal(t, "Teoría", deck.Children[0].Name)
}

func TestAcceptDeckName(t *testing.T) {
	table := []struct {
		name     string
		expected bool
	}{
		{name: "Fisiopatología Uribe", expected: true},
		{name: "Ab", expected: true},
		{name: "A", expected: false},
		{name: "", expected: false},
		{name: "/account", expected: false},
		{name: "_app", expected: false},
		{name: "SvelteKit", expected: false},
		{name: "index.js", expected: false},
		{name: "2024", expected: false},
		{name: "1a", expected: false},
	}
	for _, row := range table {
		require.Equal(t, row.expected, acceptDeckName(row.name), row.name)
	}
}

func TestDecodeDeckListTruncatedTopLevel(t *testing.T) {
	blob := ankiwebtest.DeckList(
		ankiwebtest.Deck{ID: 1, Name: "Anatomía", Due: 20},
		ankiwebtest.Deck{ID: 2, Name: "Histología Ross", Due: 8},
	)
	blob = blob[:len(blob)-4]

	root, notes := DecodeDeckList(blob)
	require.Len(t, root.Children, 1)
	require.Equal(t, "Anatomía", root.Children[0].Name)
	require.NotEmpty(t, notesContaining(notes, "only"))
}

func TestDecodeDeckListTruncatedField(t *testing.T) {
	var record []byte
	record = protowire.AppendTag(record, 2, protowire.BytesType)
	record = protowire.AppendString(record, "Bioquímica")
	record = protowire.AppendTag(record, 6, protowire.VarintType)
	record = protowire.AppendVarint(record, 5)
	// a child that claims 40 bytes but carries 3
	record = protowire.AppendTag(record, 3, protowire.BytesType)
	record = protowire.AppendVarint(record, 40)
	record = append(record, 0x08, 0x01, 0x10)

	var blob []byte
	blob = protowire.AppendTag(blob, 3, protowire.BytesType)
	blob = protowire.AppendBytes(blob, record)

	root, notes := DecodeDeckList(blob)
	require.Len(t, root.Children, 1)
	deck := root.Children[0]
	require.Equal(t, "Bioquímica", deck.Name)
	require.Equal(t, uint64(5), deck.Counters.Due)
	require.Empty(t, deck.Children)
	require.NotEmpty(t, notesContaining(notes, "cut short"))
}

func TestDecodeDeckListEveryPrefix(t *testing.T) {
	blob := ankiwebtest.DeckList(
		ankiwebtest.Deck{
			ID:   1,
			Name: "Histología Ross",
			Due:  300,
			Children: []ankiwebtest.Deck{
				{ID: 2, Name: "Teoría", Due: 8, Children: []ankiwebtest.Deck{{ID: 3, Name: "Tema"}}},
			},
		},
		ankiwebtest.Deck{ID: 4, Name: "Anatomía", Due: 20},
	)

	for i := 0; i <= len(blob); i++ {
		root, _ := DecodeDeckList(blob[:i])
		require.NotNil(t, root)
		require.LessOrEqual(t, len(root.Children), 2)
	}
}

func TestDecodeDeckListDrift(t *testing.T) {
	var extra []byte
	extra = protowire.AppendTag(extra, 9, protowire.VarintType)
	extra = protowire.AppendVarint(extra, 77)
	extra = protowire.AppendTag(extra, 4, protowire.Fixed32Type)
	extra = protowire.AppendFixed32(extra, 0xdeadbeef)
	extra = protowire.AppendTag(extra, 5, protowire.Fixed64Type)
	extra = protowire.AppendFixed64(extra, 1)
	// field 6 with the wrong wire type
	extra = protowire.AppendTag(extra, 6, protowire.BytesType)
	extra = protowire.AppendString(extra, "xx")
	// an unassigned wire type
	extra = append(extra, 0x0b)

	blob := ankiwebtest.DeckList(
		ankiwebtest.Deck{ID: 1, Name: "Anatomía", Due: 20, Learning: 1, New: 2, Extra: extra},
		ankiwebtest.Deck{ID: 2, Name: "Histología Ross", Due: 8, Extra: extra},
	)

	root, notes := DecodeDeckList(blob)
	require.Len(t, root.Children, 2)
	require.Equal(t, decks.Counters{Due: 20, Learning: 1, New: 2}, root.Children[0].Counters)
	require.Equal(t, decks.Counters{Due: 8}, root.Children[1].Counters)

	require.Len(t, notesContaining(notes, "unknown field 9 (varint)"), 1)
	require.Len(t, notesContaining(notes, "unknown field 4 (fixed32)"), 1)
	require.Len(t, notesContaining(notes, "unknown field 5 (fixed64)"), 1)
	require.Len(t, notesContaining(notes, "unknown field 6 (bytes)"), 1)
	require.Len(t, notesContaining(notes, "unknown field 1 (unknown(3))"), 1)
}

func TestDecodeDeckListInvalidName(t *testing.T) {
	var record []byte
	record = protowire.AppendTag(record, 2, protowire.BytesType)
	record = protowire.AppendBytes(record, []byte{0xff, 0xfe, 'a', 'b'})
	record = protowire.AppendTag(record, 6, protowire.VarintType)
	record = protowire.AppendVarint(record, 9)

	var blob []byte
	blob = protowire.AppendTag(blob, 3, protowire.BytesType)
	blob = protowire.AppendBytes(blob, record)
	blob = append(blob, ankiwebtest.DeckList(ankiwebtest.Deck{Name: "Anatomía"})...)

	root, _ := DecodeDeckList(blob)
	require.Len(t, root.Children, 1)
	require.Equal(t, "Anatomía", root.Children[0].Name)
}

func TestDecodeDeckListEmpty(t *testing.T) {
	root, notes := DecodeDeckList(nil)
	require.Empty(t, root.Children)
	require.Empty(t, notes)
}

func TestDecodeDeckListLargeTopLevelRecord(t *testing.T) {
	topics := make([]ankiwebtest.Deck, 300)
	for i := range topics {
		topics[i] = ankiwebtest.Deck{
			ID:   uint64(100 + i),
			Name: fmt.Sprintf("Capítulo %d de histología general", i),
			Due:  1,
		}
	}
	blob := ankiwebtest.DeckList(
		ankiwebtest.Deck{
			ID:   1,
			Name: "Histología Ross",
			Children: []ankiwebtest.Deck{
				{ID: 2, Name: "Teoría", Due: 300, Children: topics},
			},
		},
		ankiwebtest.Deck{ID: 3, Name: "Anatomía", Due: 20},
	)
	require.Greater(t, len(blob), 10000)

	root, notes := DecodeDeckList(blob)
	require.Empty(t, notes)
	require.Len(t, root.Children, 2)
	require.Equal(t, "Histología Ross", root.Children[0].Name)
	require.Len(t, root.Children[0].Children[0].Children, 300)
	require.Equal(t, "Anatomía", root.Children[1].Name)

	result := stats.Aggregate(root, []string{"Histología"}, courses.NewRules(map[string][]string{
		"Histología": {"=Histología Ross"},
	}))
	require.Equal(t, decks.Counters{Due: 300}, result.Courses["Histología"])
}

func TestDecodeDeckListTruncatedRecordPromotesChildren(t *testing.T) {
	blob := ankiwebtest.DeckList(
		ankiwebtest.Deck{
			ID:   1,
			Name: "Histología Ross",
			Children: []ankiwebtest.Deck{
				{ID: 2, Name: "Teoría", Due: 8},
			},
			Due: 30,
		},
	)
	// cut inside the parent's own counters, after the child
	blob = blob[:len(blob)-3]

	root, notes := DecodeDeckList(blob)
	require.NotEmpty(t, notesContaining(notes, "only"))
	require.Len(t, root.Children, 1)
	require.Equal(t, "Teoría", root.Children[0].Name)
	require.Equal(t, uint64(8), root.Children[0].Counters.Due)
}
