package ankiweb

import (
	"ankiboard/internal/decks"
	"ankiboard/pkg/htmlutil"
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// pages shorter than this are the bare SvelteKit shell, the decks are only rendered
// client-side.
const minServerRenderedLen = 3000

// parseDeckPage reads the legacy server-rendered /decks/ page, where every deck is a row
// of table#decks holding its name, due count and new count. Learning counts are not shown
// on that page and stay zero.
func parseDeckPage(body []byte) (*decks.Node, []string, error) {
	notes := []string{fmt.Sprintf("deck page: %d bytes of HTML", len(body))}
	if len(body) < minServerRenderedLen {
		notes = append(notes, "deck page is a client-rendered shell, no deck data in it")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, notes, err
	}

	root := decks.NewRoot()
	doc.Find("table#decks tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		name := htmlutil.SelectionText(cells.Eq(0))
		if !acceptDeckName(name) {
			return
		}
		root.AddChild(&decks.Node{
			Name: name,
			Counters: decks.Counters{
				Due: htmlutil.FirstNumber(htmlutil.SelectionText(cells.Eq(1))),
				New: htmlutil.FirstNumber(htmlutil.SelectionText(cells.Eq(2))),
			},
		})
	})

	if len(root.Children) > 0 {
		notes = append(notes, fmt.Sprintf("deck page: %d decks", len(root.Children)))
	}
	return root, notes, nil
}
