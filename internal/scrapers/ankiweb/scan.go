package ankiweb

import (
	"ankiboard/internal/decks"
	"ankiboard/pkg/wire"
)

// DecodeDeckList decodes a deck-list-info response body into a deck tree. It never fails,
// anything it could not make sense of ends up in the returned notes.
func DecodeDeckList(body []byte) (*decks.Node, []string) {
	d := newDeckDecoder()
	root := d.scanTopLevel(body)
	return root, d.notes
}

// scanTopLevel is a best-effort walk of the root message. The root's own layout is not
// relied upon: every 0x1a byte followed by a length that fits in the buffer is taken as
// the start of a top-level deck record, whatever its size, and handed to the strict
// parser. The scan then resumes after the record so its sub-decks are never mistaken for
// top-level decks.
//
// A record whose length runs past the end of the buffer is noted and the scan moves on
// by a single byte, since a stray 0x1a is more common than a cut response. For a cut
// response this means the complete sub-decks of the damaged record surface as top-level
// decks of their own.
func (d *deckDecoder) scanTopLevel(buf []byte) *decks.Node {
	root := decks.NewRoot()

	pos := 0
	for pos < len(buf)-2 {
		if buf[pos] != topLevelDeckTag {
			pos++
			continue
		}

		length, start := wire.ReadVarint(buf, pos+1)
		switch {
		case length == 0:
			pos++
		case length > uint64(len(buf)-start):
			d.notef(
				"top-level record at offset %d declares %d bytes but only %d remain",
				pos, length, len(buf)-start,
			)
			pos++
		default:
			end := start + int(length)
			deck := d.parseMessage(buf, start, end)
			if acceptDeckName(deck.Name) {
				root.AddChild(deck)
			}
			pos = end
		}
	}

	return root
}
