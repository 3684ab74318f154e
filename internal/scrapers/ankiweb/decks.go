package ankiweb

import (
	"ankiboard/internal/decks"
	"ankiboard/pkg/wire"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// deckField is the meaning of a field number inside a deck record.
type deckField int

const (
	deckFieldId deckField = iota
	deckFieldName
	deckFieldChild
	deckFieldDue
	deckFieldLearning
	deckFieldNew
)

type deckFieldSpec struct {
	field deckField
	typ   wire.Type
}

// deckFields maps the field numbers of a deck-list-info deck record to their meaning.
//
// AnkiWeb publishes no schema for this message, these numbers were worked out by looking
// at responses. When AnkiWeb changes its schema this is the only table to update, the
// drift notes emitted for unknown fields say what to look at.
var deckFields = map[uint32]deckFieldSpec{
	1: {field: deckFieldId, typ: wire.TypeVarint},
	2: {field: deckFieldName, typ: wire.TypeBytes},
	3: {field: deckFieldChild, typ: wire.TypeBytes},
	6: {field: deckFieldDue, typ: wire.TypeVarint},
	7: {field: deckFieldLearning, typ: wire.TypeVarint},
	8: {field: deckFieldNew, typ: wire.TypeVarint},
}

// topLevelDeckTag is the tag byte of field 3, length-delimited, in the root message.
const topLevelDeckTag = 0x1a

// acceptDeckName filters out the records that share the deck wire format but are really
// route and asset names from AnkiWeb's own SvelteKit bundle.
func acceptDeckName(name string) bool {
	if utf8.RuneCountInString(name) < 2 {
		return false
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, "_app") {
		return false
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, "svelte") || strings.Contains(lower, ".js") {
		return false
	}
	letters := 0
	for _, r := range name {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 2
}

type driftKey struct {
	field uint32
	typ   wire.Type
}

// deckDecoder decodes one deck-list-info response. It is not safe for concurrent use,
// each response gets its own decoder.
type deckDecoder struct {
	notes []string
	drift map[driftKey]struct{}
}

func newDeckDecoder() *deckDecoder {
	return &deckDecoder{drift: map[driftKey]struct{}{}}
}

func (d *deckDecoder) notef(format string, args ...any) {
	d.notes = append(d.notes, fmt.Sprintf(format, args...))
}

func (d *deckDecoder) noteDrift(rec wire.Record, deckName string) {
	key := driftKey{field: rec.Field, typ: rec.Type}
	if _, seen := d.drift[key]; seen {
		return
	}
	d.drift[key] = struct{}{}
	d.notef("unknown field %d (%s) in deck record %q", rec.Field, rec.Type, deckName)
}

// parseMessage decodes the deck record in buf[start:end]. Decoding stops at the first
// damaged field, the node holds whatever was decoded before it.
func (d *deckDecoder) parseMessage(buf []byte, start, end int) *decks.Node {
	node := &decks.Node{}
	pos := start
	for pos < end {
		rec, next, err := wire.Next(buf, pos, end)
		if errors.Is(err, wire.ErrUnknownType) {
			d.noteDrift(rec, node.Name)
			pos = next
			continue
		}
		if err != nil {
			d.notef("deck record %q cut short: %v", node.Name, err)
			return node
		}
		pos = next

		spec, known := deckFields[rec.Field]
		if !known || spec.typ != rec.Type {
			d.noteDrift(rec, node.Name)
			continue
		}

		switch spec.field {
		case deckFieldId:
			node.ID = rec.Value
		case deckFieldName:
			if utf8.Valid(rec.Bytes) {
				node.Name = string(rec.Bytes)
			}
		case deckFieldChild:
			child := d.parseMessage(buf, rec.Offset, rec.Offset+len(rec.Bytes))
			if acceptDeckName(child.Name) {
				node.AddChild(child)
			}
		case deckFieldDue:
			node.Counters.Due = rec.Value
		case deckFieldLearning:
			node.Counters.Learning = rec.Value
		case deckFieldNew:
			node.Counters.New = rec.Value
		}
	}
	return node
}
