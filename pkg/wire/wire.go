// Package wire reads the protobuf-style wire format used by AnkiWeb's private API.
//
// The reader is deliberately lenient: it never panics on malformed input and always
// reports how far it got, so callers can keep whatever was decoded before the damage.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Type is the 3-bit wire type stored in the low bits of a tag.
type Type uint8

const (
	TypeVarint  Type = 0
	TypeFixed64 Type = 1
	TypeBytes   Type = 2
	TypeFixed32 Type = 5
)

func (t Type) String() string {
	switch t {
	case TypeVarint:
		return "varint"
	case TypeFixed64:
		return "fixed64"
	case TypeBytes:
		return "bytes"
	case TypeFixed32:
		return "fixed32"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// maxVarintLen is the longest encoding of a 64 bit varint.
const maxVarintLen = 10

var (
	// ErrTruncated means a field declared more bytes than its enclosing message has left.
	ErrTruncated = errors.New("wire: truncated field")
	// ErrUnknownType means the tag carried a wire type that has no known length.
	ErrUnknownType = errors.New("wire: unknown wire type")
)

// Record is a single decoded field.
type Record struct {
	Field uint32
	Type  Type
	// Value holds the decoded varint, or the raw little-endian value of fixed fields.
	Value uint64
	// Bytes aliases the input buffer for length-delimited fields.
	Bytes []byte
	// Offset is where the payload starts in the input buffer.
	Offset int
}

// ReadVarint decodes a base-128 varint starting at pos. Running off the end of buf is not
// an error, whatever was accumulated so far is returned along with len(buf).
func ReadVarint(buf []byte, pos int) (value uint64, next int) {
	var shift uint
	for i := 0; i < maxVarintLen && pos < len(buf); i++ {
		b := buf[pos]
		pos++
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return value, pos
}

// ReadTag decodes a field tag starting at pos.
func ReadTag(buf []byte, pos int) (field uint32, typ Type, next int) {
	tag, next := ReadVarint(buf, pos)
	return uint32(tag >> 3), Type(tag & 0x7), next
}

// Next decodes the field starting at pos, never looking at bytes at or after end.
//
// On ErrTruncated the returned position is end, since nothing after the damaged field
// can be trusted. On ErrUnknownType the position advances by one byte past the tag so a
// caller may try to resynchronize.
func Next(buf []byte, pos, end int) (Record, int, error) {
	if end > len(buf) {
		end = len(buf)
	}
	if pos >= end {
		return Record{}, end, ErrTruncated
	}

	window := buf[pos:end]
	// protowire.ConsumeTag rejects field 0, which only means an unknown field here
	tag, next := protowire.ConsumeVarint(window)
	if next < 0 {
		return Record{}, end, fmt.Errorf("%w: tag at offset %d: %v", ErrTruncated, pos, protowire.ParseError(next))
	}
	field, typ := uint32(tag>>3), Type(tag&0x7)
	rec := Record{Field: field, Type: typ, Offset: pos + next}
	payload := window[next:]

	switch typ {
	case TypeVarint:
		value, n := protowire.ConsumeVarint(payload)
		if n < 0 {
			return rec, end, fmt.Errorf("%w: varint field %d at offset %d", ErrTruncated, field, pos)
		}
		rec.Value = value
		return rec, rec.Offset + n, nil
	case TypeBytes:
		value, n := protowire.ConsumeBytes(payload)
		if n < 0 {
			length, start := ReadVarint(payload, 0)
			return rec, end, fmt.Errorf(
				"%w: field %d at offset %d declares %d bytes, %d left",
				ErrTruncated, field, pos, length, len(payload)-start,
			)
		}
		rec.Offset += n - len(value)
		rec.Bytes = value
		rec.Value = uint64(len(value))
		return rec, pos + next + n, nil
	case TypeFixed32:
		value, n := protowire.ConsumeFixed32(payload)
		if n < 0 {
			return rec, end, fmt.Errorf("%w: %s field %d at offset %d", ErrTruncated, typ, field, pos)
		}
		rec.Value = uint64(value)
		return rec, rec.Offset + n, nil
	case TypeFixed64:
		value, n := protowire.ConsumeFixed64(payload)
		if n < 0 {
			return rec, end, fmt.Errorf("%w: %s field %d at offset %d", ErrTruncated, typ, field, pos)
		}
		rec.Value = value
		return rec, rec.Offset + n, nil
	}

	// groups and reserved types have no length prefix to skip by
	after := pos + next + 1
	if after > end {
		after = end
	}
	return rec, after, fmt.Errorf("%w: %s in field %d at offset %d", ErrUnknownType, typ, field, pos)
}
