// Package wire implements a small protobuf wire-format cursor used by
// both the blob decoder and the CRDT table parser. Neither consumer has
// a .proto schema to generate against — NoteStoreProto and the
// mergeable-data op stream are both undocumented — so this package
// exposes exactly the primitives §9 calls for: read_tag, read_varint,
// read_length_delimited, skip_field(wire_type).
package wire

import "github.com/lasmarois/notesbridge/internal/noteserr"

// Type is one of the four protobuf wire types.
type Type int

const (
	Varint  Type = 0
	Bit64   Type = 1
	LenDel  Type = 2
	Bit32   Type = 5
)

// Cursor walks a byte slice as a protobuf message.
type Cursor struct {
	buf []byte
	pos int
}

// New wraps buf for reading from its start.
func New(buf []byte) *Cursor { return &Cursor{buf: buf} }

// Done reports whether the cursor has consumed the whole buffer.
func (c *Cursor) Done() bool { return c.pos >= len(c.buf) }

// ReadVarint decodes a base-128 varint. Limited to 10 bytes (64 bits) so
// a corrupt stream of continuation bytes can't spin forever.
func (c *Cursor) ReadVarint() (uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < 10; i++ {
		if c.pos >= len(c.buf) {
			return 0, noteserr.DecodeFailed("varint", errUnexpectedEOF)
		}
		b := c.buf[c.pos]
		c.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, noteserr.DecodeFailed("varint too long", nil)
}

// ReadTag reads a (field number, wire type) pair.
func (c *Cursor) ReadTag() (fieldNum int, wt Type, err error) {
	v, err := c.ReadVarint()
	if err != nil {
		return 0, 0, err
	}
	return int(v >> 3), Type(v & 0x7), nil
}

// ReadLengthDelimited reads a varint length prefix followed by that many
// bytes, returning a subslice of the underlying buffer (no copy).
func (c *Cursor) ReadLengthDelimited() ([]byte, error) {
	n, err := c.ReadVarint()
	if err != nil {
		return nil, err
	}
	end := c.pos + int(n)
	if n > uint64(len(c.buf)) || end < c.pos || end > len(c.buf) {
		return nil, noteserr.DecodeFailed("length overrun", nil)
	}
	out := c.buf[c.pos:end]
	c.pos = end
	return out, nil
}

// Read64 reads a fixed 8-byte little-endian value.
func (c *Cursor) Read64() (uint64, error) {
	if c.pos+8 > len(c.buf) {
		return 0, noteserr.DecodeFailed("64-bit field", errUnexpectedEOF)
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(c.buf[c.pos+i]) << (8 * i)
	}
	c.pos += 8
	return v, nil
}

// Read32 reads a fixed 4-byte little-endian value.
func (c *Cursor) Read32() (uint32, error) {
	if c.pos+4 > len(c.buf) {
		return 0, noteserr.DecodeFailed("32-bit field", errUnexpectedEOF)
	}
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(c.buf[c.pos+i]) << (8 * i)
	}
	c.pos += 4
	return v, nil
}

// SkipField advances past a field's value given its wire type without
// interpreting it. An unrecognized wire type is a hard decode failure
// per §4.2.
func (c *Cursor) SkipField(wt Type) error {
	switch wt {
	case Varint:
		_, err := c.ReadVarint()
		return err
	case Bit64:
		_, err := c.Read64()
		return err
	case LenDel:
		_, err := c.ReadLengthDelimited()
		return err
	case Bit32:
		_, err := c.Read32()
		return err
	default:
		return noteserr.DecodeFailed("wire type", nil)
	}
}

var errUnexpectedEOF = &unexpectedEOFError{}

type unexpectedEOFError struct{}

func (e *unexpectedEOFError) Error() string { return "unexpected end of buffer" }
