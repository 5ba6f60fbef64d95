package blob

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"math"

	"github.com/lasmarois/notesbridge/internal/wire"
)

// wireEncoder builds raw protobuf bytes for test fixtures. It exists only
// because no .proto/codegen is available for this undocumented schema —
// the decoder under test and this encoder are two independent
// hand-written readings of the same wire format, which is what makes the
// round-trip tests meaningful.
type wireEncoder struct {
	buf bytes.Buffer
}

func (e *wireEncoder) tag(field int, wt wire.Type) {
	e.varint(uint64(field)<<3 | uint64(wt))
}

func (e *wireEncoder) varint(v uint64) {
	for v >= 0x80 {
		e.buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	e.buf.WriteByte(byte(v))
}

func (e *wireEncoder) lenDelimited(field int, payload []byte) {
	e.tag(field, wire.LenDel)
	e.varint(uint64(len(payload)))
	e.buf.Write(payload)
}

func (e *wireEncoder) varintField(field int, v uint64) {
	e.tag(field, wire.Varint)
	e.varint(v)
}

func (e *wireEncoder) fixed32Field(field int, v float32) {
	e.tag(field, wire.Bit32)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	e.buf.Write(b[:])
}

func (e *wireEncoder) bytes() []byte { return e.buf.Bytes() }

// encodeParagraphStyle builds a ParagraphStyle submessage. When
// hasStyleType is false the field is omitted entirely — the Body
// encoding discipline from §3.
func encodeParagraphStyle(hasStyleType bool, styleType int64) []byte {
	var e wireEncoder
	if hasStyleType {
		e.varintField(fieldStyleType, uint64(styleType))
	}
	return e.bytes()
}

type testRun struct {
	length       int
	hasStyle     bool
	styleType    int64
	tableUUID    string
	tableUTI     string
}

func encodeRun(r testRun) []byte {
	var e wireEncoder
	e.varintField(fieldRunLength, uint64(r.length))
	if r.hasStyle {
		e.lenDelimited(fieldRunStyle, encodeParagraphStyle(true, r.styleType))
	} else {
		// Body: a present-but-empty style submessage is equivalent to an
		// absent one for decoding purposes (field 1 absent either way);
		// many real records omit the field 2 submessage outright.
	}
	if r.tableUUID != "" {
		var obj wireEncoder
		obj.lenDelimited(fieldObjectUUID, []byte(r.tableUUID))
		obj.lenDelimited(fieldObjectUTI, []byte(r.tableUTI))
		e.lenDelimited(fieldRunObject, obj.bytes())
	}
	return e.bytes()
}

func encodeNote(text string, runs []testRun) []byte {
	var note wireEncoder
	note.lenDelimited(fieldNoteText, []byte(text))
	for _, r := range runs {
		note.lenDelimited(fieldNoteRuns, encodeRun(r))
	}

	var doc wireEncoder
	doc.lenDelimited(fieldNote, note.bytes())

	var top wireEncoder
	top.lenDelimited(fieldDocument, doc.bytes())
	return top.bytes()
}

func gzipBytes(raw []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	w.Write(raw)
	w.Close()
	return buf.Bytes()
}
