package blob

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/lasmarois/notesbridge/internal/wire"
)

// NoteStoreProto field numbers, per §4.2. No .proto file exists for this
// schema; these are the offsets observed and documented in the spec.
const (
	fieldDocument = 2 // NoteStoreProto -> Document
	fieldNote     = 3 // Document -> Note

	fieldNoteText = 2 // Note -> text (UTF-8 string)
	fieldNoteRuns = 5 // Note -> repeated AttributeRun

	fieldRunLength     = 1  // AttributeRun -> length (code points)
	fieldRunStyle      = 2  // AttributeRun -> ParagraphStyle
	fieldRunFont       = 3  // AttributeRun -> Font (message or bare name string)
	fieldRunFontWeight = 5  // AttributeRun -> font weight (1 = bold)
	fieldRunObject     = 12 // AttributeRun -> embedded object reference

	fieldStyleType = 1 // ParagraphStyle -> style_type

	fieldFontSize = 2 // Font -> size (32-bit float)

	fieldObjectUUID = 1 // ObjectRef -> UUID
	fieldObjectUTI  = 2 // ObjectRef -> type UTI
)

// TableUTI is the uniform type identifier an embedded-object reference
// must carry to be treated as a table placeholder rather than some other
// attachment kind.
const TableUTI = "com.apple.notes.table"

// Decode turns a raw ZDATA column value into a styled document with
// unresolved table references (§4.2).
func Decode(raw []byte) (Document, error) {
	payload, err := Unwrap(raw)
	if err != nil {
		return Document{}, err
	}

	noteMsg, err := findNoteMessage(payload)
	if err != nil {
		return Document{}, err
	}
	if noteMsg == nil {
		return Document{}, nil
	}

	return decodeNote(noteMsg)
}

// findNoteMessage descends NoteStoreProto -> Document(field 2) ->
// Note(field 3), returning the Note submessage's raw bytes.
func findNoteMessage(payload []byte) ([]byte, error) {
	var docMsg []byte
	top := wire.New(payload)
	for !top.Done() {
		field, wt, err := top.ReadTag()
		if err != nil {
			return nil, err
		}
		if field == fieldDocument && wt == wire.LenDel {
			docMsg, err = top.ReadLengthDelimited()
			if err != nil {
				return nil, err
			}
			continue
		}
		if err := top.SkipField(wt); err != nil {
			return nil, err
		}
	}
	if docMsg == nil {
		return nil, nil
	}

	var noteMsg []byte
	doc := wire.New(docMsg)
	for !doc.Done() {
		field, wt, err := doc.ReadTag()
		if err != nil {
			return nil, err
		}
		if field == fieldNote && wt == wire.LenDel {
			noteMsg, err = doc.ReadLengthDelimited()
			if err != nil {
				return nil, err
			}
			continue
		}
		if err := doc.SkipField(wt); err != nil {
			return nil, err
		}
	}
	return noteMsg, nil
}

func decodeNote(noteMsg []byte) (Document, error) {
	var text string
	var wireRuns []attributeRunWire

	c := wire.New(noteMsg)
	for !c.Done() {
		field, wt, err := c.ReadTag()
		if err != nil {
			return Document{}, err
		}
		switch {
		case field == fieldNoteText && wt == wire.LenDel:
			raw, err := c.ReadLengthDelimited()
			if err != nil {
				return Document{}, err
			}
			text = string(raw)
		case field == fieldNoteRuns && wt == wire.LenDel:
			raw, err := c.ReadLengthDelimited()
			if err != nil {
				return Document{}, err
			}
			run, err := decodeRun(raw)
			if err != nil {
				return Document{}, err
			}
			wireRuns = append(wireRuns, run)
		default:
			if err := c.SkipField(wt); err != nil {
				return Document{}, err
			}
		}
	}

	doc := Document{Text: text}
	offset := 0
	for _, w := range wireRuns {
		run := Run{
			Length: w.length,
			Style:  styleTagFromWire(w),
			Bold:   w.hasFontWeight && w.fontWeight == 1,
		}
		if w.hasFontSize {
			run.FontSize = w.fontSize
			run.HasSize = true
		}
		if w.hasFontName {
			run.FontName = w.fontName
			run.HasFont = true
		}
		doc.Runs = append(doc.Runs, run)

		if w.hasObject && w.objectUTI == TableUTI {
			doc.Tables = append(doc.Tables, TableRef{
				UUID:     w.objectUUID,
				UTI:      w.objectUTI,
				Position: offset,
			})
		}
		offset += w.length
	}

	return doc, nil
}

func decodeRun(msg []byte) (attributeRunWire, error) {
	var w attributeRunWire
	c := wire.New(msg)
	for !c.Done() {
		field, wt, err := c.ReadTag()
		if err != nil {
			return w, err
		}
		switch {
		case field == fieldRunLength && wt == wire.Varint:
			v, err := c.ReadVarint()
			if err != nil {
				return w, err
			}
			w.length = int(v)
		case field == fieldRunStyle && wt == wire.LenDel:
			raw, err := c.ReadLengthDelimited()
			if err != nil {
				return w, err
			}
			hasStyle, styleType, err := decodeParagraphStyle(raw)
			if err != nil {
				return w, err
			}
			w.hasStyleType = hasStyle
			w.styleType = styleType
		case field == fieldRunFont && wt == wire.LenDel:
			raw, err := c.ReadLengthDelimited()
			if err != nil {
				return w, err
			}
			decodeFont(raw, &w)
		case field == fieldRunFontWeight && wt == wire.Varint:
			v, err := c.ReadVarint()
			if err != nil {
				return w, err
			}
			w.hasFontWeight = true
			w.fontWeight = int64(v)
		case field == fieldRunObject && wt == wire.LenDel:
			raw, err := c.ReadLengthDelimited()
			if err != nil {
				return w, err
			}
			uuid, uti, err := decodeObjectRef(raw)
			if err != nil {
				return w, err
			}
			w.hasObject = true
			w.objectUUID = uuid
			w.objectUTI = uti
		default:
			if err := c.SkipField(wt); err != nil {
				return w, err
			}
		}
	}
	return w, nil
}

// decodeParagraphStyle reports whether field 1 (style_type) was present
// at all — its absence is the Body sentinel, per §3's critical
// absent-vs-zero distinction.
func decodeParagraphStyle(msg []byte) (hasStyleType bool, styleType int64, err error) {
	c := wire.New(msg)
	for !c.Done() {
		field, wt, err := c.ReadTag()
		if err != nil {
			return false, 0, err
		}
		if field == fieldStyleType && wt == wire.Varint {
			v, err := c.ReadVarint()
			if err != nil {
				return false, 0, err
			}
			hasStyleType = true
			styleType = int64(v)
			continue
		}
		if err := c.SkipField(wt); err != nil {
			return false, 0, err
		}
	}
	return hasStyleType, styleType, nil
}

// decodeFont handles both shapes §4.2 Step 3 describes: a nested message
// carrying a 32-bit float size at field 2, or a bare UTF-8 string naming
// the font (recognised because it starts with a newline byte or contains
// a hyphen).
func decodeFont(raw []byte, w *attributeRunWire) {
	if looksLikeFontName(raw) {
		w.hasFontName = true
		w.fontName = strings.TrimPrefix(string(raw), "\n")
		return
	}

	c := wire.New(raw)
	for !c.Done() {
		field, wt, err := c.ReadTag()
		if err != nil {
			return
		}
		if field == fieldFontSize && wt == wire.Bit32 {
			bits, err := c.Read32()
			if err != nil {
				return
			}
			w.hasFontSize = true
			w.fontSize = math.Float32frombits(bits)
			continue
		}
		if err := c.SkipField(wt); err != nil {
			return
		}
	}
}

func looksLikeFontName(raw []byte) bool {
	if len(raw) == 0 {
		return false
	}
	if raw[0] == '\n' {
		return true
	}
	if !utf8.Valid(raw) {
		return false
	}
	return strings.Contains(string(raw), "-")
}

func decodeObjectRef(raw []byte) (uuid, uti string, err error) {
	c := wire.New(raw)
	for !c.Done() {
		field, wt, err := c.ReadTag()
		if err != nil {
			return "", "", err
		}
		switch {
		case field == fieldObjectUUID && wt == wire.LenDel:
			b, err := c.ReadLengthDelimited()
			if err != nil {
				return "", "", err
			}
			uuid = string(b)
		case field == fieldObjectUTI && wt == wire.LenDel:
			b, err := c.ReadLengthDelimited()
			if err != nil {
				return "", "", err
			}
			uti = string(b)
		default:
			if err := c.SkipField(wt); err != nil {
				return "", "", err
			}
		}
	}
	return uuid, uti, nil
}
