package blob

// StyleTag is the closed set of paragraph styles a run can carry (§3).
type StyleTag int

const (
	// Body has no wire representation: the style_type field is absent.
	// It is given the sentinel value -1 here so it can never collide with
	// Title's genuine on-wire value of 0 (see §3).
	Body            StyleTag = -1
	Title           StyleTag = 0
	Heading         StyleTag = 1
	Subheading      StyleTag = 2
	Subheading2     StyleTag = 3
	Monospaced      StyleTag = 4
	BulletList      StyleTag = 100
	NumberedList    StyleTag = 101
	Checkbox        StyleTag = 102
	CheckboxChecked StyleTag = 103
)

// hasStyleType distinguishes Body (field absent) from an explicit
// style_type=0 (Title) — the single-bit distinction §3 calls out as
// critical to get right.
type attributeRunWire struct {
	length        int
	hasStyleType  bool
	styleType     int64
	fontWeight    int64
	hasFontWeight bool
	fontSize      float32
	hasFontSize   bool
	fontName      string
	hasFontName   bool
	objectUUID    string
	objectUTI     string
	hasObject     bool
}

// Run is a decoded attribute run: length in code points plus the style
// it applies to that span.
type Run struct {
	Length     int
	Style      StyleTag
	Bold       bool
	FontSize   float32
	HasSize    bool
	FontName   string
	HasFont    bool
}

// TableRef is an unresolved table reference: a placeholder position (in
// code points from the start of Text) paired with the UUID of the
// mergeable-data blob it points at.
type TableRef struct {
	UUID     string
	UTI      string
	Position int
}

// Document is the result of decoding a ZDATA blob: text plus its runs and
// any embedded table references, not yet resolved into tables.
type Document struct {
	Text   string
	Runs   []Run
	Tables []TableRef
}

func styleTagFromWire(w attributeRunWire) StyleTag {
	if !w.hasStyleType {
		return Body
	}
	return StyleTag(w.styleType)
}

// RunSlice pairs a Run with the UTF-8 byte slice of Text it covers,
// located by summing code-point lengths. Exposed for the debug dump
// (§4.2 end) used by property tests.
type RunSlice struct {
	Run  Run
	Text string
}

// DebugDump pairs every run in doc with the UTF-8 slice of doc.Text it
// covers, walking code points (not bytes) to find each boundary.
func DebugDump(doc Document) []RunSlice {
	runes := []rune(doc.Text)
	out := make([]RunSlice, 0, len(doc.Runs))
	cursor := 0
	for _, r := range doc.Runs {
		end := cursor + r.Length
		if end > len(runes) {
			end = len(runes)
		}
		if cursor > len(runes) {
			cursor = len(runes)
		}
		out = append(out, RunSlice{Run: r, Text: string(runes[cursor:end])})
		cursor = end
	}
	return out
}
