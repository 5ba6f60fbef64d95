// Package table reconstructs the row-major tables embedded in a note's
// mergeable-data blob. The blob carries a stream of CRDT operations with
// no documented schema; this package recovers cell text heuristically
// rather than replaying the op graph (see §9 and DESIGN.md).
package table

import (
	"strings"

	"github.com/lasmarois/notesbridge/internal/blob"
	"github.com/lasmarois/notesbridge/internal/wire"
)

const (
	maxDepth        = 15
	maxCollected    = 500
	cellStringField = 10 // descendant field carrying a cell-text submessage
	cellTextField   = 2  // that submessage's field 2 is the string itself
)

// objectReplacementChar is the placeholder character (U+FFFC) Notes
// embeds at inline-attachment sites; cell text strips it.
const objectReplacementChar = '￼'

// Table is the reconstructed row-major matrix of cell text.
type Table struct {
	Rows [][]string
}

// Parse reconstructs a table from a mergeable-data blob. A malformed or
// empty blob yields an empty Table, not an error (§4.3).
func Parse(raw []byte) Table {
	if len(raw) == 0 {
		return Table{}
	}

	payload, err := blob.Unwrap(raw)
	if err != nil {
		payload = raw
	}

	var cells []string
	collectCellStrings(payload, 0, &cells)
	if len(cells) == 0 {
		return Table{}
	}

	width := inferColumnWidth(len(cells))
	return Table{Rows: chunk(cells, width)}
}

func collectCellStrings(payload []byte, depth int, out *[]string) {
	if depth >= maxDepth || len(*out) >= maxCollected {
		return
	}

	c := wire.New(payload)
	for !c.Done() && len(*out) < maxCollected {
		field, wt, err := c.ReadTag()
		if err != nil {
			return
		}
		if wt != wire.LenDel {
			if err := c.SkipField(wt); err != nil {
				return
			}
			continue
		}

		sub, err := c.ReadLengthDelimited()
		if err != nil {
			return
		}

		if field == cellStringField {
			if s, ok := extractCellText(sub); ok {
				*out = append(*out, s)
			}
		}
		// Recurse into every length-delimited field, not just field 10:
		// cell strings live at varying nesting depths inside the CRDT op
		// stream and the enclosing op's field number isn't known in
		// advance.
		collectCellStrings(sub, depth+1, out)
	}
}

// extractCellText reads field 2 of a field-10 submessage as the cell
// text, stripping object-replacement placeholders and trimming
// whitespace. Returns ok=false for empty results so callers can drop
// them (§4.3: "non-empty results in order").
func extractCellText(sub []byte) (string, bool) {
	c := wire.New(sub)
	for !c.Done() {
		field, wt, err := c.ReadTag()
		if err != nil {
			return "", false
		}
		if field == cellTextField && wt == wire.LenDel {
			raw, err := c.ReadLengthDelimited()
			if err != nil {
				return "", false
			}
			cleaned := strings.TrimSpace(stripPlaceholders(string(raw)))
			if cleaned == "" {
				return "", false
			}
			return cleaned, true
		}
		if err := c.SkipField(wt); err != nil {
			return "", false
		}
	}
	return "", false
}

func stripPlaceholders(s string) string {
	return strings.Map(func(r rune) rune {
		if r == objectReplacementChar {
			return -1
		}
		return r
	}, s)
}

// inferColumnWidth picks the smallest of {2,3,4} that evenly divides n,
// preferring 2 over 3 over 4 per §4.3. Falls back to n itself (a single
// row) if none divide evenly.
func inferColumnWidth(n int) int {
	for _, w := range []int{2, 3, 4} {
		if n%w == 0 {
			return w
		}
	}
	return n
}

func chunk(cells []string, width int) [][]string {
	if width <= 0 {
		return [][]string{cells}
	}
	var rows [][]string
	for i := 0; i < len(cells); i += width {
		end := i + width
		if end > len(cells) {
			end = len(cells)
		}
		rows = append(rows, cells[i:end])
	}
	return rows
}
