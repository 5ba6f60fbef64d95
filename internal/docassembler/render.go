package docassembler

import (
	"html"
	"strings"

	"github.com/lasmarois/notesbridge/internal/blob"
)

// objectReplacementChar marks an inline table's position in the run
// text; RenderHTML increments its table cursor on every occurrence.
const objectReplacementChar = '￼'

// segment is either a run of plain text or a reference to the next
// resolved table in document order, matching a single U+FFFC.
type segment struct {
	text     string
	isTable  bool
	tableIdx int
}

type paragraph struct {
	style    blob.StyleTag
	segments []segment
}

// RenderHTML renders a document to HTML for external renderers (§4.4,
// "optional capability"). Runs are walked in code-point space; each
// newline closes the current paragraph, carrying the style of the run
// active when the paragraph started. Every U+FFFC advances a cursor into
// d.Tables and is rendered as an inline <table>. Consecutive Monospaced
// paragraphs are grouped into a single <pre> block.
func RenderHTML(d Document) string {
	paragraphs := splitParagraphs(d.Text, d.Runs)

	var b strings.Builder
	i := 0
	for i < len(paragraphs) {
		p := paragraphs[i]
		if p.style == blob.Monospaced {
			j := i
			var lines []string
			for j < len(paragraphs) && paragraphs[j].style == blob.Monospaced {
				lines = append(lines, renderSegments(d, paragraphs[j].segments))
				j++
			}
			b.WriteString("<pre>")
			b.WriteString(strings.Join(lines, "\n"))
			b.WriteString("</pre>\n")
			i = j
			continue
		}

		renderParagraph(&b, d, p)
		i++
	}

	return b.String()
}

func renderParagraph(b *strings.Builder, d Document, p paragraph) {
	content := renderSegments(d, p.segments)
	switch p.style {
	case blob.Title:
		b.WriteString("<h1>" + content + "</h1>\n")
	case blob.Heading:
		b.WriteString("<h2>" + content + "</h2>\n")
	case blob.Subheading:
		b.WriteString("<h3>" + content + "</h3>\n")
	case blob.Subheading2:
		b.WriteString("<h4>" + content + "</h4>\n")
	case blob.BulletList:
		b.WriteString("<ul><li>" + content + "</li></ul>\n")
	case blob.NumberedList:
		b.WriteString("<ol><li>" + content + "</li></ol>\n")
	case blob.Checkbox:
		b.WriteString(`<p><input type="checkbox" disabled> ` + content + "</p>\n")
	case blob.CheckboxChecked:
		b.WriteString(`<p><input type="checkbox" checked disabled> ` + content + "</p>\n")
	default: // Body
		b.WriteString("<p>" + content + "</p>\n")
	}
}

func renderSegments(d Document, segs []segment) string {
	var b strings.Builder
	for _, s := range segs {
		if !s.isTable {
			b.WriteString(html.EscapeString(s.text))
			continue
		}
		if s.tableIdx < len(d.Tables) {
			b.WriteString(renderTableRows(d.Tables[s.tableIdx].Table.Rows))
		}
	}
	return b.String()
}

func renderTableRows(rows [][]string) string {
	var b strings.Builder
	b.WriteString("<table>")
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<td>")
			b.WriteString(html.EscapeString(cell))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}

// splitParagraphs walks text in code-point space alongside runs,
// breaking a new paragraph at every newline and tagging each with the
// style of the run active at its start. U+FFFC characters are emitted
// as table-reference segments, consuming the tables array in order.
func splitParagraphs(text string, runs []blob.Run) []paragraph {
	runes := []rune(text)
	var out []paragraph

	runIdx := 0
	runRemaining := 0
	for runIdx < len(runs) && runs[runIdx].Length == 0 {
		runIdx++
	}
	if runIdx < len(runs) {
		runRemaining = runs[runIdx].Length
	}
	currentStyle := func() blob.StyleTag {
		if runIdx < len(runs) {
			return runs[runIdx].Style
		}
		return blob.Body
	}

	advance := func() {
		runRemaining--
		for runRemaining <= 0 && runIdx < len(runs) {
			runIdx++
			if runIdx < len(runs) {
				runRemaining = runs[runIdx].Length
				if runRemaining > 0 {
					break
				}
			}
		}
	}

	var textBuf []rune
	var segs []segment
	lineStyle := currentStyle()
	lineStarted := false
	tableCursor := 0

	flushText := func() {
		if len(textBuf) > 0 {
			segs = append(segs, segment{text: string(textBuf)})
			textBuf = textBuf[:0]
		}
	}
	flushLine := func() {
		flushText()
		out = append(out, paragraph{style: lineStyle, segments: segs})
		segs = nil
		lineStarted = false
	}

	for _, r := range runes {
		if !lineStarted {
			lineStyle = currentStyle()
			lineStarted = true
		}
		switch r {
		case '\n':
			flushLine()
			advance()
			continue
		case objectReplacementChar:
			flushText()
			segs = append(segs, segment{isTable: true, tableIdx: tableCursor})
			tableCursor++
		default:
			textBuf = append(textBuf, r)
		}
		advance()
	}
	if lineStarted || len(out) == 0 {
		flushLine()
	}

	return out
}
