package artifact

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"
)

var (
	headingLine  = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	bulletLine   = regexp.MustCompile(`^(\s*)([-*+]|\d+[.)])\s+(.*)$`)
	tableDivider = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)
	inlineMarks  = regexp.MustCompile("\\*\\*|__|`")
)

// PDFRenderer lays a markdown document out as A4 pages. It understands
// headings, bullet and numbered lists, pipe tables and plain paragraphs,
// which covers what the planning stages produce.
type PDFRenderer struct {
	fontFamily string
	fontSize   float64
}

// NewPDFRenderer returns a renderer using Helvetica 11pt.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{fontFamily: "Helvetica", fontSize: 11}
}

// Ext implements SecondaryRenderer.
func (r *PDFRenderer) Ext() string { return ".pdf" }

// Render implements SecondaryRenderer.
func (r *PDFRenderer) Render(markdown string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	lineHeight := r.fontSize * 0.5

	inTable := false
	for _, raw := range strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n") {
		line := strings.TrimRight(raw, " \t")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "|") {
			if tableDivider.MatchString(trimmed) {
				continue
			}
			style := ""
			if !inTable {
				style = "B"
				inTable = true
			}
			pdf.SetFont(r.fontFamily, style, r.fontSize-1)
			pdf.MultiCell(0, lineHeight, tr(plain(strings.Join(splitRow(trimmed), "   |   "))), "B", "L", false)
			continue
		}
		inTable = false

		switch {
		case trimmed == "":
			pdf.Ln(lineHeight * 0.6)
		case headingLine.MatchString(trimmed):
			m := headingLine.FindStringSubmatch(trimmed)
			size := r.fontSize + float64(8-len(m[1])*2)
			if size < r.fontSize {
				size = r.fontSize
			}
			pdf.Ln(lineHeight * 0.4)
			pdf.SetFont(r.fontFamily, "B", size)
			pdf.MultiCell(0, size*0.5, tr(plain(m[2])), "", "L", false)
			pdf.Ln(lineHeight * 0.2)
		case bulletLine.MatchString(line):
			m := bulletLine.FindStringSubmatch(line)
			indent := float64(len(m[1])/2+1) * 5
			marker := m[2]
			if !strings.ContainsAny(marker, "0123456789") {
				marker = "-"
			}
			pdf.SetFont(r.fontFamily, "", r.fontSize)
			left, _, _, _ := pdf.GetMargins()
			pdf.SetX(left + indent)
			pdf.MultiCell(0, lineHeight, tr(marker+" "+plain(m[3])), "", "L", false)
		default:
			pdf.SetFont(r.fontFamily, "", r.fontSize)
			pdf.MultiCell(0, lineHeight, tr(plain(trimmed)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("artifact: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func splitRow(row string) []string {
	row = strings.TrimSuffix(strings.TrimPrefix(row, "|"), "|")
	cells := strings.Split(row, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

func plain(s string) string {
	return inlineMarks.ReplaceAllString(s, "")
}
