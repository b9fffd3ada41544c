package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfLineHeight = 5.0
	pdfPageWidth  = 277.0 // A4 landscape minus margins
)

// PDFExporter renders datasets into a landscape table with wrapped cells.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with a title, the meta preamble and the table.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	}
	if len(data.Meta) > 0 {
		for _, line := range data.Meta {
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(40, pdfLineHeight, tr(line.Label), "", 0, "", false, 0, "")
			pdf.SetFont("Arial", "", 9)
			pdf.CellFormat(0, pdfLineHeight, tr(line.Value), "", 1, "", false, 0, "")
		}
		pdf.Ln(3)
	}

	widths := columnWidths(data)
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	writeRow(pdf, widths, data.Headers, tr, true)

	pdf.SetFont("Arial", "", 9)
	cells := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			cells[i] = row[header]
		}
		writeRow(pdf, widths, cells, tr, false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(data Dataset) []float64 {
	weights := make([]float64, len(data.Headers))
	var total float64
	for i := range weights {
		weights[i] = 1
		if i < len(data.Widths) && data.Widths[i] > 0 {
			weights[i] = data.Widths[i]
		}
		total += weights[i]
	}
	for i := range weights {
		weights[i] = pdfPageWidth * weights[i] / total
	}
	return weights
}

// writeRow draws one table row, wrapping long cells and keeping every cell of
// the row at the same height.
func writeRow(pdf *gofpdf.Fpdf, widths []float64, cells []string, tr func(string) string, fill bool) {
	lines := 1
	for i, text := range cells {
		if n := len(pdf.SplitLines([]byte(tr(text)), widths[i]-2)); n > lines {
			lines = n
		}
	}
	height := float64(lines) * pdfLineHeight

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	if pdf.GetY()+height > pageHeight-bottom {
		pdf.AddPage()
	}

	style := "D"
	if fill {
		style = "FD"
	}
	startX, y := pdf.GetXY()
	x := startX
	for i, text := range cells {
		pdf.Rect(x, y, widths[i], height, style)
		pdf.SetXY(x+1, y)
		pdf.MultiCell(widths[i]-2, pdfLineHeight, tr(text), "", "L", false)
		x += widths[i]
	}
	pdf.SetXY(startX, y+height)
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
