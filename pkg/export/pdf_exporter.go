package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageMargin   = 10.0
	dateColWidth = 24.0
	dayColWidth  = 22.0
)

// PDFExporter renders datasets as a single table. Wide tables switch to landscape.
type PDFExporter struct {
	landscapeFrom int
}

func NewPDFExporter() *PDFExporter {
	return &PDFExporter{landscapeFrom: 7}
}

func (e *PDFExporter) ContentType() string { return "application/pdf" }

func (e *PDFExporter) Extension() string { return "pdf" }

// Render lays out the title, the table and any notes below it.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}

	orientation := "P"
	if len(data.Headers) >= e.landscapeFrom {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(pageMargin, 15, pageMargin)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, data.Title, "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	widths := columnWidths(pdf, len(data.Headers))
	fontSize := 9.0
	if len(data.Headers) > 10 {
		fontSize = 7
	}

	writeRow := func(cells []string, style string, fill bool) {
		pdf.SetFont("Arial", style, fontSize)
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 7, fit(pdf, cell, widths[i]), "1", 0, "C", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.SetFillColor(230, 230, 230)
	writeRow(data.Headers, "B", true)
	for _, row := range data.Rows {
		writeRow(row, "", false)
	}

	if len(data.Notes) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 9)
		for _, note := range data.Notes {
			pdf.MultiCell(0, 5, note, "", "L", false)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths gives Date and Day fixed widths and shares the rest equally.
func columnWidths(pdf *gofpdf.Fpdf, n int) []float64 {
	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 2*pageMargin
	widths := make([]float64, n)
	if n <= 2 {
		for i := range widths {
			widths[i] = usable / float64(n)
		}
		return widths
	}
	widths[0], widths[1] = dateColWidth, dayColWidth
	rest := (usable - dateColWidth - dayColWidth) / float64(n-2)
	for i := 2; i < n; i++ {
		widths[i] = rest
	}
	return widths
}

func fit(pdf *gofpdf.Fpdf, text string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(text) <= limit {
		return text
	}
	runes := []rune(text)
	for len(runes) > 1 && pdf.GetStringWidth(string(runes)+"..") > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + ".."
}
