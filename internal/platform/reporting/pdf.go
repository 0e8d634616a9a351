package reporting

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

const (
	maxLineRunes = 110
	pdfMargin    = 20.0
	pdfSlogan    = "CliniCore - Cuidado inteligente"
)

// RenderPDF renders doc on A4 pages under a header with the clinic name,
// the report title and the product slogan.
func RenderPDF(title string, doc Document, clinicName string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(title, true)
	pdf.SetCreator("CliniCore", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 8, tr(clinicName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 7, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, 6, tr(pdfSlogan), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pageWidth, _ := pdf.GetPageSize()
	usable := pageWidth - 2*pdfMargin

	for _, entry := range doc.Entries {
		if entry.Table == nil {
			pdf.SetFont("Helvetica", "", 10)
			line := truncateRunes(fmt.Sprintf("%s: %s", entry.Label, entry.Value), maxLineRunes)
			pdf.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
			continue
		}
		writeTable(pdf, tr, entry.Label, entry.Table, usable)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(pdf *fpdf.Fpdf, tr func(string) string, label string, t *Table, usable float64) {
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, tr(label), "", 1, "L", false, 0, "")
	if len(t.Columns) == 0 {
		return
	}

	width := usable / float64(len(t.Columns))
	// Roughly two millimetres per character at 9pt.
	maxRunes := int(width / 2)
	if maxRunes < 4 {
		maxRunes = 4
	}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range t.Columns {
		pdf.CellFormat(width, 6, tr(truncateRunes(col, maxRunes)), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	if len(t.Rows) == 0 {
		pdf.CellFormat(usable, 6, tr("sem dados"), "1", 1, "C", false, 0, "")
		return
	}
	for _, row := range t.Rows {
		for i := range t.Columns {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			pdf.CellFormat(width, 6, tr(truncateRunes(cell, maxRunes)), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}
