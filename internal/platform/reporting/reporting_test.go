package reporting

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func sampleDocument() Document {
	var doc Document
	doc.Add("period", "last_month")
	doc.Add("total_revenue", 1234.5)
	doc.Add("average_invoice_value", (*float64)(nil))
	doc.AddTable("revenue_by_service", []string{"service", "revenue"}, [][]string{
		{"Consulta", "800.00"},
		{"Desconhecido", "434.50"},
	})
	doc.AddTable("denial_patterns", []string{"reason", "count"}, nil)
	return doc
}

func TestFormatValue(t *testing.T) {
	v := 2.5
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "-"},
		{"x", "x"},
		{12.345, "12.35"},
		{&v, "2.50"},
		{(*float64)(nil), "-"},
		{int64(7), "7"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSheetName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Financial", "Financial"},
		{"", "Report"},
		{"Relatório financeiro: último mês/2024", "Relatório financeiro  último mê"},
		{"A very long report title that exceeds limit", "A very long report title that e"},
	}
	for _, tt := range tests {
		got := sheetName(tt.in)
		if got != tt.want {
			t.Errorf("sheetName(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if len([]rune(got)) > maxSheetName {
			t.Errorf("sheetName(%q) longer than %d", tt.in, maxSheetName)
		}
	}
}

func TestRenderPDF(t *testing.T) {
	out, err := RenderPDF("Relatório Clínico", sampleDocument(), "Clínica São José")
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Errorf("expected PDF header, got %q", out[:8])
	}
}

func TestRenderPDF_PaginatesLongDocuments(t *testing.T) {
	var doc Document
	for i := 0; i < 200; i++ {
		doc.Add("line", strings.Repeat("x", 200))
	}
	out, err := RenderPDF("Long", doc, "Clinic")
	if err != nil {
		t.Fatalf("RenderPDF: %v", err)
	}
	pages := bytes.Count(out, []byte("/Type /Page")) - bytes.Count(out, []byte("/Type /Pages"))
	if pages < 2 {
		t.Error("expected more than one page")
	}
}

func TestRenderExcel(t *testing.T) {
	out, err := RenderExcel("Financial: last_month", sampleDocument())
	if err != nil {
		t.Fatalf("RenderExcel: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 1 || sheets[0] != "Financial  last_month" {
		t.Fatalf("unexpected sheets %v", sheets)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if rows[0][0] != "period" || rows[0][1] != "last_month" {
		t.Errorf("unexpected first row %v", rows[0])
	}
	if rows[1][1] != "1234.50" {
		t.Errorf("expected formatted revenue, got %v", rows[1])
	}

	var found bool
	for _, r := range rows {
		if len(r) == 2 && r[0] == "Desconhecido" && r[1] == "434.50" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected service table row in %v", rows)
	}
}
