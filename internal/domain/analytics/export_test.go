package analytics

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestExport_Filenames(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.clinicName = "Clínica Boa Vista"

	tests := []struct {
		domain, period, format string
		wantName, wantType     string
	}{
		{"clinical", "last_7_days", "pdf", "clinical_last_7_days.pdf", mimePDF},
		{"financial", "", "excel", "financial_last_month.xlsx", mimeXLSX},
		{"operational", "last_year", "excel", "operational_last_year.xlsx", mimeXLSX},
		{"operational", "last_30_days", "pdf", "operational_last_30_days.pdf", mimePDF},
		{"clinical", "x.pdf\r\nSet-Cookie: a=b", "pdf", "clinical_last_30_days.pdf", mimePDF},
	}
	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			f, err := svc.Export(context.Background(), testClinic, tt.domain, tt.period, tt.format)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Filename != tt.wantName {
				t.Errorf("expected %s, got %s", tt.wantName, f.Filename)
			}
			if f.ContentType != tt.wantType {
				t.Errorf("expected %s, got %s", tt.wantType, f.ContentType)
			}
			if len(f.Body) == 0 {
				t.Error("expected a body")
			}
		})
	}
}

func TestExport_PDFFallsBackToDefaultClinicName(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.errs["ClinicName"] = errors.New("no rows in result set")
	f, err := svc.Export(context.Background(), testClinic, "clinical", "", "pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.HasPrefix(f.Body, []byte("%PDF")) {
		t.Error("expected a PDF document")
	}
}

func TestExport_RejectsUnknownDomainAndFormat(t *testing.T) {
	svc, repo, _ := newTestService()
	if _, err := svc.Export(context.Background(), testClinic, "inventory", "", "pdf"); !IsClientError(err) {
		t.Errorf("expected client error for domain, got %v", err)
	}
	if _, err := svc.Export(context.Background(), testClinic, "clinical", "", "csv"); !IsClientError(err) {
		t.Errorf("expected client error for format, got %v", err)
	}
	if repo.total() != 0 {
		t.Errorf("expected no queries, got %d", repo.total())
	}
}

func TestFinancialDocument_IncludesAllSections(t *testing.T) {
	avg := 150.0
	rep := &FinancialReport{
		ARAging:          emptyAging(),
		CostPerProcedure: []ProcedureCost{{ServiceName: "Consulta", AvgCost: &avg}, {ServiceName: "Retorno"}},
	}
	doc := financialDocument(rep)
	labels := map[string]bool{}
	for _, e := range doc.Entries {
		labels[e.Label] = true
	}
	for _, want := range []string{"period", "total_revenue", "revenue_by_doctor", "revenue_by_service", "monthly_revenue_trend", "ar_aging", "cost_per_procedure"} {
		if !labels[want] {
			t.Errorf("missing entry %s", want)
		}
	}
	last := doc.Entries[len(doc.Entries)-1].Table
	if last.Rows[0][1] != "150.00" || last.Rows[1][1] != "-" {
		t.Errorf("unexpected cost cells: %v", last.Rows)
	}
}

func TestExportCustomExcel(t *testing.T) {
	f, err := ExportCustomExcel(CustomExport{
		Columns: []string{"status", "count"},
		Rows:    []map[string]interface{}{{"status": "completed", "count": 3.0}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Filename != "custom_report.xlsx" {
		t.Errorf("expected custom_report.xlsx, got %s", f.Filename)
	}
	if !bytes.HasPrefix(f.Body, []byte("PK")) {
		t.Error("expected an xlsx (zip) payload")
	}
	if _, err := ExportCustomExcel(CustomExport{}); !IsClientError(err) {
		t.Errorf("expected client error without columns, got %v", err)
	}
	if got := customCell(3.0); got != "3" {
		t.Errorf("expected 3, got %s", got)
	}
	if got := customCell(2.5); got != "2.50" {
		t.Errorf("expected 2.50, got %s", got)
	}
}
