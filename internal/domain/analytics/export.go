package analytics

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/reporting"
)

// Export formats.
const (
	FormatPDF   = "pdf"
	FormatExcel = "excel"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportTitles = map[string]string{
	DomainClinical:    "Relatório Clínico",
	DomainFinancial:   "Relatório Financeiro",
	DomainOperational: "Relatório Operacional",
}

// DefaultPeriod returns the period a report uses when none is given.
func DefaultPeriod(domain string) string {
	if domain == DomainFinancial {
		return PeriodLastMonth
	}
	return PeriodLast30Days
}

// ExportFile is a rendered report ready to be downloaded.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Export renders the report of domain for period as PDF or Excel.
func (s *Service) Export(ctx context.Context, clinicID uuid.UUID, domain, period, format string) (*ExportFile, error) {
	title, ok := exportTitles[domain]
	if !ok {
		return nil, clientErrorf("unsupported export domain %q", domain)
	}
	if format != FormatPDF && format != FormatExcel {
		return nil, clientErrorf("unsupported export format %q", format)
	}
	if period == "" {
		period = DefaultPeriod(domain)
	}

	doc, err := s.document(ctx, clinicID, domain, period)
	if err != nil {
		return nil, err
	}

	if format == FormatExcel {
		body, err := reporting.RenderExcel(title, doc)
		if err != nil {
			return nil, fmt.Errorf("render excel: %w", err)
		}
		return &ExportFile{Filename: exportFilename(domain, period, "xlsx"), ContentType: mimeXLSX, Body: body}, nil
	}

	body, err := reporting.RenderPDF(title, doc, s.clinicDisplayName(ctx, clinicID))
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return &ExportFile{Filename: exportFilename(domain, period, "pdf"), ContentType: mimePDF, Body: body}, nil
}

// exportFilename names the file after the interval actually reported.
// Unrecognised tokens resolve like last_30_days and are named that way.
func exportFilename(domain, period, ext string) string {
	if !Known(period) {
		period = PeriodLast30Days
	}
	return fmt.Sprintf("%s_%s.%s", domain, period, ext)
}

func (s *Service) document(ctx context.Context, clinicID uuid.UUID, domain, period string) (reporting.Document, error) {
	switch domain {
	case DomainClinical:
		rep, _, err := s.Clinical(ctx, clinicID, period)
		if err != nil {
			return reporting.Document{}, err
		}
		return clinicalDocument(rep), nil
	case DomainFinancial:
		rep, _, err := s.Financial(ctx, clinicID, period)
		if err != nil {
			return reporting.Document{}, err
		}
		return financialDocument(rep), nil
	default:
		rep, _, err := s.Operational(ctx, clinicID, period)
		if err != nil {
			return reporting.Document{}, err
		}
		return operationalDocument(rep), nil
	}
}

func (s *Service) clinicDisplayName(ctx context.Context, clinicID uuid.UUID) string {
	name, err := s.repo.ClinicName(ctx, clinicID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("clinic_id", clinicID.String()).Msg("clinic name lookup failed")
		return s.clinicName
	}
	if name == "" {
		return s.clinicName
	}
	return name
}

func addHeader(doc *reporting.Document, h Header) {
	doc.Add("period", h.Period)
	doc.Add("start_date", h.StartDate)
	doc.Add("end_date", h.EndDate)
}

func itoa(n int) string { return strconv.Itoa(n) }

func money(v float64) string { return reporting.FormatValue(v) }

func clinicalDocument(rep *ClinicalReport) reporting.Document {
	var doc reporting.Document
	addHeader(&doc, rep.Header)

	rows := make([][]string, 0, len(rep.TopDiagnoses))
	for _, d := range rep.TopDiagnoses {
		rows = append(rows, []string{d.ICD10Code, d.Description, itoa(d.Count)})
	}
	doc.AddTable("top_diagnoses", []string{"icd10_code", "description", "count"}, rows)

	rows = make([][]string, 0, len(rep.PatientsByAgeGroup))
	for _, a := range rep.PatientsByAgeGroup {
		rows = append(rows, []string{a.AgeGroup, itoa(a.Count)})
	}
	doc.AddTable("patients_by_age_group", []string{"age_group", "count"}, rows)

	rows = make([][]string, 0, len(rep.AppointmentsByStatus))
	for _, s := range rep.AppointmentsByStatus {
		rows = append(rows, []string{s.Status, itoa(s.Count)})
	}
	doc.AddTable("appointments_by_status", []string{"status", "count"}, rows)

	rows = make([][]string, 0, len(rep.ConsultationsByDoctor))
	for _, d := range rep.ConsultationsByDoctor {
		rows = append(rows, []string{d.DoctorName, itoa(d.Count)})
	}
	doc.AddTable("consultations_by_doctor", []string{"doctor_name", "count"}, rows)
	return doc
}

func financialDocument(rep *FinancialReport) reporting.Document {
	var doc reporting.Document
	addHeader(&doc, rep.Header)
	doc.Add("total_revenue", rep.TotalRevenue)
	doc.Add("total_invoices", rep.TotalInvoices)
	doc.Add("average_invoice_value", rep.AverageInvoiceValue)

	rows := make([][]string, 0, len(rep.RevenueByDoctor))
	for _, r := range rep.RevenueByDoctor {
		rows = append(rows, []string{r.DoctorName, money(r.TotalRevenue)})
	}
	doc.AddTable("revenue_by_doctor", []string{"doctor_name", "total_revenue"}, rows)

	rows = make([][]string, 0, len(rep.RevenueByService))
	for _, r := range rep.RevenueByService {
		rows = append(rows, []string{r.ServiceName, money(r.TotalRevenue)})
	}
	doc.AddTable("revenue_by_service", []string{"service_name", "total_revenue"}, rows)

	rows = make([][]string, 0, len(rep.MonthlyRevenueTrend))
	for _, m := range rep.MonthlyRevenueTrend {
		rows = append(rows, []string{m.Month, money(m.TotalRevenue)})
	}
	doc.AddTable("monthly_revenue_trend", []string{"month", "total_revenue"}, rows)

	rows = make([][]string, 0, len(AgingBuckets))
	for _, b := range AgingBuckets {
		rows = append(rows, []string{b, money(rep.ARAging[b])})
	}
	doc.AddTable("ar_aging", []string{"bucket", "amount"}, rows)

	rows = make([][]string, 0, len(rep.CostPerProcedure))
	for _, c := range rep.CostPerProcedure {
		rows = append(rows, []string{c.ServiceName, reporting.FormatValue(c.AvgCost)})
	}
	doc.AddTable("cost_per_procedure", []string{"service_name", "avg_cost"}, rows)
	return doc
}

func operationalDocument(rep *OperationalReport) reporting.Document {
	var doc reporting.Document
	addHeader(&doc, rep.Header)
	doc.Add("avg_wait_time_minutes", rep.AvgWaitTimeMinutes)
	doc.Add("no_shows", rep.NoShows)

	rows := make([][]string, 0, len(rep.Utilization))
	for _, u := range rep.Utilization {
		rows = append(rows, []string{u.Label, itoa(u.Value)})
	}
	doc.AddTable("utilization", []string{"label", "value"}, rows)
	return doc
}

// CustomExport is a custom report result posted back for export.
type CustomExport struct {
	Title   string                   `json:"title"`
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

// ExportCustomExcel renders a custom report result as a spreadsheet.
func ExportCustomExcel(in CustomExport) (*ExportFile, error) {
	if len(in.Columns) == 0 {
		return nil, clientErrorf("columns are required")
	}
	title := in.Title
	if title == "" {
		title = "Custom Report"
	}

	rows := make([][]string, 0, len(in.Rows))
	for _, r := range in.Rows {
		cells := make([]string, len(in.Columns))
		for i, col := range in.Columns {
			cells[i] = customCell(r[col])
		}
		rows = append(rows, cells)
	}

	var doc reporting.Document
	doc.Add("rows", len(in.Rows))
	doc.AddTable(title, in.Columns, rows)

	body, err := reporting.RenderExcel(title, doc)
	if err != nil {
		return nil, fmt.Errorf("render excel: %w", err)
	}
	return &ExportFile{Filename: "custom_report.xlsx", ContentType: mimeXLSX, Body: body}, nil
}

// customCell renders whole numbers decoded from JSON without decimals.
func customCell(v interface{}) string {
	if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return reporting.FormatValue(v)
}
