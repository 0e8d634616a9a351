package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Report domains. Operational figures are served by the inventory endpoint.
const (
	DomainClinical    = "clinical"
	DomainFinancial   = "financial"
	DomainOperational = "operational"
)

// UnknownService labels revenue whose service item has no name.
const UnknownService = "Desconhecido"

// Weekday labels indexed by PostgreSQL's day of week (0 = Sunday).
var weekdayLabels = [7]string{"Dom", "Seg", "Ter", "Qua", "Qui", "Sex", "Sáb"}

// Header is shared by every aggregation response.
type Header struct {
	Period    string    `json:"period"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

func headerFor(r Range) Header {
	return Header{Period: r.Token, StartDate: r.Start, EndDate: r.End}
}

// -- Clinical --

type DiagnosisCount struct {
	ICD10Code   string `json:"icd10_code"`
	Description string `json:"description"`
	Count       int    `json:"count"`
}

type AgeGroupCount struct {
	AgeGroup string `json:"age_group"`
	Count    int    `json:"count"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

type DoctorCount struct {
	DoctorName string `json:"doctor_name"`
	Count      int    `json:"count"`
}

// ClinicalReport summarises diagnoses and attendance for a period.
type ClinicalReport struct {
	Header
	TopDiagnoses          []DiagnosisCount `json:"top_diagnoses"`
	PatientsByAgeGroup    []AgeGroupCount  `json:"patients_by_age_group"`
	AppointmentsByStatus  []StatusCount    `json:"appointments_by_status"`
	ConsultationsByDoctor []DoctorCount    `json:"consultations_by_doctor"`
}

// -- Financial --

// Amount is one grouped revenue figure as read from the database.
type Amount struct {
	Label *string
	Total decimal.Decimal
}

// OpenBalance is the unpaid remainder of one invoice.
type OpenBalance struct {
	DueDate *time.Time
	Unpaid  decimal.Decimal
}

// ProcedureTotals carries the line totals and quantities of one service.
type ProcedureTotals struct {
	Name     *string
	Total    decimal.Decimal
	Quantity decimal.Decimal
}

type DoctorRevenue struct {
	DoctorName   string  `json:"doctor_name"`
	TotalRevenue float64 `json:"total_revenue"`
}

type ServiceRevenue struct {
	ServiceName  string  `json:"service_name"`
	TotalRevenue float64 `json:"total_revenue"`
}

type MonthRevenue struct {
	Month        string  `json:"month"`
	TotalRevenue float64 `json:"total_revenue"`
}

// ProcedureCost is the average billed amount per unit of a service. AvgCost
// is nil when no quantity was billed.
type ProcedureCost struct {
	ServiceName string   `json:"service_name"`
	AvgCost     *float64 `json:"avg_cost"`
}

// FinancialReport summarises billing for a period.
type FinancialReport struct {
	Header
	RevenueByDoctor     []DoctorRevenue    `json:"revenue_by_doctor"`
	RevenueByService    []ServiceRevenue   `json:"revenue_by_service"`
	MonthlyRevenueTrend []MonthRevenue     `json:"monthly_revenue_trend"`
	TotalRevenue        float64            `json:"total_revenue"`
	AverageInvoiceValue float64            `json:"average_invoice_value"`
	TotalInvoices       int                `json:"total_invoices"`
	ARAging             map[string]float64 `json:"ar_aging"`
	CostPerProcedure    []ProcedureCost    `json:"cost_per_procedure"`
	DenialPatterns      []interface{}      `json:"denial_patterns"`
	DegradedSections    []string           `json:"degraded_sections"`
}

// -- Operational --

type WeekdayCount struct {
	Weekday int
	Count   int
}

type LabelValue struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// OperationalReport summarises schedule utilisation for a period. The stock
// lists stay empty until an inventory module exists.
type OperationalReport struct {
	Header
	Utilization           []LabelValue  `json:"utilization"`
	AvgWaitTimeMinutes    float64       `json:"avg_wait_time_minutes"`
	NoShows               int           `json:"no_shows"`
	StockMovementsByType  []interface{} `json:"stock_movements_by_type"`
	TopProductsByMovement []interface{} `json:"top_products_by_movement"`
	LowStockProducts      []interface{} `json:"low_stock_products"`
}
