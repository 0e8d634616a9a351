package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository runs the read-only aggregation queries. Every method is scoped
// to one clinic; intervals are inclusive on both ends.
type Repository interface {
	TopDiagnoses(ctx context.Context, clinicID uuid.UUID, r Range, limit int) ([]DiagnosisCount, error)
	// PatientBirthDates returns one entry per distinct patient with an
	// appointment in r. Entries are nil when the birth date is unknown.
	PatientBirthDates(ctx context.Context, clinicID uuid.UUID, r Range) ([]*time.Time, error)
	AppointmentsByStatus(ctx context.Context, clinicID uuid.UUID, r Range) ([]StatusCount, error)
	ConsultationsByDoctor(ctx context.Context, clinicID uuid.UUID, r Range) ([]DoctorCount, error)

	RevenueByDoctor(ctx context.Context, clinicID uuid.UUID, r Range) ([]Amount, error)
	RevenueByService(ctx context.Context, clinicID uuid.UUID, r Range, limit int) ([]Amount, error)
	MonthlyRevenue(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]Amount, error)
	InvoiceTotals(ctx context.Context, clinicID uuid.UUID, r Range) (int, decimal.Decimal, error)
	OpenBalances(ctx context.Context, clinicID uuid.UUID, issuedBy time.Time) ([]OpenBalance, error)
	CostPerProcedure(ctx context.Context, clinicID uuid.UUID, r Range, limit int) ([]ProcedureTotals, error)

	UtilizationByWeekday(ctx context.Context, clinicID uuid.UUID, r Range) ([]WeekdayCount, error)
	AverageWaitMinutes(ctx context.Context, clinicID uuid.UUID, r Range) (float64, error)
	NoShows(ctx context.Context, clinicID uuid.UUID, r Range) (int, error)

	RunCustom(ctx context.Context, q CustomQuery, clinicID uuid.UUID, r Range) ([]Row, error)
	ClinicName(ctx context.Context, clinicID uuid.UUID) (string, error)
}
