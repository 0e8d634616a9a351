package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinicore/clinicore/internal/platform/cache"
)

const (
	topDiagnosesLimit     = 10
	revenueByServiceLimit = 15
	costPerProcedureLimit = 20
	trendLookback         = 120 * 24 * time.Hour

	sectionARAging          = "ar_aging"
	sectionCostPerProcedure = "cost_per_procedure"
)

// DefaultClinicName is used in export headers when the clinic has no name.
const DefaultClinicName = "CliniCore"

// Service computes the analytics reports and caches them per clinic and
// period.
type Service struct {
	repo       Repository
	store      cache.Store
	ttl        time.Duration
	now        func() time.Time
	clinicName string
}

func NewService(repo Repository, store cache.Store, ttl time.Duration) *Service {
	return &Service{
		repo:       repo,
		store:      store,
		ttl:        ttl,
		now:        time.Now,
		clinicName: DefaultClinicName,
	}
}

// SetClock replaces the time source used to resolve periods.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetDefaultClinicName changes the export header fallback.
func (s *Service) SetDefaultClinicName(name string) {
	if name != "" {
		s.clinicName = name
	}
}

func (s *Service) cached(ctx context.Context, domain string, clinicID uuid.UUID, rg Range, dst interface{}, build func(ctx context.Context) (interface{}, error)) ([]byte, error) {
	key := cache.Key(domain, clinicID.String(), rg.Token)
	return cache.FetchJSON(ctx, s.store, key, s.ttl, dst, func(ctx context.Context) (interface{}, error) {
		timer := prometheus.NewTimer(aggregationDuration.WithLabelValues(domain))
		defer timer.ObserveDuration()
		return build(ctx)
	})
}

// Clinical returns the clinical report together with its JSON encoding.
func (s *Service) Clinical(ctx context.Context, clinicID uuid.UUID, period string) (*ClinicalReport, []byte, error) {
	if clinicID == uuid.Nil {
		return nil, nil, ErrNoClinic
	}
	now := s.now().UTC()
	rg := ResolvePeriod(period, now)

	var rep ClinicalReport
	raw, err := s.cached(ctx, DomainClinical, clinicID, rg, &rep, func(ctx context.Context) (interface{}, error) {
		return s.buildClinical(ctx, clinicID, rg, now)
	})
	if err != nil {
		return nil, nil, err
	}
	return &rep, raw, nil
}

func (s *Service) buildClinical(ctx context.Context, clinicID uuid.UUID, rg Range, now time.Time) (*ClinicalReport, error) {
	rep := &ClinicalReport{Header: headerFor(rg)}

	diags, err := s.repo.TopDiagnoses(ctx, clinicID, rg, topDiagnosesLimit)
	if err != nil {
		return nil, fmt.Errorf("top diagnoses: %w", err)
	}
	rep.TopDiagnoses = nonNil(diags)

	dobs, err := s.repo.PatientBirthDates(ctx, clinicID, rg)
	if err != nil {
		return nil, fmt.Errorf("patients by age group: %w", err)
	}
	rep.PatientsByAgeGroup = bucketAges(dobs, now)

	statuses, err := s.repo.AppointmentsByStatus(ctx, clinicID, rg)
	if err != nil {
		return nil, fmt.Errorf("appointments by status: %w", err)
	}
	rep.AppointmentsByStatus = nonNil(statuses)

	doctors, err := s.repo.ConsultationsByDoctor(ctx, clinicID, rg)
	if err != nil {
		return nil, fmt.Errorf("consultations by doctor: %w", err)
	}
	rep.ConsultationsByDoctor = nonNil(doctors)
	return rep, nil
}

func bucketAges(dobs []*time.Time, today time.Time) []AgeGroupCount {
	counts := make(map[string]int, len(AgeGroups))
	for _, dob := range dobs {
		if dob == nil {
			continue
		}
		counts[AgeGroup(AgeOn(*dob, today))]++
	}
	out := make([]AgeGroupCount, 0, len(AgeGroups))
	for _, g := range AgeGroups {
		out = append(out, AgeGroupCount{AgeGroup: g, Count: counts[g]})
	}
	return out
}

// Financial returns the financial report together with its JSON encoding.
// The aging and cost-per-procedure sections degrade to defaults on failure;
// every other failure aborts the report.
func (s *Service) Financial(ctx context.Context, clinicID uuid.UUID, period string) (*FinancialReport, []byte, error) {
	if clinicID == uuid.Nil {
		return nil, nil, ErrNoClinic
	}
	now := s.now().UTC()
	rg := ResolvePeriod(period, now)

	var rep FinancialReport
	raw, err := s.cached(ctx, DomainFinancial, clinicID, rg, &rep, func(ctx context.Context) (interface{}, error) {
		return s.buildFinancial(ctx, clinicID, rg, now)
	})
	if err != nil {
		return nil, nil, err
	}
	return &rep, raw, nil
}

func (s *Service) buildFinancial(ctx context.Context, clinicID uuid.UUID, rg Range, now time.Time) (*FinancialReport, error) {
	rep := &FinancialReport{
		Header:           headerFor(rg),
		ARAging:          emptyAging(),
		CostPerProcedure: []ProcedureCost{},
		DenialPatterns:   []interface{}{},
		DegradedSections: []string{},
	}

	byDoctor, err := s.repo.RevenueByDoctor(ctx, clinicID, rg)
	if err != nil {
		return nil, fmt.Errorf("revenue by doctor: %w", err)
	}
	rep.RevenueByDoctor = make([]DoctorRevenue, 0, len(byDoctor))
	for _, a := range byDoctor {
		rep.RevenueByDoctor = append(rep.RevenueByDoctor, DoctorRevenue{DoctorName: labelOr(a.Label, ""), TotalRevenue: a.Total.InexactFloat64()})
	}

	byService, err := s.repo.RevenueByService(ctx, clinicID, rg, revenueByServiceLimit)
	if err != nil {
		return nil, fmt.Errorf("revenue by service: %w", err)
	}
	rep.RevenueByService = make([]ServiceRevenue, 0, len(byService))
	for _, a := range byService {
		rep.RevenueByService = append(rep.RevenueByService, ServiceRevenue{ServiceName: labelOr(a.Label, UnknownService), TotalRevenue: a.Total.InexactFloat64()})
	}

	months, err := s.repo.MonthlyRevenue(ctx, clinicID, rg.Start.Add(-trendLookback), rg.End)
	if err != nil {
		return nil, fmt.Errorf("monthly revenue trend: %w", err)
	}
	rep.MonthlyRevenueTrend = make([]MonthRevenue, 0, len(months))
	for _, a := range months {
		rep.MonthlyRevenueTrend = append(rep.MonthlyRevenueTrend, MonthRevenue{Month: labelOr(a.Label, ""), TotalRevenue: a.Total.InexactFloat64()})
	}

	count, total, err := s.repo.InvoiceTotals(ctx, clinicID, rg)
	if err != nil {
		return nil, fmt.Errorf("invoice totals: %w", err)
	}
	rep.TotalInvoices = count
	rep.TotalRevenue = total.InexactFloat64()
	rep.AverageInvoiceValue = averageInvoice(total, count)

	balances, err := s.repo.OpenBalances(ctx, clinicID, rg.End)
	if err != nil {
		s.degrade(ctx, rep, sectionARAging, err)
	} else {
		rep.ARAging = ageBalances(balances, now)
	}

	costs, err := s.repo.CostPerProcedure(ctx, clinicID, rg, costPerProcedureLimit)
	if err != nil {
		s.degrade(ctx, rep, sectionCostPerProcedure, err)
	} else {
		rep.CostPerProcedure = procedureCosts(costs)
	}
	return rep, nil
}

// degrade records that an optional section was replaced by its default.
func (s *Service) degrade(ctx context.Context, rep *FinancialReport, section string, err error) {
	err = classify(section, err)
	log := zerolog.Ctx(ctx)
	if IsNotProvisioned(err) {
		degradedSections.WithLabelValues(section, "not_provisioned").Inc()
		log.Warn().Err(err).Str("section", section).Msg("optional analytics section not provisioned")
	} else {
		degradedSections.WithLabelValues(section, "query_error").Inc()
		log.Error().Err(err).Str("section", section).Msg("optional analytics section failed")
	}
	rep.DegradedSections = append(rep.DegradedSections, section)
}

func averageInvoice(total decimal.Decimal, count int) float64 {
	if count < 1 {
		count = 1
	}
	return total.Div(decimal.NewFromInt(int64(count))).Round(2).InexactFloat64()
}

func emptyAging() map[string]float64 {
	out := make(map[string]float64, len(AgingBuckets))
	for _, b := range AgingBuckets {
		out[b] = 0
	}
	return out
}

func ageBalances(balances []OpenBalance, now time.Time) map[string]float64 {
	sums := make(map[string]decimal.Decimal, len(AgingBuckets))
	for _, b := range balances {
		if !b.Unpaid.IsPositive() {
			continue
		}
		bucket := AgingBucket(b.DueDate, now)
		sums[bucket] = sums[bucket].Add(b.Unpaid)
	}
	out := emptyAging()
	for k, v := range sums {
		out[k] = v.InexactFloat64()
	}
	return out
}

func procedureCosts(rows []ProcedureTotals) []ProcedureCost {
	out := make([]ProcedureCost, 0, len(rows))
	for _, p := range rows {
		pc := ProcedureCost{ServiceName: labelOr(p.Name, UnknownService)}
		if !p.Quantity.IsZero() {
			avg := p.Total.Div(p.Quantity).Round(2).InexactFloat64()
			pc.AvgCost = &avg
		}
		out = append(out, pc)
	}
	return out
}

// Operational returns the operational report together with its JSON
// encoding.
func (s *Service) Operational(ctx context.Context, clinicID uuid.UUID, period string) (*OperationalReport, []byte, error) {
	if clinicID == uuid.Nil {
		return nil, nil, ErrNoClinic
	}
	rg := ResolvePeriod(period, s.now())

	var rep OperationalReport
	raw, err := s.cached(ctx, DomainOperational, clinicID, rg, &rep, func(ctx context.Context) (interface{}, error) {
		return s.buildOperational(ctx, clinicID, rg)
	})
	if err != nil {
		return nil, nil, err
	}
	return &rep, raw, nil
}

func (s *Service) buildOperational(ctx context.Context, clinicID uuid.UUID, rg Range) (*OperationalReport, error) {
	rep := &OperationalReport{
		Header:                headerFor(rg),
		StockMovementsByType:  []interface{}{},
		TopProductsByMovement: []interface{}{},
		LowStockProducts:      []interface{}{},
	}

	days, err := s.repo.UtilizationByWeekday(ctx, clinicID, rg)
	if err != nil {
		return nil, fmt.Errorf("utilization: %w", err)
	}
	rep.Utilization = make([]LabelValue, 0, len(days))
	for _, d := range days {
		if d.Weekday < 0 || d.Weekday >= len(weekdayLabels) {
			continue
		}
		rep.Utilization = append(rep.Utilization, LabelValue{Label: weekdayLabels[d.Weekday], Value: d.Count})
	}

	if rep.AvgWaitTimeMinutes, err = s.repo.AverageWaitMinutes(ctx, clinicID, rg); err != nil {
		return nil, fmt.Errorf("wait time: %w", err)
	}
	if rep.NoShows, err = s.repo.NoShows(ctx, clinicID, rg); err != nil {
		return nil, fmt.Errorf("no shows: %w", err)
	}
	return rep, nil
}

// RunCustom validates and executes a custom report. Invalid selections fail
// before the database is touched.
func (s *Service) RunCustom(ctx context.Context, clinicID uuid.UUID, req CustomRequest) (*CustomReport, error) {
	q, err := PlanCustom(req)
	if err != nil {
		return nil, err
	}
	if clinicID == uuid.Nil {
		return nil, ErrNoClinic
	}
	if req.Period == "" {
		req.Period = PeriodLast30Days
	}
	rg := ResolvePeriod(req.Period, s.now())

	rows, err := s.repo.RunCustom(ctx, q, clinicID, rg)
	if err != nil {
		return nil, fmt.Errorf("custom report %s: %w", q.Domain, err)
	}
	return &CustomReport{Columns: q.Columns(), Rows: nonNil(rows)}, nil
}

func labelOr(label *string, fallback string) string {
	if label == nil || *label == "" {
		return fallback
	}
	return *label
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
