package analytics

import "time"

// Period tokens accepted by the analytics endpoints.
const (
	PeriodLast7Days   = "last_7_days"
	PeriodLast30Days  = "last_30_days"
	PeriodLast3Months = "last_3_months"
	PeriodLastYear    = "last_year"
	PeriodLastMonth   = "last_month"
)

// Range is a resolved reporting interval. Token is the period the caller
// asked for, which is echoed back in responses and cache keys even when it
// was not recognised.
type Range struct {
	Token string
	Start time.Time
	End   time.Time
}

// ResolvePeriod turns a period token into a concrete UTC interval relative
// to now. Unknown tokens resolve like last_30_days.
func ResolvePeriod(token string, now time.Time) Range {
	now = now.UTC()
	r := Range{Token: token, End: now}

	switch token {
	case PeriodLast7Days:
		r.Start = now.Add(-7 * 24 * time.Hour)
	case PeriodLast3Months:
		r.Start = now.Add(-90 * 24 * time.Hour)
	case PeriodLastYear:
		r.Start = now.Add(-365 * 24 * time.Hour)
	case PeriodLastMonth:
		firstThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.End = firstThisMonth.Add(-time.Second)
		r.Start = time.Date(r.End.Year(), r.End.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		r.Start = now.Add(-30 * 24 * time.Hour)
	}
	return r
}

// Known reports whether token is one of the recognised period tokens.
func Known(token string) bool {
	switch token {
	case PeriodLast7Days, PeriodLast30Days, PeriodLast3Months, PeriodLastYear, PeriodLastMonth:
		return true
	}
	return false
}
