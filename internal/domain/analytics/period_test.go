package analytics

import (
	"testing"
	"time"
)

var allPeriods = []string{PeriodLast7Days, PeriodLast30Days, PeriodLast3Months, PeriodLastYear, PeriodLastMonth}

func TestResolvePeriod_EndNotBeforeStart(t *testing.T) {
	nows := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 15, 8, 30, 0, 0, time.UTC),
	}
	for _, now := range nows {
		for _, p := range allPeriods {
			r := ResolvePeriod(p, now)
			if r.End.Before(r.Start) {
				t.Errorf("%s at %s: end %s before start %s", p, now, r.End, r.Start)
			}
			again := ResolvePeriod(p, now)
			if !again.Start.Equal(r.Start) || !again.End.Equal(r.End) {
				t.Errorf("%s at %s: resolution is not deterministic", p, now)
			}
		}
	}
}

func TestResolvePeriod_Durations(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		token string
		want  time.Duration
	}{
		{PeriodLast7Days, 7 * 24 * time.Hour},
		{PeriodLast30Days, 30 * 24 * time.Hour},
		{PeriodLast3Months, 90 * 24 * time.Hour},
		{PeriodLastYear, 365 * 24 * time.Hour},
	}
	for _, tt := range tests {
		r := ResolvePeriod(tt.token, now)
		if !r.End.Equal(now) {
			t.Errorf("%s: expected end %s, got %s", tt.token, now, r.End)
		}
		if got := r.End.Sub(r.Start); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.token, tt.want, got)
		}
	}
}

func TestResolvePeriod_LastMonthInsidePreviousMonth(t *testing.T) {
	nows := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 1, 0, time.UTC),
		time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC),
	}
	for _, now := range nows {
		r := ResolvePeriod(PeriodLastMonth, now)
		prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		if !r.Start.Equal(prev) {
			t.Errorf("now %s: expected start %s, got %s", now, prev, r.Start)
		}
		if r.End.Month() != prev.Month() || r.End.Year() != prev.Year() {
			t.Errorf("now %s: end %s is outside %s", now, r.End, prev.Month())
		}
		wantEnd := prev.AddDate(0, 1, 0).Add(-time.Second)
		if !r.End.Equal(wantEnd) {
			t.Errorf("now %s: expected end %s, got %s", now, wantEnd, r.End)
		}
	}
}

func TestResolvePeriod_UnknownTokenFallsBack(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	r := ResolvePeriod("last_decade", now)
	if r.Token != "last_decade" {
		t.Errorf("expected token to be echoed, got %q", r.Token)
	}
	if got := r.End.Sub(r.Start); got != 30*24*time.Hour {
		t.Errorf("expected 30 day fallback, got %s", got)
	}
	if Known("last_decade") {
		t.Error("expected last_decade to be unknown")
	}
	if !Known(PeriodLastMonth) {
		t.Error("expected last_month to be known")
	}
}

func TestResolvePeriod_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	now := time.Date(2024, 3, 1, 1, 0, 0, 0, loc) // 04:00 UTC, still March
	r := ResolvePeriod(PeriodLastMonth, now)
	if r.Start.Month() != time.February {
		t.Errorf("expected February, got %s", r.Start.Month())
	}
	if r.Start.Location() != time.UTC {
		t.Errorf("expected UTC, got %s", r.Start.Location())
	}
}
