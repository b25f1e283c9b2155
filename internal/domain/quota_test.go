package domain

import (
	"testing"
	"time"
)

func TestPeriodBounds(t *testing.T) {
	now := time.Date(2025, time.March, 15, 13, 42, 7, 0, time.UTC)

	tests := []struct {
		period    QuotaPeriod
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			QuotaPeriodHourly,
			time.Date(2025, time.March, 15, 13, 0, 0, 0, time.UTC),
			time.Date(2025, time.March, 15, 14, 0, 0, 0, time.UTC),
		},
		{
			QuotaPeriodDaily,
			time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC),
			time.Date(2025, time.March, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			QuotaPeriodMonthly,
			time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			// unknown period defaults to monthly
			QuotaPeriod("weekly"),
			time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			start, end := PeriodBounds(tt.period, now)
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("PeriodBounds(%s) = [%s, %s), want [%s, %s)", tt.period, start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestRateLimitRestrictiveness(t *testing.T) {
	loose := RateLimit{Requests: 1000, WindowSeconds: 60}
	tight := RateLimit{Requests: 5, WindowSeconds: 10}

	if tight.Restrictiveness() >= loose.Restrictiveness() {
		t.Errorf("expected 5/10s to be more restrictive than 1000/60s")
	}

	zero := RateLimit{Requests: 10, WindowSeconds: 0}
	if zero.Restrictiveness() != 0 {
		t.Errorf("zero window restrictiveness = %v, want 0", zero.Restrictiveness())
	}
}
