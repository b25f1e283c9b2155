package domain

import (
	"time"
)

// RateLimit is one configured request/window pair for a subscription. Stored
// as a JSONB array on the subscription row.
type RateLimit struct {
	Requests      int64 `json:"requests"`
	WindowSeconds int64 `json:"window_seconds"`
	Burst         int64 `json:"burst,omitempty"`
}

// Restrictiveness is the requests-per-second budget of the limit; lower is
// more restrictive.
func (r RateLimit) Restrictiveness() float64 {
	if r.WindowSeconds == 0 {
		return 0
	}

	return float64(r.Requests) / float64(r.WindowSeconds)
}

// RateLimitResult is the verdict of a rate-limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetTime  time.Time
	RetryAfter time.Duration
}

// QuotaPeriod is the recurring window a usage quota is measured against.
type QuotaPeriod string

const (
	QuotaPeriodHourly  QuotaPeriod = "hourly"
	QuotaPeriodDaily   QuotaPeriod = "daily"
	QuotaPeriodMonthly QuotaPeriod = "monthly"
)

// PeriodBounds computes the current [start, end) boundary of a quota period
// from wall-clock time. Unknown periods fall back to monthly.
func PeriodBounds(period QuotaPeriod, now time.Time) (start, end time.Time) {
	now = now.UTC()

	switch period {
	case QuotaPeriodHourly:
		start = now.Truncate(time.Hour)
		return start, start.Add(time.Hour)
	case QuotaPeriodDaily:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	default:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
}

// QuotaStatus is the verdict of a quota check. A nil Limit means unlimited.
type QuotaStatus struct {
	Allowed     bool
	Limit       *int64
	Used        int64
	Remaining   int64
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// QuotaProjection estimates when a key's quota will be exhausted. A nil
// ExhaustionDate means no exhaustion is projected.
type QuotaProjection struct {
	APIKeyID       string
	DailyRate      float64
	Remaining      int64
	ExhaustionDate *time.Time
}

// QuotaAlert reports a crossed usage threshold for one key.
type QuotaAlert struct {
	APIKeyID  string
	UserID    string
	Threshold int
	Severity  string
	UsagePct  float64
	Used      int64
	Limit     int64
}
