package domain

import "time"

// UsageEvent is a single gateway request as delivered on the usage topic.
// Ephemeral: decoded, processed and dropped, never persisted as-is.
type UsageEvent struct {
	ID              string    `json:"id"`
	APIPath         string    `json:"api_path"`
	SubscriptionKey string    `json:"subscription_key"`
	Method          string    `json:"method"`
	ResponseTimeMs  int64     `json:"response_time_ms"`
	StatusCode      int       `json:"status_code"`
	Success         bool      `json:"success"`
	Timestamp       time.Time `json:"timestamp"`
	RequestSize     int64     `json:"request_size"`
	ResponseSize    int64     `json:"response_size"`
}

// Key deactivation reasons carried on sync events.
const (
	DeactivationInsufficientCredits = "insufficient_credits"
	DeactivationBalanceDepleted     = "balance_depleted"
)

// KeySyncEvent is published outward so the edge gateway can refresh its
// local key-validation cache.
type KeySyncEvent struct {
	KeyValue  string    `json:"key_value"`
	IsActive  bool      `json:"is_active"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// APIKey is the projection of a marketplace API key the metering core needs.
type APIKey struct {
	ID             string
	KeyValue       string
	SubscriptionID string
	ResourceID     string
	IsActive       bool
}

// Subscription links a key to a user and carries enforcement configuration.
type Subscription struct {
	ID           string
	UserID       string
	ResourceID   string
	Status       string
	RateLimits   []RateLimit
	QuotaLimit   *int64
	QuotaPeriod  QuotaPeriod
	RequestsUsed int64
}

// IsActive reports whether the subscription may be billed against.
func (s *Subscription) IsActive() bool {
	return s.Status == "active"
}

// UsageRecord is the persisted trace of a metered request, written after the
// response completes. Quota accounting sums successful records.
type UsageRecord struct {
	ID             string
	APIKeyID       string
	ResourceID     string
	Endpoint       string
	Method         string
	StatusCode     int
	Success        bool
	ResponseTimeMs int64
	RequestSize    int64
	ResponseSize   int64
	CreatedAt      time.Time
}
