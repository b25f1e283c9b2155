package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/infrastructure/metrics"
)

// QuotaUseCase implements rate limiting and billing-period quota enforcement.
// Rate-limit checks fail open (best effort); quota checks fail closed. The
// asymmetry is deliberate: a broken limiter should not take the marketplace
// down, but a broken quota check must not give away unmetered usage.
type QuotaUseCase struct {
	counter   CounterStore
	usageRepo UsageRepository
	keys      KeyDirectory
	subs      SubscriptionDirectory
	idGen     IDGenerator
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewQuotaUseCase creates a new QuotaUseCase.
func NewQuotaUseCase(
	counter CounterStore,
	usageRepo UsageRepository,
	keys KeyDirectory,
	subs SubscriptionDirectory,
	idGen IDGenerator,
	logger zerolog.Logger,
	metrics *metrics.Metrics,
) *QuotaUseCase {
	return &QuotaUseCase{
		counter:   counter,
		usageRepo: usageRepo,
		keys:      keys,
		subs:      subs,
		idGen:     idGen,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckRateLimit enforces the subscription's most restrictive configured
// window against a shared fixed-window counter. Window boundaries align to
// wall-clock multiples of the window length. Any internal failure allows the
// request with a generous default limit.
func (uc *QuotaUseCase) CheckRateLimit(ctx context.Context, apiKeyID, resourceID, endpoint string) *domain.RateLimitResult {
	now := time.Now().UTC()

	sub, err := uc.subscriptionForKey(ctx, apiKeyID)
	if err != nil {
		return uc.failOpen(now, err)
	}

	limit, ok := mostRestrictive(sub.RateLimits)
	if !ok {
		return uc.failOpen(now, nil)
	}

	window := time.Duration(limit.WindowSeconds) * time.Second
	windowStart := now.Truncate(window)
	counterKey := fmt.Sprintf("ratelimit:%s:%s:%d:%d", apiKeyID, resourceID, limit.WindowSeconds, windowStart.Unix())

	count, err := uc.counter.Increment(ctx, counterKey, window)
	if err != nil {
		return uc.failOpen(now, err)
	}

	effective := limit.Requests + limit.Burst
	resetTime := windowStart.Add(window)

	result := &domain.RateLimitResult{
		Allowed:   count <= effective,
		Limit:     effective,
		Remaining: max64(0, effective-count),
		ResetTime: resetTime,
	}

	if !result.Allowed {
		result.RetryAfter = resetTime.Sub(now)
	}

	if uc.metrics != nil {
		uc.metrics.RateLimitChecks.WithLabelValues(verdictLabel(result.Allowed)).Inc()
	}

	return result
}

// failOpen reports the best-effort allow verdict used when rate limiting
// cannot be evaluated.
func (uc *QuotaUseCase) failOpen(now time.Time, err error) *domain.RateLimitResult {
	if err != nil {
		uc.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")

		if uc.metrics != nil {
			uc.metrics.RateLimitChecks.WithLabelValues("fail_open").Inc()
		}
	}

	return &domain.RateLimitResult{
		Allowed:   true,
		Limit:     FailOpenRateLimit,
		Remaining: FailOpenRateLimit,
		ResetTime: now.Add(time.Minute),
	}
}

// RecordUsageInput carries request and response metadata for one request.
type RecordUsageInput struct {
	APIKeyID       string
	ResourceID     string
	Endpoint       string
	Method         string
	StatusCode     int
	Success        bool
	ResponseTimeMs int64
	RequestSize    int64
	ResponseSize   int64
	Timestamp      time.Time
}

// RecordUsage persists a usage record after the response completes. It is
// fire-and-forget relative to the request path: failures are logged, never
// surfaced to the caller.
func (uc *QuotaUseCase) RecordUsage(ctx context.Context, input RecordUsageInput) {
	at := input.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	record := &domain.UsageRecord{
		ID:             uc.idGen.Generate(),
		APIKeyID:       input.APIKeyID,
		ResourceID:     input.ResourceID,
		Endpoint:       input.Endpoint,
		Method:         input.Method,
		StatusCode:     input.StatusCode,
		Success:        input.Success,
		ResponseTimeMs: input.ResponseTimeMs,
		RequestSize:    input.RequestSize,
		ResponseSize:   input.ResponseSize,
		CreatedAt:      at,
	}

	if err := uc.usageRepo.Create(ctx, record); err != nil {
		uc.logger.Error().Err(err).Str("api_key_id", input.APIKeyID).Msg("failed to record usage")
	}
}

// CheckQuota verifies the subscription's billing-period quota allows another
// requestCount requests. A nil or negative limit means unlimited. Any
// internal failure denies the request.
func (uc *QuotaUseCase) CheckQuota(ctx context.Context, apiKeyID string, requestCount int64) *domain.QuotaStatus {
	now := time.Now().UTC()

	key, err := uc.keys.FindKeyByID(ctx, apiKeyID)
	if err != nil {
		return uc.failClosed(now, err)
	}

	sub, err := uc.subs.FindSubscriptionByID(ctx, key.SubscriptionID)
	if err != nil {
		return uc.failClosed(now, err)
	}

	start, end := domain.PeriodBounds(sub.QuotaPeriod, now)

	if sub.QuotaLimit == nil || *sub.QuotaLimit < 0 {
		return &domain.QuotaStatus{
			Allowed:     true,
			Limit:       nil,
			PeriodStart: start,
			PeriodEnd:   end,
		}
	}

	used, err := uc.usageRepo.CountSuccessful(ctx, key.ID, start, end)
	if err != nil {
		return uc.failClosed(now, err)
	}

	limit := *sub.QuotaLimit
	status := &domain.QuotaStatus{
		Allowed:     used+requestCount <= limit,
		Limit:       &limit,
		Used:        used,
		Remaining:   max64(0, limit-used),
		PeriodStart: start,
		PeriodEnd:   end,
	}

	if uc.metrics != nil {
		uc.metrics.QuotaChecks.WithLabelValues(verdictLabel(status.Allowed)).Inc()
	}

	return status
}

// failClosed reports the deny verdict used when the quota cannot be
// evaluated.
func (uc *QuotaUseCase) failClosed(now time.Time, err error) *domain.QuotaStatus {
	uc.logger.Error().Err(err).Msg("quota check failed, denying request")

	if uc.metrics != nil {
		uc.metrics.QuotaChecks.WithLabelValues("fail_closed").Inc()
	}

	start, end := domain.PeriodBounds(domain.QuotaPeriodMonthly, now)

	return &domain.QuotaStatus{
		Allowed:     false,
		PeriodStart: start,
		PeriodEnd:   end,
	}
}

// EstimateQuotaExhaustion projects when the key's quota runs out based on a
// trailing 7-day average daily rate. The projection is nil when the quota is
// unlimited or the trailing rate is zero.
func (uc *QuotaUseCase) EstimateQuotaExhaustion(ctx context.Context, apiKeyID string) (*domain.QuotaProjection, error) {
	now := time.Now().UTC()

	key, err := uc.keys.FindKeyByID(ctx, apiKeyID)
	if err != nil {
		return nil, err
	}

	sub, err := uc.subs.FindSubscriptionByID(ctx, key.SubscriptionID)
	if err != nil {
		return nil, err
	}

	projection := &domain.QuotaProjection{APIKeyID: apiKeyID}

	if sub.QuotaLimit == nil || *sub.QuotaLimit < 0 {
		return projection, nil
	}

	trailing, err := uc.usageRepo.CountSuccessful(ctx, key.ID, now.AddDate(0, 0, -7), now)
	if err != nil {
		return nil, err
	}

	projection.DailyRate = float64(trailing) / 7.0

	start, end := domain.PeriodBounds(sub.QuotaPeriod, now)
	used, err := uc.usageRepo.CountSuccessful(ctx, key.ID, start, end)
	if err != nil {
		return nil, err
	}

	projection.Remaining = max64(0, *sub.QuotaLimit-used)

	if projection.DailyRate <= 0 {
		return projection, nil
	}

	days := float64(projection.Remaining) / projection.DailyRate
	exhaustion := now.Add(time.Duration(days * 24 * float64(time.Hour)))
	projection.ExhaustionDate = &exhaustion

	return projection, nil
}

// DefaultAlertThresholds are the usage percentages reported by GetQuotaAlerts
// when the caller passes none.
var DefaultAlertThresholds = []int{80, 90, 95}

// GetQuotaAlerts reports, for each of the user's keys, the highest crossed
// usage threshold. Thresholds of 90 and above are critical, below that
// warnings. Results are sorted by usage percentage descending.
func (uc *QuotaUseCase) GetQuotaAlerts(ctx context.Context, userID string, thresholds []int) ([]*domain.QuotaAlert, error) {
	if len(thresholds) == 0 {
		thresholds = DefaultAlertThresholds
	}

	sorted := append([]int(nil), thresholds...)
	sort.Ints(sorted)

	keys, err := uc.keys.FindKeysByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	alerts := make([]*domain.QuotaAlert, 0, len(keys))

	for _, key := range keys {
		sub, err := uc.subs.FindSubscriptionByID(ctx, key.SubscriptionID)
		if err != nil {
			uc.logger.Warn().Err(err).Str("api_key_id", key.ID).Msg("skipping key without subscription")
			continue
		}

		if sub.QuotaLimit == nil || *sub.QuotaLimit <= 0 {
			continue
		}

		start, end := domain.PeriodBounds(sub.QuotaPeriod, now)
		used, err := uc.usageRepo.CountSuccessful(ctx, key.ID, start, end)
		if err != nil {
			return nil, err
		}

		pct := float64(used) * 100 / float64(*sub.QuotaLimit)

		crossed := 0
		for _, th := range sorted {
			if pct >= float64(th) {
				crossed = th
			}
		}

		if crossed == 0 {
			continue
		}

		severity := "warning"
		if crossed >= 90 {
			severity = "critical"
		}

		alerts = append(alerts, &domain.QuotaAlert{
			APIKeyID:  key.ID,
			UserID:    userID,
			Threshold: crossed,
			Severity:  severity,
			UsagePct:  pct,
			Used:      used,
			Limit:     *sub.QuotaLimit,
		})
	}

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].UsagePct > alerts[j].UsagePct
	})

	return alerts, nil
}

func (uc *QuotaUseCase) subscriptionForKey(ctx context.Context, apiKeyID string) (*domain.Subscription, error) {
	key, err := uc.keys.FindKeyByID(ctx, apiKeyID)
	if err != nil {
		return nil, err
	}

	return uc.subs.FindSubscriptionByID(ctx, key.SubscriptionID)
}

// mostRestrictive picks the limit with the lowest requests/window ratio.
func mostRestrictive(limits []domain.RateLimit) (domain.RateLimit, bool) {
	var best domain.RateLimit

	found := false
	for _, l := range limits {
		if l.Requests <= 0 || l.WindowSeconds <= 0 {
			continue
		}

		if !found || l.Restrictiveness() < best.Restrictiveness() {
			best = l
			found = true
		}
	}

	return best, found
}

func verdictLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}

	return "denied"
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}

	return b
}
