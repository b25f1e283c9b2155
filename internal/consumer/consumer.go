// Package consumer drains the usage-event topic and turns gateway requests
// into wallet deductions. Delivery is at least once; the wallet layer's
// reference dedupe makes replays harmless.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/infrastructure/metrics"
	"github.com/veloapi/metering/internal/usecase"
)

// Message is one record fetched from the usage stream.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
}

// StreamReader abstracts the usage-event source. Commit acknowledges a single
// message after its handler returns, giving at-least-once delivery.
type StreamReader interface {
	Fetch(ctx context.Context) (Message, error)
	Commit(ctx context.Context, msg Message) error
}

// WalletService is the slice of the wallet layer the consumer needs.
type WalletService interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*domain.Wallet, error)
	DeductCredits(ctx context.Context, input usecase.DeductInput) (*domain.Wallet, *domain.WalletTransaction, error)
}

// UsageRecorder persists the per-request trace quota accounting reads back.
// Recording is fire-and-forget; a nil recorder disables it.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, input usecase.RecordUsageInput)
}

// Processing outcomes, reported on metrics and logs.
const (
	OutcomeDeducted       = "deducted"
	OutcomeDuplicate      = "duplicate"
	OutcomeKeyDeactivated = "key_deactivated"
	OutcomeSkipped        = "skipped"
	OutcomeError          = "error"
)

// Config tunes the consumer.
type Config struct {
	Workers             int
	LowBalanceThreshold decimal.Decimal
}

// Consumer runs a bounded worker pool over the usage stream.
type Consumer struct {
	reader    StreamReader
	wallets   WalletService
	keys      usecase.KeyDirectory
	subs      usecase.SubscriptionDirectory
	publisher usecase.SyncPublisher
	cost      usecase.CostPolicy
	usage     UsageRecorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config
}

// New creates a Consumer. Workers defaults to 4 when unset.
func New(
	reader StreamReader,
	wallets WalletService,
	keys usecase.KeyDirectory,
	subs usecase.SubscriptionDirectory,
	publisher usecase.SyncPublisher,
	cost usecase.CostPolicy,
	usage UsageRecorder,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg Config,
) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		reader:    reader,
		wallets:   wallets,
		keys:      keys,
		subs:      subs,
		publisher: publisher,
		cost:      cost,
		usage:     usage,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run fetches and processes messages until ctx is cancelled, then drains
// in-flight work before returning. Offsets are committed only after the
// handler returns, so a crash mid-handler replays the message.
func (c *Consumer) Run(ctx context.Context) error {
	sem := make(chan struct{}, c.cfg.Workers)

	var wg sync.WaitGroup

	for {
		msg, err := c.reader.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}

			c.logger.Error("fetch failed", "error", err)

			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}

			if ctx.Err() != nil {
				break
			}

			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}

		wg.Add(1)

		go func(msg Message) {
			defer wg.Done()
			defer func() { <-sem }()

			c.handle(ctx, msg)
		}(msg)
	}

	wg.Wait()

	return ctx.Err()
}

// handle processes one message and commits its offset. Errors never stop the
// loop: the event is logged and dropped, the offset still committed.
func (c *Consumer) handle(ctx context.Context, msg Message) {
	start := time.Now()

	outcome, err := c.Process(ctx, msg.Value)
	if err != nil {
		c.logger.Error("usage event failed",
			"error", err,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
	}

	if c.metrics != nil {
		c.metrics.EventsProcessed.WithLabelValues(outcome).Inc()
		c.metrics.EventDuration.Observe(time.Since(start).Seconds())
	}

	// Use a fresh context so a drain still commits handled offsets.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := c.reader.Commit(commitCtx, msg); err != nil {
		c.logger.Error("commit failed", "error", err, "offset", msg.Offset)
	}
}

// Process decodes and settles a single usage event.
//
// The pipeline is key lookup, subscription lookup, cost computation, then the
// wallet deduction. A duplicate reference means the event was already settled
// on a previous delivery and counts as success. Insufficient balance
// deactivates the key; a deduction that lands the balance exactly on zero
// deactivates it as depleted.
func (c *Consumer) Process(ctx context.Context, payload []byte) (string, error) {
	var event domain.UsageEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return OutcomeSkipped, err
	}

	key, err := c.keys.FindKeyByValue(ctx, event.SubscriptionKey)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			c.logger.Warn("unknown subscription key", "event_id", event.ID)
			return OutcomeSkipped, nil
		}

		return OutcomeError, err
	}

	if !key.IsActive {
		return OutcomeSkipped, nil
	}

	sub, err := c.subs.FindSubscriptionByID(ctx, key.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			c.logger.Warn("key without subscription", "api_key_id", key.ID, "event_id", event.ID)
			return OutcomeSkipped, nil
		}

		return OutcomeError, err
	}

	if !sub.IsActive() {
		return OutcomeSkipped, nil
	}

	if c.usage != nil {
		c.usage.RecordUsage(ctx, usecase.RecordUsageInput{
			APIKeyID:       key.ID,
			ResourceID:     key.ResourceID,
			Endpoint:       event.APIPath,
			Method:         event.Method,
			StatusCode:     event.StatusCode,
			Success:        event.Success,
			ResponseTimeMs: event.ResponseTimeMs,
			RequestSize:    event.RequestSize,
			ResponseSize:   event.ResponseSize,
			Timestamp:      event.Timestamp,
		})
	}

	// Failed gateway requests are not billed.
	if !event.Success {
		return OutcomeSkipped, nil
	}

	cost := c.cost.CostOf(&event)
	if !cost.IsPositive() {
		return OutcomeSkipped, nil
	}

	wallet, err := c.wallets.GetOrCreateWallet(ctx, sub.UserID)
	if err != nil {
		return OutcomeError, err
	}

	wallet, _, err = c.wallets.DeductCredits(ctx, usecase.DeductInput{
		UserID:        sub.UserID,
		Amount:        cost,
		Description:   event.Method + " " + event.APIPath,
		ReferenceType: usecase.ReferenceTypeUsageEvent,
		ReferenceID:   event.ID,
	})

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDuplicateReference):
		// Replayed delivery, already settled.
		return OutcomeDuplicate, nil
	case errors.Is(err, domain.ErrInsufficientBalance):
		c.deactivate(ctx, key, domain.DeactivationInsufficientCredits)
		return OutcomeKeyDeactivated, nil
	default:
		return OutcomeError, err
	}

	if err := c.subs.IncrementUsage(ctx, sub.ID, 1); err != nil {
		c.logger.Error("usage increment failed", "subscription_id", sub.ID, "error", err)
	}

	if wallet.Balance.IsZero() {
		c.deactivate(ctx, key, domain.DeactivationBalanceDepleted)
		return OutcomeKeyDeactivated, nil
	}

	if !c.cfg.LowBalanceThreshold.IsZero() && wallet.Balance.LessThan(c.cfg.LowBalanceThreshold) {
		c.logger.Warn("wallet balance low",
			"user_id", sub.UserID,
			"balance", wallet.Balance.String(),
			"threshold", c.cfg.LowBalanceThreshold.String(),
		)

		if c.metrics != nil {
			c.metrics.LowBalanceWarnings.Inc()
		}
	}

	return OutcomeDeducted, nil
}

// deactivate flips the key off and tells the gateway. A failed publish is
// logged but does not fail the event: the database is the source of truth and
// the gateway reconciles on its next full sync.
func (c *Consumer) deactivate(ctx context.Context, key *domain.APIKey, reason string) {
	if err := c.keys.DeactivateKey(ctx, key.ID); err != nil {
		c.logger.Error("key deactivation failed", "api_key_id", key.ID, "error", err)
		return
	}

	c.logger.Info("api key deactivated", "api_key_id", key.ID, "reason", reason)

	if c.metrics != nil {
		c.metrics.KeysDeactivated.WithLabelValues(reason).Inc()
	}

	event := &domain.KeySyncEvent{
		KeyValue:  key.KeyValue,
		IsActive:  false,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	}

	if err := c.publisher.PublishKeySync(ctx, event); err != nil {
		c.logger.Error("key sync publish failed", "api_key_id", key.ID, "error", err)

		if c.metrics != nil {
			c.metrics.SyncPublishErrors.Inc()
		}
	}
}
