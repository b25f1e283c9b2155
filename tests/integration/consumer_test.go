package integration

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/adapter/repository/postgres"
	"github.com/veloapi/metering/internal/consumer"
	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/usecase"
	"github.com/veloapi/metering/internal/usecase/mocks"
	"github.com/veloapi/metering/tests/testutil"
)

func usageEvent(t *testing.T, id, keyValue string, success bool) []byte {
	t.Helper()

	payload, err := json.Marshal(domain.UsageEvent{
		ID:              id,
		APIPath:         "/v1/search",
		SubscriptionKey: keyValue,
		Method:          "POST",
		StatusCode:      200,
		Success:         success,
		Timestamp:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}

	return payload
}

func TestConsumerPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()

	s := newStack(t, testDB)

	idGen := postgres.NewULIDGenerator()
	counter := mocks.NewMockCounterStore()
	quotaUC := usecase.NewQuotaUseCase(counter, s.usageRepo, s.directory, s.directory, idGen, zerolog.Nop(), nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := mocks.NewMockSyncPublisher()

	newConsumer := func() *consumer.Consumer {
		return consumer.New(nil, s.walletUC, s.directory, s.directory, publisher,
			usecase.NewFixedCostPolicy(decimal.RequireFromString("1.00")), quotaUC, nil, logger,
			consumer.Config{Workers: 1})
	}

	t.Run("deducts and records usage", func(t *testing.T) {
		s.bootstrap(t, testDB)

		sub := testDB.CreateTestSubscription(ctx, "user-1", nil)
		testDB.CreateTestAPIKey(ctx, "sk-live-1", sub)

		if _, _, err := s.walletUC.AddCredits(ctx, usecase.CreditInput{
			UserID: "user-1",
			Amount: decimal.RequireFromString("10.00"),
		}); err != nil {
			t.Fatalf("AddCredits: %v", err)
		}

		c := newConsumer()

		outcome, err := c.Process(ctx, usageEvent(t, "evt-1", "sk-live-1", true))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}

		if outcome != consumer.OutcomeDeducted {
			t.Fatalf("outcome = %s, want deducted", outcome)
		}

		wallet, err := s.walletUC.GetWallet(ctx, "user-1")
		if err != nil {
			t.Fatalf("GetWallet: %v", err)
		}

		if !wallet.Balance.Equal(decimal.RequireFromString("9.00")) {
			t.Errorf("balance = %s, want 9.00", wallet.Balance)
		}

		sub2, err := s.directory.FindSubscriptionByID(ctx, sub.ID)
		if err != nil {
			t.Fatalf("FindSubscriptionByID: %v", err)
		}

		if sub2.RequestsUsed != 1 {
			t.Errorf("requests used = %d, want 1", sub2.RequestsUsed)
		}

		var usageCount int
		if err := testDB.Pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM usage_records WHERE api_key_id = (SELECT id FROM api_keys WHERE key_value = 'sk-live-1')`,
		).Scan(&usageCount); err != nil {
			t.Fatalf("count usage records: %v", err)
		}

		if usageCount != 1 {
			t.Errorf("usage records = %d, want 1", usageCount)
		}
	})

	t.Run("replayed event settles once", func(t *testing.T) {
		s.bootstrap(t, testDB)

		sub := testDB.CreateTestSubscription(ctx, "user-1", nil)
		testDB.CreateTestAPIKey(ctx, "sk-live-1", sub)

		if _, _, err := s.walletUC.AddCredits(ctx, usecase.CreditInput{
			UserID: "user-1",
			Amount: decimal.RequireFromString("10.00"),
		}); err != nil {
			t.Fatalf("AddCredits: %v", err)
		}

		c := newConsumer()
		payload := usageEvent(t, "evt-replay", "sk-live-1", true)

		if _, err := c.Process(ctx, payload); err != nil {
			t.Fatalf("first delivery: %v", err)
		}

		outcome, err := c.Process(ctx, payload)
		if err != nil {
			t.Fatalf("second delivery: %v", err)
		}

		if outcome != consumer.OutcomeDuplicate {
			t.Errorf("outcome = %s, want duplicate", outcome)
		}

		wallet, err := s.walletUC.GetWallet(ctx, "user-1")
		if err != nil {
			t.Fatalf("GetWallet: %v", err)
		}

		if !wallet.Balance.Equal(decimal.RequireFromString("9.00")) {
			t.Errorf("balance = %s, want 9.00 (deducted once)", wallet.Balance)
		}
	})

	t.Run("depleted balance deactivates key in database", func(t *testing.T) {
		s.bootstrap(t, testDB)

		sub := testDB.CreateTestSubscription(ctx, "user-1", nil)
		testDB.CreateTestAPIKey(ctx, "sk-live-1", sub)

		if _, _, err := s.walletUC.AddCredits(ctx, usecase.CreditInput{
			UserID: "user-1",
			Amount: decimal.RequireFromString("1.00"),
		}); err != nil {
			t.Fatalf("AddCredits: %v", err)
		}

		c := newConsumer()

		outcome, err := c.Process(ctx, usageEvent(t, "evt-deplete", "sk-live-1", true))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}

		if outcome != consumer.OutcomeKeyDeactivated {
			t.Fatalf("outcome = %s, want key_deactivated", outcome)
		}

		key, err := s.directory.FindKeyByValue(ctx, "sk-live-1")
		if err != nil {
			t.Fatalf("FindKeyByValue: %v", err)
		}

		if key.IsActive {
			t.Error("key still active after depletion")
		}

		// Further events for the dead key are skipped without billing.
		outcome, err = c.Process(ctx, usageEvent(t, "evt-after", "sk-live-1", true))
		if err != nil {
			t.Fatalf("Process after deactivation: %v", err)
		}

		if outcome != consumer.OutcomeSkipped {
			t.Errorf("outcome = %s, want skipped", outcome)
		}
	})

	t.Run("failed request is traced but not billed", func(t *testing.T) {
		s.bootstrap(t, testDB)

		sub := testDB.CreateTestSubscription(ctx, "user-1", nil)
		testDB.CreateTestAPIKey(ctx, "sk-live-1", sub)

		if _, _, err := s.walletUC.AddCredits(ctx, usecase.CreditInput{
			UserID: "user-1",
			Amount: decimal.RequireFromString("10.00"),
		}); err != nil {
			t.Fatalf("AddCredits: %v", err)
		}

		c := newConsumer()

		outcome, err := c.Process(ctx, usageEvent(t, "evt-failed", "sk-live-1", false))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}

		if outcome != consumer.OutcomeSkipped {
			t.Errorf("outcome = %s, want skipped", outcome)
		}

		wallet, err := s.walletUC.GetWallet(ctx, "user-1")
		if err != nil {
			t.Fatalf("GetWallet: %v", err)
		}

		if !wallet.Balance.Equal(decimal.RequireFromString("10.00")) {
			t.Errorf("balance = %s, want 10.00 (unbilled)", wallet.Balance)
		}

		var usageCount int
		if err := testDB.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM usage_records WHERE success = FALSE`).Scan(&usageCount); err != nil {
			t.Fatalf("count usage records: %v", err)
		}

		if usageCount != 1 {
			t.Errorf("failed usage records = %d, want 1", usageCount)
		}
	})
}
