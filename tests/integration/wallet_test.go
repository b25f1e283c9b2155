package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/adapter/http/dto"
	"github.com/veloapi/metering/internal/usecase"
	"github.com/veloapi/metering/tests/testutil"
)

func walletRequest(method, path, userID string, body any) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	if userID != "" {
		r.Header.Set("X-User-ID", userID)
	}

	return r
}

func TestWalletHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()

	s := newStack(t, testDB)

	t.Run("add credits then read balance", func(t *testing.T) {
		s.bootstrap(t, testDB)

		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/add", "user-1",
			dto.CreditRequest{Amount: "100.00", Description: "initial top-up"}))

		if w.Code != http.StatusOK {
			t.Fatalf("add credits: status %d: %s", w.Code, w.Body.String())
		}

		w = httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodGet, "/api/v1/wallet/balance", "user-1", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("balance: status %d: %s", w.Code, w.Body.String())
		}

		var resp dto.WalletResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.Balance != "100.00" || resp.Available != "100.00" {
			t.Errorf("balance = %s available = %s, want 100.00/100.00", resp.Balance, resp.Available)
		}
	})

	t.Run("missing identity rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodGet, "/api/v1/wallet/balance", "", nil))

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("deduct credits", func(t *testing.T) {
		s.bootstrap(t, testDB)

		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/add", "user-1",
			dto.CreditRequest{Amount: "100.00"}))
		if w.Code != http.StatusOK {
			t.Fatalf("add credits: status %d: %s", w.Code, w.Body.String())
		}

		w = httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/deduct", "user-1",
			dto.DeductRequest{Amount: "30.00", Description: "api usage"}))
		if w.Code != http.StatusOK {
			t.Fatalf("deduct credits: status %d: %s", w.Code, w.Body.String())
		}

		wallet, err := s.walletUC.GetWallet(ctx, "user-1")
		if err != nil {
			t.Fatalf("GetWallet: %v", err)
		}

		if !wallet.Balance.Equal(decimal.RequireFromString("70.00")) {
			t.Errorf("balance = %s, want 70.00", wallet.Balance)
		}
	})

	t.Run("insufficient balance rejected", func(t *testing.T) {
		s.bootstrap(t, testDB)

		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/add", "user-1",
			dto.CreditRequest{Amount: "10.00"}))
		if w.Code != http.StatusOK {
			t.Fatalf("add credits: status %d: %s", w.Code, w.Body.String())
		}

		w = httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/deduct", "user-1",
			dto.DeductRequest{Amount: "50.00"}))

		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status %d, got %d: %s", http.StatusUnprocessableEntity, w.Code, w.Body.String())
		}

		// Balance untouched by the failed deduction.
		wallet, err := s.walletUC.GetWallet(ctx, "user-1")
		if err != nil {
			t.Fatalf("GetWallet: %v", err)
		}

		if !wallet.Balance.Equal(decimal.RequireFromString("10.00")) {
			t.Errorf("balance = %s, want 10.00", wallet.Balance)
		}
	})

	t.Run("duplicate reference rejected", func(t *testing.T) {
		s.bootstrap(t, testDB)

		body := dto.CreditRequest{Amount: "25.00", ReferenceType: "payment", ReferenceID: "pay-1"}

		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/add", "user-1", body))
		if w.Code != http.StatusOK {
			t.Fatalf("first add: status %d: %s", w.Code, w.Body.String())
		}

		w = httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/add", "user-1", body))
		if w.Code != http.StatusConflict {
			t.Fatalf("second add: status %d, want %d: %s", w.Code, http.StatusConflict, w.Body.String())
		}

		// Credited exactly once.
		wallet, err := s.walletUC.GetWallet(ctx, "user-1")
		if err != nil {
			t.Fatalf("GetWallet: %v", err)
		}

		if !wallet.Balance.Equal(decimal.RequireFromString("25.00")) {
			t.Errorf("balance = %s, want 25.00", wallet.Balance)
		}
	})

	t.Run("locked credits reduce spendable balance", func(t *testing.T) {
		s.bootstrap(t, testDB)

		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/add", "user-1",
			dto.CreditRequest{Amount: "100.00"}))
		if w.Code != http.StatusOK {
			t.Fatalf("add credits: status %d: %s", w.Code, w.Body.String())
		}

		w = httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/lock", "user-1",
			dto.LockRequest{Amount: "40.00", Description: "pending charge"}))
		if w.Code != http.StatusOK {
			t.Fatalf("lock credits: status %d: %s", w.Code, w.Body.String())
		}

		// Only 60 is spendable while the lock is held.
		w = httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/deduct", "user-1",
			dto.DeductRequest{Amount: "70.00"}))
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("deduct against lock: status %d, want %d", w.Code, http.StatusUnprocessableEntity)
		}

		w = httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/unlock", "user-1",
			dto.LockRequest{Amount: "40.00"}))
		if w.Code != http.StatusOK {
			t.Fatalf("unlock credits: status %d: %s", w.Code, w.Body.String())
		}

		w = httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodPost, "/api/v1/wallet/credits/deduct", "user-1",
			dto.DeductRequest{Amount: "70.00"}))
		if w.Code != http.StatusOK {
			t.Fatalf("deduct after unlock: status %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("transaction history pages and filters", func(t *testing.T) {
		s.bootstrap(t, testDB)

		for _, amount := range []string{"10.00", "20.00", "30.00"} {
			if _, _, err := s.walletUC.AddCredits(ctx, usecase.CreditInput{
				UserID: "user-1",
				Amount: decimal.RequireFromString(amount),
			}); err != nil {
				t.Fatalf("AddCredits: %v", err)
			}
		}

		if _, _, err := s.walletUC.DeductCredits(ctx, usecase.DeductInput{
			UserID: "user-1",
			Amount: decimal.RequireFromString("5.00"),
		}); err != nil {
			t.Fatalf("DeductCredits: %v", err)
		}

		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, walletRequest(http.MethodGet, "/api/v1/wallet/transactions?type=debit", "user-1", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("history: status %d: %s", w.Code, w.Body.String())
		}

		var resp dto.HistoryResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.Total != 1 || len(resp.Items) != 1 {
			t.Fatalf("debit history total = %d items = %d, want 1/1", resp.Total, len(resp.Items))
		}

		if resp.Items[0].Amount != "5.00" {
			t.Errorf("debit amount = %s, want 5.00", resp.Items[0].Amount)
		}
	})
}
