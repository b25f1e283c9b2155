package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/usecase"
	"github.com/veloapi/metering/internal/usecase/mocks"
)

type walletFixture struct {
	wallet       *usecase.WalletUseCase
	ledger       *usecase.LedgerUseCase
	walletTxRepo *mocks.MockWalletTransactionRepository
}

func newWalletFixture(t *testing.T) *walletFixture {
	t.Helper()

	accountRepo := mocks.NewMockAccountRepository()
	txnRepo := mocks.NewMockTransactionRepository()
	walletRepo := mocks.NewMockWalletRepository()
	walletTxRepo := mocks.NewMockWalletTransactionRepository()
	txManager := mocks.NewMockTransactionManager()
	idGen := mocks.NewMockIDGenerator()

	ledger := usecase.NewLedgerUseCase(txManager, accountRepo, txnRepo, idGen, nil)
	if _, err := ledger.InitializeSystemAccounts(context.Background()); err != nil {
		t.Fatalf("InitializeSystemAccounts: %v", err)
	}

	wallet := usecase.NewWalletUseCase(txManager, walletRepo, walletTxRepo, accountRepo, ledger, idGen, nil)

	return &walletFixture{wallet: wallet, ledger: ledger, walletTxRepo: walletTxRepo}
}

func (f *walletFixture) fund(t *testing.T, userID, amount string) *domain.Wallet {
	t.Helper()

	w, _, err := f.wallet.AddCredits(context.Background(), usecase.CreditInput{
		UserID:      userID,
		Amount:      decimal.RequireFromString(amount),
		Description: "test funding",
	})
	if err != nil {
		t.Fatalf("AddCredits: %v", err)
	}

	return w
}

func TestCreateWallet(t *testing.T) {
	f := newWalletFixture(t)
	ctx := context.Background()

	w, err := f.wallet.CreateWallet(ctx, usecase.CreateWalletInput{
		UserID:         "user-1",
		InitialBalance: decimal.RequireFromString("100.00"),
	})
	if err != nil {
		t.Fatalf("CreateWallet: %v", err)
	}

	if !w.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("balance = %s, want 100.00", w.Balance)
	}

	if w.LedgerAccountID == "" {
		t.Error("wallet not bound to ledger account")
	}

	// Opening balance posts a balanced ledger transaction.
	_, balance, err := f.ledger.GetAccountBalanceByCode(ctx, usecase.AccountCodeUserWalletAsset, nil)
	if err != nil {
		t.Fatalf("GetAccountBalanceByCode: %v", err)
	}

	if !balance.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("wallet asset balance = %s, want 100.00", balance)
	}

	if _, err := f.wallet.CreateWallet(ctx, usecase.CreateWalletInput{UserID: "user-1"}); !errors.Is(err, domain.ErrWalletExists) {
		t.Errorf("duplicate wallet error = %v, want ErrWalletExists", err)
	}
}

func TestGetOrCreateWallet(t *testing.T) {
	f := newWalletFixture(t)
	ctx := context.Background()

	w, err := f.wallet.GetOrCreateWallet(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateWallet: %v", err)
	}

	if !w.Balance.IsZero() {
		t.Errorf("lazy wallet balance = %s, want 0", w.Balance)
	}

	again, err := f.wallet.GetOrCreateWallet(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateWallet second call: %v", err)
	}

	if again.ID != w.ID {
		t.Errorf("expected same wallet, got %s and %s", w.ID, again.ID)
	}
}

func TestAddDeductCredits_LedgerMirroring(t *testing.T) {
	f := newWalletFixture(t)
	ctx := context.Background()

	f.fund(t, "user-1", "50.00")

	w, wt, err := f.wallet.DeductCredits(ctx, usecase.DeductInput{
		UserID:      "user-1",
		Amount:      decimal.RequireFromString("20.00"),
		Description: "api usage",
	})
	if err != nil {
		t.Fatalf("DeductCredits: %v", err)
	}

	if !w.Balance.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("balance = %s, want 30.00", w.Balance)
	}

	if !wt.BalanceBefore.Equal(decimal.RequireFromString("50.00")) || !wt.BalanceAfter.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("snapshot = %s -> %s, want 50.00 -> 30.00", wt.BalanceBefore, wt.BalanceAfter)
	}

	if wt.LedgerTransactionID == nil {
		t.Fatal("wallet transaction not linked to ledger transaction")
	}

	// Asset and liability both net to the wallet balance.
	_, assetBalance, err := f.ledger.GetAccountBalanceByCode(ctx, usecase.AccountCodeUserWalletAsset, nil)
	if err != nil {
		t.Fatalf("asset balance: %v", err)
	}

	_, liabilityBalance, err := f.ledger.GetAccountBalanceByCode(ctx, usecase.AccountCodeUserCredits, nil)
	if err != nil {
		t.Fatalf("liability balance: %v", err)
	}

	if !assetBalance.Equal(w.Balance) || !liabilityBalance.Equal(w.Balance) {
		t.Errorf("ledger balances asset=%s liability=%s, want both %s", assetBalance, liabilityBalance, w.Balance)
	}

	tb, err := f.ledger.GetTrialBalance(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("GetTrialBalance: %v", err)
	}

	if !tb.IsBalanced {
		t.Error("trial balance should balance after wallet activity")
	}
}

func TestDeductCredits_Insufficient(t *testing.T) {
	f := newWalletFixture(t)
	ctx := context.Background()

	f.fund(t, "user-1", "50.00")

	_, _, err := f.wallet.DeductCredits(ctx, usecase.DeductInput{
		UserID: "user-1",
		Amount: decimal.RequireFromString("60.00"),
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("error = %v, want ErrInsufficientBalance", err)
	}

	w, err := f.wallet.GetWallet(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}

	if !w.Balance.Equal(decimal.RequireFromString("50.00")) {
		t.Errorf("balance after failed deduct = %s, want 50.00", w.Balance)
	}
}

func TestLockUnlockCredits(t *testing.T) {
	f := newWalletFixture(t)
	ctx := context.Background()

	f.fund(t, "user-1", "50.00")

	w, err := f.wallet.LockCredits(ctx, "user-1", decimal.RequireFromString("30.00"), "pending charge")
	if err != nil {
		t.Fatalf("LockCredits: %v", err)
	}

	if !w.LockedBalance.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("locked = %s, want 30.00", w.LockedBalance)
	}

	if !w.Available().Equal(decimal.RequireFromString("20.00")) {
		t.Errorf("available = %s, want 20.00", w.Available())
	}

	// Locked funds are not spendable.
	_, _, err = f.wallet.DeductCredits(ctx, usecase.DeductInput{
		UserID: "user-1",
		Amount: decimal.RequireFromString("25.00"),
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("deduct beyond available = %v, want ErrInsufficientBalance", err)
	}

	if _, err := f.wallet.UnlockCredits(ctx, "user-1", decimal.RequireFromString("40.00")); !errors.Is(err, domain.ErrInsufficientLocked) {
		t.Errorf("unlock beyond locked = %v, want ErrInsufficientLocked", err)
	}

	w, err = f.wallet.UnlockCredits(ctx, "user-1", decimal.RequireFromString("30.00"))
	if err != nil {
		t.Fatalf("UnlockCredits: %v", err)
	}

	if !w.LockedBalance.IsZero() {
		t.Errorf("locked after unlock = %s, want 0", w.LockedBalance)
	}
}

func TestDeductCredits_DuplicateReference(t *testing.T) {
	f := newWalletFixture(t)
	ctx := context.Background()

	f.fund(t, "user-1", "10.00")

	input := usecase.DeductInput{
		UserID:        "user-1",
		Amount:        decimal.RequireFromString("1.00"),
		Description:   "usage event",
		ReferenceType: usecase.ReferenceTypeUsageEvent,
		ReferenceID:   "evt-1",
	}

	if _, _, err := f.wallet.DeductCredits(ctx, input); err != nil {
		t.Fatalf("first deduct: %v", err)
	}

	// Replaying the same event must not double-deduct.
	_, _, err := f.wallet.DeductCredits(ctx, input)
	if !errors.Is(err, domain.ErrDuplicateReference) {
		t.Fatalf("replay error = %v, want ErrDuplicateReference", err)
	}

	w, err := f.wallet.GetWallet(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}

	if !w.Balance.Equal(decimal.RequireFromString("9.00")) {
		t.Errorf("balance = %s, want 9.00 (deducted exactly once)", w.Balance)
	}
}

func TestGetTransactionHistory(t *testing.T) {
	f := newWalletFixture(t)
	ctx := context.Background()

	f.fund(t, "user-1", "100.00")

	for i := 0; i < 3; i++ {
		if _, _, err := f.wallet.DeductCredits(ctx, usecase.DeductInput{
			UserID: "user-1",
			Amount: decimal.RequireFromString("1.00"),
		}); err != nil {
			t.Fatalf("DeductCredits: %v", err)
		}
	}

	page, err := f.wallet.GetTransactionHistory(ctx, "user-1", 1, 2, domain.HistoryFilter{})
	if err != nil {
		t.Fatalf("GetTransactionHistory: %v", err)
	}

	if page.Total != 4 {
		t.Errorf("total = %d, want 4", page.Total)
	}

	if len(page.Items) != 2 {
		t.Errorf("page items = %d, want 2", len(page.Items))
	}

	if page.TotalPages != 2 {
		t.Errorf("total pages = %d, want 2", page.TotalPages)
	}

	debitsOnly, err := f.wallet.GetTransactionHistory(ctx, "user-1", 1, 10, domain.HistoryFilter{Type: domain.WalletTransactionDebit})
	if err != nil {
		t.Fatalf("filtered history: %v", err)
	}

	if debitsOnly.Total != 3 {
		t.Errorf("debit total = %d, want 3", debitsOnly.Total)
	}
}
