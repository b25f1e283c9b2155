package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/infrastructure/metrics"
)

// WalletUseCase implements the per-user credit wallet on top of the ledger
// engine. Every balance mutation locks the wallet row, updates the balance,
// appends an audit record and posts the mirrored ledger transaction inside a
// single database transaction.
type WalletUseCase struct {
	txManager    TransactionManager
	walletRepo   WalletRepository
	walletTxRepo WalletTransactionRepository
	accountRepo  AccountRepository
	ledger       *LedgerUseCase
	idGen        IDGenerator
	metrics      *metrics.Metrics
	retrier      Retryer
}

// NewWalletUseCase creates a new WalletUseCase.
func NewWalletUseCase(
	txManager TransactionManager,
	walletRepo WalletRepository,
	walletTxRepo WalletTransactionRepository,
	accountRepo AccountRepository,
	ledger *LedgerUseCase,
	idGen IDGenerator,
	metrics *metrics.Metrics,
) *WalletUseCase {
	return &WalletUseCase{
		txManager:    txManager,
		walletRepo:   walletRepo,
		walletTxRepo: walletTxRepo,
		accountRepo:  accountRepo,
		ledger:       ledger,
		idGen:        idGen,
		metrics:      metrics,
	}
}

// WithRetrier makes credit and debit mutations retry on transient database
// races. Deduplicated and validation failures are never retried.
func (uc *WalletUseCase) WithRetrier(r Retryer) *WalletUseCase {
	uc.retrier = r
	return uc
}

func (uc *WalletUseCase) withRetry(ctx context.Context, op func() error) error {
	if uc.retrier == nil {
		return op()
	}

	return uc.retrier.Retry(ctx, op)
}

// CreateWalletInput describes a new wallet.
type CreateWalletInput struct {
	UserID         string
	Currency       string
	InitialBalance decimal.Decimal
}

// CreateWallet creates the single wallet for a user. A non-zero initial
// balance posts a balanced opening transaction (debit wallet asset, credit
// revenue).
func (uc *WalletUseCase) CreateWallet(ctx context.Context, input CreateWalletInput) (*domain.Wallet, error) {
	if input.UserID == "" {
		return nil, domain.ErrValidation
	}

	if input.Currency == "" {
		input.Currency = "USD"
	}

	if input.InitialBalance.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}

	walletAccount, err := uc.accountRepo.GetByCode(ctx, AccountCodeUserWalletAsset)
	if err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if _, err := uc.walletRepo.GetByUserID(txCtx, input.UserID); err == nil {
		return nil, domain.ErrWalletExists
	} else if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	wallet := &domain.Wallet{
		ID:              uc.idGen.Generate(),
		UserID:          input.UserID,
		Balance:         input.InitialBalance,
		LockedBalance:   decimal.Zero,
		Currency:        input.Currency,
		LedgerAccountID: walletAccount.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := uc.walletRepo.Create(txCtx, tx, wallet); err != nil {
		return nil, err
	}

	if input.InitialBalance.IsPositive() {
		revenueAccount, err := uc.accountRepo.GetByCode(txCtx, AccountCodeAPIRevenue)
		if err != nil {
			return nil, err
		}

		txn, _, err := uc.ledger.CreateTransactionTx(txCtx, tx, CreateTransactionInput{
			Type:          "wallet_opening",
			Description:   fmt.Sprintf("opening balance for user %s", input.UserID),
			ReferenceType: ReferenceTypeInitialBalance,
			ReferenceID:   wallet.ID,
			Entries: []EntryInput{
				{AccountID: walletAccount.ID, EntryType: domain.EntryTypeDebit, Amount: input.InitialBalance, Currency: input.Currency},
				{AccountID: revenueAccount.ID, EntryType: domain.EntryTypeCredit, Amount: input.InitialBalance, Currency: input.Currency},
			},
		})
		if err != nil {
			return nil, err
		}

		wt := &domain.WalletTransaction{
			ID:                  uc.idGen.Generate(),
			WalletID:            wallet.ID,
			Type:                domain.WalletTransactionCredit,
			Amount:              input.InitialBalance,
			BalanceBefore:       decimal.Zero,
			BalanceAfter:        input.InitialBalance,
			Status:              "completed",
			Description:         "opening balance",
			ReferenceType:       ReferenceTypeInitialBalance,
			ReferenceID:         wallet.ID,
			LedgerTransactionID: &txn.ID,
			CreatedAt:           now,
		}
		if err := uc.walletTxRepo.Create(txCtx, tx, wt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.WalletsCreated.Inc()
	}

	return wallet, nil
}

// GetWallet returns the user's wallet.
func (uc *WalletUseCase) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	return uc.walletRepo.GetByUserID(ctx, userID)
}

// GetOrCreateWallet returns the user's wallet, lazily creating an empty one
// on first access.
func (uc *WalletUseCase) GetOrCreateWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	wallet, err := uc.walletRepo.GetByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}

	if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}

	wallet, err = uc.CreateWallet(ctx, CreateWalletInput{UserID: userID, InitialBalance: decimal.Zero})
	if errors.Is(err, domain.ErrWalletExists) {
		// Lost the race to a concurrent creator.
		return uc.walletRepo.GetByUserID(ctx, userID)
	}

	return wallet, err
}

// CreditInput describes a wallet credit or refund.
type CreditInput struct {
	UserID        string
	Amount        decimal.Decimal
	Description   string
	ReferenceType string
	ReferenceID   string
}

// AddCredits adds funds to the wallet. Mirrored in the ledger as debit user
// wallet asset / credit user credit liability.
func (uc *WalletUseCase) AddCredits(ctx context.Context, input CreditInput) (*domain.Wallet, *domain.WalletTransaction, error) {
	return uc.credit(ctx, input, domain.WalletTransactionCredit)
}

// RefundCredits returns previously deducted funds to the wallet.
func (uc *WalletUseCase) RefundCredits(ctx context.Context, input CreditInput) (*domain.Wallet, *domain.WalletTransaction, error) {
	return uc.credit(ctx, input, domain.WalletTransactionRefund)
}

func (uc *WalletUseCase) credit(ctx context.Context, input CreditInput, txType domain.WalletTransactionType) (*domain.Wallet, *domain.WalletTransaction, error) {
	var (
		wallet *domain.Wallet
		wt     *domain.WalletTransaction
	)

	err := uc.withRetry(ctx, func() error {
		var err error
		wallet, wt, err = uc.creditOnce(ctx, input, txType)
		return err
	})

	return wallet, wt, err
}

func (uc *WalletUseCase) creditOnce(ctx context.Context, input CreditInput, txType domain.WalletTransactionType) (*domain.Wallet, *domain.WalletTransaction, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, domain.ErrInvalidAmount
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	wallet, err := uc.walletRepo.GetByUserIDForUpdate(txCtx, tx, input.UserID)
	if err != nil {
		return nil, nil, err
	}

	if err := uc.checkReference(txCtx, tx, input.ReferenceType, input.ReferenceID); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	balanceBefore := wallet.Balance
	balanceAfter := balanceBefore.Add(input.Amount)

	if err := uc.walletRepo.UpdateBalances(txCtx, tx, wallet.ID, balanceAfter, wallet.LockedBalance, now); err != nil {
		return nil, nil, err
	}

	txn, err := uc.mirrorLedger(txCtx, tx, wallet, input.Amount, txType, input.Description, input.ReferenceType, input.ReferenceID)
	if err != nil {
		return nil, nil, err
	}

	wt := &domain.WalletTransaction{
		ID:                  uc.idGen.Generate(),
		WalletID:            wallet.ID,
		Type:                txType,
		Amount:              input.Amount,
		BalanceBefore:       balanceBefore,
		BalanceAfter:        balanceAfter,
		Status:              "completed",
		Description:         input.Description,
		ReferenceType:       input.ReferenceType,
		ReferenceID:         input.ReferenceID,
		LedgerTransactionID: &txn.ID,
		CreatedAt:           now,
	}
	if err := uc.walletTxRepo.Create(txCtx, tx, wt); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, nil, err
	}

	wallet.Balance = balanceAfter
	wallet.UpdatedAt = now

	if uc.metrics != nil {
		uc.metrics.CreditsAdded.Observe(amountFloat(input.Amount))
	}

	return wallet, wt, nil
}

// DeductInput describes a wallet debit.
type DeductInput struct {
	UserID        string
	Amount        decimal.Decimal
	Description   string
	ReferenceType string
	ReferenceID   string
}

// DeductCredits removes funds from the wallet's available balance. Fails with
// ErrInsufficientBalance when amount exceeds balance minus locked funds, and
// with ErrDuplicateReference when the reference was already processed (the
// idempotency guard for at-least-once event delivery). Mirrored in the ledger
// as debit user credit liability / credit user wallet asset.
func (uc *WalletUseCase) DeductCredits(ctx context.Context, input DeductInput) (*domain.Wallet, *domain.WalletTransaction, error) {
	var (
		wallet *domain.Wallet
		wt     *domain.WalletTransaction
	)

	err := uc.withRetry(ctx, func() error {
		var err error
		wallet, wt, err = uc.deductOnce(ctx, input)
		return err
	})

	return wallet, wt, err
}

func (uc *WalletUseCase) deductOnce(ctx context.Context, input DeductInput) (*domain.Wallet, *domain.WalletTransaction, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, domain.ErrInvalidAmount
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	wallet, err := uc.walletRepo.GetByUserIDForUpdate(txCtx, tx, input.UserID)
	if err != nil {
		return nil, nil, err
	}

	if err := uc.checkReference(txCtx, tx, input.ReferenceType, input.ReferenceID); err != nil {
		return nil, nil, err
	}

	if err := wallet.ValidateDeduct(input.Amount); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	balanceBefore := wallet.Balance
	balanceAfter := balanceBefore.Sub(input.Amount)

	if err := uc.walletRepo.UpdateBalances(txCtx, tx, wallet.ID, balanceAfter, wallet.LockedBalance, now); err != nil {
		return nil, nil, err
	}

	txn, err := uc.mirrorLedger(txCtx, tx, wallet, input.Amount, domain.WalletTransactionDebit, input.Description, input.ReferenceType, input.ReferenceID)
	if err != nil {
		return nil, nil, err
	}

	wt := &domain.WalletTransaction{
		ID:                  uc.idGen.Generate(),
		WalletID:            wallet.ID,
		Type:                domain.WalletTransactionDebit,
		Amount:              input.Amount,
		BalanceBefore:       balanceBefore,
		BalanceAfter:        balanceAfter,
		Status:              "completed",
		Description:         input.Description,
		ReferenceType:       input.ReferenceType,
		ReferenceID:         input.ReferenceID,
		LedgerTransactionID: &txn.ID,
		CreatedAt:           now,
	}
	if err := uc.walletTxRepo.Create(txCtx, tx, wt); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, nil, err
	}

	wallet.Balance = balanceAfter
	wallet.UpdatedAt = now

	if uc.metrics != nil {
		uc.metrics.CreditsDeducted.Observe(amountFloat(input.Amount))
	}

	return wallet, wt, nil
}

// LockCredits reserves funds against a pending operation. Total balance is
// unchanged; the locked amount is excluded from available spending power.
func (uc *WalletUseCase) LockCredits(ctx context.Context, userID string, amount decimal.Decimal, description string) (*domain.Wallet, error) {
	return uc.adjustLock(ctx, userID, amount, description, true)
}

// UnlockCredits releases previously locked funds.
func (uc *WalletUseCase) UnlockCredits(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Wallet, error) {
	return uc.adjustLock(ctx, userID, amount, "unlock credits", false)
}

func (uc *WalletUseCase) adjustLock(ctx context.Context, userID string, amount decimal.Decimal, description string, lock bool) (*domain.Wallet, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	wallet, err := uc.walletRepo.GetByUserIDForUpdate(txCtx, tx, userID)
	if err != nil {
		return nil, err
	}

	var newLocked decimal.Decimal
	if lock {
		if err := wallet.ValidateLock(amount); err != nil {
			return nil, err
		}

		newLocked = wallet.LockedBalance.Add(amount)
	} else {
		if err := wallet.ValidateUnlock(amount); err != nil {
			return nil, err
		}

		newLocked = wallet.LockedBalance.Sub(amount)
	}

	now := time.Now().UTC()
	if err := uc.walletRepo.UpdateBalances(txCtx, tx, wallet.ID, wallet.Balance, newLocked, now); err != nil {
		return nil, err
	}

	// Lock movements do not touch the ledger: total balance is unchanged.
	wt := &domain.WalletTransaction{
		ID:            uc.idGen.Generate(),
		WalletID:      wallet.ID,
		Type:          domain.WalletTransactionAdjustment,
		Amount:        amount,
		BalanceBefore: wallet.Balance,
		BalanceAfter:  wallet.Balance,
		Status:        lockStatus(lock),
		Description:   description,
		CreatedAt:     now,
	}
	if err := uc.walletTxRepo.Create(txCtx, tx, wt); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	wallet.LockedBalance = newLocked
	wallet.UpdatedAt = now

	return wallet, nil
}

func lockStatus(lock bool) string {
	if lock {
		return "locked"
	}

	return "unlocked"
}

// HistoryPage is one page of wallet transaction history.
type HistoryPage struct {
	Items      []*domain.WalletTransaction
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// GetTransactionHistory returns paginated wallet history, filterable by date
// range and type.
func (uc *WalletUseCase) GetTransactionHistory(ctx context.Context, userID string, page, limit int, filter domain.HistoryFilter) (*HistoryPage, error) {
	wallet, err := uc.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if page <= 0 {
		page = 1
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	items, total, err := uc.walletTxRepo.ListByWallet(ctx, wallet.ID, filter, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	totalPages := int(total) / limit
	if int(total)%limit != 0 {
		totalPages++
	}

	return &HistoryPage{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

// checkReference enforces the dedupe guard inside the wallet row lock. The
// unique index on (reference_type, reference_id) backs it at the schema level.
func (uc *WalletUseCase) checkReference(ctx context.Context, tx Transaction, referenceType, referenceID string) error {
	if referenceType == "" || referenceID == "" {
		return nil
	}

	exists, err := uc.walletTxRepo.ExistsByReference(ctx, tx, referenceType, referenceID)
	if err != nil {
		return err
	}

	if exists {
		return domain.ErrDuplicateReference
	}

	return nil
}

// mirrorLedger posts the balanced ledger transaction for a wallet mutation.
// Credits and refunds debit the wallet asset account and credit the user
// credit liability; debits reverse the pair.
func (uc *WalletUseCase) mirrorLedger(
	ctx context.Context,
	tx Transaction,
	wallet *domain.Wallet,
	amount decimal.Decimal,
	txType domain.WalletTransactionType,
	description, referenceType, referenceID string,
) (*domain.Transaction, error) {
	liabilityAccount, err := uc.accountRepo.GetByCode(ctx, AccountCodeUserCredits)
	if err != nil {
		return nil, err
	}

	var entries []EntryInput

	switch txType {
	case domain.WalletTransactionDebit:
		entries = []EntryInput{
			{AccountID: liabilityAccount.ID, EntryType: domain.EntryTypeDebit, Amount: amount, Currency: wallet.Currency},
			{AccountID: wallet.LedgerAccountID, EntryType: domain.EntryTypeCredit, Amount: amount, Currency: wallet.Currency},
		}
	default:
		entries = []EntryInput{
			{AccountID: wallet.LedgerAccountID, EntryType: domain.EntryTypeDebit, Amount: amount, Currency: wallet.Currency},
			{AccountID: liabilityAccount.ID, EntryType: domain.EntryTypeCredit, Amount: amount, Currency: wallet.Currency},
		}
	}

	txn, _, err := uc.ledger.CreateTransactionTx(ctx, tx, CreateTransactionInput{
		Type:          "wallet_" + string(txType),
		Description:   description,
		ReferenceType: referenceType,
		ReferenceID:   referenceID,
		Entries:       entries,
	})

	return txn, err
}

func amountFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
