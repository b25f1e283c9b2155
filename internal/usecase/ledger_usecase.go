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

// LedgerUseCase implements the double-entry bookkeeping engine.
type LedgerUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	txnRepo     TransactionRepository
	idGen       IDGenerator
	metrics     *metrics.Metrics
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	txnRepo TransactionRepository,
	idGen IDGenerator,
	metrics *metrics.Metrics,
) *LedgerUseCase {
	return &LedgerUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		txnRepo:     txnRepo,
		idGen:       idGen,
		metrics:     metrics,
	}
}

// CreateAccountInput describes a new ledger account.
type CreateAccountInput struct {
	Code            string
	Name            string
	Type            domain.AccountType
	Currency        string
	IsSystemAccount bool
}

// CreateAccount creates a ledger account. The existence check and insert run
// inside one transaction so a duplicate code surfaces as a clean conflict
// instead of a bare constraint violation.
func (uc *LedgerUseCase) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	if input.Currency == "" {
		input.Currency = "USD"
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:              uc.idGen.Generate(),
		Code:            input.Code,
		Name:            input.Name,
		Type:            input.Type,
		NormalBalance:   domain.NormalBalanceFor(input.Type),
		Currency:        input.Currency,
		IsSystemAccount: input.IsSystemAccount,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := account.Validate(); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	_, err = uc.accountRepo.GetByCodeTx(txCtx, tx, input.Code)
	if err == nil {
		return nil, domain.ErrAccountCodeExists
	}

	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	if err := uc.accountRepo.Create(txCtx, tx, account); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AccountsCreated.Inc()
	}

	return account, nil
}

// EntryInput is one leg of a transaction to post.
type EntryInput struct {
	AccountID string
	EntryType domain.EntryType
	Amount    decimal.Decimal
	Currency  string
}

// CreateTransactionInput describes a balanced transaction to post.
type CreateTransactionInput struct {
	Date          time.Time
	Type          string
	Description   string
	ReferenceType string
	ReferenceID   string
	Entries       []EntryInput
}

// CreateTransaction validates and posts a balanced transaction. The header
// and all entries commit as one unit of work.
func (uc *LedgerUseCase) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*domain.Transaction, []*domain.Entry, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	txn, entries, err := uc.CreateTransactionTx(txCtx, tx, input)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, nil, err
	}

	return txn, entries, nil
}

// CreateTransactionTx posts a transaction inside a caller-owned unit of work.
// The wallet service uses this to commit ledger mirroring atomically with
// wallet balance updates.
func (uc *LedgerUseCase) CreateTransactionTx(ctx context.Context, tx Transaction, input CreateTransactionInput) (*domain.Transaction, []*domain.Entry, error) {
	now := time.Now().UTC()

	date := input.Date
	if date.IsZero() {
		date = now
	}

	txnID := uc.idGen.Generate()
	entries := make([]*domain.Entry, 0, len(input.Entries))

	for _, ei := range input.Entries {
		currency := ei.Currency
		if currency == "" {
			currency = "USD"
		}

		entries = append(entries, &domain.Entry{
			ID:            uc.idGen.Generate(),
			TransactionID: txnID,
			AccountID:     ei.AccountID,
			EntryType:     ei.EntryType,
			Amount:        ei.Amount,
			Currency:      currency,
			CreatedAt:     now,
		})
	}

	if err := domain.ValidateBalanced(entries); err != nil {
		if uc.metrics != nil && errors.Is(err, domain.ErrImbalancedTransaction) {
			uc.metrics.ImbalancedRejections.Inc()
		}

		return nil, nil, err
	}

	txn := &domain.Transaction{
		ID:                txnID,
		TransactionNumber: fmt.Sprintf("TXN-%s", txnID),
		Date:              date,
		Type:              input.Type,
		Status:            domain.TransactionStatusPosted,
		Description:       input.Description,
		ReferenceType:     input.ReferenceType,
		ReferenceID:       input.ReferenceID,
		CreatedAt:         now,
	}

	if err := uc.txnRepo.CreateHeader(ctx, tx, txn); err != nil {
		return nil, nil, err
	}

	for _, entry := range entries {
		if err := uc.txnRepo.CreateEntry(ctx, tx, entry); err != nil {
			return nil, nil, err
		}
	}

	if uc.metrics != nil {
		uc.metrics.TransactionsPosted.Inc()
	}

	return txn, entries, nil
}

// GetAccountBalance sums entries for the account up to the cutoff applying
// the normal-balance sign convention. Voided transactions are excluded.
func (uc *LedgerUseCase) GetAccountBalance(ctx context.Context, accountID string, asOf *time.Time) (decimal.Decimal, error) {
	account, err := uc.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	debits, credits, err := uc.txnRepo.EntrySums(ctx, accountID, asOf)
	if err != nil {
		return decimal.Zero, err
	}

	return domain.SignedBalance(account.NormalBalance, debits, credits), nil
}

// GetAccountBalanceByCode resolves an account by its chart code.
func (uc *LedgerUseCase) GetAccountBalanceByCode(ctx context.Context, code string, asOf *time.Time) (*domain.Account, decimal.Decimal, error) {
	account, err := uc.accountRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, decimal.Zero, err
	}

	balance, err := uc.GetAccountBalance(ctx, account.ID, asOf)
	if err != nil {
		return nil, decimal.Zero, err
	}

	return account, balance, nil
}

// TrialBalanceRow is one account line in a trial balance report.
type TrialBalanceRow struct {
	AccountID string
	Code      string
	Name      string
	Type      domain.AccountType
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// TrialBalance is the full report.
type TrialBalance struct {
	AsOf         time.Time
	Rows         []TrialBalanceRow
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
	IsBalanced   bool
}

// GetTrialBalance splits every active account's signed balance into debit and
// credit columns. A negative signed balance flips to the opposite column for
// presentation.
func (uc *LedgerUseCase) GetTrialBalance(ctx context.Context, asOf time.Time) (*TrialBalance, error) {
	accounts, err := uc.accountRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	tb := &TrialBalance{
		AsOf:         asOf,
		Rows:         make([]TrialBalanceRow, 0, len(accounts)),
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
	}

	for _, account := range accounts {
		debits, credits, err := uc.txnRepo.EntrySums(ctx, account.ID, &asOf)
		if err != nil {
			return nil, err
		}

		signed := domain.SignedBalance(account.NormalBalance, debits, credits)

		row := TrialBalanceRow{
			AccountID: account.ID,
			Code:      account.Code,
			Name:      account.Name,
			Type:      account.Type,
			Debit:     decimal.Zero,
			Credit:    decimal.Zero,
		}

		debitColumn := account.NormalBalance == domain.NormalBalanceDebit
		if signed.IsNegative() {
			debitColumn = !debitColumn
			signed = signed.Abs()
		}

		if debitColumn {
			row.Debit = signed
		} else {
			row.Credit = signed
		}

		tb.TotalDebits = tb.TotalDebits.Add(row.Debit)
		tb.TotalCredits = tb.TotalCredits.Add(row.Credit)
		tb.Rows = append(tb.Rows, row)
	}

	tb.IsBalanced = tb.TotalDebits.Sub(tb.TotalCredits).Abs().LessThan(domain.BalanceTolerance)

	return tb, nil
}

// VoidTransaction flips the transaction status to voided. Entries stay in
// place; balance queries exclude them through the status filter. No reversing
// transaction is generated.
func (uc *LedgerUseCase) VoidTransaction(ctx context.Context, id, voidedBy, reason string) error {
	txn, err := uc.txnRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if txn.Status == domain.TransactionStatusVoided {
		return domain.ErrTransactionVoided
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.txnRepo.MarkVoided(txCtx, tx, id, voidedBy, reason, time.Now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.TransactionsVoided.Inc()
	}

	return nil
}

// GetTransaction returns a transaction with its entries.
func (uc *LedgerUseCase) GetTransaction(ctx context.Context, id string) (*domain.Transaction, []*domain.Entry, error) {
	txn, err := uc.txnRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	entries, err := uc.txnRepo.GetEntries(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	return txn, entries, nil
}

// GetAccountLedger lists entries for the account identified by code.
func (uc *LedgerUseCase) GetAccountLedger(ctx context.Context, code string, limit, offset int) (*domain.Account, []*domain.Entry, int64, error) {
	account, err := uc.accountRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, nil, 0, err
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	entries, total, err := uc.txnRepo.ListEntriesByAccount(ctx, account.ID, limit, offset)
	if err != nil {
		return nil, nil, 0, err
	}

	return account, entries, total, nil
}

// systemAccountSpec is one row of the fixed chart of accounts.
type systemAccountSpec struct {
	Code string
	Name string
	Type domain.AccountType
}

var systemAccounts = []systemAccountSpec{
	{AccountCodeCash, "Cash", domain.AccountTypeAsset},
	{AccountCodeGatewayClearing, "Payment Gateway Clearing", domain.AccountTypeAsset},
	{AccountCodeReceivable, "Accounts Receivable", domain.AccountTypeAsset},
	{AccountCodeUserWalletAsset, "User Wallet Funds", domain.AccountTypeAsset},
	{AccountCodeUserCredits, "User Credit Liability", domain.AccountTypeLiability},
	{AccountCodeUnearnedRevenue, "Unearned Revenue", domain.AccountTypeLiability},
	{AccountCodeRetainedEarnings, "Retained Earnings", domain.AccountTypeEquity},
	{AccountCodeAPIRevenue, "API Usage Revenue", domain.AccountTypeRevenue},
	{AccountCodePlatformRevenue, "Platform Fee Revenue", domain.AccountTypeRevenue},
	{AccountCodeProviderExpense, "Provider Payout Expense", domain.AccountTypeExpense},
	{AccountCodeOperatingExpense, "Operating Expense", domain.AccountTypeExpense},
}

// InitializeSystemAccounts bootstraps the fixed chart of accounts. Codes that
// already exist are skipped, so repeated calls are safe.
func (uc *LedgerUseCase) InitializeSystemAccounts(ctx context.Context) ([]*domain.Account, error) {
	created := make([]*domain.Account, 0, len(systemAccounts))

	for _, spec := range systemAccounts {
		account, err := uc.CreateAccount(ctx, CreateAccountInput{
			Code:            spec.Code,
			Name:            spec.Name,
			Type:            spec.Type,
			Currency:        "USD",
			IsSystemAccount: true,
		})
		if err != nil {
			if errors.Is(err, domain.ErrAccountCodeExists) {
				continue
			}

			return nil, err
		}

		created = append(created, account)
	}

	return created, nil
}
