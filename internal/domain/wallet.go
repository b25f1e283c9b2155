package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a per-user stored-value balance backed by a dedicated ledger
// account. Invariant: Balance >= LockedBalance >= 0.
type Wallet struct {
	ID              string
	UserID          string
	Balance         decimal.Decimal
	LockedBalance   decimal.Decimal
	Currency        string
	LedgerAccountID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Available is the spendable part of the balance.
func (w *Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.LockedBalance)
}

// ValidateDeduct checks whether amount can be deducted from available funds.
func (w *Wallet) ValidateDeduct(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if amount.GreaterThan(w.Available()) {
		return ErrInsufficientBalance
	}

	return nil
}

// ValidateLock checks whether amount can be moved to the locked balance.
func (w *Wallet) ValidateLock(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if amount.GreaterThan(w.Available()) {
		return ErrInsufficientBalance
	}

	return nil
}

// ValidateUnlock checks whether amount can be released from the locked balance.
func (w *Wallet) ValidateUnlock(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	if amount.GreaterThan(w.LockedBalance) {
		return ErrInsufficientLocked
	}

	return nil
}

// WalletTransactionType categorizes wallet mutations.
type WalletTransactionType string

const (
	WalletTransactionCredit     WalletTransactionType = "credit"
	WalletTransactionDebit      WalletTransactionType = "debit"
	WalletTransactionRefund     WalletTransactionType = "refund"
	WalletTransactionAdjustment WalletTransactionType = "adjustment"
)

// WalletTransaction is an append-only audit record of a wallet mutation,
// optionally linked to the mirrored ledger transaction.
type WalletTransaction struct {
	ID                  string
	WalletID            string
	Type                WalletTransactionType
	Amount              decimal.Decimal
	BalanceBefore       decimal.Decimal
	BalanceAfter        decimal.Decimal
	Status              string
	Description         string
	ReferenceType       string
	ReferenceID         string
	LedgerTransactionID *string
	CreatedAt           time.Time
}

// HistoryFilter narrows wallet transaction listings.
type HistoryFilter struct {
	Type     WalletTransactionType
	DateFrom *time.Time
	DateTo   *time.Time
}
