package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a ledger transaction.
type TransactionStatus string

const (
	TransactionStatusPosted TransactionStatus = "posted"
	TransactionStatusVoided TransactionStatus = "voided"
)

// EntryType marks which side of the ledger an entry posts to.
type EntryType string

const (
	EntryTypeDebit  EntryType = "debit"
	EntryTypeCredit EntryType = "credit"
)

// BalanceTolerance is the maximum permitted difference between total debits
// and total credits of a transaction.
var BalanceTolerance = decimal.NewFromFloat(0.01)

// Transaction is a double-entry transaction header. It is created atomically
// with its entries and never mutated except for the void status transition.
type Transaction struct {
	ID                string
	TransactionNumber string
	Date              time.Time
	Type              string
	Status            TransactionStatus
	Description       string
	ReferenceType     string
	ReferenceID       string
	VoidedBy          *string
	VoidReason        *string
	VoidedAt          *time.Time
	CreatedAt         time.Time
}

// Entry is a single debit or credit line. Immutable once created.
type Entry struct {
	ID            string
	TransactionID string
	AccountID     string
	EntryType     EntryType
	Amount        decimal.Decimal
	Currency      string
	CreatedAt     time.Time
}

// SumEntries returns total debits and total credits across entries.
func SumEntries(entries []*Entry) (debits, credits decimal.Decimal) {
	debits, credits = decimal.Zero, decimal.Zero

	for _, e := range entries {
		switch e.EntryType {
		case EntryTypeDebit:
			debits = debits.Add(e.Amount)
		case EntryTypeCredit:
			credits = credits.Add(e.Amount)
		}
	}

	return debits, credits
}

// ValidateBalanced enforces the double-entry invariant: total debits must
// equal total credits within BalanceTolerance.
func ValidateBalanced(entries []*Entry) error {
	if len(entries) < 2 {
		return ErrImbalancedTransaction
	}

	for _, e := range entries {
		if e.Amount.LessThanOrEqual(decimal.Zero) {
			return ErrInvalidAmount
		}
	}

	debits, credits := SumEntries(entries)
	if debits.Sub(credits).Abs().GreaterThanOrEqual(BalanceTolerance) {
		return ErrImbalancedTransaction
	}

	return nil
}

// SignedBalance applies the normal-balance sign convention to entry sums.
// Debit-normal accounts grow with debits, credit-normal with credits.
func SignedBalance(normal NormalBalance, debits, credits decimal.Decimal) decimal.Decimal {
	if normal == NormalBalanceDebit {
		return debits.Sub(credits)
	}

	return credits.Sub(debits)
}
