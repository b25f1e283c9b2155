package domain

import (
	"time"
)

// AccountType classifies an account in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// NormalBalance is the side on which an account's balance increases.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "debit"
	NormalBalanceCredit NormalBalance = "credit"
)

// NormalBalanceFor returns the conventional normal balance for an account type.
func NormalBalanceFor(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}

// Account is a ledger account. Accounts are created once at bootstrap and are
// immutable afterwards except for the activation flag.
type Account struct {
	ID              string
	Code            string
	Name            string
	Type            AccountType
	NormalBalance   NormalBalance
	Currency        string
	IsSystemAccount bool
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks account fields before persistence.
func (a *Account) Validate() error {
	if a.Code == "" || a.Name == "" {
		return ErrValidation
	}

	switch a.Type {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
	default:
		return ErrValidation
	}

	switch a.NormalBalance {
	case NormalBalanceDebit, NormalBalanceCredit:
	default:
		return ErrValidation
	}

	return nil
}
