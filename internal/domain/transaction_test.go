package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func entry(t EntryType, amount string) *Entry {
	return &Entry{
		EntryType: t,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "USD",
	}
}

func TestValidateBalanced(t *testing.T) {
	tests := []struct {
		name    string
		entries []*Entry
		wantErr error
	}{
		{
			name: "balanced pair",
			entries: []*Entry{
				entry(EntryTypeDebit, "100.00"),
				entry(EntryTypeCredit, "100.00"),
			},
		},
		{
			name: "balanced split credit",
			entries: []*Entry{
				entry(EntryTypeDebit, "100.00"),
				entry(EntryTypeCredit, "60.00"),
				entry(EntryTypeCredit, "40.00"),
			},
		},
		{
			name: "within tolerance",
			entries: []*Entry{
				entry(EntryTypeDebit, "100.005"),
				entry(EntryTypeCredit, "100.00"),
			},
		},
		{
			name: "imbalanced",
			entries: []*Entry{
				entry(EntryTypeDebit, "100.00"),
				entry(EntryTypeCredit, "99.00"),
			},
			wantErr: ErrImbalancedTransaction,
		},
		{
			name: "exactly at tolerance boundary",
			entries: []*Entry{
				entry(EntryTypeDebit, "100.01"),
				entry(EntryTypeCredit, "100.00"),
			},
			wantErr: ErrImbalancedTransaction,
		},
		{
			name: "single entry",
			entries: []*Entry{
				entry(EntryTypeDebit, "100.00"),
			},
			wantErr: ErrImbalancedTransaction,
		},
		{
			name: "non-positive amount",
			entries: []*Entry{
				entry(EntryTypeDebit, "0"),
				entry(EntryTypeCredit, "0"),
			},
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBalanced(tt.entries)
			if err != tt.wantErr {
				t.Errorf("ValidateBalanced() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSignedBalance(t *testing.T) {
	debits := decimal.RequireFromString("150.00")
	credits := decimal.RequireFromString("50.00")

	got := SignedBalance(NormalBalanceDebit, debits, credits)
	if !got.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("debit-normal balance = %s, want 100.00", got)
	}

	got = SignedBalance(NormalBalanceCredit, debits, credits)
	if !got.Equal(decimal.RequireFromString("-100.00")) {
		t.Errorf("credit-normal balance = %s, want -100.00", got)
	}
}

func TestNormalBalanceFor(t *testing.T) {
	tests := []struct {
		accountType AccountType
		want        NormalBalance
	}{
		{AccountTypeAsset, NormalBalanceDebit},
		{AccountTypeExpense, NormalBalanceDebit},
		{AccountTypeLiability, NormalBalanceCredit},
		{AccountTypeEquity, NormalBalanceCredit},
		{AccountTypeRevenue, NormalBalanceCredit},
	}

	for _, tt := range tests {
		if got := NormalBalanceFor(tt.accountType); got != tt.want {
			t.Errorf("NormalBalanceFor(%s) = %s, want %s", tt.accountType, got, tt.want)
		}
	}
}
