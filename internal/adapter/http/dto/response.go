package dto

import (
	"time"

	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/usecase"
)

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WalletResponse is the wallet representation.
type WalletResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Balance       string    `json:"balance"`
	LockedBalance string    `json:"locked_balance"`
	Available     string    `json:"available"`
	Currency      string    `json:"currency"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WalletFromDomain converts a domain wallet to its response form.
func WalletFromDomain(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:            w.ID,
		UserID:        w.UserID,
		Balance:       w.Balance.StringFixed(2),
		LockedBalance: w.LockedBalance.StringFixed(2),
		Available:     w.Available().StringFixed(2),
		Currency:      w.Currency,
		UpdatedAt:     w.UpdatedAt,
	}
}

// WalletTransactionResponse is one wallet history line.
type WalletTransactionResponse struct {
	ID                  string    `json:"id"`
	Type                string    `json:"type"`
	Amount              string    `json:"amount"`
	BalanceBefore       string    `json:"balance_before"`
	BalanceAfter        string    `json:"balance_after"`
	Status              string    `json:"status"`
	Description         string    `json:"description,omitempty"`
	ReferenceType       string    `json:"reference_type,omitempty"`
	ReferenceID         string    `json:"reference_id,omitempty"`
	LedgerTransactionID *string   `json:"ledger_transaction_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// WalletTransactionFromDomain converts one wallet transaction.
func WalletTransactionFromDomain(wt *domain.WalletTransaction) WalletTransactionResponse {
	return WalletTransactionResponse{
		ID:                  wt.ID,
		Type:                string(wt.Type),
		Amount:              wt.Amount.StringFixed(2),
		BalanceBefore:       wt.BalanceBefore.StringFixed(2),
		BalanceAfter:        wt.BalanceAfter.StringFixed(2),
		Status:              wt.Status,
		Description:         wt.Description,
		ReferenceType:       wt.ReferenceType,
		ReferenceID:         wt.ReferenceID,
		LedgerTransactionID: wt.LedgerTransactionID,
		CreatedAt:           wt.CreatedAt,
	}
}

// HistoryResponse is one page of wallet history.
type HistoryResponse struct {
	Items      []WalletTransactionResponse `json:"items"`
	Total      int64                       `json:"total"`
	Page       int                         `json:"page"`
	Limit      int                         `json:"limit"`
	TotalPages int                         `json:"total_pages"`
}

// HistoryFromDomain converts a history page.
func HistoryFromDomain(page *usecase.HistoryPage) HistoryResponse {
	items := make([]WalletTransactionResponse, 0, len(page.Items))
	for _, wt := range page.Items {
		items = append(items, WalletTransactionFromDomain(wt))
	}

	return HistoryResponse{
		Items:      items,
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
	}
}

// TrialBalanceRowResponse is one account line of the trial balance.
type TrialBalanceRowResponse struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Debit  string `json:"debit"`
	Credit string `json:"credit"`
}

// TrialBalanceResponse is the trial balance report.
type TrialBalanceResponse struct {
	AsOf         time.Time                 `json:"as_of"`
	Rows         []TrialBalanceRowResponse `json:"rows"`
	TotalDebits  string                    `json:"total_debits"`
	TotalCredits string                    `json:"total_credits"`
	IsBalanced   bool                      `json:"is_balanced"`
}

// TrialBalanceFromDomain converts a trial balance report.
func TrialBalanceFromDomain(tb *usecase.TrialBalance) TrialBalanceResponse {
	rows := make([]TrialBalanceRowResponse, 0, len(tb.Rows))
	for _, row := range tb.Rows {
		rows = append(rows, TrialBalanceRowResponse{
			Code:   row.Code,
			Name:   row.Name,
			Type:   string(row.Type),
			Debit:  row.Debit.StringFixed(2),
			Credit: row.Credit.StringFixed(2),
		})
	}

	return TrialBalanceResponse{
		AsOf:         tb.AsOf,
		Rows:         rows,
		TotalDebits:  tb.TotalDebits.StringFixed(2),
		TotalCredits: tb.TotalCredits.StringFixed(2),
		IsBalanced:   tb.IsBalanced,
	}
}

// AccountBalanceResponse is a single account balance.
type AccountBalanceResponse struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Balance string `json:"balance"`
}

// EntryResponse is one ledger entry line.
type EntryResponse struct {
	ID            string    `json:"id"`
	TransactionID string    `json:"transaction_id"`
	EntryType     string    `json:"entry_type"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}

// AccountLedgerResponse is one page of an account's entries.
type AccountLedgerResponse struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Entries []EntryResponse `json:"entries"`
	Total   int64           `json:"total"`
}

// EntriesFromDomain converts ledger entries.
func EntriesFromDomain(entries []*domain.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResponse{
			ID:            e.ID,
			TransactionID: e.TransactionID,
			EntryType:     string(e.EntryType),
			Amount:        e.Amount.StringFixed(2),
			Currency:      e.Currency,
			CreatedAt:     e.CreatedAt,
		})
	}

	return out
}

// InitializeAccountsResponse reports the bootstrap result.
type InitializeAccountsResponse struct {
	Created []string `json:"created"`
}
