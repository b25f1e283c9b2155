package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/adapter/http/dto"
	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/usecase"
)

// LedgerService defines the behavior needed by LedgerHandler.
type LedgerService interface {
	GetTrialBalance(ctx context.Context, asOf time.Time) (*usecase.TrialBalance, error)
	GetAccountBalanceByCode(ctx context.Context, code string, asOf *time.Time) (*domain.Account, decimal.Decimal, error)
	GetAccountLedger(ctx context.Context, code string, limit, offset int) (*domain.Account, []*domain.Entry, int64, error)
	InitializeSystemAccounts(ctx context.Context) ([]*domain.Account, error)
}

// LedgerHandler handles ledger-related HTTP requests.
type LedgerHandler struct {
	ledgerUC LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerUC LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerUC: ledgerUC}
}

// TrialBalance returns the trial balance report as of now, or as of the
// "as_of" query parameter (RFC 3339).
func (h *LedgerHandler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()

	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of", raw)
			return
		}

		asOf = parsed
	}

	tb, err := h.ledgerUC.GetTrialBalance(r.Context(), asOf)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to get trial balance", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.TrialBalanceFromDomain(tb))
}

// AccountBalance returns one account's signed balance by chart code.
func (h *LedgerHandler) AccountBalance(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var asOf *time.Time

	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of", raw)
			return
		}

		asOf = &parsed
	}

	account, balance, err := h.ledgerUC.GetAccountBalanceByCode(r.Context(), code, asOf)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to get balance", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountBalanceResponse{
		Code:    account.Code,
		Name:    account.Name,
		Type:    string(account.Type),
		Balance: balance.StringFixed(2),
	})
}

// AccountLedger returns one page of an account's entries.
func (h *LedgerHandler) AccountLedger(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	limit := parseIntQuery(r, "limit", 20)
	offset := parseIntQuery(r, "offset", 0)

	account, entries, total, err := h.ledgerUC.GetAccountLedger(r.Context(), code, limit, offset)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to get account ledger", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountLedgerResponse{
		Code:    account.Code,
		Name:    account.Name,
		Entries: dto.EntriesFromDomain(entries),
		Total:   total,
	})
}

// InitializeAccounts bootstraps the chart of accounts. Safe to repeat.
func (h *LedgerHandler) InitializeAccounts(w http.ResponseWriter, r *http.Request) {
	created, err := h.ledgerUC.InitializeSystemAccounts(r.Context())
	if err != nil {
		writeError(w, mapDomainError(err), "failed to initialize accounts", err.Error())
		return
	}

	codes := make([]string, 0, len(created))
	for _, account := range created {
		codes = append(codes, account.Code)
	}

	writeJSON(w, http.StatusOK, dto.InitializeAccountsResponse{Created: codes})
}
