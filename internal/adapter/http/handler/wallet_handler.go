package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/adapter/http/dto"
	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/usecase"
)

// WalletService defines the behavior needed by WalletHandler.
type WalletService interface {
	GetOrCreateWallet(ctx context.Context, userID string) (*domain.Wallet, error)
	AddCredits(ctx context.Context, input usecase.CreditInput) (*domain.Wallet, *domain.WalletTransaction, error)
	DeductCredits(ctx context.Context, input usecase.DeductInput) (*domain.Wallet, *domain.WalletTransaction, error)
	LockCredits(ctx context.Context, userID string, amount decimal.Decimal, description string) (*domain.Wallet, error)
	UnlockCredits(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Wallet, error)
	GetTransactionHistory(ctx context.Context, userID string, page, limit int, filter domain.HistoryFilter) (*usecase.HistoryPage, error)
}

// WalletHandler handles wallet-related HTTP requests.
type WalletHandler struct {
	walletUC WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletUC WalletService) *WalletHandler {
	return &WalletHandler{walletUC: walletUC}
}

// Balance returns the caller's wallet, creating an empty one on first access.
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	wallet, err := h.walletUC.GetOrCreateWallet(r.Context(), userID)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to get wallet", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletFromDomain(wallet))
}

// History returns a page of the caller's wallet transactions.
func (h *WalletHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	page := parseIntQuery(r, "page", 1)
	limit := parseIntQuery(r, "limit", 0)

	filter := domain.HistoryFilter{
		Type: domain.WalletTransactionType(r.URL.Query().Get("type")),
	}

	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateFrom = &from
		}
	}

	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.DateTo = &to
		}
	}

	history, err := h.walletUC.GetTransactionHistory(r.Context(), userID, page, limit, filter)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to get history", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.HistoryFromDomain(history))
}

// AddCredits adds funds to the caller's wallet.
func (h *WalletHandler) AddCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req dto.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", req.Amount)
		return
	}

	if _, err := h.walletUC.GetOrCreateWallet(r.Context(), userID); err != nil {
		writeError(w, mapDomainError(err), "failed to get wallet", err.Error())
		return
	}

	wallet, wt, err := h.walletUC.AddCredits(r.Context(), input)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to add credits", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":      dto.WalletFromDomain(wallet),
		"transaction": dto.WalletTransactionFromDomain(wt),
	})
}

// DeductCredits removes funds from the caller's wallet.
func (h *WalletHandler) DeductCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req dto.DeductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", req.Amount)
		return
	}

	wallet, wt, err := h.walletUC.DeductCredits(r.Context(), input)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to deduct credits", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":      dto.WalletFromDomain(wallet),
		"transaction": dto.WalletTransactionFromDomain(wt),
	})
}

// LockCredits reserves part of the caller's balance.
func (h *WalletHandler) LockCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req dto.LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	amount, err := req.ParseAmount()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", req.Amount)
		return
	}

	wallet, err := h.walletUC.LockCredits(r.Context(), userID, amount, req.Description)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to lock credits", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletFromDomain(wallet))
}

// UnlockCredits releases previously locked funds.
func (h *WalletHandler) UnlockCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req dto.LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	amount, err := req.ParseAmount()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", req.Amount)
		return
	}

	wallet, err := h.walletUC.UnlockCredits(r.Context(), userID, amount)
	if err != nil {
		writeError(w, mapDomainError(err), "failed to unlock credits", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletFromDomain(wallet))
}
