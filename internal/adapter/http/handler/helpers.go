package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/veloapi/metering/internal/adapter/http/dto"
	"github.com/veloapi/metering/internal/domain"
)

// userIDHeader carries the authenticated user identity, injected by the
// upstream gateway. Authentication itself happens before requests reach this
// service.
const userIDHeader = "X-User-ID"

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		Message: details,
	})
}

// mapDomainError maps domain errors to HTTP status codes. An imbalanced
// transaction reaching this layer is a programming bug, so it stays a 500.
func mapDomainError(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrKeyNotFound),
		errors.Is(err, domain.ErrSubscriptionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccountCodeExists),
		errors.Is(err, domain.ErrWalletExists),
		errors.Is(err, domain.ErrDuplicateReference),
		errors.Is(err, domain.ErrTransactionVoided):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientLocked):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// requireUserID extracts the user identity header, failing the request when
// missing.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user identity", userIDHeader+" header is required")
		return "", false
	}

	return userID, true
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultValue int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return i
}
