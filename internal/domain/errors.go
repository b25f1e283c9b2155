package domain

import "errors"

var (
	// Validation errors
	ErrValidation    = errors.New("invalid input")
	ErrInvalidAmount = errors.New("amount must be positive")

	// Account errors
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountCodeExists  = errors.New("account code already exists")
	ErrAccountInactive    = errors.New("account is not active")

	// Transaction errors
	ErrImbalancedTransaction = errors.New("transaction debits and credits do not balance")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrTransactionVoided     = errors.New("transaction is already voided")

	// Wallet errors
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletExists        = errors.New("wallet already exists for user")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrInsufficientLocked  = errors.New("unlock amount exceeds locked balance")
	ErrDuplicateReference  = errors.New("wallet transaction reference already processed")

	// Directory errors
	ErrKeyNotFound          = errors.New("api key not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// Infrastructure errors
	ErrExternalService = errors.New("external service unavailable")
)
