package dto

import (
	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/usecase"
)

// CreditRequest is the body for adding or refunding credits.
type CreditRequest struct {
	Amount        string `json:"amount"`
	Description   string `json:"description,omitempty"`
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
}

// ToUseCaseInput converts the request to a usecase input.
func (r CreditRequest) ToUseCaseInput(userID string) (usecase.CreditInput, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return usecase.CreditInput{}, domain.ErrInvalidAmount
	}

	return usecase.CreditInput{
		UserID:        userID,
		Amount:        amount,
		Description:   r.Description,
		ReferenceType: r.ReferenceType,
		ReferenceID:   r.ReferenceID,
	}, nil
}

// DeductRequest is the body for deducting credits.
type DeductRequest struct {
	Amount        string `json:"amount"`
	Description   string `json:"description,omitempty"`
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
}

// ToUseCaseInput converts the request to a usecase input.
func (r DeductRequest) ToUseCaseInput(userID string) (usecase.DeductInput, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return usecase.DeductInput{}, domain.ErrInvalidAmount
	}

	return usecase.DeductInput{
		UserID:        userID,
		Amount:        amount,
		Description:   r.Description,
		ReferenceType: r.ReferenceType,
		ReferenceID:   r.ReferenceID,
	}, nil
}

// LockRequest is the body for locking or unlocking credits.
type LockRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

// ParseAmount returns the decimal amount of the request.
func (r LockRequest) ParseAmount() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return decimal.Zero, domain.ErrInvalidAmount
	}

	return amount, nil
}
