package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/domain"
)

// CostPolicy computes how many credits a usage event costs. Policies are
// interchangeable and selected by configuration, so per-request pricing can
// vary by provider without touching the deduction pipeline.
type CostPolicy interface {
	CostOf(event *domain.UsageEvent) decimal.Decimal
}

// FixedCostPolicy charges the same amount for every request.
type FixedCostPolicy struct {
	PerRequest decimal.Decimal
}

// NewFixedCostPolicy creates a FixedCostPolicy.
func NewFixedCostPolicy(perRequest decimal.Decimal) *FixedCostPolicy {
	return &FixedCostPolicy{PerRequest: perRequest}
}

func (p *FixedCostPolicy) CostOf(_ *domain.UsageEvent) decimal.Decimal {
	return p.PerRequest
}

// SizeCostPolicy charges a base amount plus a per-kilobyte surcharge on the
// combined request and response payload.
type SizeCostPolicy struct {
	Base        decimal.Decimal
	PerKilobyte decimal.Decimal
}

func (p *SizeCostPolicy) CostOf(event *domain.UsageEvent) decimal.Decimal {
	kilobytes := decimal.NewFromInt(event.RequestSize + event.ResponseSize).Div(decimal.NewFromInt(1024))
	return p.Base.Add(kilobytes.Mul(p.PerKilobyte))
}

// EndpointCostPolicy charges per endpoint path, falling back to a default.
// Keys are "METHOD path", e.g. "POST /v1/search".
type EndpointCostPolicy struct {
	Costs   map[string]decimal.Decimal
	Default decimal.Decimal
}

func (p *EndpointCostPolicy) CostOf(event *domain.UsageEvent) decimal.Decimal {
	if cost, ok := p.Costs[event.Method+" "+event.APIPath]; ok {
		return cost
	}

	if cost, ok := p.Costs[event.APIPath]; ok {
		return cost
	}

	return p.Default
}
