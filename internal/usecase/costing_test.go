package usecase_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/usecase"
)

func TestFixedCostPolicy(t *testing.T) {
	policy := usecase.NewFixedCostPolicy(decimal.RequireFromString("0.01"))

	cost := policy.CostOf(&domain.UsageEvent{APIPath: "/v1/anything", RequestSize: 1 << 20})
	if !cost.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("cost = %s, want 0.01", cost)
	}
}

func TestSizeCostPolicy(t *testing.T) {
	policy := &usecase.SizeCostPolicy{
		Base:        decimal.RequireFromString("0.01"),
		PerKilobyte: decimal.RequireFromString("0.001"),
	}

	// 2048 bytes total payload = 2 KB surcharge.
	cost := policy.CostOf(&domain.UsageEvent{RequestSize: 512, ResponseSize: 1536})
	if !cost.Equal(decimal.RequireFromString("0.012")) {
		t.Errorf("cost = %s, want 0.012", cost)
	}
}

func TestEndpointCostPolicy(t *testing.T) {
	policy := &usecase.EndpointCostPolicy{
		Costs: map[string]decimal.Decimal{
			"POST /v1/search": decimal.RequireFromString("0.05"),
			"/v1/lookup":      decimal.RequireFromString("0.02"),
		},
		Default: decimal.RequireFromString("0.01"),
	}

	tests := []struct {
		name  string
		event *domain.UsageEvent
		want  string
	}{
		{"method and path match", &domain.UsageEvent{Method: "POST", APIPath: "/v1/search"}, "0.05"},
		{"path-only match", &domain.UsageEvent{Method: "GET", APIPath: "/v1/lookup"}, "0.02"},
		{"fallback", &domain.UsageEvent{Method: "GET", APIPath: "/v1/other"}, "0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost := policy.CostOf(tt.event)
			if !cost.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("cost = %s, want %s", cost, tt.want)
			}
		})
	}
}
