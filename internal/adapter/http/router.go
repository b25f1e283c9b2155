package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veloapi/metering/internal/adapter/http/handler"
	"github.com/veloapi/metering/internal/adapter/http/middleware"
	"github.com/veloapi/metering/internal/infrastructure/metrics"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	WalletHandler *handler.WalletHandler
	LedgerHandler *handler.LedgerHandler
	HealthHandler *handler.HealthHandler
	Metrics       *metrics.Metrics
	RateLimiter   *middleware.RateLimiter
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	// Operational endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Limit)
		}

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", cfg.WalletHandler.Balance)
			r.Get("/transactions", cfg.WalletHandler.History)
			r.Post("/credits/add", cfg.WalletHandler.AddCredits)
			r.Post("/credits/deduct", cfg.WalletHandler.DeductCredits)
			r.Post("/credits/lock", cfg.WalletHandler.LockCredits)
			r.Post("/credits/unlock", cfg.WalletHandler.UnlockCredits)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/trial-balance", cfg.LedgerHandler.TrialBalance)
			r.Get("/accounts/{code}/balance", cfg.LedgerHandler.AccountBalance)
			r.Get("/accounts/{code}/ledger", cfg.LedgerHandler.AccountLedger)
			r.Post("/initialize-accounts", cfg.LedgerHandler.InitializeAccounts)
		})
	})

	return r
}
