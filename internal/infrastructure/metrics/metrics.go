package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger metrics
	AccountsCreated      prometheus.Counter
	TransactionsPosted   prometheus.Counter
	TransactionsVoided   prometheus.Counter
	ImbalancedRejections prometheus.Counter

	// Wallet metrics
	WalletsCreated  prometheus.Counter
	CreditsAdded    prometheus.Histogram
	CreditsDeducted prometheus.Histogram

	// Enforcement metrics
	RateLimitChecks *prometheus.CounterVec
	QuotaChecks     *prometheus.CounterVec

	// Consumer metrics
	EventsProcessed    *prometheus.CounterVec
	KeysDeactivated    *prometheus.CounterVec
	LowBalanceWarnings prometheus.Counter
	SyncPublishErrors  prometheus.Counter
	EventDuration      prometheus.Histogram

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		AccountsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "metering_accounts_created_total",
			Help: "Total number of ledger accounts created",
		}),
		TransactionsPosted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "metering_transactions_posted_total",
			Help: "Total number of ledger transactions posted",
		}),
		TransactionsVoided: promauto.NewCounter(prometheus.CounterOpts{
			Name: "metering_transactions_voided_total",
			Help: "Total number of ledger transactions voided",
		}),
		ImbalancedRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "metering_imbalanced_rejections_total",
			Help: "Total number of transactions rejected for imbalance",
		}),

		WalletsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "metering_wallets_created_total",
			Help: "Total number of wallets created",
		}),
		CreditsAdded: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "metering_credits_added",
			Help:    "Credit amounts added to wallets",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
		}),
		CreditsDeducted: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "metering_credits_deducted",
			Help:    "Credit amounts deducted from wallets",
			Buckets: []float64{0.001, 0.01, 0.1, 1, 10, 100},
		}),

		RateLimitChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metering_rate_limit_checks_total",
				Help: "Rate limit verdicts by outcome",
			},
			[]string{"verdict"},
		),
		QuotaChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metering_quota_checks_total",
				Help: "Quota verdicts by outcome",
			},
			[]string{"verdict"},
		),

		EventsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metering_usage_events_processed_total",
				Help: "Usage events processed by outcome",
			},
			[]string{"outcome"},
		),
		KeysDeactivated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metering_keys_deactivated_total",
				Help: "API keys deactivated by reason",
			},
			[]string{"reason"},
		),
		LowBalanceWarnings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "metering_low_balance_warnings_total",
			Help: "Wallets observed below the low-balance threshold",
		}),
		SyncPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "metering_sync_publish_errors_total",
			Help: "Failed key-sync event publications",
		}),
		EventDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "metering_usage_event_duration_seconds",
			Help:    "Duration of usage event processing",
			Buckets: prometheus.DefBuckets,
		}),

		HTTPRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metering_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metering_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}
