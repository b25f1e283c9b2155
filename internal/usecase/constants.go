package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction.
	// This prevents long-running transactions from blocking wallet rows.
	DefaultTransactionTimeout = 10 * time.Second

	// DefaultHistoryLimit is the default page size for wallet history.
	DefaultHistoryLimit = 20

	// MaxHistoryLimit caps the page size for wallet history.
	MaxHistoryLimit = 100

	// FailOpenRateLimit is the generous limit reported when a rate-limit
	// check cannot be completed and the request is allowed anyway.
	FailOpenRateLimit = 1_000_000
)

// Reference types linking wallet transactions to their originating events.
const (
	ReferenceTypeUsageEvent     = "usage_event"
	ReferenceTypeInitialBalance = "initial_balance"
	ReferenceTypeManual         = "manual"
)

// Fixed chart of accounts. Codes are stable; InitializeSystemAccounts is
// idempotent by code.
const (
	AccountCodeCash             = "1000"
	AccountCodeGatewayClearing  = "1100"
	AccountCodeReceivable       = "1200"
	AccountCodeUserWalletAsset  = "1300"
	AccountCodeUserCredits      = "2100"
	AccountCodeUnearnedRevenue  = "2200"
	AccountCodeRetainedEarnings = "3100"
	AccountCodeAPIRevenue       = "4000"
	AccountCodePlatformRevenue  = "4100"
	AccountCodeProviderExpense  = "5000"
	AccountCodeOperatingExpense = "5100"
)
