package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/domain"
)

// AccountRepository defines data access for ledger accounts.
type AccountRepository interface {
	Create(ctx context.Context, tx Transaction, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByCode(ctx context.Context, code string) (*domain.Account, error)
	GetByCodeTx(ctx context.Context, tx Transaction, code string) (*domain.Account, error)
	ListActive(ctx context.Context) ([]*domain.Account, error)
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
}

// TransactionRepository defines data access for ledger transactions and entries.
type TransactionRepository interface {
	CreateHeader(ctx context.Context, tx Transaction, txn *domain.Transaction) error
	CreateEntry(ctx context.Context, tx Transaction, entry *domain.Entry) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetEntries(ctx context.Context, transactionID string) ([]*domain.Entry, error)
	MarkVoided(ctx context.Context, tx Transaction, id, voidedBy, reason string, at time.Time) error
	// EntrySums returns total debits and credits posted to an account up to
	// asOf, excluding voided transactions. A nil asOf means no cutoff.
	EntrySums(ctx context.Context, accountID string, asOf *time.Time) (debits, credits decimal.Decimal, err error)
	ListEntriesByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Entry, int64, error)
}

// WalletRepository defines data access for wallets.
type WalletRepository interface {
	Create(ctx context.Context, tx Transaction, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	// GetByUserIDForUpdate locks the wallet row for the duration of the
	// transaction so concurrent mutations of the same wallet serialize.
	GetByUserIDForUpdate(ctx context.Context, tx Transaction, userID string) (*domain.Wallet, error)
	UpdateBalances(ctx context.Context, tx Transaction, id string, balance, locked decimal.Decimal, updatedAt time.Time) error
}

// WalletTransactionRepository defines data access for the wallet audit trail.
type WalletTransactionRepository interface {
	Create(ctx context.Context, tx Transaction, wt *domain.WalletTransaction) error
	ExistsByReference(ctx context.Context, tx Transaction, referenceType, referenceID string) (bool, error)
	ListByWallet(ctx context.Context, walletID string, filter domain.HistoryFilter, limit, offset int) ([]*domain.WalletTransaction, int64, error)
}

// UsageRepository defines data access for persisted usage records.
type UsageRepository interface {
	Create(ctx context.Context, record *domain.UsageRecord) error
	CountSuccessful(ctx context.Context, apiKeyID string, from, to time.Time) (int64, error)
}

// KeyDirectory resolves and mutates API keys. Key CRUD itself lives outside
// the metering core; this is the contract it consumes.
type KeyDirectory interface {
	FindKeyByValue(ctx context.Context, value string) (*domain.APIKey, error)
	FindKeyByID(ctx context.Context, id string) (*domain.APIKey, error)
	FindKeysByUser(ctx context.Context, userID string) ([]*domain.APIKey, error)
	DeactivateKey(ctx context.Context, id string) error
}

// SubscriptionDirectory resolves subscriptions and maintains the legacy
// denormalized usage counter.
type SubscriptionDirectory interface {
	FindSubscriptionByID(ctx context.Context, id string) (*domain.Subscription, error)
	IncrementUsage(ctx context.Context, id string, n int64) error
}

// CounterStore is a shared, TTL-aware counter used for rate-limit windows.
// Increment adds one to the counter at key and returns the new count; the
// counter expires after window so stale windows clean themselves up. Backed
// by Redis so limits hold across horizontally scaled instances.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// SyncPublisher publishes key-lifecycle sync events to the edge gateway.
type SyncPublisher interface {
	PublishKeySync(ctx context.Context, event *domain.KeySyncEvent) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retryer re-runs an operation that lost a transient database race, such as a
// deadlock between two wallet mutations locking rows in opposite order.
type Retryer interface {
	Retry(ctx context.Context, operation func() error) error
}
