package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veloapi/metering/internal/domain"
	"github.com/veloapi/metering/internal/usecase"
)

// MockTransaction is a no-op database transaction.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (m *MockTransaction) Commit(ctx context.Context) error {
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx)
	}
	return nil
}

func (m *MockTransaction) Rollback(ctx context.Context) error {
	if m.RollbackFunc != nil {
		return m.RollbackFunc(ctx)
	}
	return nil
}

// MockTransactionManager hands out no-op transactions.
type MockTransactionManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	return &MockTransaction{}, nil
}

// MockIDGenerator generates sequential test IDs.
type MockIDGenerator struct {
	mu           sync.Mutex
	counter      int
	GenerateFunc func() string
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("id-%d", m.counter)
}

// MockAccountRepository is an in-memory AccountRepository.
type MockAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
	byCode   map[string]string

	CreateFunc      func(ctx context.Context, tx usecase.Transaction, account *domain.Account) error
	GetByIDFunc     func(ctx context.Context, id string) (*domain.Account, error)
	GetByCodeFunc   func(ctx context.Context, code string) (*domain.Account, error)
	GetByCodeTxFunc func(ctx context.Context, tx usecase.Transaction, code string) (*domain.Account, error)
	ListActiveFunc  func(ctx context.Context) ([]*domain.Account, error)
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[string]*domain.Account),
		byCode:   make(map[string]string),
	}
}

func (m *MockAccountRepository) Create(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	m.byCode[account.Code] = account.ID
	return nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acc, ok := m.accounts[id]; ok {
		return acc, nil
	}
	return nil, domain.ErrAccountNotFound
}

func (m *MockAccountRepository) GetByCode(ctx context.Context, code string) (*domain.Account, error) {
	if m.GetByCodeFunc != nil {
		return m.GetByCodeFunc(ctx, code)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.byCode[code]; ok {
		return m.accounts[id], nil
	}
	return nil, domain.ErrAccountNotFound
}

func (m *MockAccountRepository) GetByCodeTx(ctx context.Context, tx usecase.Transaction, code string) (*domain.Account, error) {
	if m.GetByCodeTxFunc != nil {
		return m.GetByCodeTxFunc(ctx, tx, code)
	}
	return m.GetByCode(ctx, code)
}

func (m *MockAccountRepository) ListActive(ctx context.Context) ([]*domain.Account, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var accounts []*domain.Account
	for _, acc := range m.accounts {
		if acc.IsActive {
			accounts = append(accounts, acc)
		}
	}
	return accounts, nil
}

func (m *MockAccountRepository) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acc.IsActive = active
	acc.UpdatedAt = updatedAt
	return nil
}

// MockTransactionRepository is an in-memory TransactionRepository. EntrySums
// honors the voided-status filter so balance semantics are testable.
type MockTransactionRepository struct {
	mu      sync.RWMutex
	headers map[string]*domain.Transaction
	entries []*domain.Entry

	CreateHeaderFunc func(ctx context.Context, tx usecase.Transaction, txn *domain.Transaction) error
	CreateEntryFunc  func(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error
	EntrySumsFunc    func(ctx context.Context, accountID string, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error)
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		headers: make(map[string]*domain.Transaction),
	}
}

func (m *MockTransactionRepository) CreateHeader(ctx context.Context, tx usecase.Transaction, txn *domain.Transaction) error {
	if m.CreateHeaderFunc != nil {
		return m.CreateHeaderFunc(ctx, tx, txn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[txn.ID] = txn
	return nil
}

func (m *MockTransactionRepository) CreateEntry(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error {
	if m.CreateEntryFunc != nil {
		return m.CreateEntryFunc(ctx, tx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if txn, ok := m.headers[id]; ok {
		return txn, nil
	}
	return nil, domain.ErrTransactionNotFound
}

func (m *MockTransactionRepository) GetEntries(ctx context.Context, transactionID string) ([]*domain.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Entry
	for _, e := range m.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockTransactionRepository) MarkVoided(ctx context.Context, tx usecase.Transaction, id, voidedBy, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.headers[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	txn.Status = domain.TransactionStatusVoided
	txn.VoidedBy = &voidedBy
	txn.VoidReason = &reason
	txn.VoidedAt = &at
	return nil
}

func (m *MockTransactionRepository) EntrySums(ctx context.Context, accountID string, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	if m.EntrySumsFunc != nil {
		return m.EntrySumsFunc(ctx, accountID, asOf)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	debits, credits := decimal.Zero, decimal.Zero
	for _, e := range m.entries {
		if e.AccountID != accountID {
			continue
		}
		if asOf != nil && e.CreatedAt.After(*asOf) {
			continue
		}
		if txn, ok := m.headers[e.TransactionID]; ok && txn.Status == domain.TransactionStatusVoided {
			continue
		}
		switch e.EntryType {
		case domain.EntryTypeDebit:
			debits = debits.Add(e.Amount)
		case domain.EntryTypeCredit:
			credits = credits.Add(e.Amount)
		}
	}
	return debits, credits, nil
}

func (m *MockTransactionRepository) ListEntriesByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Entry, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*domain.Entry
	for _, e := range m.entries {
		if e.AccountID == accountID {
			all = append(all, e)
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// MockWalletRepository is an in-memory WalletRepository.
type MockWalletRepository struct {
	mu      sync.RWMutex
	wallets map[string]*domain.Wallet // keyed by user ID

	GetByUserIDForUpdateFunc func(ctx context.Context, tx usecase.Transaction, userID string) (*domain.Wallet, error)
	UpdateBalancesFunc       func(ctx context.Context, tx usecase.Transaction, id string, balance, locked decimal.Decimal, updatedAt time.Time) error
}

func NewMockWalletRepository() *MockWalletRepository {
	return &MockWalletRepository{wallets: make(map[string]*domain.Wallet)}
}

func (m *MockWalletRepository) Create(ctx context.Context, tx usecase.Transaction, wallet *domain.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.wallets[wallet.UserID]; ok {
		return domain.ErrWalletExists
	}
	m.wallets[wallet.UserID] = wallet
	return nil
}

func (m *MockWalletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if w, ok := m.wallets[userID]; ok {
		copied := *w
		return &copied, nil
	}
	return nil, domain.ErrWalletNotFound
}

func (m *MockWalletRepository) GetByUserIDForUpdate(ctx context.Context, tx usecase.Transaction, userID string) (*domain.Wallet, error) {
	if m.GetByUserIDForUpdateFunc != nil {
		return m.GetByUserIDForUpdateFunc(ctx, tx, userID)
	}
	return m.GetByUserID(ctx, userID)
}

func (m *MockWalletRepository) UpdateBalances(ctx context.Context, tx usecase.Transaction, id string, balance, locked decimal.Decimal, updatedAt time.Time) error {
	if m.UpdateBalancesFunc != nil {
		return m.UpdateBalancesFunc(ctx, tx, id, balance, locked, updatedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.ID == id {
			w.Balance = balance
			w.LockedBalance = locked
			w.UpdatedAt = updatedAt
			return nil
		}
	}
	return domain.ErrWalletNotFound
}

// MockWalletTransactionRepository is an in-memory WalletTransactionRepository.
type MockWalletTransactionRepository struct {
	mu           sync.RWMutex
	transactions []*domain.WalletTransaction

	CreateFunc            func(ctx context.Context, tx usecase.Transaction, wt *domain.WalletTransaction) error
	ExistsByReferenceFunc func(ctx context.Context, tx usecase.Transaction, referenceType, referenceID string) (bool, error)
}

func NewMockWalletTransactionRepository() *MockWalletTransactionRepository {
	return &MockWalletTransactionRepository{}
}

func (m *MockWalletTransactionRepository) Create(ctx context.Context, tx usecase.Transaction, wt *domain.WalletTransaction) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, wt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, wt)
	return nil
}

func (m *MockWalletTransactionRepository) ExistsByReference(ctx context.Context, tx usecase.Transaction, referenceType, referenceID string) (bool, error) {
	if m.ExistsByReferenceFunc != nil {
		return m.ExistsByReferenceFunc(ctx, tx, referenceType, referenceID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, wt := range m.transactions {
		if wt.ReferenceType == referenceType && wt.ReferenceID == referenceID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockWalletTransactionRepository) ListByWallet(ctx context.Context, walletID string, filter domain.HistoryFilter, limit, offset int) ([]*domain.WalletTransaction, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*domain.WalletTransaction
	for _, wt := range m.transactions {
		if wt.WalletID != walletID {
			continue
		}
		if filter.Type != "" && wt.Type != filter.Type {
			continue
		}
		if filter.DateFrom != nil && wt.CreatedAt.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && wt.CreatedAt.After(*filter.DateTo) {
			continue
		}
		all = append(all, wt)
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// All returns every stored wallet transaction.
func (m *MockWalletTransactionRepository) All() []*domain.WalletTransaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.WalletTransaction(nil), m.transactions...)
}

// MockUsageRepository is an in-memory UsageRepository.
type MockUsageRepository struct {
	mu      sync.RWMutex
	records []*domain.UsageRecord

	CreateFunc          func(ctx context.Context, record *domain.UsageRecord) error
	CountSuccessfulFunc func(ctx context.Context, apiKeyID string, from, to time.Time) (int64, error)
}

func NewMockUsageRepository() *MockUsageRepository {
	return &MockUsageRepository{}
}

func (m *MockUsageRepository) Create(ctx context.Context, record *domain.UsageRecord) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *MockUsageRepository) CountSuccessful(ctx context.Context, apiKeyID string, from, to time.Time) (int64, error) {
	if m.CountSuccessfulFunc != nil {
		return m.CountSuccessfulFunc(ctx, apiKeyID, from, to)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, r := range m.records {
		if r.APIKeyID != apiKeyID || !r.Success {
			continue
		}
		if r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		count++
	}
	return count, nil
}

// MockKeyDirectory is an in-memory KeyDirectory.
type MockKeyDirectory struct {
	mu   sync.RWMutex
	keys map[string]*domain.APIKey // keyed by ID

	FindKeyByValueFunc func(ctx context.Context, value string) (*domain.APIKey, error)
	FindKeyByIDFunc    func(ctx context.Context, id string) (*domain.APIKey, error)
	DeactivateKeyFunc  func(ctx context.Context, id string) error
}

func NewMockKeyDirectory(keys ...*domain.APIKey) *MockKeyDirectory {
	m := &MockKeyDirectory{keys: make(map[string]*domain.APIKey)}
	for _, k := range keys {
		m.keys[k.ID] = k
	}
	return m
}

func (m *MockKeyDirectory) FindKeyByValue(ctx context.Context, value string) (*domain.APIKey, error) {
	if m.FindKeyByValueFunc != nil {
		return m.FindKeyByValueFunc(ctx, value)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.keys {
		if k.KeyValue == value {
			return k, nil
		}
	}
	return nil, domain.ErrKeyNotFound
}

func (m *MockKeyDirectory) FindKeyByID(ctx context.Context, id string) (*domain.APIKey, error) {
	if m.FindKeyByIDFunc != nil {
		return m.FindKeyByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k, ok := m.keys[id]; ok {
		return k, nil
	}
	return nil, domain.ErrKeyNotFound
}

func (m *MockKeyDirectory) FindKeysByUser(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.APIKey
	for _, k := range m.keys {
		out = append(out, k)
	}
	return out, nil
}

func (m *MockKeyDirectory) DeactivateKey(ctx context.Context, id string) error {
	if m.DeactivateKeyFunc != nil {
		return m.DeactivateKeyFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return domain.ErrKeyNotFound
	}
	k.IsActive = false
	return nil
}

// MockSubscriptionDirectory is an in-memory SubscriptionDirectory.
type MockSubscriptionDirectory struct {
	mu   sync.RWMutex
	subs map[string]*domain.Subscription

	FindSubscriptionByIDFunc func(ctx context.Context, id string) (*domain.Subscription, error)
	IncrementUsageFunc       func(ctx context.Context, id string, n int64) error
}

func NewMockSubscriptionDirectory(subs ...*domain.Subscription) *MockSubscriptionDirectory {
	m := &MockSubscriptionDirectory{subs: make(map[string]*domain.Subscription)}
	for _, s := range subs {
		m.subs[s.ID] = s
	}
	return m
}

func (m *MockSubscriptionDirectory) FindSubscriptionByID(ctx context.Context, id string) (*domain.Subscription, error) {
	if m.FindSubscriptionByIDFunc != nil {
		return m.FindSubscriptionByIDFunc(ctx, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.subs[id]; ok {
		return s, nil
	}
	return nil, domain.ErrSubscriptionNotFound
}

func (m *MockSubscriptionDirectory) IncrementUsage(ctx context.Context, id string, n int64) error {
	if m.IncrementUsageFunc != nil {
		return m.IncrementUsageFunc(ctx, id, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return domain.ErrSubscriptionNotFound
	}
	s.RequestsUsed += n
	return nil
}

// MockCounterStore is an in-memory CounterStore ignoring TTL.
type MockCounterStore struct {
	mu       sync.Mutex
	counters map[string]int64

	IncrementFunc func(ctx context.Context, key string, window time.Duration) (int64, error)
}

func NewMockCounterStore() *MockCounterStore {
	return &MockCounterStore{counters: make(map[string]int64)}
}

func (m *MockCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	if m.IncrementFunc != nil {
		return m.IncrementFunc(ctx, key, window)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

// MockSyncPublisher records published key-sync events.
type MockSyncPublisher struct {
	mu     sync.Mutex
	Events []*domain.KeySyncEvent

	PublishKeySyncFunc func(ctx context.Context, event *domain.KeySyncEvent) error
}

func NewMockSyncPublisher() *MockSyncPublisher {
	return &MockSyncPublisher{}
}

func (m *MockSyncPublisher) PublishKeySync(ctx context.Context, event *domain.KeySyncEvent) error {
	if m.PublishKeySyncFunc != nil {
		return m.PublishKeySyncFunc(ctx, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

// Published returns a snapshot of the recorded events.
func (m *MockSyncPublisher) Published() []*domain.KeySyncEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.KeySyncEvent(nil), m.Events...)
}
