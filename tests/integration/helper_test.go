package integration

import (
	"context"
	"net/http"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	adaptershttp "github.com/veloapi/metering/internal/adapter/http"
	"github.com/veloapi/metering/internal/adapter/http/handler"
	"github.com/veloapi/metering/internal/adapter/repository/postgres"
	infraredis "github.com/veloapi/metering/internal/infrastructure/redis"
	"github.com/veloapi/metering/internal/usecase"
	"github.com/veloapi/metering/tests/testutil"
)

// stack wires the real repositories and use cases over a test database.
type stack struct {
	router      http.Handler
	ledgerUC    *usecase.LedgerUseCase
	walletUC    *usecase.WalletUseCase
	accountRepo *postgres.AccountRepository
	directory   *postgres.DirectoryRepository
	usageRepo   *postgres.UsageRepository
}

func newStack(t *testing.T, testDB *testutil.TestDB) *stack {
	t.Helper()

	ctx := context.Background()
	pool := testDB.Pool

	txManager := postgres.NewTxManager(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	txnRepo := postgres.NewTransactionRepository(pool)
	walletRepo := postgres.NewWalletRepository(pool)
	walletTxRepo := postgres.NewWalletTransactionRepository(pool)
	usageRepo := postgres.NewUsageRepository(pool)
	directory := postgres.NewDirectoryRepository(pool)
	idGen := postgres.NewULIDGenerator()

	ledgerUC := usecase.NewLedgerUseCase(txManager, accountRepo, txnRepo, idGen, nil)
	walletUC := usecase.NewWalletUseCase(txManager, walletRepo, walletTxRepo, accountRepo, ledgerUC, idGen, nil).
		WithRetrier(postgres.NewRetrier())

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	redisClient, err := infraredis.NewClient(ctx, redisURL)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	router := adaptershttp.NewRouter(adaptershttp.RouterConfig{
		WalletHandler: handler.NewWalletHandler(walletUC),
		LedgerHandler: handler.NewLedgerHandler(ledgerUC),
		HealthHandler: handler.NewHealthHandler(pool, redisPinger{redisClient}),
	})

	return &stack{
		router:      router,
		ledgerUC:    ledgerUC,
		walletUC:    walletUC,
		accountRepo: accountRepo,
		directory:   directory,
		usageRepo:   usageRepo,
	}
}

// bootstrap truncates all tables and recreates the chart of accounts.
func (s *stack) bootstrap(t *testing.T, testDB *testutil.TestDB) {
	t.Helper()

	testDB.TruncateAll(context.Background())

	if _, err := s.ledgerUC.InitializeSystemAccounts(context.Background()); err != nil {
		t.Fatalf("InitializeSystemAccounts: %v", err)
	}
}

// redisPinger adapts *goredis.Client to the handler.Pinger interface.
type redisPinger struct {
	client *goredis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
