package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/veloapi/metering/internal/adapter/http"
	"github.com/veloapi/metering/internal/adapter/http/handler"
	"github.com/veloapi/metering/internal/adapter/http/middleware"
	postgresRepo "github.com/veloapi/metering/internal/adapter/repository/postgres"
	"github.com/veloapi/metering/internal/infrastructure/config"
	"github.com/veloapi/metering/internal/infrastructure/logger"
	"github.com/veloapi/metering/internal/infrastructure/metrics"
	"github.com/veloapi/metering/internal/infrastructure/postgres"
	"github.com/veloapi/metering/internal/infrastructure/redis"
	"github.com/veloapi/metering/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup logger
	log.Logger = logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx := context.Background()

	// Connect to PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	// Run migrations
	if err := postgres.RunMigrations(cfg.DatabaseURL, "migrations"); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Connect to Redis
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	m := metrics.New()

	// Initialize repositories
	txManager := postgresRepo.NewTxManager(pool)
	accountRepo := postgresRepo.NewAccountRepository(pool)
	txnRepo := postgresRepo.NewTransactionRepository(pool)
	walletRepo := postgresRepo.NewWalletRepository(pool)
	walletTxRepo := postgresRepo.NewWalletTransactionRepository(pool)
	idGen := postgresRepo.NewULIDGenerator()

	// Initialize use cases
	ledgerUC := usecase.NewLedgerUseCase(txManager, accountRepo, txnRepo, idGen, m)
	walletUC := usecase.NewWalletUseCase(txManager, walletRepo, walletTxRepo, accountRepo, ledgerUC, idGen, m).
		WithRetrier(postgresRepo.NewRetrier())

	// Chart of accounts must exist before the first wallet operation.
	if _, err := ledgerUC.InitializeSystemAccounts(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize system accounts")
	}

	// Initialize handlers
	walletHandler := handler.NewWalletHandler(walletUC)
	ledgerHandler := handler.NewLedgerHandler(ledgerUC)
	healthHandler := handler.NewHealthHandler(pool, redisPinger{redisClient})

	rateLimiter := middleware.NewRateLimiter(cfg.HTTPRateLimit, cfg.HTTPRateBurst)
	go func() {
		for range time.Tick(10 * time.Minute) {
			rateLimiter.CleanupLimiters()
		}
	}()

	// Create router
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		WalletHandler: walletHandler,
		LedgerHandler: ledgerHandler,
		HealthHandler: healthHandler,
		Metrics:       m,
		RateLimiter:   rateLimiter,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// redisPinger adapts *goredis.Client to the handler.Pinger interface.
type redisPinger struct {
	client *goredis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
