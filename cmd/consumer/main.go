package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	kafkaBroker "github.com/veloapi/metering/internal/adapter/broker/kafka"
	postgresRepo "github.com/veloapi/metering/internal/adapter/repository/postgres"
	redisRepo "github.com/veloapi/metering/internal/adapter/repository/redis"
	"github.com/veloapi/metering/internal/consumer"
	"github.com/veloapi/metering/internal/infrastructure/config"
	"github.com/veloapi/metering/internal/infrastructure/logger"
	"github.com/veloapi/metering/internal/infrastructure/metrics"
	"github.com/veloapi/metering/internal/infrastructure/postgres"
	"github.com/veloapi/metering/internal/infrastructure/redis"
	"github.com/veloapi/metering/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Logger = logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	broker, err := kafkaBroker.New(kafkaBroker.Config{
		Brokers:       cfg.KafkaBrokers,
		UsageTopic:    cfg.KafkaUsageTopic,
		KeySyncTopic:  cfg.KafkaKeySyncTopic,
		ConsumerGroup: cfg.KafkaGroup,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to kafka")
	}
	log.Info().Strs("brokers", cfg.KafkaBrokers).Msg("connected to kafka")

	m := metrics.New()

	txManager := postgresRepo.NewTxManager(pool)
	accountRepo := postgresRepo.NewAccountRepository(pool)
	txnRepo := postgresRepo.NewTransactionRepository(pool)
	walletRepo := postgresRepo.NewWalletRepository(pool)
	walletTxRepo := postgresRepo.NewWalletTransactionRepository(pool)
	usageRepo := postgresRepo.NewUsageRepository(pool)
	directory := postgresRepo.NewDirectoryRepository(pool)
	idGen := postgresRepo.NewULIDGenerator()

	ledgerUC := usecase.NewLedgerUseCase(txManager, accountRepo, txnRepo, idGen, m)
	walletUC := usecase.NewWalletUseCase(txManager, walletRepo, walletTxRepo, accountRepo, ledgerUC, idGen, m).
		WithRetrier(postgresRepo.NewRetrier())

	counter := redisRepo.NewCounterStore(redisClient)
	quotaUC := usecase.NewQuotaUseCase(counter, usageRepo, directory, directory, idGen, log.Logger, m)

	policy, err := buildCostPolicy(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid cost policy configuration")
	}

	threshold, err := decimal.NewFromString(cfg.LowBalanceThreshold)
	if err != nil {
		log.Fatal().Err(err).Str("value", cfg.LowBalanceThreshold).Msg("invalid low balance threshold")
	}

	c := consumer.New(broker, walletUC, directory, directory, broker, policy, quotaUC, m, slogger, consumer.Config{
		Workers:             cfg.ConsumerWorkers,
		LowBalanceThreshold: threshold,
	})

	// Metrics endpoint on a side port so scraping survives consumer stalls.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: metricsMux}

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	log.Info().Int("workers", cfg.ConsumerWorkers).Str("topic", cfg.KafkaUsageTopic).Msg("starting consumer")

	if err := c.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("consumer stopped with error")
	}

	log.Info().Msg("shutting down consumer...")

	if err := broker.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close kafka broker")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down metrics server")
	}

	log.Info().Msg("consumer stopped")
}

func buildCostPolicy(cfg *config.Config) (usecase.CostPolicy, error) {
	perRequest, err := decimal.NewFromString(cfg.CreditCost)
	if err != nil {
		return nil, fmt.Errorf("invalid credit cost %q: %w", cfg.CreditCost, err)
	}

	switch cfg.CostPolicy {
	case "fixed":
		return usecase.NewFixedCostPolicy(perRequest), nil
	case "size":
		return &usecase.SizeCostPolicy{
			Base:        perRequest,
			PerKilobyte: perRequest.Div(decimal.NewFromInt(10)),
		}, nil
	case "endpoint":
		return &usecase.EndpointCostPolicy{Default: perRequest}, nil
	default:
		return nil, fmt.Errorf("unknown cost policy %q", cfg.CostPolicy)
	}
}
