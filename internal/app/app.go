package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/api"
	"github.com/ayo6706/custodial-ledger/internal/api/middleware"
	"github.com/ayo6706/custodial-ledger/internal/config"
	"github.com/ayo6706/custodial-ledger/internal/db"
	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/idempotency"
	"github.com/ayo6706/custodial-ledger/internal/notify"
	"github.com/ayo6706/custodial-ledger/internal/observability"
	"github.com/ayo6706/custodial-ledger/internal/oracle"
	"github.com/ayo6706/custodial-ledger/internal/repository"
	"github.com/ayo6706/custodial-ledger/internal/service"
	"github.com/ayo6706/custodial-ledger/internal/worker"
	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
)

// store is what both storage drivers provide to the services and health checks.
type store interface {
	service.QueryStore
	Ping(ctx context.Context) error
}

// Run bootstraps storage, the HTTP server and the background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledgerStore, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	sink, err := newSink(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	if c, ok := sink.(io.Closer); ok {
		defer c.Close()
	}
	// Deferred after the sink so queued events drain before it closes.
	dispatcher := notify.NewDispatcher(sink, cfg.NotifyBuffer)
	defer dispatcher.Close()

	registry := domain.NewRegistry(cfg.SupportedCurrencies...)
	priceOracle := newOracle(cfg)
	clock := domain.SystemClock{}

	payoutPool, err := ants.NewPool(cfg.PayoutConcurrency)
	if err != nil {
		return fmt.Errorf("create payout pool: %w", err)
	}
	defer payoutPool.Release()

	wallets := service.AdminWallets(cfg.AdminWallets)
	ledger := service.NewLedger(ledgerStore, priceOracle, registry)
	payoutSvc := service.NewPayoutService(ledgerStore, ledger, dispatcher, clock,
		service.WithPayoutPool(payoutPool),
		service.WithPayoutBatchSize(cfg.PayoutBatchSize),
	)
	reconcileSvc := service.NewReconciliationService(ledgerStore)

	svc := api.Services{
		Accounts: service.NewAccountService(ledgerStore, ledger, priceOracle, wallets),
		Ledger:   ledger,
		History:  service.NewHistoryService(ledgerStore, priceOracle),
		Funding: service.NewFundingService(ledgerStore, ledger, dispatcher, wallets, cfg.SettlementCurrency,
			service.WithStrictWithdrawalRequests(cfg.WithdrawalStrictRequests)),
		Swaps:          service.NewSwapService(ledger, priceOracle, dispatcher),
		Investments:    service.NewInvestmentService(ledgerStore, ledger, priceOracle, dispatcher, clock, cfg.SettlementCurrency),
		Payouts:        payoutSvc,
		Plans:          service.NewPlanService(ledgerStore, priceOracle),
		Reconciliation: reconcileSvc,
		Oracle:         priceOracle,
		Registry:       registry,
	}

	scheduler := worker.NewPayoutScheduler(payoutSvc).WithPollInterval(cfg.PayoutInterval)
	opts := api.Options{
		Auth:               middleware.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		Store:              ledgerStore,
		PublicRateLimitRPS: cfg.PublicRateLimitRPS,
		AuthRateLimitRPS:   cfg.AuthRateLimitRPS,
		Logger:             logger,
	}
	if redisClient != nil {
		scheduler.WithLocker(worker.NewRedisLocker(redisClient))
		opts.Redis = redisClient
		opts.Idempotency = idempotency.NewStore(redisClient, ledgerStore.Queries(), cfg.IdempotencyTTL)
	} else {
		opts.Idempotency = idempotency.NewStore(nil, ledgerStore.Queries(), cfg.IdempotencyTTL)
	}

	stopScheduler := scheduler.Run(ctx)
	stopReconciliation := worker.NewReconciliationWorker(reconcileSvc).WithInterval(cfg.ReconciliationInterval).Run(ctx)
	logger.Info("workers started",
		zap.Duration("payout_interval", cfg.PayoutInterval),
		zap.Int32("payout_batch", cfg.PayoutBatchSize),
		zap.Int("payout_concurrency", cfg.PayoutConcurrency),
		zap.Duration("reconciliation_interval", cfg.ReconciliationInterval),
	)

	router := api.NewRouter(svc, opts)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.String("storage", cfg.StorageDriver))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopScheduler()
	stopReconciliation()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		zap.L().Warn("using in-memory storage; balances are lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	}

	if cfg.MigrationsAuto {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return repository.NewStore(pool), pool.Close, nil
}

func newOracle(cfg *config.Config) *oracle.Oracle {
	opts := []oracle.Option{
		oracle.WithPriceTTL(cfg.PriceTTL),
		oracle.WithRateTTL(cfg.FiatRateTTL),
		oracle.WithTimeout(cfg.OracleTimeout),
		oracle.WithFailureBackoff(cfg.OracleBackoff, oracle.DefaultFailureBackoffMax),
	}
	if cfg.OracleDriver == config.OracleStatic {
		static := oracle.DefaultStatic()
		return oracle.New(static, static, opts...)
	}

	client := &http.Client{Timeout: cfg.OracleTimeout}
	limiter := rate.NewLimiter(rate.Limit(cfg.CoinGeckoRPS), 1)
	prices := oracle.NewCoinGecko(client, cfg.CoinGeckoBaseURL, limiter)
	rates := oracle.NewExchangeRateAPI(client, cfg.FXBaseURL)
	return oracle.New(prices, rates, opts...)
}

func newSink(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (notify.Sink, error) {
	switch cfg.NotifyDriver {
	case config.NotifyRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("notify driver %q requires REDIS_URL", cfg.NotifyDriver)
		}
		return notify.NewRedisSink(redisClient, cfg.RedisChannel), nil
	case config.NotifyKafka:
		return notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return notify.NewLogSink(logger.Named("notify")), nil
	}
}

func newLogger(level, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if file == "" {
		return cfg.Build()
	}

	rotating := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	})
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), zapcore.Lock(os.Stdout), cfg.Level),
		zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotating, cfg.Level),
	)
	return zap.New(core, zap.AddCaller()), nil
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
