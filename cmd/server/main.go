package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ledgerd/internal/auth"
	"ledgerd/internal/config"
	"ledgerd/internal/db"
	"ledgerd/internal/ephemeral"
	"ledgerd/internal/handlers"
	"ledgerd/internal/jobs"
	"ledgerd/internal/logging"
	"ledgerd/internal/metrics"
	"ledgerd/internal/revocation"
	"ledgerd/internal/services"
	"ledgerd/internal/store"
	"ledgerd/internal/websocket"

	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(logging.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheusCollector("ledgerd")
	if err := collector.Register(registry); err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}

	accounts := store.NewAccountStore(database)
	transactions := store.NewTransactionStore(database)
	ledger := store.NewLedgerStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)

	signer := auth.NewSigner(cfg.JWTSecret, cfg.TokenTTL)
	durable, closeDurable := revocationBackend(cfg, database)
	defer closeDurable()
	resilientCfg := revocation.DefaultResilientConfig()
	resilientCfg.Timeout = cfg.RevocationTimeout
	revocations := revocation.NewRegistry(
		revocation.NewResilientStore(durable, resilientCfg, logger, collector),
		signer.ExpiresAt,
		revocation.Config{CacheSize: cfg.RevocationCacheSize, NegativeTTL: cfg.RevocationNegativeTTL},
		logger,
		collector,
	)
	defer revocations.Close()

	tokens := ephemeral.NewManager(store.NewEphemeralTokenStore(database), cfg.ResetTokenTTL, cfg.ConfirmTokenTTL, logger, collector)
	var notifier services.Notifier = services.NewLogNotifier(logger)
	if cfg.RedisAddr != "" {
		client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, logger)
		defer client.Close()
		notifier = client
	}

	hub := websocket.NewHub()
	accountService := services.NewAccountService(txRunner, accounts, signer, revocations, tokens, notifier, logger)
	ledgerService := services.NewLedgerService(txRunner, accounts, transactions, ledger, audit, hub, services.LedgerOptions{
		MaxAttempts: cfg.LedgerMaxAttempts,
		Logger:      logger,
		Metrics:     collector,
	})

	handler := handlers.New(handlers.Options{
		Config:        cfg,
		Accounts:      accountService,
		Ledger:        ledgerService,
		Authenticator: auth.NewAuthenticator(signer, revocations, accounts),
		Hub:           hub,
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:        logger,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ledger API listening",
			zap.String("addr", server.Addr),
			zap.String("revocation_backend", durable.Name()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func revocationBackend(cfg config.Config, database *sqlx.DB) (revocation.DurableStore, func()) {
	if cfg.RevocationBackend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return revocation.NewRedisStore(client), func() { _ = client.Close() }
	}
	return store.NewRevocationStore(database), func() {}
}
