package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"ledgerd/internal/config"
	"ledgerd/internal/db"
	"ledgerd/internal/jobs"
	"ledgerd/internal/logging"
	"ledgerd/internal/store"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	purgeNow := flag.Bool("purge-now", false, "enqueue an immediate purge of expired tokens and exit")
	concurrency := flag.Int("concurrency", 5, "number of tasks processed in parallel")
	flag.Parse()

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	if *purgeNow {
		client := jobs.NewClient(redisOpts, logger)
		defer client.Close()
		if err := client.EnqueuePurge(ctx); err != nil {
			logger.Fatal("enqueue purge", zap.Error(err))
		}
		logger.Info("purge enqueued")
		return
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer database.Close()

	// Redis expires revocation keys itself; only the Postgres table needs purging.
	var revocations jobs.Purger
	if cfg.RevocationBackend == "postgres" {
		revocations = store.NewRevocationStore(database)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:     redisOpts,
		Concurrency:   *concurrency,
		PurgeSchedule: cfg.PurgeSchedule,
		Purge:         jobs.NewPurgeJob(revocations, store.NewEphemeralTokenStore(database), logger),
		Mail:          jobs.NewMailJob(jobs.NewLogMailer(logger), logger),
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("init worker", zap.Error(err))
	}
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker run", zap.Error(err))
	}
}
