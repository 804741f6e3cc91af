package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"scraperhub/internal/config"
	"scraperhub/internal/scrapers"
	"scraperhub/internal/storage"
	"scraperhub/internal/storage/ch"
	"scraperhub/internal/storage/memory"
	"scraperhub/internal/worker"
)

// The worker consumes scraper tasks from the Redis queue and runs them
// against the game consoles, one at a time. Scale out by running more
// worker processes.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required: without Redis the API server runs tasks inline and no worker is needed")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	txlog, err := newTransactionLog(cfg)
	if err != nil {
		logger.Fatal("Failed to open transaction log", zap.Error(err))
	}
	defer txlog.Close()

	queue, err := worker.NewRedisQueue(
		cfg.RedisAddr,
		cfg.RedisPassword,
		cfg.RedisDB,
		cfg.QueueName,
		cfg.ResultTTL,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to connect queue", zap.Error(err))
	}
	defer queue.Close()

	factory := scrapers.NewFactory(cfg.ScrapeTimeout, logger)
	runner := worker.NewRunner(factory, txlog, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.New(queue, runner, logger).Run(ctx); err != nil {
		logger.Fatal("Worker failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newTransactionLog(cfg *config.Config) (storage.TransactionLog, error) {
	if cfg.TransactionsBackend != "clickhouse" {
		// without a durable backend each worker keeps its own in-process log
		return memory.New(), nil
	}
	txlog, err := ch.NewTransactionLog(
		cfg.ClickHouseHost,
		cfg.ClickHousePort,
		cfg.ClickHouseDatabase,
		cfg.ClickHouseUser,
		cfg.ClickHousePassword,
		cfg.ClickHouseUseTLS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	return txlog, nil
}
