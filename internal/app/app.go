package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"scraperhub/internal/api"
	"scraperhub/internal/bot"
	"scraperhub/internal/config"
	"scraperhub/internal/scrape"
	"scraperhub/internal/scrapers"
	"scraperhub/internal/security"
	"scraperhub/internal/storage"
	"scraperhub/internal/storage/ch"
	"scraperhub/internal/storage/memory"
	"scraperhub/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App represents the application
type App struct {
	config   *config.Config
	logger   *zap.Logger
	store    storage.Store
	txlog    storage.TransactionLog
	keys     *security.KeyStore
	registry *bot.Registry
	handler  *bot.Handler
	engine   *scrape.Engine
	factory  *scrapers.Factory
	queue    worker.Queue
	server   *http.Server
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration from environment variables
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting scraperhub",
		zap.String("environment", cfg.Environment),
		zap.Bool("debug", cfg.Debug))

	if err := app.initStorage(); err != nil {
		return nil, err
	}
	if err := app.initBots(); err != nil {
		return nil, err
	}
	app.initScrapers()
	if err := app.initQueue(); err != nil {
		return nil, err
	}
	app.initHTTPServer()

	return app, nil
}

// newLogger builds the zap logger for the configured environment
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// initStorage sets up the item/user store and the transaction log. Items and
// users always live in memory; the transaction log optionally goes to
// ClickHouse for durability.
func (a *App) initStorage() error {
	store := memory.New()
	if err := store.Initialize(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.store = store

	switch a.config.TransactionsBackend {
	case "clickhouse":
		tlsStatus := "without TLS"
		if a.config.ClickHouseUseTLS {
			tlsStatus = "with TLS"
		}
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.String("tls", tlsStatus))
		txlog, err := ch.NewTransactionLog(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		a.txlog = txlog
	default:
		// the memory store doubles as the transaction log
		a.txlog = store
	}

	a.keys = security.NewKeyStore(a.config.SecretKey, a.config.APIKeys, a.config.IsDevelopment())

	a.logger.Info("Storage initialized", zap.String("transactions_backend", a.config.TransactionsBackend))
	return nil
}

// initBots loads the persisted bot registry and adds the environment
// configured bootstrap bot.
func (a *App) initBots() error {
	registry := bot.NewRegistry(a.config.BotsFile, a.logger)
	if err := registry.Load(); err != nil {
		return fmt.Errorf("failed to load bots: %w", err)
	}
	registry.Bootstrap(
		a.config.TelegramBotToken,
		a.config.TelegramChannelID,
		a.config.TelegramBotName,
		"",
	)
	a.registry = registry

	total, active := registry.Count()
	if total == 0 {
		a.logger.Info("No bots configured. Add bots via API: POST /api/v1/bots/register")
		return nil
	}
	a.logger.Info("Bots ready", zap.Int("total", total), zap.Int("active", active))
	return nil
}

// initScrapers builds the page scrape engine, the game scraper factory and
// the command handler over them.
func (a *App) initScrapers() {
	a.engine = scrape.NewEngine(a.config.ScrapeTimeout, a.config.ScrapeUserAgent, a.logger)
	a.factory = scrapers.NewFactory(a.config.ScrapeTimeout, a.logger)
	a.handler = bot.NewHandler(a.registry, a.engine, a.logger)

	a.logger.Info("Scrapers ready", zap.Int("games", len(a.factory.Supported())))
}

// initQueue connects the task queue. With Redis configured tasks go to the
// worker processes; without it they run inline so a single-process deployment
// still serves every endpoint.
func (a *App) initQueue() error {
	if a.config.RedisAddr == "" {
		runner := worker.NewRunner(a.factory, a.txlog, a.logger)
		a.queue = worker.NewInlineQueue(runner, a.config.ResultTTL, a.logger)
		a.logger.Info("No Redis configured, running tasks inline")
		return nil
	}

	queue, err := worker.NewRedisQueue(
		a.config.RedisAddr,
		a.config.RedisPassword,
		a.config.RedisDB,
		a.config.QueueName,
		a.config.ResultTTL,
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to connect queue: %w", err)
	}
	a.queue = queue
	return nil
}

// initHTTPServer assembles the REST API and the HTTP server around it
func (a *App) initHTTPServer() {
	handler := &api.API{
		Cfg:      a.config,
		Store:    a.store,
		TxLog:    a.txlog,
		Keys:     a.keys,
		Registry: a.registry,
		Handler:  a.handler,
		Engine:   a.engine,
		Factory:  a.factory,
		Queue:    a.queue,
		Logger:   a.logger,
	}

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Point every active bot's webhook at the configured base URL. Failures
	// only warn: the API webhook setup endpoints can fix them later.
	if a.config.WebhookBaseURL != "" {
		go a.setupWebhooks()
	}

	select {
	case err := <-errChan:
		a.logger.Error("HTTP server failed", zap.Error(err))
		a.Shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigChan:
		a.logger.Info("Shutting down", zap.String("signal", sig.String()))
		return a.Shutdown()
	}
}

func (a *App) setupWebhooks() {
	for _, client := range a.registry.List() {
		cfg := client.Config()
		if !cfg.IsActive || cfg.WebhookURL != "" {
			continue
		}
		if _, err := a.registry.SetupWebhook(cfg.BotID, a.config.WebhookBaseURL, ""); err != nil {
			a.logger.Warn("Webhook setup failed",
				zap.String("bot_id", cfg.BotID),
				zap.Error(err))
		}
	}
}

// Shutdown gracefully stops the application, reversing the startup order
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var failed error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
		failed = err
	}

	// inline queues wait for running tasks here
	if err := a.queue.Close(); err != nil {
		a.logger.Error("Queue close error", zap.Error(err))
		if failed == nil {
			failed = err
		}
	}

	if err := a.txlog.Close(); err != nil {
		a.logger.Error("Transaction log close error", zap.Error(err))
		if failed == nil {
			failed = err
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("Storage close error", zap.Error(err))
		if failed == nil {
			failed = err
		}
	}

	a.logger.Info("Shutdown complete")
	_ = a.logger.Sync()
	return failed
}
