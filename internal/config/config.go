package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DevSecretKey is used when no SECRET_KEY is set outside production.
// Keys minted with it are worthless, which is the point.
const DevSecretKey = "dev-secret-key-change-in-production"

// Config holds the application configuration
type Config struct {
	Port        int
	Environment string // development or production
	Debug       bool

	// API key auth
	SecretKey     string
	APIKeyEnabled bool
	APIKeys       []string // static keys that always validate

	// Bot registry
	BotsFile       string
	WebhookBaseURL string

	// Bootstrap bot from env (optional)
	TelegramBotToken  string
	TelegramChannelID string
	TelegramBotName   string

	// Task queue
	RedisAddr     string // empty = inline execution
	RedisPassword string
	RedisDB       int
	QueueName     string
	ResultTTL     time.Duration

	// Page scraping
	ScrapeTimeout   time.Duration
	ScrapeUserAgent string

	// Transaction log backend: memory or clickhouse
	TransactionsBackend string

	// ClickHouse configuration (required for the clickhouse backend)
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{}

	config.Environment = getEnv("ENVIRONMENT", "development")
	if config.Environment != "development" && config.Environment != "production" {
		return nil, fmt.Errorf("invalid ENVIRONMENT: %s (want development or production)", config.Environment)
	}
	config.Debug = os.Getenv("DEBUG") == "true" || config.Environment == "development"

	port, err := intEnv("PORT", 8000)
	if err != nil {
		return nil, err
	}
	config.Port = port

	// Secret key (required in production)
	config.SecretKey = os.Getenv("SECRET_KEY")
	if config.SecretKey == "" {
		if config.Environment == "production" {
			return nil, fmt.Errorf("SECRET_KEY is required in production")
		}
		config.SecretKey = DevSecretKey
	}

	config.APIKeyEnabled = getEnv("API_KEY_ENABLED", "true") == "true"
	if raw := os.Getenv("API_KEYS"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				config.APIKeys = append(config.APIKeys, k)
			}
		}
	}

	config.BotsFile = getEnv("BOTS_FILE", "bots.json")
	config.WebhookBaseURL = os.Getenv("WEBHOOK_BASE_URL")

	// Bootstrap bot is optional; token and channel must come together
	config.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	config.TelegramChannelID = os.Getenv("TELEGRAM_CHANNEL_ID")
	config.TelegramBotName = getEnv("TELEGRAM_BOT_NAME", "Default Bot")
	if config.TelegramBotToken != "" && config.TelegramChannelID == "" {
		return nil, fmt.Errorf("TELEGRAM_CHANNEL_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	config.RedisAddr = os.Getenv("REDIS_ADDR")
	config.RedisPassword = os.Getenv("REDIS_PASSWORD")
	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	config.RedisDB = redisDB
	config.QueueName = getEnv("QUEUE_NAME", "main-queue")

	resultTTL, err := intEnv("RESULT_TTL_SECONDS", 3600)
	if err != nil {
		return nil, err
	}
	config.ResultTTL = time.Duration(resultTTL) * time.Second

	scrapeTimeout, err := intEnv("SCRAPE_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	config.ScrapeTimeout = time.Duration(scrapeTimeout) * time.Second
	config.ScrapeUserAgent = getEnv("SCRAPE_USER_AGENT",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")

	config.TransactionsBackend = getEnv("TRANSACTIONS_BACKEND", "memory")
	switch config.TransactionsBackend {
	case "memory":
	case "clickhouse":
		config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
		if config.ClickHouseHost == "" {
			return nil, fmt.Errorf("CLICKHOUSE_HOST is required when TRANSACTIONS_BACKEND is clickhouse")
		}
		chPort, err := intEnv("CLICKHOUSE_PORT", 9000)
		if err != nil {
			return nil, err
		}
		config.ClickHousePort = chPort
		config.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
		config.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	default:
		return nil, fmt.Errorf("invalid TRANSACTIONS_BACKEND: %s (want memory or clickhouse)", config.TransactionsBackend)
	}

	return config, nil
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
