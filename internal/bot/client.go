package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"scraperhub/internal/models"
)

// Telegram hard limits; longer content is cut before sending.
const (
	maxMessageLength = 4096
	maxCaptionLength = 1024
)

// Client wraps one bot token. The underlying API session is dialed on
// first use so registry loads stay offline; every send passes the per bot
// rate limiter first.
type Client struct {
	endpoint string
	limiter  *RateLimiter
	logger   *zap.Logger

	mu     sync.Mutex
	config models.BotConfig
	api    *tgbotapi.BotAPI
}

// NewClient creates a client for the given bot config against the standard
// Telegram endpoint.
func NewClient(cfg models.BotConfig, logger *zap.Logger) *Client {
	return NewClientWithEndpoint(cfg, tgbotapi.APIEndpoint, logger)
}

// NewClientWithEndpoint creates a client against a custom API endpoint.
func NewClientWithEndpoint(cfg models.BotConfig, endpoint string, logger *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		limiter:  NewRateLimiter(cfg.MaxRequestsPerMinute),
		logger:   logger,
		config:   cfg,
	}
}

// Config returns a snapshot of the bot's configuration.
func (c *Client) Config() models.BotConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// UpdateConfig swaps the configuration. A changed token drops the dialed
// session so the next call authenticates freshly; a changed ceiling
// rebuilds the limiter.
func (c *Client) UpdateConfig(cfg models.BotConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.BotToken != c.config.BotToken {
		c.api = nil
	}
	if cfg.MaxRequestsPerMinute != c.config.MaxRequestsPerMinute {
		c.limiter = NewRateLimiter(cfg.MaxRequestsPerMinute)
	}
	c.config = cfg
}

// TestConnection authenticates against the API and returns the bot's
// username.
func (c *Client) TestConnection() (string, error) {
	api, err := c.ensureAPI()
	if err != nil {
		return "", err
	}
	return api.Self.UserName, nil
}

// SendMessage delivers text to a chat, truncated to the Telegram limit.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	api, err := c.ensureAPI()
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, truncate(text, maxMessageLength))
	if _, err := api.Send(msg); err != nil {
		c.logger.Error("Failed to send message",
			zap.String("bot_id", c.Config().BotID),
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendPhoto delivers an image with a caption, truncated to the caption
// limit.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, name string, photo []byte, caption string) error {
	api, err := c.ensureAPI()
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: photo})
	msg.Caption = truncate(caption, maxCaptionLength)
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	return nil
}

// SendChatAction shows an activity indicator while a longer operation
// runs. An empty action means typing.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	api, err := c.ensureAPI()
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if action == "" {
		action = tgbotapi.ChatTyping
	}
	if _, err := api.Request(tgbotapi.NewChatAction(chatID, action)); err != nil {
		return fmt.Errorf("failed to send chat action: %w", err)
	}
	return nil
}

// SendDocument delivers a file with a caption, truncated to the caption
// limit.
func (c *Client) SendDocument(ctx context.Context, chatID int64, name string, doc []byte, caption string) error {
	api, err := c.ensureAPI()
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: doc})
	msg.Caption = truncate(caption, maxCaptionLength)
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("failed to send document: %w", err)
	}
	return nil
}

// SendToChannel delivers text to the bot's configured channel.
func (c *Client) SendToChannel(ctx context.Context, text string) error {
	cfg := c.Config()
	if cfg.ChannelID == "" {
		return fmt.Errorf("bot %s has no channel configured", cfg.BotID)
	}

	if strings.HasPrefix(cfg.ChannelID, "@") {
		api, err := c.ensureAPI()
		if err != nil {
			return err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		msg := tgbotapi.NewMessageToChannel(cfg.ChannelID, truncate(text, maxMessageLength))
		if _, err := api.Send(msg); err != nil {
			return fmt.Errorf("failed to send to channel: %w", err)
		}
		return nil
	}

	chatID, err := strconv.ParseInt(cfg.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid channel id %q: %w", cfg.ChannelID, err)
	}
	return c.SendMessage(ctx, chatID, text)
}

// SendScrapeResult formats a page result and delivers it to the channel.
func (c *Client) SendScrapeResult(ctx context.Context, result models.PageResult) error {
	return c.SendToChannel(ctx, FormatScrapeResult(result))
}

// SetWebhook registers this bot's webhook route under the given base URL
// and returns the full webhook URL.
func (c *Client) SetWebhook(baseURL string) (string, error) {
	api, err := c.ensureAPI()
	if err != nil {
		return "", err
	}

	cfg := c.Config()
	hookURL := WebhookURL(baseURL, cfg.BotID)
	params := tgbotapi.Params{
		"url":             hookURL,
		"max_connections": "40",
	}
	if cfg.WebhookSecret != "" {
		params["secret_token"] = cfg.WebhookSecret
	}
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return "", fmt.Errorf("failed to set webhook: %w", err)
	}

	c.logger.Info("Webhook set",
		zap.String("bot_id", cfg.BotID),
		zap.String("url", hookURL))
	return hookURL, nil
}

// DeleteWebhook removes the bot's webhook registration.
func (c *Client) DeleteWebhook() error {
	api, err := c.ensureAPI()
	if err != nil {
		return err
	}
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

// WebhookInfo reports the webhook state Telegram holds for this bot.
func (c *Client) WebhookInfo() (tgbotapi.WebhookInfo, error) {
	api, err := c.ensureAPI()
	if err != nil {
		return tgbotapi.WebhookInfo{}, err
	}
	return api.GetWebhookInfo()
}

func (c *Client) ensureAPI() (*tgbotapi.BotAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api != nil {
		return c.api, nil
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(c.config.BotToken, c.endpoint)
	if err != nil {
		c.logger.Error("Failed to create bot API",
			zap.String("bot_id", c.config.BotID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	c.logger.Info("Bot created",
		zap.String("bot_id", c.config.BotID),
		zap.String("bot_username", api.Self.UserName))
	c.api = api
	return api, nil
}

// WebhookURL builds the ingestion route for a bot under a public base URL.
func WebhookURL(baseURL, botID string) string {
	return fmt.Sprintf("%s/api/v1/webhook/%s", strings.TrimRight(baseURL, "/"), botID)
}

// FormatScrapeResult renders a page result as a Telegram message.
func FormatScrapeResult(result models.PageResult) string {
	var b strings.Builder
	if result.Success {
		b.WriteString("✅ Scrape Result\n")
	} else {
		b.WriteString("❌ Scrape Failed\n")
	}
	fmt.Fprintf(&b, "URL: %s\n", result.URL)
	if result.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", result.Title)
	}
	if result.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", result.Error)
	}
	if result.HTMLLength > 0 {
		fmt.Fprintf(&b, "Page size: %d bytes\n", result.HTMLLength)
	}
	keys := make([]string, 0, len(result.Data))
	for key := range result.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "%s: %v\n", key, result.Data[key])
	}
	if !result.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Time: %s", result.Timestamp.Format(time.RFC3339))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
