package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"scraperhub/internal/models"
	"scraperhub/internal/scrape"
)

// Handler routes Telegram updates for every registered bot to the command
// implementations. One handler serves all bots; per chat state is keyed by
// bot and chat id.
type Handler struct {
	registry *Registry
	engine   *scrape.Engine
	logger   *zap.Logger
	started  time.Time

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewHandler creates a handler over the registry and scrape engine.
func NewHandler(registry *Registry, engine *scrape.Engine, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		engine:   engine,
		logger:   logger,
		started:  time.Now(),
		active:   make(map[string]context.CancelFunc),
	}
}

// HandleUpdate processes a single update addressed to the given bot.
func (h *Handler) HandleUpdate(ctx context.Context, client *Client, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Recovered from panic in update handler", zap.Any("panic", r))
		}
	}()

	message := update.Message
	if message == nil || message.From == nil {
		return
	}

	cfg := client.Config()
	if !cfg.IsActive {
		return
	}
	if !userAllowed(cfg, message.From.ID) {
		h.logger.Warn("Unauthorized access attempt",
			zap.String("bot_id", cfg.BotID),
			zap.Int64("user_id", message.From.ID),
			zap.String("username", message.From.UserName),
			zap.String("text", message.Text))
		client.SendMessage(ctx, message.Chat.ID, "Sorry, you are not authorized to use this bot.")
		return
	}

	if message.IsCommand() {
		command := message.Command()
		if !commandAllowed(cfg, command) {
			client.SendMessage(ctx, message.Chat.ID, fmt.Sprintf("The /%s command is not enabled for this bot.", command))
			return
		}
		switch command {
		case "start":
			h.handleStart(ctx, client, message)
		case "help":
			h.handleHelp(ctx, client, message)
		case "scrape":
			h.handleScrape(ctx, client, message)
		case "batch":
			h.handleBatch(ctx, client, message)
		case "status":
			h.handleStatus(ctx, client, message)
		case "cancel":
			h.handleCancel(ctx, client, message)
		default:
			client.SendMessage(ctx, message.Chat.ID, "Unknown command. Use /help to see available commands.")
		}
		return
	}

	// a bare URL in chat is treated as a scrape request
	if url := firstURL(message.Text); url != "" {
		h.runScrape(ctx, client, message.Chat.ID, scrape.Request{
			URL:            url,
			WaitTime:       cfg.DefaultWaitTime,
			TakeScreenshot: cfg.TakeScreenshot,
		})
	}
}

// ActiveScrapes reports the number of scrapes currently running.
func (h *Handler) ActiveScrapes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Uptime reports how long the handler has been serving updates.
func (h *Handler) Uptime() time.Duration {
	return time.Since(h.started)
}

func (h *Handler) track(key string, cancel context.CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.active[key]; ok {
		prev()
	}
	h.active[key] = cancel
}

func (h *Handler) untrack(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cancel, ok := h.active[key]; ok {
		cancel()
		delete(h.active, key)
	}
}

func (h *Handler) cancelScrape(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cancel, ok := h.active[key]
	if ok {
		cancel()
		delete(h.active, key)
	}
	return ok
}

func scrapeKey(botID string, chatID int64) string {
	return botID + ":" + strconv.FormatInt(chatID, 10)
}

func userAllowed(cfg models.BotConfig, userID int64) bool {
	if len(cfg.AllowedUsers) == 0 {
		return true
	}
	for _, id := range cfg.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func commandAllowed(cfg models.BotConfig, command string) bool {
	if len(cfg.AllowedCommands) == 0 {
		return true
	}
	for _, c := range cfg.AllowedCommands {
		if strings.EqualFold(c, command) {
			return true
		}
	}
	return false
}

// firstURL returns the first http or https URL in the text, or empty.
func firstURL(text string) string {
	for _, field := range strings.Fields(text) {
		if isURL(field) {
			return field
		}
	}
	return ""
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
