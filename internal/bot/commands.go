package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"scraperhub/internal/scrape"
)

// Command argument ceilings. Waits above the cap are clamped, batches above
// the cap are cut.
const (
	maxCommandWait = 30
	maxBatchSize   = 10
)

// DefaultCommands is the command set granted to a bot registered without
// an explicit allowed_commands list.
var DefaultCommands = []string{"scrape", "batch", "status", "help"}

const helpText = `Available commands:
/scrape <url> [wait=N] [noscreen] - fetch a page and post the result
/batch <url1> <url2> ... - fetch up to 10 pages at once
/status - show bot status
/cancel - cancel the running scrape
/help - show this message

Sending a bare URL works like /scrape with the bot defaults.`

func (h *Handler) handleStart(ctx context.Context, client *Client, message *tgbotapi.Message) {
	cfg := client.Config()
	text := fmt.Sprintf("👋 Welcome to %s!\nSend me a URL or use /scrape <url> to fetch a page.\nUse /help to see all commands.", cfg.BotName)
	client.SendMessage(ctx, message.Chat.ID, text)
}

func (h *Handler) handleHelp(ctx context.Context, client *Client, message *tgbotapi.Message) {
	client.SendMessage(ctx, message.Chat.ID, helpText)
}

func (h *Handler) handleScrape(ctx context.Context, client *Client, message *tgbotapi.Message) {
	cfg := client.Config()
	req, err := parseScrapeArgs(message.CommandArguments(), cfg.DefaultWaitTime, cfg.TakeScreenshot)
	if err != nil {
		client.SendMessage(ctx, message.Chat.ID, fmt.Sprintf("⚠️ %v\nUsage: /scrape <url> [wait=N] [noscreen]", err))
		return
	}
	h.runScrape(ctx, client, message.Chat.ID, req)
}

func (h *Handler) handleBatch(ctx context.Context, client *Client, message *tgbotapi.Message) {
	cfg := client.Config()

	var urls []string
	for _, field := range strings.Fields(message.CommandArguments()) {
		if isURL(field) {
			urls = append(urls, field)
		}
	}
	if len(urls) == 0 {
		client.SendMessage(ctx, message.Chat.ID, "⚠️ No URLs given.\nUsage: /batch <url1> <url2> ...")
		return
	}
	capped := false
	if len(urls) > maxBatchSize {
		urls = urls[:maxBatchSize]
		capped = true
	}

	client.SendChatAction(ctx, message.Chat.ID, "")
	client.SendMessage(ctx, message.Chat.ID, fmt.Sprintf("📦 Processing batch of %d URLs...", len(urls)))

	requests := make([]scrape.Request, len(urls))
	for i, u := range urls {
		requests[i] = scrape.Request{URL: u, WaitTime: cfg.DefaultWaitTime}
	}

	key := scrapeKey(cfg.BotID, message.Chat.ID)
	cctx, cancel := context.WithCancel(ctx)
	h.track(key, cancel)
	defer h.untrack(key)

	results := h.engine.ScrapeBatch(cctx, requests, 0)

	ok := 0
	var b strings.Builder
	for _, result := range results {
		if result.Success {
			ok++
			fmt.Fprintf(&b, "✅ %s", result.URL)
			if result.Title != "" {
				fmt.Fprintf(&b, " (%s)", result.Title)
			}
			b.WriteString("\n")
		} else {
			fmt.Fprintf(&b, "❌ %s: %s\n", result.URL, result.Error)
		}
	}
	summary := fmt.Sprintf("📦 Batch finished: %d ok, %d failed\n%s", ok, len(results)-ok, b.String())
	if capped {
		summary += fmt.Sprintf("\nOnly the first %d URLs were processed.", maxBatchSize)
	}
	client.SendMessage(ctx, message.Chat.ID, strings.TrimRight(summary, "\n"))

	if cfg.SendToChannel && cfg.ChannelID != "" {
		client.SendToChannel(ctx, strings.TrimRight(summary, "\n"))
	}
}

func (h *Handler) handleStatus(ctx context.Context, client *Client, message *tgbotapi.Message) {
	cfg := client.Config()
	channel := cfg.ChannelID
	if channel == "" {
		channel = "none"
	}
	text := fmt.Sprintf("🤖 %s\nActive scrapes: %d\nUptime: %s\nChannel: %s",
		cfg.BotName,
		h.ActiveScrapes(),
		h.Uptime().Round(time.Second),
		channel)
	client.SendMessage(ctx, message.Chat.ID, text)
}

func (h *Handler) handleCancel(ctx context.Context, client *Client, message *tgbotapi.Message) {
	key := scrapeKey(client.Config().BotID, message.Chat.ID)
	if h.cancelScrape(key) {
		client.SendMessage(ctx, message.Chat.ID, "🛑 Scrape cancelled.")
		return
	}
	client.SendMessage(ctx, message.Chat.ID, "Nothing to cancel.")
}

// runScrape fetches one page and posts the result to the requesting chat,
// and to the bot's channel when configured.
func (h *Handler) runScrape(ctx context.Context, client *Client, chatID int64, req scrape.Request) {
	cfg := client.Config()
	client.SendChatAction(ctx, chatID, "")
	client.SendMessage(ctx, chatID, fmt.Sprintf("🔍 Scraping %s ...", req.URL))

	key := scrapeKey(cfg.BotID, chatID)
	cctx, cancel := context.WithCancel(ctx)
	h.track(key, cancel)
	defer h.untrack(key)

	result := h.engine.Scrape(cctx, req)
	text := FormatScrapeResult(result)
	client.SendMessage(ctx, chatID, text)

	if cfg.SendToChannel && cfg.ChannelID != "" {
		if err := client.SendToChannel(ctx, text); err != nil {
			h.logger.Warn("Failed to relay result to channel",
				zap.String("bot_id", cfg.BotID),
				zap.Error(err))
		}
	}
}

// parseScrapeArgs reads the /scrape argument list: a URL followed by
// optional wait=N and noscreen flags.
func parseScrapeArgs(args string, defaultWait int, screenshot bool) (scrape.Request, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return scrape.Request{}, fmt.Errorf("no URL given")
	}
	if !isURL(fields[0]) {
		return scrape.Request{}, fmt.Errorf("%q is not an http(s) URL", fields[0])
	}

	req := scrape.Request{URL: fields[0], WaitTime: defaultWait, TakeScreenshot: screenshot}
	for _, field := range fields[1:] {
		switch {
		case strings.HasPrefix(field, "wait="):
			n, err := strconv.Atoi(strings.TrimPrefix(field, "wait="))
			if err != nil || n < 0 {
				return scrape.Request{}, fmt.Errorf("invalid wait value %q", field)
			}
			if n > maxCommandWait {
				n = maxCommandWait
			}
			req.WaitTime = n
		case field == "noscreen":
			req.TakeScreenshot = false
		}
	}
	return req, nil
}
