package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// webhookHandleBudget bounds one background update, which may run a full
// batch scrape.
const webhookHandleBudget = 5 * time.Minute

type webhookSetupRequest struct {
	BaseURL string `json:"base_url"`
	Secret  string `json:"secret"`
}

// webhookIngest receives a Telegram update for one bot. The response goes
// out immediately; the update is handled in the background so a slow
// scrape never triggers Telegram's webhook retry.
func (a *API) webhookIngest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	client, ok := a.Registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Bot '%s' not found", id)
		return
	}

	cfg := client.Config()
	if cfg.WebhookSecret != "" && r.Header.Get(telegramSecretHeader) != cfg.WebhookSecret {
		a.Logger.Warn("Webhook secret mismatch", zap.String("bot_id", id))
		writeError(w, http.StatusForbidden, "forbidden", "Invalid secret")
		return
	}

	var update tgbotapi.Update
	if err := readJSON(r, &update); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid update payload")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookHandleBudget)
		defer cancel()
		a.Handler.HandleUpdate(ctx, client, update)
	}()

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// webhookSetupAll points every active bot's webhook at the given base URL.
// One shared secret covers the batch; omitting it mints a random one.
func (a *API) webhookSetupAll(w http.ResponseWriter, r *http.Request) {
	var req webhookSetupRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	base := req.BaseURL
	if base == "" {
		base = a.Cfg.WebhookBaseURL
	}
	if base == "" {
		writeError(w, http.StatusBadRequest, "validation_error",
			"base_url is required when WEBHOOK_BASE_URL is not configured")
		return
	}
	secret := req.Secret
	if secret == "" {
		secret = newWebhookSecret()
	}

	results := make(map[string]bool)
	urls := make(map[string]string)
	for _, client := range a.Registry.List() {
		cfg := client.Config()
		if !cfg.IsActive {
			continue
		}
		url, err := a.Registry.SetupWebhook(cfg.BotID, base, secret)
		if err != nil {
			a.Logger.Error("Webhook setup failed",
				zap.String("bot_id", cfg.BotID), zap.Error(err))
			results[cfg.BotID] = false
			continue
		}
		results[cfg.BotID] = true
		urls[cfg.BotID] = url
	}

	success := true
	for _, ok := range results {
		success = success && ok
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      success,
		"results":      results,
		"webhook_urls": urls,
	})
}

func (a *API) webhookSetup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.Registry.Get(id); !ok {
		writeError(w, http.StatusNotFound, "not_found", "Bot '%s' not found", id)
		return
	}

	var req webhookSetupRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	base := req.BaseURL
	if base == "" {
		base = a.Cfg.WebhookBaseURL
	}
	if base == "" {
		writeError(w, http.StatusBadRequest, "validation_error",
			"base_url is required when WEBHOOK_BASE_URL is not configured")
		return
	}

	url, err := a.Registry.SetupWebhook(id, base, req.Secret)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"webhook_url": url,
	})
}

func (a *API) webhookDeleteAll(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]bool)
	for _, client := range a.Registry.List() {
		cfg := client.Config()
		if cfg.WebhookURL == "" {
			continue
		}
		if err := a.Registry.TeardownWebhook(cfg.BotID); err != nil {
			a.Logger.Error("Webhook teardown failed",
				zap.String("bot_id", cfg.BotID), zap.Error(err))
			results[cfg.BotID] = false
			continue
		}
		results[cfg.BotID] = true
	}

	success := true
	for _, ok := range results {
		success = success && ok
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": success,
		"results": results,
	})
}

func (a *API) webhookDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := a.Registry.Get(id); !ok {
		writeError(w, http.StatusNotFound, "not_found", "Bot '%s' not found", id)
		return
	}

	if err := a.Registry.TeardownWebhook(id); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) webhookInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	client, ok := a.Registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Bot '%s' not found", id)
		return
	}

	info, err := client.WebhookInfo()
	if err != nil {
		a.Logger.Error("Failed to fetch webhook info",
			zap.String("bot_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch webhook info")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func newWebhookSecret() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
