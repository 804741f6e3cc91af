package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scraperhub/internal/bot"
	"scraperhub/internal/models"
)

type botCreateRequest struct {
	BotID                string   `json:"bot_id"`
	BotToken             string   `json:"bot_token"`
	BotName              string   `json:"bot_name"`
	ChannelID            string   `json:"channel_id"`
	AllowedUsers         []int64  `json:"allowed_users"`
	AllowedCommands      []string `json:"allowed_commands"`
	IsActive             *bool    `json:"is_active"`
	WebhookSecret        string   `json:"webhook_secret"`
	DefaultWaitTime      *int     `json:"default_wait_time"`
	DefaultTimeout       *int     `json:"default_timeout"`
	TakeScreenshot       *bool    `json:"take_screenshot"`
	SendToChannel        *bool    `json:"send_to_channel"`
	MaxRequestsPerMinute *int     `json:"max_requests_per_minute"`
}

type botUpdateRequest struct {
	BotName              *string  `json:"bot_name"`
	ChannelID            *string  `json:"channel_id"`
	AllowedUsers         []int64  `json:"allowed_users"`
	AllowedCommands      []string `json:"allowed_commands"`
	IsActive             *bool    `json:"is_active"`
	WebhookSecret        *string  `json:"webhook_secret"`
	DefaultWaitTime      *int     `json:"default_wait_time"`
	DefaultTimeout       *int     `json:"default_timeout"`
	TakeScreenshot       *bool    `json:"take_screenshot"`
	SendToChannel        *bool    `json:"send_to_channel"`
	MaxRequestsPerMinute *int     `json:"max_requests_per_minute"`
}

type bulkBotsRequest struct {
	Bots []botCreateRequest `json:"bots"`
}

type broadcastRequest struct {
	Message string   `json:"message"`
	BotIDs  []string `json:"bot_ids"`
}

// botResponse is the public view of a bot. The token and webhook secret
// never leave the service.
type botResponse struct {
	BotID                string    `json:"bot_id"`
	BotName              string    `json:"bot_name"`
	ChannelID            string    `json:"channel_id"`
	AllowedUsers         []int64   `json:"allowed_users"`
	AllowedCommands      []string  `json:"allowed_commands"`
	IsActive             bool      `json:"is_active"`
	WebhookURL           string    `json:"webhook_url,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	DefaultWaitTime      int       `json:"default_wait_time"`
	DefaultTimeout       int       `json:"default_timeout"`
	TakeScreenshot       bool      `json:"take_screenshot"`
	SendToChannel        bool      `json:"send_to_channel"`
	MaxRequestsPerMinute int       `json:"max_requests_per_minute"`
}

func toBotResponse(cfg models.BotConfig) botResponse {
	users := cfg.AllowedUsers
	if users == nil {
		users = []int64{}
	}
	commands := cfg.AllowedCommands
	if commands == nil {
		commands = []string{}
	}
	return botResponse{
		BotID:                cfg.BotID,
		BotName:              cfg.BotName,
		ChannelID:            cfg.ChannelID,
		AllowedUsers:         users,
		AllowedCommands:      commands,
		IsActive:             cfg.IsActive,
		WebhookURL:           cfg.WebhookURL,
		CreatedAt:            cfg.CreatedAt,
		DefaultWaitTime:      cfg.DefaultWaitTime,
		DefaultTimeout:       cfg.DefaultTimeout,
		TakeScreenshot:       cfg.TakeScreenshot,
		SendToChannel:        cfg.SendToChannel,
		MaxRequestsPerMinute: cfg.MaxRequestsPerMinute,
	}
}

func (req botCreateRequest) validate() string {
	if req.BotID == "" || len(req.BotID) > 50 {
		return "bot_id must be 1 to 50 characters"
	}
	if len(req.BotToken) < 40 {
		return "bot_token must be at least 40 characters"
	}
	if req.BotName == "" || len(req.BotName) > 100 {
		return "bot_name must be 1 to 100 characters"
	}
	if req.ChannelID == "" {
		return "channel_id is required"
	}
	if req.DefaultWaitTime != nil && (*req.DefaultWaitTime < 0 || *req.DefaultWaitTime > 60) {
		return "default_wait_time must be 0 to 60"
	}
	if req.DefaultTimeout != nil && (*req.DefaultTimeout < 10 || *req.DefaultTimeout > 120) {
		return "default_timeout must be 10 to 120"
	}
	return ""
}

func (req botCreateRequest) toConfig() models.BotConfig {
	commands := req.AllowedCommands
	if commands == nil {
		commands = append([]string(nil), bot.DefaultCommands...)
	}
	return models.BotConfig{
		BotID:                req.BotID,
		BotToken:             req.BotToken,
		BotName:              req.BotName,
		ChannelID:            req.ChannelID,
		AllowedUsers:         req.AllowedUsers,
		AllowedCommands:      commands,
		IsActive:             boolOr(req.IsActive, true),
		WebhookSecret:        req.WebhookSecret,
		DefaultWaitTime:      intOr(req.DefaultWaitTime, 5),
		DefaultTimeout:       intOr(req.DefaultTimeout, 30),
		TakeScreenshot:       boolOr(req.TakeScreenshot, true),
		SendToChannel:        boolOr(req.SendToChannel, true),
		MaxRequestsPerMinute: intOr(req.MaxRequestsPerMinute, 0),
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func (a *API) botList(w http.ResponseWriter, r *http.Request) {
	clients := a.Registry.List()
	bots := make([]botResponse, 0, len(clients))
	for _, client := range clients {
		bots = append(bots, toBotResponse(client.Config()))
	}
	writeJSON(w, http.StatusOK, bots)
}

func (a *API) botGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	client, ok := a.Registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Bot '%s' not found", id)
		return
	}
	writeJSON(w, http.StatusOK, toBotResponse(client.Config()))
}

// botRegister creates a bot and verifies its token with a getMe call.
// A bot that fails verification is rolled back so the registry never
// holds unusable credentials.
func (a *API) botRegister(w http.ResponseWriter, r *http.Request) {
	var req botCreateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "validation_error", "%s", msg)
		return
	}

	client, err := a.Registry.Register(req.toConfig())
	if errors.Is(err, bot.ErrBotExists) {
		writeError(w, http.StatusConflict, "conflict", "Bot '%s' already exists", req.BotID)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "%s", err.Error())
		return
	}

	if _, err := client.TestConnection(); err != nil {
		if removeErr := a.Registry.Remove(req.BotID); removeErr != nil {
			a.Logger.Error("Failed to roll back bot registration",
				zap.String("bot_id", req.BotID), zap.Error(removeErr))
		}
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid bot token: %s", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toBotResponse(client.Config()))
}

// botRegisterBulk registers up to 50 bots in one call. Tokens are not
// verified here; a bad one surfaces on first use or via the test endpoint.
func (a *API) botRegisterBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkBotsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if len(req.Bots) == 0 || len(req.Bots) > 50 {
		writeError(w, http.StatusBadRequest, "validation_error", "bots must contain 1 to 50 entries")
		return
	}

	type failedBot struct {
		BotID string `json:"bot_id"`
		Error string `json:"error"`
	}
	succeeded := make([]string, 0, len(req.Bots))
	failed := make([]failedBot, 0)

	for _, b := range req.Bots {
		if msg := b.validate(); msg != "" {
			failed = append(failed, failedBot{BotID: b.BotID, Error: msg})
			continue
		}
		if _, err := a.Registry.Register(b.toConfig()); err != nil {
			failed = append(failed, failedBot{BotID: b.BotID, Error: err.Error()})
			continue
		}
		succeeded = append(succeeded, b.BotID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":      len(req.Bots),
		"registered": len(succeeded),
		"failed":     len(failed),
		"results": map[string]any{
			"success": succeeded,
			"failed":  failed,
		},
	})
}

func (a *API) botUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	client, ok := a.Registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Bot '%s' not found", id)
		return
	}

	var req botUpdateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.BotName != nil && (*req.BotName == "" || len(*req.BotName) > 100) {
		writeError(w, http.StatusBadRequest, "validation_error", "bot_name must be 1 to 100 characters")
		return
	}
	if req.DefaultWaitTime != nil && (*req.DefaultWaitTime < 0 || *req.DefaultWaitTime > 60) {
		writeError(w, http.StatusBadRequest, "validation_error", "default_wait_time must be 0 to 60")
		return
	}
	if req.DefaultTimeout != nil && (*req.DefaultTimeout < 10 || *req.DefaultTimeout > 120) {
		writeError(w, http.StatusBadRequest, "validation_error", "default_timeout must be 10 to 120")
		return
	}

	cfg := client.Config()
	if req.BotName != nil {
		cfg.BotName = *req.BotName
	}
	if req.ChannelID != nil {
		cfg.ChannelID = *req.ChannelID
	}
	if req.AllowedUsers != nil {
		cfg.AllowedUsers = req.AllowedUsers
	}
	if req.AllowedCommands != nil {
		cfg.AllowedCommands = req.AllowedCommands
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}
	if req.WebhookSecret != nil {
		cfg.WebhookSecret = *req.WebhookSecret
	}
	if req.DefaultWaitTime != nil {
		cfg.DefaultWaitTime = *req.DefaultWaitTime
	}
	if req.DefaultTimeout != nil {
		cfg.DefaultTimeout = *req.DefaultTimeout
	}
	if req.TakeScreenshot != nil {
		cfg.TakeScreenshot = *req.TakeScreenshot
	}
	if req.SendToChannel != nil {
		cfg.SendToChannel = *req.SendToChannel
	}
	if req.MaxRequestsPerMinute != nil {
		cfg.MaxRequestsPerMinute = *req.MaxRequestsPerMinute
	}

	updated, err := a.Registry.Update(id, cfg)
	if err != nil {
		a.Logger.Error("Failed to update bot", zap.String("bot_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update bot")
		return
	}
	writeJSON(w, http.StatusOK, toBotResponse(updated.Config()))
}

func (a *API) botRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	client, ok := a.Registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Bot '%s' not found", id)
		return
	}

	// Pull the Telegram-side webhook first so updates stop arriving for a
	// route that is about to disappear.
	if client.Config().WebhookURL != "" {
		if err := client.DeleteWebhook(); err != nil {
			a.Logger.Warn("Failed to delete webhook before removal",
				zap.String("bot_id", id), zap.Error(err))
		}
	}

	if err := a.Registry.Remove(id); err != nil {
		a.Logger.Error("Failed to remove bot", zap.String("bot_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to remove bot")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) botTest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	client, ok := a.Registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Bot '%s' not found", id)
		return
	}

	resp := map[string]any{
		"success":      false,
		"bot_info":     nil,
		"message_sent": false,
		"error":        nil,
	}

	username, err := client.TestConnection()
	if err != nil {
		resp["error"] = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp["bot_info"] = map[string]string{"username": username}

	cfg := client.Config()
	text := "🤖 Test Message\n\nBot: " + cfg.BotName +
		"\nStatus: ✅ Working\nTime: " + time.Now().UTC().Format("2006-01-02 15:04:05 UTC")
	if err := client.SendToChannel(r.Context(), text); err != nil {
		resp["error"] = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp["success"] = true
	resp["message_sent"] = true
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) botBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "message is required")
		return
	}

	outcomes := a.Registry.Broadcast(r.Context(), req.Message, req.BotIDs)

	results := make(map[string]bool, len(outcomes))
	sent, failedCount := 0, 0
	for _, o := range outcomes {
		results[o.BotID] = o.Success
		if o.Success {
			sent++
		} else {
			failedCount++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      failedCount == 0,
		"results":      results,
		"total_sent":   sent,
		"total_failed": failedCount,
	})
}

func (a *API) botStats(w http.ResponseWriter, r *http.Request) {
	clients := a.Registry.List()
	botIDs := make([]string, 0, len(clients))
	activeIDs := make([]string, 0, len(clients))
	webhooks := 0
	for _, client := range clients {
		cfg := client.Config()
		botIDs = append(botIDs, cfg.BotID)
		if cfg.IsActive {
			activeIDs = append(activeIDs, cfg.BotID)
		}
		if cfg.WebhookURL != "" {
			webhooks++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_bots":          len(botIDs),
		"active_bots":         len(activeIDs),
		"inactive_bots":       len(botIDs) - len(activeIDs),
		"bot_ids":             botIDs,
		"active_bot_ids":      activeIDs,
		"webhooks_configured": webhooks,
		"environment":         a.Cfg.Environment,
	})
}
