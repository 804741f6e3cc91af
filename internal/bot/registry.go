package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"scraperhub/internal/models"
)

var (
	ErrBotExists   = errors.New("bot already registered")
	ErrBotNotFound = errors.New("bot not found")
)

// Registry defaults applied to configs that leave them unset.
const (
	defaultWaitTime    = 5
	defaultTimeout     = 30
	defaultRateCeiling = 10
)

// Registry holds every configured bot and mirrors the set to a JSON file.
// The file is the source of truth across restarts; an environment provided
// bootstrap bot lives only in memory.
type Registry struct {
	file     string
	endpoint string
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry persisting to the given file.
func NewRegistry(file string, logger *zap.Logger) *Registry {
	return &Registry{
		file:     file,
		endpoint: tgbotapi.APIEndpoint,
		logger:   logger,
		clients:  make(map[string]*Client),
	}
}

// SetAPIEndpoint points newly created clients at a custom Telegram API
// endpoint. Call before Load or Register.
func (r *Registry) SetAPIEndpoint(endpoint string) {
	r.endpoint = endpoint
}

// Load reads the persisted bot set. A missing file is an empty registry.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read bots file: %w", err)
	}

	var snapshot botsFile
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to parse bots file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range snapshot.Bots {
		cfg = withDefaults(cfg)
		r.clients[cfg.BotID] = NewClientWithEndpoint(cfg, r.endpoint, r.logger)
	}

	r.logger.Info("Bots loaded", zap.Int("count", len(snapshot.Bots)), zap.String("file", r.file))
	return nil
}

// Bootstrap adds the environment configured bot under the id "default"
// unless the persisted set already has one. It is not written to disk.
func (r *Registry) Bootstrap(token, channelID, name, webhookSecret string) {
	if token == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients["default"]; ok {
		return
	}

	if name == "" {
		name = "default"
	}
	cfg := withDefaults(models.BotConfig{
		BotID:         "default",
		BotToken:      token,
		BotName:       name,
		ChannelID:     channelID,
		WebhookSecret: webhookSecret,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	})
	r.clients["default"] = NewClientWithEndpoint(cfg, r.endpoint, r.logger)

	r.logger.Info("Default bot configured from environment", zap.String("bot_name", name))
}

// Register adds a new bot and persists the set.
func (r *Registry) Register(cfg models.BotConfig) (*Client, error) {
	if cfg.BotID == "" {
		return nil, fmt.Errorf("bot_id is required")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot_token is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[cfg.BotID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrBotExists, cfg.BotID)
	}

	cfg = withDefaults(cfg)
	cfg.CreatedAt = time.Now().UTC()
	client := NewClientWithEndpoint(cfg, r.endpoint, r.logger)
	r.clients[cfg.BotID] = client

	if err := r.saveLocked(); err != nil {
		delete(r.clients, cfg.BotID)
		return nil, err
	}

	r.logger.Info("Bot registered", zap.String("bot_id", cfg.BotID), zap.String("bot_name", cfg.BotName))
	return client, nil
}

// Update replaces a bot's configuration and persists the set. The bot id
// and creation time are preserved.
func (r *Registry) Update(botID string, cfg models.BotConfig) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[botID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBotNotFound, botID)
	}

	current := client.Config()
	cfg.BotID = botID
	cfg.CreatedAt = current.CreatedAt
	cfg = withDefaults(cfg)
	client.UpdateConfig(cfg)

	if err := r.saveLocked(); err != nil {
		client.UpdateConfig(current)
		return nil, err
	}

	r.logger.Info("Bot updated", zap.String("bot_id", botID))
	return client, nil
}

// Remove deletes a bot and persists the set.
func (r *Registry) Remove(botID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[botID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBotNotFound, botID)
	}
	delete(r.clients, botID)

	if err := r.saveLocked(); err != nil {
		r.clients[botID] = client
		return err
	}

	r.logger.Info("Bot removed", zap.String("bot_id", botID))
	return nil
}

// Get returns the client for a bot id.
func (r *Registry) Get(botID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[botID]
	return client, ok
}

// List returns all clients ordered by bot id.
func (r *Registry) List() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	clients := make([]*Client, 0, len(ids))
	for _, id := range ids {
		clients = append(clients, r.clients[id])
	}
	return clients
}

// Count returns the total and active bot counts.
func (r *Registry) Count() (total, active int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, client := range r.clients {
		total++
		if client.Config().IsActive {
			active++
		}
	}
	return total, active
}

// BroadcastOutcome reports one bot's part of a broadcast.
type BroadcastOutcome struct {
	BotID   string `json:"bot_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Broadcast sends text to the channel of every active bot and reports each
// outcome. A non-empty botIDs restricts delivery to those bots.
func (r *Registry) Broadcast(ctx context.Context, text string, botIDs []string) []BroadcastOutcome {
	var wanted map[string]bool
	if len(botIDs) > 0 {
		wanted = make(map[string]bool, len(botIDs))
		for _, id := range botIDs {
			wanted[id] = true
		}
	}

	outcomes := make([]BroadcastOutcome, 0)
	for _, client := range r.List() {
		cfg := client.Config()
		if !cfg.IsActive {
			continue
		}
		if wanted != nil && !wanted[cfg.BotID] {
			continue
		}
		outcome := BroadcastOutcome{BotID: cfg.BotID, Success: true}
		if err := client.SendToChannel(ctx, text); err != nil {
			outcome.Success = false
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// SetupWebhook registers a bot's Telegram webhook under baseURL and
// persists the resulting route. A non-empty secret replaces the bot's
// webhook secret first so Telegram echoes it on every delivery.
func (r *Registry) SetupWebhook(botID, baseURL, secret string) (string, error) {
	client, ok := r.Get(botID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBotNotFound, botID)
	}

	if secret != "" {
		cfg := client.Config()
		cfg.WebhookSecret = secret
		client.UpdateConfig(cfg)
	}

	// The Telegram call happens outside the registry lock.
	hookURL, err := client.SetWebhook(baseURL)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := client.Config()
	cfg.WebhookURL = hookURL
	client.UpdateConfig(cfg)
	return hookURL, r.saveLocked()
}

// TeardownWebhook removes a bot's webhook on the Telegram side and
// clears the stored route.
func (r *Registry) TeardownWebhook(botID string) error {
	client, ok := r.Get(botID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBotNotFound, botID)
	}
	if err := client.DeleteWebhook(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := client.Config()
	cfg.WebhookURL = ""
	client.UpdateConfig(cfg)
	return r.saveLocked()
}

// Save persists the current bot set.
func (r *Registry) Save() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saveLocked()
}

type botsFile struct {
	Bots []models.BotConfig `json:"bots"`
}

// saveLocked snapshots the registry to disk via a temp file rename, so a
// crash mid write never leaves a torn file. Callers hold at least a read
// lock. The bootstrap bot is environment owned and skipped.
func (r *Registry) saveLocked() error {
	snapshot := botsFile{Bots: make([]models.BotConfig, 0, len(r.clients))}
	for id, client := range r.clients {
		if id == "default" {
			continue
		}
		snapshot.Bots = append(snapshot.Bots, client.Config())
	}
	sort.Slice(snapshot.Bots, func(i, j int) bool { return snapshot.Bots[i].BotID < snapshot.Bots[j].BotID })

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bots file: %w", err)
	}

	dir := filepath.Dir(r.file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bots dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".bots-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write bots file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close bots file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to set bots file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.file); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace bots file: %w", err)
	}
	return nil
}

func withDefaults(cfg models.BotConfig) models.BotConfig {
	if cfg.DefaultWaitTime <= 0 {
		cfg.DefaultWaitTime = defaultWaitTime
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = defaultRateCeiling
	}
	return cfg
}
