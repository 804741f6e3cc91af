package models

import "time"

// Item is a generic inventory record served by the CRUD API
type Item struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Price       float64        `json:"price"`
	Quantity    int            `json:"quantity"`
	IsActive    bool           `json:"is_active"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// User is an account record; the password hash is never serialized
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	IsActive  bool      `json:"is_active"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BotConfig describes one registered Telegram bot identity.
// The registry holds these in memory and snapshots them to a JSON file,
// so every field that must survive a restart carries a json tag.
type BotConfig struct {
	BotID           string    `json:"bot_id"`
	BotToken        string    `json:"bot_token"`
	BotName         string    `json:"bot_name"`
	ChannelID       string    `json:"channel_id"`
	AllowedUsers    []int64   `json:"allowed_users"`    // empty = everyone
	AllowedCommands []string  `json:"allowed_commands"` // empty = defaults
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`

	WebhookURL    string `json:"webhook_url,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`

	// Scraping defaults applied to commands that do not override them
	DefaultWaitTime      int  `json:"default_wait_time"`
	DefaultTimeout       int  `json:"default_timeout"`
	TakeScreenshot       bool `json:"take_screenshot"`
	SendToChannel        bool `json:"send_to_channel"`
	MaxRequestsPerMinute int  `json:"max_requests_per_minute"`
}

// PageResult is the outcome of scraping a single URL
type PageResult struct {
	Success    bool           `json:"success"`
	URL        string         `json:"url"`
	Timestamp  time.Time      `json:"timestamp"`
	Title      string         `json:"title,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	HTMLLength int            `json:"html_length"`
	Error      string         `json:"error,omitempty"`
}

// Transaction records one scraper action run against a game console
type Transaction struct {
	ID        string    `json:"id"`
	Game      string    `json:"game"`
	Action    string    `json:"action"`
	Username  string    `json:"username,omitempty"`
	Amount    float64   `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is one queued scraper action
type Task struct {
	ID         string         `json:"id"`
	Game       string         `json:"game"`
	Action     string         `json:"action"`
	Username   string         `json:"username,omitempty"`
	Amount     float64        `json:"amount,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// TaskResult is the stored outcome of a finished task
type TaskResult struct {
	TaskID     string         `json:"task_id"`
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
}
