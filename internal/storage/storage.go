package storage

import (
	"context"
	"errors"

	"scraperhub/internal/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint would be violated
var ErrConflict = errors.New("already exists")

// ListOptions controls pagination and filtering for list operations.
// Page is 1-based; PageSize is clamped to 1..100 by implementations.
type ListOptions struct {
	Page     int
	PageSize int
	IsActive *bool  // nil = no filter
	Search   string // case-insensitive substring match on name fields
}

// ItemPatch carries a partial item update; nil fields are left unchanged
type ItemPatch struct {
	Name        *string
	Description *string
	Price       *float64
	Quantity    *int
	IsActive    *bool
	Metadata    map[string]any
}

// UserPatch carries a partial user update; nil fields are left unchanged
type UserPatch struct {
	Email    *string
	Username *string
	FullName *string
	IsActive *bool
	Password *string
}

// Store defines item and user persistence.
// The registry of bots is deliberately not here: bot configs live in the
// bot package with their own JSON file snapshot.
type Store interface {
	// Item operations
	CreateItem(ctx context.Context, item models.Item) (models.Item, error)
	GetItem(ctx context.Context, id string) (models.Item, error)
	ListItems(ctx context.Context, opts ListOptions) ([]models.Item, int, error)
	UpdateItem(ctx context.Context, id string, patch ItemPatch) (models.Item, error)
	DeleteItem(ctx context.Context, id string) error
	DeleteAllItems(ctx context.Context) (int, error)

	// User operations
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)
	ListUsers(ctx context.Context, opts ListOptions) ([]models.User, int, error)
	UpdateUser(ctx context.Context, id string, patch UserPatch) (models.User, error)
	DeleteUser(ctx context.Context, id string) error

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// TransactionLog records finished scraper actions. Append-only.
type TransactionLog interface {
	RecordTransaction(ctx context.Context, tx models.Transaction) error

	// ListTransactions returns the most recent transactions, newest first.
	// game filters by game name when non-empty; limit <= 0 means 50.
	ListTransactions(ctx context.Context, game string, limit int) ([]models.Transaction, error)

	Close() error
}
