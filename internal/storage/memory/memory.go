package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scraperhub/internal/models"
	"scraperhub/internal/storage"
)

// Store is the in-memory implementation of storage.Store and
// storage.TransactionLog. It is the default backend: items, users and bot
// state live in process memory only, so everything here is mutex-guarded
// and sorted on the way out to keep pagination deterministic.
type Store struct {
	mu           sync.RWMutex
	items        map[string]models.Item
	users        map[string]models.User
	transactions []models.Transaction
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		items: make(map[string]models.Item),
		users: make(map[string]models.User),
	}
}

// Initialize seeds demo items and users so the CRUD API answers something
// useful on a fresh start
func (s *Store) Initialize(ctx context.Context) error {
	now := time.Now().UTC()

	seedItems := []models.Item{
		{Name: "Laptop", Description: "High-performance laptop", Price: 1299.99, Quantity: 15, IsActive: true},
		{Name: "Smartphone", Description: "Latest model smartphone", Price: 899.50, Quantity: 42, IsActive: true},
		{Name: "Headphones", Description: "Noise-cancelling headphones", Price: 249.00, Quantity: 77, IsActive: true},
		{Name: "Monitor", Description: "27-inch 4K monitor", Price: 459.99, Quantity: 8, IsActive: false},
		{Name: "Keyboard", Description: "Mechanical keyboard", Price: 129.90, Quantity: 120, IsActive: true},
	}
	seedUsers := []models.User{
		{Email: "admin@example.com", Username: "admin", FullName: "Admin User", IsActive: true},
		{Email: "john@example.com", Username: "johndoe", FullName: "John Doe", IsActive: true},
		{Email: "jane@example.com", Username: "janedoe", FullName: "Jane Doe", IsActive: false},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range seedItems {
		item.ID = uuid.NewString()
		// spread timestamps so list order is stable
		item.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		item.UpdatedAt = item.CreatedAt
		s.items[item.ID] = item
	}
	for i, user := range seedUsers {
		user.ID = uuid.NewString()
		user.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		user.UpdatedAt = user.CreatedAt
		s.users[user.ID] = user
	}
	return nil
}

// CreateItem stores a new item and returns it with id and timestamps set
func (s *Store) CreateItem(ctx context.Context, item models.Item) (models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item.ID = uuid.NewString()
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	s.items[item.ID] = item
	return item, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return models.Item{}, storage.ErrNotFound
	}
	return item, nil
}

// ListItems returns one page of items plus the total count after filtering
func (s *Store) ListItems(ctx context.Context, opts storage.ListOptions) ([]models.Item, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []models.Item
	search := strings.ToLower(opts.Search)
	for _, item := range s.items {
		if opts.IsActive != nil && item.IsActive != *opts.IsActive {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(item.Name), search) &&
			!strings.Contains(strings.ToLower(item.Description), search) {
			continue
		}
		filtered = append(filtered, item)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
		}
		return filtered[i].ID < filtered[j].ID
	})

	total := len(filtered)
	page := pageSlice(len(filtered), opts)
	return filtered[page.start:page.end], total, nil
}

func (s *Store) UpdateItem(ctx context.Context, id string, patch storage.ItemPatch) (models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return models.Item{}, storage.ErrNotFound
	}
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.Price != nil {
		item.Price = *patch.Price
	}
	if patch.Quantity != nil {
		item.Quantity = *patch.Quantity
	}
	if patch.IsActive != nil {
		item.IsActive = *patch.IsActive
	}
	if patch.Metadata != nil {
		item.Metadata = patch.Metadata
	}
	item.UpdatedAt = time.Now().UTC()
	s.items[id] = item
	return item, nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// DeleteAllItems removes every item and returns how many were deleted
func (s *Store) DeleteAllItems(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	s.items = make(map[string]models.Item)
	return n, nil
}

// CreateUser stores a new user; the email must be unique
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return models.User{}, storage.ErrConflict
		}
	}

	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, opts storage.ListOptions) ([]models.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []models.User
	search := strings.ToLower(opts.Search)
	for _, user := range s.users {
		if opts.IsActive != nil && user.IsActive != *opts.IsActive {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(user.Username), search) &&
			!strings.Contains(strings.ToLower(user.Email), search) &&
			!strings.Contains(strings.ToLower(user.FullName), search) {
			continue
		}
		filtered = append(filtered, user)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
		}
		return filtered[i].ID < filtered[j].ID
	})

	total := len(filtered)
	page := pageSlice(len(filtered), opts)
	return filtered[page.start:page.end], total, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, patch storage.UserPatch) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	if patch.Email != nil {
		for uid, existing := range s.users {
			if uid != id && strings.EqualFold(existing.Email, *patch.Email) {
				return models.User{}, storage.ErrConflict
			}
		}
		user.Email = *patch.Email
	}
	if patch.Username != nil {
		user.Username = *patch.Username
	}
	if patch.FullName != nil {
		user.FullName = *patch.FullName
	}
	if patch.IsActive != nil {
		user.IsActive = *patch.IsActive
	}
	if patch.Password != nil {
		user.Password = *patch.Password
	}
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return user, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// RecordTransaction appends a finished scraper action to the log
func (s *Store) RecordTransaction(ctx context.Context, tx models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.transactions = append(s.transactions, tx)
	return nil
}

// ListTransactions returns the most recent transactions, newest first
func (s *Store) ListTransactions(ctx context.Context, game string, limit int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var out []models.Transaction
	for i := len(s.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if game != "" && s.transactions[i].Game != game {
			continue
		}
		out = append(out, s.transactions[i])
	}
	return out, nil
}

// Close does nothing for the in-memory store
func (s *Store) Close() error {
	return nil
}

type pageBounds struct {
	start, end int
}

func pageSlice(total int, opts storage.ListOptions) pageBounds {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size < 1 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return pageBounds{start: start, end: end}
}
