package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"scraperhub/internal/models"
	"scraperhub/internal/storage"
)

func TestStore_SeedData(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}

	items, total, err := s.ListItems(ctx, storage.ListOptions{Page: 1, PageSize: 100})
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if total != 5 || len(items) != 5 {
		t.Errorf("Expected 5 seeded items, got total=%d len=%d", total, len(items))
	}

	users, total, err := s.ListUsers(ctx, storage.ListOptions{Page: 1, PageSize: 100})
	if err != nil {
		t.Fatalf("Failed to list users: %v", err)
	}
	if total != 3 || len(users) != 3 {
		t.Errorf("Expected 3 seeded users, got total=%d len=%d", total, len(users))
	}
}

func TestStore_ItemCRUD(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateItem(ctx, models.Item{Name: "Widget", Price: 9.99, Quantity: 3, IsActive: true})
	if err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Expected non-empty item ID")
	}
	if created.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	got, err := s.GetItem(ctx, created.ID)
	if err != nil {
		t.Fatalf("Failed to get item: %v", err)
	}
	if got.Name != "Widget" {
		t.Errorf("Expected name 'Widget', got '%s'", got.Name)
	}

	newName := "Gadget"
	newPrice := 19.99
	updated, err := s.UpdateItem(ctx, created.ID, storage.ItemPatch{Name: &newName, Price: &newPrice})
	if err != nil {
		t.Fatalf("Failed to update item: %v", err)
	}
	if updated.Name != "Gadget" || updated.Price != 19.99 {
		t.Errorf("Patch not applied: %+v", updated)
	}
	if updated.Quantity != 3 {
		t.Errorf("Untouched field changed: quantity = %d", updated.Quantity)
	}

	if err := s.DeleteItem(ctx, created.ID); err != nil {
		t.Fatalf("Failed to delete item: %v", err)
	}
	if _, err := s.GetItem(ctx, created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_GetItemNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetItem(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListItemsPagination(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		_, err := s.CreateItem(ctx, models.Item{Name: fmt.Sprintf("item-%02d", i), IsActive: i%2 == 0})
		if err != nil {
			t.Fatalf("Failed to create item %d: %v", i, err)
		}
	}

	page2, total, err := s.ListItems(ctx, storage.ListOptions{Page: 2, PageSize: 10})
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if total != 25 {
		t.Errorf("Expected total 25, got %d", total)
	}
	if len(page2) != 10 {
		t.Errorf("Expected 10 items on page 2, got %d", len(page2))
	}

	page3, _, err := s.ListItems(ctx, storage.ListOptions{Page: 3, PageSize: 10})
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if len(page3) != 5 {
		t.Errorf("Expected 5 items on page 3, got %d", len(page3))
	}

	// Out-of-range page returns an empty slice, not an error
	page9, _, err := s.ListItems(ctx, storage.ListOptions{Page: 9, PageSize: 10})
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if len(page9) != 0 {
		t.Errorf("Expected empty page, got %d items", len(page9))
	}

	// Pages do not overlap
	seen := map[string]bool{}
	for _, it := range page2 {
		seen[it.ID] = true
	}
	for _, it := range page3 {
		if seen[it.ID] {
			t.Errorf("Item %s appears on two pages", it.ID)
		}
	}
}

func TestStore_ListItemsFilters(t *testing.T) {
	s := New()
	ctx := context.Background()

	active := true
	inactive := false
	s.CreateItem(ctx, models.Item{Name: "Red Laptop", IsActive: true})
	s.CreateItem(ctx, models.Item{Name: "Blue Laptop", IsActive: false})
	s.CreateItem(ctx, models.Item{Name: "Mouse", Description: "laptop accessory", IsActive: true})

	got, total, err := s.ListItems(ctx, storage.ListOptions{Page: 1, PageSize: 10, IsActive: &active})
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Errorf("Expected 2 active items, got %d", total)
	}

	got, total, err = s.ListItems(ctx, storage.ListOptions{Page: 1, PageSize: 10, Search: "laptop"})
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if total != 3 {
		t.Errorf("Expected search to match name and description, got %d", total)
	}

	got, total, err = s.ListItems(ctx, storage.ListOptions{Page: 1, PageSize: 10, IsActive: &inactive, Search: "laptop"})
	if err != nil {
		t.Fatalf("Failed to list items: %v", err)
	}
	if total != 1 || got[0].Name != "Blue Laptop" {
		t.Errorf("Expected combined filters to match 1 item, got %d", total)
	}
}

func TestStore_DeleteAllItems(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		s.CreateItem(ctx, models.Item{Name: fmt.Sprintf("i%d", i)})
	}

	n, err := s.DeleteAllItems(ctx)
	if err != nil {
		t.Fatalf("Failed to delete all items: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 deleted, got %d", n)
	}
	_, total, _ := s.ListItems(ctx, storage.ListOptions{Page: 1, PageSize: 10})
	if total != 0 {
		t.Errorf("Expected empty store, got %d items", total)
	}
}

func TestStore_UserUniqueEmail(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.CreateUser(ctx, models.User{Email: "a@example.com", Username: "a"})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if _, err := s.CreateUser(ctx, models.User{Email: "A@Example.com", Username: "b"}); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("Expected ErrConflict for duplicate email, got %v", err)
	}

	second, err := s.CreateUser(ctx, models.User{Email: "b@example.com", Username: "b"})
	if err != nil {
		t.Fatalf("Failed to create second user: %v", err)
	}

	// Updating to an email held by another user conflicts as well
	dup := "a@example.com"
	if _, err := s.UpdateUser(ctx, second.ID, storage.UserPatch{Email: &dup}); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("Expected ErrConflict on update, got %v", err)
	}

	// Re-setting a user's own email is fine
	own := "a@example.com"
	if _, err := s.UpdateUser(ctx, first.ID, storage.UserPatch{Email: &own}); err != nil {
		t.Errorf("Expected own-email update to succeed, got %v", err)
	}
}

func TestStore_Transactions(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.RecordTransaction(ctx, models.Transaction{
			Game:   "egame99",
			Action: "recharge",
			Status: "success",
		})
		if err != nil {
			t.Fatalf("Failed to record transaction: %v", err)
		}
	}
	s.RecordTransaction(ctx, models.Transaction{Game: "juwa777", Action: "redeem", Status: "error"})

	all, err := s.ListTransactions(ctx, "", 0)
	if err != nil {
		t.Fatalf("Failed to list transactions: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("Expected 4 transactions, got %d", len(all))
	}
	if all[0].Game != "juwa777" {
		t.Errorf("Expected newest first, got %s", all[0].Game)
	}
	if all[0].ID == "" || all[0].CreatedAt.IsZero() {
		t.Error("Expected id and timestamp to be filled in")
	}

	egame, err := s.ListTransactions(ctx, "egame99", 2)
	if err != nil {
		t.Fatalf("Failed to list filtered transactions: %v", err)
	}
	if len(egame) != 2 {
		t.Errorf("Expected limit 2, got %d", len(egame))
	}
	for _, tx := range egame {
		if tx.Game != "egame99" {
			t.Errorf("Filter leaked game %s", tx.Game)
		}
	}
}
