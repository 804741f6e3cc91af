package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scraperhub/internal/models"
	"scraperhub/internal/storage"
)

type itemCreateRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Price       float64        `json:"price"`
	Quantity    int            `json:"quantity"`
	IsActive    *bool          `json:"is_active"`
	Metadata    map[string]any `json:"metadata"`
}

type itemUpdateRequest struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Price       *float64       `json:"price"`
	Quantity    *int           `json:"quantity"`
	IsActive    *bool          `json:"is_active"`
	Metadata    map[string]any `json:"metadata"`
}

func (a *API) itemList(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	items, total, err := a.Store.ListItems(r.Context(), opts)
	if err != nil {
		a.Logger.Error("Failed to list items", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list items")
		return
	}
	if items == nil {
		items = []models.Item{}
	}
	writeJSON(w, http.StatusOK, paginated(items, total, opts))
}

func (a *API) itemGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := a.Store.GetItem(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Item with ID '%s' not found", id)
		return
	}
	if err != nil {
		a.Logger.Error("Failed to get item", zap.String("item_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) itemCreate(w http.ResponseWriter, r *http.Request) {
	var req itemCreateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "name is required")
		return
	}
	if req.Price < 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "price must not be negative")
		return
	}
	if req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "quantity must not be negative")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	item, err := a.Store.CreateItem(r.Context(), models.Item{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
		IsActive:    active,
		Metadata:    req.Metadata,
	})
	if err != nil {
		a.Logger.Error("Failed to create item", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create item")
		return
	}
	a.Logger.Info("Item created", zap.String("item_id", item.ID), zap.String("name", item.Name))
	writeJSON(w, http.StatusCreated, item)
}

// itemUpdate serves both PUT and PATCH: fields absent from the body are
// left unchanged either way.
func (a *API) itemUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req itemUpdateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.Name != nil && *req.Name == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "name must not be empty")
		return
	}
	if req.Price != nil && *req.Price < 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "price must not be negative")
		return
	}
	if req.Quantity != nil && *req.Quantity < 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "quantity must not be negative")
		return
	}

	item, err := a.Store.UpdateItem(r.Context(), id, storage.ItemPatch{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
		IsActive:    req.IsActive,
		Metadata:    req.Metadata,
	})
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Item with ID '%s' not found", id)
		return
	}
	if err != nil {
		a.Logger.Error("Failed to update item", zap.String("item_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) itemDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := a.Store.DeleteItem(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Item with ID '%s' not found", id)
		return
	}
	if err != nil {
		a.Logger.Error("Failed to delete item", zap.String("item_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete item")
		return
	}
	writeSuccess(w, "Item '%s' deleted successfully", id)
}

func (a *API) itemDeleteAll(w http.ResponseWriter, r *http.Request) {
	count, err := a.Store.DeleteAllItems(r.Context())
	if err != nil {
		a.Logger.Error("Failed to delete items", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete items")
		return
	}
	a.Logger.Info("All items deleted", zap.Int("count", count))
	writeSuccess(w, "Deleted %d items", count)
}
