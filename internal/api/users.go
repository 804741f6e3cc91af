package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"scraperhub/internal/models"
	"scraperhub/internal/storage"
)

type userCreateRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	IsActive *bool  `json:"is_active"`
}

type userUpdateRequest struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

func (a *API) userList(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	users, total, err := a.Store.ListUsers(r.Context(), opts)
	if err != nil {
		a.Logger.Error("Failed to list users", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list users")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, paginated(users, total, opts))
}

func (a *API) userGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := a.Store.GetUser(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "User with ID '%s' not found", id)
		return
	}
	if err != nil {
		a.Logger.Error("Failed to get user", zap.String("user_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) userCreate(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "validation_error", "a valid email is required")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "username is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "validation_error", "password must be at least 8 characters")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	user, err := a.Store.CreateUser(r.Context(), models.User{
		Email:    req.Email,
		Username: req.Username,
		FullName: req.FullName,
		Password: req.Password,
		IsActive: active,
	})
	if errors.Is(err, storage.ErrConflict) {
		writeError(w, http.StatusConflict, "conflict", "User with email '%s' already exists", req.Email)
		return
	}
	if err != nil {
		a.Logger.Error("Failed to create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create user")
		return
	}
	a.Logger.Info("User created", zap.String("user_id", user.ID), zap.String("username", user.Username))
	writeJSON(w, http.StatusCreated, user)
}

// userUpdate serves both PUT and PATCH with partial-update semantics.
// The password is write-only: it can be changed here but never appears
// in a response.
func (a *API) userUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req userUpdateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.Email != nil && !strings.Contains(*req.Email, "@") {
		writeError(w, http.StatusBadRequest, "validation_error", "a valid email is required")
		return
	}
	if req.Username != nil && *req.Username == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "username must not be empty")
		return
	}
	if req.Password != nil && len(*req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "validation_error", "password must be at least 8 characters")
		return
	}

	user, err := a.Store.UpdateUser(r.Context(), id, storage.UserPatch{
		Email:    req.Email,
		Username: req.Username,
		FullName: req.FullName,
		Password: req.Password,
		IsActive: req.IsActive,
	})
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "User with ID '%s' not found", id)
		return
	}
	if errors.Is(err, storage.ErrConflict) {
		writeError(w, http.StatusConflict, "conflict", "User with email '%s' already exists", *req.Email)
		return
	}
	if err != nil {
		a.Logger.Error("Failed to update user", zap.String("user_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) userDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := a.Store.DeleteUser(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "User with ID '%s' not found", id)
		return
	}
	if err != nil {
		a.Logger.Error("Failed to delete user", zap.String("user_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete user")
		return
	}
	writeSuccess(w, "User '%s' deleted successfully", id)
}
