package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"scraperhub/internal/models"
	"scraperhub/internal/worker"
)

// botActionRequest triggers one scraper action against a game console.
// The game_game field name is kept for wire compatibility with existing
// callers.
type botActionRequest struct {
	ActionType string         `json:"action_type"`
	Username   string         `json:"username"`
	Amount     float64        `json:"amount"`
	GameName   string         `json:"game_game"`
	Metadata   map[string]any `json:"metadata"`
}

// actionQueue validates the target game and enqueues the action. Action
// semantics (unknown action, missing username, bad amount) are judged by
// the worker, which reports them as an error result rather than an HTTP
// failure.
func (a *API) actionQueue(w http.ResponseWriter, r *http.Request) {
	var req botActionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if req.ActionType == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "action_type is required")
		return
	}
	if !a.Factory.Has(req.GameName) {
		writeError(w, http.StatusBadRequest, "validation_error",
			"Supported games: %s", strings.Join(a.Factory.Supported(), ", "))
		return
	}

	task := models.Task{
		ID:         uuid.NewString(),
		Game:       req.GameName,
		Action:     req.ActionType,
		Username:   req.Username,
		Amount:     req.Amount,
		Metadata:   req.Metadata,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := a.Queue.Enqueue(r.Context(), task); err != nil {
		a.Logger.Error("Failed to enqueue task",
			zap.String("game", task.Game), zap.String("action", task.Action), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to queue action")
		return
	}

	a.Logger.Info("Action queued",
		zap.String("task_id", task.ID),
		zap.String("game", task.Game),
		zap.String("action", task.Action))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "queued",
		"task_id": task.ID,
		"message": "Action " + req.ActionType + " for " + req.GameName + " queued.",
	})
}

// actionResult reports a finished task's outcome. Results expire with the
// queue's TTL, so pending covers queued, running and expired alike.
func (a *API) actionResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := a.Queue.GetResult(r.Context(), id)
	if errors.Is(err, worker.ErrNoResult) {
		writeJSON(w, http.StatusOK, map[string]string{
			"task_id": id,
			"status":  "pending",
		})
		return
	}
	if err != nil {
		a.Logger.Error("Failed to fetch task result", zap.String("task_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to fetch task result")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
