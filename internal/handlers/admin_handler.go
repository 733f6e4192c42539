package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cursorqr/backend/internal/ledger"
	"github.com/cursorqr/backend/internal/models"
)

// AdminLedger is the slice of the ledger the admin endpoints need.
type AdminLedger interface {
	SetBalance(ctx context.Context, userID string, coins int) (*models.User, error)
}

// UserLister lists all accounts for the admin panel.
type UserLister interface {
	List(ctx context.Context) ([]*models.User, error)
}

// AdminHandler serves /v1/admin. Routes are gated by middleware.AdminOnly.
type AdminHandler struct {
	Ledger AdminLedger
	Users  UserLister
	Logger *slog.Logger
}

// ListUsers handles GET /v1/admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context())
	if err != nil {
		h.Logger.Error("list users", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type setCoinsRequest struct {
	Coins int `json:"coins"`
}

// SetCoins handles PUT /v1/admin/users/{id}/coins: the direct balance write.
// It deliberately leaves next_refresh_at and the stats counters alone.
func (h *AdminHandler) SetCoins(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
		return
	}
	var req setCoinsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	u, err := h.Ledger.SetBalance(r.Context(), userID, req.Coins)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNegativeBalance):
			http.Error(w, `{"error":"coins must be >= 0"}`, http.StatusBadRequest)
		case errors.Is(err, ledger.ErrUserNotFound):
			http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
		default:
			h.Logger.Error("set balance", "user_id", userID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": u.ID, "coins": u.Coins})
}
