package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cursorqr/backend/internal/countdown"
	"github.com/cursorqr/backend/internal/ledger"
	"github.com/cursorqr/backend/internal/middleware"
	"github.com/cursorqr/backend/internal/models"
)

// maxRefreshWait caps how long the long-poll endpoint holds a request open
// before reporting the current countdown instead.
const maxRefreshWait = 25 * time.Second

// AccountLedger is the slice of the ledger the account endpoints need.
type AccountLedger interface {
	Sync(ctx context.Context, id, name, email string) (*models.User, error)
	CheckRefresh(ctx context.Context, id string) (*models.User, bool, error)
}

// AccountHandler serves the signed-in user's balance and refresh endpoints.
type AccountHandler struct {
	Ledger AccountLedger
	Logger *slog.Logger
}

type accountResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Coins            int        `json:"coins"`
	IsAdmin          bool       `json:"is_admin"`
	NextRefreshAt    *time.Time `json:"next_refresh_at,omitempty"`
	RefreshCountdown string     `json:"refresh_countdown"`
	TotalGenerated   int        `json:"total_generated"`
	TotalSpent       int        `json:"total_spent"`
}

func accountToResponse(u *models.User) accountResponse {
	remaining := "00:00:00"
	if u.NextRefreshAt != nil {
		remaining = countdown.Remaining(*u.NextRefreshAt, time.Now())
	}
	return accountResponse{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Coins:            u.Coins,
		IsAdmin:          u.IsAdmin,
		NextRefreshAt:    u.NextRefreshAt,
		RefreshCountdown: remaining,
		TotalGenerated:   u.TotalGenerated,
		TotalSpent:       u.TotalSpent,
	}
}

// GetMe handles GET /v1/account/me. Loading the account is also where
// bootstrap, profile resync, and the daily grant happen, so the first call
// of a session returns an up-to-date balance.
func (h *AccountHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	u, err := h.Ledger.Sync(r.Context(), ident.Subject, ident.Name, ident.Email)
	if err != nil {
		h.Logger.Error("account sync failed", "user_id", ident.Subject, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, accountToResponse(u))
}

type refreshResponse struct {
	Granted bool `json:"granted"`
	accountResponse
}

// Refresh handles POST /v1/account/refresh: an explicit, idempotent
// check-and-maybe-grant the client can call on a timer. Calling it while the
// window is still open changes nothing.
func (h *AccountHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	u, granted, err := h.Ledger.CheckRefresh(r.Context(), ident.Subject)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("refresh check failed", "user_id", ident.Subject, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Granted: granted, accountResponse: accountToResponse(u)})
}

// WaitRefresh handles GET /v1/account/refresh/wait: holds the request until
// the countdown elapses (bounded by maxRefreshWait), then re-checks the
// account. The wait itself never mutates anything.
func (h *AccountHandler) WaitRefresh(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	u, granted, err := h.Ledger.CheckRefresh(r.Context(), ident.Subject)
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("refresh check failed", "user_id", ident.Subject, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if granted || u.NextRefreshAt == nil {
		writeJSON(w, http.StatusOK, refreshResponse{Granted: granted, accountResponse: accountToResponse(u)})
		return
	}

	notifier := countdown.NewNotifier(*u.NextRefreshAt)
	defer notifier.Stop()

	waitCtx, cancel := context.WithTimeout(r.Context(), maxRefreshWait)
	defer cancel()

	select {
	case <-notifier.Done():
		u, granted, err = h.Ledger.CheckRefresh(r.Context(), ident.Subject)
		if err != nil {
			h.Logger.Error("refresh check failed", "user_id", ident.Subject, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
	case <-waitCtx.Done():
		// Not due within the window; report the countdown as of now.
	}
	writeJSON(w, http.StatusOK, refreshResponse{Granted: granted, accountResponse: accountToResponse(u)})
}

// ListCosts handles GET /v1/costs (public, no auth).
func ListCosts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"daily_grant": models.DailyGrant,
		"costs":       ledger.Costs(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
