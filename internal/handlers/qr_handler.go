package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cursorqr/backend/internal/generation"
	"github.com/cursorqr/backend/internal/ledger"
	"github.com/cursorqr/backend/internal/middleware"
	"github.com/cursorqr/backend/internal/models"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// QRRepoForHandler is the subset of the QR repository the handler needs.
type QRRepoForHandler interface {
	CreateTx(ctx context.Context, tx pgx.Tx, q *models.QRCode) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.QRCode, error)
	ListByUserID(ctx context.Context, userID string) ([]*models.QRCode, error)
}

// DebitLedger is the slice of the ledger the QR endpoints need.
type DebitLedger interface {
	Sync(ctx context.Context, id, name, email string) (*models.User, error)
	Debit(ctx context.Context, tx pgx.Tx, userID, kind string) (*models.User, error)
}

// InsertRenderQRTxFunc enqueues a render job within the given transaction.
// Provided by main using river.Client.InsertTx.
type InsertRenderQRTxFunc func(ctx context.Context, tx pgx.Tx, args generation.RenderQRJobArgs) error

// QRHandler serves /v1/qrcodes.
type QRHandler struct {
	Pool           TxBeginner
	QRRepo         QRRepoForHandler
	Ledger         DebitLedger
	InsertRenderQR InsertRenderQRTxFunc
	Logger         *slog.Logger
}

type createQRRequest struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

type createQRResponse struct {
	QRCodeID string `json:"qr_code_id"`
	Status   string `json:"status"`
	Cost     int    `json:"cost"`
	Coins    int    `json:"coins"`
}

// CreateQRCode handles POST /v1/qrcodes.
// Auth -> validate kind -> debit + insert record + enqueue render in one tx -> 202.
// The artifact pipeline only ever runs after the debit has committed.
func (h *QRHandler) CreateQRCode(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req createQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	// Unknown kinds are rejected before the ledger is touched.
	cost, ok := ledger.Cost(req.Kind)
	if !ok {
		http.Error(w, `{"error":"unknown qr kind"}`, http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, `{"error":"content is required"}`, http.StatusBadRequest)
		return
	}

	// Ensure the account exists and any due grant has been applied before
	// the spend is attempted.
	if _, err := h.Ledger.Sync(r.Context(), ident.Subject, ident.Name, ident.Email); err != nil {
		h.Logger.Error("account sync failed", "user_id", ident.Subject, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	tx, err := h.Pool.Begin(r.Context())
	if err != nil {
		h.Logger.Error("begin debit tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	u, err := h.Ledger.Debit(r.Context(), tx, ident.Subject, req.Kind)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientCoins):
			http.Error(w, `{"error":"insufficient coins"}`, http.StatusPaymentRequired)
		case errors.Is(err, ledger.ErrUserNotFound):
			http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
		default:
			h.Logger.Error("debit failed", "user_id", ident.Subject, "kind", req.Kind, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	qr := &models.QRCode{
		ID:      uuid.New(),
		UserID:  ident.Subject,
		Kind:    req.Kind,
		Content: req.Content,
		Cost:    cost,
		Status:  models.QRStatusPending,
	}
	if err := h.QRRepo.CreateTx(r.Context(), tx, qr); err != nil {
		h.Logger.Error("create qr record", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if err := h.InsertRenderQR(r.Context(), tx, generation.RenderQRJobArgs{
		QRCodeID: qr.ID,
		UserID:   ident.Subject,
		QRKind:   req.Kind,
		Content:  req.Content,
	}); err != nil {
		h.Logger.Error("enqueue render job", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		h.Logger.Error("commit debit tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, createQRResponse{
		QRCodeID: qr.ID.String(),
		Status:   qr.Status,
		Cost:     cost,
		Coins:    u.Coins,
	})
}

// GetQRCode handles GET /v1/qrcodes/{id}.
func (h *QRHandler) GetQRCode(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid qr code id"}`, http.StatusBadRequest)
		return
	}
	qr, err := h.QRRepo.GetByID(r.Context(), id)
	if err != nil || qr.UserID != ident.Subject {
		http.Error(w, `{"error":"qr code not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, qr)
}

// ListQRCodes handles GET /v1/qrcodes (the signed-in user's history).
func (h *QRHandler) ListQRCodes(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromCtx(r.Context())
	if ident == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.QRRepo.ListByUserID(r.Context(), ident.Subject)
	if err != nil {
		h.Logger.Error("list qr codes", "user_id", ident.Subject, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.QRCode{}
	}
	writeJSON(w, http.StatusOK, list)
}
