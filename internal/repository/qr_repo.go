package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cursorqr/backend/internal/models"
)

type QRRepo struct {
	pool *pgxpool.Pool
}

func NewQRRepo(pool *pgxpool.Pool) *QRRepo {
	return &QRRepo{pool: pool}
}

// CreateTx inserts a pending generation record inside the given transaction,
// alongside the debit and the job enqueue.
func (r *QRRepo) CreateTx(ctx context.Context, tx pgx.Tx, q *models.QRCode) error {
	return tx.QueryRow(ctx, `
		INSERT INTO qr_codes (id, user_id, kind, content, cost, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, q.ID, q.UserID, q.Kind, q.Content, q.Cost, q.Status).Scan(&q.CreatedAt, &q.UpdatedAt)
}

func (r *QRRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.QRCode, error) {
	var q models.QRCode
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, kind, content, cost, status, image_url, failure, created_at, updated_at
		FROM qr_codes WHERE id = $1
	`, id).Scan(&q.ID, &q.UserID, &q.Kind, &q.Content, &q.Cost, &q.Status, &q.ImageURL, &q.Failure, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// MarkReady records the hosted image URL once the upload succeeded.
func (r *QRRepo) MarkReady(ctx context.Context, id uuid.UUID, imageURL string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE qr_codes SET status = $2, image_url = $3, updated_at = now() WHERE id = $1
	`, id, models.QRStatusReady, imageURL)
	return err
}

// MarkFailedTx records the failure reason. Only flips PENDING records so a
// retried job cannot fail (and refund) the same record twice; it reports
// whether this call did the flip. Runs in the caller's transaction so the
// flip commits together with the compensating credit.
func (r *QRRepo) MarkFailedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE qr_codes SET status = $2, failure = $3, updated_at = now()
		WHERE id = $1 AND status = $4
	`, id, models.QRStatusFailed, reason, models.QRStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *QRRepo) ListByUserID(ctx context.Context, userID string) ([]*models.QRCode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, kind, content, cost, status, image_url, failure, created_at, updated_at
		FROM qr_codes WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.QRCode
	for rows.Next() {
		var q models.QRCode
		if err := rows.Scan(&q.ID, &q.UserID, &q.Kind, &q.Content, &q.Cost, &q.Status, &q.ImageURL, &q.Failure, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &q)
	}
	return list, rows.Err()
}
