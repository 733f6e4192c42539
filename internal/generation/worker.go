package generation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/cursorqr/backend/internal/models"
)

// RenderQRJobArgs is the payload for one queued QR generation. The coins were
// already debited in the same transaction that enqueued the job.
type RenderQRJobArgs struct {
	QRCodeID uuid.UUID `json:"qr_code_id"`
	UserID   string    `json:"user_id"`
	QRKind   string    `json:"qr_kind"`
	Content  string    `json:"content"`
}

func (RenderQRJobArgs) Kind() string { return "render_qr" }

// Uploader ships the payload to the external image host.
type Uploader interface {
	UploadImage(ctx context.Context, data string) (string, error)
}

// TxBeginner opens the transaction that settles a terminal failure.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// QRStore records the outcome on the generation record.
type QRStore interface {
	MarkReady(ctx context.Context, id uuid.UUID, imageURL string) error
	MarkFailedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) (bool, error)
}

// Refunder applies the compensating credit when no artifact was delivered.
type Refunder interface {
	RefundTx(ctx context.Context, tx pgx.Tx, userID, kind string) (*models.User, error)
}

// RenderQRWorker uploads the QR payload and settles the generation record.
// The user paid up front, so any terminal failure must refund.
type RenderQRWorker struct {
	river.WorkerDefaults[RenderQRJobArgs]
	pool     TxBeginner
	uploader Uploader
	qrs      QRStore
	refunder Refunder
	log      *slog.Logger
}

func NewRenderQRWorker(pool TxBeginner, uploader Uploader, qrs QRStore, refunder Refunder, log *slog.Logger) *RenderQRWorker {
	if log == nil {
		log = slog.Default()
	}
	return &RenderQRWorker{pool: pool, uploader: uploader, qrs: qrs, refunder: refunder, log: log}
}

func (w *RenderQRWorker) Work(ctx context.Context, job *river.Job[RenderQRJobArgs]) error {
	args := job.Args

	url, err := w.uploader.UploadImage(ctx, args.Content)
	if err != nil {
		if job.Attempt < job.MaxAttempts {
			return fmt.Errorf("upload qr payload: %w", err)
		}
		// Last attempt: settle the record and give the coins back.
		return w.failRecord(ctx, args, err.Error())
	}

	if err := w.qrs.MarkReady(ctx, args.QRCodeID, url); err != nil {
		return fmt.Errorf("mark qr ready: %w", err)
	}
	w.log.Info("qr code ready", "qr_code_id", args.QRCodeID, "user_id", args.UserID, "url", url)
	return nil
}

// failRecord flips the record to FAILED and refunds the debit in one
// transaction. MarkFailedTx only flips PENDING records, so a re-run cannot
// refund twice; if the refund cannot be applied the whole settlement rolls
// back and the record stays PENDING, re-runnable.
func (w *RenderQRWorker) failRecord(ctx context.Context, args RenderQRJobArgs, reason string) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	flipped, err := w.qrs.MarkFailedTx(ctx, tx, args.QRCodeID, reason)
	if err != nil {
		return fmt.Errorf("mark qr failed: %w", err)
	}
	if !flipped {
		return nil
	}
	if _, err := w.refunder.RefundTx(ctx, tx, args.UserID, args.QRKind); err != nil {
		return fmt.Errorf("upload failed (%s) AND refund failed: %w", reason, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settlement tx: %w", err)
	}
	w.log.Warn("qr generation failed, coins refunded", "qr_code_id", args.QRCodeID, "user_id", args.UserID, "reason", reason)
	return nil
}
