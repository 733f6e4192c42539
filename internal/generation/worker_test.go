package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/cursorqr/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks. The fake transaction stages mutations and applies them on Commit,
// so a settlement that errors out leaves the store untouched, the same way
// a rolled-back pgx.Tx would.
// ---------------------------------------------------------------------------

type fakeTx struct {
	pgx.Tx
	staged []func()
}

func (t *fakeTx) Commit(context.Context) error {
	for _, apply := range t.staged {
		apply()
	}
	t.staged = nil
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.staged = nil
	return nil
}

type fakePool struct{}

func (fakePool) Begin(context.Context) (pgx.Tx, error) { return &fakeTx{}, nil }

type mockUploader struct {
	url string
	err error
}

func (m *mockUploader) UploadImage(context.Context, string) (string, error) {
	return m.url, m.err
}

// mockQRStore mirrors the PENDING-only flip of the real MarkFailedTx.
type mockQRStore struct {
	status   map[uuid.UUID]string
	imageURL map[uuid.UUID]string
}

func newMockQRStore(ids ...uuid.UUID) *mockQRStore {
	m := &mockQRStore{status: make(map[uuid.UUID]string), imageURL: make(map[uuid.UUID]string)}
	for _, id := range ids {
		m.status[id] = models.QRStatusPending
	}
	return m
}

func (m *mockQRStore) MarkReady(_ context.Context, id uuid.UUID, imageURL string) error {
	m.status[id] = models.QRStatusReady
	m.imageURL[id] = imageURL
	return nil
}

func (m *mockQRStore) MarkFailedTx(_ context.Context, tx pgx.Tx, id uuid.UUID, _ string) (bool, error) {
	if m.status[id] != models.QRStatusPending {
		return false, nil
	}
	ft := tx.(*fakeTx)
	ft.staged = append(ft.staged, func() { m.status[id] = models.QRStatusFailed })
	return true, nil
}

type mockRefunder struct {
	err     error
	refunds []string
}

func (m *mockRefunder) RefundTx(_ context.Context, tx pgx.Tx, userID, kind string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	ft := tx.(*fakeTx)
	ft.staged = append(ft.staged, func() { m.refunds = append(m.refunds, userID+"/"+kind) })
	return &models.User{ID: userID}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func renderJob(args RenderQRJobArgs, attempt, maxAttempts int) *river.Job[RenderQRJobArgs] {
	return &river.Job[RenderQRJobArgs]{
		JobRow: &rivertype.JobRow{Attempt: attempt, MaxAttempts: maxAttempts},
		Args:   args,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestWork_Success(t *testing.T) {
	id := uuid.New()
	store := newMockQRStore(id)
	refunder := &mockRefunder{}
	w := NewRenderQRWorker(fakePool{}, &mockUploader{url: "https://img.example/qr.png"}, store, refunder, nil)

	args := RenderQRJobArgs{QRCodeID: id, UserID: "uid-1", QRKind: models.KindPhoto, Content: "aGVsbG8="}
	if err := w.Work(context.Background(), renderJob(args, 1, 3)); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if store.status[id] != models.QRStatusReady {
		t.Errorf("status: got %s, want %s", store.status[id], models.QRStatusReady)
	}
	if store.imageURL[id] != "https://img.example/qr.png" {
		t.Errorf("image url: got %s", store.imageURL[id])
	}
	if len(refunder.refunds) != 0 {
		t.Errorf("no refund expected on success, got %v", refunder.refunds)
	}
}

func TestWork_RetriesBeforeFinalAttempt(t *testing.T) {
	id := uuid.New()
	store := newMockQRStore(id)
	refunder := &mockRefunder{}
	w := NewRenderQRWorker(fakePool{}, &mockUploader{err: errors.New("connection reset")}, store, refunder, nil)

	args := RenderQRJobArgs{QRCodeID: id, UserID: "uid-1", QRKind: models.KindURL, Content: "x"}
	if err := w.Work(context.Background(), renderJob(args, 1, 3)); err == nil {
		t.Fatal("expected an error so the job is retried")
	}
	if store.status[id] != models.QRStatusPending {
		t.Errorf("record should stay pending between attempts, got %s", store.status[id])
	}
	if len(refunder.refunds) != 0 {
		t.Errorf("no refund before the final attempt, got %v", refunder.refunds)
	}
}

func TestWork_FinalAttemptRefunds(t *testing.T) {
	id := uuid.New()
	store := newMockQRStore(id)
	refunder := &mockRefunder{}
	w := NewRenderQRWorker(fakePool{}, &mockUploader{err: errors.New("image host rejected upload")}, store, refunder, nil)

	args := RenderQRJobArgs{QRCodeID: id, UserID: "uid-1", QRKind: models.KindURL, Content: "x"}
	if err := w.Work(context.Background(), renderJob(args, 3, 3)); err != nil {
		t.Fatalf("Work on final attempt: %v", err)
	}
	if store.status[id] != models.QRStatusFailed {
		t.Errorf("status: got %s, want %s", store.status[id], models.QRStatusFailed)
	}
	if len(refunder.refunds) != 1 || refunder.refunds[0] != "uid-1/url" {
		t.Errorf("refunds: got %v, want exactly one for uid-1/url", refunder.refunds)
	}

	// A re-run of the same job must not refund twice.
	if err := w.Work(context.Background(), renderJob(args, 3, 3)); err != nil {
		t.Fatalf("re-run: %v", err)
	}
	if len(refunder.refunds) != 1 {
		t.Errorf("refunds after re-run: got %d, want 1", len(refunder.refunds))
	}
}

func TestWork_RefundFailureLeavesRecordPending(t *testing.T) {
	id := uuid.New()
	store := newMockQRStore(id)
	refunder := &mockRefunder{err: errors.New("connection lost")}
	w := NewRenderQRWorker(fakePool{}, &mockUploader{err: errors.New("image host rejected upload")}, store, refunder, nil)

	args := RenderQRJobArgs{QRCodeID: id, UserID: "uid-1", QRKind: models.KindURL, Content: "x"}
	if err := w.Work(context.Background(), renderJob(args, 3, 3)); err == nil {
		t.Fatal("expected an error when the refund cannot be applied")
	}
	// The flip must roll back with the failed refund, or the coins would be
	// lost forever: the next run would see FAILED and skip the refund.
	if store.status[id] != models.QRStatusPending {
		t.Errorf("record must stay pending when the refund fails, got %s", store.status[id])
	}
	if len(refunder.refunds) != 0 {
		t.Errorf("no refund should be recorded, got %v", refunder.refunds)
	}

	// Once the refund path recovers, a re-run settles flip and credit together.
	refunder.err = nil
	if err := w.Work(context.Background(), renderJob(args, 3, 3)); err != nil {
		t.Fatalf("re-run after recovery: %v", err)
	}
	if store.status[id] != models.QRStatusFailed {
		t.Errorf("status after recovery: got %s, want %s", store.status[id], models.QRStatusFailed)
	}
	if len(refunder.refunds) != 1 {
		t.Errorf("refunds after recovery: got %d, want exactly 1", len(refunder.refunds))
	}
}
