package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cursorqr/backend/internal/models"
)

// ErrInsufficientCoins is returned when the balance does not cover a debit.
var ErrInsufficientCoins = errors.New("insufficient coins")

// ErrUnknownKind is returned for a QR kind outside the cost table.
var ErrUnknownKind = errors.New("unknown qr kind")

// ErrNegativeBalance is returned when an admin tries to set a balance below zero.
var ErrNegativeBalance = errors.New("balance must be >= 0")

// ErrUserNotFound is returned when the target account does not exist.
var ErrUserNotFound = errors.New("user not found")

// timeNow is swapped in tests to control the refresh clock.
var timeNow = time.Now

// UserStore is the account persistence the ledger needs. Every mutation is a
// single conditional statement on the store side; the ledger itself holds no
// state between calls.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	CreateIfAbsent(ctx context.Context, u *models.User) (*models.User, error)
	GrantDaily(ctx context.Context, id string, amount int, now, next time.Time) (*models.User, error)
	SpendTx(ctx context.Context, tx pgx.Tx, id string, amount int) (*models.User, error)
	CreditTx(ctx context.Context, tx pgx.Tx, id string, amount int) (*models.User, error)
	SetBalance(ctx context.Context, id string, coins int) (*models.User, error)
	SyncProfile(ctx context.Context, id, name, email string) error
}

// Service implements the coin ledger: bootstrap, daily replenishment, debits
// against the cost table, compensating credits, and the admin override.
type Service struct {
	users UserStore
	log   *slog.Logger
}

func NewService(users UserStore, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{users: users, log: log}
}

// Sync is the session-start entry point: load or bootstrap the account for
// the signed-in identity, refresh the denormalized profile fields, and apply
// the daily grant if one is due. Safe to call redundantly from any number of
// concurrent sessions.
func (s *Service) Sync(ctx context.Context, id, name, email string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.bootstrap(ctx, id, name, email)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if name != u.Name || email != u.Email {
		if err := s.users.SyncProfile(ctx, id, name, email); err != nil {
			s.log.Warn("profile sync failed", "user_id", id, "error", err)
		} else {
			u.Name, u.Email = name, email
		}
	}
	u, _, err = s.checkRefresh(ctx, u)
	return u, err
}

func (s *Service) bootstrap(ctx context.Context, id, name, email string) (*models.User, error) {
	now := timeNow().UTC()
	next := now.Add(models.RefreshInterval)
	u := &models.User{
		ID:            id,
		Name:          name,
		Email:         email,
		Coins:         models.DailyGrant,
		NextRefreshAt: &next,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	created, err := s.users.CreateIfAbsent(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("bootstrap user: %w", err)
	}
	return created, nil
}

// CheckRefresh applies the daily grant if the refresh window has elapsed.
// The grant is the conditional statement itself, so any number of concurrent
// calls produce exactly one grant per window; losers observe zero rows and
// simply reload. Returns the fresh record and whether this call granted.
func (s *Service) CheckRefresh(ctx context.Context, id string) (*models.User, bool, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrUserNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("load user: %w", err)
	}
	return s.checkRefresh(ctx, u)
}

func (s *Service) checkRefresh(ctx context.Context, u *models.User) (*models.User, bool, error) {
	now := timeNow().UTC()
	if u.NextRefreshAt != nil && now.Before(*u.NextRefreshAt) {
		return u, false, nil
	}
	// Due. The next window is anchored at now, not accumulated per missed
	// interval: an account offline for a week still gets one grant.
	granted, err := s.users.GrantDaily(ctx, u.ID, models.DailyGrant, now, now.Add(models.RefreshInterval))
	if errors.Is(err, pgx.ErrNoRows) {
		// Another session granted for this window first.
		fresh, err := s.users.GetByID(ctx, u.ID)
		if err != nil {
			return nil, false, fmt.Errorf("reload after grant race: %w", err)
		}
		return fresh, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("grant daily coins: %w", err)
	}
	s.log.Info("daily coins granted", "user_id", u.ID, "coins", granted.Coins)
	return granted, true, nil
}

// Debit charges the cost of the given QR kind inside the caller's
// transaction. The spend is a single conditional decrement; if it affects no
// rows the record is reloaded and the precondition re-evaluated against the
// fresh balance before the attempt is retried once.
func (s *Service) Debit(ctx context.Context, tx pgx.Tx, userID, kind string) (*models.User, error) {
	cost, ok := Cost(kind)
	if !ok {
		return nil, ErrUnknownKind
	}
	u, err := s.users.SpendTx(ctx, tx, userID, cost)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("debit %d coins: %w", cost, err)
	}
	// Zero rows: either the user is gone or the balance no longer covers the
	// cost. Re-evaluate with fresh data rather than trusting the stale read.
	fresh, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reload after debit conflict: %w", err)
	}
	if fresh.Coins < cost {
		return nil, ErrInsufficientCoins
	}
	u, err = s.users.SpendTx(ctx, tx, userID, cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInsufficientCoins
	}
	if err != nil {
		return nil, fmt.Errorf("debit %d coins: %w", cost, err)
	}
	return u, nil
}

// RefundTx is the compensating credit for a debit whose artifact was never
// delivered: it returns the coins and reverses both stats increments, in the
// caller's transaction so the credit commits with the record's FAILED flip.
func (s *Service) RefundTx(ctx context.Context, tx pgx.Tx, userID, kind string) (*models.User, error) {
	cost, ok := Cost(kind)
	if !ok {
		return nil, ErrUnknownKind
	}
	u, err := s.users.CreditTx(ctx, tx, userID, cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("refund %d coins: %w", cost, err)
	}
	s.log.Info("coins refunded", "user_id", userID, "amount", cost, "coins", u.Coins)
	return u, nil
}

// SetBalance is the admin override: writes the balance directly, bypassing
// the cost table and the refresh schedule. Stats and next_refresh_at are left
// untouched.
func (s *Service) SetBalance(ctx context.Context, userID string, coins int) (*models.User, error) {
	if coins < 0 {
		return nil, ErrNegativeBalance
	}
	u, err := s.users.SetBalance(ctx, userID, coins)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set balance: %w", err)
	}
	return u, nil
}
