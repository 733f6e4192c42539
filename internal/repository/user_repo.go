package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cursorqr/backend/internal/models"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, name, email, coins, next_refresh_at, is_admin, total_generated, total_spent, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Coins, &u.NextRefreshAt, &u.IsAdmin, &u.TotalGenerated, &u.TotalSpent, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id))
}

// CreateIfAbsent inserts the bootstrap record for a first sign-in. If another
// session bootstrapped the same identity concurrently, the insert is a no-op
// and the existing record is returned.
func (r *UserRepo) CreateIfAbsent(ctx context.Context, u *models.User) (*models.User, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, coins, next_refresh_at, is_admin, total_generated, total_spent, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, 0, 0, $6)
		ON CONFLICT (id) DO NOTHING
	`, u.ID, u.Name, u.Email, u.Coins, u.NextRefreshAt, u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 1 {
		cp := *u
		return &cp, nil
	}
	return r.GetByID(ctx, u.ID)
}

// GrantDaily applies the daily coin grant only if the refresh window has
// elapsed as of now. Returns pgx.ErrNoRows when the window has not elapsed
// or another session already granted for it; callers reload and carry on.
// next must be computed from now, so next_refresh_at never moves backwards.
func (r *UserRepo) GrantDaily(ctx context.Context, id string, amount int, now, next time.Time) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		UPDATE users
		SET coins = coins + $2, next_refresh_at = $3, updated_at = now()
		WHERE id = $1 AND (next_refresh_at IS NULL OR next_refresh_at <= $4)
		RETURNING `+userColumns+`
	`, id, amount, next, now))
}

// SpendTx atomically debits amount and bumps the spend/generation counters,
// but only if the balance covers it. Returns pgx.ErrNoRows when it does not
// (or the user does not exist); the ledger reloads and re-evaluates. Runs in
// the caller's transaction so the debit commits together with the generation
// record and job enqueue.
func (r *UserRepo) SpendTx(ctx context.Context, tx pgx.Tx, id string, amount int) (*models.User, error) {
	return scanUser(tx.QueryRow(ctx, `
		UPDATE users
		SET coins = coins - $2,
		    total_spent = total_spent + $2,
		    total_generated = total_generated + 1,
		    updated_at = now()
		WHERE id = $1 AND coins >= $2
		RETURNING `+userColumns+`
	`, id, amount))
}

// CreditTx returns amount to the user and reverses the counters the matching
// debit bumped. Used only for the compensating credit after a pipeline
// failure, hence the unconditional stats reversal. Runs in the caller's
// transaction, alongside the FAILED flip on the generation record.
func (r *UserRepo) CreditTx(ctx context.Context, tx pgx.Tx, id string, amount int) (*models.User, error) {
	return scanUser(tx.QueryRow(ctx, `
		UPDATE users
		SET coins = coins + $2,
		    total_spent = total_spent - $2,
		    total_generated = total_generated - 1,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns+`
	`, id, amount))
}

// SetBalance writes coins directly, leaving next_refresh_at and the stats
// counters untouched. The admin override path; value validation happens in
// the ledger service.
func (r *UserRepo) SetBalance(ctx context.Context, id string, coins int) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET coins = $2, updated_at = now() WHERE id = $1
		RETURNING `+userColumns+`
	`, id, coins))
}

// SyncProfile refreshes the denormalized identity-provider fields.
func (r *UserRepo) SyncProfile(ctx context.Context, id, name, email string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET name = $2, email = $3, updated_at = now()
		WHERE id = $1 AND (name <> $2 OR email <> $3)
	`, id, name, email)
	return err
}

func (r *UserRepo) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}
