package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies the application schema. Statements are idempotent so the
// server can run them on every start; River manages its own tables separately.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			coins INT NOT NULL DEFAULT 0 CHECK (coins >= 0),
			next_refresh_at TIMESTAMPTZ,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			total_generated INT NOT NULL DEFAULT 0 CHECK (total_generated >= 0),
			total_spent INT NOT NULL DEFAULT 0 CHECK (total_spent >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS qr_codes (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			cost INT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			image_url TEXT,
			failure TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS qr_codes_user_id_idx ON qr_codes (user_id, created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
