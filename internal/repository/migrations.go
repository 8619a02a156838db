package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id UUID PRIMARY KEY,
		conversation_id UUID NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL CHECK (category IN ('Food', 'Entertainment', 'Travel', 'Other')),
		amount NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
		source TEXT NOT NULL,
		committed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_user_committed ON expenses (user_id, committed_at DESC)`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL CHECK (category IN ('Food', 'Entertainment', 'Travel', 'Other')),
		amount TEXT NOT NULL,
		source TEXT NOT NULL,
		committed_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_user_committed ON expenses (user_id, committed_at DESC)`,
}

// MigratePostgres creates the tables and indexes the repositories rely on.
func MigratePostgres(ctx context.Context, db *pgxpool.Pool) error {
	for i, m := range postgresMigrations {
		if _, err := db.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
