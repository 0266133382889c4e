package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS subscriptions (
	symbol     TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// SubscriptionStore persists the tracked symbol set.
type SubscriptionStore struct {
	db DB
}

// NewSubscriptionStore creates a store on db.
func NewSubscriptionStore(db DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// EnsureSchema creates the subscriptions table if it does not exist.
func (s *SubscriptionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create subscriptions table: %w", err)
	}
	return nil
}

// List returns the stored symbols, sorted.
func (s *SubscriptionStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT symbol FROM subscriptions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}

	symbols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan subscriptions: %w", err)
	}
	return symbols, nil
}

// Add stores symbol. Adding a known symbol is not an error.
func (s *SubscriptionStore) Add(ctx context.Context, symbol string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO subscriptions (symbol) VALUES ($1) ON CONFLICT (symbol) DO NOTHING`,
		symbol,
	)
	if err != nil {
		return fmt.Errorf("add subscription %s: %w", symbol, err)
	}
	return nil
}

// Remove deletes symbol. Removing an unknown symbol is not an error.
func (s *SubscriptionStore) Remove(ctx context.Context, symbol string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM subscriptions WHERE symbol = $1`, symbol); err != nil {
		return fmt.Errorf("remove subscription %s: %w", symbol, err)
	}
	return nil
}
