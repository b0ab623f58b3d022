package postgres

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS amm_assets (
		asset TEXT PRIMARY KEY,
		authority TEXT NOT NULL,
		supply NUMERIC(20,0) NOT NULL DEFAULT 0 CHECK (supply >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS amm_balances (
		asset TEXT NOT NULL,
		account TEXT NOT NULL,
		amount NUMERIC(20,0) NOT NULL CHECK (amount >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (asset, account)
	)`,
	`CREATE TABLE IF NOT EXISTS amm_pools (
		account TEXT PRIMARY KEY,
		seed NUMERIC(20,0) NOT NULL,
		asset_x TEXT NOT NULL,
		asset_y TEXT NOT NULL,
		share_asset TEXT NOT NULL,
		fee_bps INTEGER NOT NULL CHECK (fee_bps >= 0 AND fee_bps < 10000),
		locked BOOLEAN NOT NULL DEFAULT false,
		admin TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS amm_pools_identity_idx ON amm_pools (asset_x, asset_y, seed)`,
	`CREATE TABLE IF NOT EXISTS amm_events (
		id BIGSERIAL PRIMARY KEY,
		kind TEXT NOT NULL,
		pool TEXT NOT NULL,
		caller TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS amm_events_pool_idx ON amm_events (pool, id)`,
}

// Migrate creates the ledger tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
