package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migrations are applied in order on startup. Statements must stay
// idempotent; there is no down path.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS mf_collections (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		symbol           TEXT NOT NULL,
		creator          TEXT NOT NULL,
		royalty_bp       INTEGER NOT NULL DEFAULT 0,
		royalty_receiver TEXT NOT NULL DEFAULT '',
		max_supply       BIGINT NOT NULL,
		minted           BIGINT NOT NULL DEFAULT 0,
		metadata         TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mf_tokens (
		id            TEXT NOT NULL,
		collection_id TEXT NOT NULL REFERENCES mf_collections(id),
		serial        BIGINT NOT NULL,
		owner         TEXT NOT NULL,
		approved      TEXT NOT NULL DEFAULT '',
		metadata      TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (collection_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS mf_listings (
		id            TEXT NOT NULL,
		collection_id TEXT NOT NULL,
		asset_id      TEXT NOT NULL,
		seller        TEXT NOT NULL,
		price         NUMERIC(78,0) NOT NULL,
		currency      TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (collection_id, asset_id)
	)`,
	`CREATE TABLE IF NOT EXISTS mf_pools (
		id             TEXT PRIMARY KEY,
		collection_id  TEXT NOT NULL,
		ledger_account TEXT NOT NULL,
		total_shares   BIGINT NOT NULL DEFAULT 0,
		acc_per_share  JSONB NOT NULL DEFAULT '{}',
		buffer         JSONB NOT NULL DEFAULT '{}',
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mf_positions (
		pool_id     TEXT NOT NULL REFERENCES mf_pools(id),
		staker      TEXT NOT NULL,
		shares      BIGINT NOT NULL DEFAULT 0,
		reward_debt JSONB NOT NULL DEFAULT '{}',
		PRIMARY KEY (pool_id, staker)
	)`,
	`CREATE TABLE IF NOT EXISTS mf_stakes (
		pool_id       TEXT NOT NULL REFERENCES mf_pools(id),
		collection_id TEXT NOT NULL,
		asset_id      TEXT NOT NULL,
		staker        TEXT NOT NULL,
		staked_at     TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (pool_id, asset_id)
	)`,
	`CREATE TABLE IF NOT EXISTS mf_bindings (
		collection_id TEXT PRIMARY KEY,
		pool_id       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mf_balances (
		account  TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount   NUMERIC(78,0) NOT NULL DEFAULT 0,
		PRIMARY KEY (account, currency)
	)`,
	`CREATE TABLE IF NOT EXISTS mf_transactions (
		id           TEXT PRIMARY KEY,
		from_account TEXT NOT NULL DEFAULT '',
		to_account   TEXT NOT NULL,
		currency     TEXT NOT NULL,
		amount       NUMERIC(78,0) NOT NULL,
		reference    TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mf_transactions_accounts
		ON mf_transactions (from_account, to_account, created_at)`,
	`CREATE TABLE IF NOT EXISTS mf_events (
		id            TEXT PRIMARY KEY,
		type          TEXT NOT NULL,
		collection_id TEXT NOT NULL DEFAULT '',
		asset_id      TEXT NOT NULL DEFAULT '',
		actor         TEXT NOT NULL DEFAULT '',
		attributes    JSONB NOT NULL DEFAULT '{}',
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mf_events_collection
		ON mf_events (collection_id, created_at)`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
