package database

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'member',
		coop_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cooperatives (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		admin_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reviewed_by TEXT NOT NULL DEFAULT '',
		approved_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cooperatives_status ON cooperatives (status)`,
	`CREATE TABLE IF NOT EXISTS purchase_requests (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		user_id TEXT NOT NULL,
		coop_id TEXT NOT NULL DEFAULT '',
		item_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		target_price DOUBLE PRECISION,
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS escrows (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL UNIQUE,
		coop_id TEXT NOT NULL,
		total_amount BIGINT NOT NULL CHECK (total_amount > 0),
		collected_amount BIGINT NOT NULL DEFAULT 0 CHECK (collected_amount >= 0),
		member_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		account_number TEXT NOT NULL DEFAULT '',
		account_name TEXT NOT NULL DEFAULT '',
		bank_name TEXT NOT NULL DEFAULT '',
		account_reference TEXT NOT NULL DEFAULT '',
		supplier_bank_code TEXT NOT NULL DEFAULT '',
		supplier_account_number TEXT NOT NULL DEFAULT '',
		supplier_name TEXT NOT NULL DEFAULT '',
		settlement_transaction_id TEXT NOT NULL DEFAULT '',
		last_settlement_error TEXT NOT NULL DEFAULT '',
		deadline TIMESTAMPTZ,
		released_at TIMESTAMPTZ,
		refunded_at TIMESTAMPTZ,
		archived_at TIMESTAMPTZ,
		version INTEGER NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_escrows_account_number ON escrows (account_number)`,
	`CREATE INDEX IF NOT EXISTS idx_escrows_deadline ON escrows (deadline) WHERE deadline IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS escrow_deposits (
		id TEXT PRIMARY KEY,
		escrow_id TEXT NOT NULL REFERENCES escrows (id),
		member_id TEXT NOT NULL DEFAULT '',
		member_name TEXT NOT NULL DEFAULT '',
		amount BIGINT NOT NULL CHECK (amount > 0),
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		reference TEXT NOT NULL,
		source_bank_code TEXT NOT NULL DEFAULT '',
		source_account_number TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMPTZ NOT NULL,
		UNIQUE (escrow_id, reference)
	)`,
	`CREATE TABLE IF NOT EXISTS escrow_approvals (
		id TEXT PRIMARY KEY,
		escrow_id TEXT NOT NULL REFERENCES escrows (id),
		admin_id TEXT NOT NULL,
		role TEXT NOT NULL,
		action TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS escrow_refunds (
		id TEXT PRIMARY KEY,
		escrow_id TEXT NOT NULL REFERENCES escrows (id),
		deposit_reference TEXT NOT NULL,
		amount BIGINT NOT NULL,
		status TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMPTZ NOT NULL
	)`,
	// At most one pending or succeeded refund per deposit.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_escrow_refunds_claim ON escrow_refunds (escrow_id, deposit_reference)
		WHERE status <> 'failed'`,
}

// Migrate creates any missing tables and indexes.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
