package store

import (
	"context"
	"fmt"
)

// InitSchema creates the journal and domain tables if they don't exist.
// Idempotent - safe to call multiple times.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	conn, err := s.Conn()
	if err != nil {
		return err
	}

	schema := `
	-- Pending-mutation journal. Rows are appended in the same transaction
	-- as the domain mutation and never deleted; only the synced flag and
	-- updated_at change after insert.
	CREATE TABLE IF NOT EXISTS change_journal (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		operation TEXT NOT NULL,  -- INSERT, UPDATE, DELETE
		payload TEXT NOT NULL DEFAULT '{}',
		synced INTEGER NOT NULL DEFAULT 0,
		sync_version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Domain tables. All rows are tenant-scoped; the journal and the sync
	-- apply path are the only writers outside the domain repositories.
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		full_name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		joined_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dues_payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		period TEXT NOT NULL,    -- YYYY-MM
		amount TEXT NOT NULL,    -- decimal string
		paid_at TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cash_accounts (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'TRY',
		balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		kind TEXT NOT NULL,      -- income, expense
		category TEXT,
		amount TEXT NOT NULL,    -- decimal string
		description TEXT,
		entry_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Delivery order is created_at ascending per tenant; the partial index
	-- keeps the pending scan cheap once most rows are synced.
	CREATE INDEX IF NOT EXISTS idx_journal_pending
	    ON change_journal(tenant_id, created_at, id) WHERE synced = 0;
	CREATE INDEX IF NOT EXISTS idx_journal_tenant ON change_journal(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_journal_record ON change_journal(table_name, record_id);

	CREATE INDEX IF NOT EXISTS idx_members_tenant ON members(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_dues_tenant ON dues_payments(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_dues_member ON dues_payments(tenant_id, member_id);
	CREATE INDEX IF NOT EXISTS idx_accounts_tenant ON cash_accounts(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_tenant ON ledger_entries(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(tenant_id, account_id);
	`

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}
