// Package domain holds the association-management records (members, dues
// payments, cash accounts, ledger entries) and the thin repositories over
// them.
//
// The repositories exist for two reasons only: they produce change-journal
// entries (every mutation commits together with its journal row), and they
// are the apply targets for remote-originated changes. Reporting, search,
// and the wider CRUD surface live elsewhere.
package domain

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/journal"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/store"
)

// ErrNotFound is returned when a requested domain row does not exist.
var ErrNotFound = errors.New("domain: record not found")

// Table names as they appear in journal entries and the sync wire format.
const (
	TableMembers      = "members"
	TableDuesPayments = "dues_payments"
	TableCashAccounts = "cash_accounts"
	TableLedger       = "ledger_entries"
)

// Repository performs journaled mutations on the domain tables.
type Repository struct {
	store   *store.Store
	journal *journal.Journal
}

// NewRepository creates a Repository over the given store and journal.
func NewRepository(s *store.Store, j *journal.Journal) *Repository {
	return &Repository{store: s, journal: j}
}

// mutate runs a domain mutation and its journal append in one transaction.
//
// If the journal append fails the mutation rolls back with it: there is no
// committed domain write without a matching journal row. The payload is the
// full row snapshot serialized by the caller, so the remote side can
// reconstruct state without re-reading the source row.
func (r *Repository) mutate(ctx context.Context, e *journal.Entry, fn func(tx *sql.Tx) error) error {
	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := r.journal.AppendTx(ctx, tx, e); err != nil {
		return fmt.Errorf("journal append failed, mutation rolled back: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mutation: %w", err)
	}
	return nil
}

// snapshot serializes a row struct into a journal payload.
func snapshot(v interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize row snapshot: %w", err)
	}
	return data, nil
}

// fmtTime formats a timestamp for TEXT storage.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a stored TEXT timestamp, tolerating legacy second
// precision.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
