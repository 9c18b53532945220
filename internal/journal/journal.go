// Package journal implements the append-only change journal that feeds the
// sync engine.
//
// Every propagating domain mutation appends exactly one entry, in the same
// local transaction as the mutation itself. Entries persist whether or not
// the remote is reachable; the sync client later reads unsynced entries in
// created_at order, delivers them, and flips the synced flag. Entries are
// never deleted - synced rows stay behind for audit and redelivery
// detection.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/store"
)

// ErrNotFound is returned when a journal entry does not exist.
var ErrNotFound = errors.New("journal: entry not found")

// Operation is the mutation type recorded in a journal entry.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Valid reports whether op is one of the three recorded operations.
func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Entry is one journal row: a pending (or delivered) mutation.
//
// An entry is immutable after insert except for Synced and UpdatedAt.
type Entry struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	TableName   string          `json:"table_name"`
	RecordID    string          `json:"record_id"`
	Operation   Operation       `json:"operation"`
	Payload     json.RawMessage `json:"payload"`
	Synced      bool            `json:"synced"`
	SyncVersion int64           `json:"sync_version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks the fields required for a well-formed entry.
func (e *Entry) Validate() error {
	if e.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if e.TableName == "" {
		return fmt.Errorf("table_name is required")
	}
	if e.RecordID == "" {
		return fmt.Errorf("record_id is required")
	}
	if !e.Operation.Valid() {
		return fmt.Errorf("invalid operation %q", e.Operation)
	}
	return nil
}

// Journal reads and writes change_journal rows.
type Journal struct {
	store *store.Store
}

// New creates a Journal over the given store.
func New(s *store.Store) *Journal {
	return &Journal{store: s}
}

// AppendTx appends an entry on the caller's transaction.
//
// This is the only append path the domain repositories use: the journal row
// commits or rolls back together with the mutation that produced it. The
// entry's ID, SyncVersion, and timestamps are assigned here; an empty
// payload is normalized to {}.
func (j *Journal) AppendTx(ctx context.Context, tx *sql.Tx, e *Entry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid journal entry: %w", err)
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if len(e.Payload) == 0 {
		e.Payload = json.RawMessage("{}")
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	// Monotonic per tenant; assigned under the caller's transaction so two
	// concurrent appends cannot observe the same maximum.
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sync_version), 0) + 1 FROM change_journal WHERE tenant_id = ?`,
		e.TenantID)
	if err := row.Scan(&e.SyncVersion); err != nil {
		return fmt.Errorf("failed to assign sync version: %w", err)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO change_journal (
			id, tenant_id, table_name, record_id, operation,
			payload, synced, sync_version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		e.ID,
		e.TenantID,
		e.TableName,
		e.RecordID,
		string(e.Operation),
		string(e.Payload),
		e.SyncVersion,
		e.CreatedAt.Format(time.RFC3339Nano),
		e.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	return nil
}

// Append appends an entry in its own transaction.
//
// Intended for callers that are not already inside a domain transaction.
func (j *Journal) Append(ctx context.Context, e *Entry) error {
	tx, err := j.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := j.AppendTx(ctx, tx, e); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal append: %w", err)
	}
	return nil
}

// Pending returns up to limit unsynced entries for the tenant, ordered by
// created_at ascending (id as tiebreak). limit <= 0 means no limit.
func (j *Journal) Pending(ctx context.Context, tenantID string, limit int) ([]*Entry, error) {
	conn, err := j.store.Conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, tenant_id, table_name, record_id, operation,
		       payload, synced, sync_version, created_at, updated_at
		FROM change_journal
		WHERE tenant_id = ? AND synced = 0
		ORDER BY created_at ASC, id ASC`
	args := []interface{}{tenantID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// MarkSynced flips the synced flag for one entry after confirmed remote
// acknowledgment. Marking an already-synced entry is a no-op.
func (j *Journal) MarkSynced(ctx context.Context, id string) error {
	conn, err := j.store.Conn()
	if err != nil {
		return err
	}

	_, err = conn.ExecContext(ctx,
		`UPDATE change_journal SET synced = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to mark entry %s synced: %w", id, err)
	}
	return nil
}

// Get retrieves a single entry by id.
// Returns ErrNotFound if no entry exists.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	conn, err := j.store.Conn()
	if err != nil {
		return nil, err
	}

	row := conn.QueryRowContext(ctx, `
		SELECT id, tenant_id, table_name, record_id, operation,
		       payload, synced, sync_version, created_at, updated_at
		FROM change_journal
		WHERE id = ?`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", id, err)
	}
	return e, nil
}

// Counts reports pending and total journal rows for a tenant.
func (j *Journal) Counts(ctx context.Context, tenantID string) (pending, total int, err error) {
	conn, err := j.store.Conn()
	if err != nil {
		return 0, 0, err
	}

	row := conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE synced = 0), COUNT(*)
		FROM change_journal
		WHERE tenant_id = ?`, tenantID)
	if err := row.Scan(&pending, &total); err != nil {
		return 0, 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return pending, total, nil
}

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(sc scanner) (*Entry, error) {
	var e Entry
	var op, payload string
	var synced int
	var createdAt, updatedAt string

	err := sc.Scan(
		&e.ID,
		&e.TenantID,
		&e.TableName,
		&e.RecordID,
		&op,
		&payload,
		&synced,
		&e.SyncVersion,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Operation = Operation(op)
	e.Payload = json.RawMessage(payload)
	e.Synced = synced != 0

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		e.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		e.UpdatedAt = t
	}

	return &e, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal entries: %w", err)
	}

	return entries, nil
}
