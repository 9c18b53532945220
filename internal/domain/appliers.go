package domain

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/store"
)

// The appliers write remote-originated changes into the domain tables.
// They satisfy the sync package's Applier interface structurally.
//
// Every statement is idempotent: upserts key on the row id and deletes
// tolerate absent rows, because the sync pipeline guarantees only
// at-least-once delivery. The tenant id always comes from the caller, never
// from the payload, and an upsert will not overwrite a row owned by a
// different tenant.

// MemberApplier applies remote changes to the members table.
type MemberApplier struct {
	Store *store.Store
}

// Table implements the sync Applier contract.
func (MemberApplier) Table() string { return TableMembers }

func (a MemberApplier) Upsert(ctx context.Context, tenantID, recordID string, data json.RawMessage) error {
	var m Member
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("malformed member payload: %w", err)
	}
	if m.FullName == "" {
		return fmt.Errorf("malformed member payload: full_name missing")
	}

	conn, err := a.Store.Conn()
	if err != nil {
		return err
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO members (id, tenant_id, full_name, email, phone, active, joined_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			phone = excluded.phone,
			active = excluded.active,
			joined_at = excluded.joined_at,
			updated_at = excluded.updated_at
		WHERE members.tenant_id = excluded.tenant_id`,
		recordID, tenantID, m.FullName, m.Email, m.Phone, boolToInt(m.Active),
		fmtTime(m.JoinedAt), fmtTime(m.CreatedAt), fmtTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert member %s: %w", recordID, err)
	}
	return requireOwnedUpsert(res, TableMembers, recordID)
}

func (a MemberApplier) Delete(ctx context.Context, tenantID, recordID string) error {
	return deleteRow(ctx, a.Store, TableMembers, tenantID, recordID)
}

// DuesApplier applies remote changes to the dues_payments table.
type DuesApplier struct {
	Store *store.Store
}

func (DuesApplier) Table() string { return TableDuesPayments }

func (a DuesApplier) Upsert(ctx context.Context, tenantID, recordID string, data json.RawMessage) error {
	var p DuesPayment
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("malformed dues payment payload: %w", err)
	}
	if p.MemberID == "" || p.Period == "" {
		return fmt.Errorf("malformed dues payment payload: member_id or period missing")
	}

	conn, err := a.Store.Conn()
	if err != nil {
		return err
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO dues_payments (id, tenant_id, member_id, period, amount, paid_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			member_id = excluded.member_id,
			period = excluded.period,
			amount = excluded.amount,
			paid_at = excluded.paid_at,
			updated_at = excluded.updated_at
		WHERE dues_payments.tenant_id = excluded.tenant_id`,
		recordID, tenantID, p.MemberID, p.Period, p.Amount.String(),
		fmtTime(p.PaidAt), fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert dues payment %s: %w", recordID, err)
	}
	return requireOwnedUpsert(res, TableDuesPayments, recordID)
}

func (a DuesApplier) Delete(ctx context.Context, tenantID, recordID string) error {
	return deleteRow(ctx, a.Store, TableDuesPayments, tenantID, recordID)
}

// CashAccountApplier applies remote changes to the cash_accounts table.
type CashAccountApplier struct {
	Store *store.Store
}

func (CashAccountApplier) Table() string { return TableCashAccounts }

func (a CashAccountApplier) Upsert(ctx context.Context, tenantID, recordID string, data json.RawMessage) error {
	var acc CashAccount
	if err := json.Unmarshal(data, &acc); err != nil {
		return fmt.Errorf("malformed cash account payload: %w", err)
	}
	if acc.Name == "" {
		return fmt.Errorf("malformed cash account payload: name missing")
	}
	if acc.Currency == "" {
		acc.Currency = "TRY"
	}

	conn, err := a.Store.Conn()
	if err != nil {
		return err
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO cash_accounts (id, tenant_id, name, currency, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			currency = excluded.currency,
			balance = excluded.balance,
			updated_at = excluded.updated_at
		WHERE cash_accounts.tenant_id = excluded.tenant_id`,
		recordID, tenantID, acc.Name, acc.Currency, acc.Balance.String(),
		fmtTime(acc.CreatedAt), fmtTime(acc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert cash account %s: %w", recordID, err)
	}
	return requireOwnedUpsert(res, TableCashAccounts, recordID)
}

func (a CashAccountApplier) Delete(ctx context.Context, tenantID, recordID string) error {
	return deleteRow(ctx, a.Store, TableCashAccounts, tenantID, recordID)
}

// LedgerApplier applies remote changes to the ledger_entries table.
type LedgerApplier struct {
	Store *store.Store
}

func (LedgerApplier) Table() string { return TableLedger }

func (a LedgerApplier) Upsert(ctx context.Context, tenantID, recordID string, data json.RawMessage) error {
	var e LedgerEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("malformed ledger entry payload: %w", err)
	}
	if e.AccountID == "" || (e.Kind != "income" && e.Kind != "expense") {
		return fmt.Errorf("malformed ledger entry payload: account_id or kind invalid")
	}

	conn, err := a.Store.Conn()
	if err != nil {
		return err
	}

	res, err := conn.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, tenant_id, account_id, kind, category, amount, description, entry_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id,
			kind = excluded.kind,
			category = excluded.category,
			amount = excluded.amount,
			description = excluded.description,
			entry_date = excluded.entry_date,
			updated_at = excluded.updated_at
		WHERE ledger_entries.tenant_id = excluded.tenant_id`,
		recordID, tenantID, e.AccountID, e.Kind, e.Category, e.Amount.String(),
		e.Description, fmtTime(e.EntryDate), fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert ledger entry %s: %w", recordID, err)
	}
	return requireOwnedUpsert(res, TableLedger, recordID)
}

func (a LedgerApplier) Delete(ctx context.Context, tenantID, recordID string) error {
	return deleteRow(ctx, a.Store, TableLedger, tenantID, recordID)
}

// requireOwnedUpsert turns a zero-row upsert into an error. The only way an
// upsert affects no rows is the conflict-target row belonging to a different
// tenant, in which case the guard on the DO UPDATE clause suppresses the
// write; reporting it lets the caller skip the change instead of counting a
// write that never happened.
func requireOwnedUpsert(res sql.Result, table, recordID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s in %s belongs to another tenant", recordID, table)
	}
	return nil
}

// deleteRow is the shared idempotent delete for all appliers. The table
// name is always one of the package constants, never caller input.
func deleteRow(ctx context.Context, s *store.Store, table, tenantID, recordID string) error {
	conn, err := s.Conn()
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ? AND tenant_id = ?", table),
		recordID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}
