package domain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/journal"
)

// CashAccount is one cash register or bank account.
type CashAccount struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Name      string          `json:"name"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LedgerEntry is one income or expense line against a cash account.
type LedgerEntry struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	AccountID   string          `json:"account_id"`
	Kind        string          `json:"kind"` // income, expense
	Category    string          `json:"category,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	EntryDate   time.Time       `json:"entry_date"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CreateCashAccount inserts an account and journals it atomically.
func (r *Repository) CreateCashAccount(ctx context.Context, a *CashAccount) error {
	if a.TenantID == "" || a.Name == "" {
		return fmt.Errorf("tenant_id and name are required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Currency == "" {
		a.Currency = "TRY"
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	payload, err := snapshot(a)
	if err != nil {
		return err
	}

	return r.mutate(ctx, &journal.Entry{
		TenantID:  a.TenantID,
		TableName: TableCashAccounts,
		RecordID:  a.ID,
		Operation: journal.OpInsert,
		Payload:   payload,
	}, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cash_accounts (id, tenant_id, name, currency, balance, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.TenantID, a.Name, a.Currency, a.Balance.String(),
			fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert cash account: %w", err)
		}
		return nil
	})
}

// AddLedgerEntry inserts a ledger line and adjusts the account balance in
// the same transaction. Two journal entries would double-deliver the
// balance change, so only the ledger line is journaled; the remote derives
// balances from the lines.
func (r *Repository) AddLedgerEntry(ctx context.Context, e *LedgerEntry) error {
	if e.TenantID == "" || e.AccountID == "" {
		return fmt.Errorf("tenant_id and account_id are required")
	}
	if e.Kind != "income" && e.Kind != "expense" {
		return fmt.Errorf("kind must be income or expense (got %q)", e.Kind)
	}
	if e.Amount.IsNegative() {
		return fmt.Errorf("amount cannot be negative")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if e.EntryDate.IsZero() {
		e.EntryDate = now
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	payload, err := snapshot(e)
	if err != nil {
		return err
	}

	delta := e.Amount
	if e.Kind == "expense" {
		delta = delta.Neg()
	}

	return r.mutate(ctx, &journal.Entry{
		TenantID:  e.TenantID,
		TableName: TableLedger,
		RecordID:  e.ID,
		Operation: journal.OpInsert,
		Payload:   payload,
	}, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (id, tenant_id, account_id, kind, category, amount, description, entry_date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.TenantID, e.AccountID, e.Kind, e.Category, e.Amount.String(),
			e.Description, fmtTime(e.EntryDate), fmtTime(e.CreatedAt), fmtTime(e.UpdatedAt)); err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}

		balance, err := accountBalanceTx(ctx, tx, e.TenantID, e.AccountID)
		if err != nil {
			return err
		}
		newBalance := balance.Add(delta)
		if _, err := tx.ExecContext(ctx, `
			UPDATE cash_accounts SET balance = ?, updated_at = ?
			WHERE id = ? AND tenant_id = ?`,
			newBalance.String(), fmtTime(now), e.AccountID, e.TenantID); err != nil {
			return fmt.Errorf("failed to update account balance: %w", err)
		}
		return nil
	})
}

// GetCashAccount retrieves an account by id within a tenant.
// Returns ErrNotFound if no such account exists.
func (r *Repository) GetCashAccount(ctx context.Context, tenantID, id string) (*CashAccount, error) {
	conn, err := r.store.Conn()
	if err != nil {
		return nil, err
	}

	row := conn.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, currency, balance, created_at, updated_at
		FROM cash_accounts WHERE id = ? AND tenant_id = ?`, id, tenantID)

	var a CashAccount
	var balance, createdAt, updatedAt string
	err = row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Currency, &balance, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cash account %s: %w", id, err)
	}

	d, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("invalid balance %q: %w", balance, err)
	}
	a.Balance = d
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// accountBalanceTx reads an account balance inside a transaction.
func accountBalanceTx(ctx context.Context, tx *sql.Tx, tenantID, accountID string) (decimal.Decimal, error) {
	var balance string
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM cash_accounts WHERE id = ? AND tenant_id = ?`,
		accountID, tenantID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read account balance: %w", err)
	}
	d, err := decimal.NewFromString(balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q: %w", balance, err)
	}
	return d, nil
}
