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

// DuesPayment is one membership dues payment for a period (YYYY-MM).
type DuesPayment struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	MemberID  string          `json:"member_id"`
	Period    string          `json:"period"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paid_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RecordDuesPayment inserts a dues payment and journals it atomically.
func (r *Repository) RecordDuesPayment(ctx context.Context, p *DuesPayment) error {
	if p.TenantID == "" || p.MemberID == "" {
		return fmt.Errorf("tenant_id and member_id are required")
	}
	if p.Period == "" {
		return fmt.Errorf("period is required")
	}
	if p.Amount.IsNegative() {
		return fmt.Errorf("amount cannot be negative")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.PaidAt.IsZero() {
		p.PaidAt = now
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	payload, err := snapshot(p)
	if err != nil {
		return err
	}

	return r.mutate(ctx, &journal.Entry{
		TenantID:  p.TenantID,
		TableName: TableDuesPayments,
		RecordID:  p.ID,
		Operation: journal.OpInsert,
		Payload:   payload,
	}, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dues_payments (id, tenant_id, member_id, period, amount, paid_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.TenantID, p.MemberID, p.Period, p.Amount.String(),
			fmtTime(p.PaidAt), fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert dues payment: %w", err)
		}
		return nil
	})
}

// DeleteDuesPayment removes a payment and journals the delete atomically.
func (r *Repository) DeleteDuesPayment(ctx context.Context, tenantID, id string) error {
	return r.mutate(ctx, &journal.Entry{
		TenantID:  tenantID,
		TableName: TableDuesPayments,
		RecordID:  id,
		Operation: journal.OpDelete,
	}, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM dues_payments WHERE id = ? AND tenant_id = ?`, id, tenantID)
		if err != nil {
			return fmt.Errorf("failed to delete dues payment: %w", err)
		}
		return requireRow(res)
	})
}

// GetDuesPayment retrieves a payment by id within a tenant.
// Returns ErrNotFound if no such payment exists.
func (r *Repository) GetDuesPayment(ctx context.Context, tenantID, id string) (*DuesPayment, error) {
	conn, err := r.store.Conn()
	if err != nil {
		return nil, err
	}

	row := conn.QueryRowContext(ctx, `
		SELECT id, tenant_id, member_id, period, amount, paid_at, created_at, updated_at
		FROM dues_payments WHERE id = ? AND tenant_id = ?`, id, tenantID)

	p, err := scanDuesPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dues payment %s: %w", id, err)
	}
	return p, nil
}

// ListDuesForMember returns a member's payments, oldest first.
func (r *Repository) ListDuesForMember(ctx context.Context, tenantID, memberID string) ([]*DuesPayment, error) {
	conn, err := r.store.Conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, tenant_id, member_id, period, amount, paid_at, created_at, updated_at
		FROM dues_payments
		WHERE tenant_id = ? AND member_id = ?
		ORDER BY period ASC`, tenantID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dues payments: %w", err)
	}
	defer rows.Close()

	var payments []*DuesPayment
	for rows.Next() {
		p, err := scanDuesPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dues payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dues payments: %w", err)
	}
	return payments, nil
}

func scanDuesPayment(sc interface{ Scan(...interface{}) error }) (*DuesPayment, error) {
	var p DuesPayment
	var amount, paidAt, createdAt, updatedAt string

	if err := sc.Scan(&p.ID, &p.TenantID, &p.MemberID, &p.Period,
		&amount, &paidAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	p.Amount = d
	p.PaidAt = parseTime(paidAt)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
