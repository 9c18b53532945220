package domain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/journal"
)

// Member is one association member.
type Member struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	JoinedAt  time.Time `json:"joined_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateMember inserts a member and journals the insert atomically.
func (r *Repository) CreateMember(ctx context.Context, m *Member) error {
	if m.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if m.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.JoinedAt.IsZero() {
		m.JoinedAt = now
	}
	m.CreatedAt = now
	m.UpdatedAt = now

	payload, err := snapshot(m)
	if err != nil {
		return err
	}

	return r.mutate(ctx, &journal.Entry{
		TenantID:  m.TenantID,
		TableName: TableMembers,
		RecordID:  m.ID,
		Operation: journal.OpInsert,
		Payload:   payload,
	}, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO members (id, tenant_id, full_name, email, phone, active, joined_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.TenantID, m.FullName, m.Email, m.Phone, boolToInt(m.Active),
			fmtTime(m.JoinedAt), fmtTime(m.CreatedAt), fmtTime(m.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
		return nil
	})
}

// UpdateMember updates a member row and journals the update atomically.
func (r *Repository) UpdateMember(ctx context.Context, m *Member) error {
	if m.ID == "" || m.TenantID == "" {
		return fmt.Errorf("id and tenant_id are required")
	}
	m.UpdatedAt = time.Now().UTC()

	payload, err := snapshot(m)
	if err != nil {
		return err
	}

	return r.mutate(ctx, &journal.Entry{
		TenantID:  m.TenantID,
		TableName: TableMembers,
		RecordID:  m.ID,
		Operation: journal.OpUpdate,
		Payload:   payload,
	}, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE members
			SET full_name = ?, email = ?, phone = ?, active = ?, joined_at = ?, updated_at = ?
			WHERE id = ? AND tenant_id = ?`,
			m.FullName, m.Email, m.Phone, boolToInt(m.Active),
			fmtTime(m.JoinedAt), fmtTime(m.UpdatedAt), m.ID, m.TenantID)
		if err != nil {
			return fmt.Errorf("failed to update member: %w", err)
		}
		return requireRow(res)
	})
}

// DeleteMember removes a member row and journals the delete atomically.
func (r *Repository) DeleteMember(ctx context.Context, tenantID, id string) error {
	return r.mutate(ctx, &journal.Entry{
		TenantID:  tenantID,
		TableName: TableMembers,
		RecordID:  id,
		Operation: journal.OpDelete,
	}, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM members WHERE id = ? AND tenant_id = ?`, id, tenantID)
		if err != nil {
			return fmt.Errorf("failed to delete member: %w", err)
		}
		return requireRow(res)
	})
}

// GetMember retrieves a member by id within a tenant.
// Returns ErrNotFound if no such member exists.
func (r *Repository) GetMember(ctx context.Context, tenantID, id string) (*Member, error) {
	conn, err := r.store.Conn()
	if err != nil {
		return nil, err
	}

	row := conn.QueryRowContext(ctx, `
		SELECT id, tenant_id, full_name, email, phone, active, joined_at, created_at, updated_at
		FROM members WHERE id = ? AND tenant_id = ?`, id, tenantID)

	var m Member
	var active int
	var joinedAt, createdAt, updatedAt string
	err = row.Scan(&m.ID, &m.TenantID, &m.FullName, &m.Email, &m.Phone,
		&active, &joinedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member %s: %w", id, err)
	}

	m.Active = active != 0
	m.JoinedAt = parseTime(joinedAt)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// requireRow converts a zero-row mutation into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
