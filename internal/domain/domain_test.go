package domain

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/journal"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/store"
)

// setupRepository creates a repository over a temporary store.
func setupRepository(t *testing.T) (*Repository, *journal.Journal, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	j := journal.New(s)
	return NewRepository(s, j), j, s
}

// pendingEntries reads the tenant's pending journal entries.
func pendingEntries(t *testing.T, j *journal.Journal, tenant string) []*journal.Entry {
	t.Helper()

	entries, err := j.Pending(context.Background(), tenant, 0)
	if err != nil {
		t.Fatalf("Pending() failed: %v", err)
	}
	return entries
}

func TestCreateMember_JournalsInsert(t *testing.T) {
	repo, j, _ := setupRepository(t)
	ctx := context.Background()

	m := &Member{TenantID: "t1", FullName: "Ada Lovelace", Email: "ada@example.org", Active: true}
	if err := repo.CreateMember(ctx, m); err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}
	if m.ID == "" {
		t.Fatal("CreateMember did not assign an id")
	}

	entries := pendingEntries(t, j, "t1")
	if len(entries) != 1 {
		t.Fatalf("journal holds %d entries, want exactly 1", len(entries))
	}
	e := entries[0]
	if e.TableName != TableMembers || e.RecordID != m.ID || e.Operation != journal.OpInsert {
		t.Errorf("journal entry = %s %s/%s", e.Operation, e.TableName, e.RecordID)
	}

	// The payload is a full row snapshot.
	var snap Member
	if err := json.Unmarshal(e.Payload, &snap); err != nil {
		t.Fatalf("payload is not a member snapshot: %v", err)
	}
	if snap.FullName != "Ada Lovelace" || snap.Email != "ada@example.org" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestUpdateMember_JournalsUpdate(t *testing.T) {
	repo, j, _ := setupRepository(t)
	ctx := context.Background()

	m := &Member{TenantID: "t1", FullName: "Ada", Active: true}
	if err := repo.CreateMember(ctx, m); err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}

	m.FullName = "Ada Lovelace"
	if err := repo.UpdateMember(ctx, m); err != nil {
		t.Fatalf("UpdateMember() failed: %v", err)
	}

	got, err := repo.GetMember(ctx, "t1", m.ID)
	if err != nil {
		t.Fatalf("GetMember() failed: %v", err)
	}
	if got.FullName != "Ada Lovelace" {
		t.Errorf("FullName = %q", got.FullName)
	}

	entries := pendingEntries(t, j, "t1")
	if len(entries) != 2 {
		t.Fatalf("journal holds %d entries, want 2", len(entries))
	}
	if entries[1].Operation != journal.OpUpdate {
		t.Errorf("second entry operation = %q, want UPDATE", entries[1].Operation)
	}
}

func TestDeleteMember_JournalsDelete(t *testing.T) {
	repo, j, _ := setupRepository(t)
	ctx := context.Background()

	m := &Member{TenantID: "t1", FullName: "Ada"}
	if err := repo.CreateMember(ctx, m); err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}
	if err := repo.DeleteMember(ctx, "t1", m.ID); err != nil {
		t.Fatalf("DeleteMember() failed: %v", err)
	}

	if _, err := repo.GetMember(ctx, "t1", m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMember() after delete = %v, want ErrNotFound", err)
	}

	entries := pendingEntries(t, j, "t1")
	if len(entries) != 2 {
		t.Fatalf("journal holds %d entries, want 2", len(entries))
	}
	last := entries[1]
	if last.Operation != journal.OpDelete || last.RecordID != m.ID {
		t.Errorf("delete entry = %s %s", last.Operation, last.RecordID)
	}
	if string(last.Payload) != "{}" {
		t.Errorf("delete payload = %s, want empty object", last.Payload)
	}
}

func TestMutation_RollsBackWhenJournalFails(t *testing.T) {
	repo, _, s := setupRepository(t)
	ctx := context.Background()

	// Break the journal table so the append inside the mutation fails.
	conn, err := s.Conn()
	if err != nil {
		t.Fatalf("Conn() failed: %v", err)
	}
	if _, err := conn.Exec(`ALTER TABLE change_journal RENAME TO change_journal_broken`); err != nil {
		t.Fatalf("failed to rename journal table: %v", err)
	}

	m := &Member{TenantID: "t1", FullName: "Ada"}
	if err := repo.CreateMember(ctx, m); err == nil {
		t.Fatal("CreateMember() succeeded with a broken journal")
	}

	// The member row must not exist: no domain write without its journal row.
	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM members`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("members = %d after rolled-back mutation, want 0", count)
	}
}

func TestUpdateMember_NotFound(t *testing.T) {
	repo, j, _ := setupRepository(t)
	ctx := context.Background()

	m := &Member{ID: "ghost", TenantID: "t1", FullName: "Nobody"}
	if err := repo.UpdateMember(ctx, m); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateMember() = %v, want ErrNotFound", err)
	}

	// A failed mutation journals nothing.
	if entries := pendingEntries(t, j, "t1"); len(entries) != 0 {
		t.Errorf("journal holds %d entries after failed update, want 0", len(entries))
	}
}

func TestRecordDuesPayment(t *testing.T) {
	repo, j, _ := setupRepository(t)
	ctx := context.Background()

	m := &Member{TenantID: "t1", FullName: "Ada"}
	if err := repo.CreateMember(ctx, m); err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}

	p := &DuesPayment{
		TenantID: "t1",
		MemberID: m.ID,
		Period:   "2026-03",
		Amount:   decimal.RequireFromString("150.00"),
	}
	if err := repo.RecordDuesPayment(ctx, p); err != nil {
		t.Fatalf("RecordDuesPayment() failed: %v", err)
	}

	got, err := repo.GetDuesPayment(ctx, "t1", p.ID)
	if err != nil {
		t.Fatalf("GetDuesPayment() failed: %v", err)
	}
	if !got.Amount.Equal(p.Amount) {
		t.Errorf("Amount = %s, want %s", got.Amount, p.Amount)
	}

	payments, err := repo.ListDuesForMember(ctx, "t1", m.ID)
	if err != nil {
		t.Fatalf("ListDuesForMember() failed: %v", err)
	}
	if len(payments) != 1 || payments[0].Period != "2026-03" {
		t.Errorf("payments = %+v", payments)
	}

	entries := pendingEntries(t, j, "t1")
	if len(entries) != 2 {
		t.Errorf("journal holds %d entries, want 2 (member + payment)", len(entries))
	}
}

func TestRecordDuesPayment_Validation(t *testing.T) {
	repo, _, _ := setupRepository(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		payment *DuesPayment
	}{
		{"missing member", &DuesPayment{TenantID: "t1", Period: "2026-03"}},
		{"missing period", &DuesPayment{TenantID: "t1", MemberID: "m1"}},
		{"negative amount", &DuesPayment{
			TenantID: "t1", MemberID: "m1", Period: "2026-03",
			Amount: decimal.RequireFromString("-5"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.RecordDuesPayment(ctx, tt.payment); err == nil {
				t.Error("RecordDuesPayment() accepted an invalid payment")
			}
		})
	}
}

func TestAddLedgerEntry_AdjustsBalance(t *testing.T) {
	repo, j, _ := setupRepository(t)
	ctx := context.Background()

	acc := &CashAccount{TenantID: "t1", Name: "Kasa", Balance: decimal.RequireFromString("1000.00")}
	if err := repo.CreateCashAccount(ctx, acc); err != nil {
		t.Fatalf("CreateCashAccount() failed: %v", err)
	}

	income := &LedgerEntry{
		TenantID:  "t1",
		AccountID: acc.ID,
		Kind:      "income",
		Category:  "donation",
		Amount:    decimal.RequireFromString("250.50"),
	}
	if err := repo.AddLedgerEntry(ctx, income); err != nil {
		t.Fatalf("AddLedgerEntry(income) failed: %v", err)
	}

	expense := &LedgerEntry{
		TenantID:  "t1",
		AccountID: acc.ID,
		Kind:      "expense",
		Category:  "rent",
		Amount:    decimal.RequireFromString("100.00"),
	}
	if err := repo.AddLedgerEntry(ctx, expense); err != nil {
		t.Fatalf("AddLedgerEntry(expense) failed: %v", err)
	}

	got, err := repo.GetCashAccount(ctx, "t1", acc.ID)
	if err != nil {
		t.Fatalf("GetCashAccount() failed: %v", err)
	}
	want := decimal.RequireFromString("1150.50")
	if !got.Balance.Equal(want) {
		t.Errorf("Balance = %s, want %s", got.Balance, want)
	}

	// One journal entry per mutation: account + two ledger lines. The
	// balance updates ride inside the ledger transactions and are not
	// journaled separately.
	entries := pendingEntries(t, j, "t1")
	if len(entries) != 3 {
		t.Errorf("journal holds %d entries, want 3", len(entries))
	}
	for _, e := range entries[1:] {
		if e.TableName != TableLedger {
			t.Errorf("unexpected journal entry for table %q", e.TableName)
		}
	}
}

func TestAddLedgerEntry_UnknownAccount(t *testing.T) {
	repo, j, _ := setupRepository(t)

	e := &LedgerEntry{
		TenantID:  "t1",
		AccountID: "no-such-account",
		Kind:      "income",
		Amount:    decimal.RequireFromString("10"),
	}
	if err := repo.AddLedgerEntry(context.Background(), e); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddLedgerEntry() = %v, want ErrNotFound", err)
	}

	// The ledger line rolled back with the failed balance lookup.
	if entries := pendingEntries(t, j, "t1"); len(entries) != 0 {
		t.Errorf("journal holds %d entries after failed mutation, want 0", len(entries))
	}
}

func TestGetMember_TenantIsolation(t *testing.T) {
	repo, _, _ := setupRepository(t)
	ctx := context.Background()

	m := &Member{TenantID: "t1", FullName: "Ada"}
	if err := repo.CreateMember(ctx, m); err != nil {
		t.Fatalf("CreateMember() failed: %v", err)
	}

	if _, err := repo.GetMember(ctx, "t2", m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMember() across tenants = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteMember(ctx, "t2", m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteMember() across tenants = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetMember(ctx, "t1", m.ID); err != nil {
		t.Errorf("GetMember() for the owner failed: %v", err)
	}
}
