package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// testStorePath returns a temporary path for test databases.
func testStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func TestOpen_Success(t *testing.T) {
	path := testStorePath(t)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}

	conn, err := s.Conn()
	if err != nil {
		t.Fatalf("Conn() failed: %v", err)
	}

	var mode string
	if err := conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	s, err := Open(testStorePath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	if err := s.InitSchema(); err != nil {
		t.Fatalf("Second InitSchema() failed: %v", err)
	}

	conn, err := s.Conn()
	if err != nil {
		t.Fatalf("Conn() failed: %v", err)
	}

	tables := []string{"change_journal", "members", "dues_payments", "cash_accounts", "ledger_entries"}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

func TestClose_MakesStoreUnavailable(t *testing.T) {
	s, err := Open(testStorePath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if _, err := s.Conn(); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Conn() after Close = %v, want ErrStorageUnavailable", err)
	}
	if _, err := s.BeginTx(context.Background()); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("BeginTx() after Close = %v, want ErrStorageUnavailable", err)
	}
	if err := s.Checkpoint(context.Background()); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("Checkpoint() after Close = %v, want ErrStorageUnavailable", err)
	}

	// Double close is a no-op.
	if err := s.Close(); err != nil {
		t.Errorf("Second Close() failed: %v", err)
	}
}

func TestReopen_AfterClose(t *testing.T) {
	s, err := Open(testStorePath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := s.Reopen(); err != nil {
		t.Fatalf("Reopen() failed: %v", err)
	}

	conn, err := s.Conn()
	if err != nil {
		t.Fatalf("Conn() after Reopen failed: %v", err)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM members`).Scan(&count); err != nil {
		t.Fatalf("Query after Reopen failed: %v", err)
	}
}

func TestCheckpoint_FlushesWAL(t *testing.T) {
	s, err := Open(testStorePath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	conn, err := s.Conn()
	if err != nil {
		t.Fatalf("Conn() failed: %v", err)
	}
	_, err = conn.Exec(`
		INSERT INTO members (id, tenant_id, full_name, active, joined_at, created_at, updated_at)
		VALUES ('m1', 't1', 'Test Member', 1, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := s.Checkpoint(context.Background()); err != nil {
		t.Fatalf("Checkpoint() failed: %v", err)
	}
}
