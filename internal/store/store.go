// Package store provides the embedded SQLite store shared by the journal,
// sync, backup, and domain layers.
//
// The store runs in WAL mode so readers are not blocked by the single
// writer. All components borrow connections from the database/sql pool for
// one logical unit of work at a time; nothing holds a connection across a
// network call.
//
// Restore support: the live *sql.DB handle can be torn down with Close and
// re-attached with Reopen. While the handle is down every operation fails
// fast with ErrStorageUnavailable. The handle swap is the only place that
// needs real exclusivity; everything else relies on SQLite's own locking.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrStorageUnavailable is returned when the store has not been opened yet
// or its pool was torn down (e.g. during a restore). Callers do not retry
// acquisition; they surface the error.
var ErrStorageUnavailable = errors.New("store: storage unavailable")

// Store wraps the pooled SQLite connection with lifecycle control.
type Store struct {
	mu   sync.RWMutex
	conn *sql.DB
	path string
}

// Open creates (or attaches to) the database file at path.
//
// The database is opened in WAL mode with a busy timeout and foreign keys
// enabled. The caller MUST call Close when done so the WAL is checkpointed
// back into the main file.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := openPool(path)
	if err != nil {
		return nil, err
	}

	return &Store{conn: conn, path: path}, nil
}

// openPool opens and configures a fresh connection pool for path.
//
// The pragmas ride in the DSN so the driver applies them to every pooled
// connection; pragmas set with Exec only reach whichever connection the
// pool hands out for that one statement, and the busy timeout in
// particular must hold on the connection that runs a checkpoint.
func openPool(path string) (*sql.DB, error) {
	dsn := "file:" + path +
		"?_pragma=journal_mode(wal)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(on)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return conn, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Conn returns the underlying pool for one unit of work.
//
// Returns ErrStorageUnavailable if the store is closed.
func (s *Store) Conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil, ErrStorageUnavailable
	}
	return s.conn, nil
}

// BeginTx starts a transaction on the live pool.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	conn, err := s.Conn()
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Checkpoint forces a full WAL checkpoint so every committed transaction is
// flushed into the main database file. A file-level copy taken after a
// successful checkpoint is a consistent snapshot.
//
// An open write transaction blocks the checkpoint; the busy timeout gives
// it up to five seconds to finish. The pragma reports a blocked checkpoint
// in its result row instead of failing the statement, so the busy flag is
// checked explicitly - a partial checkpoint must not look like success.
func (s *Store) Checkpoint(ctx context.Context) error {
	conn, err := s.Conn()
	if err != nil {
		return err
	}

	var busy, logFrames, checkpointed int
	row := conn.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err := row.Scan(&busy, &logFrames, &checkpointed); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	if busy != 0 {
		return fmt.Errorf("checkpoint blocked by concurrent database activity")
	}
	return nil
}

// Close checkpoints the WAL and closes the pool.
//
// After Close every operation returns ErrStorageUnavailable until Reopen.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// Reopen re-attaches the pool after a Close, typically following a restore
// that replaced the database file.
func (s *Store) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	conn, err := openPool(s.path)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}
