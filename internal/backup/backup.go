// Package backup produces and restores point-in-time copies of the local
// store.
//
// A backup is a plain file copy of the SQLite database, taken only after a
// full WAL checkpoint so the copy contains every committed transaction and
// no torn pages. Restore swaps the artifact in under a safety copy of the
// live file: if the swap fails, the live store is put back byte-for-byte.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/store"
)

// ErrIntegrity is returned when a backup or restore precondition does not
// hold (missing artifact, unset live path). The operation aborts with no
// partial state changes.
var ErrIntegrity = errors.New("backup: integrity violation")

// autoBackupMaxAge is how old the newest artifact may be before AutoBackup
// takes a fresh snapshot.
const autoBackupMaxAge = 24 * time.Hour

// Artifact describes one backup file.
type Artifact struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Coordinator creates, restores, lists, and prunes backup artifacts for one
// store.
type Coordinator struct {
	store  *store.Store
	logger *log.Logger
}

// New creates a Coordinator. If logger is nil, a default logger writing to
// stderr is used.
func New(s *store.Store, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(os.Stderr, "[backup] ", log.LstdFlags)
	}
	return &Coordinator{store: s, logger: logger}
}

// Create takes a consistent snapshot of the store into dir.
//
// The WAL checkpoint runs first and is mandatory: if it fails, no artifact
// is produced. If the file copy fails, the partial destination file is
// removed - either a complete valid artifact exists afterwards, or none
// does.
func (c *Coordinator) Create(ctx context.Context, tenantID, dir string) (*Artifact, error) {
	if c.store.Path() == "" {
		return nil, fmt.Errorf("%w: store path is not set", ErrIntegrity)
	}

	if err := c.store.Checkpoint(ctx); err != nil {
		return nil, fmt.Errorf("checkpoint before backup failed: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	now := time.Now()
	filename := fmt.Sprintf("backup_%s_%s.db", tenantID, now.Format("20060102_150405"))
	dst := filepath.Join(dir, filename)

	if err := copyFile(c.store.Path(), dst); err != nil {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("failed to copy store file: %w", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("failed to stat backup artifact: %w", err)
	}

	c.logger.Printf("Created backup %s (%d bytes)", dst, info.Size())
	return &Artifact{
		Filename:  filename,
		Path:      dst,
		Size:      info.Size(),
		CreatedAt: now,
	}, nil
}

// Restore replaces the live store file with the given artifact.
//
// Steps: verify the artifact exists, checkpoint the WAL so the main file
// holds every committed transaction, copy the live file to a safety
// location, tear down the connection pool, copy the artifact over the live
// path. On success the safety copy is deleted and the pool reopened. If the
// swap fails, the safety copy is put back over the live path and the
// original error surfaced - the live store is never left half-written.
//
// The checkpoint must precede the safety copy: without it, commits still
// resident in the WAL would be missing from the safety file, and a rollback
// would revert the store to a stale image.
//
// No other database activity may run during a restore; the caller
// serializes it (in the desktop app, by requiring a restart).
func (c *Coordinator) Restore(ctx context.Context, artifactPath string) error {
	livePath := c.store.Path()
	if livePath == "" {
		return fmt.Errorf("%w: store path is not set", ErrIntegrity)
	}
	if _, err := os.Stat(artifactPath); err != nil {
		return fmt.Errorf("%w: backup artifact %s: %v", ErrIntegrity, artifactPath, err)
	}

	if err := c.store.Checkpoint(ctx); err != nil {
		return fmt.Errorf("checkpoint before restore failed: %w", err)
	}

	safetyPath := livePath + ".pre-restore"
	if err := copyFile(livePath, safetyPath); err != nil {
		return fmt.Errorf("failed to create safety copy: %w", err)
	}

	if err := c.store.Close(); err != nil {
		_ = os.Remove(safetyPath)
		return fmt.Errorf("failed to close store before restore: %w", err)
	}

	if err := copyFile(artifactPath, livePath); err != nil {
		// Roll the live file back from the safety copy. This must not be
		// skipped: the live path may now hold a torn write.
		if rbErr := copyFile(safetyPath, livePath); rbErr != nil {
			return fmt.Errorf("restore failed: %v (rollback also failed: %w)", err, rbErr)
		}
		_ = os.Remove(safetyPath)
		if reErr := c.store.Reopen(); reErr != nil {
			c.logger.Printf("WARNING: failed to reopen store after rollback: %v", reErr)
		}
		return fmt.Errorf("failed to copy artifact over live store: %w", err)
	}

	// Stale WAL/SHM files belong to the pre-restore database; with the main
	// file replaced they must not be replayed.
	_ = os.Remove(livePath + "-wal")
	_ = os.Remove(livePath + "-shm")

	if err := os.Remove(safetyPath); err != nil {
		c.logger.Printf("WARNING: failed to remove safety copy %s: %v", safetyPath, err)
	}

	if err := c.store.Reopen(); err != nil {
		return fmt.Errorf("restore succeeded but reopening the store failed (restart required): %w", err)
	}

	c.logger.Printf("Restored store from %s", artifactPath)
	return nil
}

// List returns the backup artifacts in dir, newest first.
//
// A missing directory yields an empty list, not an error.
func (c *Coordinator) List(dir string) ([]*Artifact, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var artifacts []*Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "backup_") || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, &Artifact{
			Filename:  name,
			Path:      filepath.Join(dir, name),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// Cleanup deletes artifacts in dir older than maxAgeDays and returns how
// many were removed.
func (c *Coordinator) Cleanup(dir string, maxAgeDays int) (int, error) {
	artifacts, err := c.List(dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	deleted := 0
	for _, a := range artifacts {
		if a.CreatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			return deleted, fmt.Errorf("failed to delete %s: %w", a.Path, err)
		}
		c.logger.Printf("Deleted expired backup %s", a.Filename)
		deleted++
	}
	return deleted, nil
}

// AutoBackup takes a snapshot if the newest artifact is older than 24 hours
// or the backup directory does not exist yet. Returns nil when no backup
// was needed.
func (c *Coordinator) AutoBackup(ctx context.Context, tenantID, dir string) (*Artifact, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return c.Create(ctx, tenantID, dir)
	}

	artifacts, err := c.List(dir)
	if err != nil {
		return nil, err
	}
	prefix := "backup_" + tenantID + "_"
	for _, a := range artifacts {
		if !strings.HasPrefix(a.Filename, prefix) {
			continue
		}
		// Newest first; the first match decides.
		if time.Since(a.CreatedAt) < autoBackupMaxAge {
			return nil, nil
		}
		break
	}
	return c.Create(ctx, tenantID, dir)
}

// copyFile copies src to dst, truncating dst if it exists. The destination
// is fsynced before close so a crash cannot leave a silently short copy.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}
