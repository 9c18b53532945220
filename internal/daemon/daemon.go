// Package daemon runs the periodic sync and auto-backup loop.
//
// The sync engine itself is caller-driven: push, pull, and backup are
// plain operations with no scheduling of their own. The daemon is that
// caller - it invokes push and pull+apply on a timer, checks the
// auto-backup policy once an hour, and optionally feeds a dashboard.
//
// The pull cursor lives in memory. After a restart the daemon pulls from
// version zero again; that re-receives old changes, which is harmless
// because apply is idempotent.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/backup"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/dashboard"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/journal"
	syncpkg "github.com/Growth-Sheriff/dernekv1-sub000/internal/sync"
)

// Config holds daemon settings.
type Config struct {
	// TenantID scopes every push, pull, and backup.
	TenantID string

	// SyncInterval is how often to run a push + pull cycle.
	SyncInterval time.Duration

	// BackupCheckInterval is how often to evaluate the auto-backup policy.
	BackupCheckInterval time.Duration

	// BackupDir receives auto-backup artifacts. Empty disables auto-backup.
	BackupDir string

	// Logger for daemon activity. If nil, a default stderr logger is used.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:        30 * time.Second,
		BackupCheckInterval: time.Hour,
		Logger:              log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon drives sync cycles and auto-backups until stopped.
type Daemon struct {
	syncer      syncpkg.Syncer
	journal     *journal.Journal
	coordinator *backup.Coordinator
	dash        *dashboard.Server // optional
	config      *Config

	cursorMu sync.Mutex
	cursor   int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon. dash may be nil when no dashboard is wanted.
func New(s syncpkg.Syncer, j *journal.Journal, c *backup.Coordinator, dash *dashboard.Server, config *Config) (*Daemon, error) {
	if s == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if j == nil {
		return nil, fmt.Errorf("journal cannot be nil")
	}
	if config == nil || config.TenantID == "" {
		return nil, fmt.Errorf("config with tenant id is required")
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 30 * time.Second
	}
	if config.BackupCheckInterval <= 0 {
		config.BackupCheckInterval = time.Hour
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	return &Daemon{
		syncer:      s,
		journal:     j,
		coordinator: c,
		dash:        dash,
		config:      config,
	}, nil
}

// Start runs the daemon until ctx is cancelled.
//
// One sync cycle runs immediately so a freshly started daemon drains the
// journal without waiting a full interval.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)
	d.config.Logger.Printf("Starting daemon for tenant %s (sync every %v)",
		d.config.TenantID, d.config.SyncInterval)

	d.runSyncCycle(ctx)

	d.wg.Add(1)
	go d.syncLoop(ctx)

	if d.coordinator != nil && d.config.BackupDir != "" {
		d.wg.Add(1)
		go d.backupLoop(ctx)
	}

	<-ctx.Done()
	d.wg.Wait()
	d.config.Logger.Println("Daemon stopped")
	return ctx.Err()
}

// Stop cancels the daemon's loops. Safe to call more than once; calling
// Stop before Start is a no-op, since there are no loops to cancel yet.
func (d *Daemon) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Daemon) syncLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runSyncCycle(ctx)
		}
	}
}

// runSyncCycle performs one push then one pull+apply. Failures are logged
// and the next tick tries again; unsynced entries simply wait.
func (d *Daemon) runSyncCycle(ctx context.Context) {
	tenant := d.config.TenantID

	res, err := d.syncer.Push(ctx, tenant)
	if err != nil {
		d.config.Logger.Printf("WARNING: push failed: %v", err)
	} else if res.Synced > 0 || res.Failed > 0 {
		if d.dash != nil {
			d.dash.PublishData(dashboard.EventPushComplete, tenant, dashboard.PushCompleteData{
				Synced: res.Synced,
				Failed: res.Failed,
				Errors: res.Errors,
			})
		}
	}

	d.cursorMu.Lock()
	since := d.cursor
	d.cursorMu.Unlock()

	batch, err := d.syncer.Pull(ctx, tenant, since)
	if err != nil {
		d.config.Logger.Printf("WARNING: pull failed: %v", err)
		return
	}

	if len(batch.Changes) > 0 {
		applied, err := d.syncer.Apply(ctx, tenant, batch.Changes)
		if err != nil {
			d.config.Logger.Printf("WARNING: apply failed: %v", err)
			return
		}
		if d.dash != nil {
			d.dash.PublishData(dashboard.EventPullApplied, tenant, dashboard.PullAppliedData{
				Received: len(batch.Changes),
				Applied:  applied,
				Cursor:   batch.LatestVersion,
			})
		}
	}

	if batch.LatestVersion > since {
		d.cursorMu.Lock()
		d.cursor = batch.LatestVersion
		d.cursorMu.Unlock()
	}

	if d.dash != nil {
		if pending, total, err := d.journal.Counts(ctx, tenant); err == nil {
			d.dash.PublishData(dashboard.EventJournalStats, tenant, dashboard.JournalStatsData{
				Pending: pending,
				Total:   total,
			})
		}
	}
}

func (d *Daemon) backupLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.BackupCheckInterval)
	defer ticker.Stop()

	d.runBackupCheck(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runBackupCheck(ctx)
		}
	}
}

func (d *Daemon) runBackupCheck(ctx context.Context) {
	artifact, err := d.coordinator.AutoBackup(ctx, d.config.TenantID, d.config.BackupDir)
	if err != nil {
		d.config.Logger.Printf("WARNING: auto-backup failed: %v", err)
		return
	}
	if artifact == nil {
		return
	}

	d.config.Logger.Printf("Auto-backup created: %s", artifact.Filename)
	if d.dash != nil {
		d.dash.PublishData(dashboard.EventBackupCreated, d.config.TenantID, dashboard.BackupCreatedData{
			Filename: artifact.Filename,
			Size:     artifact.Size,
		})
	}
}

// Cursor returns the current pull cursor, mainly for status reporting.
func (d *Daemon) Cursor() int64 {
	d.cursorMu.Lock()
	defer d.cursorMu.Unlock()
	return d.cursor
}
