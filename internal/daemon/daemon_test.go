package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Growth-Sheriff/dernekv1-sub000/internal/backup"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/journal"
	"github.com/Growth-Sheriff/dernekv1-sub000/internal/store"
	syncpkg "github.com/Growth-Sheriff/dernekv1-sub000/internal/sync"
)

// fakeSyncer records calls and returns scripted results.
type fakeSyncer struct {
	mu            sync.Mutex
	pushCalls     int
	pullCalls     int
	applyCalls    int
	pullSince     []int64
	pullChanges   []syncpkg.RemoteChange
	latestVersion int64
}

func (f *fakeSyncer) Push(ctx context.Context, tenantID string) (*syncpkg.PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushCalls++
	return &syncpkg.PushResult{}, nil
}

func (f *fakeSyncer) Pull(ctx context.Context, tenantID string, sinceVersion int64) (*syncpkg.PullResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullCalls++
	f.pullSince = append(f.pullSince, sinceVersion)
	return &syncpkg.PullResult{Changes: f.pullChanges, LatestVersion: f.latestVersion}, nil
}

func (f *fakeSyncer) Apply(ctx context.Context, tenantID string, changes []syncpkg.RemoteChange) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	return len(changes), nil
}

func (f *fakeSyncer) calls() (push, pull, apply int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushCalls, f.pullCalls, f.applyCalls
}

// setupJournal creates a journal over a temporary store.
func setupJournal(t *testing.T) (*journal.Journal, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return journal.New(s), s
}

func quietConfig(tenant string) *Config {
	return &Config{
		TenantID:            tenant,
		SyncInterval:        50 * time.Millisecond,
		BackupCheckInterval: time.Hour,
		Logger:              log.New(io.Discard, "", 0),
	}
}

// runDaemon starts d and returns a stop function that cancels it and waits
// for Start to return.
func runDaemon(t *testing.T, d *Daemon) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	return func() {
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Start() returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("daemon did not stop")
		}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestNew_Validation(t *testing.T) {
	j, _ := setupJournal(t)
	fake := &fakeSyncer{}

	tests := []struct {
		name   string
		syncer syncpkg.Syncer
		jrnl   *journal.Journal
		config *Config
	}{
		{"nil syncer", nil, j, quietConfig("t1")},
		{"nil journal", fake, nil, quietConfig("t1")},
		{"nil config", fake, j, nil},
		{"missing tenant", fake, j, quietConfig("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.syncer, tt.jrnl, nil, nil, tt.config); err == nil {
				t.Error("New() accepted an invalid configuration")
			}
		})
	}
}

func TestDaemon_StopBeforeStart(t *testing.T) {
	j, _ := setupJournal(t)

	d, err := New(&fakeSyncer{}, j, nil, nil, quietConfig("t1"))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	// No loops exist yet; Stop must be a harmless no-op, repeatedly.
	d.Stop()
	d.Stop()
}

func TestDaemon_RunsCycleImmediatelyAndOnTicks(t *testing.T) {
	j, _ := setupJournal(t)
	fake := &fakeSyncer{}

	d, err := New(fake, j, nil, nil, quietConfig("t1"))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	stop := runDaemon(t, d)
	defer stop()

	// The first cycle runs without waiting for a tick, then the ticker
	// keeps them coming.
	waitFor(t, func() bool {
		push, pull, _ := fake.calls()
		return push >= 2 && pull >= 2
	})
}

func TestDaemon_CursorAdvances(t *testing.T) {
	j, _ := setupJournal(t)
	fake := &fakeSyncer{
		pullChanges:   []syncpkg.RemoteChange{{TableName: "members", RecordID: "m1", Action: "create"}},
		latestVersion: 42,
	}

	d, err := New(fake, j, nil, nil, quietConfig("t1"))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if d.Cursor() != 0 {
		t.Fatalf("initial cursor = %d, want 0", d.Cursor())
	}

	stop := runDaemon(t, d)
	defer stop()

	waitFor(t, func() bool { return d.Cursor() == 42 })
	waitFor(t, func() bool {
		_, _, apply := fake.calls()
		return apply >= 1
	})

	// Later pulls start from the advanced cursor.
	waitFor(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.pullSince) >= 2 && fake.pullSince[len(fake.pullSince)-1] == 42
	})
}

func TestDaemon_CursorNeverRegresses(t *testing.T) {
	j, _ := setupJournal(t)
	fake := &fakeSyncer{latestVersion: 10}

	d, err := New(fake, j, nil, nil, quietConfig("t1"))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	stop := runDaemon(t, d)
	waitFor(t, func() bool { return d.Cursor() == 10 })

	// The remote reporting an older version must not move the cursor back.
	fake.mu.Lock()
	fake.latestVersion = 3
	fake.mu.Unlock()

	waitFor(t, func() bool {
		_, pull, _ := fake.calls()
		return pull >= 3
	})
	stop()

	if got := d.Cursor(); got != 10 {
		t.Errorf("cursor = %d after stale latest_version, want 10", got)
	}
}

func TestDaemon_AutoBackupLoop(t *testing.T) {
	j, s := setupJournal(t)
	fake := &fakeSyncer{}

	backupDir := filepath.Join(t.TempDir(), "backups")
	cfg := quietConfig("t1")
	cfg.BackupDir = backupDir
	cfg.BackupCheckInterval = 50 * time.Millisecond

	coordinator := backup.New(s, log.New(io.Discard, "", 0))
	d, err := New(fake, j, coordinator, nil, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	stop := runDaemon(t, d)
	defer stop()

	// The backup loop checks once on startup; the directory is missing so
	// an artifact is created.
	waitFor(t, func() bool {
		entries, err := os.ReadDir(backupDir)
		return err == nil && len(entries) == 1
	})
}
