// Package sync drives outbound (push) and inbound (pull) synchronization of
// the change journal against a remote HTTP endpoint.
package sync

import (
	"context"
	"encoding/json"
	"time"
)

// Syncer delivers pending journal entries to the remote authority and
// applies remote-originated changes to the local domain tables.
//
// The syncer has no domain knowledge beyond table name, record id,
// operation, and an opaque payload. It guarantees at-least-once delivery:
// a crash between remote acknowledgment and the local mark-synced update
// redelivers the entry on the next push, so the apply side (local and
// remote) must be idempotent per (table, record, operation).
//
// The syncer never retries on its own. A partially failed push is a mixed
// result, not an error; the caller re-invokes push when it wants another
// delivery attempt.
type Syncer interface {
	// Push delivers up to the configured batch of unsynced journal entries
	// for the tenant, oldest first.
	//
	// Each entry is sent as one remote write request. On a 2xx response the
	// entry is marked synced; on any other outcome it stays unsynced and a
	// per-entry error string is recorded. Once an entry for a record fails,
	// later entries for the same record in the batch are skipped so that
	// operations on one record are never delivered out of order.
	//
	// Push returns an error only when the journal itself cannot be read or
	// written; remote failures are reported inside the result.
	//
	// Example:
	//   res, err := syncer.Push(ctx, "tenant-1")
	Push(ctx context.Context, tenantID string) (*PushResult, error)

	// Pull fetches remote-originated changes for the tenant newer than
	// sinceVersion.
	//
	// A transport failure or non-2xx response is fatal for the invocation.
	// Advancing the version cursor is the caller's responsibility; the
	// remote reports the latest version it knows in the result, and a
	// caller that restarts from an older cursor only re-receives changes
	// that Apply tolerates.
	//
	// Example:
	//   batch, err := syncer.Pull(ctx, "tenant-1", cursor)
	Pull(ctx context.Context, tenantID string, sinceVersion int64) (*PullResult, error)

	// Apply writes remote changes into the local domain tables.
	//
	// Dispatch is by table name over a closed registry: create/update is an
	// idempotent upsert keyed by record id, delete an idempotent delete.
	// Unknown tables and malformed payloads are skipped and logged - one
	// bad record never aborts the batch. Applying the same change twice
	// leaves the domain tables in the same state as applying it once.
	//
	// Returns the number of changes applied.
	//
	// Example:
	//   applied, err := syncer.Apply(ctx, "tenant-1", changes)
	Apply(ctx context.Context, tenantID string, changes []RemoteChange) (int, error)
}

// PushResult reports the outcome of one push invocation.
//
// A mixed result (some synced, some failed) is normal and safe to retry:
// failed entries remain unsynced and are picked up by the next push.
type PushResult struct {
	// Synced is the number of entries newly acknowledged and marked synced.
	Synced int
	// Failed is the number of entries that stayed unsynced, including
	// entries skipped to preserve per-record ordering.
	Failed int
	// Errors holds one message per failed entry.
	Errors []string
}

// PullResult is one batch of remote-originated changes.
type PullResult struct {
	// Changes holds the batch, possibly empty.
	Changes []RemoteChange
	// LatestVersion is the newest change version the remote holds for the
	// tenant; callers use it as the next since_version cursor. Zero when
	// the remote did not report one.
	LatestVersion int64
}

// RemoteChange is one remote-originated change returned by pull.
type RemoteChange struct {
	TableName      string          `json:"table_name"`
	RecordID       string          `json:"record_id"`
	Action         string          `json:"action"` // create, update, delete
	Data           json.RawMessage `json:"data,omitempty"`
	LocalUpdatedAt time.Time       `json:"local_updated_at"`
}
