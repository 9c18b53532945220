package sync

import (
	"context"
	"encoding/json"
)

// Applier writes remote changes for one domain table.
//
// Both operations must be idempotent: Upsert keyed by record id, Delete a
// no-op when the row is already gone. The apply side is the load-bearing
// half of the at-least-once pipeline - duplicates arrive by design.
type Applier interface {
	// Table returns the domain table name this applier handles.
	Table() string

	// Upsert inserts or replaces the row identified by recordID for the
	// tenant from the serialized remote payload.
	Upsert(ctx context.Context, tenantID, recordID string, data json.RawMessage) error

	// Delete removes the row identified by recordID for the tenant.
	// Deleting an absent row is not an error.
	Delete(ctx context.Context, tenantID, recordID string) error
}

// Registry is the closed set of tables remote changes can be applied to.
//
// Routing by table name is deliberate: an unknown table is a skip-and-log
// branch, never a silent write into an arbitrary table.
type Registry struct {
	appliers map[string]Applier
}

// NewRegistry builds a registry from the given appliers.
func NewRegistry(appliers ...Applier) *Registry {
	r := &Registry{appliers: make(map[string]Applier, len(appliers))}
	for _, a := range appliers {
		r.appliers[a.Table()] = a
	}
	return r
}

// Lookup returns the applier for a table, if registered.
func (r *Registry) Lookup(table string) (Applier, bool) {
	a, ok := r.appliers[table]
	return a, ok
}

// Tables returns the number of registered tables.
func (r *Registry) Tables() int {
	return len(r.appliers)
}

// Apply implements Syncer.Apply.
//
// Each change is dispatched independently; a failure or unknown table is
// logged and skipped so one bad record cannot abort the batch.
func (c *client) Apply(ctx context.Context, tenantID string, changes []RemoteChange) (int, error) {
	applied := 0

	for _, ch := range changes {
		applier, ok := c.registry.Lookup(ch.TableName)
		if !ok {
			c.logger.Printf("WARNING: skipping change for unknown table %q (record %s)",
				ch.TableName, ch.RecordID)
			continue
		}
		if ch.RecordID == "" {
			c.logger.Printf("WARNING: skipping change for table %q with empty record id", ch.TableName)
			continue
		}

		var err error
		switch ch.Action {
		case "create", "update":
			err = applier.Upsert(ctx, tenantID, ch.RecordID, ch.Data)
		case "delete":
			err = applier.Delete(ctx, tenantID, ch.RecordID)
		default:
			c.logger.Printf("WARNING: skipping change with unknown action %q (%s/%s)",
				ch.Action, ch.TableName, ch.RecordID)
			continue
		}

		if err != nil {
			c.logger.Printf("WARNING: failed to apply %s %s/%s: %v",
				ch.Action, ch.TableName, ch.RecordID, err)
			continue
		}
		applied++
	}

	c.logger.Printf("Apply complete for tenant %s: %d/%d changes applied",
		tenantID, applied, len(changes))
	return applied, nil
}
