// Copyright 2026 The CloudSync Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// db_events.go is the Event Observer of spec.md §4.2: a scoped operation
// that holds both locks and one transaction for the life of a single
// event batch, dispatching each event to one of five handlers.
package idb

import (
	"context"

	"github.com/meganz/cloudsync/internal/cserr"
	"github.com/meganz/cloudsync/internal/metrics"
)

// ApplyBatch drains one non-empty event batch atomically: one
// transaction commits exactly once, regardless of how many events it
// carries (spec.md §4.2's batching guarantee). Events are grouped by
// type and dispatched added → modified → moved → permissions →
// removed; this is an artifact of the dispatch table being indexed by
// event-type code, not a semantic ordering requirement, so within one
// type the original queue order is preserved.
func (db *DB) ApplyBatch(ctx context.Context, batch []NodeEvent) error {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "applyBatch", start) }()

	if len(batch) == 0 {
		return nil
	}

	var added, modified, moved, perms, removed []NodeEvent
	for _, e := range batch {
		switch e.Type {
		case EventAdded:
			added = append(added, e)
		case EventModified:
			modified = append(modified, e)
		case EventMoved:
			moved = append(moved, e)
		case EventPermissionsChanged:
			perms = append(perms, e)
		case EventRemoved:
			removed = append(removed, e)
		}
	}

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return opErr(ctx, "applyBatch", cserr.Internal, err)
	}
	committed := false
	defer func() {
		if !committed {
			ltx.rollback()
		}
	}()

	for _, e := range added {
		if err := db.handleAdded(ctx, ltx, e); err != nil {
			return opErr(ctx, "applyBatch", cserr.Internal, err)
		}
	}
	for _, e := range modified {
		db.handleModified(e)
	}
	for _, e := range moved {
		if err := db.handleMoved(ctx, ltx, e); err != nil {
			return opErr(ctx, "applyBatch", cserr.Internal, err)
		}
	}
	for _, e := range perms {
		db.handlePermissions(e)
	}
	for _, e := range removed {
		if err := db.handleRemoved(ctx, ltx, e); err != nil {
			return opErr(ctx, "applyBatch", cserr.Internal, err)
		}
	}

	if err := ltx.commit(); err != nil {
		return opErr(ctx, "applyBatch", cserr.Internal, err)
	}
	committed = true
	return nil
}

// removeAtSlot implements the three-way precedence shared by added() and
// the "remove at new location" half of moved(): a bind-handle match
// takes priority, then an in-memory occupant of the slot, then a cold
// row. It returns the id it evicted from the slot, if any, for the
// mount invalidation's oldId argument.
func (db *DB) removeAtSlot(ctx context.Context, ltx *lockedTx, parent NodeHandle, name string, bind BindHandle) (InodeID, error) {
	if bind.Defined() {
		if n, ok := db.byBindHandle[bind]; ok {
			return n.id, nil
		}
	}

	if n, ok := db.byParentAndName[parentNameKey{parent, name}]; ok {
		n.removed = true
		db.mounts.Each(func(m Mount) { m.InvalidatePin(n.id) })
		return n.id, nil
	}

	r, err := selectByNameParent(ctx, ltx.tx, name, parent)
	if err != nil {
		return NoChild, err
	}
	if r != nil {
		if err := deleteByID(ctx, ltx.tx, InodeID(r.ID)); err != nil {
			return NoChild, err
		}
		if db.cache != nil {
			db.cache.Remove(FileExtension(r.Extension), InodeID(r.ID))
		}
		return InodeID(r.ID), nil
	}

	return NoChild, nil
}

// handleAdded implements spec.md §4.2's added(event).
func (db *DB) handleAdded(ctx context.Context, ltx *lockedTx, e NodeEvent) error {
	if e.BindHandle.Defined() {
		if n, ok := db.byBindHandle[e.BindHandle]; ok {
			// This event completes a pending upload: stitch the cloud
			// identity onto the inode that originated it. The bind_handle
			// index/column are cleared here (not left for a later Bound()
			// call) so that re-delivery of the same event is a no-op: the
			// second pass finds nothing at by_bind_handle, by_parent_and_name,
			// or in the store for this slot.
			if err := bindToCloudResident(ctx, ltx.tx, n.id, e.Handle); err != nil {
				return err
			}
			db.promoteToCloudResidentLocked(n, e.Handle)
			n.extension = Extension(e.Name)
			db.mounts.Each(func(m Mount) { m.InvalidateEntry(e.Name, InodeID(e.ParentHandle), NoChild) })
			return nil
		}
	}

	oldID, err := db.removeAtSlot(ctx, ltx, e.ParentHandle, e.Name, e.BindHandle)
	if err != nil {
		return err
	}
	db.mounts.Each(func(m Mount) { m.InvalidateEntry(e.Name, InodeID(e.ParentHandle), oldID) })
	return nil
}

// handleModified implements spec.md §4.2's modified(event): cloud
// metadata is authoritative and lazy-fetched, so there is nothing to
// reconcile beyond busting the mounts' cached attributes.
func (db *DB) handleModified(e NodeEvent) {
	n, ok := db.byHandle[e.Handle]
	if !ok {
		return
	}
	db.mounts.Each(func(m Mount) { m.InvalidateAttributes(n.id) })
}

// handleMoved implements spec.md §4.2's moved(event): a composite of
// remove-at-new-location (added's three sub-cases) and relocate-existing.
func (db *DB) handleMoved(ctx context.Context, ltx *lockedTx, e NodeEvent) error {
	oldID, err := db.removeAtSlot(ctx, ltx, e.ParentHandle, e.Name, 0)
	if err != nil {
		return err
	}

	if n, ok := db.byHandle[e.Handle]; ok {
		if e.Info != nil {
			n.permissions = e.Info.Permissions
			if !e.Info.IsDirectory {
				n.extension = Extension(e.Info.Name)
			}
		}
		db.mounts.Each(func(m Mount) {
			m.InvalidatePin(n.id)
			m.InvalidateEntry(e.Name, InodeID(e.ParentHandle), oldID)
		})
		return nil
	}

	// No in-memory inode at the source: only bust the target's
	// negative-cache entry.
	db.mounts.Each(func(m Mount) { m.InvalidateEntry(e.Name, InodeID(e.ParentHandle), oldID) })
	return nil
}

// handleRemoved implements spec.md §4.2's removed(event).
func (db *DB) handleRemoved(ctx context.Context, ltx *lockedTx, e NodeEvent) error {
	if e.IsDirectory {
		db.mounts.Each(func(m Mount) { m.Disable(e.Handle) })
	}

	var id InodeID
	if n, ok := db.byHandle[e.Handle]; ok {
		n.removed = true
		id = n.id
		db.mounts.Each(func(m Mount) { m.InvalidatePin(n.id) })
	} else {
		r, err := selectByHandle(ctx, ltx.tx, e.Handle)
		if err != nil {
			return err
		}
		if r != nil {
			id = InodeID(r.ID)
			if err := deleteByID(ctx, ltx.tx, id); err != nil {
				return err
			}
			if db.cache != nil {
				db.cache.Remove(FileExtension(r.Extension), id)
			}
		}
	}

	db.mounts.Each(func(m Mount) { m.InvalidateEntry(e.Name, InodeID(e.ParentHandle), id) })
	return nil
}

// handlePermissions implements spec.md §4.2's permissions(event): a
// deliberate no-op (spec.md §9 Open Question: access checks are
// performed lazily on each operation instead).
func (db *DB) handlePermissions(e NodeEvent) {}
