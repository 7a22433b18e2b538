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

package idb

import (
	"context"
	"errors"

	"github.com/meganz/cloudsync/internal/cserr"
	"github.com/meganz/cloudsync/internal/metrics"
)

// NoChild is HasChild's "no such child" marker.
const NoChild InodeID = 0

// Child resolves (parent, name) to an inode, per spec.md §4.1.
func (db *DB) Child(ctx context.Context, parent NodeHandle, name string) (*InodeRef, error) {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "child", start) }()

	if name == "" {
		return nil, opErr(ctx, "child", cserr.Internal, errors.New("empty name"))
	}
	id, found, err := db.HasChild(ctx, parent, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	ref, err := db.GetByID(ctx, id)
	if err != nil || ref != nil || id.IsSynthetic() {
		return ref, err
	}
	// A cloud child with no in-memory inode and no stored row has a
	// handle-derived id; fetch it from the Cloud Client.
	return db.GetByHandle(ctx, NodeHandle(id), false)
}

// HasChild implements the cloud-wins tie-break rule from spec.md §4.1:
// a cloud entry at (parent, name) always supersedes any local-only
// inode occupying that slot.
func (db *DB) HasChild(ctx context.Context, parent NodeHandle, name string) (InodeID, bool, error) {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "hasChild", start) }()

	childHandle, bindHandle, ok, err := db.cloud.Handle(ctx, parent, name)
	if err != nil {
		return NoChild, false, opErr(ctx, "hasChild", cserr.KindOf(err), err)
	}

	if ok {
		return db.resolveCloudChild(ctx, parent, name, childHandle, bindHandle)
	}

	// Cloud lacks it: the slot, if occupied, belongs to a local-only row.
	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return NoChild, false, opErr(ctx, "hasChild", cserr.Internal, err)
	}
	defer ltx.rollback()

	if n, ok := db.byParentAndName[parentNameKey{parent, name}]; ok && !n.removed {
		return n.id, true, nil
	}
	r, err := selectByNameParent(ctx, ltx.tx, name, parent)
	if err != nil {
		return NoChild, false, opErr(ctx, "hasChild", cserr.Internal, err)
	}
	if r == nil {
		return NoChild, false, nil
	}
	return InodeID(r.ID), true, nil
}

func (db *DB) resolveCloudChild(ctx context.Context, parent NodeHandle, name string, childHandle NodeHandle, bindHandle BindHandle) (InodeID, bool, error) {
	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return NoChild, false, opErr(ctx, "hasChild", cserr.Internal, err)
	}
	defer ltx.rollback()

	id := InodeID(childHandle)
	resolvedID, foundRow, err := selectIDByBindOrHandle(ctx, ltx.tx, bindHandle, childHandle)
	if err != nil {
		return NoChild, false, opErr(ctx, "hasChild", cserr.Internal, err)
	}
	if foundRow {
		id = resolvedID
		if err := bindToCloudResident(ctx, ltx.tx, id, childHandle); err != nil {
			return NoChild, false, opErr(ctx, "hasChild", cserr.Internal, err)
		}
		if n, ok := db.byID[id]; ok {
			db.promoteToCloudResidentLocked(n, childHandle)
		}
	}

	// A different local-only inode at this exact slot is evicted: the
	// cloud entry wins the name.
	if other, ok := db.byParentAndName[parentNameKey{parent, name}]; ok && other.id != id {
		if err := clearNameParent(ctx, ltx.tx, other.id); err != nil {
			return NoChild, false, opErr(ctx, "hasChild", cserr.Internal, err)
		}
		db.evictNameKeyLocked(other)
	}

	if err := ltx.commit(); err != nil {
		return NoChild, false, opErr(ctx, "hasChild", cserr.Internal, err)
	}
	return id, true, nil
}

// promoteToCloudResidentLocked mirrors bindToCloudResident's store
// mutation onto the in-memory inode. Must be called with idb_lock held.
func (db *DB) promoteToCloudResidentLocked(n *Inode, handle NodeHandle) {
	if n.bindHandle.Defined() {
		if db.byBindHandle[n.bindHandle] == n {
			delete(db.byBindHandle, n.bindHandle)
		}
		n.bindHandle = 0
	}
	db.evictNameKeyLocked(n)
	n.handle = handle
	n.removed = false
	db.byHandle[handle] = n
}
