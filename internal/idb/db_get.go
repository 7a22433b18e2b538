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

// GetByHandle resolves a cloud handle to an inode, following spec.md
// §4.1's get() algorithm. It returns (nil, nil) if no such inode exists
// and inMemoryOnly forbids the fallback lookups that would find out.
func (db *DB) GetByHandle(ctx context.Context, handle NodeHandle, inMemoryOnly bool) (*InodeRef, error) {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "get", start) }()

	if !handle.Defined() {
		return nil, opErr(ctx, "get", cserr.Internal, errors.New("undefined handle"))
	}

	// Step 1: in-memory hit.
	db.idbLock.Lock()
	if n, ok := db.byHandle[handle]; ok && !n.removed {
		db.touchLocked(n)
		ref := db.ref(n)
		db.idbLock.Unlock()
		metrics.RecordLookup(ctx, true)
		return ref, nil
	}
	db.idbLock.Unlock()
	metrics.RecordLookup(ctx, false)

	if inMemoryOnly {
		return nil, nil
	}

	// Step 2/3: cold row in the store.
	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return nil, opErr(ctx, "get", cserr.Internal, err)
	}
	r, err := selectByHandle(ctx, ltx.tx, handle)
	if err != nil {
		ltx.rollback()
		return nil, opErr(ctx, "get", cserr.Internal, err)
	}
	if r != nil {
		if existing, ok := db.byHandle[handle]; ok && !existing.removed {
			ref := db.ref(existing)
			ltx.rollback()
			return ref, nil
		}
		n := db.rehydrateLocked(r)
		ref := db.ref(n)
		if err := ltx.commit(); err != nil {
			ref.Release()
			return nil, opErr(ctx, "get", cserr.Internal, err)
		}
		return ref, nil
	}
	ltx.rollback()

	// Step 4: ask the Cloud Client without holding either lock.
	info, err := db.cloud.Get(ctx, handle)
	if err != nil {
		return nil, opErr(ctx, "get", cserr.KindOf(err), err)
	}
	if info == nil {
		return nil, nil
	}

	// Step 5: reacquire and revalidate the race.
	ltx, err = db.beginLocked(ctx)
	if err != nil {
		return nil, opErr(ctx, "get", cserr.Internal, err)
	}
	defer func() {
		if ltx != nil {
			ltx.rollback()
		}
	}()

	if existing, ok := db.byHandle[handle]; ok && !existing.removed {
		return db.ref(existing), nil
	}
	if info.BindHandle.Defined() {
		if bound, ok := db.byBindHandle[info.BindHandle]; ok {
			return db.ref(bound), nil
		}
	}

	n := newInode(InodeID(handle), kindFromIsDirectory(info.IsDirectory), nil)
	n.handle = handle
	if !info.IsDirectory {
		n.extension = Extension(info.Name)
	}
	n.permissions = info.Permissions
	db.touchLocked(n)
	db.insertIntoIndexes(n)

	// Directories are never persisted: they carry no File Cache entry
	// and no dirty bit, and their listing is always cloud-authoritative
	// (spec.md §4.1's by_parent_and_name index exists only "for local-
	// only files and pending-binding inodes"). Only files get a row.
	if !info.IsDirectory {
		if err := insert(ctx, ltx.tx, row{
			ID:        int64(n.id),
			Extension: string(n.extension),
			Handle:    nullHandle(handle),
		}); err != nil {
			delete(db.byID, n.id)
			delete(db.byHandle, handle)
			return nil, opErr(ctx, "get", cserr.Internal, err)
		}
	}

	tx := ltx
	ltx = nil
	if err := tx.commit(); err != nil {
		return nil, opErr(ctx, "get", cserr.Internal, err)
	}
	return db.refLocked(n), nil
}

// refLocked is ref() for callers that no longer hold idb_lock; it
// acquires it itself.
func (db *DB) refLocked(n *Inode) *InodeRef {
	db.idbLock.Lock()
	defer db.idbLock.Unlock()
	return db.ref(n)
}

// rehydrateLocked reconstructs an in-memory Inode from a cold store row
// and inserts it into the indexes. Must be called with idb_lock held.
func (db *DB) rehydrateLocked(r *row) *Inode {
	handle, parent, name, hasName, bind := rowToInfo(r)
	// Only files are ever persisted (see the comment in GetByHandle), so
	// a row found cold in the store is always a file.
	n := newInode(InodeID(r.ID), KindFile, nil)
	n.handle = handle
	n.extension = FileExtension(r.Extension)
	n.modified = r.Modified
	n.bindHandle = bind
	if hasName {
		n.parentHandle = parent
		n.name = name
		n.hasNameKey = true
	}
	db.touchLocked(n)
	db.insertIntoIndexes(n)
	return n
}

// GetByID resolves a local InodeID to an inode. An in-memory hit is the
// common case (ids are usually handed out by an operation that just
// instantiated the inode), but an id can also name a file that was
// rehydrated cold and then evicted, or one whose row was written by a
// prior process and never brought into memory this run; selectByID
// covers both by falling back to the store.
func (db *DB) GetByID(ctx context.Context, id InodeID) (*InodeRef, error) {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "getByID", start) }()

	db.idbLock.Lock()
	if n, ok := db.byID[id]; ok && !n.removed {
		db.touchLocked(n)
		ref := db.ref(n)
		db.idbLock.Unlock()
		return ref, nil
	}
	db.idbLock.Unlock()

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return nil, opErr(ctx, "getByID", cserr.Internal, err)
	}
	defer func() {
		if ltx != nil {
			ltx.rollback()
		}
	}()

	if n, ok := db.byID[id]; ok && !n.removed {
		return db.ref(n), nil
	}

	r, err := selectByID(ctx, ltx.tx, id)
	if err != nil {
		return nil, opErr(ctx, "getByID", cserr.Internal, err)
	}
	if r == nil {
		return nil, nil
	}

	n := db.rehydrateLocked(r)
	ref := db.ref(n)
	tx := ltx
	ltx = nil
	if err := tx.commit(); err != nil {
		ref.Release()
		return nil, opErr(ctx, "getByID", cserr.Internal, err)
	}
	return ref, nil
}
