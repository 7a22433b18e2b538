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

// Move relocates source to (targetParent, targetName), per spec.md
// §4.1's move().
func (db *DB) Move(ctx context.Context, source InodeID, targetName string, targetParent NodeHandle) error {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "move", start) }()

	db.idbLock.Lock()
	n, ok := db.byID[source]
	if !ok || n.removed {
		db.idbLock.Unlock()
		return opErr(ctx, "move", cserr.NotFound, errors.New("no such inode"))
	}
	handle := n.handle
	db.idbLock.Unlock()

	if handle.Defined() {
		// The cloud event stream reflects the change; no local state is
		// touched synchronously.
		if err := db.cloud.Move(ctx, handle, targetParent, targetName); err != nil {
			return opErr(ctx, "move", cserr.KindOf(err), err)
		}
		return nil
	}

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return opErr(ctx, "move", cserr.Internal, err)
	}
	committed := false
	defer func() {
		if !committed {
			ltx.rollback()
		}
	}()

	n, ok = db.byID[source]
	if !ok || n.removed {
		return opErr(ctx, "move", cserr.NotFound, errors.New("no such inode"))
	}
	oldParent, oldName := n.parentHandle, n.name

	if err := updateNameParent(ctx, ltx.tx, source, targetName, targetParent); err != nil {
		return opErr(ctx, "move", cserr.Internal, err)
	}

	db.setNameKeyLocked(n, targetParent, targetName)

	db.mounts.Each(func(m Mount) {
		m.InvalidateEntry(oldName, InodeID(oldParent), source)
		m.InvalidateEntry(targetName, InodeID(targetParent), NoChild)
	})

	if err := ltx.commit(); err != nil {
		return opErr(ctx, "move", cserr.Internal, err)
	}
	committed = true
	return nil
}

// Replace relocates source to (targetParent, targetName), deleting
// whatever inode currently occupies that slot, per spec.md §4.1's
// replace(). Of its four cases, only the remote-remote case is a pure
// delegation: the cloud event stream will do that bookkeeping. The
// other three touch local state synchronously.
func (db *DB) Replace(ctx context.Context, source, target InodeID, targetName string, targetParent NodeHandle) error {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "replace", start) }()

	db.idbLock.Lock()
	sn, ok := db.byID[source]
	if !ok || sn.removed {
		db.idbLock.Unlock()
		return opErr(ctx, "replace", cserr.NotFound, errors.New("no such source inode"))
	}
	tn, ok := db.byID[target]
	if !ok || tn.removed {
		db.idbLock.Unlock()
		return opErr(ctx, "replace", cserr.NotFound, errors.New("no such target inode"))
	}
	sourceHandle, targetHandle := sn.handle, tn.handle
	db.idbLock.Unlock()

	switch {
	case sourceHandle.Defined() && targetHandle.Defined():
		// replace-remote-with-remote: the event stream reflects both
		// removals/relocations; no synchronous local mutation.
		if err := db.cloud.Replace(ctx, sourceHandle, targetHandle); err != nil {
			return opErr(ctx, "replace", cserr.KindOf(err), err)
		}
		return nil

	case sourceHandle.Defined() && !targetHandle.Defined():
		// move-remote-over-local: only the cloud side needs to know
		// source is relocating; the local-only target is discarded here.
		if err := db.cloud.Move(ctx, sourceHandle, targetParent, targetName); err != nil {
			return opErr(ctx, "replace", cserr.KindOf(err), err)
		}

	case !sourceHandle.Defined() && targetHandle.Defined():
		// remove-remote: source has no cloud identity of its own, so the
		// remote target must be removed before source can take its slot.
		if err := db.cloud.Remove(ctx, targetHandle); err != nil {
			return opErr(ctx, "replace", cserr.KindOf(err), err)
		}

	default:
		// pure-local rename: nothing to tell the cloud.
	}

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return opErr(ctx, "replace", cserr.Internal, err)
	}
	committed := false
	defer func() {
		if !committed {
			ltx.rollback()
		}
	}()

	sn, ok = db.byID[source]
	if !ok || sn.removed {
		return opErr(ctx, "replace", cserr.NotFound, errors.New("no such source inode"))
	}
	tn, ok = db.byID[target]
	if !ok {
		return opErr(ctx, "replace", cserr.NotFound, errors.New("no such target inode"))
	}

	if err := deleteByID(ctx, ltx.tx, target); err != nil {
		return opErr(ctx, "replace", cserr.Internal, err)
	}

	var oldParent NodeHandle
	var oldName string
	if !sourceHandle.Defined() {
		oldParent, oldName = sn.parentHandle, sn.name
		if err := updateNameParent(ctx, ltx.tx, source, targetName, targetParent); err != nil {
			return opErr(ctx, "replace", cserr.Internal, err)
		}
		db.setNameKeyLocked(sn, targetParent, targetName)
	}

	if !tn.handle.Defined() {
		tn.removed = true
		db.evictNameKeyLocked(tn)
		if db.cache != nil {
			db.cache.Remove(tn.extension, tn.id)
		}
	}
	sn.modified = true

	db.mounts.Each(func(m Mount) {
		if oldName != "" {
			m.InvalidateEntry(oldName, InodeID(oldParent), source)
		}
		m.InvalidateEntry(targetName, InodeID(targetParent), target)
	})

	if err := ltx.commit(); err != nil {
		return opErr(ctx, "replace", cserr.Internal, err)
	}
	committed = true
	return nil
}

// Unlink removes an inode, per spec.md §4.1's unlink().
func (db *DB) Unlink(ctx context.Context, id InodeID) error {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "unlink", start) }()

	db.idbLock.Lock()
	n, ok := db.byID[id]
	if !ok || n.removed {
		db.idbLock.Unlock()
		return opErr(ctx, "unlink", cserr.NotFound, errors.New("no such inode"))
	}
	kind, handle := n.kind, n.handle
	db.idbLock.Unlock()

	if kind == KindDirectory {
		// The removal event stream does the local bookkeeping.
		if err := db.cloud.Remove(ctx, handle); err != nil {
			return opErr(ctx, "unlink", cserr.KindOf(err), err)
		}
		return nil
	}

	if handle.Defined() {
		if err := db.cloud.Remove(ctx, handle); err != nil {
			return opErr(ctx, "unlink", cserr.KindOf(err), err)
		}
	}

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return opErr(ctx, "unlink", cserr.Internal, err)
	}
	committed := false
	defer func() {
		if !committed {
			ltx.rollback()
		}
	}()

	n, ok = db.byID[id]
	if !ok || n.removed {
		return opErr(ctx, "unlink", cserr.NotFound, errors.New("no such inode"))
	}
	oldParent, oldName := n.parentHandle, n.name

	if err := deleteByID(ctx, ltx.tx, id); err != nil {
		return opErr(ctx, "unlink", cserr.Internal, err)
	}

	n.removed = true
	db.evictNameKeyLocked(n)
	if db.cache != nil {
		db.cache.Remove(n.extension, id)
	}

	db.mounts.Each(func(m Mount) { m.InvalidateEntry(oldName, InodeID(oldParent), id) })

	if err := ltx.commit(); err != nil {
		return opErr(ctx, "unlink", cserr.Internal, err)
	}
	committed = true
	return nil
}

// Binding reserves bind as the bind_handle for id, per spec.md §4.1's
// binding()/I4. An inode may hold at most one bind_handle at a time.
func (db *DB) Binding(ctx context.Context, id InodeID, bind BindHandle) error {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "binding", start) }()

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return opErr(ctx, "binding", cserr.Internal, err)
	}
	committed := false
	defer func() {
		if !committed {
			ltx.rollback()
		}
	}()

	n, ok := db.byID[id]
	if !ok || n.removed {
		return opErr(ctx, "binding", cserr.NotFound, errors.New("no such inode"))
	}
	if n.kind != KindFile {
		return opErr(ctx, "binding", cserr.Internal, errors.New("only files may be bound"))
	}

	if err := updateBindHandle(ctx, ltx.tx, id, bind); err != nil {
		return opErr(ctx, "binding", cserr.Internal, err)
	}

	if n.bindHandle.Defined() && db.byBindHandle[n.bindHandle] == n {
		delete(db.byBindHandle, n.bindHandle)
	}
	n.bindHandle = bind
	db.byBindHandle[bind] = n

	if err := ltx.commit(); err != nil {
		return opErr(ctx, "binding", cserr.Internal, err)
	}
	committed = true
	return nil
}

// Bound releases id's bind_handle, per spec.md §4.1's bound().
func (db *DB) Bound(ctx context.Context, id InodeID) error {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "bound", start) }()

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return opErr(ctx, "bound", cserr.Internal, err)
	}
	committed := false
	defer func() {
		if !committed {
			ltx.rollback()
		}
	}()

	n, ok := db.byID[id]
	if !ok {
		return opErr(ctx, "bound", cserr.NotFound, errors.New("no such inode"))
	}

	if err := updateBindHandle(ctx, ltx.tx, id, 0); err != nil {
		return opErr(ctx, "bound", cserr.Internal, err)
	}

	if n.bindHandle.Defined() {
		if db.byBindHandle[n.bindHandle] == n {
			delete(db.byBindHandle, n.bindHandle)
		}
		n.bindHandle = 0
	}

	if err := ltx.commit(); err != nil {
		return opErr(ctx, "bound", cserr.Internal, err)
	}
	committed = true
	return nil
}
