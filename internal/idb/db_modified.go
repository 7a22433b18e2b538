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

// SetModified marks/clears id's dirty bit, per spec.md §4.1's
// modified(id, bool).
func (db *DB) SetModified(ctx context.Context, id InodeID, modified bool) error {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "modified", start) }()

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return opErr(ctx, "modified", cserr.Internal, err)
	}
	committed := false
	defer func() {
		if !committed {
			ltx.rollback()
		}
	}()

	n, ok := db.byID[id]
	if !ok || n.removed {
		return opErr(ctx, "modified", cserr.NotFound, errors.New("no such inode"))
	}

	if err := updateModified(ctx, ltx.tx, id, modified); err != nil {
		return opErr(ctx, "modified", cserr.Internal, err)
	}
	n.modified = modified

	if err := ltx.commit(); err != nil {
		return opErr(ctx, "modified", cserr.Internal, err)
	}
	committed = true
	return nil
}

// IsModified reports id's dirty bit, per spec.md §4.1's modified(id) →
// bool. In-memory inodes mirror the store, so no transaction is needed.
func (db *DB) IsModified(ctx context.Context, id InodeID) (bool, error) {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "modified", start) }()

	db.idbLock.Lock()
	defer db.idbLock.Unlock()
	n, ok := db.byID[id]
	if !ok || n.removed {
		return false, opErr(ctx, "modified", cserr.NotFound, errors.New("no such inode"))
	}
	return n.modified, nil
}

// ModifiedSubtree returns every dirty file inode that descends from
// parent, per spec.md §4.1's modified(parent) → [FileInode]. Besides
// the in-memory scan, it also rehydrates persisted-dirty rows that
// have no current in-memory inode (e.g. immediately after a restart,
// before their parent directory has been enumerated); without this,
// such a file would never be scheduled for eventual upload. Each
// candidate is classified by climbing parent handles until it reaches
// parent (related), the cloud root (unrelated), or the undefined handle
// (unrelated); a memo table avoids re-climbing shared ancestors.
func (db *DB) ModifiedSubtree(ctx context.Context, parent NodeHandle) ([]*InodeRef, error) {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "modified", start) }()

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return nil, opErr(ctx, "modified", cserr.Internal, err)
	}

	type candidate struct {
		n     *Inode
		start NodeHandle
	}
	var candidates []candidate
	for _, n := range db.byID {
		if n.removed || n.kind != KindFile || !n.modified {
			continue
		}
		start := n.handle
		if !start.Defined() {
			start = n.parentHandle
		}
		candidates = append(candidates, candidate{n, start})
	}

	rows, err := selectWhereModified(ctx, ltx.tx)
	if err != nil {
		ltx.rollback()
		return nil, opErr(ctx, "modified", cserr.Internal, err)
	}
	for i := range rows {
		r := rows[i]
		if _, ok := db.byID[InodeID(r.ID)]; ok {
			continue
		}
		n := db.rehydrateLocked(&r)
		start := n.handle
		if !start.Defined() {
			start = n.parentHandle
		}
		candidates = append(candidates, candidate{n, start})
	}
	ltx.rollback()

	memo := make(map[NodeHandle]bool)
	var result []*InodeRef
	for _, c := range candidates {
		related, err := db.isDescendantOf(ctx, c.start, parent, memo)
		if err != nil {
			return nil, opErr(ctx, "modified", cserr.KindOf(err), err)
		}
		if !related {
			continue
		}
		db.idbLock.Lock()
		if !c.n.removed {
			result = append(result, db.ref(c.n))
		}
		db.idbLock.Unlock()
	}
	return result, nil
}

// isDescendantOf climbs from start toward the cloud root via
// Cloud Client.ParentHandle, stopping as soon as it reaches target,
// the root, or the undefined handle.
func (db *DB) isDescendantOf(ctx context.Context, start, target NodeHandle, memo map[NodeHandle]bool) (bool, error) {
	var chain []NodeHandle
	h := start
	for h.Defined() {
		if h == target {
			memoizeChain(memo, chain, true)
			return true, nil
		}
		if related, ok := memo[h]; ok {
			memoizeChain(memo, chain, related)
			return related, nil
		}
		chain = append(chain, h)
		next, err := db.cloud.ParentHandle(ctx, h)
		if err != nil {
			return false, err
		}
		h = next
	}
	memoizeChain(memo, chain, false)
	return false, nil
}

func memoizeChain(memo map[NodeHandle]bool, chain []NodeHandle, related bool) {
	for _, h := range chain {
		memo[h] = related
	}
}
