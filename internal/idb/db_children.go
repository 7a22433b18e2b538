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

	"github.com/meganz/cloudsync/internal/cserr"
	"github.com/meganz/cloudsync/internal/metrics"
	"github.com/meganz/cloudsync/internal/store"
)

// duplicateSentinel marks a cloud name seen twice while streaming
// children: spec.md §4.1 says both occurrences become invisible.
var duplicateSentinel = &NodeInfo{}

// Children merges the cloud and local views of a directory's contents,
// per spec.md §4.1.
func (db *DB) Children(ctx context.Context, parent NodeHandle) ([]*InodeRef, error) {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "children", start) }()

	cloudChildren := make(map[string]*NodeInfo)
	err := db.cloud.Each(ctx, parent, func(info *NodeInfo) bool {
		if _, dup := cloudChildren[info.Name]; dup {
			cloudChildren[info.Name] = duplicateSentinel
		} else {
			cloudChildren[info.Name] = info
		}
		return true
	})
	if err != nil {
		return nil, opErr(ctx, "children", cserr.KindOf(err), err)
	}

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return nil, opErr(ctx, "children", cserr.Internal, err)
	}
	committed := false
	defer func() {
		if !committed {
			ltx.rollback()
		}
	}()

	localRows, err := selectAllChildrenByParent(ctx, ltx.tx, parent)
	if err != nil {
		return nil, opErr(ctx, "children", cserr.Internal, err)
	}

	var toRemove []InodeID
	var pending []row
	for _, r := range localRows {
		info, inCloud := cloudChildren[r.Name]
		if inCloud && info != duplicateSentinel {
			toRemove = append(toRemove, InodeID(r.ID))
			continue
		}
		pending = append(pending, r)
	}

	var result []*InodeRef

	for name, info := range cloudChildren {
		if info == duplicateSentinel {
			continue
		}
		_ = name
		n, err := db.instantiateCloudChildLocked(ctx, ltx.tx, info)
		if err != nil {
			return nil, opErr(ctx, "children", cserr.Internal, err)
		}
		result = append(result, db.ref(n))
	}

	for _, r := range pending {
		id := InodeID(r.ID)
		n, ok := db.byID[id]
		if !ok {
			fi, found := db.cache.Info(FileExtension(r.Extension), id)
			if !found {
				toRemove = append(toRemove, id)
				continue
			}
			n = newInode(id, KindFile, nil)
			n.extension = FileExtension(r.Extension)
			n.modified = r.Modified
			n.parentHandle = parent
			n.name = r.Name.String
			n.hasNameKey = true
			n.fileInfo = fi
			db.touchLocked(n)
			db.insertIntoIndexes(n)
		}
		if n.removed {
			continue
		}
		result = append(result, db.ref(n))
	}

	for _, id := range toRemove {
		if err := deleteByID(ctx, ltx.tx, id); err != nil {
			return nil, opErr(ctx, "children", cserr.Internal, err)
		}
		if n, ok := db.byID[id]; ok {
			db.evictNameKeyLocked(n)
			if db.cache != nil {
				db.cache.Remove(n.extension, id)
			}
		}
	}

	if err := ltx.commit(); err != nil {
		return nil, opErr(ctx, "children", cserr.Internal, err)
	}
	committed = true
	return result, nil
}

// instantiateCloudChildLocked must be called with idb_lock held (via the
// caller's lockedTx), which also owns tx. Per spec.md §4.1's children()
// step 4: a cloud child with a persisted row (the common case once a
// file has been uploaded at least once) is rehydrated with its stored
// extension rather than one guessed from the cloud name, and a row
// whose File Cache entry has gone missing is purged instead of being
// silently left to dangle.
func (db *DB) instantiateCloudChildLocked(ctx context.Context, tx *store.Tx, info *NodeInfo) (*Inode, error) {
	if n, ok := db.byHandle[info.Handle]; ok && !n.removed {
		db.touchLocked(n)
		return n, nil
	}

	n := newInode(InodeID(info.Handle), kindFromIsDirectory(info.IsDirectory), nil)
	n.handle = info.Handle
	n.permissions = info.Permissions
	if !info.IsDirectory {
		ext, id, found, err := selectExtIDByHandle(ctx, tx, info.Handle)
		if err != nil {
			return nil, err
		}
		if !found {
			n.extension = Extension(info.Name)
		} else {
			n.extension = ext
			if fi, ok := db.cache.Info(ext, id); ok {
				n.fileInfo = fi
			} else if err := deleteByID(ctx, tx, id); err != nil {
				return nil, err
			}
		}
	}
	db.touchLocked(n)
	db.insertIntoIndexes(n)
	return n, nil
}
