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
	"database/sql"

	"github.com/meganz/cloudsync/internal/cserr"
	"github.com/meganz/cloudsync/internal/metrics"
)

// MakeDirectory asks the Cloud Client to create a remote directory and
// returns the (possibly pre-existing, if another thread raced us) inode
// for it. Directories are always cloud-resident; spec.md §4.1.
func (db *DB) MakeDirectory(ctx context.Context, parent NodeHandle, name string) (*InodeRef, error) {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "makeDirectory", start) }()

	info, err := db.cloud.MakeDirectory(ctx, parent, name)
	if err != nil {
		return nil, opErr(ctx, "makeDirectory", cserr.KindOf(err), err)
	}

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return nil, opErr(ctx, "makeDirectory", cserr.Internal, err)
	}
	n, err := db.instantiateCloudChildLocked(ctx, ltx.tx, info)
	if err != nil {
		ltx.rollback()
		return nil, opErr(ctx, "makeDirectory", cserr.Internal, err)
	}
	ref := db.ref(n)
	if err := ltx.commit(); err != nil {
		ref.Release()
		return nil, opErr(ctx, "makeDirectory", cserr.Internal, err)
	}
	return ref, nil
}

// MakeFile creates a local-only file: no cloud round trip. The new
// inode is queued for eventual upload via FileCache.Modified.
func (db *DB) MakeFile(ctx context.Context, parent NodeHandle, name string) (*InodeRef, error) {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "makeFile", start) }()

	ext := Extension(name)

	ltx, err := db.beginLocked(ctx)
	if err != nil {
		return nil, opErr(ctx, "makeFile", cserr.Internal, err)
	}
	committed := false
	defer func() {
		if !committed {
			ltx.rollback()
		}
	}()

	id, err := nextSyntheticID(ctx, ltx.tx)
	if err != nil {
		return nil, opErr(ctx, "makeFile", cserr.Internal, err)
	}

	if err := insert(ctx, ltx.tx, row{
		ID:           int64(id),
		Extension:    string(ext),
		Name:         nullName(name, true),
		ParentHandle: sql.NullInt64{Int64: int64(parent), Valid: true},
		Modified:     true,
	}); err != nil {
		return nil, opErr(ctx, "makeFile", cserr.Internal, err)
	}

	fi, err := db.cache.Create(ext, id)
	if err != nil {
		return nil, opErr(ctx, "makeFile", cserr.KindOf(err), err)
	}

	n := newInode(id, KindFile, nil)
	n.extension = ext
	n.modified = true
	n.fileInfo = fi
	db.touchLocked(n)
	db.insertIntoIndexes(n)
	db.setNameKeyLocked(n, parent, name)

	ref := db.ref(n)

	if err := ltx.commit(); err != nil {
		ref.Release()
		return nil, opErr(ctx, "makeFile", cserr.Internal, err)
	}
	committed = true

	// Notifications happen outside idb_lock (released by commit above).
	parentID := InodeID(parent)
	db.mounts.Each(func(m Mount) { m.InvalidateEntry(name, parentID, NoChild) })
	db.cache.Modified(ext, id)

	return ref, nil
}
