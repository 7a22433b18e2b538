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

// repository.go holds the prepared, named-parameter statements spec.md
// §4.1 enumerates for the `inodes` table, built on top of the generic
// Relational Store port (package store).
package idb

import (
	"context"
	"database/sql"

	"github.com/meganz/cloudsync/internal/store"
)

// row is the on-disk shape of one inodes row.
type row struct {
	ID           int64          `db:"id"`
	BindHandle   sql.NullInt64  `db:"bind_handle"`
	Extension    string         `db:"extension"`
	Handle       sql.NullInt64  `db:"handle"`
	Modified     bool           `db:"modified"`
	Name         sql.NullString `db:"name"`
	ParentHandle sql.NullInt64  `db:"parent_handle"`
}

func nullHandle(h NodeHandle) sql.NullInt64 {
	if !h.Defined() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(h), Valid: true}
}

func nullBind(b BindHandle) sql.NullInt64 {
	if !b.Defined() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(b), Valid: true}
}

func nullName(name string, has bool) sql.NullString {
	if !has {
		return sql.NullString{}
	}
	return sql.NullString{String: name, Valid: true}
}

// insert adds a new row. Used by makeFile for local-only inodes and by
// GetByHandle for file inodes first fetched from the Cloud Client.
func insert(ctx context.Context, tx *store.Tx, r row) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO inodes (id, bind_handle, extension, handle, modified, name, parent_handle)
		VALUES (:id, :bind_handle, :extension, :handle, :modified, :name, :parent_handle)
	`, r)
	return err
}

func deleteByID(ctx context.Context, tx *store.Tx, id InodeID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM inodes WHERE id = ?`, int64(id))
	return err
}

// updateNameParent implements the local-only move() path.
func updateNameParent(ctx context.Context, tx *store.Tx, id InodeID, name string, parent NodeHandle) error {
	_, err := tx.ExecContext(ctx, `UPDATE inodes SET name = ?, parent_handle = ? WHERE id = ?`,
		name, int64(parent), int64(id))
	return err
}

// clearNameParent evicts a local-only row from the (parent, name) index
// without deleting it, per hasChild()'s tie-break rule.
func clearNameParent(ctx context.Context, tx *store.Tx, id InodeID) error {
	_, err := tx.ExecContext(ctx, `UPDATE inodes SET name = NULL, parent_handle = NULL WHERE id = ?`, int64(id))
	return err
}

func updateBindHandle(ctx context.Context, tx *store.Tx, id InodeID, bind BindHandle) error {
	_, err := tx.ExecContext(ctx, `UPDATE inodes SET bind_handle = ? WHERE id = ?`, nullBind(bind), int64(id))
	return err
}

// bindToCloudResident implements hasChild()'s "update that row to
// cloud-resident" step: clear name/parent/bind_handle, set handle.
func bindToCloudResident(ctx context.Context, tx *store.Tx, id InodeID, handle NodeHandle) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE inodes SET handle = ?, name = NULL, parent_handle = NULL, bind_handle = NULL WHERE id = ?
	`, int64(handle), int64(id))
	return err
}

func updateModified(ctx context.Context, tx *store.Tx, id InodeID, modified bool) error {
	_, err := tx.ExecContext(ctx, `UPDATE inodes SET modified = ? WHERE id = ?`, modified, int64(id))
	return err
}

func selectByID(ctx context.Context, tx *store.Tx, id InodeID) (*row, error) {
	var r row
	err := tx.GetContext(ctx, &r, `SELECT * FROM inodes WHERE id = ?`, int64(id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func selectByHandle(ctx context.Context, tx *store.Tx, handle NodeHandle) (*row, error) {
	var r row
	err := tx.GetContext(ctx, &r, `SELECT * FROM inodes WHERE handle = ?`, int64(handle))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func selectByNameParent(ctx context.Context, tx *store.Tx, name string, parent NodeHandle) (*row, error) {
	var r row
	err := tx.GetContext(ctx, &r, `
		SELECT * FROM inodes WHERE handle IS NULL AND name = ? AND parent_handle = ?
	`, name, int64(parent))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// selectByParent returns every local-only row at parent, used by
// children() through selectAllChildrenByParent.
func selectByParent(ctx context.Context, tx *store.Tx, parent NodeHandle) ([]row, error) {
	var rows []row
	err := tx.SelectContext(ctx, &rows, `
		SELECT * FROM inodes WHERE handle IS NULL AND parent_handle = ?
	`, int64(parent))
	return rows, err
}

// selectAllChildrenByParent is children()'s enumeration query: every
// local-only row addressed to parent, irrespective of modified state.
func selectAllChildrenByParent(ctx context.Context, tx *store.Tx, parent NodeHandle) ([]row, error) {
	return selectByParent(ctx, tx, parent)
}

func selectWhereModified(ctx context.Context, tx *store.Tx) ([]row, error) {
	var rows []row
	err := tx.SelectContext(ctx, &rows, `SELECT * FROM inodes WHERE modified = 1`)
	return rows, err
}

func selectExtIDByHandle(ctx context.Context, tx *store.Tx, handle NodeHandle) (FileExtension, InodeID, bool, error) {
	r, err := selectByHandle(ctx, tx, handle)
	if err != nil || r == nil {
		return "", 0, false, err
	}
	return FileExtension(r.Extension), InodeID(r.ID), true, nil
}

// selectIDByBindOrHandle resolves hasChild()'s "id-by-bind-or-handle"
// lookup: prefer the row pending a bind completion, else the row
// already keyed by handle.
func selectIDByBindOrHandle(ctx context.Context, tx *store.Tx, bind BindHandle, handle NodeHandle) (InodeID, bool, error) {
	if bind.Defined() {
		var r row
		err := tx.GetContext(ctx, &r, `SELECT * FROM inodes WHERE bind_handle = ?`, int64(bind))
		if err == nil {
			return InodeID(r.ID), true, nil
		}
		if err != sql.ErrNoRows {
			return 0, false, err
		}
	}
	r, err := selectByHandle(ctx, tx, handle)
	if err != nil || r == nil {
		return 0, false, err
	}
	return InodeID(r.ID), true, nil
}

// nextSyntheticID performs I6's atomic read-and-increment of the
// persisted counter inside tx.
func nextSyntheticID(ctx context.Context, tx *store.Tx) (InodeID, error) {
	var next int64
	if err := tx.GetContext(ctx, &next, `SELECT next FROM inode_id`); err != nil {
		return 0, err
	}
	if InodeID(next) < SyntheticIDFloor {
		next = int64(SyntheticIDFloor)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE inode_id SET next = ?`, next+1); err != nil {
		return 0, err
	}
	return InodeID(next), nil
}
