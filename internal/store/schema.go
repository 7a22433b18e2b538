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

package store

import "context"

// schema is the canonical persistent schema from spec.md §6.
const schema = `
CREATE TABLE IF NOT EXISTS inodes (
	id            INTEGER PRIMARY KEY,
	bind_handle   BLOB,
	extension     TEXT NOT NULL DEFAULT '',
	handle        INTEGER,
	modified      INTEGER NOT NULL DEFAULT 0,
	name          TEXT,
	parent_handle INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS inodes_handle_idx ON inodes(handle) WHERE handle IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS inodes_bind_handle_idx ON inodes(bind_handle) WHERE bind_handle IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS inodes_parent_name_idx ON inodes(parent_handle, name) WHERE handle IS NULL AND parent_handle IS NOT NULL;

CREATE TABLE IF NOT EXISTS inode_id (
	next INTEGER NOT NULL
);
`

// Migrate creates the schema if absent and seeds the inode_id counter.
// It also clears every bind_handle column: spec.md §3 requires that
// pending uploads never survive a restart.
func Migrate(ctx context.Context, s *Store) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM inode_id`); err != nil {
		return err
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO inode_id(next) VALUES (1)`); err != nil {
			return err
		}
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE inodes SET bind_handle = NULL WHERE bind_handle IS NOT NULL`); err != nil {
		return err
	}
	return nil
}

// RecoverCounter guards against a torn write to inode_id.next by raising
// it to at least one past the highest synthetic id on disk. Supplemental
// behavior recovered from original_source/ (see SPEC_FULL.md).
func RecoverCounter(ctx context.Context, s *Store) error {
	var maxID int64
	if err := s.db.GetContext(ctx, &maxID, `SELECT COALESCE(MAX(id), 0) FROM inodes WHERE handle IS NULL`); err != nil {
		return err
	}
	if maxID == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `UPDATE inode_id SET next = ?1 WHERE next <= ?1`, maxID+1)
	return err
}
