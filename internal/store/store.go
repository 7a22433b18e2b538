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

// Package store implements the Relational Store port from spec.md §4.3
// and §6: a typed row store with transactions and prepared, named-
// parameter statements. It is a thin layer over database/sql via
// jmoiron/sqlx, backed by modernc.org/sqlite (pure Go, no cgo). Every
// example repo in the retrieval pack manages its own metadata with ad
// hoc structures (boltdb buckets, in-process maps); none embeds a SQL
// engine, so this pairing is named here rather than grounded on a
// specific example — see DESIGN.md.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store is single-writer: db_lock in spec.md §5 is this mutex, held for
// the life of one transaction.
type Store struct {
	db     *sqlx.DB
	dbLock sync.Mutex
}

// Open opens (and creates, if necessary) the SQLite database at path. An
// empty path opens a private in-memory database, used by tests.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	// SQLite only supports one writer at a time; db_lock below enforces
	// that at the application level so callers never see SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Tx is a scoped transaction holding db_lock for its lifetime. The zero
// value is not usable; obtain one from Store.Begin.
type Tx struct {
	*sqlx.Tx
	store     *Store
	committed bool
}

// Begin acquires db_lock and opens a transaction. The caller must call
// Commit or Rollback exactly once; Rollback is safe to call after Commit
// (it becomes a no-op) so a deferred Rollback can be used as a guard
// against early returns, matching the Event Observer's scoped-guard
// design in spec.md §9.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	s.dbLock.Lock()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.dbLock.Unlock()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{Tx: tx, store: s}, nil
}

func (t *Tx) Commit() error {
	if t.committed {
		return nil
	}
	defer t.store.dbLock.Unlock()
	t.committed = true
	return t.Tx.Commit()
}

// Rollback aborts the transaction if it was not already committed. Safe
// to call multiple times and safe to call after a successful Commit.
func (t *Tx) Rollback() error {
	if t.committed {
		return nil
	}
	defer t.store.dbLock.Unlock()
	t.committed = true
	return t.Tx.Rollback()
}
