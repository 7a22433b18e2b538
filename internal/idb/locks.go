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
	"sync"

	"github.com/meganz/cloudsync/internal/store"
)

// idbLock guards the four in-memory indexes and the inode state
// machine (spec.md §5). It is a plain mutex; idb_lock never nests with
// itself and is always acquired before db_lock is taken through
// beginLocked, fixing the lock order and making deadlock structurally
// impossible as long as callers go through this file.
type idbLock struct {
	mu sync.Mutex
	cv sync.Cond
}

func newIdbLock() *idbLock {
	l := &idbLock{}
	l.cv = *sync.NewCond(&l.mu)
	return l
}

func (l *idbLock) Lock()   { l.mu.Lock() }
func (l *idbLock) Unlock() { l.mu.Unlock() }

// lockedTx is the result of the deadlock-free multi-lock primitive: it
// holds both idb_lock and db_lock, plus an open store transaction, for
// the life of one scoped operation (spec.md §4.2's Event Observer, and
// any IDB operation that must mutate both the indexes and the store
// atomically).
type lockedTx struct {
	db *DB
	tx *store.Tx
}

// beginLocked acquires idb_lock then db_lock (in that fixed order) and
// opens a transaction. Callers must call commit() or rollback() exactly
// once; idb_lock and db_lock are released in the inverse acquisition
// order, matching spec.md §4.2's constructor/destructor discipline.
func (db *DB) beginLocked(ctx context.Context) (*lockedTx, error) {
	db.idbLock.Lock()
	tx, err := db.store.Begin(ctx)
	if err != nil {
		db.idbLock.Unlock()
		return nil, err
	}
	return &lockedTx{db: db, tx: tx}, nil
}

func (l *lockedTx) commit() error {
	defer l.db.idbLock.Unlock()
	return l.tx.Commit()
}

func (l *lockedTx) rollback() error {
	defer l.db.idbLock.Unlock()
	return l.tx.Rollback()
}
