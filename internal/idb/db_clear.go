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
	"time"

	"github.com/meganz/cloudsync/internal/metrics"
)

// clearPollInterval is the sleep between quiescence checks, matching
// spec.md §8 scenario 6's "500 ms sleeps".
const clearPollInterval = 500 * time.Millisecond

// Clear is the shutdown quiescence barrier from spec.md §4.1. Every
// inode with no outstanding InodeRef is purged outright, whether or not
// it was ever marked removed: at logout, an idle in-memory inode has no
// further reason to exist. It loops with a bounded sleep, evicting the
// File Cache's clean entries on each pass, until by_id empties; it
// never times out.
func (db *DB) Clear(ctx context.Context) {
	start := db.clk.Now()
	defer func() { metrics.RecordOp(ctx, "clear", start) }()

	for {
		db.cache.Evict()

		db.idbLock.Lock()
		for id, n := range db.byID {
			if n.refs.count == 0 {
				delete(db.byID, id)
				if n.handle.Defined() && db.byHandle[n.handle] == n {
					delete(db.byHandle, n.handle)
				}
				if n.hasNameKey {
					if db.byParentAndName[parentNameKey{n.parentHandle, n.name}] == n {
						delete(db.byParentAndName, parentNameKey{n.parentHandle, n.name})
					}
				}
				if n.bindHandle.Defined() && db.byBindHandle[n.bindHandle] == n {
					delete(db.byBindHandle, n.bindHandle)
				}
			}
		}
		empty := len(db.byID) == 0
		if empty && (len(db.byHandle) != 0 || len(db.byParentAndName) != 0 || len(db.byBindHandle) != 0) {
			panic("idb: by_id empty but a secondary index is not")
		}
		db.idbLock.cv.Broadcast()
		db.idbLock.Unlock()
		if empty {
			return
		}

		<-db.clk.After(clearPollInterval)
	}
}
