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

package events

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/meganz/cloudsync/internal/logger"
)

// Applier is satisfied by *idb.DB; kept as an interface so this package
// never imports idb (idb's events file is the one that knows the lock
// and transaction discipline).
type Applier interface {
	ApplyBatch(ctx context.Context, batch []NodeEvent) error
}

// Dispatcher pumps batches off a NodeEventQueue into an Applier, one
// batch at a time: spec.md §4.2's "the transaction commits exactly once
// per batch" requires that no two batches are ever applied
// concurrently. A weighted semaphore of 1 enforces that without
// reintroducing a second mutex alongside idb_lock/db_lock.
type Dispatcher struct {
	queue *NodeEventQueue
	apply Applier
	sem   *semaphore.Weighted
}

// NewDispatcher builds a Dispatcher draining queue into apply.
func NewDispatcher(queue *NodeEventQueue, apply Applier) *Dispatcher {
	return &Dispatcher{queue: queue, apply: apply, sem: semaphore.NewWeighted(1)}
}

// Run drains batches until the queue is closed, or until ctx is done;
// ctx is checked only between batches, so a Run blocked waiting for the
// next batch returns only once the queue yields one or is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		batch, ok := d.queue.DrainBatch()
		if !ok {
			return
		}
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}
		if err := d.apply.ApplyBatch(ctx, batch); err != nil {
			logger.Errorf("events.dispatch: batch of %d events: %v", len(batch), err)
		}
		d.sem.Release(1)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
