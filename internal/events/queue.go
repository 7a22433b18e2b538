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

// Package events holds the NodeEventQueue that the Cloud Client's change
// stream feeds and that Event Observer batches drain (spec.md §4.2).
package events

import (
	"sync"

	"github.com/meganz/cloudsync/internal/idb"
)

// NodeEvent is the unit the queue carries; re-exported from package idb
// so callers constructing events need not import idb directly.
type NodeEvent = idb.NodeEvent

// Queue is a generic FIFO, adapted from the teacher's common.Queue[T].
type Queue[T any] interface {
	IsEmpty() bool
	PeekStart() T
	Push(value T)
	Pop() T
	Len() int
}

type node[T any] struct {
	value T
	next  *node[T]
}

type linkedListQueue[T any] struct {
	start, end *node[T]
	size       int
}

// NewLinkedListQueue creates a new empty queue.
func NewLinkedListQueue[T any]() Queue[T] {
	return &linkedListQueue[T]{}
}

func (q *linkedListQueue[T]) IsEmpty() bool { return q.size == 0 }

func (q *linkedListQueue[T]) PeekStart() T {
	if q.size == 0 {
		panic("PeekStart called on an empty queue.")
	}
	return q.start.value
}

func (q *linkedListQueue[T]) Push(value T) {
	n := &node[T]{value: value}
	if q.size == 0 {
		q.start = n
		q.end = n
	} else {
		q.end.next = n
		q.end = n
	}
	q.size++
}

func (q *linkedListQueue[T]) Pop() T {
	if q.size == 0 {
		panic("Pop called on an empty queue.")
	}
	n := q.start
	if q.size == 1 {
		q.start = nil
		q.end = nil
	} else {
		q.start = q.start.next
	}
	q.size--
	return n.value
}

func (q *linkedListQueue[T]) Len() int { return q.size }

// NodeEventQueue is the thread-safe boundary between the Cloud Client's
// change-notification stream (producer, arbitrary goroutines) and the
// batch dispatcher that feeds Event Observer (single consumer). A batch
// is "a non-empty sequence applied atomically" (spec.md §6): DrainBatch
// blocks for at least one event, then drains whatever else has already
// arrived without waiting further, so a quiet stream yields batches of
// one and a bursty one yields larger batches.
type NodeEventQueue struct {
	mu     sync.Mutex
	cond   sync.Cond
	q      Queue[NodeEvent]
	closed bool
}

// NewNodeEventQueue constructs an empty queue.
func NewNodeEventQueue() *NodeEventQueue {
	eq := &NodeEventQueue{q: NewLinkedListQueue[NodeEvent]()}
	eq.cond = *sync.NewCond(&eq.mu)
	return eq
}

// Push enqueues one event and wakes any blocked DrainBatch call.
func (eq *NodeEventQueue) Push(e NodeEvent) {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	if eq.closed {
		return
	}
	eq.q.Push(e)
	eq.cond.Signal()
}

// Close unblocks any pending DrainBatch with (nil, false); used at
// shutdown so the dispatcher loop can exit.
func (eq *NodeEventQueue) Close() {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	eq.closed = true
	eq.cond.Broadcast()
}

// DrainBatch blocks until at least one event is queued (or the queue is
// closed), then returns every event currently queued as one batch.
func (eq *NodeEventQueue) DrainBatch() ([]NodeEvent, bool) {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	for eq.q.IsEmpty() && !eq.closed {
		eq.cond.Wait()
	}
	if eq.q.IsEmpty() {
		return nil, false
	}
	batch := make([]NodeEvent, 0, eq.q.Len())
	for !eq.q.IsEmpty() {
		batch = append(batch, eq.q.Pop())
	}
	return batch, true
}
