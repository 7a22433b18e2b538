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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meganz/cloudsync/internal/idb"
)

type fakeApplier struct {
	mu       sync.Mutex
	batches  [][]NodeEvent
	attempts int
	failNext bool
}

func (f *fakeApplier) ApplyBatch(ctx context.Context, batch []NodeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failNext {
		f.failNext = false
		return errors.New("boom")
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeApplier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeApplier) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func TestDispatcher_RunAppliesEachBatch(t *testing.T) {
	queue := NewNodeEventQueue()
	applier := &fakeApplier{}
	d := NewDispatcher(queue, applier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	queue.Push(NodeEvent{Type: idb.EventAdded, Handle: idb.NodeHandle(1)})

	require.Eventually(t, func() bool { return applier.count() == 1 }, time.Second, time.Millisecond)
}

func TestDispatcher_RunStopsOnQueueClose(t *testing.T) {
	queue := NewNodeEventQueue()
	applier := &fakeApplier{}
	d := NewDispatcher(queue, applier)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	queue.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the queue was closed")
	}
}

func TestDispatcher_RunSurvivesApplyError(t *testing.T) {
	queue := NewNodeEventQueue()
	applier := &fakeApplier{failNext: true}
	d := NewDispatcher(queue, applier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	queue.Push(NodeEvent{Type: idb.EventAdded})
	require.Eventually(t, func() bool { return applier.attemptCount() == 1 }, time.Second, time.Millisecond)

	queue.Push(NodeEvent{Type: idb.EventModified})

	require.Eventually(t, func() bool { return applier.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, idb.EventModified, applier.batches[0][0].Type)
}
