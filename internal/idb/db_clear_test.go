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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClear_PurgesUnreferencedInodesImmediately(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ref, err := h.db.MakeFile(ctx, UndefinedHandle, "idle.txt")
	require.NoError(t, err)
	id := ref.Inode().ID()
	ref.Release()

	done := make(chan struct{})
	go func() {
		h.db.Clear(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Clear did not return once the only inode had zero references")
	}

	h.db.idbLock.Lock()
	_, stillPresent := h.db.byID[id]
	h.db.idbLock.Unlock()
	assert.False(t, stillPresent)
}

func TestClear_WaitsForOutstandingReferenceThenCompletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ref, err := h.db.MakeFile(ctx, UndefinedHandle, "held.txt")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		h.db.Clear(ctx)
		close(done)
	}()

	// Clear must keep looping on its bounded sleep while the reference is
	// outstanding: ticking the simulated clock a few times must not let it
	// return early.
	for i := 0; i < 3; i++ {
		time.Sleep(2 * time.Millisecond)
		h.clk.AdvanceTime(clearPollInterval)
	}
	select {
	case <-done:
		t.Fatal("Clear returned despite an outstanding InodeRef")
	default:
	}

	ref.Release()

	// Clear's pending After() call was registered relative to whatever
	// time it last observed; ticking the clock by one interval on every
	// pass is guaranteed to reach (and fire) that target within a couple
	// of rounds, regardless of exact goroutine scheduling.
	for i := 0; i < 50; i++ {
		select {
		case <-done:
			return
		default:
		}
		time.Sleep(2 * time.Millisecond)
		h.clk.AdvanceTime(clearPollInterval)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Clear did not complete after the reference was released")
	}
}

func TestClear_EmptyDBReturnsImmediately(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.db.Clear(ctx)
	}()
	wg.Wait()
}
