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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildren_MergesCloudAndLocalOnlyEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	localRef, err := h.db.MakeFile(ctx, UndefinedHandle, "draft.txt")
	require.NoError(t, err)
	localRef.Release()

	h.cloud.put(NodeInfo{ParentHandle: UndefinedHandle, Name: "published.txt"})

	refs, err := h.db.Children(ctx, UndefinedHandle)
	require.NoError(t, err)
	defer func() {
		for _, r := range refs {
			r.Release()
		}
	}()

	assert.Len(t, refs, 2)
}

func TestChildren_ColdLocalFileSurvivesViaCacheEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ref, err := h.db.MakeFile(ctx, UndefinedHandle, "cold.txt")
	require.NoError(t, err)
	id := ref.Inode().ID()
	ref.Release()

	// Drop it from every in-memory index, simulating a process restart:
	// only the store row and the cache entry remain.
	h.db.idbLock.Lock()
	delete(h.db.byID, id)
	delete(h.db.byParentAndName, parentNameKey{UndefinedHandle, "cold.txt"})
	h.db.idbLock.Unlock()

	refs, err := h.db.Children(ctx, UndefinedHandle)
	require.NoError(t, err)
	defer func() {
		for _, r := range refs {
			r.Release()
		}
	}()

	require.Len(t, refs, 1)
	assert.Equal(t, id, refs[0].Inode().ID())
}

func TestChildren_CloudDuplicateNameIsInvisible(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.cloud.put(NodeInfo{Handle: NodeHandle(501), ParentHandle: UndefinedHandle, Name: "dup.txt"})
	h.cloud.put(NodeInfo{Handle: NodeHandle(502), ParentHandle: UndefinedHandle, Name: "dup.txt"})

	refs, err := h.db.Children(ctx, UndefinedHandle)
	require.NoError(t, err)
	for _, r := range refs {
		r.Release()
	}
	assert.Empty(t, refs)
}

func TestChildren_LocalRowLosesNameSlotWhenCloudEntrySupersedes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	localRef, err := h.db.MakeFile(ctx, UndefinedHandle, "shadowed.txt")
	require.NoError(t, err)
	localID := localRef.Inode().ID()
	localRef.Release()

	h.cloud.put(NodeInfo{ParentHandle: UndefinedHandle, Name: "shadowed.txt"})

	refs, err := h.db.Children(ctx, UndefinedHandle)
	require.NoError(t, err)
	for _, r := range refs {
		r.Release()
	}

	// The store row backing the old (parent, name) slot is gone, so a
	// fresh Child lookup resolves to the cloud entry, not the orphan.
	childRef, err := h.db.Child(ctx, UndefinedHandle, "shadowed.txt")
	require.NoError(t, err)
	require.NotNil(t, childRef)
	defer childRef.Release()
	assert.NotEqual(t, localID, childRef.Inode().ID())
}
