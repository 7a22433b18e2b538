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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meganz/cloudsync/internal/clock"
	"github.com/meganz/cloudsync/internal/store"
)

type testHarness struct {
	db    *DB
	cloud *fakeCloud
	cache *fakeCache
	mount *fakeMount
	clk   *clock.SimulatedClock
	store *store.Store
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, store.Migrate(context.Background(), st))

	cloud := newFakeCloud()
	cache := newFakeCache()
	mnt := newFakeMount()
	clk := clock.NewSimulatedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	registry := &singleMountRegistry{m: mnt}
	db := New(Deps{Store: st, Cloud: cloud, Cache: cache, Mounts: registry, Clock: clk})

	return &testHarness{db: db, cloud: cloud, cache: cache, mount: mnt, clk: clk, store: st}
}

// singleMountRegistry adapts a single fakeMount into MountRegistry.
type singleMountRegistry struct{ m *fakeMount }

func (r *singleMountRegistry) Each(fn func(Mount)) { fn(r.m) }

func TestMakeFile_CreatesLocalOnlyInode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ref, err := h.db.MakeFile(ctx, UndefinedHandle, "hello.txt")
	require.NoError(t, err)
	defer ref.Release()

	n := ref.Inode()
	assert.False(t, n.Handle().Defined())
	assert.True(t, n.Modified())
	assert.True(t, n.ID().IsSynthetic())
	assert.Equal(t, FileExtension("txt"), n.extension)

	modified, err := h.db.IsModified(ctx, n.ID())
	require.NoError(t, err)
	assert.True(t, modified)
}

func TestMakeFile_DistinctSyntheticIDs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ref1, err := h.db.MakeFile(ctx, UndefinedHandle, "a.txt")
	require.NoError(t, err)
	defer ref1.Release()
	ref2, err := h.db.MakeFile(ctx, UndefinedHandle, "b.txt")
	require.NoError(t, err)
	defer ref2.Release()

	assert.NotEqual(t, ref1.Inode().ID(), ref2.Inode().ID())
}

func TestMakeDirectory_CreatesCloudResidentInode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ref, err := h.db.MakeDirectory(ctx, UndefinedHandle, "docs")
	require.NoError(t, err)
	defer ref.Release()

	n := ref.Inode()
	assert.True(t, n.IsDir())
	assert.True(t, n.Handle().Defined())
}

func TestGetByID_UnknownReturnsNilNoError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ref, err := h.db.GetByID(ctx, InodeID(12345))
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestGetByHandle_RejectsUndefinedHandle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.db.GetByHandle(ctx, UndefinedHandle, false)
	assert.Error(t, err)
}

func TestGetByHandle_FetchesFromCloudWhenUncached(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	dirHandle := h.cloud.put(NodeInfo{ParentHandle: UndefinedHandle, Name: "docs", IsDirectory: true})
	ref, err := h.db.GetByHandle(ctx, dirHandle, false)
	require.NoError(t, err)
	require.NotNil(t, ref)
	defer ref.Release()
	assert.True(t, ref.Inode().IsDir())
}

func TestGetByHandle_InMemoryOnlySkipsColdLookup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	dirHandle := h.cloud.put(NodeInfo{ParentHandle: UndefinedHandle, Name: "docs", IsDirectory: true})
	ref, err := h.db.GetByHandle(ctx, dirHandle, true)
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestGetByHandle_RehydratesColdFileRow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ltx, err := h.db.beginLocked(ctx)
	require.NoError(t, err)
	require.NoError(t, insert(ctx, ltx.tx, row{
		ID:        9_000_000_000_001,
		Extension: "txt",
		Handle:    nullHandle(NodeHandle(777)),
	}))
	require.NoError(t, ltx.commit())

	ref, err := h.db.GetByHandle(ctx, NodeHandle(777), false)
	require.NoError(t, err)
	require.NotNil(t, ref)
	defer ref.Release()
	assert.Equal(t, InodeID(9_000_000_000_001), ref.Inode().ID())
	assert.False(t, ref.Inode().IsDir())
}

func TestChild_RejectsEmptyName(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.db.Child(ctx, UndefinedHandle, "")
	assert.Error(t, err)
}

func TestChild_CloudWinsOverLocalOnlySlot(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	localRef, err := h.db.MakeFile(ctx, UndefinedHandle, "race.txt")
	require.NoError(t, err)
	localID := localRef.Inode().ID()
	localRef.Release()

	cloudHandle := h.cloud.put(NodeInfo{ParentHandle: UndefinedHandle, Name: "race.txt"})

	ref, err := h.db.Child(ctx, UndefinedHandle, "race.txt")
	require.NoError(t, err)
	require.NotNil(t, ref)
	defer ref.Release()

	assert.Equal(t, InodeID(cloudHandle), ref.Inode().ID())
	assert.NotEqual(t, localID, ref.Inode().ID())
}

func TestChild_NoSuchChildReturnsNilNoError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ref, err := h.db.Child(ctx, UndefinedHandle, "nope.txt")
	require.NoError(t, err)
	assert.Nil(t, ref)
}
