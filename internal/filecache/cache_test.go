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

package filecache

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meganz/cloudsync/internal/clock"
	"github.com/meganz/cloudsync/internal/idb"
)

const testExt = idb.FileExtension("")

func TestCache_CreateAllocatesBackingFile(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewSimulatedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := New(dir, clk)

	info, err := c.Create(testExt, idb.InodeID(1))
	require.NoError(t, err)
	assert.FileExists(t, info.Path)
	assert.False(t, info.Dirty)
	assert.Equal(t, clk.Now(), info.MTime)
}

func TestCache_InfoReturnsRegisteredEntry(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)

	_, err := c.Create(testExt, idb.InodeID(7))
	require.NoError(t, err)

	info, ok := c.Info(testExt, idb.InodeID(7))
	require.True(t, ok)
	assert.NotEmpty(t, info.Path)

	_, ok = c.Info(testExt, idb.InodeID(99))
	assert.False(t, ok)
}

func TestCache_ModifiedSetsDirtyBit(t *testing.T) {
	dir := t.TempDir()
	clk := clock.NewSimulatedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := New(dir, clk)

	_, err := c.Create(testExt, idb.InodeID(1))
	require.NoError(t, err)

	clk.AdvanceTime(time.Minute)
	c.Modified(testExt, idb.InodeID(1))

	info, ok := c.Info(testExt, idb.InodeID(1))
	require.True(t, ok)
	assert.True(t, info.Dirty)
	assert.Equal(t, clk.Now(), info.MTime)
}

func TestCache_RemoveDeletesBackingFileAndDescriptor(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)

	info, err := c.Create(testExt, idb.InodeID(1))
	require.NoError(t, err)

	c.Remove(testExt, idb.InodeID(1))

	_, ok := c.Info(testExt, idb.InodeID(1))
	assert.False(t, ok)
	_, statErr := os.Stat(info.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCache_RemoveIsHarmlessOnUnknownEntry(t *testing.T) {
	c := New(t.TempDir(), nil)
	c.Remove(testExt, idb.InodeID(404))
}

func TestCache_EvictDropsCleanEntriesOnly(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, nil)

	clean, err := c.Create(testExt, idb.InodeID(1))
	require.NoError(t, err)
	dirty, err := c.Create(testExt, idb.InodeID(2))
	require.NoError(t, err)
	c.Modified(testExt, idb.InodeID(2))

	c.Evict()

	_, ok := c.Info(testExt, idb.InodeID(1))
	assert.False(t, ok, "clean entry should have been evicted")
	_, statErr := os.Stat(clean.Path)
	assert.True(t, os.IsNotExist(statErr))

	info, ok := c.Info(testExt, idb.InodeID(2))
	assert.True(t, ok, "dirty entry must survive eviction")
	assert.True(t, info.Dirty)
	_, statErr = os.Stat(dirty.Path)
	assert.NoError(t, statErr)
}
