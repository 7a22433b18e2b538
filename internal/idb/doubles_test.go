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
	"errors"
	"sync"

	"github.com/meganz/cloudsync/internal/cserr"
)

// fakeCloud is a minimal in-memory stand-in for the Cloud Client port,
// enough to drive HasChild's cloud-wins tie-break and the Event Observer
// without a real bucket.
type fakeCloud struct {
	mu     sync.Mutex
	nextID uint64
	byH    map[NodeHandle]*NodeInfo

	getErr    error
	moveErr   error
	removeErr error
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{byH: make(map[NodeHandle]*NodeInfo), nextID: 1}
}

func (c *fakeCloud) clone(info *NodeInfo) *NodeInfo {
	out := *info
	return &out
}

// put registers an object directly, bypassing MakeDirectory, for seeding
// a scenario's initial cloud state.
func (c *fakeCloud) put(info NodeInfo) NodeHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !info.Handle.Defined() {
		info.Handle = NodeHandle(c.nextID)
		c.nextID++
	}
	stored := info
	c.byH[stored.Handle] = &stored
	return stored.Handle
}

func (c *fakeCloud) Get(ctx context.Context, handle NodeHandle) (*NodeInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	n, ok := c.byH[handle]
	if !ok {
		return nil, nil
	}
	return c.clone(n), nil
}

func (c *fakeCloud) Exists(ctx context.Context, handle NodeHandle) (bool, error) {
	info, err := c.Get(ctx, handle)
	return info != nil, err
}

func (c *fakeCloud) Handle(ctx context.Context, parent NodeHandle, name string) (NodeHandle, BindHandle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.byH {
		if n.ParentHandle == parent && n.Name == name {
			return n.Handle, n.BindHandle, true, nil
		}
	}
	return 0, 0, false, nil
}

func (c *fakeCloud) HasChildren(ctx context.Context, parent NodeHandle) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.byH {
		if n.ParentHandle == parent {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCloud) Each(ctx context.Context, parent NodeHandle, fn func(*NodeInfo) bool) error {
	c.mu.Lock()
	var matches []*NodeInfo
	for _, n := range c.byH {
		if n.ParentHandle == parent {
			matches = append(matches, c.clone(n))
		}
	}
	c.mu.Unlock()
	for _, m := range matches {
		if !fn(m) {
			return nil
		}
	}
	return nil
}

func (c *fakeCloud) MakeDirectory(ctx context.Context, parent NodeHandle, name string) (*NodeInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.byH {
		if n.ParentHandle == parent && n.Name == name {
			return c.clone(n), nil
		}
	}
	h := NodeHandle(c.nextID)
	c.nextID++
	info := &NodeInfo{Handle: h, ParentHandle: parent, Name: name, IsDirectory: true}
	c.byH[h] = info
	return c.clone(info), nil
}

func (c *fakeCloud) Move(ctx context.Context, handle NodeHandle, newParent NodeHandle, newName string) error {
	if c.moveErr != nil {
		return c.moveErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.byH[handle]
	if !ok {
		return cserr.New("fakeCloud.move", cserr.NotFound, errors.New("no such object"))
	}
	n.ParentHandle = newParent
	n.Name = newName
	return nil
}

func (c *fakeCloud) Remove(ctx context.Context, handle NodeHandle) error {
	if c.removeErr != nil {
		return c.removeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byH, handle)
	return nil
}

func (c *fakeCloud) Replace(ctx context.Context, source, target NodeHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sn, ok := c.byH[source]
	if !ok {
		return cserr.New("fakeCloud.replace", cserr.NotFound, errors.New("no such source"))
	}
	tn, ok := c.byH[target]
	if !ok {
		return cserr.New("fakeCloud.replace", cserr.NotFound, errors.New("no such target"))
	}
	sn.ParentHandle = tn.ParentHandle
	sn.Name = tn.Name
	delete(c.byH, target)
	return nil
}

func (c *fakeCloud) ParentHandle(ctx context.Context, handle NodeHandle) (NodeHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.byH[handle]
	if !ok {
		return UndefinedHandle, cserr.New("fakeCloud.parentHandle", cserr.NotFound, errors.New("no such object"))
	}
	return n.ParentHandle, nil
}

// fakeCache is a minimal in-memory stand-in for the File Cache port.
type fakeCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*FileInfo
}

type cacheKey struct {
	ext FileExtension
	id  InodeID
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[cacheKey]*FileInfo)}
}

func (c *fakeCache) Create(ext FileExtension, id InodeID) (*FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := &FileInfo{Path: "fake://" + string(ext)}
	c.entries[cacheKey{ext, id}] = info
	out := *info
	return &out, nil
}

func (c *fakeCache) Info(ext FileExtension, id InodeID) (*FileInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.entries[cacheKey{ext, id}]
	if !ok {
		return nil, false
	}
	out := *info
	return &out, true
}

func (c *fakeCache) Remove(ext FileExtension, id InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{ext, id})
}

func (c *fakeCache) Modified(ext FileExtension, id InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok := c.entries[cacheKey{ext, id}]; ok {
		info.Dirty = true
	}
}

func (c *fakeCache) Evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, info := range c.entries {
		if !info.Dirty {
			delete(c.entries, k)
		}
	}
}

// fakeMount records every invalidation it receives; it implements both
// Mount and MountRegistry so tests can assert on dispatched calls without
// a real jacobsa/fuse notifier.
type fakeMount struct {
	mu          sync.Mutex
	invalidated []string
	disabled    []NodeHandle
}

func newFakeMount() *fakeMount { return &fakeMount{} }

func (m *fakeMount) InvalidateEntry(name string, parentID InodeID, oldID InodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, "entry:"+name)
}

func (m *fakeMount) InvalidateAttributes(id InodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, "attrs")
}

func (m *fakeMount) InvalidatePin(id InodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, "pin")
}

func (m *fakeMount) Disable(handle NodeHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = append(m.disabled, handle)
}

func (m *fakeMount) Each(fn func(Mount)) { fn(m) }

func (m *fakeMount) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.invalidated))
	copy(out, m.invalidated)
	return out
}
