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

import "context"

// CloudClient is the contracted port to the cloud transport (spec.md
// §6). Implemented by package cloud; the core never holds idb_lock or
// db_lock across a call to this interface.
type CloudClient interface {
	Get(ctx context.Context, handle NodeHandle) (*NodeInfo, error)
	Exists(ctx context.Context, handle NodeHandle) (bool, error)

	// Handle resolves (parent, name) to a child handle and, if one is
	// currently being bound, the bind handle naming that upload. ok is
	// false if no such child exists in the cloud.
	Handle(ctx context.Context, parent NodeHandle, name string) (handle NodeHandle, bind BindHandle, ok bool, err error)

	HasChildren(ctx context.Context, parent NodeHandle) (bool, error)

	// Each streams the children of parent to fn until fn returns false
	// or the listing is exhausted.
	Each(ctx context.Context, parent NodeHandle, fn func(*NodeInfo) bool) error

	MakeDirectory(ctx context.Context, parent NodeHandle, name string) (*NodeInfo, error)
	Move(ctx context.Context, handle NodeHandle, newParent NodeHandle, newName string) error
	Remove(ctx context.Context, handle NodeHandle) error
	Replace(ctx context.Context, source, target NodeHandle) error
	ParentHandle(ctx context.Context, handle NodeHandle) (NodeHandle, error)
}

// FileCache is the contracted port to the local content cache (spec.md
// §4.3). Implemented by package filecache.
type FileCache interface {
	Create(ext FileExtension, id InodeID) (*FileInfo, error)
	Info(ext FileExtension, id InodeID) (*FileInfo, bool)
	Remove(ext FileExtension, id InodeID)

	// Modified schedules id's cached content for eventual upload.
	Modified(ext FileExtension, id InodeID)

	// Evict drops every clean (non-dirty) cache entry; dirty entries are
	// kept. Cache entries hold no InodeRef. Clear() calls this on every
	// iteration of its quiescence loop (spec.md §4.1).
	Evict()
}

// Mount is one active user-facing mount (spec.md §4.3).
type Mount interface {
	InvalidateEntry(name string, parentID InodeID, oldID InodeID)
	InvalidateAttributes(id InodeID)
	InvalidatePin(id InodeID)
	Disable(handle NodeHandle)
}

// MountRegistry is the set of active mounts (spec.md §4.3).
type MountRegistry interface {
	// Each invokes fn for every active mount. fn must not mutate the
	// registry itself.
	Each(fn func(Mount))
}
