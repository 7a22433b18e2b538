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

import "time"

// Kind distinguishes the two inode variants (spec.md §3, §9: "represent
// Inode as a sum type").
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

// Inode is the core's long-lived representation of a file or directory.
// All fields are GUARDED_BY the owning DB's idb_lock; there is no
// per-inode lock, matching spec.md §5 ("mutations that affect a single
// Inode are serialized by idb_lock").
type Inode struct {
	id   InodeID
	kind Kind

	handle       NodeHandle // 0 == null (local-only)
	parentHandle NodeHandle // 0 == null (cloud-resident inodes keep this unset)
	name         string     // "" == null (cloud-resident inodes keep this unset)
	hasNameKey   bool       // true iff (parentHandle, name) is this inode's live slot

	bindHandle BindHandle // 0 == none

	modified bool
	removed  bool

	extension FileExtension // files only
	fileInfo  *FileInfo     // files only, present while cached

	permissions uint32 // display only, see SPEC_FULL.md Open Question note
	lastAccess  time.Time

	refs refCount
}

// newInode constructs an Inode with an initial lookup count of zero; the
// caller (a DB method holding idb_lock) is responsible for inserting
// it into the relevant indexes before releasing the lock.
func newInode(id InodeID, kind Kind, onDestroy func()) *Inode {
	n := &Inode{id: id, kind: kind}
	n.refs.destroy = onDestroy
	return n
}

func (n *Inode) ID() InodeID        { return n.id }
func (n *Inode) Kind() Kind         { return n.kind }
func (n *Inode) IsDir() bool        { return n.kind == KindDirectory }
func (n *Inode) Handle() NodeHandle { return n.handle }
func (n *Inode) IsRemoved() bool    { return n.removed }
func (n *Inode) Modified() bool     { return n.modified }
func (n *Inode) FileInfo() *FileInfo {
	if n.fileInfo == nil {
		return nil
	}
	info := *n.fileInfo
	return &info
}
func (n *Inode) LastAccess() time.Time { return n.lastAccess }

// refCount is a lookup-count style helper: destroy is invoked each time
// the count returns to zero, with external
// synchronization required. Adapted directly from the teacher's
// fs/inode/lookup_count.go.
type refCount struct {
	count   uint64
	destroy func()
}

func (r *refCount) inc() { r.count++ }

// dec decrements by n and returns true if this call brought the count to
// zero, in which case destroy has already been invoked.
func (r *refCount) dec(n uint64) (destroyed bool) {
	if n > r.count {
		panic("idb: released more references than were held")
	}
	r.count -= n
	if r.count == 0 && r.destroy != nil {
		r.destroy()
		destroyed = true
	}
	return
}

// InodeRef is a caller-visible handle on an Inode. The arena (DB.byID)
// owns every Inode; an InodeRef only extends its visibility for as long
// as the caller holds it. Release must be called exactly once.
type InodeRef struct {
	db     *DB
	inode  *Inode
	closed bool
}

// Inode exposes the referenced inode's read-only view. Callers must not
// retain the returned pointer past Release.
func (r *InodeRef) Inode() *Inode { return r.inode }

// Release drops this reference. Once every outstanding InodeRef on a
// removed inode has been released, the inode is purged from all indexes
// and waiters on idb_lock's condition variable are notified (spec.md
// §4.1, "Terminal: removed").
func (r *InodeRef) Release() {
	if r.closed {
		return
	}
	r.closed = true
	r.db.releaseRef(r.inode)
}
