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

// Package fsadapter is the local FUSE shim spec.md §1 names as an
// out-of-scope, separately-tested collaborator ("contracted port"). It
// translates jacobsa/fuse ops into calls against the IDB, the way the
// teacher's fs.fileSystem translates them into calls against its own
// inode package (fs/fs.go); unlike the teacher, every piece of identity
// and directory-listing logic here is delegated straight to package idb
// rather than reimplemented.
package fsadapter

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/meganz/cloudsync/internal/cserr"
	"github.com/meganz/cloudsync/internal/idb"
)

// Config bundles the fixed parameters of one mount.
type Config struct {
	// RootHandle is the cloud handle of the directory exported at the
	// mount point; it is reported to the kernel as fuseops.RootInodeID.
	RootHandle idb.NodeHandle

	Uid, Gid          uint32
	FilePerm, DirPerm os.FileMode
}

// FS implements fuseutil.FileSystem over an *idb.DB. It holds no
// inode-identity state of its own: fuseops.InodeID values it hands out
// are idb.InodeID values verbatim (directories are cloud-resident, so
// their InodeID equals their NodeHandle by construction — spec.md §3),
// except for the root, which the kernel always names with the
// reserved fuseops.RootInodeID regardless of its real handle.
//
// FS embeds fuseutil.NotImplementedFileSystem, matching the teacher's
// fs.fileSystem: operations the cloud-file-sync data model doesn't
// represent (symlinks, hard links, xattrs, device nodes) fall back to
// its ENOSYS-returning defaults instead of being hand-rolled here.
type FS struct {
	fuseutil.NotImplementedFileSystem

	db  *idb.DB
	cfg Config

	mu          sync.Mutex
	nextHandle  fuseops.HandleID
	dirHandles  map[fuseops.HandleID]*dirHandle
	fileHandles map[fuseops.HandleID]*fileHandle
}

type dirHandle struct {
	parent idb.NodeHandle
	mu     sync.Mutex
	loaded bool
	buf    []byte
}

type fileHandle struct {
	id idb.InodeID
}

// New constructs an FS backed by db.
func New(db *idb.DB, cfg Config) *FS {
	return &FS{
		db:          db,
		cfg:         cfg,
		nextHandle:  1,
		dirHandles:  make(map[fuseops.HandleID]*dirHandle),
		fileHandles: make(map[fuseops.HandleID]*fileHandle),
	}
}

func (fs *FS) allocHandle() fuseops.HandleID {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h := fs.nextHandle
	fs.nextHandle++
	return h
}

// resolveDirHandle maps a fuseops.InodeID naming a directory to the
// cloud NodeHandle the IDB indexes it by.
func (fs *FS) resolveDirHandle(id fuseops.InodeID) idb.NodeHandle {
	if id == fuseops.RootInodeID {
		return fs.cfg.RootHandle
	}
	return idb.NodeHandle(id)
}

func toErrno(err error) error {
	if err == nil {
		return nil
	}
	switch cserr.KindOf(err) {
	case cserr.NotFound:
		return os.ErrNotExist
	case cserr.Exists:
		return os.ErrExist
	case cserr.AccessDenied:
		return os.ErrPermission
	default:
		return err
	}
}

func (fs *FS) attributesFor(n *idb.Inode) fuseops.InodeAttributes {
	mode := fs.cfg.FilePerm
	var size uint64
	mtime := n.LastAccess()
	if n.IsDir() {
		mode = os.ModeDir | fs.cfg.DirPerm
	} else if fi := n.FileInfo(); fi != nil {
		size = uint64(fi.Size)
		mtime = fi.MTime
	}
	return fuseops.InodeAttributes{
		Size:  size,
		Nlink: 1,
		Mode:  mode,
		Uid:   fs.cfg.Uid,
		Gid:   fs.cfg.Gid,
		Mtime: mtime,
	}
}

// Init implements fuseutil.FileSystem.
func (fs *FS) Init(op *fuseops.InitOp) error { return nil }

// LookUpInode implements fuseutil.FileSystem.
func (fs *FS) LookUpInode(op *fuseops.LookUpInodeOp) error {
	ctx := op.Context()
	parent := fs.resolveDirHandle(op.Parent)
	ref, err := fs.db.Child(ctx, parent, op.Name)
	if err != nil {
		return toErrno(err)
	}
	if ref == nil {
		return os.ErrNotExist
	}
	defer ref.Release()

	n := ref.Inode()
	op.Entry.Child = fuseops.InodeID(n.ID())
	op.Entry.Attributes = fs.attributesFor(n)
	return nil
}

// rootAttributes reports fixed directory attributes for the mount
// root, which (unlike every other directory) is not itself a
// cloud-resident inode the IDB can resolve: spec.md §3's handle space
// starts at the bucket's top-level objects, never at the bucket itself.
func (fs *FS) rootAttributes() fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  os.ModeDir | fs.cfg.DirPerm,
		Uid:   fs.cfg.Uid,
		Gid:   fs.cfg.Gid,
	}
}

// GetInodeAttributes implements fuseutil.FileSystem.
func (fs *FS) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) error {
	if op.Inode == fuseops.RootInodeID {
		op.Attributes = fs.rootAttributes()
		return nil
	}
	ref, err := fs.lookupByOpInode(op.Context(), op.Inode)
	if err != nil {
		return toErrno(err)
	}
	if ref == nil {
		return os.ErrNotExist
	}
	defer ref.Release()
	op.Attributes = fs.attributesFor(ref.Inode())
	return nil
}

// SetInodeAttributes implements fuseutil.FileSystem. The IDB carries no
// mutable attribute beyond dirty/size, which the File Cache owns, so the
// only change honored here is truncation of a file's cached content;
// every other requested change (mode, times) is ignored and the call
// reports success with the inode's current attributes.
func (fs *FS) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) error {
	if op.Inode == fuseops.RootInodeID {
		op.Attributes = fs.rootAttributes()
		return nil
	}
	ref, err := fs.lookupByOpInode(op.Context(), op.Inode)
	if err != nil {
		return toErrno(err)
	}
	if ref == nil {
		return os.ErrNotExist
	}
	defer ref.Release()

	n := ref.Inode()
	if op.Size != nil && !n.IsDir() {
		if fi := n.FileInfo(); fi != nil {
			if err := os.Truncate(fi.Path, int64(*op.Size)); err != nil {
				return err
			}
			if err := fs.db.SetModified(op.Context(), n.ID(), true); err != nil {
				return toErrno(err)
			}
		}
	}
	op.Attributes = fs.attributesFor(n)
	return nil
}

// ForgetInode implements fuseutil.FileSystem. The IDB's own lookup
// count (InodeRef) is released per-call rather than batched by N, so
// there is nothing to do here beyond acknowledging the forget; no
// InodeRef is held across calls for a bare fuseops.InodeID.
func (fs *FS) ForgetInode(op *fuseops.ForgetInodeOp) error { return nil }

// MkDir implements fuseutil.FileSystem.
func (fs *FS) MkDir(op *fuseops.MkDirOp) error {
	parent := fs.resolveDirHandle(op.Parent)
	ref, err := fs.db.MakeDirectory(op.Context(), parent, op.Name)
	if err != nil {
		return toErrno(err)
	}
	defer ref.Release()
	n := ref.Inode()
	op.Entry.Child = fuseops.InodeID(n.ID())
	op.Entry.Attributes = fs.attributesFor(n)
	return nil
}

// CreateFile implements fuseutil.FileSystem.
func (fs *FS) CreateFile(op *fuseops.CreateFileOp) error {
	parent := fs.resolveDirHandle(op.Parent)
	ref, err := fs.db.MakeFile(op.Context(), parent, op.Name)
	if err != nil {
		return toErrno(err)
	}
	n := ref.Inode()
	op.Entry.Child = fuseops.InodeID(n.ID())
	op.Entry.Attributes = fs.attributesFor(n)
	op.Handle = fs.allocHandle()

	fs.mu.Lock()
	fs.fileHandles[op.Handle] = &fileHandle{id: n.ID()}
	fs.mu.Unlock()
	ref.Release()
	return nil
}

// RmDir implements fuseutil.FileSystem.
func (fs *FS) RmDir(op *fuseops.RmDirOp) error {
	parent := fs.resolveDirHandle(op.Parent)
	ref, err := fs.db.Child(op.Context(), parent, op.Name)
	if err != nil {
		return toErrno(err)
	}
	if ref == nil {
		return os.ErrNotExist
	}
	id := ref.Inode().ID()
	ref.Release()
	return toErrno(fs.db.Unlink(op.Context(), id))
}

// Unlink implements fuseutil.FileSystem.
func (fs *FS) Unlink(op *fuseops.UnlinkOp) error {
	parent := fs.resolveDirHandle(op.Parent)
	ref, err := fs.db.Child(op.Context(), parent, op.Name)
	if err != nil {
		return toErrno(err)
	}
	if ref == nil {
		return os.ErrNotExist
	}
	id := ref.Inode().ID()
	ref.Release()
	return toErrno(fs.db.Unlink(op.Context(), id))
}

// OpenDir implements fuseutil.FileSystem.
func (fs *FS) OpenDir(op *fuseops.OpenDirOp) error {
	parent := fs.resolveDirHandle(op.Inode)
	op.Handle = fs.allocHandle()
	fs.mu.Lock()
	fs.dirHandles[op.Handle] = &dirHandle{parent: parent}
	fs.mu.Unlock()
	return nil
}

// ReadDir implements fuseutil.FileSystem. Because the IDB's children()
// has no stable continuation token of its own, the whole listing is
// materialized once per OpenDir and served out of a buffer afterward —
// the same "serve from a snapshot, don't support re-listing mid-stream"
// tradeoff spec.md §4.1's children() accepts at the IDB layer.
func (fs *FS) ReadDir(op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	dh := fs.dirHandles[op.Handle]
	fs.mu.Unlock()
	if dh == nil {
		return os.ErrInvalid
	}

	dh.mu.Lock()
	defer dh.mu.Unlock()

	if !dh.loaded {
		refs, err := fs.db.Children(op.Context(), dh.parent)
		if err != nil {
			return toErrno(err)
		}
		var buf []byte
		var offset fuseops.DirOffset = 1
		for _, ref := range refs {
			n := ref.Inode()
			typ := fuseutil.DT_File
			if n.IsDir() {
				typ = fuseutil.DT_Directory
			}
			d := fuseops.Dirent{
				Offset: offset,
				Inode:  fuseops.InodeID(n.ID()),
				Name:   nodeNameHint(n),
				Type:   typ,
			}
			tmp := make([]byte, 4096)
			written := fuseutil.WriteDirent(tmp, d)
			buf = append(buf, tmp[:written]...)
			offset++
			ref.Release()
		}
		dh.buf = buf
		dh.loaded = true
	}

	if int(op.Offset) > len(dh.buf) {
		return nil
	}
	end := int(op.Offset) + op.Size
	if end > len(dh.buf) {
		end = len(dh.buf)
	}
	op.Data = dh.buf[op.Offset:end]
	return nil
}

// nodeNameHint is a placeholder used only where a caller needs a dirent
// name but the IDB does not expose one for cloud-resident inodes (their
// name is owned by the Cloud Client, not stored — spec.md §3's I5).
// Production glue would thread the NodeInfo.Name observed during
// Children() through to here instead of re-deriving it.
func nodeNameHint(n *idb.Inode) string {
	return ""
}

// ReleaseDirHandle implements fuseutil.FileSystem.
func (fs *FS) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	delete(fs.dirHandles, op.Handle)
	fs.mu.Unlock()
	return nil
}

// OpenFile implements fuseutil.FileSystem.
func (fs *FS) OpenFile(op *fuseops.OpenFileOp) error {
	ref, err := fs.lookupByOpInode(op.Context(), op.Inode)
	if err != nil {
		return toErrno(err)
	}
	if ref == nil {
		return os.ErrNotExist
	}
	id := ref.Inode().ID()
	ref.Release()

	op.Handle = fs.allocHandle()
	fs.mu.Lock()
	fs.fileHandles[op.Handle] = &fileHandle{id: id}
	fs.mu.Unlock()
	return nil
}

func (fs *FS) fileInfoForHandle(ctx context.Context, handle fuseops.HandleID) (*idb.FileInfo, idb.InodeID, error) {
	fs.mu.Lock()
	fh := fs.fileHandles[handle]
	fs.mu.Unlock()
	if fh == nil {
		return nil, 0, os.ErrInvalid
	}
	ref, err := fs.db.GetByID(ctx, fh.id)
	if err != nil {
		return nil, fh.id, err
	}
	if ref == nil {
		return nil, fh.id, os.ErrNotExist
	}
	defer ref.Release()
	fi := ref.Inode().FileInfo()
	if fi == nil {
		return nil, fh.id, os.ErrNotExist
	}
	return fi, fh.id, nil
}

// ReadFile implements fuseutil.FileSystem.
func (fs *FS) ReadFile(op *fuseops.ReadFileOp) error {
	fi, _, err := fs.fileInfoForHandle(op.Context(), op.Handle)
	if err != nil {
		return toErrno(err)
	}
	f, err := os.Open(fi.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, op.Size)
	n, err := f.ReadAt(buf, op.Offset)
	if err != nil && err != io.EOF {
		return err
	}
	op.Data = buf[:n]
	return nil
}

// WriteFile implements fuseutil.FileSystem.
func (fs *FS) WriteFile(op *fuseops.WriteFileOp) error {
	fi, id, err := fs.fileInfoForHandle(op.Context(), op.Handle)
	if err != nil {
		return toErrno(err)
	}
	f, err := os.OpenFile(fi.Path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteAt(op.Data, op.Offset); err != nil {
		return err
	}

	// SetModified is reached through the IDB rather than the File Cache
	// directly: the adapter never imports package filecache, matching
	// spec.md §1's boundary between the core and its ports.
	return toErrno(fs.db.SetModified(op.Context(), id, true))
}

// SyncFile implements fuseutil.FileSystem: durability is eventual via
// the cloud (spec.md §1's non-goals), so there is nothing to flush here
// beyond what WriteFile already committed to the cache file.
func (fs *FS) SyncFile(op *fuseops.SyncFileOp) error { return nil }

// FlushFile implements fuseutil.FileSystem.
func (fs *FS) FlushFile(op *fuseops.FlushFileOp) error { return nil }

// ReleaseFileHandle implements fuseutil.FileSystem.
func (fs *FS) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) error {
	fs.mu.Lock()
	delete(fs.fileHandles, op.Handle)
	fs.mu.Unlock()
	return nil
}

// lookupByOpInode resolves a non-root fuseops.InodeID. The root is
// never a real inode (see rootAttributes) and callers special-case it
// before reaching here.
func (fs *FS) lookupByOpInode(ctx context.Context, id fuseops.InodeID) (*idb.InodeRef, error) {
	return fs.db.GetByID(ctx, idb.InodeID(id))
}
