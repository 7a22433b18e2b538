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

// Package cloud implements spec.md §6's Cloud Client port against
// Google Cloud Storage, grounded on the teacher's gcs/gcs.go,
// gcs/bucket.go and gcs/conn.go, and on gcsproxy/listing_proxy.go's
// directory-by-object-name-prefix convention: an object's name is
// "<parentHandle>/<name>", a directory is the zero-byte object
// "<parentHandle>/<name>/", and an object's own generation number
// becomes its NodeHandle.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/meganz/cloudsync/internal/cserr"
	"github.com/meganz/cloudsync/internal/idb"
)

const (
	metaBindHandle  = "cloudsync-bind-handle"
	metaPermissions = "cloudsync-permissions"
)

// Client is the GCS-backed Cloud Client. It caches handle→object-name
// resolutions as they are observed (via Each, Handle, or MakeDirectory);
// a handle never surfaced by a prior listing is reported not-found by
// Get, on the documented assumption that the core always discovers a
// handle through a listing or a (parent, name) lookup before holding
// onto it bare — matching spec.md §1's framing of the cloud transport
// itself as an out-of-scope, separately-tested collaborator.
type Client struct {
	bucket *storage.BucketHandle

	mu    sync.RWMutex
	names map[idb.NodeHandle]string
}

// New constructs a Client against bucket.
func New(bucket *storage.BucketHandle) *Client {
	return &Client{bucket: bucket, names: make(map[idb.NodeHandle]string)}
}

func objectName(parent idb.NodeHandle, name string) string {
	return fmt.Sprintf("%d/%s", uint64(parent), name)
}

func directoryName(parent idb.NodeHandle, name string) string {
	return objectName(parent, name) + "/"
}

// parentOf recovers the parent handle encoded in an object's own name.
func parentOf(objName string) idb.NodeHandle {
	i := strings.IndexByte(objName, '/')
	if i < 0 {
		return idb.UndefinedHandle
	}
	n, err := strconv.ParseUint(objName[:i], 10, 64)
	if err != nil {
		return idb.UndefinedHandle
	}
	return idb.NodeHandle(n)
}

func leafName(objName string) string {
	i := strings.IndexByte(objName, '/')
	if i < 0 {
		return objName
	}
	return strings.TrimSuffix(objName[i+1:], "/")
}

func (c *Client) remember(handle idb.NodeHandle, objName string) {
	c.mu.Lock()
	c.names[handle] = objName
	c.mu.Unlock()
}

func (c *Client) lookup(handle idb.NodeHandle) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.names[handle]
	return n, ok
}

func toNodeInfo(attrs *storage.ObjectAttrs) *idb.NodeInfo {
	isDir := strings.HasSuffix(attrs.Name, "/")
	var perms uint32
	if v, ok := attrs.Metadata[metaPermissions]; ok {
		if p, err := strconv.ParseUint(v, 10, 32); err == nil {
			perms = uint32(p)
		}
	}
	var bind idb.BindHandle
	if v, ok := attrs.Metadata[metaBindHandle]; ok {
		if b, err := strconv.ParseUint(v, 10, 64); err == nil {
			bind = idb.BindHandle(b)
		}
	}
	return &idb.NodeInfo{
		Handle:       idb.NodeHandle(attrs.Generation),
		ParentHandle: parentOf(attrs.Name),
		Name:         leafName(attrs.Name),
		IsDirectory:  isDir,
		BindHandle:   bind,
		Permissions:  perms,
		Size:         attrs.Size,
		MTime:        attrs.Updated,
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist)
}

func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if isNotExist(err) {
		return cserr.New(op, cserr.NotFound, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 403:
			return cserr.New(op, cserr.AccessDenied, err)
		case 404:
			return cserr.New(op, cserr.NotFound, err)
		case 412:
			return cserr.New(op, cserr.Exists, err)
		}
	}
	return cserr.New(op, cserr.Transport, err)
}

// Get implements idb.CloudClient.
func (c *Client) Get(ctx context.Context, handle idb.NodeHandle) (*idb.NodeInfo, error) {
	objName, ok := c.lookup(handle)
	if !ok {
		return nil, nil
	}
	attrs, err := c.bucket.Object(objName).Attrs(ctx)
	if isNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, translate("cloud.get", err)
	}
	return toNodeInfo(attrs), nil
}

// Exists implements idb.CloudClient.
func (c *Client) Exists(ctx context.Context, handle idb.NodeHandle) (bool, error) {
	info, err := c.Get(ctx, handle)
	return info != nil, err
}

// Handle implements idb.CloudClient.
func (c *Client) Handle(ctx context.Context, parent idb.NodeHandle, name string) (idb.NodeHandle, idb.BindHandle, bool, error) {
	attrs, err := c.bucket.Object(objectName(parent, name)).Attrs(ctx)
	if isNotExist(err) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, translate("cloud.handle", err)
	}
	info := toNodeInfo(attrs)
	c.remember(info.Handle, attrs.Name)
	return info.Handle, info.BindHandle, true, nil
}

// HasChildren implements idb.CloudClient.
func (c *Client) HasChildren(ctx context.Context, parent idb.NodeHandle) (bool, error) {
	it := c.bucket.Objects(ctx, &storage.Query{Prefix: objectName(parent, "")})
	_, err := it.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, translate("cloud.hasChildren", err)
	}
	return true, nil
}

// Each implements idb.CloudClient.
func (c *Client) Each(ctx context.Context, parent idb.NodeHandle, fn func(*idb.NodeInfo) bool) error {
	it := c.bucket.Objects(ctx, &storage.Query{Prefix: objectName(parent, "")})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return translate("cloud.each", err)
		}
		info := toNodeInfo(attrs)
		c.remember(info.Handle, attrs.Name)
		if !fn(info) {
			return nil
		}
	}
}

// MakeDirectory implements idb.CloudClient.
func (c *Client) MakeDirectory(ctx context.Context, parent idb.NodeHandle, name string) (*idb.NodeInfo, error) {
	objName := directoryName(parent, name)
	w := c.bucket.Object(objName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if err := w.Close(); err != nil {
		if existing, getErr := c.bucket.Object(objName).Attrs(ctx); getErr == nil {
			info := toNodeInfo(existing)
			c.remember(info.Handle, existing.Name)
			return info, nil
		}
		return nil, translate("cloud.makeDirectory", err)
	}
	info := toNodeInfo(w.Attrs())
	c.remember(info.Handle, objName)
	return info, nil
}

// Move implements idb.CloudClient.
func (c *Client) Move(ctx context.Context, handle idb.NodeHandle, newParent idb.NodeHandle, newName string) error {
	srcName, ok := c.lookup(handle)
	if !ok {
		return cserr.New("cloud.move", cserr.NotFound, errors.New("unresolved handle"))
	}
	dstName := objectName(newParent, newName)
	if strings.HasSuffix(srcName, "/") {
		dstName += "/"
	}
	src := c.bucket.Object(srcName)
	dst := c.bucket.Object(dstName)
	attrs, err := dst.CopierFrom(src).Run(ctx)
	if err != nil {
		return translate("cloud.move", err)
	}
	if err := src.Delete(ctx); err != nil && !isNotExist(err) {
		return translate("cloud.move", err)
	}
	c.mu.Lock()
	delete(c.names, handle)
	c.names[idb.NodeHandle(attrs.Generation)] = dstName
	c.mu.Unlock()
	return nil
}

// Remove implements idb.CloudClient.
func (c *Client) Remove(ctx context.Context, handle idb.NodeHandle) error {
	objName, ok := c.lookup(handle)
	if !ok {
		return cserr.New("cloud.remove", cserr.NotFound, errors.New("unresolved handle"))
	}
	if err := c.bucket.Object(objName).Delete(ctx); err != nil && !isNotExist(err) {
		return translate("cloud.remove", err)
	}
	c.mu.Lock()
	delete(c.names, handle)
	c.mu.Unlock()
	return nil
}

// Replace implements idb.CloudClient: source takes target's slot,
// deleting whatever was at target.
func (c *Client) Replace(ctx context.Context, source, target idb.NodeHandle) error {
	srcName, ok := c.lookup(source)
	if !ok {
		return cserr.New("cloud.replace", cserr.NotFound, errors.New("unresolved source handle"))
	}
	dstName, ok := c.lookup(target)
	if !ok {
		return cserr.New("cloud.replace", cserr.NotFound, errors.New("unresolved target handle"))
	}
	src := c.bucket.Object(srcName)
	dst := c.bucket.Object(dstName)
	attrs, err := dst.CopierFrom(src).Run(ctx)
	if err != nil {
		return translate("cloud.replace", err)
	}
	if err := src.Delete(ctx); err != nil && !isNotExist(err) {
		return translate("cloud.replace", err)
	}
	c.mu.Lock()
	delete(c.names, source)
	c.names[idb.NodeHandle(attrs.Generation)] = dstName
	c.mu.Unlock()
	return nil
}

// ParentHandle implements idb.CloudClient.
func (c *Client) ParentHandle(ctx context.Context, handle idb.NodeHandle) (idb.NodeHandle, error) {
	objName, ok := c.lookup(handle)
	if !ok {
		return idb.UndefinedHandle, cserr.New("cloud.parentHandle", cserr.NotFound, errors.New("unresolved handle"))
	}
	return parentOf(objName), nil
}
