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

package cloud

import (
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/meganz/cloudsync/internal/cserr"
	"github.com/meganz/cloudsync/internal/idb"
)

func TestObjectAndDirectoryName(t *testing.T) {
	assert.Equal(t, "7/foo.txt", objectName(idb.NodeHandle(7), "foo.txt"))
	assert.Equal(t, "7/bar/", directoryName(idb.NodeHandle(7), "bar"))
}

func TestParentOf(t *testing.T) {
	assert.Equal(t, idb.NodeHandle(7), parentOf("7/foo.txt"))
	assert.Equal(t, idb.NodeHandle(7), parentOf("7/bar/"))
	assert.Equal(t, idb.UndefinedHandle, parentOf("no-slash"))
	assert.Equal(t, idb.UndefinedHandle, parentOf("nope/x"))
}

func TestLeafName(t *testing.T) {
	assert.Equal(t, "foo.txt", leafName("7/foo.txt"))
	assert.Equal(t, "bar", leafName("7/bar/"))
	assert.Equal(t, "solo", leafName("solo"))
}

func TestToNodeInfo_File(t *testing.T) {
	mtime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	attrs := &storage.ObjectAttrs{
		Name:       "7/foo.txt",
		Generation: 42,
		Size:       1024,
		Updated:    mtime,
		Metadata: map[string]string{
			metaPermissions: "420",
			metaBindHandle:  "99",
		},
	}

	info := toNodeInfo(attrs)
	assert.Equal(t, idb.NodeHandle(42), info.Handle)
	assert.Equal(t, idb.NodeHandle(7), info.ParentHandle)
	assert.Equal(t, "foo.txt", info.Name)
	assert.False(t, info.IsDirectory)
	assert.EqualValues(t, 420, info.Permissions)
	assert.Equal(t, idb.BindHandle(99), info.BindHandle)
	assert.Equal(t, int64(1024), info.Size)
	assert.Equal(t, mtime, info.MTime)
}

func TestToNodeInfo_Directory(t *testing.T) {
	attrs := &storage.ObjectAttrs{Name: "7/bar/", Generation: 1}
	info := toNodeInfo(attrs)
	assert.True(t, info.IsDirectory)
	assert.Equal(t, "bar", info.Name)
}

func TestIsNotExist(t *testing.T) {
	assert.True(t, isNotExist(storage.ErrObjectNotExist))
	assert.False(t, isNotExist(errors.New("other")))
	assert.False(t, isNotExist(nil))
}

func TestTranslate_NotExist(t *testing.T) {
	err := translate("cloud.get", storage.ErrObjectNotExist)
	assert.Equal(t, cserr.NotFound, cserr.KindOf(err))
}

func TestTranslate_GoogleAPIErrorCodes(t *testing.T) {
	cases := []struct {
		code int
		kind cserr.Kind
	}{
		{403, cserr.AccessDenied},
		{404, cserr.NotFound},
		{412, cserr.Exists},
	}
	for _, tc := range cases {
		err := translate("cloud.op", &googleapi.Error{Code: tc.code})
		assert.Equal(t, tc.kind, cserr.KindOf(err), "code %d", tc.code)
	}
}

func TestTranslate_UnrecognizedErrorIsTransport(t *testing.T) {
	err := translate("cloud.op", errors.New("timeout"))
	assert.Equal(t, cserr.Transport, cserr.KindOf(err))
}

func TestTranslate_NilIsNil(t *testing.T) {
	assert.NoError(t, translate("cloud.op", nil))
}
