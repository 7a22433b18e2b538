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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/grpc"

	"github.com/meganz/cloudsync/internal/cloud"
	"github.com/meganz/cloudsync/internal/config"
	"github.com/meganz/cloudsync/internal/events"
	"github.com/meganz/cloudsync/internal/filecache"
	"github.com/meganz/cloudsync/internal/fsadapter"
	"github.com/meganz/cloudsync/internal/idb"
	"github.com/meganz/cloudsync/internal/logger"
	"github.com/meganz/cloudsync/internal/metrics"
	"github.com/meganz/cloudsync/internal/mount"
	"github.com/meganz/cloudsync/internal/store"
)

// gcsReadWriteScope grants read/write access to GCS objects, matching
// the teacher's auth.go use of storagev1.DevstorageRead_writeScope.
const gcsReadWriteScope = "https://www.googleapis.com/auth/devstorage.read_write"

// runMount wires together the Relational Store, Cloud Client, File
// Cache, Mount Registry and Inode Database, then serves the mount at
// mountPoint until its context is canceled or the kernel unmounts it.
// Modeled on the teacher's cmd/mount.go, but against the IDB's own
// collaborator ports rather than gcsfuse's gcsx.BucketManager/fs.Server.
func runMount(ctx context.Context, cfg *config.Config, mountPoint string) error {
	if cfg.Metrics.Address != "" {
		provider, err := metrics.InstallProvider()
		if err != nil {
			return fmt.Errorf("installing metrics provider: %w", err)
		}
		defer provider.Shutdown(context.Background())
		serveMetrics(cfg.Metrics.Address, provider.Handler())
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if err := store.Migrate(ctx, st); err != nil {
		return fmt.Errorf("migrating store: %w", err)
	}
	if err := store.RecoverCounter(ctx, st); err != nil {
		return fmt.Errorf("recovering synthetic id counter: %w", err)
	}

	cacheDir := cfg.FileCache.Dir
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	cache := filecache.New(cacheDir, nil)

	bucket, err := openBucket(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening bucket %q: %w", cfg.Cloud.Bucket, err)
	}
	cloudClient := cloud.New(bucket)

	registry := mount.NewRegistry()

	db := idb.New(idb.Deps{
		Store:  st,
		Cloud:  cloudClient,
		Cache:  cache,
		Mounts: registry,
	})

	// The mount root has no GCS object of its own: cloud.Client names
	// top-level objects "<idb.UndefinedHandle>/<name>" (client.go's
	// objectName), so the zero handle already serves as the bucket's
	// virtual root parent and is never assigned to a real object.
	rootHandle := idb.UndefinedHandle

	queue := events.NewNodeEventQueue()
	dispatcher := events.NewDispatcher(queue, db)
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()
	go dispatcher.Run(dispatchCtx)
	go pollCloudEvents(dispatchCtx, cloudClient, queue)
	go runDiagnostics(dispatchCtx, db)

	uid, gid := currentUidGid()
	fsCfg := fsadapter.Config{
		RootHandle: rootHandle,
		Uid:        uid,
		Gid:        gid,
		FilePerm:   0644,
		DirPerm:    0755,
	}
	fs := fsadapter.New(db, fsCfg)
	server := fuseutil.NewFileSystemServer(fs)

	notifier := fuse.NewNotifier()
	var m *mount.Mount
	m = mount.New(notifier, rootHandle, func() error {
		registry.Remove(m)
		return fuse.Unmount(mountPoint)
	})
	registry.Add(m)

	mountCfg := &fuse.MountConfig{
		FSName:     cfg.AppName,
		Subtype:    "cloudsync",
		VolumeName: cfg.AppName,
	}

	logger.Infof("mounting %q at %q", cfg.Cloud.Bucket, mountPoint)
	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return fmt.Errorf("mounting %q: %w", mountPoint, err)
	}

	if err := mfs.Join(ctx); err != nil {
		return fmt.Errorf("serving mount: %w", err)
	}
	return nil
}

// openBucket resolves cfg.Cloud.Bucket against a GCS client, matching
// the teacher's gcs/conn.go connection-setup pattern: a key file (if
// configured) is turned into an oauth2 token source the same way the
// teacher's auth.go turns --key_file into a JWT-authenticated HTTP
// client, and cfg.Cloud.UseGRPC switches onto GCS's experimental gRPC
// transport, which the teacher's go.mod pulls in via
// google.golang.org/grpc transitively through cloud.google.com/go/storage.
func openBucket(ctx context.Context, cfg *config.Config) (*storage.BucketHandle, error) {
	var opts []option.ClientOption
	if cfg.Cloud.KeyFile != "" {
		keyJSON, err := os.ReadFile(cfg.Cloud.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading key file %q: %w", cfg.Cloud.KeyFile, err)
		}
		creds, err := google.CredentialsFromJSONWithParams(ctx, keyJSON, google.CredentialsParams{
			Scopes: []string{gcsReadWriteScope},
		})
		if err != nil {
			return nil, fmt.Errorf("loading credentials from %q: %w", cfg.Cloud.KeyFile, err)
		}
		opts = append(opts, option.WithTokenSource(creds.TokenSource))
	}

	var client *storage.Client
	var err error
	if cfg.Cloud.UseGRPC {
		opts = append(opts, option.WithGRPCDialOption(grpc.WithDefaultCallOptions()))
		client, err = storage.NewGRPCClient(ctx, opts...)
	} else {
		client, err = storage.NewClient(ctx, opts...)
	}
	if err != nil {
		return nil, err
	}
	return client.Bucket(cfg.Cloud.Bucket), nil
}

// serveMetrics starts the Prometheus exposition endpoint on addr in the
// background, matching the teacher's pattern of a side-channel debug
// HTTP listener alongside the mount itself.
func serveMetrics(addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("metrics server on %q: %v", addr, err)
		}
	}()
}

// currentUidGid matches the teacher's cmd/mount.go, which defaults
// reported file ownership to the mounting user's own uid/gid.
func currentUidGid() (uint32, uint32) {
	u, err := user.Current()
	if err != nil {
		return 0, 0
	}
	uid, err1 := strconv.ParseUint(u.Uid, 10, 32)
	gid, err2 := strconv.ParseUint(u.Gid, 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return uint32(uid), uint32(gid)
}

// pollCloudEvents is a placeholder cloud-change poller: spec.md §1
// treats the stream of NodeEvents itself as an out-of-scope, separately
// tested collaborator (the "Event Observer" consumes it, but does not
// produce it). A production build would replace this with a GCS Pub/Sub
// notification subscriber; absent one, the mount still serves reads and
// writes correctly, it simply does not learn about concurrent external
// changes to the bucket until the next explicit lookup.
func pollCloudEvents(ctx context.Context, _ *cloud.Client, _ *events.NodeEventQueue) {
	<-ctx.Done()
}

// diagnosticsInterval is how often runDiagnostics publishes index-size
// gauges and logs touched-inode counts while a mount is live.
const diagnosticsInterval = time.Minute

// runDiagnostics periodically calls idb.DB.ReportDiagnostics so its
// index-size gauges and touched-inode log line are exercised by a
// running mount rather than sitting unreachable.
func runDiagnostics(ctx context.Context, db *idb.DB) {
	ticker := time.NewTicker(diagnosticsInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			db.ReportDiagnostics(ctx, last)
			last = now
		}
	}
}
