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

// Package config defines the typed configuration surface for a CloudSync
// mount: the store location, cache limits, and debug toggles the IDB and
// its collaborators read at startup.
package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppName string `yaml:"app-name"`

	Debug DebugConfig `yaml:"debug"`

	Store StoreConfig `yaml:"store"`

	FileCache FileCacheConfig `yaml:"file-cache"`

	Cloud CloudConfig `yaml:"cloud"`

	Events EventsConfig `yaml:"events"`

	Metrics MetricsConfig `yaml:"metrics"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`

	LogLocks bool `yaml:"log-locks"`
}

type StoreConfig struct {
	// Path to the SQLite database file backing the Relational Store. Empty
	// means a private in-memory database, as used by tests.
	Path string `yaml:"path"`
}

type FileCacheConfig struct {
	// Directory holding cached file content. Empty uses the OS temp dir.
	Dir string `yaml:"dir"`

	MaxSizeMB int64 `yaml:"max-size-mb"`

	EvictionSweepInterval time.Duration `yaml:"eviction-sweep-interval"`
}

type CloudConfig struct {
	Bucket string `yaml:"bucket"`

	RequestTimeout time.Duration `yaml:"request-timeout"`

	// KeyFile points at a service-account JSON key used to build an
	// oauth2 token source for the bucket client (teacher's auth.go
	// pattern). Empty uses application-default credentials.
	KeyFile string `yaml:"key-file"`

	// UseGRPC switches the Cloud Client onto GCS's gRPC transport
	// (storage.NewGRPCClient) instead of the default JSON/HTTP one.
	UseGRPC bool `yaml:"use-grpc"`
}

type EventsConfig struct {
	QueueCapacity int `yaml:"queue-capacity"`
}

type MetricsConfig struct {
	// Address the Prometheus exposition endpoint listens on, e.g.
	// ":9090". Empty disables metrics serving.
	Address string `yaml:"address"`
}

// Dump renders c as YAML, matching the teacher's autogen tooling's use
// of gopkg.in/yaml.v3 for config-shaped output. Used by the `cloudsync
// config` subcommand to print the effective, rationalized configuration.
func Dump(c *Config) ([]byte, error) {
	return yaml.Marshal(c)
}

// BindFlags registers the flags backing Config and wires them into viper
// under the same dotted keys used by the yaml tags above.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("app-name", "", "cloudsync", "The application name of this mount.")
	if err = viper.BindPFlag("app-name", flagSet.Lookup("app-name")); err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Exit when internal invariants are violated.")
	if err = viper.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants")); err != nil {
		return err
	}

	flagSet.BoolP("debug_locks", "", false, "Log when idb_lock or db_lock is held too long.")
	if err = viper.BindPFlag("debug.log-locks", flagSet.Lookup("debug_locks")); err != nil {
		return err
	}

	flagSet.StringP("store-path", "", "", "Path to the SQLite database file. Empty means in-memory.")
	if err = viper.BindPFlag("store.path", flagSet.Lookup("store-path")); err != nil {
		return err
	}

	flagSet.StringP("cache-dir", "", "", "Directory for cached file content. Empty uses the OS temp dir.")
	if err = viper.BindPFlag("file-cache.dir", flagSet.Lookup("cache-dir")); err != nil {
		return err
	}

	flagSet.Int64P("cache-max-size-mb", "", 1024, "Maximum total size of cached file content, in MB.")
	if err = viper.BindPFlag("file-cache.max-size-mb", flagSet.Lookup("cache-max-size-mb")); err != nil {
		return err
	}

	flagSet.DurationP("cache-eviction-interval", "", 30*time.Second, "Interval between cache eviction sweeps.")
	if err = viper.BindPFlag("file-cache.eviction-sweep-interval", flagSet.Lookup("cache-eviction-interval")); err != nil {
		return err
	}

	flagSet.StringP("bucket", "", "", "Name of the cloud bucket to mount.")
	if err = viper.BindPFlag("cloud.bucket", flagSet.Lookup("bucket")); err != nil {
		return err
	}

	flagSet.DurationP("request-timeout", "", 30*time.Second, "Timeout for a single cloud RPC.")
	if err = viper.BindPFlag("cloud.request-timeout", flagSet.Lookup("request-timeout")); err != nil {
		return err
	}

	flagSet.IntP("event-queue-capacity", "", 4096, "Must be positive. Not applied: the node-event queue is unbounded.")
	if err = viper.BindPFlag("events.queue-capacity", flagSet.Lookup("event-queue-capacity")); err != nil {
		return err
	}

	flagSet.StringP("key-file", "", "", "Path to a service-account JSON key. Empty uses application-default credentials.")
	if err = viper.BindPFlag("cloud.key-file", flagSet.Lookup("key-file")); err != nil {
		return err
	}

	flagSet.BoolP("use-grpc", "", false, "Use GCS's gRPC transport instead of JSON/HTTP.")
	if err = viper.BindPFlag("cloud.use-grpc", flagSet.Lookup("use-grpc")); err != nil {
		return err
	}

	flagSet.StringP("metrics-address", "", "", "Address to serve Prometheus metrics on, e.g. ':9090'. Empty disables metrics.")
	if err = viper.BindPFlag("metrics.address", flagSet.Lookup("metrics-address")); err != nil {
		return err
	}

	return nil
}
