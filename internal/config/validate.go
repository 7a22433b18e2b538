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

package config

import "fmt"

const (
	CloudBucketRequiredError       = "cloud.bucket must be set"
	FileCacheMaxSizeInvalidError   = "file-cache.max-size-mb must be positive"
	EventsQueueCapacityInvalidError = "events.queue-capacity must be positive"
)

// Validate returns a non-nil error if c cannot be used to start a mount.
func Validate(c *Config) error {
	if c.Cloud.Bucket == "" {
		return fmt.Errorf(CloudBucketRequiredError)
	}
	if c.FileCache.MaxSizeMB <= 0 {
		return fmt.Errorf(FileCacheMaxSizeInvalidError)
	}
	if c.Events.QueueCapacity <= 0 {
		return fmt.Errorf(EventsQueueCapacityInvalidError)
	}
	return nil
}

// Rationalize replaces a zero or negative eviction sweep interval or
// request timeout with its default. It reads no field that Validate
// checks, so the two may run in either order.
func Rationalize(c *Config) {
	if c.FileCache.EvictionSweepInterval <= 0 {
		c.FileCache.EvictionSweepInterval = defaultEvictionSweepInterval
	}
	if c.Cloud.RequestTimeout <= 0 {
		c.Cloud.RequestTimeout = defaultRequestTimeout
	}
}
