// Copyright 2024 The eventsourced Authors.
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

// Package nats implements the eventsourced EventLog and SnapshotStore
// contracts over a NATS JetStream stream plus a JetStream KV bucket.
package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// Config holds the connection and resource-naming parameters shared by the
// EventLog and SnapshotStore adapters in this package.
type Config struct {
	// URL is the NATS server URL, e.g. nats://localhost:4222.
	URL string

	// Stream names the JetStream stream backing the event log. Its subject
	// hierarchy is {Stream}.{typeName}.{id}.
	Stream string
	// StreamMaxBytes caps the stream's storage; -1 (the default) is
	// unlimited.
	StreamMaxBytes int64
	// StreamReplicas sets the stream's replication factor.
	StreamReplicas int

	// SnapshotBucket names the JetStream KV bucket backing the snapshot
	// store.
	SnapshotBucket string
	// SnapshotBucketMaxBytes caps the bucket's storage; -1 (the default)
	// is unlimited.
	SnapshotBucketMaxBytes int64

	// Setup, when true, idempotently creates (or updates) the stream and
	// bucket on construction.
	Setup bool
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Stream == "" {
		c.Stream = "evts"
	}
	if c.StreamMaxBytes == 0 {
		c.StreamMaxBytes = -1
	}
	if c.StreamReplicas == 0 {
		c.StreamReplicas = 1
	}
	if c.SnapshotBucket == "" {
		c.SnapshotBucket = "snapshots"
	}
	if c.SnapshotBucketMaxBytes == 0 {
		c.SnapshotBucketMaxBytes = -1
	}
}

// Validate checks c for obviously invalid values.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("nats: url is required")
	}
	if c.Stream == "" {
		return fmt.Errorf("nats: stream is required")
	}
	if c.SnapshotBucket == "" {
		return fmt.Errorf("nats: snapshot bucket is required")
	}
	return nil
}
