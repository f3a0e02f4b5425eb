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

package nats

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// connect opens a NATS connection and its JetStream context, and if
// cfg.Setup is true, idempotently provisions the stream and KV bucket this
// package's adapters depend on.
func connect(cfg Config) (*nats.Conn, nats.JetStreamContext, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("eventsourced"))
	if err != nil {
		return nil, nil, fmt.Errorf("nats: connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("nats: jetstream context: %w", err)
	}

	if cfg.Setup {
		if err := setup(js, cfg); err != nil {
			nc.Close()
			return nil, nil, err
		}
	}

	return nc, js, nil
}

func setup(js nats.JetStreamContext, cfg Config) error {
	streamCfg := &nats.StreamConfig{
		Name:        cfg.Stream,
		Description: "eventsourced event log",
		Subjects:    []string{fmt.Sprintf("%s.>", cfg.Stream)},
		MaxBytes:    cfg.StreamMaxBytes,
		Replicas:    cfg.StreamReplicas,
		AllowDirect: true,
		DenyDelete:  true,
		DenyPurge:   true,
	}
	if _, err := js.AddStream(streamCfg); err != nil {
		if _, uerr := js.UpdateStream(streamCfg); uerr != nil {
			return fmt.Errorf("nats: provision stream %s: %w", cfg.Stream, err)
		}
	}

	if _, err := js.KeyValue(cfg.SnapshotBucket); err != nil {
		if _, cerr := js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:   cfg.SnapshotBucket,
			MaxBytes: cfg.SnapshotBucketMaxBytes,
		}); cerr != nil {
			return fmt.Errorf("nats: provision snapshot bucket %s: %w", cfg.SnapshotBucket, cerr)
		}
	}

	return nil
}

func subject(stream, typeName, idStr string) string {
	return fmt.Sprintf("%s.%s.%s", stream, typeName, idStr)
}
