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
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/jrudolph/eventsourced"
	"github.com/jrudolph/eventsourced/internal/envelope"
)

// stateCodec is the slice of eventsourced.Codec that SnapshotStore needs.
type stateCodec[State any] interface {
	StateToBytes(*State) ([]byte, error)
	StateFromBytes([]byte) (State, error)
}

// SnapshotStore implements eventsourced.SnapshotStore[Id, State] over a
// JetStream KV bucket. Values are the shared internal/envelope wire format
// so the same bytes would also be readable by the blob adapter.
type SnapshotStore[Id, State any] struct {
	nc    *nats.Conn
	kv    nats.KeyValue
	codec stateCodec[State]
}

// NewSnapshotStore connects to NATS and, if cfg.Setup is true, provisions
// the KV bucket.
func NewSnapshotStore[Id, State any](cfg Config, codec stateCodec[State]) (*SnapshotStore[Id, State], error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	kv, err := js.KeyValue(cfg.SnapshotBucket)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: open snapshot bucket %s: %w", cfg.SnapshotBucket, err)
	}

	return &SnapshotStore[Id, State]{nc: nc, kv: kv, codec: codec}, nil
}

// Close closes the underlying NATS connection.
func (s *SnapshotStore[Id, State]) Close() {
	s.nc.Close()
}

// Save implements eventsourced.SnapshotStore.
func (s *SnapshotStore[Id, State]) Save(ctx context.Context, id Id, seqNo eventsourced.SeqNo, state State) error {
	raw, err := s.codec.StateToBytes(&state)
	if err != nil {
		return fmt.Errorf("%w: %v", eventsourced.ErrCodec, err)
	}

	key, err := kvKey(id)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(key, envelope.Encode(uint64(seqNo.Int64()), raw)); err != nil {
		return mapReadErr(fmt.Sprintf("snapshot save %s", key), err)
	}
	return nil
}

// Load implements eventsourced.SnapshotStore.
func (s *SnapshotStore[Id, State]) Load(ctx context.Context, id Id) (eventsourced.SeqNo, State, bool, error) {
	var zero State

	key, err := kvKey(id)
	if err != nil {
		return eventsourced.SeqNo{}, zero, false, err
	}

	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return eventsourced.SeqNo{}, zero, false, nil
		}
		return eventsourced.SeqNo{}, zero, false, mapReadErr(fmt.Sprintf("snapshot load %s", key), err)
	}

	rawSeq, rawState, err := envelope.Decode(entry.Value())
	if err != nil {
		return eventsourced.SeqNo{}, zero, false, fmt.Errorf("%w: %v", eventsourced.ErrCorruption, err)
	}
	seqNo, err := eventsourced.NewSeqNo(int64(rawSeq))
	if err != nil {
		return eventsourced.SeqNo{}, zero, false, fmt.Errorf("%w: %v", eventsourced.ErrCorruption, err)
	}

	state, err := s.codec.StateFromBytes(rawState)
	if err != nil {
		return eventsourced.SeqNo{}, zero, false, fmt.Errorf("%w: %v", eventsourced.ErrCodec, err)
	}

	return seqNo, state, true, nil
}

// kvKey renders id as a JetStream KV key, which forbids '.' and a handful
// of other subject-structuring characters; entity ids in this codebase are
// expected to already be KV-safe (numeric or simple token ids), so this
// only guards against the empty string.
func kvKey(id any) (string, error) {
	k := idString(id)
	if k == "" {
		return "", fmt.Errorf("%w: empty entity id", eventsourced.ErrCorruption)
	}
	return k, nil
}
