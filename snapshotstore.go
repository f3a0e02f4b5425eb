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

package eventsourced

import "context"

// SnapshotStore persists the latest (seq_no, state) pair for an entity,
// keyed by id. It provides no ordering guarantees across ids, and loss or
// staleness of a snapshot is never fatal to the runtime: Spawn falls back
// to a full replay from SeqNo 1 when Load returns ok == false.
type SnapshotStore[Id, State any] interface {
	// Save atomically overwrites the persisted snapshot for id.
	Save(ctx context.Context, id Id, seqNo SeqNo, state State) error

	// Load returns the most recently saved snapshot for id, or
	// ok == false if none has ever been saved.
	Load(ctx context.Context, id Id) (seqNo SeqNo, state State, ok bool, err error)
}
