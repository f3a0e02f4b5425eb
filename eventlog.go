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

// EventLog is the append-only, per-entity-ordered persistence contract that
// the command loop appends to and that downstream readers replay from.
//
// Implementations MUST be safe for concurrent use by many entities sharing
// one EventLog instance. See storage/nats and storage/postgres for
// reference implementations.
type EventLog[Id any] interface {
	// Append persists payload as the next event for (typeName, id).
	//
	// If expected is nil, the append MUST be rejected unless this is the
	// first event ever appended for (typeName, id). Otherwise the log MUST
	// atomically check that the current last entity seq_no equals
	// *expected before appending, failing with an error wrapping
	// ErrConflict on mismatch.
	//
	// On success, Append returns the per-entity seq_no assigned to the new
	// event (not a log-global sequence, even for adapters that only have a
	// global counter internally).
	Append(ctx context.Context, id Id, typeName string, payload []byte, expected *SeqNo) (SeqNo, error)

	// LastSeqNo returns the highest seq_no ever appended for (typeName,
	// id), or ok == false if none has been appended yet.
	LastSeqNo(ctx context.Context, id Id, typeName string) (seqNo SeqNo, ok bool, err error)

	// EventsByID returns a live stream of events for (typeName, id)
	// starting at from, inclusive. The stream does not terminate on its
	// own: once the existing tail is exhausted it waits for new events and
	// continues to emit them in order. Cancel ctx to release the stream's
	// resources.
	EventsByID(ctx context.Context, id Id, typeName string, from SeqNo) *EventStream

	// EventsByType is like EventsByID but fans out across every id of
	// typeName, ordered by the log's authoritative (global) sequence. It
	// is used by downstream projections; the command loop never calls it.
	EventsByType(ctx context.Context, typeName string, from SeqNo) *EventStream
}

// StreamItem is one element of an EventStream: either a successfully read
// event at SeqNo, or a terminal error.
type StreamItem struct {
	SeqNo   SeqNo
	Payload []byte
	Err     error
}

// EventStream is a cancellable, ordered channel of StreamItems produced by
// EventLog.EventsByID/EventsByType. The producing goroutine closes C after
// sending a final item with Err != nil, or when the ctx supplied to the
// call that created the stream is cancelled.
type EventStream struct {
	C <-chan StreamItem
}

// NewEventStream wraps an existing channel as an EventStream. Adapters use
// this to hand back the channel their internal goroutine writes to.
func NewEventStream(c <-chan StreamItem) *EventStream {
	return &EventStream{C: c}
}
