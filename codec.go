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

// Codec converts between an entity's event/state types and the byte slices
// that the EventLog and SnapshotStore persist. Implementations MUST be
// deterministic and round-trip-safe for every value the entity's handlers
// can produce: EventFromBytes(EventToBytes(&e)) == e for all e.
//
// A Codec is a plain value, not baked into any type, so the same runtime
// can host entities using different wire encodings (see codec/textcodec
// and codec/binarycodec for reference implementations).
type Codec[Evt, State any] interface {
	// EventToBytes serializes an event for appending to the log.
	EventToBytes(evt *Evt) ([]byte, error)
	// EventFromBytes deserializes an event read back from the log.
	EventFromBytes(b []byte) (Evt, error)
	// StateToBytes serializes a state value for a snapshot.
	StateToBytes(state *State) ([]byte, error)
	// StateFromBytes deserializes a state value loaded from a snapshot.
	StateFromBytes(b []byte) (State, error)
}
