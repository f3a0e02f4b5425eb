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

import (
	"errors"
	"fmt"
)

// Sentinel error kinds surfaced by EventLog and SnapshotStore implementations.
//
// Adapters should wrap one of these with fmt.Errorf("...: %w", ErrX) so that
// callers can use errors.Is against the sentinel while still getting a
// descriptive message.
var (
	// ErrConflict indicates an optimistic-concurrency append failed because
	// the caller's expected last entity seq_no no longer matched the log.
	ErrConflict = errors.New("eventsourced: conflicting append")

	// ErrConnectivity indicates a transient failure talking to the backing
	// store. Read paths may retry internally; writes never are.
	ErrConnectivity = errors.New("eventsourced: connectivity error")

	// ErrCodec indicates a user-supplied Codec failed to encode or decode a
	// value.
	ErrCodec = errors.New("eventsourced: codec error")

	// ErrCorruption indicates the backing store returned data that violates
	// an invariant the runtime relies on (a zero seq_no, an undecodable
	// envelope, or a snapshot newer than the log's last seq_no).
	ErrCorruption = errors.New("eventsourced: corrupt store state")

	// ErrSeqNo indicates a seq_no stored or requested was invalid (zero or
	// negative).
	ErrSeqNo = errors.New("eventsourced: invalid seq_no")

	// ErrZeroSeqNo is returned by NewSeqNo when given a non-positive value.
	ErrZeroSeqNo = fmt.Errorf("%w: seq_no must be strictly positive", ErrSeqNo)

	// ErrSeqNoOverflow is returned by SeqNo.Next when incrementing would
	// exceed the maximum representable seq_no.
	ErrSeqNoOverflow = fmt.Errorf("%w: seq_no overflow", ErrSeqNo)

	// ErrAlreadyRunning is returned by Spawn when the (typeName, id) pair
	// already has an active command loop registered in this process.
	ErrAlreadyRunning = errors.New("eventsourced: entity already has an active loop")

	// ErrLoopTerminated is returned by EntityHandle.Submit when the command
	// loop has already terminated (closed or fatally errored) and cannot
	// accept the command.
	ErrLoopTerminated = errors.New("eventsourced: command loop terminated")
)

// SpawnErrorKind classifies the step of the spawn protocol that failed.
type SpawnErrorKind int

const (
	// SpawnErrorUnknown is the zero value and should never be observed.
	SpawnErrorUnknown SpawnErrorKind = iota
	// SpawnErrorSnapshotLoad indicates SnapshotStore.Load failed.
	SpawnErrorSnapshotLoad
	// SpawnErrorLastSeqNo indicates EventLog.LastSeqNo failed.
	SpawnErrorLastSeqNo
	// SpawnErrorInvalidLastSeqNo indicates the loaded snapshot's seq_no
	// exceeds the log's last seq_no for the entity — a corrupted pair.
	SpawnErrorInvalidLastSeqNo
	// SpawnErrorReplay indicates the replay stream failed while folding
	// events between the snapshot and the log tail.
	SpawnErrorReplay
	// SpawnErrorAlreadyRunning indicates the entity already has an active
	// command loop in this process.
	SpawnErrorAlreadyRunning
)

func (k SpawnErrorKind) String() string {
	switch k {
	case SpawnErrorSnapshotLoad:
		return "snapshot load failed"
	case SpawnErrorLastSeqNo:
		return "last seq_no lookup failed"
	case SpawnErrorInvalidLastSeqNo:
		return "snapshot seq_no exceeds log's last seq_no"
	case SpawnErrorReplay:
		return "replay failed"
	case SpawnErrorAlreadyRunning:
		return "entity already running"
	default:
		return "unknown spawn error"
	}
}

// SpawnError is returned by Spawn when the entity could not be brought up.
// None of the SpawnErrorKind variants leave a running command loop behind.
type SpawnError struct {
	Kind SpawnErrorKind
	Err  error
}

func (e *SpawnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("eventsourced: spawn failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("eventsourced: spawn failed (%s)", e.Kind)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func newSpawnError(kind SpawnErrorKind, err error) *SpawnError {
	return &SpawnError{Kind: kind, Err: err}
}
