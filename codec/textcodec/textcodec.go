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

// Package textcodec provides a reference eventsourced.Codec built on
// encoding/json. It is self-describing (field names travel with the
// value) and convenient for debugging a log's raw contents, at the cost
// of being bulkier on the wire than codec/binarycodec.
package textcodec

import (
	"encoding/json"
	"fmt"

	"github.com/jrudolph/eventsourced"
)

// Codec marshals Evt and State values with encoding/json. Both types must
// round-trip cleanly through json.Marshal/json.Unmarshal: exported fields
// only, and no map-valued fields if byte-for-byte determinism is required
// (Go's json package sorts map keys, so this holds in practice for
// map[string]T, but is not guaranteed by the json package's contract).
type Codec[Evt, State any] struct{}

// New returns a textcodec.Codec for the given Evt and State types.
func New[Evt, State any]() Codec[Evt, State] {
	return Codec[Evt, State]{}
}

var _ eventsourced.Codec[struct{}, struct{}] = Codec[struct{}, struct{}]{}

// EventToBytes implements eventsourced.Codec.
func (Codec[Evt, State]) EventToBytes(evt *Evt) ([]byte, error) {
	b, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("textcodec: encode event: %w", err)
	}
	return b, nil
}

// EventFromBytes implements eventsourced.Codec.
func (Codec[Evt, State]) EventFromBytes(b []byte) (Evt, error) {
	var evt Evt
	if err := json.Unmarshal(b, &evt); err != nil {
		return evt, fmt.Errorf("textcodec: decode event: %w", err)
	}
	return evt, nil
}

// StateToBytes implements eventsourced.Codec.
func (Codec[Evt, State]) StateToBytes(state *State) ([]byte, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("textcodec: encode state: %w", err)
	}
	return b, nil
}

// StateFromBytes implements eventsourced.Codec.
func (Codec[Evt, State]) StateFromBytes(b []byte) (State, error) {
	var state State
	if err := json.Unmarshal(b, &state); err != nil {
		return state, fmt.Errorf("textcodec: decode state: %w", err)
	}
	return state, nil
}
