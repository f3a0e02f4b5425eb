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

// Package binarycodec provides a reference eventsourced.Codec built on a
// length-delimited binary framing (a varint length prefix, identical to
// the prefix used by protobuf's length-delimited wire type), wrapping
// whatever encoding.BinaryMarshaler/BinaryUnmarshaler the Evt and State
// types already provide. It is more compact than codec/textcodec at the
// cost of not being human-readable.
package binarycodec

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// binaryMarshaler is satisfied by any value whose pointer implements the
// standard library's binary marshaling interfaces.
type binaryMarshaler[T any] interface {
	*T
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}

// Codec marshals Evt and State values using their own MarshalBinary
// methods, framed with a varint length prefix. EvtPtr and StatePtr are
// the pointer receiver types (*Evt and *State, respectively) that
// implement encoding.BinaryMarshaler/BinaryUnmarshaler; Go cannot express
// "the pointer to this type parameter implements X" any other way.
type Codec[Evt any, EvtPtr binaryMarshaler[Evt], State any, StatePtr binaryMarshaler[State]] struct{}

// New returns a binarycodec.Codec for the given Evt and State types. The
// two pointer type parameters are inferred from EvtPtr = *Evt and
// StatePtr = *State at the call site, e.g.:
//
//	binarycodec.New[MyEvent, *MyEvent, MyState, *MyState]()
func New[Evt any, EvtPtr binaryMarshaler[Evt], State any, StatePtr binaryMarshaler[State]]() Codec[Evt, EvtPtr, State, StatePtr] {
	return Codec[Evt, EvtPtr, State, StatePtr]{}
}

// frame returns the varint encoding of len(b), the length prefix that the
// callers write in front of b.
func frame(b []byte) []byte {
	return protowire.AppendVarint(make([]byte, 0, len(b)+binary.MaxVarintLen64), uint64(len(b)))
}

// EventToBytes implements eventsourced.Codec.
func (Codec[Evt, EvtPtr, State, StatePtr]) EventToBytes(evt *Evt) ([]byte, error) {
	raw, err := EvtPtr(evt).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("binarycodec: encode event: %w", err)
	}
	return append(frame(raw), raw...), nil
}

// EventFromBytes implements eventsourced.Codec.
func (Codec[Evt, EvtPtr, State, StatePtr]) EventFromBytes(b []byte) (Evt, error) {
	var evt Evt
	raw, err := unframe(b)
	if err != nil {
		return evt, fmt.Errorf("binarycodec: decode event: %w", err)
	}
	if err := EvtPtr(&evt).UnmarshalBinary(raw); err != nil {
		return evt, fmt.Errorf("binarycodec: decode event: %w", err)
	}
	return evt, nil
}

// StateToBytes implements eventsourced.Codec.
func (Codec[Evt, EvtPtr, State, StatePtr]) StateToBytes(state *State) ([]byte, error) {
	raw, err := StatePtr(state).MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("binarycodec: encode state: %w", err)
	}
	return append(frame(raw), raw...), nil
}

// StateFromBytes implements eventsourced.Codec.
func (Codec[Evt, EvtPtr, State, StatePtr]) StateFromBytes(b []byte) (State, error) {
	var state State
	raw, err := unframe(b)
	if err != nil {
		return state, fmt.Errorf("binarycodec: decode state: %w", err)
	}
	if err := StatePtr(&state).UnmarshalBinary(raw); err != nil {
		return state, fmt.Errorf("binarycodec: decode state: %w", err)
	}
	return state, nil
}

// unframe reads the varint length prefix written by frame and returns the
// remaining payload, verifying it is exactly the declared length.
func unframe(b []byte) ([]byte, error) {
	n, m := protowire.ConsumeVarint(b)
	if m < 0 {
		return nil, fmt.Errorf("malformed length prefix")
	}
	rest := b[m:]
	if uint64(len(rest)) != n {
		return nil, fmt.Errorf("length prefix %d does not match payload length %d", n, len(rest))
	}
	return rest, nil
}
