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

// Package envelope implements the two-field wire record shared by the NATS
// KV and blob SnapshotStore adapters: { seq_no: uint64 field 1, state: bytes
// field 2 }. The PostgreSQL adapter keeps seq_no and state in separate
// columns and does not use it. It is encoded with raw protobuf wire primitives rather than a
// generated message, since the shape is fixed and tiny.
package envelope

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	seqNoField = protowire.Number(1)
	stateField = protowire.Number(2)
)

// Encode serializes (seqNo, state) as the snapshot wire envelope.
func Encode(seqNo uint64, state []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, seqNoField, protowire.VarintType)
	b = protowire.AppendVarint(b, seqNo)
	b = protowire.AppendTag(b, stateField, protowire.BytesType)
	b = protowire.AppendBytes(b, state)
	return b
}

// Decode parses the snapshot wire envelope produced by Encode. A decode
// failure is the adapters' CorruptionError case.
func Decode(b []byte) (seqNo uint64, state []byte, err error) {
	var haveSeq, haveState bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, fmt.Errorf("envelope: malformed tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case seqNoField:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("envelope: malformed seq_no field: %w", protowire.ParseError(n))
			}
			seqNo = v
			haveSeq = true
			b = b[n:]
		case stateField:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, nil, fmt.Errorf("envelope: malformed state field: %w", protowire.ParseError(n))
			}
			state = append([]byte(nil), v...)
			haveState = true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, nil, fmt.Errorf("envelope: malformed unknown field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !haveSeq {
		return 0, nil, fmt.Errorf("envelope: missing seq_no field")
	}
	if !haveState {
		return 0, nil, fmt.Errorf("envelope: missing state field")
	}
	return seqNo, state, nil
}
