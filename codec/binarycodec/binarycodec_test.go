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

package binarycodec

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type testEvent struct {
	Amount int64
}

func (e *testEvent) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(e.Amount))
	return b, nil
}

func (e *testEvent) UnmarshalBinary(b []byte) error {
	if len(b) != 8 {
		return fmt.Errorf("want 8 bytes, got %d", len(b))
	}
	e.Amount = int64(binary.BigEndian.Uint64(b))
	return nil
}

type testState struct {
	Total int64
}

func (s *testState) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(s.Total))
	return b, nil
}

func (s *testState) UnmarshalBinary(b []byte) error {
	if len(b) != 8 {
		return fmt.Errorf("want 8 bytes, got %d", len(b))
	}
	s.Total = int64(binary.BigEndian.Uint64(b))
	return nil
}

func TestCodec_EventRoundTrip(t *testing.T) {
	c := New[testEvent, *testEvent, testState, *testState]()
	evt := testEvent{Amount: 500}

	b, err := c.EventToBytes(&evt)
	if err != nil {
		t.Fatalf("EventToBytes: %v", err)
	}
	got, err := c.EventFromBytes(b)
	if err != nil {
		t.Fatalf("EventFromBytes: %v", err)
	}
	if diff := cmp.Diff(evt, got); diff != "" {
		t.Errorf("event round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCodec_StateRoundTrip(t *testing.T) {
	c := New[testEvent, *testEvent, testState, *testState]()
	state := testState{Total: 42}

	b, err := c.StateToBytes(&state)
	if err != nil {
		t.Fatalf("StateToBytes: %v", err)
	}
	got, err := c.StateFromBytes(b)
	if err != nil {
		t.Fatalf("StateFromBytes: %v", err)
	}
	if diff := cmp.Diff(state, got); diff != "" {
		t.Errorf("state round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCodec_EventFromBytes_TruncatedLengthPrefixMismatch(t *testing.T) {
	c := New[testEvent, *testEvent, testState, *testState]()
	evt := testEvent{Amount: 7}
	b, err := c.EventToBytes(&evt)
	if err != nil {
		t.Fatalf("EventToBytes: %v", err)
	}

	if _, err := c.EventFromBytes(b[:len(b)-1]); err == nil {
		t.Fatal("expected an error decoding a truncated frame")
	}
}
