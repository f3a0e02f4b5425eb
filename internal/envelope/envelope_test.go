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

package envelope

import "testing"

func TestEncodeDecode_RoundTrip(t *testing.T) {
	b := Encode(42, []byte("hello snapshot"))

	seqNo, state, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if seqNo != 42 {
		t.Errorf("seqNo = %d, want 42", seqNo)
	}
	if string(state) != "hello snapshot" {
		t.Errorf("state = %q, want %q", state, "hello snapshot")
	}
}

func TestEncodeDecode_EmptyState(t *testing.T) {
	b := Encode(1, nil)

	seqNo, state, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if seqNo != 1 {
		t.Errorf("seqNo = %d, want 1", seqNo)
	}
	if len(state) != 0 {
		t.Errorf("state = %q, want empty", state)
	}
}

func TestDecode_MissingFields(t *testing.T) {
	if _, _, err := Decode(nil); err == nil {
		t.Fatal("expected an error decoding an empty envelope")
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, _, err := Decode([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected an error decoding garbage bytes")
	}
}
