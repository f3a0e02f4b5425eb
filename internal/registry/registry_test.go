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

package registry

import "testing"

func TestKey(t *testing.T) {
	if got, want := Key("counter", "u1"), "counter/u1"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	if got, want := Key("counter", 42), "counter/42"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestRegister_RejectsDuplicate(t *testing.T) {
	r := New()
	if !r.Register("a") {
		t.Fatal("first Register should succeed")
	}
	if r.Register("a") {
		t.Fatal("second Register of the same key should fail")
	}
	if !r.Active("a") {
		t.Error("a should be active")
	}
	if got, want := r.Len(), 1; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
}

func TestDeregister_AllowsReRegister(t *testing.T) {
	r := New()
	if !r.Register("b") {
		t.Fatal("Register should succeed")
	}
	r.Deregister("b")
	if r.Active("b") {
		t.Error("b should no longer be active")
	}
	if !r.Register("b") {
		t.Error("Register after Deregister should succeed")
	}
}
