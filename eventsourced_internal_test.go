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
	"context"
	"fmt"
	"sync"
)

// fakeLog is an in-memory EventLog[string] used by this package's own
// tests, exercising the contract's consistency rules without any backing
// store.
type fakeLog struct {
	mu     sync.Mutex
	events map[string][][]byte // key = typeName+"/"+id
	subs   map[string][]chan StreamItem
}

func newFakeLog() *fakeLog {
	return &fakeLog{
		events: make(map[string][][]byte),
		subs:   make(map[string][]chan StreamItem),
	}
}

func fakeKey(typeName string, id string) string { return typeName + "/" + id }

func (l *fakeLog) Append(ctx context.Context, id string, typeName string, payload []byte, expected *SeqNo) (SeqNo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := fakeKey(typeName, id)
	cur := l.events[key]

	if expected == nil {
		if len(cur) != 0 {
			return SeqNo{}, fmt.Errorf("%w: %s already has events", ErrConflict, key)
		}
	} else {
		if int64(len(cur)) != expected.Int64() {
			return SeqNo{}, fmt.Errorf("%w: expected %s, got %d events for %s", ErrConflict, expected, len(cur), key)
		}
	}

	l.events[key] = append(cur, payload)
	newSeq, err := NewSeqNo(int64(len(l.events[key])))
	if err != nil {
		return SeqNo{}, err
	}

	item := StreamItem{SeqNo: newSeq, Payload: payload}
	for _, ch := range l.subs[key] {
		ch <- item
	}
	for _, ch := range l.subs[typeName] {
		ch <- item
	}

	return newSeq, nil
}

func (l *fakeLog) LastSeqNo(ctx context.Context, id string, typeName string) (SeqNo, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.events[fakeKey(typeName, id)])
	if n == 0 {
		return SeqNo{}, false, nil
	}
	seq, err := NewSeqNo(int64(n))
	return seq, true, err
}

func (l *fakeLog) EventsByID(ctx context.Context, id string, typeName string, from SeqNo) *EventStream {
	l.mu.Lock()
	key := fakeKey(typeName, id)
	existing := append([][]byte(nil), l.events[key]...)
	ch := make(chan StreamItem, 16)
	l.subs[key] = append(l.subs[key], ch)
	l.mu.Unlock()

	out := make(chan StreamItem)
	go func() {
		defer close(out)
		delivered := from.Int64() - 1 // number already sent before from
		for i, payload := range existing {
			seq := int64(i + 1)
			if seq < from.Int64() {
				continue
			}
			select {
			case out <- StreamItem{SeqNo: mustSeqNo(seq), Payload: payload}:
				delivered = seq
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case item, ok := <-ch:
				if !ok {
					return
				}
				if item.SeqNo.Int64() <= delivered {
					continue
				}
				select {
				case out <- item:
					delivered = item.SeqNo.Int64()
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return NewEventStream(out)
}

func (l *fakeLog) EventsByType(ctx context.Context, typeName string, from SeqNo) *EventStream {
	// Only used by this package's own tests for the type-fanout scenario,
	// which spans a single type with a handful of ids. Events already in the
	// log are merged per id (in map order across ids) and numbered by their
	// position in that merge; events appended after the stream is opened
	// are forwarded in append order with the per-entity seq_no Append gave
	// them, and are not filtered by from.
	l.mu.Lock()
	live := make(chan StreamItem, 16)
	l.subs[typeName] = append(l.subs[typeName], live)
	var all []StreamItem
	var globalSeq int64
	for key, payloads := range l.events {
		if len(key) <= len(typeName) || key[:len(typeName)+1] != typeName+"/" {
			continue
		}
		for _, p := range payloads {
			globalSeq++
			all = append(all, StreamItem{SeqNo: mustSeqNo(globalSeq), Payload: p})
		}
	}
	l.mu.Unlock()

	out := make(chan StreamItem)
	go func() {
		defer close(out)
		for _, item := range all {
			if item.SeqNo.Less(from) {
				continue
			}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case item := <-live:
				out <- item
			case <-ctx.Done():
				return
			}
		}
	}()
	return NewEventStream(out)
}

func mustSeqNo(n int64) SeqNo {
	s, err := NewSeqNo(n)
	if err != nil {
		panic(err)
	}
	return s
}

// fakeSnapshots is an in-memory SnapshotStore[string, int] used by this
// package's own tests, where an entity's state is modeled as a plain int.
type fakeSnapshots struct {
	mu   sync.Mutex
	seq  map[string]SeqNo
	val  map[string]int
	fail bool
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{seq: make(map[string]SeqNo), val: make(map[string]int)}
}

func (s *fakeSnapshots) Save(ctx context.Context, id string, seqNo SeqNo, state int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("fake snapshot save failure")
	}
	s.seq[id] = seqNo
	s.val[id] = state
	return nil
}

func (s *fakeSnapshots) Load(ctx context.Context, id string) (SeqNo, int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.seq[id]
	return seq, s.val[id], ok, nil
}

// intCodec encodes an int as its decimal string, the simplest possible
// Codec[int, int] for the tests in this package.
type intCodec struct{}

func (intCodec) EventToBytes(evt *int) ([]byte, error) {
	return []byte(fmt.Sprintf("%d", *evt)), nil
}

func (intCodec) EventFromBytes(b []byte) (int, error) {
	var n int
	_, err := fmt.Sscanf(string(b), "%d", &n)
	return n, err
}

func (intCodec) StateToBytes(state *int) ([]byte, error) {
	return []byte(fmt.Sprintf("%d", *state)), nil
}

func (intCodec) StateFromBytes(b []byte) (int, error) {
	var n int
	_, err := fmt.Sscanf(string(b), "%d", &n)
	return n, err
}

// accumulator is an EventSourced[string, int, int, int] whose command
// handler appends the submitted int as the event, and whose event handler
// adds it to the running state — i.e. a trivial sum accumulator.
type accumulator struct{}

func (accumulator) TypeName() string { return "simple" }

func (accumulator) HandleCommand(id string, state int, cmd int) (int, error) {
	return cmd, nil
}

func (accumulator) HandleEvent(state int, evt int) int {
	return state + evt
}
