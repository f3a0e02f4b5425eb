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

// Package eventsourced turns a user-supplied domain type into a live,
// addressable entity whose state is durably reconstructable from a
// persistent log of events, optionally accelerated by periodic state
// snapshots.
//
// The three load-bearing concerns are bound together here: Spawn restores
// an entity from a SnapshotStore and the tail of an EventLog, then launches
// a single goroutine (the "command loop") which serializes HandleCommand
// calls, appends the resulting events with optimistic concurrency, and
// folds them into the in-memory state with HandleEvent.
package eventsourced

import (
	"context"
	"fmt"
	"sync"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"k8s.io/klog/v2"

	"github.com/jrudolph/eventsourced/internal/registry"
)

// EventSourced is the capability set a domain type provides: a type name
// used to address its stream in the log, a command handler that either
// rejects a command or produces exactly one event, and an event handler
// that folds an event into state.
//
// HandleCommand returning a non-nil error rejects the command: the
// in-memory state is left untouched and the error is returned verbatim to
// the submitter. HandleEvent is never expected to fail — it is a pure
// fold, typically a switch over the event's concrete type.
type EventSourced[Id, Cmd, Evt, State any] interface {
	// TypeName identifies this entity kind across processes, as the
	// type_name half of the (type_name, id) identity.
	TypeName() string
	// HandleCommand evaluates cmd against state for entity id, producing
	// either the single event to append or a domain error.
	HandleCommand(id Id, state State, cmd Cmd) (Evt, error)
	// HandleEvent folds evt into state, returning the new state.
	HandleEvent(state State, evt Evt) State
}

// globalRegistry is the single process-wide registry of active loops,
// shared by every call to Spawn. Keying registries by EventLog instance is
// not possible since EventLog values aren't comparable in general, and
// at-most-one-active-loop is a property of the process, not of any one
// log/store pair.
var globalRegistry = registry.New()

// cmdEnvelope is one message flowing through an entity's command channel.
type cmdEnvelope[Cmd any] struct {
	ctx   context.Context
	cmd   Cmd
	reply chan error
}

// EntityHandle is the caller's handle to a live entity's command loop.
// It is safe for concurrent use by multiple goroutines.
type EntityHandle[Cmd any] struct {
	cmds chan cmdEnvelope[Cmd]
	done chan struct{}

	closeOnce sync.Once
}

// Submit enqueues cmd for processing by the entity's command loop and
// waits for the outcome.
//
// The first returned error is the domain error produced by HandleCommand
// (nil if the command was accepted); the second is a transport-level
// error indicating the command could not be delivered or the loop
// terminated before producing a reply (nil on any normal completion,
// accepted or rejected).
func (h *EntityHandle[Cmd]) Submit(ctx context.Context, cmd Cmd) (domainErr error, transportErr error) {
	reply := make(chan error, 1)
	env := cmdEnvelope[Cmd]{ctx: ctx, cmd: cmd, reply: reply}

	// Close may already have closed h.cmds, and a send on a closed channel
	// panics; report that case as a terminated loop.
	defer func() {
		if recover() != nil {
			domainErr, transportErr = nil, ErrLoopTerminated
		}
	}()

	select {
	case h.cmds <- env:
	case <-h.done:
		return nil, ErrLoopTerminated
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case err := <-reply:
		return err, nil
	case <-h.done:
		return nil, ErrLoopTerminated
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new commands, waits for in-flight ones to drain,
// and lets the command loop exit. It is idempotent. It does not itself
// guarantee the loop has not already terminated due to a fatal append
// error; in that case Close simply observes the loop is already done.
func (h *EntityHandle[Cmd]) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		close(h.cmds)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn restores entity id of the kind described by handlers from
// snapshots and log, then launches its command loop and returns a handle
// to it.
//
// Spawn enforces at most one active command loop per entity in this
// process: if id already has an active loop, Spawn fails with a
// SpawnError wrapping ErrAlreadyRunning without disturbing the existing
// loop.
func Spawn[Id comparable, Cmd, Evt, State any](
	ctx context.Context,
	id Id,
	handlers EventSourced[Id, Cmd, Evt, State],
	log EventLog[Id],
	snapshots SnapshotStore[Id, State],
	codec Codec[Evt, State],
	opts ...Option,
) (*EntityHandle[Cmd], error) {
	o := defaultSpawnOptions()
	for _, opt := range opts {
		opt(&o)
	}

	typeName := handlers.TypeName()
	key := registry.Key(typeName, id)
	if !globalRegistry.Register(key) {
		return nil, newSpawnError(SpawnErrorAlreadyRunning, fmt.Errorf("%w: %s", ErrAlreadyRunning, key))
	}
	ok := false
	defer func() {
		if !ok {
			globalRegistry.Deregister(key)
		}
	}()

	if pc, isPollConfigurable := log.(PollIntervalConfigurable); isPollConfigurable && o.pollInterval > 0 {
		pc.SetPollInterval(o.pollInterval)
	}

	snapSeq, snapState, hasSnap, err := snapshots.Load(ctx, id)
	if err != nil {
		return nil, newSpawnError(SpawnErrorSnapshotLoad, err)
	}

	logLast, hasLog, err := log.LastSeqNo(ctx, id, typeName)
	if err != nil {
		return nil, newSpawnError(SpawnErrorLastSeqNo, err)
	}

	if hasSnap {
		if !hasLog || logLast.Less(snapSeq) {
			return nil, newSpawnError(SpawnErrorInvalidLastSeqNo,
				fmt.Errorf("%w: snapshot seq_no %s exceeds log's last seq_no for %s", ErrCorruption, snapSeq, key))
		}
	}

	state := snapState
	var lastSeqNo *SeqNo
	if hasLog {
		ls := logLast
		lastSeqNo = &ls
	}

	needsReplay := hasLog && (!hasSnap || snapSeq.Less(logLast))
	if needsReplay {
		var from SeqNo
		if hasSnap {
			from, err = snapSeq.Next()
			if err != nil {
				return nil, newSpawnError(SpawnErrorReplay, err)
			}
		} else {
			from = MinSeqNo()
		}

		replayCtx, cancelReplay := context.WithCancel(ctx)
		stream := log.EventsByID(replayCtx, id, typeName, from)
		state, err = replayTail(stream, logLast, state, codec, handlers)
		cancelReplay()
		if err != nil {
			return nil, newSpawnError(SpawnErrorReplay, err)
		}
	}

	ok = true

	h := &EntityHandle[Cmd]{
		cmds: make(chan cmdEnvelope[Cmd], o.cmdBuffer),
		done: make(chan struct{}),
	}

	go runLoop(key, typeName, id, handlers, log, snapshots, codec, o, state, lastSeqNo, h)

	return h, nil
}

// replayTail folds events from stream into state until the event at
// logLast (inclusive) has been applied, then returns. It does not consume
// events emitted after logLast even if the underlying stream is live and
// would otherwise keep delivering them — the caller cancels the stream's
// context immediately after this returns.
func replayTail[Id, Cmd, Evt, State any](
	stream *EventStream,
	logLast SeqNo,
	state State,
	codec Codec[Evt, State],
	handlers EventSourced[Id, Cmd, Evt, State],
) (State, error) {
	for item := range stream.C {
		if item.Err != nil {
			return state, item.Err
		}
		evt, err := codec.EventFromBytes(item.Payload)
		if err != nil {
			return state, fmt.Errorf("%w: %v", ErrCodec, err)
		}
		state = handlers.HandleEvent(state, evt)
		if !item.SeqNo.Less(logLast) {
			// item.SeqNo >= logLast; since the log never skips seq_nos
			// this must be exactly logLast.
			return state, nil
		}
	}
	return state, nil
}

// runLoop is the single goroutine owning id's in-memory state. It reads
// cmdEnvelopes off h.cmds in order until the channel is closed (normal
// Close) or a fatal append error occurs (abnormal termination), at which
// point it deregisters id from the process-wide entity registry and
// closes h.done.
func runLoop[Id, Cmd, Evt, State any](
	key string,
	typeName string,
	id Id,
	handlers EventSourced[Id, Cmd, Evt, State],
	log EventLog[Id],
	snapshots SnapshotStore[Id, State],
	codec Codec[Evt, State],
	o spawnOptions,
	state State,
	lastSeqNo *SeqNo,
	h *EntityHandle[Cmd],
) {
	defer close(h.done)
	defer globalRegistry.Deregister(key)

	appliedCount := 0
	throughput := movingaverage.New(30)
	lastTick := time.Now()

	for env := range h.cmds {
		evt, cmdErr := handlers.HandleCommand(id, state, env.cmd)
		if cmdErr != nil {
			env.reply <- cmdErr
			continue
		}

		payload, err := codec.EventToBytes(&evt)
		if err != nil {
			env.reply <- fmt.Errorf("%w: %v", ErrCodec, err)
			continue
		}

		ctx := env.ctx
		if ctx == nil {
			ctx = context.Background()
		}

		newSeq, err := log.Append(ctx, id, typeName, payload, lastSeqNo)
		if err != nil {
			klog.Errorf("eventsourced: fatal append error for %s, terminating loop: %v", key, err)
			return
		}

		lastSeqNo = &newSeq
		state = handlers.HandleEvent(state, evt)
		appliedCount++

		now := time.Now()
		throughput.Add(now.Sub(lastTick).Seconds())
		lastTick = now
		if appliedCount%20 == 0 {
			if avg := throughput.Avg(); avg > 0 {
				klog.V(2).Infof("eventsourced: %s applied seq_no %s (applied_count=%d, ~%.1f cmds/s)", key, newSeq, appliedCount, 1/avg)
			}
		}

		if o.snapshotEvery > 0 && appliedCount%o.snapshotEvery == 0 {
			if err := snapshots.Save(ctx, id, newSeq, state); err != nil {
				// Non-fatal: the snapshot is a cache, and the log
				// remains authoritative.
				klog.Warningf("eventsourced: snapshot save failed for %s at seq_no %s: %v", key, newSeq, err)
			}
		}

		env.reply <- nil
	}
}
