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

package nats

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	retry "github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go"

	"github.com/jrudolph/eventsourced"
)

// entitySeqHdr stamps each published message with the per-entity,
// contiguous seq_no the command loop expects EventLog to hand back. It is
// distinct from JetStream's own stream-global sequence (exposed via
// msg.Metadata().Sequence.Stream), which advances across every subject in
// the stream and serves as the CAS token; Append, LastSeqNo and EventsByID
// never return it (EventsByType does, see there).
const entitySeqHdr = "Eventsourced-Seq-No"

// EventLog implements eventsourced.EventLog[Id] over a JetStream stream
// with one subject per entity, tagging each message with its per-entity
// seq_no in the entitySeqHdr header.
type EventLog[Id any] struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream string
}

// New connects to NATS and, if cfg.Setup is true, provisions the stream.
func New[Id any](cfg Config) (*EventLog[Id], error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &EventLog[Id]{nc: nc, js: js, stream: cfg.Stream}, nil
}

// Close drains and closes the underlying NATS connection.
func (l *EventLog[Id]) Close() {
	l.nc.Close()
}

// lastForSubject returns the last message published on subject, its
// JetStream stream-global sequence (the CAS token), and its entity seq_no
// (from entitySeqHdr), or ok == false if the subject has no messages yet.
func (l *EventLog[Id]) lastForSubject(subj string) (globalSeq uint64, entitySeq eventsourced.SeqNo, ok bool, err error) {
	err = retry.Do(func() error {
		msg, gerr := l.js.GetLastMsg(l.stream, subj)
		if gerr != nil {
			if errors.Is(gerr, nats.ErrMsgNotFound) {
				return nil
			}
			return gerr
		}
		ok = true
		globalSeq = msg.Sequence
		if raw := msg.Header.Get(entitySeqHdr); raw != "" {
			n, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				return fmt.Errorf("%w: malformed %s header %q", eventsourced.ErrCorruption, entitySeqHdr, raw)
			}
			entitySeq, perr = eventsourced.NewSeqNo(n)
			if perr != nil {
				return fmt.Errorf("%w: %v", eventsourced.ErrCorruption, perr)
			}
		}
		return nil
	}, retry.Attempts(3))
	if err != nil {
		return 0, eventsourced.SeqNo{}, false, mapReadErr("get last message for subject", err)
	}
	return globalSeq, entitySeq, ok, nil
}

// Append implements eventsourced.EventLog.
func (l *EventLog[Id]) Append(ctx context.Context, id Id, typeName string, payload []byte, expected *eventsourced.SeqNo) (eventsourced.SeqNo, error) {
	idStr := idString(id)
	subj := subject(l.stream, typeName, idStr)
	key := fmt.Sprintf("%s/%s", typeName, idStr)

	globalSeq, lastEntitySeq, hasLast, err := l.lastForSubject(subj)
	if err != nil {
		return eventsourced.SeqNo{}, err
	}

	var newSeq eventsourced.SeqNo
	if expected == nil {
		if hasLast {
			return eventsourced.SeqNo{}, fmt.Errorf("%w: %s already has events", eventsourced.ErrConflict, key)
		}
		newSeq = eventsourced.MinSeqNo()
	} else {
		if !hasLast || lastEntitySeq.Compare(*expected) != 0 {
			return eventsourced.SeqNo{}, fmt.Errorf("%w: expected seq_no %s for %s", eventsourced.ErrConflict, expected, key)
		}
		newSeq, err = expected.Next()
		if err != nil {
			return eventsourced.SeqNo{}, err
		}
	}

	msg := nats.NewMsg(subj)
	msg.Data = payload
	msg.Header.Set(entitySeqHdr, newSeq.String())

	ack, err := l.js.PublishMsg(msg,
		nats.Context(ctx),
		nats.ExpectStream(l.stream),
		nats.ExpectLastSequencePerSubject(globalSeq),
	)
	if err != nil {
		return eventsourced.SeqNo{}, mapPublishErr(key, err)
	}
	_ = ack

	return newSeq, nil
}

// LastSeqNo implements eventsourced.EventLog.
func (l *EventLog[Id]) LastSeqNo(ctx context.Context, id Id, typeName string) (eventsourced.SeqNo, bool, error) {
	idStr := idString(id)
	subj := subject(l.stream, typeName, idStr)

	_, entitySeq, ok, err := l.lastForSubject(subj)
	if err != nil {
		return eventsourced.SeqNo{}, false, err
	}
	if !ok {
		return eventsourced.SeqNo{}, false, nil
	}
	return entitySeq, true, nil
}

// EventsByID implements eventsourced.EventLog. It subscribes an ephemeral
// ordered consumer scoped to the entity's exclusive subject and replays
// from the beginning, discarding entries before from client-side: the
// entity seq_no stamped in entitySeqHdr is a subject-local counter this
// adapter maintains itself, which JetStream's native
// DeliverByStartSequencePolicy (a stream-global position) cannot seek by
// directly.
func (l *EventLog[Id]) EventsByID(ctx context.Context, id Id, typeName string, from eventsourced.SeqNo) *eventsourced.EventStream {
	idStr := idString(id)
	subj := subject(l.stream, typeName, idStr)
	ch := make(chan eventsourced.StreamItem)
	go l.streamSubject(ctx, ch, subj, &from)
	return eventsourced.NewEventStream(ch)
}

// EventsByType implements eventsourced.EventLog, fanning out across every
// subject of typeName ordered by JetStream's authoritative stream-global
// sequence; from is interpreted as that global sequence here, not an
// entity-local one.
func (l *EventLog[Id]) EventsByType(ctx context.Context, typeName string, from eventsourced.SeqNo) *eventsourced.EventStream {
	subj := fmt.Sprintf("%s.%s.*", l.stream, typeName)
	ch := make(chan eventsourced.StreamItem)
	go l.streamFromGlobalSeq(ctx, ch, subj, from)
	return eventsourced.NewEventStream(ch)
}

// streamSubject delivers every message on subj in order, skipping those
// whose entitySeqHdr is below from.
func (l *EventLog[Id]) streamSubject(ctx context.Context, ch chan<- eventsourced.StreamItem, subj string, from *eventsourced.SeqNo) {
	defer close(ch)

	sub, err := l.js.SubscribeSync(subj, nats.OrderedConsumer(), nats.DeliverAll())
	if err != nil {
		sendErr(ctx, ch, mapReadErr("subscribe", err))
		return
	}
	defer sub.Unsubscribe()

	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sendErr(ctx, ch, mapReadErr("next message", err))
			return
		}

		raw := msg.Header.Get(entitySeqHdr)
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			sendErr(ctx, ch, fmt.Errorf("%w: malformed %s header %q", eventsourced.ErrCorruption, entitySeqHdr, raw))
			return
		}
		seq, perr := eventsourced.NewSeqNo(n)
		if perr != nil {
			sendErr(ctx, ch, fmt.Errorf("%w: %v", eventsourced.ErrCorruption, perr))
			return
		}
		if from != nil && seq.Less(*from) {
			continue
		}

		select {
		case ch <- eventsourced.StreamItem{SeqNo: seq, Payload: msg.Data}:
		case <-ctx.Done():
			return
		}
	}
}

// streamFromGlobalSeq delivers every message matching subj (a subject
// wildcard) starting at JetStream's stream-global sequence from.
func (l *EventLog[Id]) streamFromGlobalSeq(ctx context.Context, ch chan<- eventsourced.StreamItem, subj string, from eventsourced.SeqNo) {
	defer close(ch)

	start := uint64(from.Int64())
	sopts := []nats.SubOpt{nats.OrderedConsumer()}
	if start <= 1 {
		sopts = append(sopts, nats.DeliverAll())
	} else {
		sopts = append(sopts, nats.StartSequence(start))
	}

	sub, err := l.js.SubscribeSync(subj, sopts...)
	if err != nil {
		sendErr(ctx, ch, mapReadErr("subscribe", err))
		return
	}
	defer sub.Unsubscribe()

	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sendErr(ctx, ch, mapReadErr("next message", err))
			return
		}

		md, err := msg.Metadata()
		if err != nil {
			sendErr(ctx, ch, fmt.Errorf("%w: %v", eventsourced.ErrCorruption, err))
			return
		}
		seq, err := eventsourced.NewSeqNo(int64(md.Sequence.Stream))
		if err != nil {
			sendErr(ctx, ch, fmt.Errorf("%w: %v", eventsourced.ErrCorruption, err))
			return
		}

		select {
		case ch <- eventsourced.StreamItem{SeqNo: seq, Payload: msg.Data}:
		case <-ctx.Done():
			return
		}
	}
}

func sendErr(ctx context.Context, ch chan<- eventsourced.StreamItem, err error) {
	select {
	case ch <- eventsourced.StreamItem{Err: err}:
	case <-ctx.Done():
	}
}

func idString(id any) string {
	return fmt.Sprintf("%v", id)
}
