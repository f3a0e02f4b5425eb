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

package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"k8s.io/klog/v2"

	"github.com/jrudolph/eventsourced"
)

// EventLog implements eventsourced.EventLog[Id] over a single evts table.
// Replay past the existing tail is a polling loop rather than a push
// subscription, since plain PostgreSQL has no native change-notification
// primitive this codebase depends on (LISTEN/NOTIFY does not survive
// connection loss without its own replay-on-reconnect logic, which would
// just reinvent polling).
type EventLog[Id any] struct {
	pool *pgxpool.Pool

	mu           sync.RWMutex
	pollInterval time.Duration
}

// New constructs an EventLog, applying the embedded schema migrations
// first if cfg.Setup is true.
func New[Id any](ctx context.Context, cfg Config) (*EventLog[Id], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Setup {
		if err := runMigrations(cfg.ConnString()); err != nil {
			return nil, err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse pool config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}

	return &EventLog[Id]{pool: pool, pollInterval: cfg.PollInterval}, nil
}

// Close releases the underlying connection pool.
func (l *EventLog[Id]) Close() {
	l.pool.Close()
}

// SetPollInterval implements eventsourced.PollIntervalConfigurable.
func (l *EventLog[Id]) SetPollInterval(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pollInterval = d
}

func (l *EventLog[Id]) getPollInterval() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pollInterval
}

// Append implements eventsourced.EventLog.
func (l *EventLog[Id]) Append(ctx context.Context, id Id, typeName string, payload []byte, expected *eventsourced.SeqNo) (eventsourced.SeqNo, error) {
	idStr := idString(id)

	var seq eventsourced.SeqNo
	var err error
	if expected == nil {
		seq = eventsourced.MinSeqNo()
	} else {
		last, ok, err := l.LastSeqNo(ctx, id, typeName)
		if err != nil {
			return eventsourced.SeqNo{}, err
		}
		if !ok || last.Compare(*expected) != 0 {
			return eventsourced.SeqNo{}, fmt.Errorf("%w: expected seq_no %s for %s/%s", eventsourced.ErrConflict, expected, typeName, idStr)
		}
		seq, err = expected.Next()
		if err != nil {
			return eventsourced.SeqNo{}, err
		}
	}

	_, err = l.pool.Exec(ctx,
		`INSERT INTO evts (seq_no, type, id, evt) VALUES ($1, $2, $3, $4)`,
		seq.Int64(), typeName, idStr, payload,
	)
	if err != nil {
		return eventsourced.SeqNo{}, mapWriteErr(fmt.Sprintf("%s/%s", typeName, idStr), err)
	}
	return seq, nil
}

// LastSeqNo implements eventsourced.EventLog.
func (l *EventLog[Id]) LastSeqNo(ctx context.Context, id Id, typeName string) (eventsourced.SeqNo, bool, error) {
	idStr := idString(id)

	var raw *int64
	err := l.pool.QueryRow(ctx,
		`SELECT MAX(seq_no) FROM evts WHERE id = $1 AND type = $2`,
		idStr, typeName,
	).Scan(&raw)
	if err != nil {
		return eventsourced.SeqNo{}, false, mapReadErr("last seq_no", err)
	}
	if raw == nil {
		return eventsourced.SeqNo{}, false, nil
	}
	seq, err := eventsourced.NewSeqNo(*raw)
	if err != nil {
		return eventsourced.SeqNo{}, false, fmt.Errorf("%w: stored seq_no %d for %s/%s", eventsourced.ErrCorruption, *raw, typeName, idStr)
	}
	return seq, true, nil
}

// EventsByID implements eventsourced.EventLog.
func (l *EventLog[Id]) EventsByID(ctx context.Context, id Id, typeName string, from eventsourced.SeqNo) *eventsourced.EventStream {
	idStr := idString(id)
	ch := make(chan eventsourced.StreamItem)
	go l.stream(ctx, ch, typeName, &idStr, from)
	return eventsourced.NewEventStream(ch)
}

// EventsByType implements eventsourced.EventLog.
func (l *EventLog[Id]) EventsByType(ctx context.Context, typeName string, from eventsourced.SeqNo) *eventsourced.EventStream {
	ch := make(chan eventsourced.StreamItem)
	go l.stream(ctx, ch, typeName, nil, from)
	return eventsourced.NewEventStream(ch)
}

// stream drives one cursor-then-poll replay loop for either EventsByID
// (idFilter != nil) or EventsByType (idFilter == nil), sending items to ch
// until ctx is cancelled or a terminal error occurs.
func (l *EventLog[Id]) stream(ctx context.Context, ch chan<- eventsourced.StreamItem, typeName string, idFilter *string, from eventsourced.SeqNo) {
	defer close(ch)

	cursor := from
	for {
		rows, err := l.query(ctx, typeName, idFilter, cursor)
		if err != nil {
			select {
			case ch <- eventsourced.StreamItem{Err: mapReadErr("stream query", err)}:
			case <-ctx.Done():
			}
			return
		}

		next, err := l.drain(ctx, ch, rows)
		rows.Close()
		if err != nil {
			select {
			case ch <- eventsourced.StreamItem{Err: mapReadErr("stream scan", err)}:
			case <-ctx.Done():
			}
			return
		}
		if next != nil {
			cursor = *next
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.getPollInterval()):
		}
	}
}

func (l *EventLog[Id]) query(ctx context.Context, typeName string, idFilter *string, from eventsourced.SeqNo) (pgx.Rows, error) {
	if idFilter != nil {
		return l.pool.Query(ctx,
			`SELECT seq_no, evt FROM evts WHERE id = $1 AND type = $2 AND seq_no >= $3 ORDER BY seq_no`,
			*idFilter, typeName, from.Int64(),
		)
	}
	return l.pool.Query(ctx,
		`SELECT seq_no, evt FROM evts WHERE type = $1 AND seq_no >= $2 ORDER BY seq_no, id`,
		typeName, from.Int64(),
	)
}

// drain delivers every row in rows to ch, returning the seq_no immediately
// following the last one delivered (nil if none were delivered this pass).
func (l *EventLog[Id]) drain(ctx context.Context, ch chan<- eventsourced.StreamItem, rows pgx.Rows) (*eventsourced.SeqNo, error) {
	var last *eventsourced.SeqNo
	for rows.Next() {
		var seqRaw int64
		var payload []byte
		if err := rows.Scan(&seqRaw, &payload); err != nil {
			return nil, err
		}
		seq, err := eventsourced.NewSeqNo(seqRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: stored seq_no %d", eventsourced.ErrCorruption, seqRaw)
		}

		select {
		case ch <- eventsourced.StreamItem{SeqNo: seq, Payload: payload}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		nextSeq, err := seq.Next()
		if err != nil {
			klog.Warningf("postgres: seq_no overflow at tail of stream, stopping advance")
			return last, nil
		}
		last = &nextSeq
	}
	if err := rows.Err(); err != nil {
		return last, err
	}
	return last, nil
}

// idString renders an entity id the same way internal/registry does, so
// the two agree on identity formatting.
func idString(id any) string {
	return fmt.Sprintf("%v", id)
}
