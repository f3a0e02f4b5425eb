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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jrudolph/eventsourced"
)

// StateCodec is the slice of eventsourced.Codec that SnapshotStore needs.
// Any eventsourced.Codec[Evt, State] value already satisfies this
// structurally — pass it directly.
type StateCodec[State any] interface {
	StateToBytes(*State) ([]byte, error)
	StateFromBytes([]byte) (State, error)
}

// SnapshotStore implements eventsourced.SnapshotStore[Id, State] over a
// single snapshots table. Unlike the broker-KV and blob adapters, the
// relational schema keeps seq_no and state in separate columns, so no
// envelope framing is needed here.
type SnapshotStore[Id, State any] struct {
	pool  *pgxpool.Pool
	codec StateCodec[State]
}

// NewSnapshotStore constructs a SnapshotStore, applying the embedded schema
// migrations first if cfg.Setup is true.
func NewSnapshotStore[Id, State any](ctx context.Context, cfg Config, codec StateCodec[State]) (*SnapshotStore[Id, State], error) {
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

	return &SnapshotStore[Id, State]{pool: pool, codec: codec}, nil
}

// Close releases the underlying connection pool.
func (s *SnapshotStore[Id, State]) Close() {
	s.pool.Close()
}

// Save implements eventsourced.SnapshotStore.
func (s *SnapshotStore[Id, State]) Save(ctx context.Context, id Id, seqNo eventsourced.SeqNo, state State) error {
	raw, err := s.codec.StateToBytes(&state)
	if err != nil {
		return fmt.Errorf("%w: %v", eventsourced.ErrCodec, err)
	}

	idStr := idString(id)
	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, seq_no, state) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET seq_no = EXCLUDED.seq_no, state = EXCLUDED.state`,
		idStr, seqNo.Int64(), raw,
	)
	if err != nil {
		return mapReadErr(fmt.Sprintf("snapshot save %s", idStr), err)
	}
	return nil
}

// Load implements eventsourced.SnapshotStore.
func (s *SnapshotStore[Id, State]) Load(ctx context.Context, id Id) (eventsourced.SeqNo, State, bool, error) {
	var zero State
	idStr := idString(id)

	var seqRaw int64
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT seq_no, state FROM snapshots WHERE id = $1`, idStr).Scan(&seqRaw, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return eventsourced.SeqNo{}, zero, false, nil
	}
	if err != nil {
		return eventsourced.SeqNo{}, zero, false, mapReadErr(fmt.Sprintf("snapshot load %s", idStr), err)
	}

	seqNo, err := eventsourced.NewSeqNo(seqRaw)
	if err != nil {
		return eventsourced.SeqNo{}, zero, false, fmt.Errorf("%w: stored snapshot seq_no %d for %s", eventsourced.ErrCorruption, seqRaw, idStr)
	}

	state, err := s.codec.StateFromBytes(raw)
	if err != nil {
		return eventsourced.SeqNo{}, zero, false, fmt.Errorf("%w: %v", eventsourced.ErrCodec, err)
	}

	return seqNo, state, true, nil
}
