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

// This file tests the PostgreSQL adapters against a real database,
// configured via the TEST_POSTGRES_URL environment variable (host:port
// pair, e.g. "localhost:5432"). Tests are skipped when it is unset.
//
// Sample command to start a local PostgreSQL database using Docker:
// $ docker run --name test-postgres -p 5432:5432 -e POSTGRES_PASSWORD=postgres -e POSTGRES_DB=eventsourced_test -d postgres
package postgres

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrudolph/eventsourced"
	"github.com/jrudolph/eventsourced/codec/textcodec"
)

// testConfig returns a Config pointed at TEST_POSTGRES_URL ("host:port"),
// or (_, false) if the env var is unset.
func testConfig(t *testing.T) (Config, bool) {
	t.Helper()
	hostPort := os.Getenv("TEST_POSTGRES_URL")
	if hostPort == "" {
		return Config{}, false
	}
	parts := strings.SplitN(hostPort, ":", 2)
	host := parts[0]
	port := 5432
	if len(parts) == 2 {
		p, err := strconv.Atoi(parts[1])
		require.NoError(t, err)
		port = p
	}
	return Config{
		Host:     host,
		Port:     port,
		Database: "eventsourced_test",
		User:     "postgres",
		Password: "postgres",
		Setup:    true,
	}, true
}

func TestEventLog_AppendAndReplay(t *testing.T) {
	cfg, ok := testConfig(t)
	if !ok {
		t.Skip("TEST_POSTGRES_URL not set, skipping test")
	}

	ctx := context.Background()
	log, err := New[string](ctx, cfg)
	require.NoError(t, err)
	defer log.Close()

	id := uniqueID(t)

	seq1, err := log.Append(ctx, id, "widget", []byte("1"), nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), seq1.Int64())

	_, err = log.Append(ctx, id, "widget", []byte("2"), nil)
	require.ErrorIs(t, err, eventsourced.ErrConflict)

	seq2, err := log.Append(ctx, id, "widget", []byte("2"), &seq1)
	require.NoError(t, err)
	require.Equal(t, int64(2), seq2.Int64())

	last, ok, err := log.LastSeqNo(ctx, id, "widget")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), last.Int64())

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream := log.EventsByID(streamCtx, id, "widget", eventsourced.MinSeqNo())

	first := <-stream.C
	require.NoError(t, first.Err)
	require.Equal(t, []byte("1"), first.Payload)

	second := <-stream.C
	require.NoError(t, second.Err)
	require.Equal(t, []byte("2"), second.Payload)
}

func TestSnapshotStore_SaveAndLoad(t *testing.T) {
	cfg, ok := testConfig(t)
	if !ok {
		t.Skip("TEST_POSTGRES_URL not set, skipping test")
	}

	ctx := context.Background()
	codec := textcodec.New[int, map[string]int]()
	store, err := NewSnapshotStore[string, map[string]int](ctx, cfg, codec)
	require.NoError(t, err)
	defer store.Close()

	id := uniqueID(t)

	_, _, ok, err = store.Load(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	seq, err := eventsourced.NewSeqNo(42)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, id, seq, map[string]int{"total": 666}))

	gotSeq, gotState, ok, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), gotSeq.Int64())
	require.Equal(t, 666, gotState["total"])
}

func uniqueID(t *testing.T) string {
	t.Helper()
	return strings.ReplaceAll(t.Name(), "/", "_")
}
