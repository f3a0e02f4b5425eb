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

// example-counter is a minimal personality showing how to spawn an entity
// over the PostgreSQL storage implementation: a counter that only accepts
// an Increment command, exposed over a tiny HTTP API.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"k8s.io/klog/v2"

	eventsourced "github.com/jrudolph/eventsourced"
	"github.com/jrudolph/eventsourced/codec/binarycodec"
	"github.com/jrudolph/eventsourced/storage/postgres"
)

var (
	pgHost     = flag.String("pg_host", "localhost", "PostgreSQL host")
	pgPort     = flag.Int("pg_port", 5432, "PostgreSQL port")
	pgDatabase = flag.String("pg_database", "eventsourced", "PostgreSQL database name")
	pgUser     = flag.String("pg_user", "eventsourced", "PostgreSQL user")
	pgPassword = flag.String("pg_password", "", "PostgreSQL password")
	pgSetup    = flag.Bool("pg_setup", true, "Apply schema migrations on startup")
	listen     = flag.String("listen", ":2025", "Address:port to listen on")
)

// counterID names the single counter entity this personality exposes; a
// real deployment would derive ids from request paths instead.
const counterID = "default"

// IncrementCmd is the only command a counter understands.
type IncrementCmd struct {
	By int64
}

// IncrementedEvt records that the counter advanced by a given amount.
type IncrementedEvt struct {
	By int64
}

func (e *IncrementedEvt) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(e.By))
	return b, nil
}

func (e *IncrementedEvt) UnmarshalBinary(b []byte) error {
	if len(b) != 8 {
		return fmt.Errorf("incremented event: want 8 bytes, got %d", len(b))
	}
	e.By = int64(binary.BigEndian.Uint64(b))
	return nil
}

// CounterState is the running total.
type CounterState struct {
	Total int64
}

func (s *CounterState) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(s.Total))
	return b, nil
}

func (s *CounterState) UnmarshalBinary(b []byte) error {
	if len(b) != 8 {
		return fmt.Errorf("counter state: want 8 bytes, got %d", len(b))
	}
	s.Total = int64(binary.BigEndian.Uint64(b))
	return nil
}

// counter implements eventsourced.EventSourced[string, IncrementCmd, IncrementedEvt, CounterState].
type counter struct{}

func (counter) TypeName() string { return "counter" }

func (counter) HandleCommand(id string, state CounterState, cmd IncrementCmd) (IncrementedEvt, error) {
	if cmd.By <= 0 {
		return IncrementedEvt{}, errors.New("increment amount must be positive")
	}
	return IncrementedEvt{By: cmd.By}, nil
}

func (counter) HandleEvent(state CounterState, evt IncrementedEvt) CounterState {
	state.Total += evt.By
	return state
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	ctx := context.Background()

	cfg := postgres.Config{
		Host:     *pgHost,
		Port:     *pgPort,
		Database: *pgDatabase,
		User:     *pgUser,
		Password: *pgPassword,
		Setup:    *pgSetup,
	}

	log, err := postgres.New[string](ctx, cfg)
	if err != nil {
		klog.Exitf("Failed to open event log: %v", err)
	}
	defer log.Close()

	codec := binarycodec.New[IncrementedEvt, *IncrementedEvt, CounterState, *CounterState]()

	snapshots, err := postgres.NewSnapshotStore[string, CounterState](ctx, cfg, codec)
	if err != nil {
		klog.Exitf("Failed to open snapshot store: %v", err)
	}
	defer snapshots.Close()

	handle, err := eventsourced.Spawn[string, IncrementCmd, IncrementedEvt, CounterState](
		ctx, counterID, counter{}, log, snapshots, codec,
		eventsourced.WithSnapshotEvery(50),
		eventsourced.WithPollInterval(100*time.Millisecond),
	)
	if err != nil {
		klog.Exitf("Failed to spawn counter: %v", err)
	}
	defer handle.Close(context.Background())

	http.HandleFunc("POST /increment/{by}", func(w http.ResponseWriter, r *http.Request) {
		by, err := strconv.ParseInt(r.PathValue("by"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		domainErr, transportErr := handle.Submit(r.Context(), IncrementCmd{By: by})
		if transportErr != nil {
			klog.Errorf("/increment: %v", transportErr)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if domainErr != nil {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprintln(w, domainErr)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	klog.Infof("Listening on %s", *listen)
	if err := http.ListenAndServe(*listen, nil); err != nil {
		klog.Exitf("ListenAndServe: %v", err)
	}
}
