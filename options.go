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

import "time"

// DefaultCmdBuffer is used by Spawn if no WithCmdBuffer option is provided.
const DefaultCmdBuffer = 16

// spawnOptions holds the recognized configuration set for Spawn.
type spawnOptions struct {
	snapshotEvery int
	cmdBuffer     int
	pollInterval  time.Duration
}

func defaultSpawnOptions() spawnOptions {
	return spawnOptions{
		snapshotEvery: 0,
		cmdBuffer:     DefaultCmdBuffer,
	}
}

// Option configures Spawn. See WithSnapshotEvery, WithCmdBuffer, and
// WithPollInterval.
type Option func(*spawnOptions)

// WithSnapshotEvery causes the command loop to save a snapshot every n
// applied events. If never supplied, snapshots are never written (though
// they are still read at spawn time).
func WithSnapshotEvery(n int) Option {
	return func(o *spawnOptions) {
		o.snapshotEvery = n
	}
}

// WithCmdBuffer sets the bounded capacity of the entity's command channel.
// Producers calling Submit block (respecting their ctx) once it is full.
func WithCmdBuffer(n int) Option {
	return func(o *spawnOptions) {
		o.cmdBuffer = n
	}
}

// WithPollInterval sets the tail-polling cadence used by relational
// EventLog implementations. It is a no-op — but not an error — for
// adapters that don't poll (e.g. the broker-backed log), and is only
// applied when the EventLog implements PollIntervalConfigurable.
func WithPollInterval(d time.Duration) Option {
	return func(o *spawnOptions) {
		o.pollInterval = d
	}
}

// PollIntervalConfigurable is implemented by EventLog adapters whose
// replay tail is a polling loop (see storage/postgres) so that Spawn can
// forward WithPollInterval without every adapter needing bespoke wiring.
type PollIntervalConfigurable interface {
	SetPollInterval(d time.Duration)
}
