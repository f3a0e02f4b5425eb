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

// Package postgres implements the eventsourced EventLog and SnapshotStore
// contracts over a PostgreSQL table pair, with a polling tail for live
// replay.
package postgres

import (
	"fmt"
	"time"
)

// Config holds the connection and pacing parameters shared by the
// EventLog and SnapshotStore adapters in this package.
type Config struct {
	// Connection parameters.
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	Database string `mapstructure:"database" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`

	// Connection pool (conservative sizing, mirroring the defaults used
	// elsewhere in this codebase's wider storage stack).
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	// PollInterval is the tail-polling cadence for EventsByID/EventsByType
	// once a cursor has caught up to the seq_no observed when the stream
	// was opened.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Setup, when true, idempotently applies the embedded schema
	// migrations on construction. It is intended to be enabled for the
	// first process to start against a fresh database and left false
	// elsewhere.
	Setup bool `mapstructure:"setup"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	if c.PollInterval == 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}
}

// Validate checks c for obviously invalid values.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("postgres: host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("postgres: database is required")
	}
	if c.User == "" {
		return fmt.Errorf("postgres: user is required")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("postgres: min_conns (%d) cannot exceed max_conns (%d)", c.MinConns, c.MaxConns)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("postgres: poll_interval must be positive")
	}
	return nil
}

// ConnString builds a libpq connection string from c.
func (c *Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode,
	)
}
