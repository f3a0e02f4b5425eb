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
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jrudolph/eventsourced"
)

// pgUniqueViolation is pgerrcode.UniqueViolation (23505), inlined to avoid
// pulling in the pgerrcode module for a single constant.
const pgUniqueViolation = "23505"

// mapWriteErr classifies an error from an evts INSERT.
func mapWriteErr(key string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: conflicting append for %s", eventsourced.ErrConflict, key)
		}
		if isConnectionClass(pgErr.Code) {
			return fmt.Errorf("%w: %v", eventsourced.ErrConnectivity, err)
		}
	}
	return fmt.Errorf("postgres: append %s: %w", key, err)
}

// mapReadErr classifies an error from a read-path query.
func mapReadErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && isConnectionClass(pgErr.Code) {
		return fmt.Errorf("%w: %v", eventsourced.ErrConnectivity, err)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

// isConnectionClass reports whether code belongs to the SQLSTATE class 08
// (connection exception).
func isConnectionClass(code string) bool {
	return strings.HasPrefix(code, "08")
}
