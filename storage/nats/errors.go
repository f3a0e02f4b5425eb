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
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/jrudolph/eventsourced"
)

// mapPublishErr classifies an error returned by JetStream's PublishMsg: a
// rejected expected-last-subject-sequence CAS surfaces as a "wrong last
// sequence" message, not a typed error, in the nats.go client as of the
// version this adapter is grounded on.
func mapPublishErr(key string, err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "wrong last sequence") {
		return fmt.Errorf("%w: %s", eventsourced.ErrConflict, key)
	}
	if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("%w: %v", eventsourced.ErrConnectivity, err)
	}
	return fmt.Errorf("nats: append %s: %w", key, err)
}

// mapReadErr classifies an error from a read-path JetStream call.
func mapReadErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, nats.ErrTimeout) || errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrNoResponders) {
		return fmt.Errorf("%w: %v", eventsourced.ErrConnectivity, err)
	}
	return fmt.Errorf("nats: %s: %w", op, err)
}
