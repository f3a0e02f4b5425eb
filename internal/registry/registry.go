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

// Package registry tracks the (type_name, id) pairs that currently have an
// active command loop in this process, enforcing at most one active loop
// per entity on the in-process side. Cross-process single-writer
// enforcement is left to the backing EventLog's optimistic CAS.
package registry

import (
	"fmt"
	"sync"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		active: make(map[string]struct{}),
	}
}

// Key formats the (typeName, id) identity used as the registry key, as
// "typeName/id".
func Key(typeName string, id any) string {
	return fmt.Sprintf("%s/%v", typeName, id)
}

// Register marks key as having an active loop. It returns false if key is
// already registered, in which case the caller MUST NOT start a second
// loop.
func (r *Registry) Register(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[key]; ok {
		return false
	}
	r.active[key] = struct{}{}
	return true
}

// Deregister releases key, allowing a future Spawn for the same identity.
func (r *Registry) Deregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, key)
}

// Active reports whether key currently has a registered loop.
func (r *Registry) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[key]
	return ok
}

// Len returns the number of currently active entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
