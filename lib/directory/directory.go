/*
Copyright 2025 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package directory models the point-in-time directory snapshot the audit
// runs against: the set of principals with their license assignments, and
// the entitlement classification over them.
package directory

import (
	"maps"
	"slices"
)

// Principal is a directory identity subject to entitlement and policy
// scoping. Display attributes are opaque pass-through from the directory.
type Principal struct {
	// ID is the stable object ID of the principal.
	ID string
	// DisplayName is the human-readable name of the principal.
	DisplayName string
	// UserPrincipalName is the sign-in name of the principal.
	UserPrincipalName string
	// Mail is the primary contact address, may be empty.
	Mail string
	// LicenseSKUs holds the SKU IDs of the licenses assigned to the
	// principal, unordered, may be empty.
	LicenseSKUs []string
}

// Snapshot is an immutable index of principals by ID, built once at the
// start of a run. Scope resolution only ever reads it, so it is safe for
// concurrent use without locking.
type Snapshot struct {
	principals map[string]Principal
}

// NewSnapshot indexes the given principals by ID. When the same ID appears
// more than once the first occurrence wins.
func NewSnapshot(principals []Principal) *Snapshot {
	index := make(map[string]Principal, len(principals))
	for _, p := range principals {
		if _, ok := index[p.ID]; ok {
			continue
		}
		index[p.ID] = p
	}
	return &Snapshot{principals: index}
}

// Contains reports whether a principal with the given ID exists in the
// snapshot.
func (s *Snapshot) Contains(id string) bool {
	_, ok := s.principals[id]
	return ok
}

// Get returns the principal with the given ID.
func (s *Snapshot) Get(id string) (Principal, bool) {
	p, ok := s.principals[id]
	return p, ok
}

// Len returns the number of principals in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.principals)
}

// IDs returns the IDs of all principals in the snapshot, in no particular
// order.
func (s *Snapshot) IDs() []string {
	return slices.Collect(maps.Keys(s.principals))
}
