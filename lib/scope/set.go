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

package scope

import (
	"maps"
	"slices"
)

// Set is a set of principal IDs. The zero value is not usable, construct
// with [NewSet].
type Set map[string]struct{}

// NewSet returns a set holding the given principal IDs.
func NewSet(ids ...string) Set {
	set := make(Set, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Add inserts the given ID into the set.
func (s Set) Add(id string) {
	s[id] = struct{}{}
}

// Remove deletes the given ID from the set. Removing an absent ID is a
// no-op.
func (s Set) Remove(id string) {
	delete(s, id)
}

// Contains reports whether the set holds the given ID.
func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Union inserts every member of other into s.
func (s Set) Union(other Set) {
	maps.Copy(s, other)
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s)
}

// IDs returns the members in lexicographic order.
func (s Set) IDs() []string {
	ids := slices.Collect(maps.Keys(s))
	slices.Sort(ids)
	return ids
}
