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
	"context"
	"log/slog"

	"github.com/gravitational/trace"

	"github.com/gravitational/riskaudit"
	"github.com/gravitational/riskaudit/lib/directory"
)

// MemberResolver resolves a group ID into the IDs of its principal-type
// members. Implementations are expected to be safe for concurrent use and
// to enforce their own per-call timeouts.
type MemberResolver interface {
	GroupMembers(ctx context.Context, groupID string) ([]string, error)
}

// ResolverConfig defines the configuration of a [Resolver].
type ResolverConfig struct {
	// Snapshot is the immutable directory snapshot to resolve against.
	Snapshot *directory.Snapshot
	// Members resolves group memberships.
	Members MemberResolver
	// Logger is the logger for degraded-lookup warnings. Optional.
	Logger *slog.Logger
}

// SetDefaults sets the default values for optional fields.
func (cfg *ResolverConfig) SetDefaults() {
	if cfg.Logger == nil {
		cfg.Logger = slog.With(riskaudit.ComponentKey, riskaudit.ComponentScope)
	}
}

// Validate checks that the required fields are set.
func (cfg *ResolverConfig) Validate() error {
	if cfg.Snapshot == nil {
		return trace.BadParameter("Snapshot must be set")
	}
	if cfg.Members == nil {
		return trace.BadParameter("Members must be set")
	}
	return nil
}

// Resolver computes the set of principals in scope of a policy. A resolver
// only reads the snapshot it was built with, so a single resolver may be
// shared across concurrent resolutions.
type Resolver struct {
	snapshot *directory.Snapshot
	members  MemberResolver
	log      *slog.Logger
}

// NewResolver returns a resolver for the given config.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Resolver{
		snapshot: cfg.Snapshot,
		members:  cfg.Members,
		log:      cfg.Logger,
	}, nil
}

// Resolve computes the resolved scope of the given policy against the
// directory snapshot. Inclusions are applied first (wildcard or explicit
// principals, then group memberships), exclusions strictly after, so an ID
// listed on both sides ends up excluded. Principal IDs unknown to the
// snapshot are dropped silently; a failed group membership lookup
// contributes zero members and is logged as a warning, never failing the
// resolution.
func (r *Resolver) Resolve(ctx context.Context, policy *Policy) Set {
	if policy.Rules.HasRoleRules() {
		r.log.WarnContext(ctx, "policy carries role-based scoping rules which are not evaluated, its resolved scope may be undercounted",
			"policy", policy.Name)
	}

	resolved := NewSet()

	if policy.Rules.Include.All() {
		// The wildcard already covers every known principal; explicit
		// principals and group members could only add IDs the snapshot
		// would drop anyway, so both are skipped.
		for _, id := range r.snapshot.IDs() {
			resolved.Add(id)
		}
	} else {
		for _, id := range policy.Rules.Include.IDs() {
			if r.snapshot.Contains(id) {
				resolved.Add(id)
			}
		}
		for _, groupID := range policy.Rules.IncludeGroups {
			for _, id := range r.groupMembers(ctx, policy, groupID) {
				if r.snapshot.Contains(id) {
					resolved.Add(id)
				}
			}
		}
	}

	for _, id := range policy.Rules.ExcludePrincipals {
		if r.snapshot.Contains(id) {
			resolved.Remove(id)
		}
	}

	for _, groupID := range policy.Rules.ExcludeGroups {
		for _, id := range r.groupMembers(ctx, policy, groupID) {
			if r.snapshot.Contains(id) {
				resolved.Remove(id)
			}
		}
	}

	return resolved
}

// groupMembers resolves a group membership, degrading to an empty member
// list on lookup failure.
func (r *Resolver) groupMembers(ctx context.Context, policy *Policy, groupID string) []string {
	members, err := r.members.GroupMembers(ctx, groupID)
	if err != nil {
		r.log.WarnContext(ctx, "group membership lookup failed, the group contributes no members to the resolved scope",
			"policy", policy.Name, "group", groupID, "error", err)
		return nil
	}
	return members
}
