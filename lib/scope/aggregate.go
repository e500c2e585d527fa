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

	"github.com/gravitational/trace"
	"golang.org/x/sync/errgroup"

	"github.com/gravitational/riskaudit/lib/directory"
)

// DefaultConcurrency is the default number of policies resolved in
// parallel. Group membership lookups are the only blocking operations, so a
// small limit keeps the Graph API throttling at bay while still
// overlapping lookups across policies.
const DefaultConcurrency = 4

// Result is the outcome of aggregating scope resolutions across all
// risk-conditioned policies.
type Result struct {
	// PoliciesEvaluated counts the policies that survived the
	// risk-conditions filter and were resolved.
	PoliciesEvaluated int
	// ScopedUnion is the union of all resolved policy scopes. An empty
	// union with PoliciesEvaluated == 0 means no policy conditions on
	// risk, as opposed to an empty directory.
	ScopedUnion Set
	// Discrepancies holds the members of ScopedUnion that do not hold a
	// qualifying license. Always a subset of ScopedUnion, disjoint from
	// the entitled set.
	Discrepancies Set
}

// Aggregate resolves every risk-conditioned policy with the given resolver,
// unions the resolved scopes and classifies the union against the
// qualifying license set. Policies are resolved in parallel, bounded by
// concurrency (DefaultConcurrency when <= 0); each resolution writes its
// own slot and the union is merged by a single writer after all
// resolutions return. The only error condition is context cancellation.
func Aggregate(ctx context.Context, resolver *Resolver, policies []*Policy, qualifying directory.SKUSet, concurrency int) (*Result, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var conditioned []*Policy
	for _, policy := range policies {
		if policy.RiskConditioned() {
			conditioned = append(conditioned, policy)
		}
	}

	resolved := make([]Set, len(conditioned))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i, policy := range conditioned {
		eg.Go(func() error {
			resolved[i] = resolver.Resolve(egCtx, policy)
			return egCtx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, trace.Wrap(err)
	}

	result := &Result{
		PoliciesEvaluated: len(conditioned),
		ScopedUnion:       NewSet(),
	}
	for _, set := range resolved {
		result.ScopedUnion.Union(set)
	}
	result.Discrepancies = Unentitled(result.ScopedUnion.IDs(), resolver.snapshot, qualifying)

	return result, nil
}

// Unentitled returns the subset of the given principal IDs that exist in
// the snapshot and do not hold any qualifying license. It backs both the
// policy-driven discrepancy set and the independent risk-signal
// cross-check.
func Unentitled(ids []string, snapshot *directory.Snapshot, qualifying directory.SKUSet) Set {
	out := NewSet()
	for _, id := range ids {
		principal, ok := snapshot.Get(id)
		if !ok {
			continue
		}
		if !directory.IsEntitled(principal, qualifying) {
			out.Add(id)
		}
	}
	return out
}
