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

package audit

import (
	"context"
	"strings"
	"time"

	"github.com/gravitational/trace"

	"github.com/gravitational/riskaudit/lib/directory"
	"github.com/gravitational/riskaudit/lib/msgraph"
	"github.com/gravitational/riskaudit/lib/scope"
)

// allUsersSentinel is the value the directory emits in includeUsers when a
// policy targets every principal.
const allUsersSentinel = "All"

// fetchSnapshot retrieves every principal with its license assignments and
// builds the immutable directory snapshot the rest of the run reads.
func fetchSnapshot(ctx context.Context, client Client) (*directory.Snapshot, error) {
	var principals []directory.Principal
	err := client.IterateUsers(ctx, func(u *msgraph.User) bool {
		principals = append(principals, principalFromUser(u))
		return true
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return directory.NewSnapshot(principals), nil
}

// fetchPolicies retrieves every conditional access policy and maps it onto
// the scope rule model.
func fetchPolicies(ctx context.Context, client Client) ([]*scope.Policy, error) {
	var policies []*scope.Policy
	err := client.IterateConditionalAccessPolicies(ctx, func(p *msgraph.ConditionalAccessPolicy) bool {
		policies = append(policies, policyFromConditionalAccess(p))
		return true
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return policies, nil
}

func fetchRiskyUsers(ctx context.Context, client Client) ([]*msgraph.RiskyUser, error) {
	var risky []*msgraph.RiskyUser
	err := client.IterateRiskyUsers(ctx, func(r *msgraph.RiskyUser) bool {
		risky = append(risky, r)
		return true
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return risky, nil
}

func principalFromUser(u *msgraph.User) directory.Principal {
	principal := directory.Principal{
		ID:                strVal(u.ID),
		DisplayName:       strVal(u.DisplayName),
		UserPrincipalName: strVal(u.UserPrincipalName),
		Mail:              strVal(u.Mail),
	}
	for _, license := range u.AssignedLicenses {
		if license.SKUID != nil {
			principal.LicenseSKUs = append(principal.LicenseSKUs, *license.SKUID)
		}
	}
	return principal
}

func policyFromConditionalAccess(p *msgraph.ConditionalAccessPolicy) *scope.Policy {
	policy := &scope.Policy{
		ID:    strVal(p.ID),
		Name:  strVal(p.DisplayName),
		State: strVal(p.State),
	}
	conditions := p.Conditions
	if conditions == nil {
		return policy
	}
	policy.SignInRiskLevels = conditions.SignInRiskLevels
	policy.UserRiskLevels = conditions.UserRiskLevels
	users := conditions.Users
	if users == nil {
		return policy
	}
	policy.Rules = scope.RuleSet{
		Include:           inclusionFromUsers(users.IncludeUsers),
		IncludeGroups:     users.IncludeGroups,
		ExcludePrincipals: users.ExcludeUsers,
		ExcludeGroups:     users.ExcludeGroups,
		IncludeRoles:      users.IncludeRoles,
		ExcludeRoles:      users.ExcludeRoles,
	}
	return policy
}

// inclusionFromUsers maps the includeUsers list onto the inclusion rule.
// The "All" sentinel wins over any explicit IDs listed alongside it; other
// non-ID sentinels ("None", guest selectors) pass through as explicit
// entries and are dropped against the snapshot like any unknown ID.
func inclusionFromUsers(includeUsers []string) scope.Inclusion {
	for _, id := range includeUsers {
		if strings.EqualFold(id, allUsersSentinel) {
			return scope.AllPrincipals()
		}
	}
	return scope.Principals(includeUsers...)
}

// memberResolver adapts the Graph client to the scope.MemberResolver
// contract: per-call timeout, principal-type members only.
type memberResolver struct {
	client  Client
	timeout time.Duration
}

func (m *memberResolver) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var members []string
	err := m.client.IterateGroupMembers(ctx, groupID, func(member msgraph.GroupMember) bool {
		// Only user members scope a policy onto principals; nested
		// groups are not expanded transitively by the directory, and
		// other member types are not principals.
		if user, ok := member.(*msgraph.User); ok && user.ID != nil {
			members = append(members, *user.ID)
		}
		return true
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return members, nil
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
