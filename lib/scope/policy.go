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

// Package scope implements the core of the audit: resolving which
// principals are in the evaluated scope of an access policy, and
// cross-referencing resolved scopes against license entitlements.
package scope

import "slices"

// Inclusion is the principal-inclusion rule of a policy: either the "all
// principals" wildcard, or an explicit set of principal IDs. A policy may
// carry explicit IDs alongside the wildcard; the wildcard then subsumes
// them, without changing the resolved scope.
type Inclusion struct {
	all bool
	ids []string
}

// AllPrincipals returns the wildcard inclusion.
func AllPrincipals() Inclusion {
	return Inclusion{all: true}
}

// Principals returns an explicit inclusion of the given principal IDs.
func Principals(ids ...string) Inclusion {
	return Inclusion{ids: slices.Clone(ids)}
}

// All reports whether the inclusion is the wildcard.
func (i Inclusion) All() bool { return i.all }

// IDs returns the explicitly included principal IDs.
func (i Inclusion) IDs() []string { return i.ids }

// RuleSet is the scoping rule set of a policy. Role-based rules are carried
// for completeness but not evaluated; policies targeting directory roles may
// have their scope undercounted.
type RuleSet struct {
	// Include is the principal inclusion rule.
	Include Inclusion
	// IncludeGroups holds IDs of groups whose members are in scope.
	IncludeGroups []string
	// ExcludePrincipals holds IDs of principals carved out of the scope.
	ExcludePrincipals []string
	// ExcludeGroups holds IDs of groups whose members are carved out of
	// the scope.
	ExcludeGroups []string
	// IncludeRoles and ExcludeRoles target directory roles. Not evaluated.
	IncludeRoles []string
	ExcludeRoles []string
}

// HasRoleRules reports whether the rule set carries any role-based rules.
func (r *RuleSet) HasRoleRules() bool {
	return len(r.IncludeRoles) > 0 || len(r.ExcludeRoles) > 0
}

// Policy is an access policy as far as scope auditing is concerned: its
// scoping rules and the risk conditions that gate the privileged
// capability.
type Policy struct {
	// ID is the policy object ID.
	ID string
	// Name is the display name of the policy.
	Name string
	// State is the directory-reported state of the policy (enabled,
	// disabled, report-only). Carried as an attribute, not filtered on.
	State string
	// Rules is the scoping rule set.
	Rules RuleSet
	// SignInRiskLevels and UserRiskLevels are the risk levels the policy
	// conditions on.
	SignInRiskLevels []string
	UserRiskLevels   []string
}

// RiskConditioned reports whether the policy conditions on sign-in or user
// risk. Only risk-conditioned policies take part in the audit.
func (p *Policy) RiskConditioned() bool {
	return len(p.SignInRiskLevels) > 0 || len(p.UserRiskLevels) > 0
}
