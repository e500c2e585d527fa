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

package msgraph

import "time"

// DirectoryObject is the set of fields shared by all directory object types.
type DirectoryObject struct {
	ID          *string `json:"id,omitempty"`
	DisplayName *string `json:"displayName,omitempty"`
}

// AssignedLicense is a license SKU assigned to a user.
type AssignedLicense struct {
	SKUID *string `json:"skuId,omitempty"`
}

// User represents a user in the directory.
type User struct {
	DirectoryObject

	Mail              *string           `json:"mail,omitempty"`
	UserPrincipalName *string           `json:"userPrincipalName,omitempty"`
	AssignedLicenses  []AssignedLicense `json:"assignedLicenses,omitempty"`
}

func (u *User) isGroupMember() {}

// GetID implements GroupMember.
func (u *User) GetID() *string { return u.ID }

// Group represents a group in the directory.
type Group struct {
	DirectoryObject
}

func (g *Group) isGroupMember() {}

// GetID implements GroupMember.
func (g *Group) GetID() *string { return g.ID }

// GroupMember is a directory object that can be a member of a group.
// Concrete types are [User] and [Group]; which one you get depends on the
// `@odata.type` discriminator of the payload.
type GroupMember interface {
	GetID() *string
	isGroupMember()
}

// ConditionalAccessPolicy represents a conditional access policy.
type ConditionalAccessPolicy struct {
	DirectoryObject

	State      *string                      `json:"state,omitempty"`
	Conditions *ConditionalAccessConditions `json:"conditions,omitempty"`
}

// ConditionalAccessConditions is the condition set a conditional access
// policy evaluates. Only the condition classes relevant to scope and risk
// auditing are mapped.
type ConditionalAccessConditions struct {
	Users            *ConditionalAccessUsers `json:"users,omitempty"`
	SignInRiskLevels []string                `json:"signInRiskLevels,omitempty"`
	UserRiskLevels   []string                `json:"userRiskLevels,omitempty"`
}

// ConditionalAccessUsers is the user/group/role targeting of a conditional
// access policy. IncludeUsers may contain the "All" sentinel instead of
// object IDs.
type ConditionalAccessUsers struct {
	IncludeUsers  []string `json:"includeUsers,omitempty"`
	ExcludeUsers  []string `json:"excludeUsers,omitempty"`
	IncludeGroups []string `json:"includeGroups,omitempty"`
	ExcludeGroups []string `json:"excludeGroups,omitempty"`
	IncludeRoles  []string `json:"includeRoles,omitempty"`
	ExcludeRoles  []string `json:"excludeRoles,omitempty"`
}

// RiskyUser is a user flagged by the Identity Protection risk feed.
type RiskyUser struct {
	ID                      *string    `json:"id,omitempty"`
	UserDisplayName         *string    `json:"userDisplayName,omitempty"`
	UserPrincipalName       *string    `json:"userPrincipalName,omitempty"`
	RiskLevel               *string    `json:"riskLevel,omitempty"`
	RiskState               *string    `json:"riskState,omitempty"`
	RiskDetail              *string    `json:"riskDetail,omitempty"`
	RiskLastUpdatedDateTime *time.Time `json:"riskLastUpdatedDateTime,omitempty"`
}
