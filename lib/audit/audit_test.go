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
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitational/riskaudit/lib/directory"
	"github.com/gravitational/riskaudit/lib/msgraph"
)

// fakeClient serves canned directory data and lets individual collaborator
// calls be forced to fail.
type fakeClient struct {
	users    []*msgraph.User
	policies []*msgraph.ConditionalAccessPolicy
	risky    []*msgraph.RiskyUser
	groups   map[string][]msgraph.GroupMember

	failUsers    bool
	failPolicies bool
	failRisky    bool
	failGroups   bool
}

func (c *fakeClient) IterateUsers(ctx context.Context, f func(*msgraph.User) bool) error {
	if c.failUsers {
		return trace.ConnectionProblem(nil, "users endpoint unavailable")
	}
	for _, u := range c.users {
		if !f(u) {
			return nil
		}
	}
	return nil
}

func (c *fakeClient) IterateConditionalAccessPolicies(ctx context.Context, f func(*msgraph.ConditionalAccessPolicy) bool) error {
	if c.failPolicies {
		return trace.ConnectionProblem(nil, "policies endpoint unavailable")
	}
	for _, p := range c.policies {
		if !f(p) {
			return nil
		}
	}
	return nil
}

func (c *fakeClient) IterateGroupMembers(ctx context.Context, groupID string, f func(msgraph.GroupMember) bool) error {
	if c.failGroups {
		return trace.ConnectionProblem(nil, "groups endpoint unavailable")
	}
	members, ok := c.groups[groupID]
	if !ok {
		return trace.NotFound("group %q not found", groupID)
	}
	for _, m := range members {
		if !f(m) {
			return nil
		}
	}
	return nil
}

func (c *fakeClient) IterateRiskyUsers(ctx context.Context, f func(*msgraph.RiskyUser) bool) error {
	if c.failRisky {
		return trace.ConnectionProblem(nil, "risk feed unavailable")
	}
	for _, r := range c.risky {
		if !f(r) {
			return nil
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

func testUser(id, upn string, skus ...string) *msgraph.User {
	u := &msgraph.User{
		DirectoryObject: msgraph.DirectoryObject{
			ID:          strPtr(id),
			DisplayName: strPtr(id),
		},
		UserPrincipalName: strPtr(upn),
	}
	for _, sku := range skus {
		u.AssignedLicenses = append(u.AssignedLicenses, msgraph.AssignedLicense{SKUID: strPtr(sku)})
	}
	return u
}

func riskPolicy(id string, users *msgraph.ConditionalAccessUsers) *msgraph.ConditionalAccessPolicy {
	return &msgraph.ConditionalAccessPolicy{
		DirectoryObject: msgraph.DirectoryObject{
			ID:          strPtr(id),
			DisplayName: strPtr(id),
		},
		State: strPtr("enabled"),
		Conditions: &msgraph.ConditionalAccessConditions{
			Users:            users,
			SignInRiskLevels: []string{"high"},
		},
	}
}

// newFakeClient builds the baseline tenant: alice holds a qualifying
// license, bob and carol do not; a risk policy scopes everyone but excludes
// the group containing carol; a second, non-risk policy would scope dave
// but must be ignored.
func newFakeClient() *fakeClient {
	return &fakeClient{
		users: []*msgraph.User{
			testUser("id-alice", "alice@example.com", directory.SKUEntraIDP2),
			testUser("id-bob", "bob@example.com"),
			testUser("id-carol", "carol@example.com"),
			testUser("id-dave", "dave@example.com"),
		},
		policies: []*msgraph.ConditionalAccessPolicy{
			riskPolicy("policy-risk", &msgraph.ConditionalAccessUsers{
				IncludeUsers:  []string{"id-alice", "id-bob"},
				ExcludeGroups: []string{"group-1"},
			}),
			{
				DirectoryObject: msgraph.DirectoryObject{
					ID:          strPtr("policy-plain"),
					DisplayName: strPtr("policy-plain"),
				},
				State: strPtr("enabled"),
				Conditions: &msgraph.ConditionalAccessConditions{
					Users: &msgraph.ConditionalAccessUsers{IncludeUsers: []string{"id-dave"}},
				},
			},
		},
		risky: []*msgraph.RiskyUser{
			{
				ID:        strPtr("id-bob"),
				RiskLevel: strPtr("high"),
				RiskState: strPtr("atRisk"),
			},
			{
				ID:        strPtr("id-alice"),
				RiskLevel: strPtr("medium"),
				RiskState: strPtr("atRisk"),
			},
		},
		groups: map[string][]msgraph.GroupMember{
			"group-1": {testUser("id-carol", "carol@example.com")},
		},
	}
}

func testConfig(client Client, dir string) Config {
	return Config{
		Client:         client,
		OutputDir:      dir,
		QualifyingSKUs: directory.DefaultQualifyingSKUs(),
		LookupTimeout:  time.Second,
	}
}

func readReport(t *testing.T, dir, name string) [][]string {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, name+".csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

// reportIDs returns the first column of every data row.
func reportIDs(records [][]string) []string {
	ids := make([]string, 0, len(records)-1)
	for _, row := range records[1:] {
		ids = append(ids, row[0])
	}
	return ids
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	summary, err := Run(t.Context(), testConfig(newFakeClient(), dir))
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Principals)
	assert.Equal(t, 1, summary.Entitled)
	// Only the risk-conditioned policy counts.
	assert.Equal(t, 1, summary.PoliciesEvaluated)
	assert.Equal(t, 2, summary.InScope)
	assert.Equal(t, 1, summary.Discrepant)

	assert.Equal(t, []string{"id-alice"}, reportIDs(readReport(t, dir, ReportEntitled)))
	assert.Equal(t, []string{"id-alice", "id-bob"}, reportIDs(readReport(t, dir, ReportScoped)))
	assert.Equal(t, []string{"id-bob"}, reportIDs(readReport(t, dir, ReportUnlicensedScoped)))

	// The risk report is opt-in.
	_, statErr := os.Stat(filepath.Join(dir, ReportUnlicensedRisky+".csv"))
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRun_RiskReport(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(newFakeClient(), dir)
	cfg.RiskReport = true

	summary, err := Run(t.Context(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RiskFlagged)
	// Alice is flagged but entitled; only bob lands in the report.
	assert.Equal(t, 1, summary.RiskDiscrepant)

	records := readReport(t, dir, ReportUnlicensedRisky)
	require.Len(t, records, 2)
	assert.Equal(t, "id-bob", records[1][0])
	assert.Equal(t, "high", records[1][5])
	assert.Equal(t, "atRisk", records[1][6])
}

func TestRun_SnapshotFailureIsFatal(t *testing.T) {
	client := newFakeClient()
	client.failUsers = true

	_, err := Run(t.Context(), testConfig(client, t.TempDir()))
	require.Error(t, err)
}

func TestRun_PolicyFetchFailureIsFatal(t *testing.T) {
	client := newFakeClient()
	client.failPolicies = true

	_, err := Run(t.Context(), testConfig(client, t.TempDir()))
	require.Error(t, err)
}

func TestRun_DegradedGroupLookup(t *testing.T) {
	client := newFakeClient()
	client.failGroups = true

	dir := t.TempDir()
	summary, err := Run(t.Context(), testConfig(client, dir))
	require.NoError(t, err)

	// The failing exclusion lookup degrades to zero members: nobody gets
	// removed, the explicitly included users stay in scope.
	assert.Equal(t, 2, summary.InScope)
	assert.Equal(t, []string{"id-alice", "id-bob"}, reportIDs(readReport(t, dir, ReportScoped)))
}

func TestRun_DegradedRiskFeed(t *testing.T) {
	client := newFakeClient()
	client.failRisky = true

	dir := t.TempDir()
	cfg := testConfig(client, dir)
	cfg.RiskReport = true

	summary, err := Run(t.Context(), cfg)
	require.NoError(t, err)
	assert.Zero(t, summary.RiskFlagged)

	// Scope reports are still produced, the risk report is skipped.
	_, statErr := os.Stat(filepath.Join(dir, ReportScoped+".csv"))
	require.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(dir, ReportUnlicensedRisky+".csv"))
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestRun_NoRiskConditionedPolicies(t *testing.T) {
	client := newFakeClient()
	client.policies = client.policies[1:]

	dir := t.TempDir()
	summary, err := Run(t.Context(), testConfig(client, dir))
	require.NoError(t, err)

	assert.Zero(t, summary.PoliciesEvaluated)
	assert.Zero(t, summary.InScope)
	assert.Zero(t, summary.Discrepant)

	// Empty reports are still written, header only.
	records := readReport(t, dir, ReportScoped)
	require.Len(t, records, 1)
}

func TestRun_WildcardInclusion(t *testing.T) {
	client := newFakeClient()
	// The sentinel wins regardless of its position: explicit IDs listed
	// alongside it are subsumed by the wildcard.
	client.policies = []*msgraph.ConditionalAccessPolicy{
		riskPolicy("policy-all", &msgraph.ConditionalAccessUsers{
			IncludeUsers: []string{"id-alice", "All"},
			ExcludeUsers: []string{"id-dave"},
		}),
	}

	dir := t.TempDir()
	summary, err := Run(t.Context(), testConfig(client, dir))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.InScope)
	assert.Equal(t, []string{"id-bob", "id-carol"}, reportIDs(readReport(t, dir, ReportUnlicensedScoped)))
}

func TestRun_Validate(t *testing.T) {
	_, err := Run(t.Context(), Config{OutputDir: t.TempDir()})
	require.Error(t, err)
	require.True(t, trace.IsBadParameter(err))

	_, err = Run(t.Context(), Config{Client: &fakeClient{}})
	require.Error(t, err)
	require.True(t, trace.IsBadParameter(err))
}
