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

// Package audit orchestrates a single audit run over three sequential
// phases: Snapshot (acquire the directory state), Resolve (compute policy
// scopes and discrepancies) and Emit (write the CSV reports).
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/gravitational/trace"

	"github.com/gravitational/riskaudit"
	"github.com/gravitational/riskaudit/lib/directory"
	"github.com/gravitational/riskaudit/lib/msgraph"
	"github.com/gravitational/riskaudit/lib/report"
	"github.com/gravitational/riskaudit/lib/scope"
)

// Report file names, without the .csv extension.
const (
	ReportEntitled         = "entitled_users"
	ReportScoped           = "scoped_users"
	ReportUnlicensedScoped = "unlicensed_scoped_users"
	ReportUnlicensedRisky  = "unlicensed_risky_users"
)

// defaultLookupTimeout bounds a single group membership lookup. A timed-out
// lookup degrades the affected group, it does not fail the run.
const defaultLookupTimeout = 30 * time.Second

// Client is the directory service surface consumed by an audit run.
// *msgraph.Client satisfies it.
type Client interface {
	IterateUsers(ctx context.Context, f func(*msgraph.User) bool) error
	IterateConditionalAccessPolicies(ctx context.Context, f func(*msgraph.ConditionalAccessPolicy) bool) error
	IterateGroupMembers(ctx context.Context, groupID string, f func(msgraph.GroupMember) bool) error
	IterateRiskyUsers(ctx context.Context, f func(*msgraph.RiskyUser) bool) error
}

// Config defines the parameters of an audit run.
type Config struct {
	// Client is the directory service client.
	Client Client
	// OutputDir is the directory the CSV reports are written into,
	// created if absent.
	OutputDir string
	// RiskReport enables the optional risk-signal report.
	RiskReport bool
	// QualifyingSKUs is the set of license SKUs conferring the audited
	// capability. Defaults to the Entra ID P2 bundle SKUs.
	QualifyingSKUs directory.SKUSet
	// Concurrency bounds the number of policies resolved in parallel.
	Concurrency int
	// LookupTimeout bounds a single group membership lookup.
	LookupTimeout time.Duration
	// Logger is the run logger. Optional.
	Logger *slog.Logger
}

// SetDefaults sets the default values for optional fields.
func (cfg *Config) SetDefaults() {
	if cfg.QualifyingSKUs == nil {
		cfg.QualifyingSKUs = directory.DefaultQualifyingSKUs()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = scope.DefaultConcurrency
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.With(riskaudit.ComponentKey, riskaudit.ComponentAudit)
	}
}

// Validate checks that the required fields are set.
func (cfg *Config) Validate() error {
	if cfg.Client == nil {
		return trace.BadParameter("Client must be set")
	}
	if cfg.OutputDir == "" {
		return trace.BadParameter("OutputDir must be set")
	}
	return nil
}

// Summary reports the counts at every phase boundary so that operators can
// sanity-check partial degradation.
type Summary struct {
	// Principals is the total number of principals in the snapshot.
	Principals int
	// Entitled counts the principals holding a qualifying license.
	Entitled int
	// PoliciesEvaluated counts the risk-conditioned policies resolved.
	PoliciesEvaluated int
	// InScope is the size of the scoped union.
	InScope int
	// Discrepant counts in-scope principals without a qualifying license.
	Discrepant int
	// RiskFlagged and RiskDiscrepant count the risk feed results. Only
	// set when the risk report is enabled.
	RiskFlagged    int
	RiskDiscrepant int
}

// Run executes one audit run. The returned error is non-nil only when the
// Snapshot phase fails or the run is canceled; degraded collaborator calls
// and report write failures are logged and absorbed.
func Run(ctx context.Context, cfg Config) (*Summary, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, trace.Wrap(err)
	}
	log := cfg.Logger

	// Snapshot phase. Without directory data there is nothing to audit,
	// so any failure here is fatal.
	snapshot, err := fetchSnapshot(ctx, cfg.Client)
	if err != nil {
		return nil, trace.Wrap(err, "fetching directory snapshot")
	}
	policies, err := fetchPolicies(ctx, cfg.Client)
	if err != nil {
		return nil, trace.Wrap(err, "fetching conditional access policies")
	}

	entitled := entitledPrincipals(snapshot, cfg.QualifyingSKUs)
	summary := &Summary{
		Principals: snapshot.Len(),
		Entitled:   len(entitled),
	}
	log.InfoContext(ctx, "directory snapshot acquired",
		"principals", summary.Principals,
		"entitled", summary.Entitled,
		"policies", len(policies))

	// Resolve phase.
	resolver, err := scope.NewResolver(scope.ResolverConfig{
		Snapshot: snapshot,
		Members: &memberResolver{
			client:  cfg.Client,
			timeout: cfg.LookupTimeout,
		},
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	result, err := scope.Aggregate(ctx, resolver, policies, cfg.QualifyingSKUs, cfg.Concurrency)
	if err != nil {
		return nil, trace.Wrap(err, "resolving policy scopes")
	}
	summary.PoliciesEvaluated = result.PoliciesEvaluated
	summary.InScope = result.ScopedUnion.Len()
	summary.Discrepant = result.Discrepancies.Len()
	log.InfoContext(ctx, "policy scopes resolved",
		"policies_evaluated", summary.PoliciesEvaluated,
		"in_scope", summary.InScope,
		"discrepant", summary.Discrepant)

	reports := []report.Report{
		report.Principals(ReportEntitled, entitled),
		report.Principals(ReportScoped, principals(snapshot, result.ScopedUnion)),
		report.Principals(ReportUnlicensedScoped, principals(snapshot, result.Discrepancies)),
	}

	// The risk-signal cross-check is independent of policy scoping: it
	// classifies the risk-flagged principal set against the same
	// qualifying licenses but is reported separately. A failing risk
	// feed degrades the report, it does not fail the run.
	if cfg.RiskReport {
		risky, err := fetchRiskyUsers(ctx, cfg.Client)
		if err != nil {
			log.ErrorContext(ctx, "risk feed lookup failed, skipping the risk-signal report", "error", err)
		} else {
			discrepant := scope.Unentitled(riskyIDs(risky), snapshot, cfg.QualifyingSKUs)
			summary.RiskFlagged = len(risky)
			summary.RiskDiscrepant = discrepant.Len()
			reports = append(reports, report.Risky(ReportUnlicensedRisky, riskEntries(snapshot, risky, discrepant)))
			log.InfoContext(ctx, "risk feed cross-checked",
				"risk_flagged", summary.RiskFlagged,
				"risk_discrepant", summary.RiskDiscrepant)
		}
	}

	// Emit phase. Report write failures are isolated per report and never
	// turn a completed computation into a failed run.
	writer, err := report.NewWriter(report.WriterConfig{Dir: cfg.OutputDir})
	if err != nil {
		log.ErrorContext(ctx, "failed to open the report output directory, no reports written", "error", err)
		return summary, nil
	}
	if err := writer.WriteAll(reports); err != nil {
		log.ErrorContext(ctx, "some reports were not written", "error", err)
	}

	return summary, nil
}

// entitledPrincipals returns the principals holding a qualifying license.
func entitledPrincipals(snapshot *directory.Snapshot, qualifying directory.SKUSet) []directory.Principal {
	var out []directory.Principal
	for _, id := range snapshot.IDs() {
		p, _ := snapshot.Get(id)
		if directory.IsEntitled(p, qualifying) {
			out = append(out, p)
		}
	}
	return out
}

// principals materializes a resolved ID set into directory principals.
func principals(snapshot *directory.Snapshot, set scope.Set) []directory.Principal {
	out := make([]directory.Principal, 0, set.Len())
	for _, id := range set.IDs() {
		if p, ok := snapshot.Get(id); ok {
			out = append(out, p)
		}
	}
	return out
}

func riskyIDs(risky []*msgraph.RiskyUser) []string {
	ids := make([]string, 0, len(risky))
	for _, r := range risky {
		ids = append(ids, strVal(r.ID))
	}
	return ids
}

// riskEntries builds the rows of the risk-signal report: the discrepant
// principals with the risk attributes reported by the feed.
func riskEntries(snapshot *directory.Snapshot, risky []*msgraph.RiskyUser, discrepant scope.Set) []report.RiskEntry {
	var entries []report.RiskEntry
	for _, r := range risky {
		id := strVal(r.ID)
		if !discrepant.Contains(id) {
			continue
		}
		principal, ok := snapshot.Get(id)
		if !ok {
			continue
		}
		detail := report.RiskDetail{
			Level:  strVal(r.RiskLevel),
			State:  strVal(r.RiskState),
			Detail: strVal(r.RiskDetail),
		}
		if r.RiskLastUpdatedDateTime != nil {
			detail.LastUpdated = *r.RiskLastUpdatedDateTime
		}
		entries = append(entries, report.RiskEntry{Principal: principal, Risk: detail})
	}
	return entries
}
