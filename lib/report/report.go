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

// Package report serializes audit result sets into CSV files.
package report

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/gravitational/riskaudit/lib/directory"
)

// skuSeparator joins the license SKU list into a single CSV cell.
const skuSeparator = ";"

// Report is a named tabular result set ready for serialization.
type Report struct {
	// Name is the file name without extension.
	Name string
	// Header is the column header row.
	Header []string
	// Rows are the data rows, already ordered.
	Rows [][]string
}

var principalHeader = []string{"id", "display_name", "user_principal_name", "mail", "license_skus"}

// RiskDetail carries the risk-signal attributes reported for a flagged
// principal.
type RiskDetail struct {
	Level       string
	State       string
	Detail      string
	LastUpdated time.Time
}

// RiskEntry pairs a principal with its risk-signal attributes.
type RiskEntry struct {
	Principal directory.Principal
	Risk      RiskDetail
}

// Principals builds a report over the given principals, one row per
// principal with its directory attributes and raw license SKU list, sorted
// by user principal name.
func Principals(name string, principals []directory.Principal) Report {
	sortPrincipals(principals)
	rows := make([][]string, 0, len(principals))
	for _, p := range principals {
		rows = append(rows, principalRow(p))
	}
	return Report{
		Name:   name,
		Header: principalHeader,
		Rows:   rows,
	}
}

// Risky builds a report over risk-flagged principals, appending the
// risk-signal columns to the principal attributes.
func Risky(name string, entries []RiskEntry) Report {
	slices.SortFunc(entries, func(a, b RiskEntry) int {
		return comparePrincipals(a.Principal, b.Principal)
	})
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		lastUpdated := ""
		if !e.Risk.LastUpdated.IsZero() {
			lastUpdated = e.Risk.LastUpdated.UTC().Format(time.RFC3339)
		}
		rows = append(rows, append(principalRow(e.Principal),
			e.Risk.Level, e.Risk.State, e.Risk.Detail, lastUpdated))
	}
	return Report{
		Name:   name,
		Header: append(slices.Clone(principalHeader), "risk_level", "risk_state", "risk_detail", "risk_last_updated"),
		Rows:   rows,
	}
}

func principalRow(p directory.Principal) []string {
	skus := slices.Clone(p.LicenseSKUs)
	slices.Sort(skus)
	return []string{p.ID, p.DisplayName, p.UserPrincipalName, p.Mail, strings.Join(skus, skuSeparator)}
}

func sortPrincipals(principals []directory.Principal) {
	slices.SortFunc(principals, comparePrincipals)
}

func comparePrincipals(a, b directory.Principal) int {
	if c := cmp.Compare(a.UserPrincipalName, b.UserPrincipalName); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
