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

package directory

// License SKUs that bundle Entra ID P2, which entitles a user to risk-based
// conditional access. Names in parentheses are the SKU part numbers used in
// the Microsoft licensing catalog.
const (
	// SKUEntraIDP2 is the standalone Entra ID P2 license (AAD_PREMIUM_P2).
	SKUEntraIDP2 = "84a661c4-e949-4bd2-a560-ed7766fcaf2b"
	// SKUEnterpriseMobilityE5 is Enterprise Mobility + Security E5
	// (EMSPREMIUM).
	SKUEnterpriseMobilityE5 = "b05e124f-c7cc-45a0-a6aa-8cf78c946968"
	// SKUMicrosoft365E5 is Microsoft 365 E5 (SPE_E5).
	SKUMicrosoft365E5 = "06ebc4ee-1bb5-47dd-8120-11324bc54e06"
	// SKUMicrosoft365E5Security is Microsoft 365 E5 Security
	// (IDENTITY_THREAT_PROTECTION).
	SKUMicrosoft365E5Security = "26124093-3d78-432b-b5dc-48bf992543d5"
)

// SKUSet is a set of license SKU IDs.
type SKUSet map[string]struct{}

// NewSKUSet returns a set holding the given SKU IDs.
func NewSKUSet(ids ...string) SKUSet {
	set := make(SKUSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether the set holds the given SKU ID.
func (s SKUSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// DefaultQualifyingSKUs returns the SKUs that confer the Entra ID P2
// capability audited by this tool.
func DefaultQualifyingSKUs() SKUSet {
	return NewSKUSet(
		SKUEntraIDP2,
		SKUEnterpriseMobilityE5,
		SKUMicrosoft365E5,
		SKUMicrosoft365E5Security,
	)
}

// IsEntitled reports whether the principal holds at least one of the
// qualifying license SKUs. An empty assignment set or an empty qualifying
// set classifies as not entitled.
func IsEntitled(p Principal, qualifying SKUSet) bool {
	for _, sku := range p.LicenseSKUs {
		if qualifying.Contains(sku) {
			return true
		}
	}
	return false
}
