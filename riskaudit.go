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

// Package riskaudit holds constants shared across the riskaudit tool.
package riskaudit

const (
	// Version is the semver of the riskaudit tool.
	Version = "0.3.0"

	// ComponentKey is the log attribute key holding the name of the
	// component emitting the record.
	ComponentKey = "component"

	// ComponentGraph is the Microsoft Graph API client.
	ComponentGraph = "graph"

	// ComponentScope is the policy scope resolver.
	ComponentScope = "scope"

	// ComponentAudit is the audit run orchestrator.
	ComponentAudit = "audit"

	// ComponentReport is the CSV report writer.
	ComponentReport = "report"
)
