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

package msgraphtest

// PayloadListUsers is the default /users response fixture. Alice holds an
// Entra ID P2 license, the rest hold unrelated or no licenses.
const PayloadListUsers = `[
    {
        "id": "6e7b768e-07e2-4810-8459-485f84f8f204",
        "displayName": "Alice Alison",
        "mail": "alice@example.com",
        "userPrincipalName": "alice@example.com",
        "assignedLicenses": [
            {"skuId": "84a661c4-e949-4bd2-a560-ed7766fcaf2b"}
        ]
    },
    {
        "id": "87d349ed-44d7-43e1-9a83-5f2406dee5bd",
        "displayName": "Bob Bobert",
        "mail": "bob@example.com",
        "userPrincipalName": "bob@example.com",
        "assignedLicenses": [
            {"skuId": "f245ecc8-75af-4f8e-b61f-27d8114de5f3"}
        ]
    },
    {
        "id": "5bde3e51-d13b-4db1-9948-fe4b109d11a7",
        "displayName": "Carol C",
        "mail": "carol@example.com",
        "userPrincipalName": "carol@example.com",
        "assignedLicenses": []
    },
    {
        "id": "4782e723-f4f4-4af3-a76e-25e3bab0d896",
        "displayName": "Dave Davidson",
        "mail": "dave@example.com",
        "userPrincipalName": "dave@example.com"
    },
    {
        "id": "c03e6eaa-b6ab-46d7-905b-73ec7ea1f755",
        "displayName": "Eve Evil",
        "mail": "eve@example.com",
        "userPrincipalName": "eve#EXT#@example.com",
        "assignedLicenses": [
            {"skuId": "b05e124f-c7cc-45a0-a6aa-8cf78c946968"}
        ]
    }
]`

// PayloadListPolicies is the default conditional access policy fixture. The
// first two policies condition on risk levels, the third does not.
const PayloadListPolicies = `[
    {
        "id": "3ff4acd0-7b19-4711-9ab9-28951b5f3b49",
        "displayName": "Block high sign-in risk",
        "state": "enabled",
        "conditions": {
            "signInRiskLevels": ["high", "medium"],
            "userRiskLevels": [],
            "users": {
                "includeUsers": ["All"],
                "excludeUsers": [],
                "includeGroups": [],
                "excludeGroups": ["group1"],
                "includeRoles": [],
                "excludeRoles": []
            }
        }
    },
    {
        "id": "bb3b4c12-7769-4a4e-9c8c-5d2f32a1b8d1",
        "displayName": "MFA for risky users",
        "state": "enabled",
        "conditions": {
            "signInRiskLevels": [],
            "userRiskLevels": ["high"],
            "users": {
                "includeUsers": [],
                "excludeUsers": [],
                "includeGroups": ["group2"],
                "excludeGroups": [],
                "includeRoles": [],
                "excludeRoles": []
            }
        }
    },
    {
        "id": "7ef1c4fa-9f2a-4f22-b7a6-021f5b05a98c",
        "displayName": "Require MFA for admins",
        "state": "enabled",
        "conditions": {
            "signInRiskLevels": [],
            "userRiskLevels": [],
            "users": {
                "includeUsers": ["All"],
                "excludeUsers": [],
                "includeGroups": [],
                "excludeGroups": [],
                "includeRoles": [],
                "excludeRoles": []
            }
        }
    }
]`

// PayloadListRiskyUsers is the default Identity Protection risky user
// fixture.
const PayloadListRiskyUsers = `[
    {
        "id": "87d349ed-44d7-43e1-9a83-5f2406dee5bd",
        "userDisplayName": "Bob Bobert",
        "userPrincipalName": "bob@example.com",
        "riskLevel": "high",
        "riskState": "atRisk",
        "riskDetail": "none",
        "riskLastUpdatedDateTime": "2025-05-02T14:30:00Z"
    },
    {
        "id": "5bde3e51-d13b-4db1-9948-fe4b109d11a7",
        "userDisplayName": "Carol C",
        "userPrincipalName": "carol@example.com",
        "riskLevel": "medium",
        "riskState": "confirmedCompromised",
        "riskDetail": "adminConfirmedUserCompromised",
        "riskLastUpdatedDateTime": "2025-05-01T09:00:00Z"
    }
]`

// PayloadListGroup1Members carries a user, a device and a nested group; the
// device must be skipped by the client, the nested group surfaced as a
// [msgraph.Group].
const PayloadListGroup1Members = `[
    {
        "@odata.type": "#microsoft.graph.user",
        "id": "5bde3e51-d13b-4db1-9948-fe4b109d11a7",
        "mail": "carol@example.com"
    },
    {
        "@odata.type": "#microsoft.graph.device",
        "id": "1566d9a7-c652-44e7-a75e-665b77431435"
    },
    {
        "@odata.type": "#microsoft.graph.group",
        "id": "7db727c5-924a-4f6d-b1f0-d44e6cafa87c",
        "displayName": "Nested Group"
    }
]`

// PayloadListGroup2Members carries two plain user members.
const PayloadListGroup2Members = `[
    {
        "@odata.type": "#microsoft.graph.user",
        "id": "87d349ed-44d7-43e1-9a83-5f2406dee5bd",
        "mail": "bob@example.com"
    },
    {
        "@odata.type": "#microsoft.graph.user",
        "id": "4782e723-f4f4-4af3-a76e-25e3bab0d896",
        "mail": "dave@example.com"
    }
]`
