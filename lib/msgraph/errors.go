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

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gravitational/trace"
)

type graphErrorResponse struct {
	Error *GraphError `json:"error,omitempty"`
}

// GraphError is the error payload returned by the Graph API.
type GraphError struct {
	Code       string       `json:"code,omitempty"`
	Message    string       `json:"message,omitempty"`
	InnerError *GraphError  `json:"innerError,omitempty"`
	Details    []GraphError `json:"details,omitempty"`
	StatusCode int          `json:"-"`
}

func (g *GraphError) Error() string {
	var parts []string
	if g.Code != "" {
		parts = append(parts, strings.TrimPrefix(g.Code, "Request_"))
	}

	if g.Message != "" {
		parts = append(parts, g.Message)
	}

	return strings.Join(parts, ": ")
}

// IsNotFound returns true if the error indicates that the requested
// directory object does not exist.
func (g *GraphError) IsNotFound() bool {
	return g.StatusCode == http.StatusNotFound
}

// readError parses a Graph API error response body. A nil GraphError with a
// nil error means the body carried no structured error payload.
func readError(body []byte, statusCode int) (*GraphError, error) {
	var errResponse graphErrorResponse
	if err := json.Unmarshal(body, &errResponse); err != nil {
		return nil, trace.Wrap(err)
	}
	if errResponse.Error != nil {
		errResponse.Error.StatusCode = statusCode
		return errResponse.Error, nil
	}
	return nil, nil
}
