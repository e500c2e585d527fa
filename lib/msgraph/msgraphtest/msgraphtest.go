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

// Package msgraphtest provides a fake Graph API server for tests.
package msgraphtest

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/google/uuid"
)

// TokenProvider implements the token provider interface of the msgraph
// client with a random in-memory token.
type TokenProvider struct {
	mu    sync.Mutex
	Token string
}

// GetToken returns a token to be used in msgraph requests.
func (t *TokenProvider) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Token == "" {
		t.Token = uuid.NewString()
	}

	return azcore.AccessToken{
		Token: t.Token,
	}, nil
}

// ClearToken deletes the token value.
func (t *TokenProvider) ClearToken() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Token = ""
}

// InspectToken returns the current token without generating a new one if the
// current token is empty. Useful in tests that need to verify that the
// client requested a new token after it was cleared.
func (t *TokenProvider) InspectToken() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.Token
}

// Payloads defines the JSON arrays served as fake Graph responses.
type Payloads struct {
	Users, Policies, RiskyUsers string
	GroupMembers                map[string]string
}

// DefaultPayloads returns the standard response fixture.
func DefaultPayloads() Payloads {
	return Payloads{
		Users:      PayloadListUsers,
		Policies:   PayloadListPolicies,
		RiskyUsers: PayloadListRiskyUsers,
		GroupMembers: map[string]string{
			"group1": PayloadListGroup1Members,
			"group2": PayloadListGroup2Members,
		},
	}
}

// Server is a fake Graph API server.
type Server struct {
	TokenProvider TokenProvider
	Payloads      Payloads
	TLSServer     *httptest.Server
	HTTPClient    *http.Client
}

// ServerOption is a custom opt for [NewServer].
type ServerOption func(*Server)

// WithPayloads sets custom response payloads.
func WithPayloads(p Payloads) ServerOption {
	return func(s *Server) {
		s.Payloads = p
	}
}

// NewServer creates a new fake server.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		TokenProvider: TokenProvider{},
		Payloads:      DefaultPayloads(),
	}
	for _, opt := range opts {
		opt(s)
	}

	tlsServer := httptest.NewTLSServer(s.Handler())
	s.TLSServer = tlsServer

	httpClient := tlsServer.Client()
	httpClient.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
		// Ignore the address and always direct all requests to the fake API server.
		// This allows tests to connect to the fake API server despite the official
		// client trying to reach the official endpoints.
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return net.Dial("tcp", tlsServer.Listener.Addr().String())
		},
	}
	s.HTTPClient = httpClient

	return s
}

// Close shuts the underlying TLS server down.
func (s *Server) Close() {
	s.TLSServer.Close()
}

// Handler returns the fake server handler.
func (s *Server) Handler() http.Handler {
	r := http.NewServeMux()

	r.HandleFunc("GET /v1.0/users", s.handleList(func() string { return s.Payloads.Users }))
	r.HandleFunc("GET /v1.0/identity/conditionalAccess/policies", s.handleList(func() string { return s.Payloads.Policies }))
	r.HandleFunc("GET /v1.0/identityProtection/riskyUsers", s.handleList(func() string { return s.Payloads.RiskyUsers }))
	r.HandleFunc("GET /v1.0/groups/{groupid}/members", s.handleListGroupMembers)

	return r
}

func (s *Server) handleList(payload func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveList(w, r, payload())
	}
}

func (s *Server) handleListGroupMembers(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("groupid")
	payload, ok := s.Payloads.GroupMembers[groupID]
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error": {"code": "Request_ResourceNotFound", "message": "Resource '%s' does not exist."}}`, groupID)
		return
	}
	serveList(w, r, payload)
}

func serveList(w http.ResponseWriter, r *http.Request, payload string) {
	w.Header().Set("Content-Type", "application/json")
	if payload == "" {
		w.Write([]byte(`{"value": []}`))
		return
	}

	var source []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &source); err != nil {
		http.Error(w, fmt.Sprintf("Failed to unmarshal payload: %s", err.Error()), http.StatusInternalServerError)
		return
	}

	Paginator(w, r, source)
}

// Paginator emulates the Graph API's pagination with the given static set of objects.
func Paginator(w http.ResponseWriter, r *http.Request, values []json.RawMessage) {
	top, err := strconv.Atoi(r.URL.Query().Get("$top"))
	if err != nil {
		http.Error(w, "Expected to get $top parameter", http.StatusInternalServerError)
		return
	}

	skip, _ := strconv.Atoi(r.URL.Query().Get("$skipToken"))

	from, to := skip, skip+top
	if to > len(values) {
		to = len(values)
	}
	page := values[from:to]

	nextLink := *r.URL
	nextLink.Host = r.Host
	nextLink.Scheme = "https"
	vals := nextLink.Query()
	// $skipToken is an opaque value in MS Graph, for testing purposes we use a simple offset.
	vals.Set("$skipToken", strconv.Itoa(top+skip))
	nextLink.RawQuery = vals.Encode()

	response := map[string]any{
		"value": page,
	}

	if skip+top < len(values) {
		response["@odata.nextLink"] = nextLink.String()
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, fmt.Sprintf("Failed to marshal payload: %s", err.Error()), http.StatusInternalServerError)
	}
}
