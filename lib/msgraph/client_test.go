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
	"bytes"
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitational/riskaudit/lib/msgraph/msgraphtest"
)

// Always back off for a second for predictability.
var retryConfig = RetryConfig{
	First: time.Second,
	Max:   time.Second,
}

func newTestClient(t *testing.T, srv *msgraphtest.Server, pageSize int) *Client {
	t.Helper()
	client, err := NewClient(Config{
		HTTPClient:    srv.HTTPClient,
		TokenProvider: &srv.TokenProvider,
		RetryConfig:   &retryConfig,
		PageSize:      pageSize,
	})
	require.NoError(t, err)
	return client
}

func TestIterateUsers_Empty(t *testing.T) {
	t.Parallel()

	srv := msgraphtest.NewServer(msgraphtest.WithPayloads(msgraphtest.Payloads{}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv, 0)
	err := client.IterateUsers(t.Context(), func(*User) bool {
		assert.Fail(t, "should never get called")
		return true
	})
	require.NoError(t, err)
}

func TestIterateUsers(t *testing.T) {
	t.Parallel()

	srv := msgraphtest.NewServer()
	t.Cleanup(srv.Close)

	// A small page size so we actually fetch multiple pages with the
	// fixture payload.
	client := newTestClient(t, srv, 2)

	var users []*User
	err := client.IterateUsers(t.Context(), func(u *User) bool {
		users = append(users, u)
		return true
	})

	require.NoError(t, err)
	require.Len(t, users, 5)

	require.Equal(t, "6e7b768e-07e2-4810-8459-485f84f8f204", *users[0].ID)
	require.Equal(t, "Alice Alison", *users[0].DisplayName)
	require.Equal(t, "alice@example.com", *users[0].Mail)
	require.Equal(t, "alice@example.com", *users[0].UserPrincipalName)
	require.Len(t, users[0].AssignedLicenses, 1)
	require.Equal(t, "84a661c4-e949-4bd2-a560-ed7766fcaf2b", *users[0].AssignedLicenses[0].SKUID)

	require.Equal(t, "bob@example.com", *users[1].Mail)
	require.Len(t, users[1].AssignedLicenses, 1)

	require.Empty(t, users[2].AssignedLicenses)
	require.Empty(t, users[3].AssignedLicenses)

	require.Equal(t, "eve#EXT#@example.com", *users[4].UserPrincipalName)
}

func TestIterateConditionalAccessPolicies(t *testing.T) {
	t.Parallel()

	srv := msgraphtest.NewServer()
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv, 2)

	var policies []*ConditionalAccessPolicy
	err := client.IterateConditionalAccessPolicies(t.Context(), func(p *ConditionalAccessPolicy) bool {
		policies = append(policies, p)
		return true
	})

	require.NoError(t, err)
	require.Len(t, policies, 3)

	signInRisk := policies[0]
	require.Equal(t, "Block high sign-in risk", *signInRisk.DisplayName)
	require.Equal(t, "enabled", *signInRisk.State)
	require.Equal(t, []string{"high", "medium"}, signInRisk.Conditions.SignInRiskLevels)
	require.Empty(t, signInRisk.Conditions.UserRiskLevels)
	require.Equal(t, []string{"All"}, signInRisk.Conditions.Users.IncludeUsers)
	require.Equal(t, []string{"group1"}, signInRisk.Conditions.Users.ExcludeGroups)

	userRisk := policies[1]
	require.Equal(t, []string{"high"}, userRisk.Conditions.UserRiskLevels)
	require.Equal(t, []string{"group2"}, userRisk.Conditions.Users.IncludeGroups)

	noRisk := policies[2]
	require.Empty(t, noRisk.Conditions.SignInRiskLevels)
	require.Empty(t, noRisk.Conditions.UserRiskLevels)
}

func TestIterateRiskyUsers(t *testing.T) {
	t.Parallel()

	srv := msgraphtest.NewServer()
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv, 1)

	var risky []*RiskyUser
	err := client.IterateRiskyUsers(t.Context(), func(r *RiskyUser) bool {
		risky = append(risky, r)
		return true
	})

	require.NoError(t, err)
	require.Len(t, risky, 2)
	require.Equal(t, "87d349ed-44d7-43e1-9a83-5f2406dee5bd", *risky[0].ID)
	require.Equal(t, "high", *risky[0].RiskLevel)
	require.Equal(t, "atRisk", *risky[0].RiskState)
	require.Equal(t, time.Date(2025, 5, 2, 14, 30, 0, 0, time.UTC), risky[0].RiskLastUpdatedDateTime.UTC())
	require.Equal(t, "confirmedCompromised", *risky[1].RiskState)
}

func TestIterateGroupMembers(t *testing.T) {
	t.Parallel()

	srv := msgraphtest.NewServer()
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv, 2)

	var members []GroupMember
	err := client.IterateGroupMembers(t.Context(), "group1", func(m GroupMember) bool {
		members = append(members, m)
		return true
	})

	require.NoError(t, err)
	// The device member must be skipped.
	require.Len(t, members, 2)
	{
		require.IsType(t, &User{}, members[0])
		user := members[0].(*User)
		require.Equal(t, "5bde3e51-d13b-4db1-9948-fe4b109d11a7", *user.ID)
		require.Equal(t, "carol@example.com", *user.Mail)
	}
	{
		require.IsType(t, &Group{}, members[1])
		group := members[1].(*Group)
		require.Equal(t, "7db727c5-924a-4f6d-b1f0-d44e6cafa87c", *group.ID)
		require.Equal(t, "Nested Group", *group.DisplayName)
	}
}

func TestIterateGroupMembers_SkipLogging(t *testing.T) {
	t.Parallel()

	srv := msgraphtest.NewServer()
	t.Cleanup(srv.Close)

	// The skipped-member diagnostic must go through the configured
	// logger, not whatever the default logger was at package init.
	var buf bytes.Buffer
	client, err := NewClient(Config{
		HTTPClient:    srv.HTTPClient,
		TokenProvider: &srv.TokenProvider,
		RetryConfig:   &retryConfig,
		Logger:        slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	require.NoError(t, err)

	err = client.IterateGroupMembers(t.Context(), "group1", func(GroupMember) bool { return true })
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "skipping unsupported group member")
	assert.Contains(t, buf.String(), "#microsoft.graph.device")
}

func TestIterateGroupMembers_NotFound(t *testing.T) {
	t.Parallel()

	srv := msgraphtest.NewServer()
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv, 2)

	err := client.IterateGroupMembers(t.Context(), "no-such-group", func(GroupMember) bool {
		assert.Fail(t, "should never get called")
		return true
	})
	require.Error(t, err)

	var graphErr *GraphError
	require.ErrorAs(t, err, &graphErr)
	require.True(t, graphErr.IsNotFound())
}

type failingHandler struct {
	t              *testing.T
	timesCalled    atomic.Int32
	timesToFail    int32
	statusCode     int
	successPayload []byte
	retryAfter     int
}

func (f *failingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.retryAfter != 0 {
		w.Header().Add("Retry-After", strconv.Itoa(f.retryAfter))
	}
	if f.timesCalled.Load() < f.timesToFail {
		w.WriteHeader(f.statusCode)
		w.Write([]byte("{}"))
	} else {
		w.WriteHeader(http.StatusOK)
		w.Write(f.successPayload)
	}
	f.timesCalled.Add(1)
}

func TestRetry(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()

	newRetryClient := func(t *testing.T, handler http.Handler) (*Client, *msgraphtest.TokenProvider) {
		t.Helper()
		mux := http.NewServeMux()
		mux.Handle("GET /v1.0/users", handler)
		srv := httptest.NewTLSServer(mux)
		t.Cleanup(srv.Close)

		tokenProvider := &msgraphtest.TokenProvider{}
		client, err := NewClient(Config{
			HTTPClient:    newRedirectingHTTPClient(srv),
			TokenProvider: tokenProvider,
			RetryConfig:   &retryConfig,
			Clock:         clock,
		})
		require.NoError(t, err)
		return client, tokenProvider
	}

	listUsers := func(client *Client) chan error {
		ret := make(chan error, 1)
		go func() {
			ret <- client.IterateUsers(t.Context(), func(*User) bool { return true })
		}()
		return ret
	}

	t.Run("retriable, with retry-after", func(t *testing.T) {
		handler := &failingHandler{
			t:              t,
			timesToFail:    2,
			statusCode:     http.StatusTooManyRequests,
			successPayload: []byte(`{"value": []}`),
			retryAfter:     10,
		}
		client, _ := newRetryClient(t, handler)

		ret := listUsers(client)

		// Fail for the first time.
		require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
		require.EqualValues(t, 1, handler.timesCalled.Load())

		// Fail for the second time.
		clock.Advance(time.Duration(handler.retryAfter) * time.Second)
		require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
		require.EqualValues(t, 2, handler.timesCalled.Load())

		// Succeed.
		clock.Advance(time.Duration(handler.retryAfter) * time.Second)
		select {
		case err := <-ret:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			require.Fail(t, "expected client to return")
		}
	})

	t.Run("retriable, without retry-after", func(t *testing.T) {
		handler := &failingHandler{
			t:              t,
			timesToFail:    2,
			statusCode:     http.StatusServiceUnavailable,
			successPayload: []byte(`{"value": []}`),
		}
		client, _ := newRetryClient(t, handler)

		ret := listUsers(client)

		// Fail for the first time.
		require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
		require.EqualValues(t, 1, handler.timesCalled.Load())

		// Fail for the second time.
		clock.Advance(time.Second)
		require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
		require.EqualValues(t, 2, handler.timesCalled.Load())

		// Succeed.
		clock.Advance(time.Second)
		select {
		case err := <-ret:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			require.Fail(t, "expected client to return")
		}
	})

	t.Run("non-retriable", func(t *testing.T) {
		handler := &failingHandler{
			t:           t,
			timesToFail: 1,
			statusCode:  http.StatusNotFound,
		}
		client, _ := newRetryClient(t, handler)

		err := client.IterateUsers(t.Context(), func(*User) bool { return true })
		require.Error(t, err)
		require.EqualValues(t, 1, handler.timesCalled.Load())
	})

	// This test simulates a situation in which the token expires between
	// retries. It verifies that the client requests a token before each
	// attempt rather than requesting it just once before the retry loop.
	t.Run("refreshing token between retries", func(t *testing.T) {
		handler := &failingHandler{
			t:              t,
			timesToFail:    1,
			statusCode:     http.StatusTooManyRequests,
			successPayload: []byte(`{"value": []}`),
			retryAfter:     10,
		}
		client, tokenProvider := newRetryClient(t, handler)

		ret := listUsers(client)

		// First failure, the client now waits before retrying.
		require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
		require.EqualValues(t, 1, handler.timesCalled.Load())
		tokenBefore := tokenProvider.InspectToken()
		require.NotEmpty(t, tokenBefore)

		// Clear the token to simulate expiry.
		tokenProvider.ClearToken()

		// Advance time to make the client try again.
		clock.Advance(time.Duration(handler.retryAfter) * time.Second)
		select {
		case err := <-ret:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			require.Fail(t, "expected client to return")
		}

		tokenAfter := tokenProvider.InspectToken()
		require.NotEmpty(t, tokenAfter,
			"the client did not request a new token after the previous one was cleared")
		require.NotEqual(t, tokenBefore, tokenAfter,
			"the client did not get a new token for the second request")
	})
}

// newRedirectingHTTPClient returns an HTTP client that directs all requests
// to the given fake API server regardless of the requested address. This
// allows tests to exercise the client despite it targeting the official
// Graph endpoints.
func newRedirectingHTTPClient(server *httptest.Server) *http.Client {
	var d net.Dialer
	httpClient := server.Client()
	httpClient.Transport = &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", server.Listener.Addr().String())
		},
	}
	return httpClient
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                  string
		config                Config
		expectedGraphEndpoint string
		errAssertion          require.ErrorAssertionFunc
	}{
		{
			name: "empty endpoint sets default graph endpoint",
			config: Config{
				TokenProvider: &msgraphtest.TokenProvider{},
			},
			expectedGraphEndpoint: defaultGraphEndpoint,
			errAssertion:          require.NoError,
		},
		{
			name: "configured endpoint",
			config: Config{
				TokenProvider: &msgraphtest.TokenProvider{},
				GraphEndpoint: "https://dod-graph.microsoft.us",
			},
			expectedGraphEndpoint: "https://dod-graph.microsoft.us",
			errAssertion:          require.NoError,
		},
		{
			name: "invalid endpoint",
			config: Config{
				TokenProvider: &msgraphtest.TokenProvider{},
				GraphEndpoint: "https://graph.windows.net",
			},
			errAssertion: require.Error,
		},
		{
			name:         "missing token provider",
			config:       Config{},
			errAssertion: require.Error,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			clt, err := NewClient(test.config)
			test.errAssertion(t, err)
			if test.expectedGraphEndpoint != "" {
				require.Equal(t, test.expectedGraphEndpoint+"/"+graphVersion, clt.baseURL.String())
			}
		})
	}
}
