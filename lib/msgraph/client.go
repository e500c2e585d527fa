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

// Package msgraph implements a minimal Microsoft Graph API client
// covering the directory surface the audit needs: users with license
// assignments, conditional access policies, group membership and the
// Identity Protection risky user feed.
package msgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/gravitational/riskaudit"
)

const graphVersion = "v1.0"

// defaultGraphEndpoint is the Graph endpoint for the worldwide cloud.
const defaultGraphEndpoint = "https://graph.microsoft.com"

// graphEndpoints lists the known Graph API endpoints across national clouds.
var graphEndpoints = []string{
	defaultGraphEndpoint,
	"https://graph.microsoft.us",
	"https://dod-graph.microsoft.us",
	"https://microsoftgraph.chinacloudapi.cn",
}

var scopes = []string{"https://graph.microsoft.com/.default"}

const (
	defaultPageSize = 500
	maxRetries      = 5
)

// UnsupportedGroupMember is returned when a group member cannot be decoded
// into one of the supported directory object types.
type UnsupportedGroupMember struct {
	Type string
}

func (u *UnsupportedGroupMember) Error() string {
	return fmt.Sprintf("unsupported group member: %q", u.Type)
}

type azureTokenProvider interface {
	GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error)
}

// RetryConfig controls the backoff behavior for retriable request failures.
type RetryConfig struct {
	// First is the delay before the first retry attempt.
	First time.Duration
	// Max caps the delay between attempts.
	Max time.Duration
}

var defaultRetryConfig = RetryConfig{
	First: 1 * time.Second,
	Max:   30 * time.Second,
}

// Config defines the configuration of the Graph API client.
type Config struct {
	// TokenProvider provides the bearer tokens for Graph API requests.
	// Any [azcore.TokenCredential] satisfies this interface.
	TokenProvider azureTokenProvider
	// HTTPClient is the HTTP client to use, defaults to [http.DefaultClient].
	HTTPClient *http.Client
	// GraphEndpoint is the Graph API endpoint, defaults to the worldwide
	// cloud endpoint. Must be one of the known national cloud endpoints.
	GraphEndpoint string
	// PageSize overrides the number of objects requested per page.
	PageSize int
	// RetryConfig overrides the backoff applied to throttled requests.
	RetryConfig *RetryConfig
	// Clock is used to wait between retries, defaults to the real clock.
	Clock clockwork.Clock
	// Logger is the logger for request diagnostics. Optional.
	Logger *slog.Logger
}

// SetDefaults sets the default values for optional fields.
func (cfg *Config) SetDefaults() {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.GraphEndpoint == "" {
		cfg.GraphEndpoint = defaultGraphEndpoint
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = &defaultRetryConfig
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.With(riskaudit.ComponentKey, riskaudit.ComponentGraph)
	}
}

// Validate checks that the required fields are set.
func (cfg *Config) Validate() error {
	if cfg.TokenProvider == nil {
		return trace.BadParameter("TokenProvider must be set")
	}
	if !slices.Contains(graphEndpoints, cfg.GraphEndpoint) {
		return trace.BadParameter("unsupported Graph endpoint %q", cfg.GraphEndpoint)
	}
	return nil
}

// Client is a thin wrapper over the Graph API HTTP surface.
type Client struct {
	httpClient    *http.Client
	tokenProvider azureTokenProvider
	clock         clockwork.Clock
	retryConfig   RetryConfig
	pageSize      int
	baseURL       *url.URL
	log           *slog.Logger
}

// NewClient returns a new Graph API client for the given config.
func NewClient(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, trace.Wrap(err)
	}
	uri, err := url.Parse(cfg.GraphEndpoint + "/" + graphVersion)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Client{
		httpClient:    cfg.HTTPClient,
		tokenProvider: cfg.TokenProvider,
		clock:         cfg.Clock,
		retryConfig:   *cfg.RetryConfig,
		pageSize:      cfg.PageSize,
		baseURL:       uri,
		log:           cfg.Logger,
	}, nil
}

// request performs a single Graph API request, retrying throttled and
// temporarily unavailable responses. The token is acquired before every
// attempt so that a token expiring mid-backoff does not fail the retry.
func (c *Client) request(ctx context.Context, method string, uri string) (*http.Response, error) {
	var lastErr error
	for attempt := range maxRetries {
		if attempt != 0 {
			select {
			case <-ctx.Done():
				return nil, trace.Wrap(ctx.Err())
			case <-c.clock.After(c.retryDelay(attempt, lastErr)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, uri, nil)
		if err != nil {
			return nil, trace.Wrap(err)
		}
		token, err := c.tokenProvider.GetToken(ctx, policy.TokenRequestOptions{
			Scopes: scopes,
		})
		if err != nil {
			return nil, trace.Wrap(err, "failed to get azure authentication token")
		}
		req.Header.Add("Authorization", "Bearer "+token.Token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, trace.Wrap(err) // hard I/O error, bail
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 400 {
			return resp, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if graphErr, err := readError(body, resp.StatusCode); err == nil && graphErr != nil {
			lastErr = trace.Wrap(graphErr)
		} else {
			lastErr = trace.Errorf("status %s", resp.Status)
		}
		if !isRetriable(resp.StatusCode) {
			return nil, trace.Wrap(lastErr)
		}
		lastErr = withRetryAfter(lastErr, resp.Header.Get("Retry-After"))
	}
	return nil, trace.Wrap(lastErr)
}

// retryDelay returns the delay before the given retry attempt, preferring
// the server-provided Retry-After value over the configured linear backoff.
func (c *Client) retryDelay(attempt int, lastErr error) time.Duration {
	var ra *retryAfterError
	if errors.As(lastErr, &ra) {
		return ra.delay
	}
	delay := c.retryConfig.First * time.Duration(attempt)
	return min(delay, c.retryConfig.Max)
}

type retryAfterError struct {
	delay time.Duration
	err   error
}

func (r *retryAfterError) Error() string { return r.err.Error() }
func (r *retryAfterError) Unwrap() error { return r.err }

func withRetryAfter(err error, header string) error {
	seconds, convErr := strconv.Atoi(header)
	if convErr != nil || seconds <= 0 {
		return err
	}
	return &retryAfterError{delay: time.Duration(seconds) * time.Second, err: err}
}

// iterate fetches the given collection endpoint page by page, invoking f
// with the raw value array of each page until f returns false or the final
// page is reached.
func (c *Client) iterate(ctx context.Context, endpoint string, query url.Values, f func(json.RawMessage) bool) error {
	uri := *c.baseURL
	uri.Path = path.Join(uri.Path, endpoint)
	if query == nil {
		query = make(url.Values)
	}
	query.Set("$top", strconv.Itoa(c.pageSize))
	uri.RawQuery = query.Encode()
	uriString := uri.String()
	for uriString != "" {
		resp, err := c.request(ctx, http.MethodGet, uriString)
		if err != nil {
			return trace.Wrap(err)
		}

		var page oDataPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return trace.Wrap(err)
		}
		uriString = page.NextLink
		if !f(page.Value) {
			break
		}
	}

	return nil
}

// iterateSimple implements pagination for "simple" object lists, where no
// per-entry decoding logic is needed.
func iterateSimple[T any](c *Client, ctx context.Context, endpoint string, query url.Values, f func(*T) bool) error {
	var err error
	itErr := c.iterate(ctx, endpoint, query, func(msg json.RawMessage) bool {
		var page []T
		if err = json.Unmarshal(msg, &page); err != nil {
			return false
		}
		for _, item := range page {
			if !f(&item) {
				return false
			}
		}
		return true
	})
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(itErr)
}

// IterateUsers lists all users in the tenant, including their assigned
// license SKUs.
func (c *Client) IterateUsers(ctx context.Context, f func(*User) bool) error {
	query := url.Values{
		"$select": {"id,displayName,mail,userPrincipalName,assignedLicenses"},
	}
	return iterateSimple(c, ctx, "users", query, f)
}

// IterateConditionalAccessPolicies lists all conditional access policies
// defined in the tenant.
func (c *Client) IterateConditionalAccessPolicies(ctx context.Context, f func(*ConditionalAccessPolicy) bool) error {
	return iterateSimple(c, ctx, "identity/conditionalAccess/policies", nil, f)
}

// IterateRiskyUsers lists the users currently flagged by Identity
// Protection.
func (c *Client) IterateRiskyUsers(ctx context.Context, f func(*RiskyUser) bool) error {
	return iterateSimple(c, ctx, "identityProtection/riskyUsers", nil, f)
}

func decodeGroupMember(msg json.RawMessage) (GroupMember, error) {
	var temp struct {
		Type string `json:"@odata.type"`
	}

	if err := json.Unmarshal(msg, &temp); err != nil {
		return nil, trace.Wrap(err)
	}

	var err error
	var member GroupMember
	switch temp.Type {
	case "#microsoft.graph.user":
		var u *User
		err = json.Unmarshal(msg, &u)
		member = u
	case "#microsoft.graph.group":
		var g *Group
		err = json.Unmarshal(msg, &g)
		member = g
	default:
		err = &UnsupportedGroupMember{Type: temp.Type}
	}

	return member, trace.Wrap(err)
}

// IterateGroupMembers lists the direct members of the given group. Members
// of unsupported directory object types (devices, service principals) are
// skipped.
func (c *Client) IterateGroupMembers(ctx context.Context, groupID string, f func(GroupMember) bool) error {
	var err error
	itErr := c.iterate(ctx, path.Join("groups", groupID, "members"), nil, func(msg json.RawMessage) bool {
		var page []json.RawMessage
		if err = json.Unmarshal(msg, &page); err != nil {
			return false
		}
		for _, entry := range page {
			var member GroupMember
			member, err = decodeGroupMember(entry)
			if err != nil {
				var gmErr *UnsupportedGroupMember
				if errors.As(err, &gmErr) {
					c.log.DebugContext(ctx, "skipping unsupported group member", "type", gmErr.Type)
					err = nil // Reset so that we do not return the error up if this is the last entry
					continue
				}
				return false
			}
			if !f(member) {
				return false
			}
		}
		return true
	})
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(itErr)
}

func isRetriable(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}
