// Package auth resolves the tenant of an HTTP request.
//
// A tenant is either the subject of a bearer token, verified against the
// identity provider, or the X-Tenant-ID header, depending on the mode.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// ErrVerifierUnavailable is returned when a bearer token is presented but
// no identity provider is configured.
var ErrVerifierUnavailable = ragerr.New(ragerr.ErrDependencyUnavailable, "identity provider not configured")

// Verifier maps a bearer token to the subject id it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// RemoteVerifier asks the identity provider's user endpoint who a token
// belongs to.
type RemoteVerifier struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// NewRemoteVerifier returns a verifier for the identity provider at baseURL.
func NewRemoteVerifier(baseURL, apiKey string, timeout time.Duration) (*RemoteVerifier, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: identity provider URL is required", ragerr.ErrConfiguration)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}, nil
}

type userResponse struct {
	ID string `json:"id"`
}

// Verify returns the user id of token. Any non-200 answer or a response
// without an id is ErrInvalidCredentials.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ragerr.ErrMissingCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	// oauth2 wraps the transport of the client stored under oauth2.HTTPClient.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.client)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("building identity request: %w", err)
	}
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: identity provider did not answer: %w", ragerr.ErrInvalidCredentials, err)
		}
		return "", fmt.Errorf("%w: identity provider request failed", ragerr.ErrInvalidCredentials)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: identity provider returned %d", ragerr.ErrInvalidCredentials, resp.StatusCode)
	}

	var user userResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return "", fmt.Errorf("%w: malformed identity response", ragerr.ErrInvalidCredentials)
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: identity response has no user id", ragerr.ErrInvalidCredentials)
	}
	return user.ID, nil
}

// StaticVerifier accepts a fixed set of tokens. Used for local development
// and tests.
type StaticVerifier map[string]string

func (s StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", ragerr.ErrMissingCredentials
	}
	if subject, ok := s[token]; ok {
		return subject, nil
	}
	return "", ragerr.ErrInvalidCredentials
}
