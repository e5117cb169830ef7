package tokenbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultLifetime is assumed when the token endpoint omits expires_in.
const DefaultLifetime = 3600 * time.Second

const defaultTokenTimeout = 30 * time.Second

// Grant is the result of one successful acquisition.
type Grant struct {
	// AccessToken is the opaque bearer token.
	AccessToken string

	// Lifetime is the server-declared validity, counted from receipt.
	Lifetime time.Duration
}

// CredentialSource obtains a fresh token for a scope. Implementations must be
// safe for concurrent use and must honor ctx.
type CredentialSource interface {
	Acquire(ctx context.Context, scope string) (*Grant, error)
}

// SourceFunc adapts a function to CredentialSource.
type SourceFunc func(ctx context.Context, scope string) (*Grant, error)

// Acquire calls f.
func (f SourceFunc) Acquire(ctx context.Context, scope string) (*Grant, error) {
	return f(ctx, scope)
}

// ClientCredentialsSource performs the OAuth2 client-credentials grant against
// a token endpoint. Client id and secret travel in the form body next to
// grant_type=client_credentials and the requested scope.
type ClientCredentialsSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// SourceOption configures a ClientCredentialsSource.
type SourceOption func(*ClientCredentialsSource)

// WithHTTPClient sets the client used to reach the token endpoint.
// The default has a 30 second timeout.
func WithHTTPClient(client *http.Client) SourceOption {
	return func(s *ClientCredentialsSource) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewClientCredentialsSource creates a client-credentials source.
//
// Parameters:
//   - tokenURL: token endpoint (e.g., "https://login.microsoftonline.com/<tenant>/oauth2/v2.0/token")
//   - clientID: OAuth2 client identifier
//   - clientSecret: OAuth2 client secret
//   - opts: Optional configuration options (WithHTTPClient)
func NewClientCredentialsSource(tokenURL, clientID, clientSecret string, opts ...SourceOption) *ClientCredentialsSource {
	s := &ClientCredentialsSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: defaultTokenTimeout},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Acquire requests a token for scope.
func (s *ClientCredentialsSource) Acquire(ctx context.Context, scope string) (*Grant, error) {
	config := &clientcredentials.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		TokenURL:     s.tokenURL,
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	token, err := config.Token(ctx)
	if err != nil {
		if isEndpointFailure(err) {
			return nil, err
		}
		// x/oauth2 reports unparsable bodies and missing access tokens as
		// plain errors.
		return nil, fmt.Errorf("%w: %v", ErrMalformedGrant, err)
	}
	if token.AccessToken == "" {
		return nil, ErrMalformedGrant
	}

	return &Grant{
		AccessToken: token.AccessToken,
		Lifetime:    lifetimeOf(token),
	}, nil
}

// isEndpointFailure reports whether err came from the endpoint's status or
// from the transport rather than from the response payload.
func isEndpointFailure(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// lifetimeOf reads the raw expires_in field. The parsed oauth2.Token only
// carries an absolute expiry computed from the wall clock, which would bypass
// the broker's clock.
func lifetimeOf(token *oauth2.Token) time.Duration {
	var seconds int64

	switch v := token.Extra("expires_in").(type) {
	case float64:
		seconds = int64(v)
	case json.Number:
		seconds, _ = v.Int64()
	case string:
		seconds, _ = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case int64:
		seconds = v
	case int:
		seconds = int64(v)
	}

	if seconds <= 0 {
		return DefaultLifetime
	}

	return time.Duration(seconds) * time.Second
}
