package httpclient

import (
	"context"
	"io"
	"net/http"

	"github.com/AmmannChristian/go-azauthx/audience"
)

// TokenSource supplies bearer tokens per audience. *tokenbroker.Broker
// implements it.
type TokenSource interface {
	Token(ctx context.Context, aud audience.Descriptor) (string, error)
}

// maxDrainBytes bounds how much of a rejected response body is read before
// closing it, so the connection can be reused.
const maxDrainBytes = 64 << 10

// Transport is an http.RoundTripper bound to one audience. It adds a bearer
// token for that audience to every outgoing request.
//
// It wraps an existing transport (typically http.DefaultTransport) and
// injects the Authorization header before each request. Requests are never
// sent when no token could be obtained.
type Transport struct {
	// Base is the underlying HTTP transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Tokens provides the access tokens.
	Tokens TokenSource

	// Audience is the API surface the requests are bound to.
	Audience audience.Descriptor
}

// RoundTrip implements http.RoundTripper interface.
// It fetches a valid token and adds it as "Authorization: Bearer <token>"
// to a clone of the request before delegating to the base transport.
// The token fetch respects the request context's cancellation and deadline.
//
// Errors:
//   - the token source's error (usually *tokenbroker.CredentialAcquisitionError), nothing sent
//   - *TransportError when the base transport fails
//   - *AuthorizationDeniedError for 401, or 403 with an invalid_token challenge
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Tokens == nil {
		closeBody(req)
		return nil, ErrNilTokenSource
	}

	token, err := t.Tokens.Token(req.Context(), t.Audience)
	if err != nil {
		closeBody(req)
		return nil, err
	}

	// Clone the request to avoid modifying the original
	reqClone := req.Clone(req.Context())
	reqClone.Header.Set("Authorization", "Bearer "+token)
	if reqClone.Header.Get("Accept") == "" {
		reqClone.Header.Set("Accept", "application/json")
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(reqClone)
	if err != nil {
		return nil, &TransportError{Audience: t.Audience.Name, Cause: err}
	}

	if denied(resp) {
		_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)
		_ = resp.Body.Close()

		return nil, &AuthorizationDeniedError{
			Audience:   t.Audience.Name,
			Method:     req.Method,
			URL:        req.URL.Redacted(),
			StatusCode: resp.StatusCode,
			Challenge:  resp.Header.Get("WWW-Authenticate"),
		}
	}

	return resp, nil
}

// closeBody releases the request body when the request is never handed to
// the base transport.
func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

func denied(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		return invalidTokenChallenge(resp.Header.Get("WWW-Authenticate"))
	default:
		return false
	}
}

// NewTransport creates a Transport for aud.
// The base transport defaults to http.DefaultTransport if not specified.
func NewTransport(tokens TokenSource, aud audience.Descriptor, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	return &Transport{
		Base:     base,
		Tokens:   tokens,
		Audience: aud,
	}
}
