package httpclient

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthorizationDenied matches every AuthorizationDeniedError via errors.Is.
	ErrAuthorizationDenied = errors.New("httpclient: authorization denied")

	// ErrTransport matches every TransportError via errors.Is.
	ErrTransport = errors.New("httpclient: transport failure")

	// ErrNilTokenSource is returned when a Transport has no token source.
	ErrNilTokenSource = errors.New("httpclient: token source is nil")
)

// AuthorizationDeniedError reports that an API surface rejected a request
// carrying a bearer token: a 401, or a 403 whose challenge names
// invalid_token. The response body has already been closed.
type AuthorizationDeniedError struct {
	Audience   string
	Method     string
	URL        string
	StatusCode int

	// Challenge is the WWW-Authenticate header, if any.
	Challenge string
}

// Error implements the error interface.
func (e *AuthorizationDeniedError) Error() string {
	msg := fmt.Sprintf("httpclient: %s %s rejected for audience %q with status %d", e.Method, e.URL, e.Audience, e.StatusCode)
	if e.Challenge != "" {
		msg += " (" + e.Challenge + ")"
	}
	return msg
}

// Is lets errors.Is match ErrAuthorizationDenied.
func (e *AuthorizationDeniedError) Is(target error) bool {
	return target == ErrAuthorizationDenied
}

// TransportError reports a network failure on the downstream call, after a
// token had been attached.
type TransportError struct {
	Audience string
	Cause    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("httpclient: send request for audience %q: %v", e.Audience, e.Cause)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// invalidTokenChallenge reports whether a WWW-Authenticate value carries
// error="invalid_token".
func invalidTokenChallenge(challenge string) bool {
	normalized := strings.ToLower(strings.ReplaceAll(challenge, " ", ""))
	return strings.Contains(normalized, `error="invalid_token"`) || strings.Contains(normalized, "error=invalid_token")
}
