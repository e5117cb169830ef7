package tokenbroker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"golang.org/x/oauth2"
)

var (
	// ErrCredentialAcquisition matches every CredentialAcquisitionError via errors.Is.
	ErrCredentialAcquisition = errors.New("tokenbroker: credential acquisition failed")

	// ErrMalformedGrant is returned when a source answers without an access token
	// or with a payload that cannot be parsed.
	ErrMalformedGrant = errors.New("tokenbroker: malformed grant")

	// ErrScopeMismatch is returned by AudienceCredential for foreign scopes.
	ErrScopeMismatch = errors.New("tokenbroker: requested scopes do not match audience")

	// ErrNilSource is returned when the broker has no credential source.
	ErrNilSource = errors.New("tokenbroker: credential source is nil")
)

// CredentialAcquisitionError reports that no token could be obtained for an
// audience: the token endpoint was unreachable, answered with a non-success
// status, or returned a malformed payload.
type CredentialAcquisitionError struct {
	// Audience is the logical audience name.
	Audience string

	// Scope is the scope that was requested.
	Scope string

	// StatusCode is the token endpoint's HTTP status, 0 if there was none.
	StatusCode int

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *CredentialAcquisitionError) Error() string {
	msg := fmt.Sprintf("tokenbroker: acquire token for audience %q", e.Audience)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CredentialAcquisitionError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match ErrCredentialAcquisition.
func (e *CredentialAcquisitionError) Is(target error) bool {
	return target == ErrCredentialAcquisition
}

// Retryable reports whether a later attempt could succeed: the endpoint was
// unreachable, throttled, or failed server-side. Rejected credentials and
// caller cancellation are not retryable.
func (e *CredentialAcquisitionError) Retryable() bool {
	if errors.Is(e.Cause, context.Canceled) || errors.Is(e.Cause, context.DeadlineExceeded) {
		return false
	}
	switch {
	case e.StatusCode == 0:
		return !errors.Is(e.Cause, ErrMalformedGrant)
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return e.StatusCode >= http.StatusInternalServerError
	}
}

// statusCodeOf extracts the token endpoint status from source errors.
func statusCodeOf(err error) int {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return retrieveErr.Response.StatusCode
	}

	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) && authErr.RawResponse != nil {
		return authErr.RawResponse.StatusCode
	}

	return 0
}
