// Package httpclient sends HTTP requests that carry a bearer token for one audience.
//
// Transport is the request pipeline: an http.RoundTripper that asks a
// TokenSource (usually a *tokenbroker.Broker) for a token, sets
// "Authorization: Bearer <token>" and, unless the caller chose one,
// "Accept: application/json" on a clone of the request, and hands the clone
// to the base transport. No request leaves the process without a token.
//
// Failures are typed:
//
//   - the token source's error, normally *tokenbroker.CredentialAcquisitionError,
//     when no token could be obtained; the base transport is never called
//   - *TransportError when the base transport fails
//   - *AuthorizationDeniedError for a 401, or a 403 whose WWW-Authenticate
//     challenge names invalid_token; the response body is drained and closed
//
// http.Client wraps them in *url.Error, so use errors.As or errors.Is.
// The pipeline never retries.
//
// Builder creates an *http.Client around a Transport with TLS 1.2+, an
// optional custom CA and mTLS key pair, a timeout and redirect control:
//
//	broker := tokenbroker.New(tokenbroker.NewClientCredentialsSource(tokenURL, clientID, clientSecret))
//
//	client, err := httpclient.NewBuilder().
//	    WithBroker(broker).
//	    WithAudience(graph).
//	    WithTLS("/path/to/ca.crt", "", "").
//	    WithTimeout(60 * time.Second).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Get(graph.URL("/users"))
package httpclient
