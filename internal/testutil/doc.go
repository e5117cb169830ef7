// Package testutil provides test helpers for go-azauthx packages.
//
// It includes utilities to spin up IPv4-only local HTTP servers (avoiding IPv6 in sandboxes),
// simulate OAuth2 token endpoints without real sockets, and generate self-signed certificates for TLS/mTLS tests.
//
// # Utilities
//
//   - NewLocalHTTPServer: start httptest server bound to 127.0.0.1
//   - TokenEndpoint: stub client-credentials endpoint issuing tok1, tok2, ... and recording form bodies
//   - StaticTokens: fixed per-audience bearer tokens for pipeline tests
//   - RoundTripFunc, JSONResponse and StaticJSONResponse: inline http.RoundTripper implementations
//   - NewTestJWT: parseable JWTs for token inspection tests
//   - WriteTestCACert / WriteTestCertAndKey: generate temporary CA and leaf certificates for tests
package testutil
