package testutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AmmannChristian/go-azauthx/audience"
)

// NewLocalHTTPServer starts an HTTP server bound to IPv4 loopback only.
// The sandbox blocks IPv6 listeners, so force tcp4 to keep tests runnable.
func NewLocalHTTPServer(tb testing.TB, handler http.Handler) *httptest.Server {
	tb.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to create IPv4 listener: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = listener
	server.Start()
	tb.Cleanup(server.Close)

	return server
}

// RoundTripFunc allows inlining http.RoundTripper implementations.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip calls the underlying function.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// JSONResponse builds a response with the given status and JSON body.
func JSONResponse(req *http.Request, status int, body string) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

// StaticJSONResponse returns a RoundTripper that always responds 200 with the provided JSON body.
func StaticJSONResponse(body string) RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		return JSONResponse(req, http.StatusOK, body), nil
	}
}

// TokenEndpoint simulates an OAuth2 client-credentials token endpoint without
// real sockets. The n-th successful call issues "tok<n>". Configure the
// exported fields before the first request.
type TokenEndpoint struct {
	URL string

	// Status overrides the response status; 0 means 200.
	Status int

	// ExpiresIn is returned as expires_in; 0 omits the field.
	ExpiresIn int

	// Gate, when set, holds every request until it is closed or the request
	// context ends.
	Gate chan struct{}

	// Started receives one value per request that reached the endpoint, if set.
	Started chan struct{}

	mu    sync.Mutex
	forms []url.Values
	calls int
}

// NewTokenEndpoint creates an endpoint that issues one-hour tokens.
func NewTokenEndpoint(tb testing.TB) *TokenEndpoint {
	tb.Helper()

	return &TokenEndpoint{
		URL:       "https://login.example.com/tenant/oauth2/v2.0/token",
		ExpiresIn: 3600,
	}
}

// RoundTrip implements http.RoundTripper.
func (e *TokenEndpoint) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		defer req.Body.Close()
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}

	if e.Started != nil {
		e.Started <- struct{}{}
	}

	if e.Gate != nil {
		select {
		case <-e.Gate:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	e.mu.Lock()
	e.forms = append(e.forms, form)
	e.calls++
	n := e.calls
	e.mu.Unlock()

	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	if status != http.StatusOK {
		return JSONResponse(req, status, `{"error":"invalid_client","error_description":"rejected"}`), nil
	}

	payload := map[string]any{
		"access_token": fmt.Sprintf("tok%d", n),
		"token_type":   "Bearer",
	}
	if e.ExpiresIn != 0 {
		payload["expires_in"] = e.ExpiresIn
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return JSONResponse(req, status, string(raw)), nil
}

// Client returns an *http.Client whose transport is the endpoint.
func (e *TokenEndpoint) Client() *http.Client {
	return &http.Client{Transport: e}
}

// Calls returns the number of requests answered.
func (e *TokenEndpoint) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Forms returns copies of the received form bodies in arrival order.
func (e *TokenEndpoint) Forms() []url.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]url.Values, len(e.forms))
	copy(out, e.forms)
	return out
}

// StaticTokens is a token source returning fixed tokens per audience name and
// counting calls. It satisfies httpclient.TokenSource.
type StaticTokens struct {
	Tokens map[string]string
	Err    error

	mu    sync.Mutex
	calls int
}

// Token returns the configured token for the audience's name.
func (s *StaticTokens) Token(_ context.Context, aud audience.Descriptor) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.Err != nil {
		return "", s.Err
	}
	return s.Tokens[aud.Name], nil
}

// Calls returns the number of Token invocations.
func (s *StaticTokens) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// NewTestJWT returns an HS256 token carrying claims. Signature verification is
// irrelevant to callers; it only needs to parse.
func NewTestJWT(tb testing.TB, claims jwt.MapClaims) string {
	tb.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		tb.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

// WriteTestCACert writes a self-signed CA certificate to the provided path for TLS tests.
func WriteTestCACert(tb testing.TB, path string) {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate CA key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		Subject:               pkix.Name{CommonName: "test-ca"},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create CA certificate: %v", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		tb.Fatalf("failed to write CA certificate: %v", err)
	}
}

// WriteTestCertAndKey writes a self-signed certificate and key to the provided paths.
func WriteTestCertAndKey(tb testing.TB, certPath, keyPath string) {
	tb.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		Subject:      pkix.Name{CommonName: "test-cert"},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		tb.Fatalf("failed to create certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		tb.Fatalf("failed to write certificate: %v", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		tb.Fatalf("failed to write key: %v", err)
	}
}
