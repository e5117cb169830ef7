package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/AmmannChristian/go-azauthx/audience"
	"github.com/AmmannChristian/go-azauthx/internal/testutil"
	"github.com/AmmannChristian/go-azauthx/tokenbroker"
)

func okTransport(calls *atomic.Int32, check func(*http.Request)) testutil.RoundTripFunc {
	return func(req *http.Request) (*http.Response, error) {
		if calls != nil {
			calls.Add(1)
		}
		if check != nil {
			check(req)
		}
		return testutil.JSONResponse(req, http.StatusOK, `{"ok":true}`), nil
	}
}

func TestNewTransport(t *testing.T) {
	tokens := &testutil.StaticTokens{}

	transport := NewTransport(tokens, graph, nil)

	if transport == nil {
		t.Fatal("transport should not be nil")
	}

	if transport.Tokens != tokens {
		t.Error("Tokens not set correctly")
	}

	if transport.Base == nil {
		t.Error("Base should default to a transport")
	}
}

func TestNewTransport_WithCustomBase(t *testing.T) {
	customTransport := &http.Transport{}
	transport := NewTransport(&testutil.StaticTokens{}, graph, customTransport)

	if transport.Base != customTransport {
		t.Error("Base should be set to custom transport")
	}
}

func TestTransport_RoundTrip(t *testing.T) {
	tokens := &testutil.StaticTokens{Tokens: map[string]string{audience.DirectoryGraph: "graph-token"}}

	var seen *http.Request
	transport := NewTransport(tokens, graph, okTransport(nil, func(req *http.Request) {
		seen = req
	}))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://graph.microsoft.com/v1.0/users", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	defer resp.Body.Close()

	if got := seen.Header.Get("Authorization"); got != "Bearer graph-token" {
		t.Errorf("unexpected Authorization header: %q", got)
	}
	if got := seen.Header.Get("Accept"); got != "application/json" {
		t.Errorf("unexpected Accept header: %q", got)
	}

	// The caller's request must stay untouched
	if req.Header.Get("Authorization") != "" {
		t.Error("original request should not be modified")
	}
}

func TestTransport_RoundTrip_KeepsCallerAccept(t *testing.T) {
	tokens := &testutil.StaticTokens{Tokens: map[string]string{audience.DirectoryGraph: "graph-token"}}
	transport := NewTransport(tokens, graph, okTransport(nil, func(req *http.Request) {
		if got := req.Header.Get("Accept"); got != "text/plain" {
			t.Errorf("expected caller Accept header, got %q", got)
		}
	}))

	req, _ := http.NewRequest(http.MethodGet, "https://graph.microsoft.com/v1.0/$metadata", nil)
	req.Header.Set("Accept", "text/plain")

	resp, err := transport.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip failed: %v", err)
	}
	resp.Body.Close()
}

func TestTransport_RoundTrip_NilTokens(t *testing.T) {
	transport := &Transport{Audience: graph}

	req, _ := http.NewRequest(http.MethodGet, "https://graph.microsoft.com/v1.0/users", nil)
	_, err := transport.RoundTrip(req)
	if !errors.Is(err, ErrNilTokenSource) {
		t.Fatalf("expected ErrNilTokenSource, got %v", err)
	}
}

func TestTransport_RoundTrip_AcquisitionFailureSendsNothing(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t)
	endpoint.Status = http.StatusUnauthorized
	source := tokenbroker.NewClientCredentialsSource(endpoint.URL, "client", "wrong", tokenbroker.WithHTTPClient(endpoint.Client()))
	broker := tokenbroker.New(source)

	var sent atomic.Int32
	client := &http.Client{Transport: NewTransport(broker, graph, okTransport(&sent, nil))}

	for i := 0; i < 3; i++ {
		body := &trackingBody{Reader: strings.NewReader(`{"displayName":"x"}`)}
		req, _ := http.NewRequest(http.MethodPost, graph.URL("/groups"), body)

		_, err := client.Do(req)
		if err == nil {
			t.Fatal("expected error")
		}

		var acqErr *tokenbroker.CredentialAcquisitionError
		if !errors.As(err, &acqErr) {
			t.Fatalf("expected *tokenbroker.CredentialAcquisitionError, got %T: %v", err, err)
		}
		if !body.closed.Load() {
			t.Error("request body should be closed")
		}
	}

	if sent.Load() != 0 {
		t.Errorf("expected no request to be transmitted, got %d", sent.Load())
	}
}

func TestTransport_RoundTrip_TransportError(t *testing.T) {
	tokens := &testutil.StaticTokens{Tokens: map[string]string{audience.DirectoryGraph: "graph-token"}}
	dialErr := errors.New("dial tcp: connection refused")
	transport := NewTransport(tokens, graph, testutil.RoundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, dialErr
	}))
	client := &http.Client{Transport: transport}

	_, err := client.Get(graph.URL("/users"))
	if err == nil {
		t.Fatal("expected error")
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected *TransportError, got %T", err)
	}
	if transportErr.Audience != audience.DirectoryGraph {
		t.Errorf("unexpected audience: %s", transportErr.Audience)
	}
	if !errors.Is(err, dialErr) || !errors.Is(err, ErrTransport) {
		t.Error("expected error chain to reach the cause and ErrTransport")
	}
}

func TestTransport_RoundTrip_AuthorizationDenied(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		challenge  string
		wantDenied bool
	}{
		{name: "401", status: http.StatusUnauthorized, challenge: `Bearer error="invalid_token"`, wantDenied: true},
		{name: "401 without challenge", status: http.StatusUnauthorized, wantDenied: true},
		{name: "403 invalid token", status: http.StatusForbidden, challenge: `Bearer realm="", error="invalid_token", error_description="expired"`, wantDenied: true},
		{name: "403 insufficient scope", status: http.StatusForbidden, challenge: `Bearer error="insufficient_scope"`, wantDenied: false},
		{name: "403 plain", status: http.StatusForbidden, wantDenied: false},
		{name: "404", status: http.StatusNotFound, wantDenied: false},
		{name: "500", status: http.StatusInternalServerError, wantDenied: false},
	}

	tokens := &testutil.StaticTokens{Tokens: map[string]string{audience.DirectoryGraph: "graph-token"}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := &trackingBody{Reader: strings.NewReader(`{"error":{"code":"InvalidAuthenticationToken"}}`)}
			transport := NewTransport(tokens, graph, testutil.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
				header := make(http.Header)
				if tt.challenge != "" {
					header.Set("WWW-Authenticate", tt.challenge)
				}
				return &http.Response{StatusCode: tt.status, Header: header, Body: body, Request: req}, nil
			}))

			req, _ := http.NewRequest(http.MethodGet, "https://graph.microsoft.com/v1.0/me", nil)
			resp, err := transport.RoundTrip(req)

			if !tt.wantDenied {
				if err != nil {
					t.Fatalf("expected response to pass through, got %v", err)
				}
				if resp.StatusCode != tt.status {
					t.Errorf("expected status %d, got %d", tt.status, resp.StatusCode)
				}
				resp.Body.Close()
				return
			}

			if resp != nil {
				t.Error("expected nil response")
			}

			var denied *AuthorizationDeniedError
			if !errors.As(err, &denied) {
				t.Fatalf("expected *AuthorizationDeniedError, got %T", err)
			}
			if denied.StatusCode != tt.status || denied.Challenge != tt.challenge {
				t.Errorf("unexpected error fields: %+v", denied)
			}
			if denied.Method != http.MethodGet || denied.URL != "https://graph.microsoft.com/v1.0/me" {
				t.Errorf("unexpected request fields: %+v", denied)
			}
			if !errors.Is(err, ErrAuthorizationDenied) {
				t.Error("expected errors.Is to match ErrAuthorizationDenied")
			}
			if !body.closed.Load() {
				t.Error("response body should be closed")
			}
		})
	}
}

func TestTransport_EndToEnd_RefreshAfterExpiry(t *testing.T) {
	endpoint := testutil.NewTokenEndpoint(t)
	clk := testingclock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	source := tokenbroker.NewClientCredentialsSource(endpoint.URL, "client", "secret", tokenbroker.WithHTTPClient(endpoint.Client()))
	broker := tokenbroker.New(source, tokenbroker.WithClock(clk))

	arm := audience.Descriptor{
		Name:    "arm",
		Scope:   "https://management.example/.default",
		BaseURL: "https://management.example",
	}

	var headers []string
	client := NewHTTPClient(broker, arm)
	client.Transport.(*Transport).Base = okTransport(nil, func(req *http.Request) {
		headers = append(headers, req.Header.Get("Authorization"))
	})

	get := func() {
		t.Helper()
		resp, err := client.Get(arm.URL("/resourceGroups"))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
	}

	get()
	get()
	clk.Step(3301 * time.Second)
	get()

	want := []string{"Bearer tok1", "Bearer tok1", "Bearer tok2"}
	if strings.Join(headers, ",") != strings.Join(want, ",") {
		t.Errorf("unexpected Authorization headers: %v, want %v", headers, want)
	}
	if endpoint.Calls() != 2 {
		t.Errorf("expected 2 token requests, got %d", endpoint.Calls())
	}
	if got := endpoint.Forms()[0].Get("scope"); got != arm.Scope {
		t.Errorf("unexpected scope: %s", got)
	}
}

func TestTransport_LocalServer(t *testing.T) {
	server := testutil.NewLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer vault-token" {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"value":"s3cr3t"}`)
	}))

	vault := audience.Descriptor{Name: audience.SecretsVault, Scope: audience.SecretsVaultScope}

	good := NewHTTPClient(&testutil.StaticTokens{Tokens: map[string]string{audience.SecretsVault: "vault-token"}}, vault)
	resp, err := good.Get(server.URL + "/secrets/db")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	bad := NewHTTPClient(&testutil.StaticTokens{Tokens: map[string]string{audience.SecretsVault: "revoked"}}, vault)
	_, err = bad.Get(server.URL + "/secrets/db")
	if !errors.Is(err, ErrAuthorizationDenied) {
		t.Fatalf("expected ErrAuthorizationDenied, got %v", err)
	}
}

func TestNewHTTPClient(t *testing.T) {
	client := NewHTTPClient(&testutil.StaticTokens{}, graph)

	if client.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", client.Timeout)
	}

	if _, ok := client.Transport.(*Transport); !ok {
		t.Error("transport should be *Transport")
	}
}

type trackingBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackingBody) Close() error {
	b.closed.Store(true)
	return nil
}

// Benchmark tests
func BenchmarkTransport_RoundTrip(b *testing.B) {
	tokens := &testutil.StaticTokens{Tokens: map[string]string{audience.DirectoryGraph: "graph-token"}}
	client := &http.Client{Transport: NewTransport(tokens, graph, okTransport(nil, nil))}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, _ := client.Get("https://graph.microsoft.com/v1.0/users")
		if resp != nil {
			resp.Body.Close()
		}
	}
}

func BenchmarkTransport_RoundTrip_Parallel(b *testing.B) {
	broker, _ := newTestBroker(b)
	client := &http.Client{Transport: NewTransport(broker, graph, okTransport(nil, nil))}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			resp, _ := client.Get("https://graph.microsoft.com/v1.0/users")
			if resp != nil {
				resp.Body.Close()
			}
		}
	})
}
