package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AmmannChristian/go-azauthx/audience"
	"github.com/AmmannChristian/go-azauthx/internal/tlsconfig"
	"github.com/AmmannChristian/go-azauthx/tokenbroker"
)

// ErrAudienceRequired is returned when a token source is configured without an audience.
var ErrAudienceRequired = errors.New("httpclient: audience is required for token injection")

const defaultTimeout = 30 * time.Second

// Builder assembles an *http.Client bound to one audience. The zero
// configuration (NewBuilder().Build()) is a plain client with TLS 1.2+ and a
// 30s timeout; a token source turns it into an authenticating client.
type Builder struct {
	tokens   TokenSource
	audience audience.Descriptor

	tlsFiles tlsconfig.Files

	timeout         time.Duration
	baseTransport   http.RoundTripper
	followRedirects bool
}

// NewBuilder creates a new HTTP client builder.
func NewBuilder() *Builder {
	return &Builder{
		timeout:         defaultTimeout,
		followRedirects: true,
	}
}

// WithBroker uses broker as the token source. A nil broker is ignored.
func (b *Builder) WithBroker(broker *tokenbroker.Broker) *Builder {
	if broker != nil {
		b.tokens = broker
	}
	return b
}

// WithTokenSource uses any TokenSource, e.g. a fixed token in tests.
func (b *Builder) WithTokenSource(tokens TokenSource) *Builder {
	b.tokens = tokens
	return b
}

// WithAudience binds the client to aud. Every request carries a token for it.
func (b *Builder) WithAudience(aud audience.Descriptor) *Builder {
	b.audience = aud
	return b
}

// WithClientCredentials creates a dedicated broker for this client.
// Prefer WithBroker when several clients share credentials, so they also
// share cached tokens.
func (b *Builder) WithClientCredentials(tokenURL, clientID, clientSecret string, opts ...tokenbroker.Option) *Builder {
	source := tokenbroker.NewClientCredentialsSource(tokenURL, clientID, clientSecret)
	b.tokens = tokenbroker.New(source, opts...)
	return b
}

// WithTLS sets the PEM files used to verify servers and, when certFile and
// keyFile are both set, to authenticate the client. An empty caFile keeps
// the system roots.
func (b *Builder) WithTLS(caFile, certFile, keyFile string) *Builder {
	b.tlsFiles.CAFile = caFile
	b.tlsFiles.CertFile = certFile
	b.tlsFiles.KeyFile = keyFile
	return b
}

// WithInsecureSkipVerify disables certificate verification. Never use it
// outside tests.
func (b *Builder) WithInsecureSkipVerify() *Builder {
	b.tlsFiles.InsecureSkipVerify = true
	return b
}

// WithTimeout bounds each request, token acquisition included. Defaults to 30s.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithBaseTransport sends requests over transport. TLS settings are not
// applied to a custom transport.
func (b *Builder) WithBaseTransport(transport http.RoundTripper) *Builder {
	b.baseTransport = transport
	return b
}

// WithoutRedirects makes Build return redirect responses instead of
// following them.
func (b *Builder) WithoutRedirects() *Builder {
	b.followRedirects = false
	return b
}

// Build returns the configured client. Without a token source the client
// sends requests unauthenticated.
func (b *Builder) Build() (*http.Client, error) {
	transport, err := b.buildBaseTransport()
	if err != nil {
		return nil, err
	}

	if b.tokens != nil {
		if b.audience.Name == "" {
			return nil, ErrAudienceRequired
		}
		transport = NewTransport(b.tokens, b.audience, transport)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   b.timeout,
	}
	if !b.followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return client, nil
}

// BuildTransport returns only the authenticating transport, for callers that
// compose their own http.Client. A token source and audience are required.
func (b *Builder) BuildTransport() (*Transport, error) {
	if b.tokens == nil {
		return nil, ErrNilTokenSource
	}
	if b.audience.Name == "" {
		return nil, ErrAudienceRequired
	}

	base, err := b.buildBaseTransport()
	if err != nil {
		return nil, err
	}

	return NewTransport(b.tokens, b.audience, base), nil
}

// buildBaseTransport returns the custom transport if one was set, otherwise
// a clone of http.DefaultTransport carrying the TLS settings.
func (b *Builder) buildBaseTransport() (http.RoundTripper, error) {
	if b.baseTransport != nil {
		return b.baseTransport, nil
	}

	tlsConfig, err := b.tlsFiles.Load()
	if err != nil {
		return nil, fmt.Errorf("httpclient: TLS config failed: %w", err)
	}

	defaultTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		// http.DefaultTransport was replaced, e.g. by a test stub.
		return http.DefaultTransport, nil
	}

	transport := defaultTransport.Clone()
	transport.TLSClientConfig = tlsConfig
	return transport, nil
}

// NewHTTPClient returns a client bound to aud with the default timeout.
// Use Builder for TLS or transport options.
//
// Example:
//
//	broker := tokenbroker.New(tokenbroker.NewClientCredentialsSource(tokenURL, clientID, clientSecret))
//	client := httpclient.NewHTTPClient(broker, graph)
//	resp, err := client.Get(graph.URL("/users"))
func NewHTTPClient(tokens TokenSource, aud audience.Descriptor) *http.Client {
	return &http.Client{
		Transport: NewTransport(tokens, aud, nil),
		Timeout:   defaultTimeout,
	}
}
