package grpcclient

import (
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/AmmannChristian/go-azauthx/audience"
	"github.com/AmmannChristian/go-azauthx/internal/tlsconfig"
	"github.com/AmmannChristian/go-azauthx/tokenbroker"
)

var (
	errNilTokenSource   = errors.New("grpcclient: token source is nil")
	errAddressRequired  = errors.New("grpcclient: server address is required")
	errAudienceRequired = errors.New("grpcclient: audience is required for token injection")
)

// Builder assembles a *grpc.ClientConn whose RPCs carry a bearer token for one
// audience. Connections always use TLS; without WithTLS the system roots are
// trusted.
type Builder struct {
	address  string
	tokens   TokenSource
	audience audience.Descriptor
	perRPC   bool
	tls      tlsconfig.Files
	dialOpts []grpc.DialOption
}

// NewBuilder creates a new gRPC client builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithAddress sets the target (e.g., "server.example.com:9090").
func (b *Builder) WithAddress(address string) *Builder {
	b.address = address
	return b
}

// WithBroker uses broker as the token source.
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

// WithAudience binds the connection to aud. Every RPC carries a token for it.
func (b *Builder) WithAudience(aud audience.Descriptor) *Builder {
	b.audience = aud
	return b
}

// WithClientCredentials creates a dedicated broker for this connection.
// Prefer WithBroker when several connections or HTTP clients share credentials.
func (b *Builder) WithClientCredentials(tokenURL, clientID, clientSecret string, opts ...tokenbroker.Option) *Builder {
	b.tokens = tokenbroker.New(tokenbroker.NewClientCredentialsSource(tokenURL, clientID, clientSecret), opts...)
	return b
}

// WithPerRPCCredentials attaches tokens through grpc.WithPerRPCCredentials
// instead of client interceptors.
func (b *Builder) WithPerRPCCredentials() *Builder {
	b.perRPC = true
	return b
}

// WithTLS sets the PEM files used to verify the server and, when certFile and
// keyFile are both set, to authenticate the client. serverName overrides the
// verified host name.
func (b *Builder) WithTLS(caFile, certFile, keyFile, serverName string) *Builder {
	b.tls = tlsconfig.Files{
		CAFile:     caFile,
		CertFile:   certFile,
		KeyFile:    keyFile,
		ServerName: serverName,
	}
	return b
}

// WithDialOptions appends dial options after the ones the builder sets.
func (b *Builder) WithDialOptions(opts ...grpc.DialOption) *Builder {
	b.dialOpts = append(b.dialOpts, opts...)
	return b
}

// Build creates the connection. grpc.NewClient connects lazily, so Build
// does not touch the network.
func (b *Builder) Build() (*grpc.ClientConn, error) {
	opts, err := b.dialOptions()
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(b.address, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcclient: dial failed: %w", err)
	}

	return conn, nil
}

func (b *Builder) dialOptions() ([]grpc.DialOption, error) {
	if b.address == "" {
		return nil, errAddressRequired
	}

	tlsConfig, err := b.tls.Load()
	if err != nil {
		return nil, fmt.Errorf("grpcclient: TLS config failed: %w", err)
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig))}

	if b.tokens != nil {
		if b.audience.Name == "" {
			return nil, errAudienceRequired
		}

		if b.perRPC {
			opts = append(opts, grpc.WithPerRPCCredentials(PerRPCCredentials(b.tokens, b.audience)))
		} else {
			opts = append(opts,
				grpc.WithUnaryInterceptor(UnaryClientInterceptor(b.tokens, b.audience)),
				grpc.WithStreamInterceptor(StreamClientInterceptor(b.tokens, b.audience)),
			)
		}
	}

	return append(opts, b.dialOpts...), nil
}
