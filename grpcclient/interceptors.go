package grpcclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"

	"github.com/AmmannChristian/go-azauthx/audience"
)

// TokenSource supplies bearer tokens per audience. *tokenbroker.Broker
// implements it.
type TokenSource interface {
	Token(ctx context.Context, aud audience.Descriptor) (string, error)
}

// UnaryClientInterceptor adds "authorization: Bearer <token>" for aud to the
// outgoing metadata of every unary call. The token is fetched with the call's
// context; when that fails the call is not invoked.
//
//	conn, err := grpc.NewClient(
//	    "server:9090",
//	    grpc.WithUnaryInterceptor(grpcclient.UnaryClientInterceptor(broker, aud)),
//	)
func UnaryClientInterceptor(tokens TokenSource, aud audience.Descriptor) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		ctx, err := withBearer(ctx, tokens, aud)
		if err != nil {
			return err
		}

		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor is the streaming counterpart of
// UnaryClientInterceptor. The stream is not opened without a token.
func StreamClientInterceptor(tokens TokenSource, aud audience.Descriptor) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		ctx, err := withBearer(ctx, tokens, aud)
		if err != nil {
			return nil, err
		}

		return streamer(ctx, desc, cc, method, opts...)
	}
}

func withBearer(ctx context.Context, tokens TokenSource, aud audience.Descriptor) (context.Context, error) {
	if tokens == nil {
		return ctx, errNilTokenSource
	}

	token, err := tokens.Token(ctx, aud)
	if err != nil {
		return ctx, fmt.Errorf("grpcclient: token for audience %q: %w", aud.Name, err)
	}

	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token), nil
}

// PerRPCCredentials returns credentials.PerRPCCredentials that attach a token
// for aud to every RPC. They require transport security.
func PerRPCCredentials(tokens TokenSource, aud audience.Descriptor) credentials.PerRPCCredentials {
	return &tokenCredentials{tokens: tokens, audience: aud}
}

type tokenCredentials struct {
	tokens   TokenSource
	audience audience.Descriptor
}

func (c *tokenCredentials) GetRequestMetadata(ctx context.Context, _ ...string) (map[string]string, error) {
	if c.tokens == nil {
		return nil, errNilTokenSource
	}

	token, err := c.tokens.Token(ctx, c.audience)
	if err != nil {
		return nil, fmt.Errorf("grpcclient: token for audience %q: %w", c.audience.Name, err)
	}

	return map[string]string{"authorization": "Bearer " + token}, nil
}

func (c *tokenCredentials) RequireTransportSecurity() bool {
	return true
}
