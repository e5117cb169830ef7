// Package grpcclient attaches per-audience bearer tokens to gRPC calls.
//
// UnaryClientInterceptor and StreamClientInterceptor add
// "authorization: Bearer <token>" to the outgoing metadata of every call;
// PerRPCCredentials does the same through the credentials.PerRPCCredentials
// hook and refuses insecure transports. A call is aborted before it reaches the
// network when no token could be obtained.
//
// Builder wires either mechanism into a *grpc.ClientConn. TLS 1.2+ with the
// system roots is always on; WithTLS adds a custom CA, mTLS client
// certificate and server name override.
//
//	conn, err := grpcclient.NewBuilder().
//	    WithAddress("server.example.com:9090").
//	    WithBroker(broker).
//	    WithAudience(audience.Descriptor{Name: "arm", Scope: audience.ResourceManagerScope}).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
package grpcclient
