// Package tokenbroker obtains OAuth2 client-credentials tokens per audience and caches them in memory.
//
// A Broker owns one Cache and one CredentialSource. GetToken returns the cached token while it is still
// valid and acquires a new one otherwise. Each token expires from the cache 300 seconds (DefaultRefreshBuffer)
// before the server-declared lifetime ends, so it is replaced before the server would reject it.
//
// # Features
//
//   - One cached token per audience, keyed by scope
//   - Concurrent callers for the same audience share one acquisition (WithoutDeduplication to opt out)
//   - Acquisitions survive caller cancellation and still populate the cache
//   - Client-credentials grant with client id and secret in the form body (ClientCredentialsSource)
//   - azidentity and azcore interop (AzureIdentitySource, Broker.Credential)
//   - Injectable clock (WithClock) and structured logrus logging that never includes tokens
//
// # Quick Start
//
//	source := tokenbroker.NewClientCredentialsSource(
//	    "https://login.microsoftonline.com/<tenant>/oauth2/v2.0/token",
//	    "client-id",
//	    "client-secret",
//	)
//	broker := tokenbroker.New(source, tokenbroker.WithLoggingEnabled())
//
//	token, err := broker.Token(ctx, audience.Descriptor{
//	    Name:  audience.DirectoryGraph,
//	    Scope: audience.DirectoryGraphScope,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Notes
//
//   - Failed acquisitions return *CredentialAcquisitionError and leave the cache untouched.
//   - A token whose lifetime is shorter than the refresh buffer is returned once and reacquired on the next call.
package tokenbroker
