package tokenbroker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"k8s.io/utils/clock"
)

// AzureIdentitySource adapts an azcore.TokenCredential, such as an
// azidentity credential, into a CredentialSource.
type AzureIdentitySource struct {
	// Credential issues the tokens.
	Credential azcore.TokenCredential

	// Clock converts ExpiresOn into a lifetime. If nil, the wall clock is used.
	Clock clock.PassiveClock
}

// NewClientSecretSource builds an AzureIdentitySource backed by
// azidentity.ClientSecretCredential.
//
// Parameters:
//   - tenantID: directory (tenant) identifier
//   - clientID: application (client) identifier
//   - clientSecret: client secret
//   - authorityHost: token issuer host (e.g., "login.microsoftonline.com"); empty uses the public cloud
//   - httpClient: transport for token requests; nil uses the SDK default
func NewClientSecretSource(tenantID, clientID, clientSecret, authorityHost string, httpClient *http.Client) (*AzureIdentitySource, error) {
	opts := &azidentity.ClientSecretCredentialOptions{}
	if authorityHost != "" {
		host := strings.TrimRight(authorityHost, "/")
		if !strings.Contains(host, "://") {
			host = "https://" + host
		}
		opts.Cloud = cloud.Configuration{ActiveDirectoryAuthorityHost: host + "/"}
	}
	if httpClient != nil {
		opts.Transport = httpClient
	}

	cred, err := azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, opts)
	if err != nil {
		return nil, fmt.Errorf("tokenbroker: create client secret credential: %w", err)
	}

	return &AzureIdentitySource{Credential: cred}, nil
}

// Acquire requests a token for scope from the wrapped credential.
func (s *AzureIdentitySource) Acquire(ctx context.Context, scope string) (*Grant, error) {
	if s.Credential == nil {
		return nil, ErrNilSource
	}

	token, err := s.Credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		return nil, err
	}
	if token.Token == "" {
		return nil, ErrMalformedGrant
	}

	clk := s.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	lifetime := DefaultLifetime
	if !token.ExpiresOn.IsZero() {
		lifetime = token.ExpiresOn.Sub(clk.Now())
	}

	return &Grant{
		AccessToken: token.Token,
		Lifetime:    lifetime,
	}, nil
}
