package tokenbroker

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/AmmannChristian/go-azauthx/audience"
)

// AudienceCredential exposes one audience of a Broker as an
// azcore.TokenCredential, so Azure SDK clients share the broker's cache.
type AudienceCredential struct {
	broker   *Broker
	audience audience.Descriptor
}

var _ azcore.TokenCredential = (*AudienceCredential)(nil)

// Credential returns an azcore.TokenCredential bound to aud.
func (b *Broker) Credential(aud audience.Descriptor) *AudienceCredential {
	return &AudienceCredential{broker: b, audience: aud}
}

// GetToken implements azcore.TokenCredential. Requests for scopes other than
// the bound audience's fail with ErrScopeMismatch.
func (c *AudienceCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	for _, scope := range opts.Scopes {
		if scope != c.audience.Scope {
			return azcore.AccessToken{}, ErrScopeMismatch
		}
	}

	token, err := c.broker.GetToken(ctx, c.audience)
	if err != nil {
		return azcore.AccessToken{}, err
	}

	// The SDK applies its own refresh margin, so report the server's expiry.
	return azcore.AccessToken{
		Token:     token.AccessToken.Value(),
		ExpiresOn: token.ExpiresAt.Add(c.broker.refreshBuffer),
	}, nil
}
