package audience

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Logical names of the built-in protected API surfaces.
const (
	ResourceManager = "arm"
	DirectoryGraph  = "graph"
	SecretsVault    = "keyvault"
)

// Wire-level scope strings expected by the token endpoint.
const (
	ResourceManagerScope = "https://management.azure.com/.default"
	DirectoryGraphScope  = "https://graph.microsoft.com/.default"
	SecretsVaultScope    = "https://vault.azure.net/.default"
)

const (
	resourceManagerEndpoint = "https://management.azure.com"
	directoryGraphEndpoint  = "https://graph.microsoft.com/v1.0"
)

var (
	// ErrNameRequired is returned when a descriptor has no name.
	ErrNameRequired = errors.New("audience: name is required")

	// ErrScopeRequired is returned when a descriptor has no scope.
	ErrScopeRequired = errors.New("audience: scope is required")

	// ErrInvalidURL is returned when a non-empty base URL is not an absolute
	// https URL.
	ErrInvalidURL = errors.New("audience: base URL must be an absolute https URL")
)

// Descriptor is the static configuration of one protected API surface.
// Descriptors are values and are never mutated after construction.
type Descriptor struct {
	// Name is the logical audience name handlers look up (e.g. "arm").
	Name string `mapstructure:"name" yaml:"name"`

	// Scope is the scope string sent to the token endpoint.
	Scope string `mapstructure:"scope" yaml:"scope"`

	// BaseURL is the root of the API surface. It may be empty for surfaces
	// addressed with absolute URLs only.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// Validate checks that the descriptor can be used to build a pipeline.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(d.Scope) == "" {
		return fmt.Errorf("%w (audience %q)", ErrScopeRequired, d.Name)
	}
	if d.BaseURL == "" {
		return nil
	}

	u, err := url.Parse(d.BaseURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w (audience %q): %q", ErrInvalidURL, d.Name, d.BaseURL)
	}

	return nil
}

// URL resolves path against the descriptor's base URL. Absolute URLs are
// returned unchanged.
func (d Descriptor) URL(path string) string {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path
	}
	if d.BaseURL == "" {
		return path
	}

	return strings.TrimRight(d.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// String returns the logical name.
func (d Descriptor) String() string {
	return d.Name
}

// Defaults returns the built-in table of Azure API surfaces.
//
// Parameters:
//   - subscriptionID: scopes the resource-manager base URL when set
//   - vaultName: sets the secrets-vault base URL to https://<vault>.vault.azure.net when set
func Defaults(subscriptionID, vaultName string) []Descriptor {
	arm := resourceManagerEndpoint
	if subscriptionID != "" {
		arm += "/subscriptions/" + url.PathEscape(subscriptionID)
	}

	var vault string
	if vaultName != "" {
		vault = "https://" + vaultName + ".vault.azure.net"
	}

	return []Descriptor{
		{Name: ResourceManager, Scope: ResourceManagerScope, BaseURL: arm},
		{Name: DirectoryGraph, Scope: DirectoryGraphScope, BaseURL: directoryGraphEndpoint},
		{Name: SecretsVault, Scope: SecretsVaultScope, BaseURL: vault},
	}
}
