package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmmannChristian/go-azauthx/audience"
)

// clearEnv blanks every bound variable; viper treats empty values as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(EnvPrefix+"_"+strings.ToUpper(key), "")
	}
}

func validConfig() *Config {
	return &Config{
		TenantID:         "tenant",
		ClientID:         "client",
		ClientSecret:     "secret",
		CredentialSource: SourceClientCredentials,
		RefreshBuffer:    5 * time.Minute,
		HTTPTimeout:      30 * time.Second,
		LogFormat:        "text",
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultAuthorityHost, cfg.AuthorityHost)
	assert.Equal(t, SourceClientCredentials, cfg.CredentialSource)
	assert.Equal(t, 300*time.Second, cfg.RefreshBuffer)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.DeduplicateRefresh)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Enabled())
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("AZURE_TENANT_ID", "my-tenant")
	t.Setenv("AZURE_CLIENT_ID", "my-client")
	t.Setenv("AZURE_CLIENT_SECRET", "my-secret")
	t.Setenv("AZURE_SUBSCRIPTION_ID", "sub-1")
	t.Setenv("AZURE_REFRESH_BUFFER", "60s")
	t.Setenv("AZURE_DEDUPLICATE_REFRESH", "false")
	t.Setenv("AZURE_LOG_FORMAT", "json")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "my-tenant", cfg.TenantID)
	assert.Equal(t, "my-client", cfg.ClientID)
	assert.Equal(t, "my-secret", cfg.ClientSecret)
	assert.Equal(t, time.Minute, cfg.RefreshBuffer)
	assert.False(t, cfg.DeduplicateRefresh)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.Enabled())
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://login.microsoftonline.com/my-tenant/oauth2/v2.0/token", cfg.TokenURL())
	assert.Equal(t, "https://management.azure.com/subscriptions/sub-1", cfg.Descriptors()[0].BaseURL)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	t.Setenv("AZURE_CLIENT_SECRET", "from-env")

	path := filepath.Join(t.TempDir(), "azauthx.yaml")
	content := `tenant_id: file-tenant
client_id: file-client
client_secret: from-file
authority_host: login.example.com
http_timeout: 10s
audiences:
  - name: arm
    scope: https://management.example/.default
    base_url: https://management.example
  - name: custom
    scope: api://custom/.default
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-tenant", cfg.TenantID)
	assert.Equal(t, "from-env", cfg.ClientSecret, "environment should win over the file")
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "https://login.example.com/file-tenant/oauth2/v2.0/token", cfg.TokenURL())

	descriptors := cfg.Descriptors()
	require.Len(t, descriptors, 2)
	assert.Equal(t, audience.Descriptor{
		Name:    "arm",
		Scope:   "https://management.example/.default",
		BaseURL: "https://management.example",
	}, descriptors[0])
	assert.Equal(t, "custom", descriptors[1].Name)
	assert.Empty(t, descriptors[1].BaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing tenant", mutate: func(c *Config) { c.TenantID = " " }, wantErr: ErrTenantRequired},
		{name: "missing client id", mutate: func(c *Config) { c.ClientID = "" }, wantErr: ErrClientIDRequired},
		{name: "missing secret", mutate: func(c *Config) { c.ClientSecret = "" }, wantErr: ErrClientSecretRequired},
		{name: "unknown source", mutate: func(c *Config) { c.CredentialSource = "msi" }, wantErr: ErrUnknownCredentialSource},
		{name: "azidentity source", mutate: func(c *Config) { c.CredentialSource = SourceAzureIdentity }},
		{name: "negative buffer", mutate: func(c *Config) { c.RefreshBuffer = -time.Second }, wantErr: ErrInvalidRefreshBuffer},
		{name: "zero timeout", mutate: func(c *Config) { c.HTTPTimeout = 0 }, wantErr: ErrInvalidHTTPTimeout},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: ErrInvalidLogFormat},
		{
			name: "invalid audience",
			mutate: func(c *Config) {
				c.Audiences = []audience.Descriptor{{Name: "arm"}}
			},
			wantErr: audience.ErrScopeRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_Authority(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{host: "", want: DefaultAuthorityHost},
		{host: "login.example.com", want: "login.example.com"},
		{host: "https://login.example.com/", want: "login.example.com"},
		{host: " login.microsoftonline.us ", want: "login.microsoftonline.us"},
	}

	for _, tt := range tests {
		cfg := &Config{AuthorityHost: tt.host}
		assert.Equal(t, tt.want, cfg.Authority(), "host %q", tt.host)
	}
}

func TestConfig_Descriptors_Defaults(t *testing.T) {
	cfg := &Config{KeyVaultName: "myvault"}

	descriptors := cfg.Descriptors()
	require.Len(t, descriptors, 3)

	names := []string{descriptors[0].Name, descriptors[1].Name, descriptors[2].Name}
	assert.Equal(t, []string{audience.ResourceManager, audience.DirectoryGraph, audience.SecretsVault}, names)
	assert.Equal(t, "https://myvault.vault.azure.net", descriptors[2].BaseURL)
}

func TestConfig_Descriptors_ReturnsCopy(t *testing.T) {
	cfg := &Config{Audiences: []audience.Descriptor{{Name: "a", Scope: "s"}}}

	descriptors := cfg.Descriptors()
	descriptors[0].Name = "changed"

	assert.Equal(t, "a", cfg.Audiences[0].Name)
}
