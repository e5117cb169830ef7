package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/AmmannChristian/go-azauthx/audience"
)

// EnvPrefix is prepended to every environment variable (AZURE_TENANT_ID, ...).
const EnvPrefix = "AZURE"

// Credential source kinds.
const (
	SourceClientCredentials = "client_credentials"
	SourceAzureIdentity     = "azidentity"
)

// DefaultAuthorityHost is the public-cloud token issuer.
const DefaultAuthorityHost = "login.microsoftonline.com"

var (
	// ErrTenantRequired is returned by Validate when tenant_id is empty.
	ErrTenantRequired = errors.New("config: tenant_id is required")

	// ErrClientIDRequired is returned by Validate when client_id is empty.
	ErrClientIDRequired = errors.New("config: client_id is required")

	// ErrClientSecretRequired is returned by Validate when client_secret is empty.
	ErrClientSecretRequired = errors.New("config: client_secret is required")

	// ErrUnknownCredentialSource is returned for a credential_source other
	// than client_credentials or azidentity.
	ErrUnknownCredentialSource = errors.New("config: unknown credential_source")

	// ErrInvalidRefreshBuffer is returned when refresh_buffer is negative.
	ErrInvalidRefreshBuffer = errors.New("config: refresh_buffer must not be negative")

	// ErrInvalidHTTPTimeout is returned when http_timeout is zero or negative.
	ErrInvalidHTTPTimeout = errors.New("config: http_timeout must be positive")

	// ErrInvalidLogFormat is returned for a log_format other than text or json.
	ErrInvalidLogFormat = errors.New("config: log_format must be text or json")
)

// Config is the process configuration of the broker.
type Config struct {
	TenantID       string `mapstructure:"tenant_id"`
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	SubscriptionID string `mapstructure:"subscription_id"`
	AuthorityHost  string `mapstructure:"authority_host"`
	KeyVaultName   string `mapstructure:"key_vault_name"`

	// CredentialSource selects how tokens are obtained: SourceClientCredentials
	// (plain form POST) or SourceAzureIdentity (azidentity).
	CredentialSource string `mapstructure:"credential_source"`

	RefreshBuffer      time.Duration `mapstructure:"refresh_buffer"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	DeduplicateRefresh bool          `mapstructure:"deduplicate_refresh"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Audiences replaces the built-in audience table when non-empty.
	Audiences []audience.Descriptor `mapstructure:"audiences"`
}

var defaults = map[string]any{
	"tenant_id":           "",
	"client_id":           "",
	"client_secret":       "",
	"subscription_id":     "",
	"authority_host":      DefaultAuthorityHost,
	"key_vault_name":      "",
	"credential_source":   SourceClientCredentials,
	"refresh_buffer":      300 * time.Second,
	"http_timeout":        30 * time.Second,
	"deduplicate_refresh": true,
	"log_level":           "info",
	"log_format":          "text",
}

// Load reads configuration from the environment and, when path is not
// empty, from a YAML file. Environment variables win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	for key := range defaults {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	return &cfg, nil
}

// Enabled reports whether a client id is configured. Without one the broker
// stays inactive.
func (c *Config) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

// Validate checks that the configuration can drive a broker.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TenantID) == "" {
		return ErrTenantRequired
	}
	if !c.Enabled() {
		return ErrClientIDRequired
	}
	if c.ClientSecret == "" {
		return ErrClientSecretRequired
	}

	switch c.CredentialSource {
	case SourceClientCredentials, SourceAzureIdentity:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCredentialSource, c.CredentialSource)
	}

	if c.RefreshBuffer < 0 {
		return ErrInvalidRefreshBuffer
	}
	if c.HTTPTimeout <= 0 {
		return ErrInvalidHTTPTimeout
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}

	for _, d := range c.Audiences {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	return nil
}

// Authority returns the issuer host without scheme or trailing slash.
func (c *Config) Authority() string {
	host := strings.TrimSpace(c.AuthorityHost)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimRight(host, "/")
	if host == "" {
		return DefaultAuthorityHost
	}
	return host
}

// TokenURL returns https://<authority>/<tenant>/oauth2/v2.0/token.
func (c *Config) TokenURL() string {
	return "https://" + c.Authority() + "/" + url.PathEscape(c.TenantID) + "/oauth2/v2.0/token"
}

// Descriptors returns the configured audiences, or the built-in table.
func (c *Config) Descriptors() []audience.Descriptor {
	if len(c.Audiences) > 0 {
		out := make([]audience.Descriptor, len(c.Audiences))
		copy(out, c.Audiences)
		return out
	}
	return audience.Defaults(c.SubscriptionID, c.KeyVaultName)
}
