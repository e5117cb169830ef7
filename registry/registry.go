package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/AmmannChristian/go-azauthx/audience"
	"github.com/AmmannChristian/go-azauthx/config"
	"github.com/AmmannChristian/go-azauthx/httpclient"
	"github.com/AmmannChristian/go-azauthx/internal/logging"
	"github.com/AmmannChristian/go-azauthx/tokenbroker"
)

var (
	// ErrUnknownAudience is returned for names that were never registered.
	ErrUnknownAudience = errors.New("registry: unknown audience")

	// ErrDuplicateAudience is returned when two descriptors share a name.
	ErrDuplicateAudience = errors.New("registry: duplicate audience")

	// ErrNilBroker is returned by New without a broker.
	ErrNilBroker = errors.New("registry: broker is nil")

	// ErrNoAudiences is returned by New with an empty descriptor list.
	ErrNoAudiences = errors.New("registry: at least one audience is required")
)

const defaultHTTPTimeout = 30 * time.Second

// Registry maps logical audience names to their descriptor and request
// pipeline. Everything is built by New and never changes afterwards, so a
// Registry is safe for concurrent use.
type Registry struct {
	broker  *tokenbroker.Broker
	entries map[string]*entry
	names   []string
	logger  logrus.FieldLogger
}

type entry struct {
	descriptor audience.Descriptor
	transport  *httpclient.Transport
	client     *http.Client
}

type options struct {
	httpTimeout    time.Duration
	baseTransport  http.RoundTripper
	tokenTransport http.RoundTripper
	brokerOptions  []tokenbroker.Option
	logger         logrus.FieldLogger
}

// Option is a functional option for configuring Registry.
type Option func(*options)

// WithHTTPTimeout sets the timeout of every audience client. Defaults to 30s.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.httpTimeout = d
		}
	}
}

// WithBaseTransport sets the transport the pipelines send requests over.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.baseTransport = rt
	}
}

// WithTokenTransport sets the transport used to reach the token endpoint.
// Only NewFromConfig uses it.
func WithTokenTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.tokenTransport = rt
	}
}

// WithBrokerOptions appends options for the broker built by NewFromConfig.
func WithBrokerOptions(opts ...tokenbroker.Option) Option {
	return func(o *options) {
		o.brokerOptions = append(o.brokerOptions, opts...)
	}
}

// WithLogger sets the logger for retrying clients and, in NewFromConfig,
// the broker.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{httpTimeout: defaultHTTPTimeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New builds one pipeline per descriptor, all sharing broker.
func New(broker *tokenbroker.Broker, descriptors []audience.Descriptor, opts ...Option) (*Registry, error) {
	if broker == nil {
		return nil, ErrNilBroker
	}
	if len(descriptors) == 0 {
		return nil, ErrNoAudiences
	}

	o := newOptions(opts)

	r := &Registry{
		broker:  broker,
		entries: make(map[string]*entry, len(descriptors)),
		names:   make([]string, 0, len(descriptors)),
		logger:  o.logger,
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}

	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		if _, ok := r.entries[d.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateAudience, d.Name)
		}

		transport, err := httpclient.NewBuilder().
			WithBroker(broker).
			WithAudience(d).
			WithBaseTransport(o.baseTransport).
			BuildTransport()
		if err != nil {
			return nil, fmt.Errorf("registry: build pipeline for %q: %w", d.Name, err)
		}

		r.entries[d.Name] = &entry{
			descriptor: d,
			transport:  transport,
			client:     &http.Client{Transport: transport, Timeout: o.httpTimeout},
		}
		r.names = append(r.names, d.Name)
	}

	sort.Strings(r.names)

	return r, nil
}

// NewFromConfig validates cfg and wires the credential source, broker and
// registry it describes.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, errors.New("registry: config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := newOptions(opts)

	tokenClient := &http.Client{Transport: o.tokenTransport, Timeout: cfg.HTTPTimeout}

	var source tokenbroker.CredentialSource
	switch cfg.CredentialSource {
	case config.SourceAzureIdentity:
		src, err := tokenbroker.NewClientSecretSource(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, cfg.Authority(), tokenClient)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		source = src
	default:
		source = tokenbroker.NewClientCredentialsSource(cfg.TokenURL(), cfg.ClientID, cfg.ClientSecret,
			tokenbroker.WithHTTPClient(tokenClient))
	}

	brokerOpts := []tokenbroker.Option{tokenbroker.WithRefreshBuffer(cfg.RefreshBuffer)}
	if !cfg.DeduplicateRefresh {
		brokerOpts = append(brokerOpts, tokenbroker.WithoutDeduplication())
	}
	if o.logger != nil {
		brokerOpts = append(brokerOpts, tokenbroker.WithLogger(o.logger))
	}
	brokerOpts = append(brokerOpts, o.brokerOptions...)

	if cfg.HTTPTimeout > 0 {
		opts = append([]Option{WithHTTPTimeout(cfg.HTTPTimeout)}, opts...)
	}

	return New(tokenbroker.New(source, brokerOpts...), cfg.Descriptors(), opts...)
}

// Broker returns the broker shared by all pipelines.
func (r *Registry) Broker() *tokenbroker.Broker {
	return r.broker
}

// Names returns the registered audience names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *Registry) lookup(name string) (*entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAudience, name)
	}
	return e, nil
}

// Descriptor returns the descriptor registered under name.
func (r *Registry) Descriptor(name string) (audience.Descriptor, error) {
	e, err := r.lookup(name)
	if err != nil {
		return audience.Descriptor{}, err
	}
	return e.descriptor, nil
}

// Pipeline returns the authenticating transport for name.
func (r *Registry) Pipeline(name string) (*httpclient.Transport, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.transport, nil
}

// Client returns an *http.Client over the pipeline for name.
func (r *Registry) Client(name string) (*http.Client, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return e.client, nil
}

// Token returns the current token for name, acquiring one if necessary.
func (r *Registry) Token(ctx context.Context, name string) (tokenbroker.CachedToken, error) {
	e, err := r.lookup(name)
	if err != nil {
		return tokenbroker.CachedToken{}, err
	}
	return r.broker.GetToken(ctx, e.descriptor)
}

// RetryPolicy configures RetryingClient. Zero values fall back to the
// go-retryablehttp defaults.
type RetryPolicy struct {
	Max     int
	WaitMin time.Duration
	WaitMax time.Duration
}

// RetryingClient returns a go-retryablehttp client over the pipeline for
// name. Rejected tokens and rejected credentials are never retried.
func (r *Registry) RetryingClient(name string, policy RetryPolicy) (*retryablehttp.Client, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = e.client
	client.Logger = logging.LeveledLogger{Logger: r.logger.WithField("audience", name)}
	client.CheckRetry = CheckRetry
	if policy.Max > 0 {
		client.RetryMax = policy.Max
	}
	if policy.WaitMin > 0 {
		client.RetryWaitMin = policy.WaitMin
	}
	if policy.WaitMax > 0 {
		client.RetryWaitMax = policy.WaitMax
	}

	return client, nil
}

// CheckRetry is the retryablehttp.CheckRetry used by RetryingClient.
func CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if errors.Is(err, httpclient.ErrAuthorizationDenied) {
		return false, err
	}

	var acqErr *tokenbroker.CredentialAcquisitionError
	if errors.As(err, &acqErr) && !acqErr.Retryable() {
		return false, err
	}

	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
