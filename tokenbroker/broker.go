package tokenbroker

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/AmmannChristian/go-azauthx/audience"
)

// DefaultRefreshBuffer is subtracted from every token lifetime so a token is
// replaced before the server would reject it.
const DefaultRefreshBuffer = 300 * time.Second

// Broker hands out bearer tokens per audience, acquiring a new one from its
// CredentialSource only when the cached token is missing or stale.
// It is safe for concurrent use.
type Broker struct {
	source        CredentialSource
	cache         *Cache
	clock         clock.PassiveClock
	refreshBuffer time.Duration
	dedupe        bool
	group         singleflight.Group
	logger        logrus.FieldLogger
}

// Option is a functional option for configuring Broker.
type Option func(*Broker)

// WithClock sets the time source used for acquisition and validity checks.
func WithClock(clk clock.PassiveClock) Option {
	return func(b *Broker) {
		if clk != nil {
			b.clock = clk
		}
	}
}

// WithRefreshBuffer overrides DefaultRefreshBuffer. Negative values are ignored.
func WithRefreshBuffer(d time.Duration) Option {
	return func(b *Broker) {
		if d >= 0 {
			b.refreshBuffer = d
		}
	}
}

// WithLogger sets a custom logger for acquisition events.
// If not set, no logging will occur.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithLoggingEnabled logs acquisition events to the logrus standard logger.
func WithLoggingEnabled() Option {
	return func(b *Broker) {
		b.logger = logrus.StandardLogger()
	}
}

// WithoutDeduplication lets concurrent callers that all find a stale entry
// each run their own acquisition. The last one to finish wins the cache slot.
func WithoutDeduplication() Option {
	return func(b *Broker) {
		b.dedupe = false
	}
}

// WithCache makes the broker share an existing cache.
func WithCache(cache *Cache) Option {
	return func(b *Broker) {
		if cache != nil {
			b.cache = cache
		}
	}
}

// New creates a broker backed by source.
//
// Parameters:
//   - source: where fresh tokens come from (e.g., NewClientCredentialsSource)
//   - opts: Optional configuration options (WithClock, WithRefreshBuffer, WithLogger, WithoutDeduplication)
func New(source CredentialSource, opts ...Option) *Broker {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	b := &Broker{
		source:        source,
		cache:         NewCache(),
		clock:         clock.RealClock{},
		refreshBuffer: DefaultRefreshBuffer,
		dedupe:        true,
		logger:        discard,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// GetToken returns a valid token for aud, acquiring one if necessary.
// Concurrent callers for the same audience share one acquisition. A caller
// whose ctx ends while waiting gets an error, while the shared acquisition
// still completes and populates the cache.
func (b *Broker) GetToken(ctx context.Context, aud audience.Descriptor) (CachedToken, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if token, ok := b.lookup(aud); ok {
		return token, nil
	}

	if !b.dedupe {
		return b.acquire(ctx, aud)
	}

	ch := b.group.DoChan(aud.Scope, func() (interface{}, error) {
		if token, ok := b.lookup(aud); ok {
			return token, nil
		}
		return b.acquire(context.WithoutCancel(ctx), aud)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return CachedToken{}, res.Err
		}
		return res.Val.(CachedToken), nil
	case <-ctx.Done():
		return CachedToken{}, &CredentialAcquisitionError{
			Audience: aud.Name,
			Scope:    aud.Scope,
			Cause:    ctx.Err(),
		}
	}
}

// Token is like GetToken but returns the raw bearer string.
func (b *Broker) Token(ctx context.Context, aud audience.Descriptor) (string, error) {
	token, err := b.GetToken(ctx, aud)
	if err != nil {
		return "", err
	}
	return token.AccessToken.Value(), nil
}

// Invalidate marks the cached token for aud as stale so the next call
// acquires a new one. It reports whether there was an entry.
func (b *Broker) Invalidate(aud audience.Descriptor) bool {
	ok := b.cache.Expire(aud.Scope)
	if ok {
		b.logger.WithFields(logrus.Fields{
			"audience": aud.Name,
			"scope":    aud.Scope,
		}).Debug("tokenbroker: cached token invalidated")
	}
	return ok
}

// Cache returns the broker's cache.
func (b *Broker) Cache() *Cache {
	return b.cache
}

// RefreshBuffer returns the margin subtracted from token lifetimes.
func (b *Broker) RefreshBuffer() time.Duration {
	return b.refreshBuffer
}

func (b *Broker) lookup(aud audience.Descriptor) (CachedToken, bool) {
	token, ok := b.cache.Get(aud.Scope)
	if !ok || !IsValid(token, b.clock.Now()) {
		return CachedToken{}, false
	}
	return token, true
}

// acquire runs one acquisition and stores the result. The cache is left
// untouched on failure.
func (b *Broker) acquire(ctx context.Context, aud audience.Descriptor) (CachedToken, error) {
	fields := logrus.Fields{
		"audience": aud.Name,
		"scope":    aud.Scope,
	}

	fail := func(err error) (CachedToken, error) {
		acqErr := &CredentialAcquisitionError{
			Audience:   aud.Name,
			Scope:      aud.Scope,
			StatusCode: statusCodeOf(err),
			Cause:      err,
		}
		b.logger.WithFields(fields).WithField("status", acqErr.StatusCode).WithError(err).
			Warn("tokenbroker: token acquisition failed")
		return CachedToken{}, acqErr
	}

	if b.source == nil {
		return fail(ErrNilSource)
	}

	grant, err := b.source.Acquire(ctx, aud.Scope)
	if err != nil {
		return fail(err)
	}
	if grant == nil || grant.AccessToken == "" {
		return fail(ErrMalformedGrant)
	}

	now := b.clock.Now()
	token := CachedToken{
		AccessToken: NewSecret(grant.AccessToken),
		ExpiresAt:   now.Add(grant.Lifetime - b.refreshBuffer),
		AcquiredAt:  now,
	}
	b.cache.Put(aud.Scope, token)

	b.logger.WithFields(fields).WithFields(logrus.Fields{
		"lifetime":   grant.Lifetime.String(),
		"expires_at": token.ExpiresAt.Format(time.RFC3339),
	}).Debug("tokenbroker: obtained new access token")

	return token, nil
}
