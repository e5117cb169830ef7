package tokenbroker

import (
	"sync"
	"time"
)

// CachedToken is one previously obtained credential for one audience.
// Values are replaced as a whole and never modified after creation.
type CachedToken struct {
	// AccessToken is the bearer credential.
	AccessToken Secret

	// ExpiresAt is the instant after which the token must not be reused.
	// It already has the refresh buffer subtracted.
	ExpiresAt time.Time

	// AcquiredAt is when the acquisition completed.
	AcquiredAt time.Time
}

// IsValid reports whether token may still be used at now.
func IsValid(token CachedToken, now time.Time) bool {
	if token.AccessToken.IsEmpty() {
		return false
	}
	return now.Before(token.ExpiresAt)
}

// Cache holds at most one token per audience. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]CachedToken
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]CachedToken),
	}
}

// Get returns the current entry for audience, if any.
func (c *Cache) Get(audience string) (CachedToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	token, ok := c.entries[audience]
	return token, ok
}

// Put replaces the entry for audience.
func (c *Cache) Put(audience string, token CachedToken) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[audience] = token
}

// Expire replaces the entry for audience with a copy that is already stale.
// It reports whether an entry existed.
func (c *Cache) Expire(audience string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	token, ok := c.entries[audience]
	if !ok {
		return false
	}

	token.ExpiresAt = token.AcquiredAt
	c.entries[audience] = token
	return true
}

// Len returns the number of audiences with an entry.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
