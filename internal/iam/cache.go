package iam

import (
	"context"
	"sync"
	"time"
)

// refreshMargin keeps a cached token from being handed out right at its
// expiry.
const refreshMargin = 30 * time.Second

type cacheEntry struct {
	set      *TokenSet
	deadline time.Time
}

// cachingExchanger reuses exchanged tokens until their refresh deadline, so
// consecutive secret operations by the same caller hit the issuer once.
type cachingExchanger struct {
	inner Exchanger
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCachingExchanger(inner Exchanger) Exchanger {
	return &cachingExchanger{inner: inner, now: time.Now, entries: map[string]cacheEntry{}}
}

func (c *cachingExchanger) Exchange(ctx context.Context, issuer, subjectToken, audience string) (*TokenSet, error) {
	key := issuer + "\x00" + subjectToken + "\x00" + audience
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Before(e.deadline) {
		c.mu.Unlock()
		return e.set, nil
	}
	c.mu.Unlock()

	set, err := c.inner.Exchange(ctx, issuer, subjectToken, audience)
	if err != nil {
		return nil, err
	}
	deadline := set.RefreshDeadline(now).Add(-refreshMargin)
	if deadline.After(now) {
		c.mu.Lock()
		c.entries[key] = cacheEntry{set: set, deadline: deadline}
		c.prune(now)
		c.mu.Unlock()
	}
	return set, nil
}

// prune drops expired entries. Called under mu.
func (c *cachingExchanger) prune(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.deadline) {
			delete(c.entries, k)
		}
	}
}
