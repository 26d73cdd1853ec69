package secret

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

type cachedSecret struct {
	value     string
	fetchedAt time.Time
}

// CachedProvider keeps resolved secrets for a TTL. Entries are never evicted on expiry: when a
// refresh fails, the last value is served instead, so a hot reload during a Vault outage keeps
// the credentials the agent is already running with.
type CachedProvider struct {
	inner Provider
	ttl   time.Duration
	cache *cache.Cache
	now   func() time.Time
}

// NewCachedProvider wraps inner with a cache whose entries go stale after ttl.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		ttl:   ttl,
		cache: cache.New(cache.NoExpiration, 0),
		now:   time.Now,
	}
}

// Get returns the secret for path, refreshing it from the inner provider once stale.
func (p *CachedProvider) Get(ctx context.Context, path string) (string, error) {
	prev, cached := p.lookup(path)
	if cached && p.now().Sub(prev.fetchedAt) < p.ttl {
		return prev.value, nil
	}

	val, err := p.inner.Get(ctx, path)
	if err != nil {
		if cached {
			return prev.value, nil
		}
		return "", err
	}
	p.cache.Set(path, cachedSecret{value: val, fetchedAt: p.now()}, cache.NoExpiration)
	return val, nil
}

func (p *CachedProvider) lookup(path string) (cachedSecret, bool) {
	v, found := p.cache.Get(path)
	if !found {
		return cachedSecret{}, false
	}
	s, ok := v.(cachedSecret)
	return s, ok
}

// Flush drops every cached secret, including the fallback values.
func (p *CachedProvider) Flush() {
	p.cache.Flush()
}

// Close closes the inner provider.
func (p *CachedProvider) Close() error {
	return p.inner.Close()
}
