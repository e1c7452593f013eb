package infra

import (
	"context"
	"sync"
	"time"

	"storefront-gateway/middleware/tenant/domain"
)

// CachedLookup decora outro lookup com cache de TTL curto.
//
// Só acertos são cacheados: "não encontrado" e erros sempre vão ao backend,
// para que uma loja recém-criada apareça sem esperar o TTL.
type CachedLookup struct {
	next domain.DomainLookup
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	store     *domain.Store
	expiresAt time.Time
}

type CachedLookupOption func(*CachedLookup)

// WithClock troca a fonte de tempo (testes).
func WithClock(now func() time.Time) CachedLookupOption {
	return func(c *CachedLookup) { c.now = now }
}

func NewCachedLookup(next domain.DomainLookup, ttl time.Duration, opts ...CachedLookupOption) *CachedLookup {
	c := &CachedLookup{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedLookup) FindStoreByDomain(ctx context.Context, d string) (*domain.Store, error) {
	return c.get(ctx, "domain:"+d, func() (*domain.Store, error) {
		return c.next.FindStoreByDomain(ctx, d)
	})
}

func (c *CachedLookup) FindStoreBySlug(ctx context.Context, slug string) (*domain.Store, error) {
	return c.get(ctx, "slug:"+slug, func() (*domain.Store, error) {
		return c.next.FindStoreBySlug(ctx, slug)
	})
}

func (c *CachedLookup) get(ctx context.Context, key string, load func() (*domain.Store, error)) (*domain.Store, error) {
	if c.ttl <= 0 {
		return load()
	}
	now := c.now()

	c.mu.RLock()
	ent, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(ent.expiresAt) {
		return cloneStore(ent.store), nil
	}

	s, err := load()
	if err != nil || s == nil {
		return s, err
	}
	if ctx.Err() != nil {
		return cloneStore(s), nil
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{store: cloneStore(s), expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return s, nil
}

// Purge remove entradas vencidas.
func (c *CachedLookup) Purge() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, ent := range c.entries {
		if !now.Before(ent.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// StartJanitor purga periodicamente até ctx encerrar.
func (c *CachedLookup) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Purge()
			}
		}
	}()
}

func (c *CachedLookup) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ domain.DomainLookup = (*CachedLookup)(nil)
