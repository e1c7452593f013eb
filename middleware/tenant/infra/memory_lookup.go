package infra

import (
	"context"
	"strings"
	"sync"

	"storefront-gateway/middleware/tenant/domain"
)

// MemoryLookup guarda lojas em memória. Seguro para uso concorrente.
type MemoryLookup struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Store
	bySlug   map[string]string
	byDomain map[string]string
}

func NewMemoryLookup(stores ...domain.Store) *MemoryLookup {
	m := &MemoryLookup{
		byID:     make(map[string]*domain.Store),
		bySlug:   make(map[string]string),
		byDomain: make(map[string]string),
	}
	for _, s := range stores {
		m.Put(s)
	}
	return m
}

// Put insere ou substitui a loja (por ID), reindexando slug e domínios.
func (m *MemoryLookup) Put(s domain.Store) {
	c := cloneStore(&s)
	c.Slug = strings.ToLower(c.Slug)
	for i := range c.Domains {
		c.Domains[i].Domain = strings.ToLower(c.Domains[i].Domain)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.byID[c.ID]; ok {
		delete(m.bySlug, old.Slug)
		for _, d := range old.Domains {
			delete(m.byDomain, d.Domain)
		}
	}
	m.byID[c.ID] = c
	m.bySlug[c.Slug] = c.ID
	for _, d := range c.Domains {
		m.byDomain[d.Domain] = c.ID
	}
}

func (m *MemoryLookup) FindStoreByDomain(ctx context.Context, d string) (*domain.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byDomain[d]
	if !ok {
		return nil, domain.ErrStoreNotFound
	}
	return cloneStore(m.byID[id]), nil
}

func (m *MemoryLookup) FindStoreBySlug(ctx context.Context, slug string) (*domain.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.bySlug[slug]
	if !ok {
		return nil, domain.ErrStoreNotFound
	}
	return cloneStore(m.byID[id]), nil
}

func cloneStore(s *domain.Store) *domain.Store {
	c := *s
	c.Domains = append([]domain.StoreDomain(nil), s.Domains...)
	return &c
}

var _ domain.DomainLookup = (*MemoryLookup)(nil)
