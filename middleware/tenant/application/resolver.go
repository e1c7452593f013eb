package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"storefront-gateway/middleware/tenant/domain"
)

// Resolver mapeia um host para a loja dona dele.
//
// Domínio customizado tem precedência sobre subdomínio de BaseDomain.
type Resolver struct {
	Lookup     domain.DomainLookup
	BaseDomain string
}

func (r Resolver) Resolve(ctx context.Context, host string) (domain.ResolvedStore, error) {
	h, ok := NormalizeHost(host)
	if !ok {
		return domain.ResolvedStore{}, domain.ErrStoreNotFound
	}
	if r.Lookup == nil {
		return domain.ResolvedStore{}, fmt.Errorf("%w: no lookup configured", domain.ErrUpstreamUnavailable)
	}

	store, err := r.Lookup.FindStoreByDomain(ctx, h)
	switch {
	case err == nil && store != nil:
		return project(store, h, false), nil
	case err != nil && !errors.Is(err, domain.ErrStoreNotFound):
		return domain.ResolvedStore{}, unavailable(err)
	}

	slug, ok := r.subdomainSlug(h)
	if !ok {
		return domain.ResolvedStore{}, domain.ErrStoreNotFound
	}

	store, err = r.Lookup.FindStoreBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrStoreNotFound) {
			return domain.ResolvedStore{}, domain.ErrStoreNotFound
		}
		return domain.ResolvedStore{}, unavailable(err)
	}
	if store == nil {
		return domain.ResolvedStore{}, domain.ErrStoreNotFound
	}

	return project(store, store.Slug+"."+r.baseDomain(), true), nil
}

func (r Resolver) baseDomain() string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(r.BaseDomain)), ".")
}

// subdomainSlug extrai "<slug>" de "<slug>.<BaseDomain>".
func (r Resolver) subdomainSlug(h string) (string, bool) {
	base := r.baseDomain()
	if base == "" {
		return "", false
	}
	suffix := "." + base
	if !strings.HasSuffix(h, suffix) {
		return "", false
	}
	slug := strings.TrimSuffix(h, suffix)
	if slug == "" || slug == "www" {
		return "", false
	}
	return slug, true
}

// project monta o ResolvedStore; servedAs é o host sob o qual a loja respondeu.
func project(s *domain.Store, servedAs string, isSubdomain bool) domain.ResolvedStore {
	primary, _ := s.PrimaryDomain()
	primary = strings.ToLower(primary)
	return domain.ResolvedStore{
		StoreID:                s.ID,
		Slug:                   s.Slug,
		Plan:                   s.Plan,
		PrimaryDomain:          primary,
		IsSubdomain:            isSubdomain,
		NeedsCanonicalRedirect: primary != "" && primary != servedAs,
	}
}

func unavailable(err error) error {
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
}

// NormalizeHost remove porta e ponto final, converte para minúsculas e
// rejeita hosts vazios ou não-ASCII (IDN não suportado).
func NormalizeHost(host string) (string, bool) {
	h := strings.TrimSpace(host)
	if h == "" {
		return "", false
	}
	if hp, _, err := net.SplitHostPort(h); err == nil {
		h = hp
	} else {
		h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	}
	h = strings.TrimSuffix(strings.ToLower(h), ".")
	if h == "" {
		return "", false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if c >= 0x80 || c <= ' ' || c == '/' || c == '@' {
			return "", false
		}
	}
	return h, true
}
