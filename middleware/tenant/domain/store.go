package domain

import (
	"context"
	"errors"
)

var (
	// ErrStoreNotFound indica que nenhum tenant casa com o host.
	ErrStoreNotFound = errors.New("store not found")
	// ErrUpstreamUnavailable indica falha na busca (banco fora, timeout).
	// A identidade do tenant nunca é adivinhada nesse caso.
	ErrUpstreamUnavailable = errors.New("store lookup unavailable")
)

type StoreDomain struct {
	Domain    string
	IsPrimary bool
}

// Store é a projeção somente-leitura de uma loja persistida.
// Invariante: no máximo um domínio com IsPrimary=true.
type Store struct {
	ID      string
	Slug    string
	Plan    string
	Domains []StoreDomain
}

// PrimaryDomain devolve o domínio primário, se existir.
func (s *Store) PrimaryDomain() (string, bool) {
	if s == nil {
		return "", false
	}
	for _, d := range s.Domains {
		if d.IsPrimary {
			return d.Domain, true
		}
	}
	return "", false
}

// ResolvedStore é criado a cada resolução e nunca é mutado.
type ResolvedStore struct {
	StoreID                string
	Slug                   string
	Plan                   string
	PrimaryDomain          string
	IsSubdomain            bool
	NeedsCanonicalRedirect bool
}

func (r ResolvedStore) HasPrimaryDomain() bool { return r.PrimaryDomain != "" }

// DomainLookup é a porta de leitura da persistência.
//
// Implementações devolvem ErrStoreNotFound quando não há loja; qualquer outro
// erro é tratado como indisponibilidade.
type DomainLookup interface {
	FindStoreByDomain(ctx context.Context, domain string) (*Store, error)
	FindStoreBySlug(ctx context.Context, slug string) (*Store, error)
}
