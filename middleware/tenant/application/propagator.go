package application

import (
	"context"

	"github.com/google/uuid"

	"storefront-gateway/middleware/tenant/domain"
)

// Em Go o contexto da requisição viaja explicitamente via context.Context:
// cada chamada concorrente carrega o seu próprio valor, sem estado global.

type requestContextKey struct{}

// WithRequestContext devolve um ctx filho carregando rc.
func WithRequestContext(ctx context.Context, rc domain.RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext recupera o RequestContext ligado a ctx.
func FromContext(ctx context.Context) (domain.RequestContext, bool) {
	if ctx == nil {
		return domain.RequestContext{}, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(domain.RequestContext)
	return rc, ok
}

// StoreIDFromContext é um atalho para handlers que só precisam do tenant.
func StoreIDFromContext(ctx context.Context) string {
	rc, _ := FromContext(ctx)
	return rc.StoreID
}

// Run executa fn com rc ligado ao contexto. Tudo que fn chamar passando o ctx
// recebido enxerga o mesmo rc, inclusive em goroutines derivadas.
func Run[T any](ctx context.Context, rc domain.RequestContext, fn func(ctx context.Context) T) T {
	return fn(WithRequestContext(ctx, rc))
}

// NewRequestID gera um id aleatório (UUID v4, crypto/rand).
func NewRequestID() string {
	return uuid.NewString()
}

type resolvedStoreKey struct{}

// WithResolvedStore anexa a loja resolvida (plano, slug) para as políticas
// seguintes da cadeia, como o rate limit por plano.
func WithResolvedStore(ctx context.Context, rs domain.ResolvedStore) context.Context {
	return context.WithValue(ctx, resolvedStoreKey{}, rs)
}

func ResolvedStoreFromContext(ctx context.Context) (domain.ResolvedStore, bool) {
	if ctx == nil {
		return domain.ResolvedStore{}, false
	}
	rs, ok := ctx.Value(resolvedStoreKey{}).(domain.ResolvedStore)
	return rs, ok
}
